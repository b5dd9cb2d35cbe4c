// Copyright 2026 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package queue implements the durable, Redis-backed job queue described as
// component C4: priority-ordered delivery, visibility-timeout based stall
// detection, and capped completion/failure history.
package queue

import (
	"time"

	"github.com/abcxyz/envzilla/pkg/crypt"
)

// Kind identifies the work a [Job] performs.
type Kind string

const (
	KindBuildContainer  Kind = "build-container"
	KindDestroyContainer Kind = "destroy-container"
	KindCleanupStale    Kind = "cleanup-stale"
)

// Priority orders ready jobs across the whole queue, whatever their kind;
// lower values are served first.
type Priority int

const (
	PriorityHigh   Priority = 0
	PriorityNormal Priority = 5
	PriorityLow    Priority = 10
)

// Job is a single unit of work traveling through the queue. CloneURL and
// CommitSHA are envelope-encrypted so the payload is safe at rest in Redis.
type Job struct {
	ID             string       `json:"id"`
	Kind           Kind         `json:"kind"`
	Priority       Priority     `json:"priority"`
	PRNumber       int          `json:"pr_number"`
	RepoFullName   string       `json:"repo_full_name"`
	Branch         string       `json:"branch"`
	CloneURL       *crypt.Field `json:"clone_url"`
	CommitSHA      *crypt.Field `json:"commit_sha"`
	InstallationID int64        `json:"installation_id,omitempty"`

	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	Progress    int       `json:"progress"` // 0..100, published by the handler as it works
	CreatedAt   time.Time `json:"created_at"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// OutcomeKind classifies how a job attempt ended.
type OutcomeKind string

const (
	OutcomeOK           OutcomeKind = "ok"
	OutcomeErrTransient OutcomeKind = "transient-error"
	OutcomeErrPermanent OutcomeKind = "permanent-error"
)

// Outcome is the result of one job attempt. Workers return this instead of
// a bare error so the queue can decide whether to retry without inspecting
// error strings.
type Outcome struct {
	Kind      OutcomeKind
	Detail    string
	Retryable bool
}

// OK builds a successful [Outcome].
func OK() Outcome {
	return Outcome{Kind: OutcomeOK}
}

// Transient builds a retryable failure [Outcome].
func Transient(detail string) Outcome {
	return Outcome{Kind: OutcomeErrTransient, Detail: detail, Retryable: true}
}

// Permanent builds a non-retryable failure [Outcome].
func Permanent(detail string) Outcome {
	return Outcome{Kind: OutcomeErrPermanent, Detail: detail, Retryable: false}
}

// Failed reports whether the outcome represents a failure.
func (o Outcome) Failed() bool {
	return o.Kind != OutcomeOK
}
