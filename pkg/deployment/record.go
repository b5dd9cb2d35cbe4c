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

// Package deployment implements the per-PR deployment record store: the
// authoritative state machine described in the design as component C3.
package deployment

import (
	"fmt"
	"time"
)

// Status is one of the states a [Record] may occupy.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusBuilding   Status = "building"
	StatusRunning    Status = "running"
	StatusDestroying Status = "destroying"
	StatusFailed     Status = "failed"
	StatusStopped    Status = "stopped"
)

// legalPredecessors enumerates, for each status, the statuses a CAS write
// is allowed to observe before transitioning into it. An empty record (no
// prior status) is represented by the empty string "".
var legalPredecessors = map[Status][]Status{
	StatusQueued:     {"", StatusFailed},
	StatusBuilding:   {StatusQueued},
	StatusRunning:    {StatusBuilding},
	StatusFailed:     {StatusBuilding, StatusDestroying},
	StatusDestroying: {StatusRunning, StatusFailed, StatusQueued, StatusBuilding},
	StatusStopped:    {StatusDestroying},
}

// CanTransition reports whether from -> to is a legal transition per the
// state machine in the design document.
func CanTransition(from, to Status) bool {
	for _, pred := range legalPredecessors[to] {
		if pred == from {
			return true
		}
	}
	return false
}

// LegalPredecessors returns the statuses from which to may legally be
// reached, for use with [Store.CompareAndSwap].
func LegalPredecessors(to Status) []Status {
	preds := legalPredecessors[to]
	out := make([]Status, len(preds))
	copy(out, preds)
	return out
}

// Record is the authoritative per-PR deployment bookkeeping entity.
type Record struct {
	PRNumber      int    `json:"pr_number"`
	Status        Status `json:"status"`
	ContainerID   string `json:"container_id,omitempty"`
	HostPort      int    `json:"host_port,omitempty"`
	ImageRef      string `json:"image_ref,omitempty"`
	Branch        string `json:"branch,omitempty"`
	CommitSHA     string `json:"commit_sha,omitempty"`
	Title         string `json:"title,omitempty"`
	Author        string `json:"author,omitempty"`
	RepoFullName  string `json:"repo_full_name,omitempty"`
	CloneURL      string `json:"clone_url,omitempty"`
	TunnelURL     string `json:"tunnel_url,omitempty"`
	LastError     string `json:"last_error,omitempty"`
	InstallID     int64  `json:"installation_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	BuildStarted  time.Time `json:"build_started_at,omitempty"`
	BuildComplete time.Time `json:"build_completed_at,omitempty"`
}

// Validate enforces invariant I1: running records must carry a container
// id and host port.
func (r *Record) Validate() error {
	if r.Status == StatusRunning {
		if r.ContainerID == "" || r.HostPort == 0 {
			return fmt.Errorf("invariant violation: status=running requires container_id and host_port")
		}
	}
	return nil
}
