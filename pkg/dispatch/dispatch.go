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

// Package dispatch implements the webhook event dispatcher, component C2:
// it classifies inbound pull request events, transitions the deployment
// record, and enqueues the corresponding build or destroy job.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abcxyz/envzilla/pkg/crypt"
	"github.com/abcxyz/envzilla/pkg/deployment"
	"github.com/abcxyz/envzilla/pkg/queue"
	"github.com/google/go-github/v56/github"
)

// ErrUnhandledAction is returned when the pull request action is not one
// the dispatcher acts on (e.g. "labeled", "assigned").
var ErrUnhandledAction = errors.New("unhandled pull request action")

// ErrUnhandledEvent is returned for webhook event types other than
// "pull_request".
var ErrUnhandledEvent = errors.New("unhandled event type")

// ErrNoDeployment is returned when a destroy-triggering action arrives for
// a PR with no deployment worth tearing down: either no record exists yet,
// or the record never got far enough to have a container (no container_id
// means there is nothing for the destroy executor to do).
var ErrNoDeployment = errors.New("no-deployment")

// buildActions trigger a create-or-update deployment.
var buildActions = map[string]bool{
	"opened":      true,
	"reopened":    true,
	"synchronize": true,
}

// destroyActions trigger teardown.
var destroyActions = map[string]bool{
	"closed": true,
}

// Dispatcher wires the parsed webhook payload into the deployment store and
// job queue.
type Dispatcher struct {
	store        *deployment.Store
	jobs         *queue.Queue
	cryptSecret  string
}

// New creates a [Dispatcher].
func New(store *deployment.Store, jobs *queue.Queue, cryptSecret string) *Dispatcher {
	return &Dispatcher{store: store, jobs: jobs, cryptSecret: cryptSecret}
}

// Handle parses payload as eventType and, for pull_request events whose
// action this dispatcher understands, transitions the deployment record
// and enqueues work. Returns [ErrUnhandledEvent] or [ErrUnhandledAction]
// for payloads that require no action; callers should treat those as a
// successful no-op, not an error response.
func (d *Dispatcher) Handle(ctx context.Context, eventType string, payload []byte) error {
	if eventType != "pull_request" {
		return fmt.Errorf("%w: %s", ErrUnhandledEvent, eventType)
	}

	parsed, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		return fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	event, ok := parsed.(*github.PullRequestEvent)
	if !ok {
		return fmt.Errorf("%w: payload did not decode as a pull_request event", ErrUnhandledEvent)
	}

	action := event.GetAction()
	switch {
	case buildActions[action]:
		return d.handleBuild(ctx, event)
	case destroyActions[action]:
		return d.handleDestroy(ctx, event)
	default:
		return fmt.Errorf("%w: %s", ErrUnhandledAction, action)
	}
}

func (d *Dispatcher) handleBuild(ctx context.Context, event *github.PullRequestEvent) error {
	pr := event.GetPullRequest()
	prNumber := event.GetNumber()
	now := time.Now().UTC()

	rec, err := d.store.CompareAndSwap(ctx, prNumber, deployment.LegalPredecessors(deployment.StatusQueued), func(r *deployment.Record) {
		r.PRNumber = prNumber
		r.Status = deployment.StatusQueued
		r.Branch = pr.GetHead().GetRef()
		r.CommitSHA = pr.GetHead().GetSHA()
		r.Title = pr.GetTitle()
		r.Author = pr.GetUser().GetLogin()
		r.RepoFullName = event.GetRepo().GetFullName()
		r.CloneURL = pr.GetHead().GetRepo().GetCloneURL()
		r.InstallID = event.GetInstallation().GetID()
		r.LastError = ""
	}, now)
	if err != nil {
		if errors.Is(err, deployment.ErrStateConflict) {
			return nil // a later event already advanced this PR past queued; not an error
		}
		return fmt.Errorf("failed to record queued deployment: %w", err)
	}

	cloneURL, err := crypt.Encrypt(d.cryptSecret, rec.CloneURL)
	if err != nil {
		return fmt.Errorf("failed to encrypt clone url: %w", err)
	}
	commitSHA, err := crypt.Encrypt(d.cryptSecret, rec.CommitSHA)
	if err != nil {
		return fmt.Errorf("failed to encrypt commit sha: %w", err)
	}

	job := &queue.Job{
		Kind:           queue.KindBuildContainer,
		Priority:       queue.PriorityNormal,
		PRNumber:       prNumber,
		RepoFullName:   rec.RepoFullName,
		Branch:         rec.Branch,
		CloneURL:       cloneURL,
		CommitSHA:      commitSHA,
		InstallationID: rec.InstallID,
	}
	if err := d.jobs.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue build job: %w", err)
	}

	// Once its job is queued the record moves to building, the state the
	// build executor's final write to running expects as its predecessor.
	if _, err := d.store.CompareAndSwap(ctx, prNumber, deployment.LegalPredecessors(deployment.StatusBuilding), func(r *deployment.Record) {
		r.Status = deployment.StatusBuilding
	}, now); err != nil && !errors.Is(err, deployment.ErrStateConflict) {
		return fmt.Errorf("failed to record building deployment: %w", err)
	}
	return nil
}

func (d *Dispatcher) handleDestroy(ctx context.Context, event *github.PullRequestEvent) error {
	prNumber := event.GetNumber()
	now := time.Now().UTC()

	// A destroy trigger on a PR with no record, or one that never reached
	// a container, is a no-op: there is nothing to tear down.
	existing, err := d.store.Get(ctx, prNumber)
	if err != nil {
		if errors.Is(err, deployment.ErrNotFound) {
			return ErrNoDeployment
		}
		return fmt.Errorf("failed to read deployment record: %w", err)
	}
	if existing.ContainerID == "" {
		return ErrNoDeployment
	}

	rec, err := d.store.CompareAndSwap(ctx, prNumber, deployment.LegalPredecessors(deployment.StatusDestroying), func(r *deployment.Record) {
		r.Status = deployment.StatusDestroying
	}, now)
	if err != nil {
		if errors.Is(err, deployment.ErrStateConflict) {
			return nil // a concurrent delivery already advanced this PR past a destroyable state
		}
		return fmt.Errorf("failed to record destroying deployment: %w", err)
	}

	job := &queue.Job{
		Kind:         queue.KindDestroyContainer,
		Priority:     queue.PriorityHigh,
		PRNumber:     prNumber,
		RepoFullName: rec.RepoFullName,
		InstallationID: rec.InstallID,
	}
	if err := d.jobs.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue destroy job: %w", err)
	}
	return nil
}
