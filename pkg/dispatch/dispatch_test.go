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

package dispatch

import (
	"errors"
	"testing"
	"time"

	"github.com/abcxyz/envzilla/pkg/deployment"
	"github.com/abcxyz/envzilla/pkg/queue"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// These cases all return before touching the deployment store or job queue,
// so a zero-value Dispatcher is safe to exercise them against.

func TestHandleUnhandledEventType(t *testing.T) {
	t.Parallel()

	d := New(nil, nil, "")
	err := d.Handle(t.Context(), "issue_comment", []byte(`{}`))
	if !errors.Is(err, ErrUnhandledEvent) {
		t.Errorf("Handle() error = %v, want ErrUnhandledEvent", err)
	}
}

func TestHandleMalformedPayload(t *testing.T) {
	t.Parallel()

	d := New(nil, nil, "")
	err := d.Handle(t.Context(), "pull_request", []byte(`not json`))
	if err == nil {
		t.Fatal("Handle() = nil, want a parse error")
	}
}

func TestHandleUnhandledAction(t *testing.T) {
	t.Parallel()

	d := New(nil, nil, "")
	payload := []byte(`{"action":"labeled","number":42,"pull_request":{},"repository":{}}`)
	err := d.Handle(t.Context(), "pull_request", payload)
	if !errors.Is(err, ErrUnhandledAction) {
		t.Errorf("Handle() error = %v, want ErrUnhandledAction", err)
	}
}

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := deployment.NewStore(rdb, time.Hour)
	jobs := queue.New(rdb, queue.Config{})
	return New(store, jobs, "test-secret")
}

func TestHandleDestroyNoExistingRecordIsNoOp(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	payload := []byte(`{"action":"closed","number":7,"pull_request":{},"repository":{"full_name":"o/r"}}`)

	err := d.Handle(t.Context(), "pull_request", payload)
	if !errors.Is(err, ErrNoDeployment) {
		t.Errorf("Handle() error = %v, want ErrNoDeployment", err)
	}
}

func TestHandleDestroyEmptyContainerIDIsNoOp(t *testing.T) {
	t.Parallel()

	d := newTestDispatcher(t)
	now := time.Now().UTC()

	// A record that only ever reached "queued" has no container to tear
	// down, even though it exists.
	if _, err := d.store.CompareAndSwap(t.Context(), 9, deployment.LegalPredecessors(deployment.StatusQueued), func(r *deployment.Record) {
		r.Status = deployment.StatusQueued
		r.RepoFullName = "o/r"
	}, now); err != nil {
		t.Fatalf("failed to seed queued record: %v", err)
	}

	payload := []byte(`{"action":"closed","number":9,"pull_request":{},"repository":{"full_name":"o/r"}}`)
	err := d.Handle(t.Context(), "pull_request", payload)
	if !errors.Is(err, ErrNoDeployment) {
		t.Errorf("Handle() error = %v, want ErrNoDeployment", err)
	}
}
