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

// Package sweeper implements component C8: a periodic, single-flight sweep
// that tears down deployments that have outlived their max age and prunes
// failed and stopped records older than that same max age.
package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/abcxyz/envzilla/pkg/deployment"
	"github.com/abcxyz/envzilla/pkg/queue"
	"github.com/abcxyz/pkg/logging"
)

// Sweeper periodically reconciles deployment records against their age
// limits, guarded by a distributed lock so only one replica sweeps at a
// time.
type Sweeper struct {
	store    *deployment.Store
	jobs     *queue.Queue
	lock     Lockable
	interval time.Duration
	maxAge   time.Duration
	lockTTL  time.Duration
}

// New creates a [Sweeper].
func New(store *deployment.Store, jobs *queue.Queue, lock Lockable, interval, maxAge time.Duration) *Sweeper {
	return &Sweeper{
		store:    store,
		jobs:     jobs,
		lock:     lock,
		interval: interval,
		maxAge:   maxAge,
		lockTTL:  interval / 2,
	}
}

// Run blocks, sweeping every interval until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	logger := logging.FromContext(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.sweepOnce(ctx, s.maxAge); err != nil {
				var held *LockHeldError
				if errors.As(err, &held) {
					logger.Debug("sweep skipped, lock held by another replica")
					continue
				}
				logger.Error("sweep failed", "error", err)
			}
		}
	}
}

// TriggerSweep runs a single sweep pass immediately, using maxAge in place
// of the configured default when maxAge > 0. Used by the /admin/cleanup
// HTTP endpoint to force an out-of-band reconciliation.
func (s *Sweeper) TriggerSweep(ctx context.Context, maxAge time.Duration) error {
	if maxAge <= 0 {
		maxAge = s.maxAge
	}
	return s.sweepOnce(ctx, maxAge)
}

func (s *Sweeper) sweepOnce(ctx context.Context, maxAge time.Duration) error {
	if err := s.lock.Acquire(ctx, s.lockTTL); err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.lock.Close(closeCtx)
	}()

	logger := logging.FromContext(ctx)
	records, err := s.store.List(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, rec := range records {
		age := now.Sub(rec.CreatedAt)

		switch rec.Status {
		case deployment.StatusRunning, deployment.StatusBuilding, deployment.StatusQueued:
			if age <= maxAge {
				continue
			}
			logger.Info("sweeping stale deployment", "pr", rec.PRNumber, "age", age, "status", rec.Status)
			if _, err := s.store.CompareAndSwap(ctx, rec.PRNumber, deployment.LegalPredecessors(deployment.StatusDestroying), func(r *deployment.Record) {
				r.Status = deployment.StatusDestroying
			}, now); err != nil {
				if errors.Is(err, deployment.ErrStateConflict) {
					continue
				}
				logger.Error("failed to mark stale deployment for destruction", "pr", rec.PRNumber, "error", err)
				continue
			}
			if err := s.jobs.Enqueue(ctx, &queue.Job{
				Kind:           queue.KindCleanupStale,
				Priority:       queue.PriorityLow,
				PRNumber:       rec.PRNumber,
				RepoFullName:   rec.RepoFullName,
				InstallationID: rec.InstallID,
			}); err != nil {
				logger.Error("failed to enqueue cleanup job", "pr", rec.PRNumber, "error", err)
			}

		case deployment.StatusFailed, deployment.StatusStopped:
			if age <= maxAge {
				continue
			}
			logger.Info("pruning terminal deployment record", "pr", rec.PRNumber, "age", age, "status", rec.Status)
			if err := s.store.Delete(ctx, rec.PRNumber); err != nil {
				logger.Error("failed to prune deployment record", "pr", rec.PRNumber, "error", err)
			}
		}
	}
	return nil
}
