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

package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrJobNotFound is returned by [Queue.JobStatus] when id names no
// outstanding job: it was never enqueued, or it already reached a terminal
// outcome and its record was removed.
var ErrJobNotFound = errors.New("job-not-found")

// JobStatus is the admin-facing view of a single job's progress.
type JobStatus struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"kind"`
	PRNumber int    `json:"pr_number"`
	Attempts int    `json:"attempts"`
	Progress int    `json:"progress"`
}

// JobStatus reports the current attempt count and progress for id.
func (q *Queue) JobStatus(ctx context.Context, id string) (*JobStatus, error) {
	job, err := q.get(ctx, id)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &JobStatus{
		ID:       job.ID,
		Kind:     job.Kind,
		PRNumber: job.PRNumber,
		Attempts: job.Attempts,
		Progress: job.Progress,
	}, nil
}

// UpdateProgress persists pct as job id's progress. It is a no-op if the
// job has already reached a terminal outcome and been removed.
func (q *Queue) UpdateProgress(ctx context.Context, id string, pct int) error {
	job, err := q.get(ctx, id)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}
	job.Progress = pct
	if err := q.save(ctx, job); err != nil {
		return fmt.Errorf("failed to publish progress for job %s: %w", id, err)
	}
	return nil
}

// progressReporterKey is the context key a [*WorkerPool] attaches its
// progress reporter under, so a [Handler] can call [ReportProgress]
// without needing a reference back to the queue or worker pool.
type progressReporterKey struct{}

// ProgressReporter publishes pct (0..100) progress for the job driving ctx.
type ProgressReporter func(ctx context.Context, pct int)

// WithProgressReporter attaches report to ctx for [ReportProgress] to find.
func WithProgressReporter(ctx context.Context, report ProgressReporter) context.Context {
	return context.WithValue(ctx, progressReporterKey{}, report)
}

// ReportProgress publishes pct (0..100) progress for the job driving ctx.
// It is a no-op if ctx carries no reporter, which is the case whenever a
// [Handler] is invoked directly (e.g. in tests) rather than through a
// [WorkerPool].
func ReportProgress(ctx context.Context, pct int) {
	report, ok := ctx.Value(progressReporterKey{}).(ProgressReporter)
	if !ok || report == nil {
		return
	}
	report(ctx, pct)
}
