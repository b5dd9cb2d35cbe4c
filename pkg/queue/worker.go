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
	"log/slog"
	"sync"
	"time"

	"github.com/abcxyz/pkg/logging"
)

// Handler executes a claimed job and reports how it went. Implementations
// live in pkg/executor.
type Handler func(ctx context.Context, job *Job) Outcome

// WorkerPoolConfig tunes the polling worker pool.
type WorkerPoolConfig struct {
	Concurrency    int
	PollInterval   time.Duration
	StallInterval  time.Duration
	ShutdownGrace  time.Duration
}

// WorkerPool drains the queue with a fixed number of goroutines, polling
// for ready jobs and periodically requeuing stalled ones.
type WorkerPool struct {
	q       *Queue
	handler Handler
	cfg     WorkerPoolConfig
}

// NewWorkerPool creates a [WorkerPool] that dispatches claimed jobs to handler.
func NewWorkerPool(q *Queue, handler Handler, cfg WorkerPoolConfig) *WorkerPool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.StallInterval <= 0 {
		cfg.StallInterval = 30 * time.Second
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 30 * time.Second
	}
	return &WorkerPool{q: q, handler: handler, cfg: cfg}
}

// Run blocks, draining the queue until ctx is canceled, then waits up to
// ShutdownGrace for in-flight jobs before returning.
func (p *WorkerPool) Run(ctx context.Context) {
	logger := logging.FromContext(ctx)

	go p.stallLoop(ctx)

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p.runWorker(ctx, n)
		}(i + 1)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("worker pool drained")
		return
	case <-ctx.Done():
	}

	select {
	case <-done:
		logger.Info("worker pool drained")
	case <-time.After(p.cfg.ShutdownGrace):
		logger.Warn("worker pool shutdown grace exceeded, exiting with jobs in flight")
	}
}

func (p *WorkerPool) runWorker(ctx context.Context, n int) {
	logger := logging.FromContext(ctx).With("worker", n)
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := p.q.Claim(ctx)
			if errors.Is(err, ErrEmpty) {
				continue
			}
			if err != nil {
				logger.Error("claim failed", "error", err)
				continue
			}
			p.process(ctx, job)
		}
	}
}

func (p *WorkerPool) process(ctx context.Context, job *Job) {
	logger := logging.FromContext(ctx).With("job_id", job.ID, "kind", job.Kind, "pr", job.PRNumber)

	ctx = WithProgressReporter(ctx, func(reportCtx context.Context, pct int) {
		if err := p.q.UpdateProgress(reportCtx, job.ID, pct); err != nil {
			logger.Warn("failed to publish job progress", "progress", pct, "error", err)
		}
	})

	outcome := p.invoke(ctx, job, logger)
	if outcome.Failed() {
		logger.Warn("job attempt failed", "outcome", outcome.Kind, "detail", outcome.Detail, "attempt", job.Attempts)
		if err := p.q.Fail(ctx, job, outcome); err != nil {
			logger.Error("failed to record job failure", "error", err)
		}
		return
	}

	if err := p.q.UpdateProgress(ctx, job.ID, 100); err != nil {
		logger.Warn("failed to publish final job progress", "error", err)
	}
	logger.Info("job completed")
	if err := p.q.Complete(ctx, job, outcome); err != nil {
		logger.Error("failed to record job completion", "error", err)
	}
}

// invoke calls the handler, converting a panic into a transient, retryable
// [Outcome] instead of taking down the whole worker pool. Per the design's
// worker-loop contract, a panic is treated the same as any other unhandled
// failure: mark failed and let the queue schedule a retry.
func (p *WorkerPool) invoke(ctx context.Context, job *Job, logger *slog.Logger) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("job handler panicked", "panic", r)
			outcome = Transient(fmt.Sprintf("panic: %v", r))
		}
	}()
	return p.handler(ctx, job)
}

func (p *WorkerPool) stallLoop(ctx context.Context) {
	logger := logging.FromContext(ctx)
	ticker := time.NewTicker(p.cfg.StallInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.q.RequeueStalled(ctx)
			if err != nil {
				logger.Error("requeue stalled jobs failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("requeued stalled jobs", "count", n)
			}
		}
	}
}
