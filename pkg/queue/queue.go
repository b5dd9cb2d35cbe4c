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
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix     = "envzilla:jobs:"
	readyKeyPrefix   = "envzilla:queue:ready:"
	processingKey    = "envzilla:queue:processing"
	historyCompleted = "envzilla:queue:history:completed"
	historyFailed    = "envzilla:queue:history:failed"

	// historyCompletedCap and historyFailedCap bound the two history lists.
	historyCompletedCap = 50
	historyFailedCap    = 100
)

// priorityTiers lists the priority sorted sets, highest priority first.
var priorityTiers = []Priority{PriorityHigh, PriorityNormal, PriorityLow}

// ErrEmpty is returned by Claim when there is no ready work.
var ErrEmpty = errors.New("queue-empty")

// Config tunes retry backoff and stall detection.
type Config struct {
	MaxAttempts        int
	BackoffBase        time.Duration
	BackoffMultiplier  float64
	StallTimeout       time.Duration
}

// Queue is the Redis-backed durable job queue.
type Queue struct {
	rdb *redis.Client
	cfg Config
}

// New creates a new [Queue] backed by rdb.
func New(rdb *redis.Client, cfg Config) *Queue {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 2.0
	}
	return &Queue{rdb: rdb, cfg: cfg}
}

func readyKey(p Priority) string {
	return readyKeyPrefix + strconv.Itoa(int(p))
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}

// Enqueue stores job and makes it immediately eligible for [Queue.Claim].
// If job.ID is empty a new id is generated.
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = q.cfg.MaxAttempts
	}
	job.EnqueuedAt = time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = job.EnqueuedAt
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), payload, 0)
	pipe.ZAdd(ctx, readyKey(job.Priority), redis.Z{
		Score:  float64(job.EnqueuedAt.Unix()),
		Member: job.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// claimScript atomically pops the lowest-scoring ready member whose score
// is <= now and moves it into the processing set with a visibility
// deadline, returning the claimed id (or nil if none are due).
var claimScript = redis.NewScript(`
local ready = KEYS[1]
local processing = KEYS[2]
local now = tonumber(ARGV[1])
local deadline = tonumber(ARGV[2])

local ids = redis.call("ZRANGEBYSCORE", ready, "-inf", now, "LIMIT", 0, 1)
if #ids == 0 then
  return nil
end

local id = ids[1]
redis.call("ZREM", ready, id)
redis.call("ZADD", processing, deadline, id)
return id
`)

// Claim pulls the next eligible job, highest priority first, and marks it
// processing with a visibility timeout. Returns [ErrEmpty] if nothing is
// ready.
func (q *Queue) Claim(ctx context.Context) (*Job, error) {
	now := time.Now().UTC()
	deadline := now.Add(q.cfg.StallTimeout)

	for _, p := range priorityTiers {
		res, err := claimScript.Run(ctx, q.rdb, []string{readyKey(p), processingKey},
			now.Unix(), deadline.Unix()).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to claim job: %w", err)
		}
		id, ok := res.(string)
		if !ok || id == "" {
			continue
		}

		job, err := q.get(ctx, id)
		if err != nil {
			return nil, err
		}
		job.Attempts++
		if err := q.save(ctx, job); err != nil {
			return nil, err
		}
		return job, nil
	}
	return nil, ErrEmpty
}

func (q *Queue) get(ctx context.Context, id string) (*Job, error) {
	data, err := q.rdb.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to read job %s: %w", id, err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

func (q *Queue) save(ctx context.Context, job *Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}
	if err := q.rdb.Set(ctx, jobKey(job.ID), payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

// Complete records a successful outcome, removes the job from the
// processing set, and appends a capped history entry.
func (q *Queue) Complete(ctx context.Context, job *Job, outcome Outcome) error {
	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, processingKey, job.ID)
	pipe.Del(ctx, jobKey(job.ID))
	pipe.LPush(ctx, historyCompleted, historyEntry(job, outcome))
	pipe.LTrim(ctx, historyCompleted, 0, historyCompletedCap-1)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to record completed job %s: %w", job.ID, err)
	}
	return nil
}

// Fail records a failed attempt. Retryable outcomes under MaxAttempts are
// rescheduled into the ready set with exponential backoff; otherwise the
// job is moved to the failed history and dropped.
func (q *Queue) Fail(ctx context.Context, job *Job, outcome Outcome) error {
	if outcome.Retryable && job.Attempts < job.MaxAttempts {
		delay := q.backoff(job.Attempts)
		pipe := q.rdb.TxPipeline()
		pipe.ZRem(ctx, processingKey, job.ID)
		pipe.ZAdd(ctx, readyKey(job.Priority), redis.Z{
			Score:  float64(time.Now().UTC().Add(delay).Unix()),
			Member: job.ID,
		})
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to reschedule job %s: %w", job.ID, err)
		}
		return q.save(ctx, job)
	}

	pipe := q.rdb.TxPipeline()
	pipe.ZRem(ctx, processingKey, job.ID)
	pipe.Del(ctx, jobKey(job.ID))
	pipe.LPush(ctx, historyFailed, historyEntry(job, outcome))
	pipe.LTrim(ctx, historyFailed, 0, historyFailedCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record failed job %s: %w", job.ID, err)
	}
	return nil
}

// backoff computes the delay before attempts+1, given as a pure function of
// the attempt count rather than an in-process stateful iterator: a job's
// retry schedule is persisted in Redis and must still be computable after a
// controller restart, when nothing in memory remembers how many times
// go-retry's Backoff.Next() has been called. go-retry's own iterators
// (used for the in-process comment-post retry loop in pkg/githubclient)
// don't fit that requirement, and its NewExponential hardcodes a factor-2
// growth rather than the configurable BackoffMultiplier this queue exposes.
func (q *Queue) backoff(attempts int) time.Duration {
	mult := math.Pow(q.cfg.BackoffMultiplier, float64(attempts-1))
	return time.Duration(float64(q.cfg.BackoffBase) * mult)
}

func historyEntry(job *Job, outcome Outcome) string {
	entry := struct {
		ID        string      `json:"id"`
		Kind      Kind        `json:"kind"`
		PRNumber  int         `json:"pr_number"`
		Attempts  int         `json:"attempts"`
		Outcome   OutcomeKind `json:"outcome"`
		Detail    string      `json:"detail"`
		FinishedAt time.Time  `json:"finished_at"`
	}{
		ID:         job.ID,
		Kind:       job.Kind,
		PRNumber:   job.PRNumber,
		Attempts:   job.Attempts,
		Outcome:    outcome.Kind,
		Detail:     outcome.Detail,
		FinishedAt: time.Now().UTC(),
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf(`{"id":%q,"marshal_error":true}`, job.ID)
	}
	return string(b)
}

// RequeueStalled moves jobs whose visibility deadline has passed back into
// their ready set, incrementing nothing (the claim that follows will bump
// Attempts). It returns the number of jobs requeued.
func (q *Queue) RequeueStalled(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	ids, err := q.rdb.ZRangeByScore(ctx, processingKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to scan processing set: %w", err)
	}

	var requeued int
	for _, id := range ids {
		job, err := q.get(ctx, id)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				q.rdb.ZRem(ctx, processingKey, id)
				continue
			}
			return requeued, err
		}

		pipe := q.rdb.TxPipeline()
		pipe.ZRem(ctx, processingKey, id)
		pipe.ZAdd(ctx, readyKey(job.Priority), redis.Z{Score: float64(now.Unix()), Member: id})
		if _, err := pipe.Exec(ctx); err != nil {
			return requeued, fmt.Errorf("failed to requeue stalled job %s: %w", id, err)
		}
		requeued++
	}
	return requeued, nil
}

// Stats summarizes queue depth for the admin surface.
type Stats struct {
	Ready      map[Priority]int64 `json:"ready"`
	Processing int64              `json:"processing"`
}

// Stats reports the current queue depth per priority tier plus the number
// of in-flight jobs.
func (q *Queue) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Ready: make(map[Priority]int64, len(priorityTiers))}
	for _, p := range priorityTiers {
		n, err := q.rdb.ZCard(ctx, readyKey(p)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to count ready jobs: %w", err)
		}
		stats.Ready[p] = n
	}
	n, err := q.rdb.ZCard(ctx, processingKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to count processing jobs: %w", err)
	}
	stats.Processing = n
	return stats, nil
}
