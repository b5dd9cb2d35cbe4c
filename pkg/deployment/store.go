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

package deployment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces every deployment record key, per the persisted
// state layout in the design document.
const keyPrefix = "envzilla:deployments:"
const portsInUseKey = "envzilla:ports:inuse"

// ErrStateConflict is returned when a caller attempts a status transition
// that is not legal from the record's currently observed status.
var ErrStateConflict = errors.New("state-conflict")

// ErrNotFound is returned when no record exists for the given PR number.
var ErrNotFound = errors.New("deployment-not-found")

// Store is the authoritative key-value store for deployment records.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore creates a new [Store] backed by the given redis client.
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func recordKey(prNumber int) string {
	return keyPrefix + strconv.Itoa(prNumber)
}

// Get reads the record for prNumber. Returns ErrNotFound if absent.
func (s *Store) Get(ctx context.Context, prNumber int) (*Record, error) {
	data, err := s.rdb.Get(ctx, recordKey(prNumber)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read deployment record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal deployment record: %w", err)
	}
	return &rec, nil
}

// casScript performs an atomic read-check-write: it reads the JSON blob at
// KEYS[1], decodes its "status" field, verifies it is present in the list
// of legal predecessors (ARGV[1] through ARGV[#ARGV-2], one status per
// argument), and only then overwrites the
// key with ARGV[last] (the new record JSON), refreshing the TTL (ARGV
// second-to-last, seconds). This gives the deployment record the same
// read-modify-write atomicity as a SQL `UPDATE ... WHERE status IN (...)`
// without a Redis transaction round trip.
var casScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
local curStatus = ""
if current then
  local ok, decoded = pcall(cjson.decode, current)
  if ok and decoded["status"] then
    curStatus = decoded["status"]
  end
end

local allowed = false
for i = 1, #ARGV - 2 do
  if ARGV[i] == curStatus then
    allowed = true
    break
  end
end

if not allowed then
  return {err = "state-conflict:" .. curStatus}
end

local ttl = tonumber(ARGV[#ARGV - 1])
redis.call("SET", KEYS[1], ARGV[#ARGV], "EX", ttl)
return "OK"
`)

// CompareAndSwap writes newRecord to the store only if the currently
// stored record's status is one of allowedFrom (or the record doesn't
// exist, when allowedFrom contains ""). On success, the record's
// UpdatedAt (and CreatedAt, if new) is stamped with now.
func (s *Store) CompareAndSwap(ctx context.Context, prNumber int, allowedFrom []Status, mutate func(rec *Record), now time.Time) (*Record, error) {
	existing, err := s.Get(ctx, prNumber)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	var rec Record
	if existing != nil {
		rec = *existing
	} else {
		rec = Record{PRNumber: prNumber, CreatedAt: now}
	}
	mutate(&rec)
	rec.UpdatedAt = now
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(&rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal deployment record: %w", err)
	}

	args := make([]any, 0, len(allowedFrom)+2)
	for _, st := range allowedFrom {
		args = append(args, string(st))
	}
	args = append(args, strconv.Itoa(int(s.ttl.Seconds())), string(payload))

	if err := casScript.Run(ctx, s.rdb, []string{recordKey(prNumber)}, args...).Err(); err != nil {
		if isStateConflict(err) {
			return nil, fmt.Errorf("%w: %s", ErrStateConflict, err.Error())
		}
		return nil, fmt.Errorf("failed to write deployment record: %w", err)
	}

	return &rec, nil
}

func isStateConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return len(msg) >= len("state-conflict") && msg[:len("state-conflict")] == "state-conflict"
}

// Delete removes the record for prNumber (used only by the destroy
// executor and the sweeper, per invariant I3).
func (s *Store) Delete(ctx context.Context, prNumber int) error {
	if err := s.rdb.Del(ctx, recordKey(prNumber)).Err(); err != nil {
		return fmt.Errorf("failed to delete deployment record: %w", err)
	}
	return nil
}

// List scans all deployment records currently in the store.
func (s *Store) List(ctx context.Context) ([]*Record, error) {
	var records []*Record
	iter := s.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.rdb.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read deployment record during scan: %w", err)
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal deployment record during scan: %w", err)
		}
		records = append(records, &rec)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan deployment records: %w", err)
	}
	return records, nil
}

// ReservePort atomically adds port to the in-use set (invariant I5) and
// reports whether it was newly reserved.
func (s *Store) ReservePort(ctx context.Context, port int) (bool, error) {
	n, err := s.rdb.SAdd(ctx, portsInUseKey, port).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve port: %w", err)
	}
	return n == 1, nil
}

// ReleasePort removes port from the in-use set.
func (s *Store) ReleasePort(ctx context.Context, port int) error {
	if err := s.rdb.SRem(ctx, portsInUseKey, port).Err(); err != nil {
		return fmt.Errorf("failed to release port: %w", err)
	}
	return nil
}
