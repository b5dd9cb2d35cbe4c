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

package sweeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// LockHeldError indicates the lock is already held by another sweeper
// instance.
type LockHeldError struct{}

func (e *LockHeldError) Error() string {
	return "lock is already held by another execution"
}

// Lockable is satisfied by [Lock]; it is the minimal shape the sweep loop
// depends on, which keeps tests able to substitute a fake.
type Lockable interface {
	Acquire(ctx context.Context, ttl time.Duration) error
	Close(ctx context.Context) error
}

// Lock is a Redis SET-NX-PX distributed lock: only one sweeper replica may
// hold it at a time, preventing concurrent sweep runs from racing on the
// same deployment records.
type Lock struct {
	rdb   *redis.Client
	key   string
	token string
}

// NewLock creates a [Lock] on the given redis key.
func NewLock(rdb *redis.Client, key string) *Lock {
	return &Lock{rdb: rdb, key: key, token: uuid.NewString()}
}

// Acquire takes the lock for ttl. Returns a *[LockHeldError] if another
// holder currently has it.
func (l *Lock) Acquire(ctx context.Context, ttl time.Duration) error {
	ok, err := l.rdb.SetNX(ctx, l.key, l.token, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire sweep lock: %w", err)
	}
	if !ok {
		return &LockHeldError{}
	}
	return nil
}

// releaseScript only deletes the key if it still holds our token, so a
// lock we've since lost to TTL expiry (and another holder acquired) is
// never stolen back out from under them.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Close releases the lock if we still hold it.
func (l *Lock) Close(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("failed to release sweep lock: %w", err)
	}
	return nil
}
