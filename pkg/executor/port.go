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

package executor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/abcxyz/envzilla/pkg/deployment"
)

// ErrNoFreePort is returned when no free port could be found in the
// configured range within the attempt budget.
var ErrNoFreePort = errors.New("no-free-port")

const (
	portProbeConcurrency = 50
	portProbeAttempts    = 200
	portProbeTimeout     = 250 * time.Millisecond
)

// PortAllocator finds and reserves ports in [min, max] for preview
// containers, coordinating with the deployment store's in-use set so two
// concurrent allocations never pick the same port (invariant I5).
type PortAllocator struct {
	store    *deployment.Store
	min, max int
}

// NewPortAllocator creates a [PortAllocator] over the inclusive range.
func NewPortAllocator(store *deployment.Store, min, max int) *PortAllocator {
	return &PortAllocator{store: store, min: min, max: max}
}

// Allocate reserves a free port by randomized probing with bounded
// concurrency, per the design's port allocation algorithm.
func (a *PortAllocator) Allocate(ctx context.Context) (int, error) {
	spanSize := a.max - a.min + 1

	type result struct {
		port int
		ok   bool
	}

	for attempt := 0; attempt < portProbeAttempts; attempt += portProbeConcurrency {
		batch := portProbeConcurrency
		if remaining := portProbeAttempts - attempt; remaining < batch {
			batch = remaining
		}

		results := make(chan result, batch)
		for i := 0; i < batch; i++ {
			port := a.min + rand.Intn(spanSize)
			go func(port int) {
				results <- result{port: port, ok: probePortFree(port)}
			}(port)
		}

		for i := 0; i < batch; i++ {
			r := <-results
			if !r.ok {
				continue
			}
			reserved, err := a.store.ReservePort(ctx, r.port)
			if err != nil {
				return 0, fmt.Errorf("failed to reserve port: %w", err)
			}
			if reserved {
				return r.port, nil
			}
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
	}

	return 0, ErrNoFreePort
}

func probePortFree(port int) bool {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	conn, err := net.DialTimeout("tcp", addr, portProbeTimeout)
	if err != nil {
		return true
	}
	conn.Close()
	return false
}

// Release frees port back to the pool.
func (a *PortAllocator) Release(ctx context.Context, port int) error {
	return a.store.ReleasePort(ctx, port)
}
