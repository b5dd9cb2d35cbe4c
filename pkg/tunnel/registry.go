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

package tunnel

import (
	"sync"
	"time"
)

// Registry tracks at most one live tunnel [Handle] per PR number, so the
// destroy path and a process-wide shutdown hook can always find and stop
// the tunnel that belongs to a deployment.
type Registry struct {
	mu      sync.Mutex
	handles map[int]*Handle
}

// NewRegistry creates an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{handles: make(map[int]*Handle)}
}

// Put records h as the live tunnel for prNumber, replacing (without
// stopping) any prior entry.
func (r *Registry) Put(prNumber int, h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[prNumber] = h
}

// Stop stops and forgets the tunnel registered for prNumber, if any.
func (r *Registry) Stop(prNumber int, grace time.Duration) error {
	r.mu.Lock()
	h, ok := r.handles[prNumber]
	delete(r.handles, prNumber)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return Stop(h, grace)
}

// StopAll stops every registered tunnel; used on process shutdown.
func (r *Registry) StopAll(grace time.Duration) {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.handles = make(map[int]*Handle)
	r.mu.Unlock()

	for _, h := range handles {
		_ = Stop(h, grace)
	}
}
