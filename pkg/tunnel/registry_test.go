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

import "testing"

func TestRegistryStopUnknownPR(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.Stop(99, 0); err != nil {
		t.Errorf("Stop(unregistered) = %v, want nil", err)
	}
}

func TestRegistryPutAndStopForgets(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Put(7, &Handle{})

	if _, ok := r.handles[7]; !ok {
		t.Fatal("expected handle to be registered for PR 7")
	}

	if err := r.Stop(7, 0); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if _, ok := r.handles[7]; ok {
		t.Error("expected handle to be forgotten after Stop")
	}
}

func TestRegistryStopAllClearsEverything(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Put(1, &Handle{})
	r.Put(2, &Handle{})
	r.Put(3, &Handle{})

	r.StopAll(0)

	if len(r.handles) != 0 {
		t.Errorf("len(handles) = %d after StopAll, want 0", len(r.handles))
	}
}

func TestRegistryPutReplacesWithoutStopping(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	first := &Handle{}
	second := &Handle{}

	r.Put(4, first)
	r.Put(4, second)

	if r.handles[4] != second {
		t.Error("expected second Put to replace the first handle")
	}
}
