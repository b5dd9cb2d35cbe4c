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
	"testing"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{name: "fresh_to_queued", from: "", to: StatusQueued, want: true},
		{name: "failed_to_queued_retry", from: StatusFailed, to: StatusQueued, want: true},
		{name: "queued_to_building", from: StatusQueued, to: StatusBuilding, want: true},
		{name: "building_to_running", from: StatusBuilding, to: StatusRunning, want: true},
		{name: "running_to_destroying", from: StatusRunning, to: StatusDestroying, want: true},
		{name: "destroying_to_stopped", from: StatusDestroying, to: StatusStopped, want: true},
		{name: "running_to_building_illegal", from: StatusRunning, to: StatusBuilding, want: false},
		{name: "stopped_to_running_illegal", from: StatusStopped, to: StatusRunning, want: false},
		{name: "queued_to_stopped_illegal", from: StatusQueued, to: StatusStopped, want: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := CanTransition(tc.from, tc.to); got != tc.want {
				t.Errorf("CanTransition(%q, %q) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestLegalPredecessorsIsACopy(t *testing.T) {
	t.Parallel()

	preds := LegalPredecessors(StatusBuilding)
	if len(preds) != 1 || preds[0] != StatusQueued {
		t.Fatalf("LegalPredecessors(building) = %v, want [queued]", preds)
	}

	preds[0] = StatusRunning
	if !CanTransition(StatusQueued, StatusBuilding) {
		t.Error("mutating the returned slice corrupted the internal predecessor table")
	}
}

func TestRecordValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		rec     Record
		wantErr bool
	}{
		{
			name: "running_with_container_and_port",
			rec:  Record{Status: StatusRunning, ContainerID: "abc123", HostPort: 5001},
		},
		{
			name:    "running_without_container_id",
			rec:     Record{Status: StatusRunning, HostPort: 5001},
			wantErr: true,
		},
		{
			name:    "running_without_host_port",
			rec:     Record{Status: StatusRunning, ContainerID: "abc123"},
			wantErr: true,
		},
		{
			name: "queued_without_container_is_fine",
			rec:  Record{Status: StatusQueued},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := tc.rec.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
