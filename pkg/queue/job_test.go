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

import "testing"

func TestOutcomeConstructors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		outcome       Outcome
		wantKind      OutcomeKind
		wantRetryable bool
		wantFailed    bool
	}{
		{
			name:       "ok",
			outcome:    OK(),
			wantKind:   OutcomeOK,
			wantFailed: false,
		},
		{
			name:          "transient",
			outcome:       Transient("docker daemon unreachable"),
			wantKind:      OutcomeErrTransient,
			wantRetryable: true,
			wantFailed:    true,
		},
		{
			name:       "permanent",
			outcome:    Permanent("invalid container id"),
			wantKind:   OutcomeErrPermanent,
			wantFailed: true,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if tc.outcome.Kind != tc.wantKind {
				t.Errorf("Kind = %v, want %v", tc.outcome.Kind, tc.wantKind)
			}
			if tc.outcome.Retryable != tc.wantRetryable {
				t.Errorf("Retryable = %v, want %v", tc.outcome.Retryable, tc.wantRetryable)
			}
			if tc.outcome.Failed() != tc.wantFailed {
				t.Errorf("Failed() = %v, want %v", tc.outcome.Failed(), tc.wantFailed)
			}
		})
	}
}
