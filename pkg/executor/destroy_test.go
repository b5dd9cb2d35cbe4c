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

import "testing"

func TestValidContainerID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		id   string
		want bool
	}{
		{name: "full_64_hex", id: "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"[:64], want: true},
		{name: "short_prefix", id: "a1b2c3", want: true},
		{name: "minimum_length", id: "a1b", want: true},
		{name: "too_short", id: "a1", want: false},
		{name: "empty", id: "", want: false},
		{name: "non_hex_chars", id: "xyz123", want: false},
		{name: "too_long", id: "a1b2c3d4e5f60718293a4b5c6d7e8f9012345678901234567890123456789012345", want: false},
		{name: "contains_slash", id: "../../etc/passwd", want: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := validContainerID(tc.id); got != tc.want {
				t.Errorf("validContainerID(%q) = %v, want %v", tc.id, got, tc.want)
			}
		})
	}
}
