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

package githubclient

import "testing"

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "inline_key_valid",
			cfg:  Config{AppID: "123", PrivateKey: "pem-bytes"},
		},
		{
			name: "key_path_valid",
			cfg:  Config{AppID: "123", PrivateKeyPath: "/etc/key.pem"},
		},
		{
			name:    "missing_app_id",
			cfg:     Config{PrivateKey: "pem-bytes"},
			wantErr: true,
		},
		{
			name:    "missing_both_key_forms",
			cfg:     Config{AppID: "123"},
			wantErr: true,
		},
		{
			name:    "both_key_forms_set",
			cfg:     Config{AppID: "123", PrivateKey: "pem-bytes", PrivateKeyPath: "/etc/key.pem"},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
