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

import (
	"errors"
	"fmt"
)

// Config is the subset of controller configuration needed to authenticate
// as a GitHub App and post pull request comments.
type Config struct {
	AppID          string
	InstallationID string
	PrivateKey     string
	PrivateKeyPath string
}

// Validate sanity checks the configuration.
func (c *Config) Validate() error {
	var merr error
	if c.AppID == "" {
		merr = errors.Join(merr, fmt.Errorf("FORGE_APP_ID is required"))
	}
	if c.PrivateKey == "" && c.PrivateKeyPath == "" {
		merr = errors.Join(merr, fmt.Errorf("one of FORGE_PRIVATE_KEY or FORGE_PRIVATE_KEY_PATH is required"))
	}
	if c.PrivateKey != "" && c.PrivateKeyPath != "" {
		merr = errors.Join(merr, fmt.Errorf("only one of FORGE_PRIVATE_KEY, FORGE_PRIVATE_KEY_PATH may be set"))
	}
	return merr
}
