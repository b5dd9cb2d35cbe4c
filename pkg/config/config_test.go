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

package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Port:                "3000",
		WebhookSecret:       "whsec",
		PortRangeMin:        5001,
		PortRangeMax:        5999,
		JobConcurrency:      3,
		ForgePrivateKey:     "pem-bytes",
		EncryptionSecret:    "encsec",
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{
			name:    "missing_webhook_secret",
			mutate:  func(c *Config) { c.WebhookSecret = "" },
			wantErr: true,
		},
		{
			name:    "missing_encryption_secret",
			mutate:  func(c *Config) { c.EncryptionSecret = "" },
			wantErr: true,
		},
		{
			name:    "invalid_port",
			mutate:  func(c *Config) { c.Port = "not-a-number" },
			wantErr: true,
		},
		{
			name:    "inverted_port_range",
			mutate:  func(c *Config) { c.PortRangeMin = 6000; c.PortRangeMax = 5000 },
			wantErr: true,
		},
		{
			name:    "empty_port_range",
			mutate:  func(c *Config) { c.PortRangeMin = 5000; c.PortRangeMax = 5000 },
			wantErr: true,
		},
		{
			name:    "zero_job_concurrency",
			mutate:  func(c *Config) { c.JobConcurrency = 0 },
			wantErr: true,
		},
		{
			name: "forge_key_path_instead_of_inline",
			mutate: func(c *Config) {
				c.ForgePrivateKey = ""
				c.ForgePrivateKeyPath = "/etc/envzilla/key.pem"
			},
		},
		{
			name: "missing_forge_key_entirely",
			mutate: func(c *Config) {
				c.ForgePrivateKey = ""
				c.ForgePrivateKeyPath = ""
			},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tc.mutate(cfg)

			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		CloneTimeoutSec:            300,
		BuildTimeoutSec:            600,
		RunTimeoutSec:              60,
		StopTimeoutSec:             30,
		RemoveTimeoutSec:           15,
		TunnelStopGraceMS:          5000,
		TunnelStartupTimeoutMS:     60000,
		ServiceReadyDelayMS:        2000,
		PreviewURLRequestTimeoutMS: 8000,
		QueueBackoffBaseMS:         2000,
		QueueStallTimeoutMS:        60000,
		QueueBackoffMultAsPct:      150,
		DeploymentTTLHours:         168,
		SweepIntervalHours:         6,
		SweepMaxAgeHours:           24,
	}

	cases := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"CloneTimeout", cfg.CloneTimeout(), 300 * time.Second},
		{"BuildTimeout", cfg.BuildTimeout(), 600 * time.Second},
		{"RunTimeout", cfg.RunTimeout(), 60 * time.Second},
		{"StopTimeout", cfg.StopTimeout(), 30 * time.Second},
		{"RemoveTimeout", cfg.RemoveTimeout(), 15 * time.Second},
		{"TunnelStopGrace", cfg.TunnelStopGrace(), 5 * time.Second},
		{"TunnelStartupTimeout", cfg.TunnelStartupTimeout(), 60 * time.Second},
		{"ServiceReadyDelay", cfg.ServiceReadyDelay(), 2 * time.Second},
		{"PreviewURLRequestTimeout", cfg.PreviewURLRequestTimeout(), 8 * time.Second},
		{"QueueBackoffBase", cfg.QueueBackoffBase(), 2 * time.Second},
		{"QueueStallTimeout", cfg.QueueStallTimeout(), 60 * time.Second},
		{"DeploymentTTL", cfg.DeploymentTTL(), 168 * time.Hour},
		{"SweepInterval", cfg.SweepInterval(), 6 * time.Hour},
		{"SweepMaxAge", cfg.SweepMaxAge(), 24 * time.Hour},
	}

	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("%s = %v, want %v", tc.name, tc.got, tc.want)
		}
	}

	if got, want := cfg.QueueBackoffMultiplier(), 1.5; got != want {
		t.Errorf("QueueBackoffMultiplier() = %v, want %v", got, want)
	}
}

func TestRedisAddr(t *testing.T) {
	t.Parallel()

	cfg := &Config{RedisHost: "redis.internal", RedisPort: "6380"}
	if got, want := cfg.RedisAddr(), "redis.internal:6380"; got != want {
		t.Errorf("RedisAddr() = %q, want %q", got, want)
	}
}
