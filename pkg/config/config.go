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

// Package config defines the environment-driven configuration for the
// envzilla controller.
package config

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/abcxyz/pkg/cfgloader"
	"github.com/abcxyz/pkg/cli"
	"github.com/sethvargo/go-envconfig"
)

// Config is the set of environment variables recognized by the controller.
type Config struct {
	Port          string `env:"PORT,default=3000"`
	LogLevel      string `env:"LOG_LEVEL,default=info"`
	TrustProxy    bool   `env:"TRUST_PROXY,default=false"`
	CORSOrigin    string `env:"CORS_ORIGIN,default=*"`
	RateLimitMax  int    `env:"RATE_LIMIT_MAX,default=100"`
	WebhookSecret string `env:"WEBHOOK_SECRET,required"`

	RedisHost     string `env:"REDIS_HOST,default=127.0.0.1"`
	RedisPort     string `env:"REDIS_PORT,default=6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB,default=0"`

	JobConcurrency int `env:"JOB_CONCURRENCY,default=3"`

	ContainerHealthTimeoutMS   int `env:"CONTAINER_HEALTH_TIMEOUT_MS,default=5000"`
	PreviewURLAttempts         int `env:"PREVIEW_URL_ATTEMPTS,default=6"`
	PreviewURLDelayMS          int `env:"PREVIEW_URL_DELAY_MS,default=2000"`
	PreviewURLRequestTimeoutMS int `env:"PREVIEW_URL_REQUEST_TIMEOUT_MS,default=8000"`
	ServiceReadyAttempts       int `env:"SERVICE_READY_ATTEMPTS,default=15"`
	ServiceReadyDelayMS        int `env:"SERVICE_READY_DELAY_MS,default=2000"`

	TunnelProtocol         string `env:"TUNNEL_PROTOCOL,default=http2"`
	TunnelStartupTimeoutMS int    `env:"TUNNEL_STARTUP_TIMEOUT_MS,default=60000"`
	TunnelName             string `env:"TUNNEL_NAME"`
	TunnelCredentialsPath  string `env:"TUNNEL_CREDENTIALS_PATH"`
	TunnelBinary           string `env:"TUNNEL_BINARY,default=cloudflared"`

	ForgeAppID          string `env:"FORGE_APP_ID"`
	ForgePrivateKey     string `env:"FORGE_PRIVATE_KEY"`
	ForgePrivateKeyPath string `env:"FORGE_PRIVATE_KEY_PATH"`
	ForgeInstallationID string `env:"FORGE_INSTALLATION_ID"`

	PortRangeMin int `env:"PORT_RANGE_MIN,default=5001"`
	PortRangeMax int `env:"PORT_RANGE_MAX,default=5999"`

	DeploymentTTLHours    int `env:"DEPLOYMENT_TTL_HOURS,default=168"`
	SweepIntervalHours    int `env:"SWEEP_INTERVAL_HOURS,default=6"`
	SweepMaxAgeHours      int `env:"SWEEP_MAX_AGE_HOURS,default=24"`
	QueueMaxAttempts      int `env:"QUEUE_MAX_ATTEMPTS,default=3"`
	QueueBackoffBaseMS    int `env:"QUEUE_BACKOFF_BASE_MS,default=2000"`
	QueueStallTimeoutMS   int `env:"QUEUE_STALL_TIMEOUT_MS,default=60000"`
	QueueBackoffMultAsPct int `env:"QUEUE_BACKOFF_MULTIPLIER_PCT,default=200"` // e.g. 200 == x2.0, 150 == x1.5

	EncryptionSecret string `env:"ENCRYPTION_SECRET,required"`

	DockerfilePath    string `env:"DOCKERFILE_PATH,default=Dockerfile"`
	ContainerPort     int    `env:"CONTAINER_PORT,default=3000"`
	CloneTimeoutSec   int    `env:"CLONE_TIMEOUT_SEC,default=300"`
	BuildTimeoutSec   int    `env:"BUILD_TIMEOUT_SEC,default=600"`
	RunTimeoutSec     int    `env:"RUN_TIMEOUT_SEC,default=60"`
	StopTimeoutSec    int    `env:"STOP_TIMEOUT_SEC,default=30"`
	RemoveTimeoutSec  int    `env:"REMOVE_TIMEOUT_SEC,default=15"`
	TunnelStopGraceMS int    `env:"TUNNEL_STOP_GRACE_MS,default=5000"`
}

// QueueBackoffMultiplier returns the configured backoff multiplier as a float.
func (c *Config) QueueBackoffMultiplier() float64 {
	return float64(c.QueueBackoffMultAsPct) / 100.0
}

// DeploymentTTL returns the deployment record TTL as a [time.Duration].
func (c *Config) DeploymentTTL() time.Duration {
	return time.Duration(c.DeploymentTTLHours) * time.Hour
}

// SweepInterval returns the sweeper's run interval.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalHours) * time.Hour
}

// SweepMaxAge returns the age threshold past which a deployment is swept.
func (c *Config) SweepMaxAge() time.Duration {
	return time.Duration(c.SweepMaxAgeHours) * time.Hour
}

// RedisAddr returns the host:port address for the redis client.
func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

// CloneTimeout returns the git clone step's deadline.
func (c *Config) CloneTimeout() time.Duration {
	return time.Duration(c.CloneTimeoutSec) * time.Second
}

// BuildTimeout returns the image build step's deadline.
func (c *Config) BuildTimeout() time.Duration {
	return time.Duration(c.BuildTimeoutSec) * time.Second
}

// RunTimeout returns the container run step's deadline.
func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSec) * time.Second
}

// StopTimeout returns the graceful container stop deadline.
func (c *Config) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutSec) * time.Second
}

// RemoveTimeout returns the forced container remove deadline.
func (c *Config) RemoveTimeout() time.Duration {
	return time.Duration(c.RemoveTimeoutSec) * time.Second
}

// TunnelStopGrace returns the SIGTERM-to-SIGKILL grace period for tunnels.
func (c *Config) TunnelStopGrace() time.Duration {
	return time.Duration(c.TunnelStopGraceMS) * time.Millisecond
}

// TunnelStartupTimeout returns the tunnel startup deadline.
func (c *Config) TunnelStartupTimeout() time.Duration {
	return time.Duration(c.TunnelStartupTimeoutMS) * time.Millisecond
}

// ServiceReadyDelay returns the delay between readiness probe attempts.
func (c *Config) ServiceReadyDelay() time.Duration {
	return time.Duration(c.ServiceReadyDelayMS) * time.Millisecond
}

// PreviewURLRequestTimeout returns the per-request timeout used while
// polling the container's own port for readiness.
func (c *Config) PreviewURLRequestTimeout() time.Duration {
	return time.Duration(c.PreviewURLRequestTimeoutMS) * time.Millisecond
}

// QueueBackoffBase returns the base delay for queue retry backoff.
func (c *Config) QueueBackoffBase() time.Duration {
	return time.Duration(c.QueueBackoffBaseMS) * time.Millisecond
}

// QueueStallTimeout returns the visibility timeout for claimed jobs.
func (c *Config) QueueStallTimeout() time.Duration {
	return time.Duration(c.QueueStallTimeoutMS) * time.Millisecond
}

// Validate validates the config after load.
func (c *Config) Validate() error {
	if c.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required")
	}

	p, err := strconv.Atoi(c.Port)
	if err != nil {
		if _, err := strconv.Atoi(c.Port); err != nil {
			return fmt.Errorf("invalid PORT value %q: %w", c.Port, err)
		}
	}
	_ = p

	if c.PortRangeMin <= 0 || c.PortRangeMax <= c.PortRangeMin {
		return fmt.Errorf("PORT_RANGE_MIN/PORT_RANGE_MAX must form a non-empty range")
	}

	if c.JobConcurrency <= 0 {
		return fmt.Errorf("JOB_CONCURRENCY must be greater than 0")
	}

	if c.ForgePrivateKey == "" && c.ForgePrivateKeyPath == "" {
		return fmt.Errorf("one of FORGE_PRIVATE_KEY or FORGE_PRIVATE_KEY_PATH is required")
	}

	if c.EncryptionSecret == "" {
		return fmt.Errorf("ENCRYPTION_SECRET is required")
	}

	return nil
}

// NewConfig creates a new Config from environment variables.
func NewConfig(ctx context.Context) (*Config, error) {
	return newConfig(ctx, envconfig.OsLookuper())
}

func newConfig(ctx context.Context, lu envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := cfgloader.Load(ctx, &cfg, cfgloader.WithLookuper(lu)); err != nil {
		return nil, fmt.Errorf("failed to parse controller config: %w", err)
	}
	return &cfg, nil
}

// ToFlags binds the config to the given [cli.FlagSet] and returns it.
func (c *Config) ToFlags(set *cli.FlagSet) *cli.FlagSet {
	f := set.NewSection("SERVER OPTIONS")

	f.StringVar(&cli.StringVar{
		Name:    "port",
		Target:  &c.Port,
		EnvVar:  "PORT",
		Default: "3000",
		Usage:   `The port the controller listens on.`,
	})

	f.StringVar(&cli.StringVar{
		Name:    "log-level",
		Target:  &c.LogLevel,
		EnvVar:  "LOG_LEVEL",
		Default: "info",
		Usage:   `The logging level.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "webhook-secret",
		Target: &c.WebhookSecret,
		EnvVar: "WEBHOOK_SECRET",
		Usage:  `The shared secret used to verify inbound webhook signatures.`,
	})

	r := set.NewSection("REDIS OPTIONS")

	r.StringVar(&cli.StringVar{
		Name:    "redis-host",
		Target:  &c.RedisHost,
		EnvVar:  "REDIS_HOST",
		Default: "127.0.0.1",
		Usage:   `The redis host backing the deployment store and job queue.`,
	})

	r.StringVar(&cli.StringVar{
		Name:    "redis-port",
		Target:  &c.RedisPort,
		EnvVar:  "REDIS_PORT",
		Default: "6379",
		Usage:   `The redis port.`,
	})

	r.StringVar(&cli.StringVar{
		Name:   "redis-password",
		Target: &c.RedisPassword,
		EnvVar: "REDIS_PASSWORD",
		Usage:  `The redis password, if required.`,
	})

	r.IntVar(&cli.IntVar{
		Name:    "redis-db",
		Target:  &c.RedisDB,
		EnvVar:  "REDIS_DB",
		Default: 0,
		Usage:   `The redis logical database index.`,
	})

	j := set.NewSection("JOB QUEUE OPTIONS")

	j.IntVar(&cli.IntVar{
		Name:    "job-concurrency",
		Target:  &c.JobConcurrency,
		EnvVar:  "JOB_CONCURRENCY",
		Default: 3,
		Usage:   `The number of worker goroutines processing queued jobs.`,
	})

	t := set.NewSection("TUNNEL OPTIONS")

	t.StringVar(&cli.StringVar{
		Name:    "tunnel-protocol",
		Target:  &c.TunnelProtocol,
		EnvVar:  "TUNNEL_PROTOCOL",
		Default: "http2",
		Usage:   `The tunnel protocol variant to request.`,
	})

	g := set.NewSection("FORGE OPTIONS")

	g.StringVar(&cli.StringVar{
		Name:   "forge-app-id",
		Target: &c.ForgeAppID,
		EnvVar: "FORGE_APP_ID",
		Usage:  `The code-forge App ID used to post PR comments.`,
	})

	g.StringVar(&cli.StringVar{
		Name:   "forge-private-key",
		Target: &c.ForgePrivateKey,
		EnvVar: "FORGE_PRIVATE_KEY",
		Usage:  `The code-forge App private key, PEM encoded.`,
	})

	g.StringVar(&cli.StringVar{
		Name:   "forge-private-key-path",
		Target: &c.ForgePrivateKeyPath,
		EnvVar: "FORGE_PRIVATE_KEY_PATH",
		Usage:  `A path to the code-forge App private key, PEM encoded.`,
	})

	e := set.NewSection("EXECUTOR OPTIONS")

	e.StringVar(&cli.StringVar{
		Name:    "encryption-secret",
		Target:  &c.EncryptionSecret,
		EnvVar:  "ENCRYPTION_SECRET",
		Usage:   `The secret used to envelope-encrypt job queue payload fields at rest.`,
	})

	e.StringVar(&cli.StringVar{
		Name:    "dockerfile-path",
		Target:  &c.DockerfilePath,
		EnvVar:  "DOCKERFILE_PATH",
		Default: "Dockerfile",
		Usage:   `The Dockerfile path, relative to the cloned repository root.`,
	})

	e.IntVar(&cli.IntVar{
		Name:    "container-port",
		Target:  &c.ContainerPort,
		EnvVar:  "CONTAINER_PORT",
		Default: 3000,
		Usage:   `The port the built image's process listens on inside the container.`,
	})

	e.IntVar(&cli.IntVar{
		Name:    "port-range-min",
		Target:  &c.PortRangeMin,
		EnvVar:  "PORT_RANGE_MIN",
		Default: 5001,
		Usage:   `The lowest host port the allocator may assign.`,
	})

	e.IntVar(&cli.IntVar{
		Name:    "port-range-max",
		Target:  &c.PortRangeMax,
		EnvVar:  "PORT_RANGE_MAX",
		Default: 5999,
		Usage:   `The highest host port the allocator may assign.`,
	})

	return set
}
