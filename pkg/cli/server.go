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

package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/abcxyz/envzilla/pkg/config"
	"github.com/abcxyz/envzilla/pkg/deployment"
	"github.com/abcxyz/envzilla/pkg/dispatch"
	"github.com/abcxyz/envzilla/pkg/executor"
	"github.com/abcxyz/envzilla/pkg/githubclient"
	"github.com/abcxyz/envzilla/pkg/health"
	"github.com/abcxyz/envzilla/pkg/ingress"
	"github.com/abcxyz/envzilla/pkg/queue"
	"github.com/abcxyz/envzilla/pkg/sweeper"
	"github.com/abcxyz/envzilla/pkg/tunnel"
	"github.com/abcxyz/envzilla/pkg/version"
	"github.com/abcxyz/pkg/cli"
	"github.com/abcxyz/pkg/logging"
	"github.com/abcxyz/pkg/renderer"
	"github.com/abcxyz/pkg/serving"
	dockerclient "github.com/docker/docker/client"
	"github.com/redis/go-redis/v9"
)

var _ cli.Command = (*ServerStartCommand)(nil)

// ServerStartCommand starts the preview-environment controller: the signed
// webhook endpoint, the deployment/admin read endpoints, the job worker
// pool, and the background sweeper.
type ServerStartCommand struct {
	cli.BaseCommand

	cfg *config.Config

	// testFlagSetOpts is only used for testing.
	testFlagSetOpts []cli.Option
}

func (c *ServerStartCommand) Desc() string {
	return `Start the envzilla preview-environment controller`
}

func (c *ServerStartCommand) Help() string {
	return `
Usage: {{ COMMAND }} [options]
  Start the envzilla preview-environment controller.
`
}

func (c *ServerStartCommand) Flags() *cli.FlagSet {
	c.cfg = &config.Config{}
	set := cli.NewFlagSet(c.testFlagSetOpts...)
	return c.cfg.ToFlags(set)
}

func (c *ServerStartCommand) Run(ctx context.Context, args []string) error {
	server, mux, cleanup, err := c.RunUnstarted(ctx, args)
	if err != nil {
		return err
	}
	defer cleanup()

	return server.StartHTTPHandler(ctx, mux)
}

// RunUnstarted wires every component and returns the serving infrastructure
// without starting to accept connections, so tests can drive the mux
// directly. The returned cleanup func must be called once the server has
// stopped accepting new work.
func (c *ServerStartCommand) RunUnstarted(ctx context.Context, args []string) (*serving.Server, http.Handler, func(), error) {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to parse flags: %w", err)
	}
	args = f.Args()
	if len(args) > 0 {
		return nil, nil, nil, fmt.Errorf("unexpected arguments: %q", args)
	}

	logger := logging.FromContext(ctx)
	logger.Debug("server starting",
		"name", version.Name,
		"commit", version.Commit,
		"version", version.Version)

	if err := c.cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Debug("loaded configuration", "port", c.cfg.Port, "redis_addr", c.cfg.RedisAddr())

	h, err := renderer.New(ctx, nil,
		renderer.WithOnError(func(err error) {
			logger.Error("failed to render response", "error", err)
		}))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create renderer: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     c.cfg.RedisAddr(),
		Password: c.cfg.RedisPassword,
		DB:       c.cfg.RedisDB,
	})

	docker, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create docker engine client: %w", err)
	}

	gh, err := githubclient.New(ctx, &githubclient.Config{
		AppID:          c.cfg.ForgeAppID,
		InstallationID: c.cfg.ForgeInstallationID,
		PrivateKey:     c.cfg.ForgePrivateKey,
		PrivateKeyPath: c.cfg.ForgePrivateKeyPath,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create code-forge client: %w", err)
	}

	store := deployment.NewStore(rdb, c.cfg.DeploymentTTL())
	jobs := queue.New(rdb, queue.Config{
		MaxAttempts:       c.cfg.QueueMaxAttempts,
		BackoffBase:       c.cfg.QueueBackoffBase(),
		BackoffMultiplier: c.cfg.QueueBackoffMultiplier(),
		StallTimeout:      c.cfg.QueueStallTimeout(),
	})
	dispatcher := dispatch.New(store, jobs, c.cfg.EncryptionSecret)
	checker := health.NewChecker(rdb, docker, store)

	ports := executor.NewPortAllocator(store, c.cfg.PortRangeMin, c.cfg.PortRangeMax)
	dkr := executor.NewDocker(docker)
	tunnels := tunnel.NewRegistry()

	buildExec := executor.NewBuildExecutor(dkr, ports, store, gh, tunnels, executor.BuildConfig{
		DockerfilePath:       c.cfg.DockerfilePath,
		ContainerPort:        c.cfg.ContainerPort,
		PortRangeMin:         c.cfg.PortRangeMin,
		PortRangeMax:         c.cfg.PortRangeMax,
		CloneTimeout:         c.cfg.CloneTimeout(),
		BuildTimeout:         c.cfg.BuildTimeout(),
		RunTimeout:           c.cfg.RunTimeout(),
		ReadyAttempts:        c.cfg.ServiceReadyAttempts,
		ReadyDelay:           c.cfg.ServiceReadyDelay(),
		ReadyRequestTimeout:  c.cfg.PreviewURLRequestTimeout(),
		PreviewURLAttempts:   c.cfg.PreviewURLAttempts,
		PreviewURLDelay:      time.Duration(c.cfg.PreviewURLDelayMS) * time.Millisecond,
		PreviewURLTimeout:    c.cfg.PreviewURLRequestTimeout(),
		TunnelBinary:         c.cfg.TunnelBinary,
		TunnelStartupTimeout: c.cfg.TunnelStartupTimeout(),
		TunnelStopGrace:      c.cfg.TunnelStopGrace(),
	}, c.cfg.EncryptionSecret)

	destroyExec := executor.NewDestroyExecutor(dkr, ports, store, tunnels, executor.DestroyConfig{
		StopTimeout:     c.cfg.StopTimeout(),
		RemoveTimeout:   c.cfg.RemoveTimeout(),
		TunnelStopGrace: c.cfg.TunnelStopGrace(),
	})

	handler := func(ctx context.Context, job *queue.Job) queue.Outcome {
		switch job.Kind {
		case queue.KindBuildContainer:
			return buildExec.Handle(ctx, job)
		case queue.KindDestroyContainer, queue.KindCleanupStale:
			return destroyExec.Handle(ctx, job)
		default:
			return queue.Permanent(fmt.Sprintf("unknown job kind: %s", job.Kind))
		}
	}

	pool := queue.NewWorkerPool(jobs, handler, queue.WorkerPoolConfig{
		Concurrency:   c.cfg.JobConcurrency,
		PollInterval:  time.Second,
		StallInterval: 30 * time.Second,
		ShutdownGrace: 30 * time.Second,
	})

	sweep := sweeper.New(store, jobs, sweeper.NewLock(rdb, "envzilla:sweeper:lock"),
		c.cfg.SweepInterval(), c.cfg.SweepMaxAge())

	go pool.Run(ctx)
	go sweep.Run(ctx)

	srv := ingress.New(h, c.cfg.WebhookSecret, dispatcher, store, jobs, checker, sweep)

	server, err := serving.New(c.cfg.Port)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create serving infrastructure: %w", err)
	}

	cleanup := func() {
		tunnels.StopAll(c.cfg.TunnelStopGrace())
	}

	return server, srv.Routes(), cleanup, nil
}
