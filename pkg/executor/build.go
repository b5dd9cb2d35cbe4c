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

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/abcxyz/envzilla/pkg/crypt"
	"github.com/abcxyz/envzilla/pkg/deployment"
	"github.com/abcxyz/envzilla/pkg/githubclient"
	"github.com/abcxyz/envzilla/pkg/queue"
	"github.com/abcxyz/envzilla/pkg/tunnel"
	"github.com/abcxyz/pkg/logging"
)

// BuildConfig tunes the build executor's timeouts and defaults.
type BuildConfig struct {
	DockerfilePath       string
	ContainerPort        int
	PortRangeMin         int
	PortRangeMax         int
	CloneTimeout         time.Duration
	BuildTimeout         time.Duration
	RunTimeout           time.Duration
	ReadyAttempts        int
	ReadyDelay           time.Duration
	ReadyRequestTimeout  time.Duration
	PreviewURLAttempts   int
	PreviewURLDelay      time.Duration
	PreviewURLTimeout    time.Duration
	TunnelBinary         string
	TunnelStartupTimeout time.Duration
	TunnelStopGrace      time.Duration
}

// BuildExecutor runs component C5: clone, build, run, probe, tunnel,
// comment.
type BuildExecutor struct {
	docker  *Docker
	ports   *PortAllocator
	store   *deployment.Store
	gh      *githubclient.Client
	tunnels *tunnel.Registry
	cfg     BuildConfig
	secret  string
	httpCli *http.Client
}

// NewBuildExecutor creates a [BuildExecutor].
func NewBuildExecutor(docker *Docker, ports *PortAllocator, store *deployment.Store, gh *githubclient.Client, tunnels *tunnel.Registry, cfg BuildConfig, cryptSecret string) *BuildExecutor {
	return &BuildExecutor{
		docker:  docker,
		ports:   ports,
		store:   store,
		gh:      gh,
		tunnels: tunnels,
		cfg:     cfg,
		secret:  cryptSecret,
		httpCli: &http.Client{},
	}
}

// Handle implements [queue.Handler] for build-container jobs.
func (e *BuildExecutor) Handle(ctx context.Context, job *queue.Job) queue.Outcome {
	logger := logging.FromContext(ctx).With("pr", job.PRNumber)

	if err := e.docker.Ping(ctx); err != nil {
		// The engine may come back before this job exhausts its attempts,
		// so this is retryable, not a permanent rejection.
		return queue.Transient(err.Error())
	}

	queue.ReportProgress(ctx, 5)

	cloneURL, err := crypt.Decrypt(e.secret, job.CloneURL)
	if err != nil {
		return queue.Permanent(fmt.Sprintf("failed to decrypt clone url: %v", err))
	}
	commitSHA, err := crypt.Decrypt(e.secret, job.CommitSHA)
	if err != nil {
		return queue.Permanent(fmt.Sprintf("failed to decrypt commit sha: %v", err))
	}

	cloneDir, err := e.clone(ctx, cloneURL, job.Branch)
	if err != nil {
		return queue.Transient(err.Error())
	}
	defer os.RemoveAll(cloneDir)
	queue.ReportProgress(ctx, 25)

	imageTag := fmt.Sprintf("preview-pr-%d:%d", job.PRNumber, time.Now().UnixNano())
	buildCtx, cancel := context.WithTimeout(ctx, e.cfg.BuildTimeout)
	err = e.docker.BuildImage(buildCtx, cloneDir, e.cfg.DockerfilePath, imageTag)
	cancel()
	if err != nil {
		_ = e.docker.RemoveImage(context.Background(), imageTag)
		return queue.Transient(fmt.Sprintf("build-failed: %v", err))
	}
	queue.ReportProgress(ctx, 55)

	port, err := e.ports.Allocate(ctx)
	if err != nil {
		_ = e.docker.RemoveImage(context.Background(), imageTag)
		return queue.Transient(err.Error())
	}

	containerName := fmt.Sprintf("preview-%d", job.PRNumber)
	runCtx, cancel := context.WithTimeout(ctx, e.cfg.RunTimeout)
	containerID, err := e.docker.RunContainer(runCtx, imageTag, containerName, port, e.cfg.ContainerPort)
	cancel()
	if err != nil {
		_ = e.ports.Release(context.Background(), port)
		_ = e.docker.RemoveImage(context.Background(), imageTag)
		return queue.Transient(err.Error())
	}
	queue.ReportProgress(ctx, 70)

	e.waitForReadiness(ctx, containerID, port, logger)
	queue.ReportProgress(ctx, 85)

	tunnelURL := localURL(port)
	verified := false
	h, err := tunnel.Start(ctx, e.cfg.TunnelBinary, port, e.cfg.TunnelStartupTimeout)
	if err != nil {
		logger.Warn("tunnel creation failed, falling back to local url", "error", err)
	} else {
		if e.tunnels != nil {
			e.tunnels.Put(job.PRNumber, h)
		}
		tunnelURL = h.URL()
		verified = verifyTunnel(ctx, e.httpCli, tunnelURL, e.cfg.PreviewURLAttempts, e.cfg.PreviewURLDelay, e.cfg.PreviewURLTimeout)
		if !verified {
			logger.Warn("tunnel verification did not complete within budget, proceeding anyway")
		}
	}
	queue.ReportProgress(ctx, 95)

	now := time.Now().UTC()
	imageRef, _ := e.docker.ContainerImageRef(ctx, containerID)
	rec, err := e.store.CompareAndSwap(ctx, job.PRNumber, deployment.LegalPredecessors(deployment.StatusRunning), func(r *deployment.Record) {
		r.Status = deployment.StatusRunning
		r.ContainerID = containerID
		r.HostPort = port
		r.ImageRef = imageRef
		r.CommitSHA = commitSHA
		r.TunnelURL = tunnelURL
	}, now)
	if err != nil {
		// A concurrent event (e.g. the PR closed mid-build) already moved
		// the record past where this job expected it. The container, port,
		// and tunnel this job just started now belong to no record, so a
		// naive retry would clone/build/run again and orphan them for
		// good; compensate before retrying (invariant P3).
		e.compensateOrphan(ctx, job.PRNumber, containerID, port, logger)
		return queue.Transient(fmt.Sprintf("failed to finalize deployment record: %v", err))
	}

	e.postComment(ctx, rec, verified, logger)

	return queue.OK()
}

// compensateOrphan stops and removes a container (and its tunnel and
// reserved port) that this job provisioned but could not attach to a
// deployment record, so it doesn't outlive the job that created it.
func (e *BuildExecutor) compensateOrphan(ctx context.Context, prNumber int, containerID string, port int, logger *slog.Logger) {
	stopCtx, cancel := context.WithTimeout(context.Background(), e.cfg.RunTimeout)
	if err := e.docker.StopContainer(stopCtx, containerID, 5); err != nil {
		logger.Warn("failed to stop orphaned container", "container_id", containerID, "error", err)
	}
	cancel()

	if err := e.docker.RemoveContainer(context.Background(), containerID, true); err != nil {
		logger.Warn("failed to remove orphaned container", "container_id", containerID, "error", err)
	}

	if e.tunnels != nil {
		if err := e.tunnels.Stop(prNumber, e.cfg.TunnelStopGrace); err != nil {
			logger.Warn("failed to stop orphaned tunnel", "pr", prNumber, "error", err)
		}
	}

	if err := e.ports.Release(context.Background(), port); err != nil {
		logger.Warn("failed to release orphaned port", "port", port, "error", err)
	}
}

func (e *BuildExecutor) clone(ctx context.Context, cloneURL, branch string) (string, error) {
	dir, err := os.MkdirTemp("", "envzilla-clone-*")
	if err != nil {
		return "", fmt.Errorf("clone-failed: %w", err)
	}

	cloneCtx, cancel := context.WithTimeout(ctx, e.cfg.CloneTimeout)
	defer cancel()

	cmd := exec.CommandContext(cloneCtx, "git", "clone", "--depth=1", "--branch", branch, cloneURL, dir)
	if out, err := cmd.CombinedOutput(); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("clone-failed: %w: %s", err, out)
	}
	return dir, nil
}

func (e *BuildExecutor) waitForReadiness(ctx context.Context, containerID string, port int, logger *slog.Logger) {
	ready := waitReady(ctx, e.httpCli, localURL(port), e.cfg.ReadyAttempts, e.cfg.ReadyDelay, e.cfg.ReadyRequestTimeout)
	if !ready {
		logger.Warn("readiness probe did not succeed within budget, continuing to tunnel")
		return
	}

	if status, err := e.docker.ContainerHealthStatus(ctx, containerID); err == nil && status != "" {
		logger.Info("container reported health status", "status", status)
	}
}

func (e *BuildExecutor) postComment(ctx context.Context, rec *deployment.Record, verified bool, logger *slog.Logger) {
	body := fmt.Sprintf("Preview environment ready: %s\n\nPR: #%d\nCommit: %s\nPort: %s",
		rec.TunnelURL, rec.PRNumber, rec.CommitSHA, strconv.Itoa(rec.HostPort))
	if !verified {
		body += "\n\n_The preview URL may still be propagating._"
	}

	if err := e.gh.CommentOnPR(ctx, rec.RepoFullName, rec.PRNumber, body); err != nil {
		logger.Warn("failed to post preview comment", "error", err)
	}
}
