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
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/abcxyz/envzilla/pkg/deployment"
	"github.com/abcxyz/envzilla/pkg/queue"
	"github.com/abcxyz/envzilla/pkg/tunnel"
	"github.com/abcxyz/pkg/logging"
)

// ErrInvalidContainerID is returned when a supplied container id matches
// neither a full 64-hex-char id nor a 3-64 char hex prefix.
var ErrInvalidContainerID = errors.New("invalid-container-id")

var containerIDPattern = regexp.MustCompile(`^[a-fA-F0-9]{3,64}$`)

// DestroyConfig tunes the destroy executor's timeouts.
type DestroyConfig struct {
	StopTimeout     time.Duration
	RemoveTimeout   time.Duration
	TunnelStopGrace time.Duration
}

// DestroyExecutor runs component C6: container stop/remove, image cleanup,
// tunnel teardown, and the resulting C3 record transition.
type DestroyExecutor struct {
	docker  *Docker
	ports   *PortAllocator
	store   *deployment.Store
	tunnels *tunnel.Registry
	cfg     DestroyConfig
}

// NewDestroyExecutor creates a [DestroyExecutor].
func NewDestroyExecutor(docker *Docker, ports *PortAllocator, store *deployment.Store, tunnels *tunnel.Registry, cfg DestroyConfig) *DestroyExecutor {
	return &DestroyExecutor{docker: docker, ports: ports, store: store, tunnels: tunnels, cfg: cfg}
}

// Handle implements [queue.Handler] for destroy-container and
// cleanup-stale jobs, following the six best-effort steps of the design's
// destroy contract.
func (e *DestroyExecutor) Handle(ctx context.Context, job *queue.Job) queue.Outcome {
	logger := logging.FromContext(ctx).With("pr", job.PRNumber)

	rec, err := e.store.Get(ctx, job.PRNumber)
	if err != nil {
		if errors.Is(err, deployment.ErrNotFound) {
			return queue.OK() // already gone, nothing to do
		}
		return queue.Transient(fmt.Sprintf("failed to read deployment record: %v", err))
	}

	containerName := fmt.Sprintf("preview-%d", job.PRNumber)
	var failures []string

	containerID := rec.ContainerID
	if containerID != "" && !validContainerID(containerID) {
		failures = append(failures, ErrInvalidContainerID.Error())
		containerID = ""
	}

	removed := false
	if containerID != "" {
		stopCtx, cancel := context.WithTimeout(ctx, e.cfg.StopTimeout)
		err := e.docker.StopContainer(stopCtx, containerID, int(e.cfg.StopTimeout.Seconds()))
		cancel()
		if err != nil {
			logger.Warn("graceful stop failed, will force remove", "error", err)
			failures = append(failures, err.Error())
		}

		removeCtx, cancel := context.WithTimeout(ctx, e.cfg.RemoveTimeout)
		err = e.docker.RemoveContainer(removeCtx, containerID, true)
		cancel()
		if err != nil {
			failures = append(failures, err.Error())
		} else {
			removed = true
		}
	}

	if rec.ImageRef != "" {
		if err := e.docker.RemoveImage(ctx, rec.ImageRef); err != nil {
			failures = append(failures, err.Error())
		}
	}
	imagePrefix := fmt.Sprintf("preview-pr-%d", job.PRNumber)
	if err := e.docker.RemoveImagesByPrefix(ctx, imagePrefix); err != nil {
		failures = append(failures, err.Error())
	}

	residual, err := e.docker.ListContainersByName(ctx, containerName)
	if err != nil {
		failures = append(failures, err.Error())
	}
	for _, id := range residual {
		if err := e.docker.RemoveContainer(ctx, id, true); err != nil {
			failures = append(failures, err.Error())
			continue
		}
		removed = true
	}

	if e.tunnels != nil {
		if err := e.tunnels.Stop(job.PRNumber, e.cfg.TunnelStopGrace); err != nil {
			failures = append(failures, err.Error())
		}
	}

	if err := e.ports.Release(ctx, rec.HostPort); err != nil {
		logger.Warn("failed to release port", "port", rec.HostPort, "error", err)
	}
	queue.ReportProgress(ctx, 75)

	if len(failures) == 0 || removed {
		if err := e.store.Delete(ctx, job.PRNumber); err != nil {
			return queue.Transient(fmt.Sprintf("failed to delete deployment record: %v", err))
		}
		if len(failures) > 0 {
			logger.Warn("destroy completed with partial failures", "failures", failures)
		}
		return queue.OK()
	}

	detail := strings.Join(failures, "; ")
	now := time.Now().UTC()
	if _, err := e.store.CompareAndSwap(ctx, job.PRNumber, deployment.LegalPredecessors(deployment.StatusFailed), func(r *deployment.Record) {
		r.Status = deployment.StatusFailed
		r.LastError = detail
	}, now); err != nil && !errors.Is(err, deployment.ErrStateConflict) {
		return queue.Transient(fmt.Sprintf("failed to mark destroy failure: %v", err))
	}

	return queue.Transient(detail)
}

func validContainerID(id string) bool {
	if len(id) < 3 || len(id) > 64 {
		return false
	}
	return containerIDPattern.MatchString(id)
}
