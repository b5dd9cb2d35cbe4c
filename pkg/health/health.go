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

// Package health reports controller readiness: dependency connectivity,
// per-status deployment counts, and process uptime/memory, collapsed into
// the three-tier status component C8 exposes on /health.
package health

import (
	"context"
	"math"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/abcxyz/envzilla/pkg/deployment"
	"github.com/docker/docker/client"
	"github.com/redis/go-redis/v9"
)

// Status is the overall three-tier classification for a [Snapshot].
type Status string

const (
	// StatusHealthy means every dependency is reachable and no status
	// imbalance was observed.
	StatusHealthy Status = "healthy"
	// StatusDegraded means a dependency (redis, the engine, or the
	// deployment store) is unreachable or process memory use is above the
	// degraded threshold, but the controller is still serving.
	StatusDegraded Status = "degraded"
	// StatusUnhealthy means more deployments are failed than running.
	StatusUnhealthy Status = "unhealthy"
)

// degradedMemoryPercent is the process memory usage, as a percentage of
// GOMEMLIMIT, above which the controller reports degraded.
const degradedMemoryPercent = 90.0

// Dependency is a single checked dependency's status.
type Dependency struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// Snapshot is the overall health report.
type Snapshot struct {
	Status           Status                    `json:"status"`
	Dependencies     []Dependency              `json:"dependencies"`
	CountsByStatus   map[deployment.Status]int `json:"counts_by_status"`
	UptimeSeconds    float64                   `json:"uptime_seconds"`
	MemoryAllocBytes uint64                    `json:"memory_alloc_bytes"`
	MemoryPercent    float64                   `json:"memory_percent,omitempty"`
}

// Checker probes the controller's dependencies and deployment population
// on demand.
type Checker struct {
	rdb       *redis.Client
	docker    *client.Client
	store     *deployment.Store
	timeout   time.Duration
	startedAt time.Time
}

// NewChecker creates a [Checker]. startedAt is stamped at construction time
// for the snapshot's reported uptime.
func NewChecker(rdb *redis.Client, docker *client.Client, store *deployment.Store) *Checker {
	return &Checker{rdb: rdb, docker: docker, store: store, timeout: 2 * time.Second, startedAt: time.Now().UTC()}
}

// Snapshot probes every dependency, tallies deployment record counts by
// status, and classifies the result per the design's three-tier rule:
// degraded if any dependency is down or memory use exceeds the threshold;
// unhealthy if failed deployments outnumber running ones; healthy
// otherwise.
func (c *Checker) Snapshot(ctx context.Context) *Snapshot {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	redisDep := c.checkRedis(ctx)
	dockerDep := c.checkDocker(ctx)
	deps := []Dependency{redisDep, dockerDep}

	counts := make(map[deployment.Status]int)
	if redisDep.Healthy {
		records, err := c.store.List(ctx)
		if err != nil {
			deps = append(deps, Dependency{Name: "deployment-store", Error: err.Error()})
		}
		for _, rec := range records {
			counts[rec.Status]++
		}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	memPct := memoryPercent(mem)

	status := classify(deps, counts, memPct)

	return &Snapshot{
		Status:           status,
		Dependencies:     deps,
		CountsByStatus:   counts,
		UptimeSeconds:    time.Since(c.startedAt).Seconds(),
		MemoryAllocBytes: mem.Alloc,
		MemoryPercent:    memPct,
	}
}

// classify applies the three-tier rule: unhealthy takes precedence over
// degraded, since a controller actively losing deployments is a worse
// signal than an unreachable dependency or elevated memory use.
func classify(deps []Dependency, counts map[deployment.Status]int, memPct float64) Status {
	status := StatusHealthy
	for _, d := range deps {
		if !d.Healthy {
			status = StatusDegraded
		}
	}
	if memPct > degradedMemoryPercent {
		status = StatusDegraded
	}
	if counts[deployment.StatusFailed] > counts[deployment.StatusRunning] {
		status = StatusUnhealthy
	}
	return status
}

// memoryPercent reports process memory (runtime.MemStats.Sys) as a
// percentage of GOMEMLIMIT, or 0 if no limit is configured (the runtime
// default is effectively unbounded, so a percentage isn't meaningful).
func memoryPercent(mem runtime.MemStats) float64 {
	limit := debug.SetMemoryLimit(-1)
	if limit <= 0 || limit == math.MaxInt64 {
		return 0
	}
	return float64(mem.Sys) / float64(limit) * 100
}

func (c *Checker) checkRedis(ctx context.Context) Dependency {
	dep := Dependency{Name: "redis"}
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		dep.Error = err.Error()
		return dep
	}
	dep.Healthy = true
	return dep
}

func (c *Checker) checkDocker(ctx context.Context) Dependency {
	dep := Dependency{Name: "docker"}
	if _, err := c.docker.Ping(ctx); err != nil {
		dep.Error = err.Error()
		return dep
	}
	dep.Healthy = true
	return dep
}
