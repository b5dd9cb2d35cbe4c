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

package health

import (
	"runtime"
	"testing"

	"github.com/abcxyz/envzilla/pkg/deployment"
)

func TestClassifyHealthy(t *testing.T) {
	t.Parallel()

	deps := []Dependency{{Name: "redis", Healthy: true}, {Name: "docker", Healthy: true}}
	counts := map[deployment.Status]int{deployment.StatusRunning: 3, deployment.StatusFailed: 1}

	if got := classify(deps, counts, 10); got != StatusHealthy {
		t.Errorf("classify() = %q, want %q", got, StatusHealthy)
	}
}

func TestClassifyDegradedOnDependency(t *testing.T) {
	t.Parallel()

	deps := []Dependency{{Name: "redis", Healthy: true}, {Name: "docker", Healthy: false, Error: "dial refused"}}
	counts := map[deployment.Status]int{deployment.StatusRunning: 2}

	if got := classify(deps, counts, 10); got != StatusDegraded {
		t.Errorf("classify() = %q, want %q", got, StatusDegraded)
	}
}

func TestClassifyDegradedOnMemory(t *testing.T) {
	t.Parallel()

	deps := []Dependency{{Name: "redis", Healthy: true}, {Name: "docker", Healthy: true}}
	counts := map[deployment.Status]int{deployment.StatusRunning: 2}

	if got := classify(deps, counts, 95.5); got != StatusDegraded {
		t.Errorf("classify() = %q, want %q", got, StatusDegraded)
	}
}

func TestClassifyUnhealthyWhenFailedExceedsRunning(t *testing.T) {
	t.Parallel()

	deps := []Dependency{{Name: "redis", Healthy: true}, {Name: "docker", Healthy: true}}
	counts := map[deployment.Status]int{deployment.StatusRunning: 1, deployment.StatusFailed: 4}

	if got := classify(deps, counts, 10); got != StatusUnhealthy {
		t.Errorf("classify() = %q, want %q", got, StatusUnhealthy)
	}
}

func TestClassifyUnhealthyOutranksDegraded(t *testing.T) {
	t.Parallel()

	deps := []Dependency{{Name: "redis", Healthy: true}, {Name: "docker", Healthy: false}}
	counts := map[deployment.Status]int{deployment.StatusRunning: 0, deployment.StatusFailed: 2}

	if got := classify(deps, counts, 10); got != StatusUnhealthy {
		t.Errorf("classify() = %q, want %q", got, StatusUnhealthy)
	}
}

func TestMemoryPercentNoLimitConfigured(t *testing.T) {
	t.Parallel()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	// The test binary runs without GOMEMLIMIT set, so debug.SetMemoryLimit(-1)
	// reports math.MaxInt64 and memoryPercent should report 0 rather than a
	// meaningless near-zero percentage.
	if got := memoryPercent(mem); got != 0 {
		t.Errorf("memoryPercent() = %v, want 0 when no GOMEMLIMIT is set", got)
	}
}
