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

package ingress

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/abcxyz/envzilla/pkg/queue"
)

// handleAdminCleanup triggers an out-of-band sweep pass, optionally with a
// maxAge override (in hours) via the ?maxAge= query parameter.
func (s *Server) handleAdminCleanup() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.h.RenderJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}

		var maxAge time.Duration
		if raw := r.URL.Query().Get("maxAge"); raw != "" {
			hours, err := strconv.ParseFloat(raw, 64)
			if err != nil || hours <= 0 {
				s.h.RenderJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid maxAge"})
				return
			}
			maxAge = time.Duration(hours * float64(time.Hour))
		}

		if err := s.sweep.TriggerSweep(r.Context(), maxAge); err != nil {
			s.h.RenderJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		s.h.RenderJSON(w, http.StatusOK, map[string]string{"status": "swept"})
	})
}

// handleJobStatus serves GET /admin/jobs/:id, reporting a single job's
// attempt count and progress.
func (s *Server) handleJobStatus() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			s.h.RenderJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}

		id := strings.TrimPrefix(r.URL.Path, "/admin/jobs/")
		if id == "" {
			s.h.RenderJSON(w, http.StatusBadRequest, map[string]string{"error": "missing job id"})
			return
		}

		status, err := s.jobs.JobStatus(r.Context(), id)
		if err != nil {
			if errors.Is(err, queue.ErrJobNotFound) {
				s.h.RenderJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
				return
			}
			s.h.RenderJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		s.h.RenderJSON(w, http.StatusOK, status)
	})
}
