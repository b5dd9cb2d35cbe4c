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

	"github.com/abcxyz/envzilla/pkg/deployment"
	"github.com/abcxyz/envzilla/pkg/health"
)

func (s *Server) handleListDeployments() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			s.h.RenderJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		records, err := s.store.List(r.Context())
		if err != nil {
			s.h.RenderJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		s.h.RenderJSON(w, http.StatusOK, records)
	})
}

func (s *Server) handleGetDeployment() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			s.h.RenderJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		idStr := strings.TrimPrefix(r.URL.Path, "/deployments/")
		prNumber, err := strconv.Atoi(idStr)
		if err != nil {
			s.h.RenderJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid pr number"})
			return
		}

		rec, err := s.store.Get(r.Context(), prNumber)
		if err != nil {
			if errors.Is(err, deployment.ErrNotFound) {
				s.h.RenderJSON(w, http.StatusNotFound, map[string]string{"error": "deployment not found"})
				return
			}
			s.h.RenderJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		s.h.RenderJSON(w, http.StatusOK, rec)
	})
}

func (s *Server) handleQueueStats() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.jobs.Stats(r.Context())
		if err != nil {
			s.h.RenderJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		s.h.RenderJSON(w, http.StatusOK, stats)
	})
}

func (s *Server) handleHealth() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := s.checker.Snapshot(r.Context())
		code := http.StatusOK
		switch snap.Status {
		case health.StatusDegraded:
			code = http.StatusPartialContent
		case health.StatusUnhealthy:
			code = http.StatusServiceUnavailable
		}
		s.h.RenderJSON(w, code, snap)
	})
}
