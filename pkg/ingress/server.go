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

// Package ingress wires the HTTP surface: the signed webhook endpoint
// (component C1) plus the read-only deployment and admin endpoints.
package ingress

import (
	"net/http"

	"github.com/abcxyz/envzilla/pkg/deployment"
	"github.com/abcxyz/envzilla/pkg/dispatch"
	"github.com/abcxyz/envzilla/pkg/health"
	"github.com/abcxyz/envzilla/pkg/queue"
	"github.com/abcxyz/envzilla/pkg/sweeper"
	"github.com/abcxyz/pkg/renderer"
)

// Server holds the handlers backing the controller's HTTP surface.
type Server struct {
	h             *renderer.Renderer
	webhookSecret string
	dispatcher    *dispatch.Dispatcher
	store         *deployment.Store
	jobs          *queue.Queue
	checker       *health.Checker
	sweep         *sweeper.Sweeper
}

// New creates a [Server].
func New(h *renderer.Renderer, webhookSecret string, dispatcher *dispatch.Dispatcher, store *deployment.Store, jobs *queue.Queue, checker *health.Checker, sweep *sweeper.Sweeper) *Server {
	return &Server{
		h:             h,
		webhookSecret: webhookSecret,
		dispatcher:    dispatcher,
		store:         store,
		jobs:          jobs,
		checker:       checker,
		sweep:         sweep,
	}
}

// Routes returns the controller's mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/webhooks/github", s.handleWebhook())
	mux.Handle("/health", s.handleHealth())
	mux.Handle("/deployments", s.handleListDeployments())
	mux.Handle("/deployments/", s.handleGetDeployment())
	mux.Handle("/admin/queue/stats", s.handleQueueStats())
	mux.Handle("/admin/cleanup", s.handleAdminCleanup())
	mux.Handle("/admin/jobs/", s.handleJobStatus())
	return mux
}
