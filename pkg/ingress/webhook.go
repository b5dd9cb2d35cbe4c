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
	"fmt"
	"io"
	"net/http"

	"github.com/abcxyz/envzilla/pkg/dispatch"
	"github.com/abcxyz/envzilla/pkg/signature"
	"github.com/abcxyz/pkg/logging"
)

const maxWebhookBodyBytes = 1 << 20 // 1 MiB, per the webhook ingress body cap

// handleWebhook verifies the inbound signature against the raw body before
// any JSON decoding happens, per invariant I-SIG.
func (s *Server) handleWebhook() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx)

		eventType := r.Header.Get(signature.EventTypeHeader)
		deliveryID := r.Header.Get(signature.DeliveryIDHeader)
		sig := r.Header.Get(signature.SHA256Header)

		// Read one byte past the cap so an oversized body is detected
		// instead of silently truncated to exactly the cap.
		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes+1))
		if err != nil {
			logger.Error("failed to read webhook payload", "error", err, "delivery_id", deliveryID)
			s.h.RenderJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read payload"})
			return
		}
		if len(payload) > maxWebhookBodyBytes {
			logger.Error("webhook payload exceeds body size cap", "delivery_id", deliveryID)
			s.h.RenderJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": signature.ErrPayloadTooLarge.Error()})
			return
		}
		if len(payload) == 0 {
			s.h.RenderJSON(w, http.StatusBadRequest, map[string]string{"error": "empty payload"})
			return
		}

		if !signature.Valid(s.webhookSecret, sig, payload) {
			logger.Error("invalid webhook signature", "delivery_id", deliveryID)
			s.h.RenderJSON(w, http.StatusUnauthorized, map[string]string{"error": signature.ErrInvalidSignature.Error()})
			return
		}

		if err := s.dispatcher.Handle(ctx, eventType, payload); err != nil {
			switch {
			case errors.Is(err, dispatch.ErrUnhandledEvent), errors.Is(err, dispatch.ErrUnhandledAction):
				s.h.RenderJSON(w, http.StatusOK, map[string]string{"status": "ignored", "detail": err.Error()})
				return
			case errors.Is(err, dispatch.ErrNoDeployment):
				s.h.RenderJSON(w, http.StatusOK, map[string]string{"status": "ignored", "reason": "no-deployment"})
				return
			}
			logger.Error("failed to dispatch webhook event", "error", err, "delivery_id", deliveryID, "event", eventType)
			s.h.RenderJSON(w, http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("failed to process event: %v", err)})
			return
		}

		s.h.RenderJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	})
}
