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
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/abcxyz/envzilla/pkg/dispatch"
	"github.com/abcxyz/envzilla/pkg/signature"
	"github.com/abcxyz/pkg/renderer"
)

func createSignature(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestServer(t *testing.T, webhookSecret string) *Server {
	t.Helper()

	h, err := renderer.New(t.Context(), nil,
		renderer.WithOnError(func(err error) {
			t.Error(err)
		}))
	if err != nil {
		t.Fatalf("failed to create renderer: %v", err)
	}

	// These cases return before the store, queue, or sweeper are ever
	// touched (the dispatcher sees at most an unhandled event type), so nil
	// values are safe here.
	return New(h, webhookSecret, dispatch.New(nil, nil, ""), nil, nil, nil, nil)
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	t.Parallel()

	secret := "whsec"
	payload := []byte(`{"action":"opened"}`)

	cases := []struct {
		name          string
		signature     string
		payload       []byte
		expStatusCode int
	}{
		{
			name:          "valid_signature",
			signature:     fmt.Sprintf("sha256=%s", createSignature([]byte(secret), payload)),
			payload:       payload,
			expStatusCode: http.StatusOK,
		},
		{
			name:          "wrong_secret",
			signature:     fmt.Sprintf("sha256=%s", createSignature([]byte("wrong"), payload)),
			payload:       payload,
			expStatusCode: http.StatusUnauthorized,
		},
		{
			name:          "missing_signature",
			signature:     "",
			payload:       payload,
			expStatusCode: http.StatusUnauthorized,
		},
		{
			name:          "empty_payload",
			signature:     fmt.Sprintf("sha256=%s", createSignature([]byte(secret), nil)),
			payload:       nil,
			expStatusCode: http.StatusBadRequest,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := newTestServer(t, secret)

			req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(tc.payload))
			req.Header.Set(signature.EventTypeHeader, "issue_comment") // unhandled event, short-circuits before dispatch side effects
			req.Header.Set(signature.DeliveryIDHeader, "delivery-id")
			req.Header.Set(signature.SHA256Header, tc.signature)

			resp := httptest.NewRecorder()
			srv.handleWebhook().ServeHTTP(resp, req)

			if got, want := resp.Code, tc.expStatusCode; got != want {
				t.Errorf("status = %d, want %d; body=%s", got, want, strings.TrimSpace(resp.Body.String()))
			}
		})
	}
}

func TestHandleWebhookRejectsOversizedBody(t *testing.T) {
	t.Parallel()

	secret := "whsec"
	oversized := bytes.Repeat([]byte("a"), maxWebhookBodyBytes+1)

	srv := newTestServer(t, secret)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(oversized))
	req.Header.Set(signature.EventTypeHeader, "pull_request")
	req.Header.Set(signature.DeliveryIDHeader, "delivery-id")
	req.Header.Set(signature.SHA256Header, fmt.Sprintf("sha256=%s", createSignature([]byte(secret), oversized)))

	resp := httptest.NewRecorder()
	srv.handleWebhook().ServeHTTP(resp, req)

	if got, want := resp.Code, http.StatusRequestEntityTooLarge; got != want {
		t.Errorf("status = %d, want %d; body=%s", got, want, strings.TrimSpace(resp.Body.String()))
	}
	if !strings.Contains(resp.Body.String(), signature.ErrPayloadTooLarge.Error()) {
		t.Errorf("body = %s, want it to mention %q", resp.Body.String(), signature.ErrPayloadTooLarge.Error())
	}
}
