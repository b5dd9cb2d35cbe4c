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
	"net/http"
	"time"
)

// waitReady probes url up to attempts times, spacing apart delay, until it
// gets any non-5xx response. Returns false (not an error) if the budget
// elapses without success, per the design's "log and continue" contract.
func waitReady(ctx context.Context, client *http.Client, url string, attempts int, delay, perRequestTimeout time.Duration) bool {
	for i := 0; i < attempts; i++ {
		reqCtx, cancel := context.WithTimeout(ctx, perRequestTimeout)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
		if err == nil {
			resp, err := client.Do(req)
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode < 500 {
					cancel()
					return true
				}
			}
		}
		cancel()

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
	}
	return false
}

// verifyTunnel performs the two-phase tunnel verification: a couple of
// quick HEAD checks followed by up to attempts backoff GET attempts spaced
// delay apart (doubling up to a 15s cap), per-request timeout
// requestTimeout throughout. attempts and delay are the PREVIEW_URL_ATTEMPTS
// / PREVIEW_URL_DELAY_MS knobs; requestTimeout is PREVIEW_URL_REQUEST_TIMEOUT_MS.
func verifyTunnel(ctx context.Context, client *http.Client, url string, attempts int, delay, requestTimeout time.Duration) bool {
	for i := 0; i < 2; i++ {
		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, url, nil)
		if err == nil {
			resp, err := client.Do(req)
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode < 500 {
					cancel()
					return true
				}
			}
		}
		cancel()
		time.Sleep(500 * time.Millisecond)
	}

	const maxDelay = 15 * time.Second
	for i := 0; i < attempts; i++ {
		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
		if err == nil {
			resp, err := client.Do(req)
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode < 500 {
					cancel()
					return true
				}
			}
		}
		cancel()

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return false
}

func localURL(port int) string {
	return fmt.Sprintf("http://127.0.0.1:%d/", port)
}
