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

package githubclient

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/go-github/v56/github"
)

func TestShouldRetry(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		statusCode int
		err        error
		want       bool
	}{
		{name: "rate_limit_error", err: &github.RateLimitError{}, want: true},
		{name: "abuse_rate_limit_error", err: &github.AbuseRateLimitError{}, want: true},
		{name: "forbidden", statusCode: http.StatusForbidden, want: true},
		{name: "unprocessable_entity", statusCode: http.StatusUnprocessableEntity, want: true},
		{name: "internal_server_error", statusCode: http.StatusInternalServerError, want: true},
		{name: "bad_gateway", statusCode: http.StatusBadGateway, want: true},
		{name: "service_unavailable", statusCode: http.StatusServiceUnavailable, want: true},
		{name: "created", statusCode: http.StatusCreated, want: false},
		{name: "not_found", statusCode: http.StatusNotFound, want: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := shouldRetry(tc.statusCode, tc.err); got != tc.want {
				t.Errorf("shouldRetry(%d, %v) = %v, want %v", tc.statusCode, tc.err, got, tc.want)
			}
		})
	}
}

func TestCommentOnPR(t *testing.T) {
	t.Parallel()

	retryBaseDelay = time.Millisecond
	retryMaxAttempts = 1

	cases := []struct {
		name        string
		commentFunc func(ctx context.Context, owner, repo string, prNumber int, comment string) (*github.Response, error)
		repoName    string
		wantErr     bool
	}{
		{
			name: "created",
			commentFunc: func(_ context.Context, _, _ string, _ int, _ string) (*github.Response, error) {
				return &github.Response{Response: &http.Response{StatusCode: http.StatusCreated, Body: http.NoBody}}, nil
			},
			repoName: "abcxyz/envzilla",
		},
		{
			name: "invalid_repo_name",
			commentFunc: func(_ context.Context, _, _ string, _ int, _ string) (*github.Response, error) {
				return &github.Response{Response: &http.Response{StatusCode: http.StatusCreated, Body: http.NoBody}}, nil
			},
			repoName: "no-slash-here",
			wantErr:  true,
		},
		{
			name: "permanent_failure",
			commentFunc: func(_ context.Context, _, _ string, _ int, _ string) (*github.Response, error) {
				return &github.Response{Response: &http.Response{StatusCode: http.StatusGone, Body: http.NoBody}}, nil
			},
			repoName: "abcxyz/envzilla",
			wantErr:  true,
		},
		{
			name: "exhausts_retries_on_5xx",
			commentFunc: func(_ context.Context, _, _ string, _ int, _ string) (*github.Response, error) {
				return &github.Response{Response: &http.Response{StatusCode: http.StatusServiceUnavailable, Body: http.NoBody}}, nil
			},
			repoName: "abcxyz/envzilla",
			wantErr:  true,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client := &Client{commentFunc: tc.commentFunc}
			err := client.CommentOnPR(t.Context(), tc.repoName, 42, "preview deployed")
			if (err != nil) != tc.wantErr {
				t.Errorf("CommentOnPR() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
