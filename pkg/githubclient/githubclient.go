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

// Package githubclient wraps GitHub App authentication and pull request
// comment posting for the forge client, used by the build executor
// (component C5) to post the preview comment.
package githubclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/abcxyz/pkg/githubauth"
	"github.com/google/go-github/v56/github"
	"github.com/sethvargo/go-retry"
	"golang.org/x/oauth2"
)

var (
	retryBaseDelay          = 2 * time.Second
	retryMaxAttempts uint64 = 4
)

// Client wraps an authenticated GitHub App client for posting pull request
// comments.
type Client struct {
	config       *Config
	app          *githubauth.App
	githubClient *github.Client

	commentFunc func(ctx context.Context, owner, repo string, prNumber int, comment string) (*github.Response, error)
}

// New builds a [Client] from config. The private key is read from
// config.PrivateKey, falling back to the file at config.PrivateKeyPath.
func New(ctx context.Context, c *Config) (*Client, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid github client config: %w", err)
	}

	pemStr := c.PrivateKey
	if pemStr == "" {
		b, err := os.ReadFile(c.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key file: %w", err)
		}
		pemStr = string(b)
	}

	signer, err := githubauth.NewPrivateKeySigner(pemStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create private key signer: %w", err)
	}

	app, err := githubauth.NewApp(c.AppID, signer)
	if err != nil {
		return nil, fmt.Errorf("failed to create github app: %w", err)
	}

	githubClient := github.NewClient(oauth2.NewClient(ctx, app.OAuthAppTokenSource()))

	cl := &Client{
		config:       c,
		app:          app,
		githubClient: githubClient,
	}
	cl.commentFunc = cl.createComment
	return cl, nil
}

// App returns the underlying [githubauth.App].
func (c *Client) App() *githubauth.App {
	return c.app
}

func (c *Client) createComment(ctx context.Context, owner, repo string, prNumber int, comment string) (*github.Response, error) {
	_, resp, err := c.githubClient.Issues.CreateComment(ctx, owner, repo, prNumber, &github.IssueComment{
		Body: github.String(comment),
	})
	return resp, err
}

// CommentOnPR posts comment to the given pull request, retrying transient
// GitHub API failures (rate limits, 5xx) with a fixed backoff.
func (c *Client) CommentOnPR(ctx context.Context, repoFullName string, prNumber int, comment string) error {
	owner, repo, ok := strings.Cut(repoFullName, "/")
	if !ok {
		return fmt.Errorf("invalid repo full name %q, expected owner/repo", repoFullName)
	}

	backoff := retry.NewConstant(retryBaseDelay)
	backoff = retry.WithMaxRetries(retryMaxAttempts, backoff)

	if err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := c.commentFunc(ctx, owner, repo, prNumber, comment)

		statusCode := 0
		if resp != nil {
			statusCode = resp.StatusCode
		}
		if resp != nil && resp.Body != nil {
			defer resp.Body.Close()
		}

		if shouldRetry(statusCode, err) {
			return retry.RetryableError(fmt.Errorf("retrying comment post, status %d: %w", statusCode, err))
		}
		if err != nil {
			return fmt.Errorf("non-retryable error posting comment: %w", err)
		}
		if statusCode != http.StatusCreated {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
			return fmt.Errorf("unexpected status posting comment: %d: %s", statusCode, bytes.TrimSpace(body))
		}
		return nil
	}); err != nil {
		return fmt.Errorf("failed to post pull request comment: %w", err)
	}
	return nil
}

func shouldRetry(statusCode int, err error) bool {
	var rateLimit *github.RateLimitError
	var abuseLimit *github.AbuseRateLimitError
	if errors.As(err, &rateLimit) || errors.As(err, &abuseLimit) {
		return true
	}
	switch statusCode {
	case http.StatusForbidden, http.StatusUnprocessableEntity, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return true
	default:
		return false
	}
}
