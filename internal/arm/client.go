// Copyright 2025 Microsoft Corporation
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

// Package arm issues authenticated requests against Azure Resource Manager
// and projects the connection and managed API resources this process works
// with. Every logical request carries one correlation ID across all of its
// attempts and is retried on throttling, server errors and transport
// failures.
package arm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Azure/connections-mcp/internal/metrics"
)

// HeaderNameCorrelationRequestID propagates a caller-chosen ID that ARM
// echoes into its diagnostic logs.
const HeaderNameCorrelationRequestID = "X-Ms-Correlation-Request-Id"

const (
	defaultEndpoint = "https://management.azure.com"

	// requestTimeout bounds a single attempt, not the whole logical request.
	requestTimeout = 30 * time.Second

	maxAttempts = 4
)

// TokenProvider supplies a bearer token for the management plane. Token is
// called at the head of every logical request so rotated credentials are
// picked up without restarting the process.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// ClientOptions adjusts optional Client behavior. The zero value is usable.
type ClientOptions struct {
	// Endpoint overrides the public ARM endpoint, e.g. for tests.
	Endpoint string

	// UserAgent is sent verbatim on every request when non-empty.
	UserAgent string

	// Emitter receives request and retry counters. Defaults to metrics.Noop.
	Emitter metrics.Emitter

	// HTTPClient overrides the transport. Defaults to a client with a
	// 30 second per-attempt timeout.
	HTTPClient *http.Client
}

// Client issues authenticated, correlated, retried requests against ARM.
type Client struct {
	endpoint   string
	userAgent  string
	tokens     TokenProvider
	httpClient *http.Client
	logger     *slog.Logger
	emitter    metrics.Emitter

	// sleep is swapped out by tests to avoid real backoff delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient returns a Client that authenticates with tokens and reports
// request outcomes to logger and the configured emitter.
func NewClient(tokens TokenProvider, logger *slog.Logger, opts ClientOptions) *Client {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	emitter := opts.Emitter
	if emitter == nil {
		emitter = metrics.Noop{}
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}

	return &Client{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		userAgent:  opts.UserAgent,
		tokens:     tokens,
		httpClient: httpClient,
		logger:     logger,
		emitter:    emitter,
		sleep:      sleepWithContext,
	}
}

// RequestOptions carries the per-request knobs of Do.
type RequestOptions struct {
	// APIVersion overrides APIVersionDefault.
	APIVersion string

	// Query is appended to the URL alongside api-version.
	Query url.Values

	// Body is marshaled as the JSON request body on PUT and POST. It is
	// ignored on other methods.
	Body any
}

// Do issues method against the ARM path and returns the response body, which
// is always valid JSON ("{}" when ARM answers with an empty body). Non-OK
// responses come back as a *CloudError. 429, 5xx and transport failures are
// retried up to 4 attempts with exponential backoff, honoring Retry-After
// when ARM sends one.
func (c *Client) Do(ctx context.Context, method, path string, opts *RequestOptions) (json.RawMessage, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring ARM token: %w", err)
	}

	apiVersion := opts.APIVersion
	if apiVersion == "" {
		apiVersion = APIVersionDefault
	}
	query := url.Values{"api-version": []string{apiVersion}}
	for key, values := range opts.Query {
		query[key] = values
	}

	var body []byte
	if opts.Body != nil && (method == http.MethodPut || method == http.MethodPost) {
		body, err = json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
	}

	requestURL := c.endpoint + path + "?" + query.Encode()
	correlationID := uuid.New().String()
	logger := c.logger.With(
		"method", method,
		"path", path,
		"correlation_request_id", correlationID)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var reader io.Reader
		if len(body) > 0 {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, requestURL, reader)
		if err != nil {
			return nil, fmt.Errorf("building ARM request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set(HeaderNameCorrelationRequestID, correlationID)
		if len(body) > 0 {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		var retryAfter string
		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("ARM request failed: %w", err)
			c.countRequest(method, "transport_error")
		} else {
			retryAfter = resp.Header.Get("Retry-After")

			var payload json.RawMessage
			payload, err = shapeResponse(resp)
			c.countRequest(method, strconv.Itoa(resp.StatusCode))
			if err == nil {
				logger.Debug("ARM request succeeded",
					"status", resp.StatusCode,
					"attempt", attempt+1)
				return payload, nil
			}
			lastErr = err
		}

		if attempt == maxAttempts-1 || !retryableError(ctx, lastErr) {
			break
		}

		delay := backoff(attempt, retryAfter)
		logger.Warn("retrying ARM request",
			"attempt", attempt+1,
			"delay", delay.String(),
			"cause", lastErr.Error())
		c.emitter.AddCounter(metrics.ARMRetriesTotal, 1, map[string]string{"method": method})
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	logger.Error("ARM request failed", "cause", lastErr.Error())
	return nil, lastErr
}

func (c *Client) countRequest(method, code string) {
	c.emitter.AddCounter(metrics.ARMRequestsTotal, 1, map[string]string{
		"method": method,
		"code":   code,
	})
}

// shapeResponse drains and closes the response body. 2xx bodies are returned
// as JSON, everything else becomes a *CloudError.
func shapeResponse(resp *http.Response) (json.RawMessage, error) {
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading ARM response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode > 299 {
		return nil, CloudErrorFromResponse(resp.StatusCode, payload)
	}

	if len(bytes.TrimSpace(payload)) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(payload) {
		return nil, fmt.Errorf("ARM returned status %d with a non-JSON body", resp.StatusCode)
	}
	return payload, nil
}

// retryableError reports whether err is worth another attempt: throttling,
// server errors and transport failures are, everything else is not. A
// canceled context is never retried.
func retryableError(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}

	var cloudErr *CloudError
	if errors.As(err, &cloudErr) {
		return cloudErr.StatusCode == http.StatusTooManyRequests ||
			cloudErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}

// backoff returns the delay before the next attempt: the server's Retry-After
// in seconds when parseable, otherwise 2^attempt seconds plus up to one
// second of jitter.
func backoff(attempt int, retryAfter string) time.Duration {
	if retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds >= 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	jitter := time.Duration(rand.Float64() * float64(time.Second))
	return time.Duration(1<<attempt)*time.Second + jitter
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
