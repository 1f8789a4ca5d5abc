// Package gateway wraps outbound calls to the backend API gateway with
// credential injection, JSON encoding and a bounded retry-on-expiry policy.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-logr/logr"

	"github.com/agentdesk-dev/agentdesk/pkg/desk/auth"
	apperrors "github.com/agentdesk-dev/agentdesk/pkg/desk/errors"
)

const (
	// DefaultVersion is the API version segment used when none is configured.
	DefaultVersion = "v1"

	defaultRefreshMaxTries = 3
	defaultRefreshInterval = 100 * time.Millisecond
)

// HTTPError carries the status and parsed (or best-effort) error body of a
// non-2xx response after retry exhaustion.
type HTTPError struct {
	Status  int
	Body    json.RawMessage
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Message)
}

// CallOptions configures a single gateway call.
type CallOptions struct {
	Method  string // defaults to GET
	Body    any    // JSON-encoded when non-nil
	Headers map[string]string
}

// Client calls authenticated endpoints on the API gateway. The credential is
// obtained from the provider per call, never cached across calls.
type Client struct {
	baseURL    string
	version    string
	httpClient *http.Client
	creds      auth.Provider
	log        logr.Logger

	refreshMaxTries uint
	refreshInterval time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithVersion sets the API version path segment.
func WithVersion(v string) Option {
	return func(c *Client) { c.version = v }
}

// WithLogger sets the client logger.
func WithLogger(log logr.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithRefreshRetry tunes the transient-refresh retry policy. maxTries bounds
// the number of ForceRefresh attempts per 401; interval is the initial
// backoff interval between them.
func WithRefreshRetry(maxTries uint, interval time.Duration) Option {
	return func(c *Client) {
		c.refreshMaxTries = maxTries
		c.refreshInterval = interval
	}
}

// NewClient creates a gateway client for the given base URL and credential
// provider.
func NewClient(baseURL string, creds auth.Provider, opts ...Option) *Client {
	c := &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		version:         DefaultVersion,
		httpClient:      &http.Client{},
		creds:           creds,
		log:             logr.Discard(),
		refreshMaxTries: defaultRefreshMaxTries,
		refreshInterval: defaultRefreshInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call issues an authenticated request to endpoint and returns the parsed
// JSON response, or nil for a no-content response.
//
// A 401 on the first attempt forces a credential refresh and retries the
// call exactly once with the new credential. A 401 on the retried attempt,
// or any other non-2xx status, fails with an *HTTPError wrapped in an
// application error.
func (c *Client) Call(ctx context.Context, endpoint string, opts CallOptions) (json.RawMessage, error) {
	cred, err := c.creds.Credential(ctx)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeAuthRequired, "authentication required", err)
	}
	if !cred.Usable() {
		return nil, apperrors.New(apperrors.ErrCodeAuthRequired, "authentication required", nil)
	}

	if c.baseURL == "" {
		return nil, apperrors.New(apperrors.ErrCodeConfigInvalid, "API gateway URL is not configured", nil)
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var payload []byte
	if opts.Body != nil {
		payload, err = json.Marshal(opts.Body)
		if err != nil {
			return nil, apperrors.New(apperrors.ErrCodeHTTP, "failed to encode request body", err)
		}
	}

	url := fmt.Sprintf("%s/api/%s/%s", c.baseURL, c.version, strings.TrimLeft(endpoint, "/"))

	status, body, err := c.attempt(ctx, method, url, payload, opts.Headers, cred.Token)
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		c.log.Info("received 401, refreshing credential", "endpoint", endpoint)
		refreshed, refreshErr := c.refresh(ctx)
		if refreshErr != nil {
			return nil, refreshErr
		}
		status, body, err = c.attempt(ctx, method, url, payload, opts.Headers, refreshed.Token)
		if err != nil {
			return nil, err
		}
	}

	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return nil, c.httpError(status, body)
	}

	if status == http.StatusNoContent || len(body) == 0 {
		return nil, nil
	}
	return json.RawMessage(body), nil
}

func (c *Client) attempt(ctx context.Context, method, url string, payload []byte, headers map[string]string, token string) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, apperrors.New(apperrors.ErrCodeHTTP, "failed to create request", err)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, apperrors.New(apperrors.ErrCodeHTTP, "failed to reach API gateway", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, apperrors.New(apperrors.ErrCodeHTTP, "failed to read response body", err)
	}

	return resp.StatusCode, body, nil
}

// refresh forces a credential refresh. Transport failures from the provider
// are retried with exponential backoff; a refreshed credential carrying an
// error field is a permanent failure and is surfaced immediately.
func (c *Client) refresh(ctx context.Context) (*auth.Credential, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.refreshInterval

	cred, err := backoff.Retry(ctx, func() (*auth.Credential, error) {
		return c.creds.ForceRefresh(ctx)
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(c.refreshMaxTries))
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeRefreshFailed, "failed to refresh credential", err)
	}

	if !cred.Usable() {
		msg := "failed to refresh credential"
		if cred != nil && cred.Err != "" {
			msg = cred.Err
		}
		return nil, apperrors.New(apperrors.ErrCodeRefreshFailed, msg, nil)
	}

	return cred, nil
}

func (c *Client) httpError(status int, body []byte) error {
	httpErr := &HTTPError{
		Status:  status,
		Message: fmt.Sprintf("request failed with status %d", status),
	}

	var parsed struct {
		Message string `json:"message"`
	}
	if len(body) > 0 {
		httpErr.Body = json.RawMessage(body)
		if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
			httpErr.Message = parsed.Message
		}
	}

	return apperrors.New(apperrors.ErrCodeHTTP, httpErr.Message, httpErr)
}
