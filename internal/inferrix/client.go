// Package inferrix is a client for the Inferrix building-management REST API:
// device listing, per-device telemetry keys and values, telemetry writes, and
// alarm queries. Every call authenticates with a bearer token and is paced by
// a shared rate limiter. Errors are categorized so callers can surface a
// user-facing explanation instead of a raw HTTP status.
package inferrix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultPageSize = 100
	maxErrorBody    = 2048
)

// tokenExpiredMarker is the body fragment Inferrix returns on expired JWTs.
// A 401 without it still categorizes as an auth failure.
const tokenExpiredMarker = "Token has expired"

// Config holds client settings.
type Config struct {
	BaseURL string
	Token   string
	// PageSize bounds device-listing pages. Defaults to 100.
	PageSize int
	// RequestsPerSecond paces outbound calls. Zero disables pacing.
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

// Client talks to the Inferrix API.
type Client struct {
	baseURL  string
	token    string
	pageSize int
	http     *http.Client
	limiter  *rate.Limiter
}

// New creates an Inferrix client from the given configuration.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		token:    cfg.Token,
		pageSize: pageSize,
		http:     &http.Client{Timeout: timeout},
		limiter:  limiter,
	}
}

// ErrorKind categorizes API failures for user-facing messaging.
type ErrorKind int

const (
	KindTransport ErrorKind = iota // timeout, connection refused, DNS
	KindAuth                       // 401 or expired-token marker
	KindNotFound                   // 404
	KindRateLimited                // 429
	KindServer                     // 5xx
)

// APIError is a categorized Inferrix API failure.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Endpoint   string
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("inferrix %s: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("inferrix %s: HTTP %d", e.Endpoint, e.StatusCode)
}

func (e *APIError) Unwrap() error { return e.Err }

// UserMessage maps the failure onto a plain-text explanation with a next step.
func (e *APIError) UserMessage() string {
	switch e.Kind {
	case KindAuth:
		return "Your session with the building system has expired. Please log in again."
	case KindNotFound:
		return "The building system could not find the requested resource. It may have been removed — try listing devices again."
	case KindRateLimited:
		return "The building system is receiving too many requests right now. Please wait a moment and try again."
	case KindServer:
		return "The building system reported an internal error. Please try again later; if it persists, contact support."
	default:
		return "Could not reach the building system. Check connectivity and try again in a few minutes."
	}
}

// ErrNoToken is returned when no bearer token is configured.
var ErrNoToken = &APIError{Kind: KindAuth, Endpoint: "auth", Err: errors.New("no API token configured")}

// get issues an authenticated GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// post issues an authenticated POST with a JSON body.
func (c *Client) post(ctx context.Context, path string, body any) error {
	return c.do(ctx, http.MethodPost, path, body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.token == "" {
		return ErrNoToken
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &APIError{Kind: KindTransport, Endpoint: path, Err: err}
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Kind: KindTransport, Endpoint: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &APIError{Kind: KindTransport, Endpoint: path, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.categorize(path, resp.StatusCode, data)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("parse %s response: %w", path, err)
		}
	}
	return nil
}

func (c *Client) categorize(endpoint string, status int, body []byte) *APIError {
	snippet := string(body)
	if len(snippet) > maxErrorBody {
		snippet = snippet[:maxErrorBody]
	}
	apiErr := &APIError{StatusCode: status, Endpoint: endpoint, Body: snippet}
	switch {
	case status == http.StatusUnauthorized, strings.Contains(snippet, tokenExpiredMarker):
		apiErr.Kind = KindAuth
	case status == http.StatusNotFound:
		apiErr.Kind = KindNotFound
	case status == http.StatusTooManyRequests:
		apiErr.Kind = KindRateLimited
	case status >= 500:
		apiErr.Kind = KindServer
	default:
		apiErr.Kind = KindTransport
	}
	return apiErr
}

// UserMessage extracts a user-facing explanation from any error, preferring
// the categorized API message when the error chain contains one.
func UserMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.UserMessage()
	}
	return "Could not reach the building system. Check connectivity and try again in a few minutes."
}
