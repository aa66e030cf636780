// Package gateway is the client for the Acca API gateway. It owns the HTTP
// plumbing the rest of the app shares: bearer-token injection, request IDs,
// and normalization of the server's response envelope, so call sites never
// unwrap payloads defensively.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Client issues authenticated requests against the API gateway. The bearer
// token is written only by the session manager via SetToken and ClearToken;
// every other method just sends whatever token is currently held.
type Client struct {
	baseURL string
	http    *http.Client

	mu     sync.RWMutex
	bearer string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeout bounds every request issued by the client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New creates a Client for the gateway at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken installs the bearer token sent on subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.bearer = token
	c.mu.Unlock()
}

// ClearToken removes the bearer token.
func (c *Client) ClearToken() {
	c.SetToken("")
}

// StatusError reports a request the server answered but did not accept:
// a non-2xx status or a failure envelope. Code keeps the HTTP status so
// callers can distinguish invalid-session responses from everything else.
type StatusError struct {
	Code        int
	Message     string
	FieldErrors map[string][]string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Code)
	}
	return fmt.Sprintf("gateway: server returned %d: %s", e.Code, msg)
}

// IsAuthError reports whether err is a 401 or 403 response, the only
// signals that invalidate a session.
func IsAuthError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) &&
		(se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden)
}

// envelope is the server's uniform response wrapper.
type envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    json.RawMessage     `json:"data"`
	Errors  map[string][]string `json:"errors"`
}

// unwrapData peels nested envelopes out of a payload. Several gateway
// endpoints wrap their data twice ({success, data: {success, data: ...}});
// normalizing here once keeps that quirk out of every call site.
func unwrapData(data json.RawMessage) json.RawMessage {
	for {
		var nested struct {
			Success *bool           `json:"success"`
			Data    json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(data, &nested); err != nil || nested.Success == nil || len(nested.Data) == 0 {
			return data
		}
		data = nested.Data
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())

	c.mu.RLock()
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	c.mu.RUnlock()

	return req, nil
}

// do sends a JSON request and returns the normalized response payload.
func (c *Client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("gateway: encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req)
}

// send issues the request, checks the status, and unwraps the envelope.
func (c *Client) send(req *http.Request) (json.RawMessage, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	failed := resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices
	if failed || (decodeErr == nil && !env.Success) {
		se := &StatusError{Code: resp.StatusCode}
		if decodeErr == nil {
			se.Message = env.Message
			se.FieldErrors = env.Errors
		}
		return nil, se
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("gateway: decode response: %w", decodeErr)
	}
	return unwrapData(env.Data), nil
}
