package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxErrorBody bounds how much of a failed response is kept in StatusError.
const maxErrorBody = 512

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Retryable reports whether the remote side may succeed on a later attempt.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// IsClientError reports whether err is a non-retryable 4xx response.
func IsClientError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && !se.Retryable()
}

type ClientOption func(*Client)

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.hc.Timeout = timeout }
}

func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.header.Set("User-Agent", ua) }
}

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) { c.header.Set(key, value) }
}

// Client is a small JSON client for outbound calls such as webhooks.
type Client struct {
	hc     *http.Client
	header http.Header
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		hc:     &http.Client{Timeout: 30 * time.Second},
		header: make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PostJSON posts body as JSON and decodes a 2xx response into dest when
// dest is non-nil.
func (c *Client) PostJSON(ctx context.Context, url string, body, dest interface{}) error {
	return c.Do(ctx, http.MethodPost, url, body, dest)
}

// Do sends a request with an optional JSON body. Non-2xx responses return
// a *StatusError.
func (c *Client) Do(ctx context.Context, method, url string, body, dest interface{}) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	for k, v := range c.header {
		req.Header[k] = v
	}
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Code: resp.StatusCode, Body: string(snippet)}
	}
	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
