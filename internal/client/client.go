// Package client holds thin HTTP clients for the three collaborator
// services the fulfillment saga spans: Payment, Booking and Ticketing.
// Each client only knows the request/response contract at its boundary;
// the services themselves live elsewhere.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// envelope matches the JSON envelope the collaborator services return
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *envelopeError  `json:"error,omitempty"`
}

type envelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *envelopeError) String() string {
	if e == nil {
		return "unknown error"
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// baseClient is shared plumbing for the collaborator clients
type baseClient struct {
	name    string
	baseURL string
	http    *http.Client
}

func newBaseClient(name, baseURL string, timeout time.Duration) baseClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return baseClient{
		name:    name,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// do sends the request and decodes the envelope into out (out may be nil
// when the caller only cares about success).
func (c *baseClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", c.name, err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("%s: failed to build request: %w", c.name, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s: failed to read response: %w", c.name, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%s: invalid response (status %d): %w", c.name, resp.StatusCode, err)
	}

	if resp.StatusCode >= 400 || !env.Success {
		return fmt.Errorf("%s: %s (status %d)", c.name, env.Error.String(), resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%s: failed to decode response data: %w", c.name, err)
		}
	}
	return nil
}
