// Package client talks to a running seasonal server over its asynchronous
// analysis API.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okian/seasonal/internal/domain/types"
)

// Default client settings.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = time.Second
)

// Request is the body of an asynchronous submission.
type Request struct {
	Mode   string `json:"mode,omitempty"`
	Image  string `json:"image"`
	Method string `json:"method,omitempty"`
	Judge  string `json:"judge,omitempty"`
}

// EncodeImage base64-encodes raw image bytes for a Request.
func EncodeImage(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}

// Client wraps http.Client with the server's base URL.
type Client struct {
	baseURL      string
	http         *http.Client
	pollInterval time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithPollInterval sets how often Wait polls.
func WithPollInterval(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.pollInterval = d
		}
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         &http.Client{Timeout: DefaultTimeout},
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit queues an analysis. A non-empty key makes the call idempotent.
func (c *Client) Submit(ctx context.Context, req Request, key string) (types.SubmitResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return types.SubmitResponse{}, fmt.Errorf("failed to marshal request body: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/analyses", bytes.NewReader(body))
	if err != nil {
		return types.SubmitResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if key != "" {
		httpReq.Header.Set("Idempotency-Key", key)
	}

	var ack types.SubmitResponse
	if err := c.do(httpReq, &ack, http.StatusAccepted, http.StatusOK); err != nil {
		return types.SubmitResponse{}, err
	}
	return ack, nil
}

// Get fetches the current state of an analysis.
func (c *Client) Get(ctx context.Context, id string) (types.AnalysisRecord, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/analyses/"+id, http.NoBody)
	if err != nil {
		return types.AnalysisRecord{}, fmt.Errorf("failed to create request: %w", err)
	}
	var rec types.AnalysisRecord
	if err := c.do(httpReq, &rec, http.StatusOK); err != nil {
		return types.AnalysisRecord{}, err
	}
	return rec, nil
}

// Wait polls id until it reaches a terminal status or ctx ends. A failed
// analysis is returned together with an error wrapping ErrAnalysis.
func (c *Client) Wait(ctx context.Context, id string) (types.AnalysisRecord, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		rec, err := c.Get(ctx, id)
		if err != nil {
			return types.AnalysisRecord{}, err
		}
		switch rec.Status {
		case "succeeded":
			return rec, nil
		case "failed":
			return rec, fmt.Errorf("%w: %s", ErrAnalysis, rec.Error)
		}

		select {
		case <-ctx.Done():
			return rec, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(req *http.Request, out any, ok ...int) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	data, err := readResponseBody(resp)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	for _, code := range ok {
		if resp.StatusCode == code {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			return nil
		}
	}

	var e struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if json.Unmarshal(data, &e) != nil || e.Error == "" {
		e.Error = strings.TrimSpace(string(data))
	}
	return &StatusError{Status: resp.StatusCode, Code: e.Code, Msg: e.Error}
}

// readResponseBody reads and closes the response body.
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
