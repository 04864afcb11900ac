package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// maxResponseBytes caps how much of a vendor response body is read.
const maxResponseBytes = 4 << 20

// statusOverloaded is Anthropic's non-standard "overloaded" status.
const statusOverloaded = 529

// transport performs JSON POSTs for one vendor and maps failures onto the
// package's error kinds.
type transport struct {
	name   string
	client *http.Client
}

func newTransport(name string, timeout time.Duration) transport {
	return transport{
		name:   name,
		client: &http.Client{Timeout: timeout},
	}
}

func (t transport) post(ctx context.Context, url string, header http.Header, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return wrap(t.name, ErrAPICallFailed, "encode request: "+err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return wrap(t.name, ErrAPICallFailed, "create request: "+err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return t.transportError(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return t.transportError(ctx, err)
	}

	if resp.StatusCode != http.StatusOK {
		return wrap(t.name, statusKind(resp.StatusCode), apiMessage(resp.StatusCode, data))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return wrap(t.name, ErrAPICallFailed, "decode response: "+err.Error())
	}
	return nil
}

func (t transport) transportError(ctx context.Context, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return wrap(t.name, ErrTimeout, "")
	case errors.As(err, &netErr) && netErr.Timeout():
		return wrap(t.name, ErrTimeout, "")
	case errors.Is(err, context.Canceled):
		return &Error{Provider: t.name, Err: fmt.Errorf("%w: %w", ErrAPICallFailed, context.Canceled)}
	default:
		return wrap(t.name, ErrAPICallFailed, err.Error())
	}
}

func statusKind(code int) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuthentication
	case http.StatusTooManyRequests:
		return ErrRateLimitExceeded
	case http.StatusServiceUnavailable, statusOverloaded:
		return ErrModelUnavailable
	default:
		return ErrAPICallFailed
	}
}

// apiMessage extracts the {"error":{"message":...}} detail all three vendors
// use, falling back to the status code.
func apiMessage(code int, body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return fmt.Sprintf("status code %d: %s", code, e.Error.Message)
	}
	return fmt.Sprintf("status code %d", code)
}

func encodeImage(img *Image) string {
	return base64.StdEncoding.EncodeToString(img.Data)
}
