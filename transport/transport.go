// Package transport sends prepared batchexecute requests and returns the
// raw response body. It knows nothing about the response format; decoding
// is left to the codec package.
package transport

import (
	"batchexecute/codec"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultMaxBodySize caps the response bytes HTTPTransport reads.
const DefaultMaxBodySize = 32 << 20

// Transport performs one HTTP exchange for a prepared request.
type Transport interface {
	RoundTrip(ctx context.Context, req *codec.PreparedRequest) (string, error)
}

// StatusError reports a non-2xx response. Body holds the start of the
// response body for diagnostics.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transport: unexpected status %s", e.Status)
}

// HTTPTransport posts requests with an *http.Client.
type HTTPTransport struct {
	client      *http.Client
	maxBodySize int64
}

type Option func(*HTTPTransport)

// WithMaxBodySize overrides DefaultMaxBodySize. A response larger than n
// bytes fails.
func WithMaxBodySize(n int64) Option {
	return func(t *HTTPTransport) { t.maxBodySize = n }
}

// NewHTTP returns a transport using client, or a client with a 30 second
// timeout when client is nil.
func NewHTTP(client *http.Client, opts ...Option) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	t := &HTTPTransport{client: client, maxBodySize: DefaultMaxBodySize}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *HTTPTransport) RoundTrip(ctx context.Context, req *codec.PreparedRequest) (string, error) {
	httpReq, err := req.NewHTTPRequest(ctx)
	if err != nil {
		return "", err
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	// Read one byte past the cap to tell "exactly max" from "too large".
	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBodySize+1))
	if err != nil {
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := body
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return "", &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(snippet)}
	}
	if int64(len(body)) > t.maxBodySize {
		return "", fmt.Errorf("transport: response body exceeds %d bytes", t.maxBodySize)
	}
	return string(body), nil
}
