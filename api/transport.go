package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	retry "github.com/appleboy/go-httpretry"
)

// RetryTransport is an http.RoundTripper that retries transient failures.
// Install it as the base of a session.Transport so a resend after session
// recovery is retried without being recovered again.
type RetryTransport struct {
	client  *retry.Client
	timeout time.Duration
}

// NewRetryTransport creates a RetryTransport sending through base. Each
// RoundTrip, retries included, is bounded by timeout.
func NewRetryTransport(base http.RoundTripper, timeout time.Duration) (*RetryTransport, error) {
	if base == nil {
		base = http.DefaultTransport
	}
	if timeout <= 0 {
		timeout = AttemptTimeout
	}
	rc, err := retry.NewClient(retry.WithHTTPClient(&http.Client{Transport: base}))
	if err != nil {
		return nil, fmt.Errorf("failed to create retry client: %w", err)
	}
	return &RetryTransport{client: rc, timeout: timeout}, nil
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(req.Context(), t.timeout)
	resp, err := t.client.DoWithContext(ctx, req.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnClose keeps the attempt context alive until the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
