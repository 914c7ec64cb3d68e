package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/go-authgate/order-console/session"
)

// Timeout configuration for different operations
const (
	authRequestTimeout = 10 * time.Second
	// AttemptTimeout bounds one send through a RetryTransport, retries
	// included.
	AttemptTimeout = 30 * time.Second
)

// ErrUnauthorized matches any APIError carrying a 401.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	if detail := e.Detail(); detail != "" {
		return fmt.Sprintf("server returned status %d: %s", e.StatusCode, detail)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, strings.TrimSpace(string(e.Body)))
}

// Is reports a 401 as ErrUnauthorized.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// Detail returns the backend's "detail" message, if any.
func (e *APIError) Detail() string {
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(e.Body, &body); err != nil {
		return ""
	}
	return body.Detail
}

// Option configures Auth and Client.
type Option func(*requester)

// WithHTTPClient sets the http.Client wrapped by the retry layer.
func WithHTTPClient(hc *http.Client) Option {
	return func(r *requester) {
		if hc != nil {
			r.httpClient = hc
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *requester) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithTimeout bounds each call as a whole, including any session prompt the
// transport shows on the way.
func WithTimeout(d time.Duration) Option {
	return func(r *requester) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// requester sends JSON requests to the backend. With retry set it retries
// transient failures itself; otherwise the transport is expected to.
type requester struct {
	baseURL    string
	httpClient *http.Client
	retry      *retry.Client
	logger     *zap.Logger
	timeout    time.Duration
}

func newRequester(baseURL string, timeout time.Duration, withRetry bool, opts ...Option) (*requester, error) {
	r := &requester{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		logger:     zap.NewNop(),
		timeout:    timeout,
	}
	for _, opt := range opts {
		opt(r)
	}

	if withRetry {
		rc, err := retry.NewClient(retry.WithHTTPClient(r.httpClient))
		if err != nil {
			return nil, fmt.Errorf("failed to create retry client: %w", err)
		}
		r.retry = rc
	}
	return r, nil
}

func (r *requester) roundTrip(ctx context.Context, req *http.Request) (*http.Response, error) {
	if r.retry != nil {
		return r.retry.DoWithContext(ctx, req)
	}
	return r.httpClient.Do(req)
}

// send performs the request and returns the status code and body. It does
// not interpret the status.
func (r *requester) send(
	ctx context.Context,
	method, path string,
	query url.Values,
	in any,
) (int, []byte, error) {
	reqCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	target := r.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, target, body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	// One id for every attempt made for this call.
	requestID := uuid.NewString()
	req.Header.Set(session.RequestIDHeader, requestID)

	resp, err := r.roundTrip(reqCtx, req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}

	r.logger.Debug("backend request",
		zap.String("request_id", requestID),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)
	return resp.StatusCode, data, nil
}

// do performs the request and decodes a 2xx body into out. Other statuses
// become an *APIError.
func (r *requester) do(
	ctx context.Context,
	method, path string,
	query url.Values,
	in, out any,
) error {
	status, data, err := r.send(ctx, method, path, query, in)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return &APIError{StatusCode: status, Body: data}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// Client calls the authenticated part of the backend. Its http.Client is
// expected to carry a session.Transport built over a RetryTransport, so
// retries happen below the session pipeline and one call is recovered at
// most once. Calls have no overall deadline unless WithTimeout sets one;
// RetryTransport bounds each send instead.
type Client struct {
	r *requester
}

// NewClient creates a Client. Pass the pipeline client with WithHTTPClient.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	r, err := newRequester(baseURL, 0, false, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{r: r}, nil
}
