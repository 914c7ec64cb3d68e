package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// RequestIDHeader carries one id per logical request. A recovery-driven
// resend reuses the id of the request it replaces.
const RequestIDHeader = "X-Request-Id"

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithBase sets the round tripper that actually sends requests.
// Defaults to http.DefaultTransport.
func WithBase(rt http.RoundTripper) TransportOption {
	return func(t *Transport) {
		if rt != nil {
			t.base = rt
		}
	}
}

// WithRecovery sets the handler asked to restore the session after a 401.
// Without one, 401 responses are returned as they are.
func WithRecovery(r SessionRecovery) TransportOption {
	return func(t *Transport) {
		t.recovery = r
	}
}

// Transport is an http.RoundTripper that attaches the stored access token to
// every request, renews it through the Coordinator before it expires, and on
// a 401 asks the SessionRecovery once before resending the request once.
//
// The renewal call itself must use a client that does not go through a
// Transport.
type Transport struct {
	base     http.RoundTripper
	store    Store
	coord    *Coordinator
	recovery SessionRecovery

	// mu serializes the decision to join or start a prompt.
	mu sync.Mutex
	// prompts collapses concurrent recoveries into one prompt.
	prompts flight
}

// NewTransport creates a Transport over store, renewing through coord.
func NewTransport(store Store, coord *Coordinator, opts ...TransportOption) *Transport {
	t := &Transport{
		base:  http.DefaultTransport,
		store: store,
		coord: coord,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewClient returns an http.Client whose requests go through a Transport.
func NewClient(store Store, coord *Coordinator, opts ...TransportOption) *http.Client {
	return &http.Client{Transport: NewTransport(store, coord, opts...)}
}

// envelope is one logical request. retried bounds recovery to one resend.
type envelope struct {
	req       *http.Request
	body      []byte
	requestID string
	retried   bool
}

func newEnvelope(req *http.Request) (*envelope, error) {
	env := &envelope{
		req:       req,
		requestID: req.Header.Get(RequestIDHeader),
	}
	if env.requestID == "" {
		env.requestID = uuid.NewString()
	}

	if req.Body != nil && req.Body != http.NoBody {
		body, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to buffer request body: %w", err)
		}
		env.body = body
	}
	return env, nil
}

// build clones the original request with token attached.
func (e *envelope) build(token string) *http.Request {
	r := e.req.Clone(e.req.Context())
	if e.body != nil {
		body := e.body
		r.Body = io.NopCloser(bytes.NewReader(body))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		r.ContentLength = int64(len(body))
	}

	r.Header.Set(RequestIDHeader, e.requestID)
	r.Header.Del("Authorization")
	if token != "" {
		(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(r)
	}
	return r
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	env, err := newEnvelope(req)
	if err != nil {
		return nil, err
	}

	sent := t.credential(ctx)
	resp, err := t.base.RoundTrip(env.build(sent))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	return t.recover(ctx, env, sent, resp)
}

// credential returns the token to attach, renewing it first when it is about
// to expire. A failed renewal leaves the response-side recovery as the
// remaining safety net.
func (t *Transport) credential(ctx context.Context) string {
	p, err := t.store.Load(ctx)
	if err != nil {
		t.coord.logger.Warn("failed to load credentials", zap.Error(err))
		return ""
	}
	if p.Access == "" {
		return ""
	}
	if !IsExpiringSoon(p.Access, t.coord.Threshold()) {
		return p.Access
	}

	token, err := t.coord.EnsureFreshAccessToken(ctx)
	if err == nil {
		return token
	}
	t.coord.logger.Debug("sending without renewed token", zap.Error(err))

	if p, err = t.store.Load(ctx); err != nil {
		return ""
	}
	return p.Access
}

func (t *Transport) recover(
	ctx context.Context,
	env *envelope,
	sent string,
	resp *http.Response,
) (*http.Response, error) {
	logger := t.coord.logger.With(
		zap.String("request_id", env.requestID),
		zap.String("method", env.req.Method),
		zap.String("path", env.req.URL.Path),
	)

	if env.retried || t.recovery == nil || t.coord.Failed() {
		logger.Debug("credentials rejected, not recovering")
		return resp, nil
	}

	prompt, token, ok := t.planRecovery(ctx, sent)
	if !ok {
		logger.Debug("credentials rejected, no refresh token")
		return resp, nil
	}

	t.coord.observer.AccessTokenRejected()
	env.retried = true

	original, err := bufferResponse(resp)
	if err != nil {
		return nil, err
	}

	if prompt != nil {
		token, err = wait(ctx, prompt)
		if ctxErr := ctx.Err(); ctxErr != nil {
			// The prompt keeps running and settles the store on its own.
			logger.Debug("caller gone during session recovery", zap.Error(ctxErr))
			return nil, ctxErr
		}
		if err != nil {
			logger.Info("session recovery failed", zap.Error(err))
			return original, nil
		}
	}

	logger.Debug("resending with renewed credentials")
	t.coord.observer.TokenRefreshedRetrying()
	return t.base.RoundTrip(env.build(token))
}

// planRecovery decides how a rejected request recovers: by joining the
// running prompt, by resending with a token another request already
// obtained, or by starting a new prompt. ok is false when the session cannot
// be recovered at all.
func (t *Transport) planRecovery(
	ctx context.Context,
	sent string,
) (prompt chan flightResult, token string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ch, running := t.prompts.joinIfRunning(); running {
		return ch, "", true
	}

	current, err := t.store.Load(ctx)
	if err != nil || current.Refresh == "" {
		return nil, "", false
	}
	if current.Access != "" && current.Access != sent &&
		!IsExpiringSoon(current.Access, t.coord.Threshold()) {
		return nil, current.Access, true
	}

	ch, _ := t.prompts.enqueue(ctx, t.runRecovery)
	return ch, "", true
}

// runRecovery runs the prompt on the flight's detached context and applies
// its outcome to the store exactly once, whether or not any caller is still
// waiting.
func (t *Transport) runRecovery(ctx context.Context) (string, error) {
	token, err := t.recovery.Recover(ctx)
	if err != nil {
		if clearErr := t.store.Clear(ctx); clearErr != nil {
			t.coord.logger.Error("failed to clear credentials", zap.Error(clearErr))
		}
		return "", err
	}
	t.persist(ctx, token)
	return token, nil
}

// Wait blocks until a running session prompt has finished. Call it before
// exiting so an abandoned prompt still completes.
func (t *Transport) Wait() {
	t.prompts.waitIdle()
}

// persist records a token handed back by the recovery handler unless the
// store already holds it.
func (t *Transport) persist(ctx context.Context, token string) {
	p, err := t.store.Load(ctx)
	if err != nil || p.Access == token || p.Refresh == "" {
		return
	}
	if err := t.store.Save(ctx, Pair{Access: token, Refresh: p.Refresh}); err != nil {
		t.coord.logger.Warn("failed to persist recovered token", zap.Error(err))
	}
}

// bufferResponse reads the body so the response can still be handed to the
// caller after the connection has been reused for the resend.
func bufferResponse(resp *http.Response) (*http.Response, error) {
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}
