package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultRefreshTimeout bounds a single renewal call. A timeout is a renewal
// failure like any other.
const DefaultRefreshTimeout = 10 * time.Second

// Status is the state of the refresh coordinator.
type Status int

const (
	Idle Status = iota
	Refreshing
)

func (s Status) String() string {
	if s == Refreshing {
		return "refreshing"
	}
	return "idle"
}

// Renewer exchanges a refresh token for a new credential pair. An empty
// Refresh in the result means the server keeps the old refresh token.
type Renewer interface {
	Renew(ctx context.Context, refreshToken string) (Pair, error)
}

// RenewerFunc adapts a function to Renewer.
type RenewerFunc func(ctx context.Context, refreshToken string) (Pair, error)

func (f RenewerFunc) Renew(ctx context.Context, refreshToken string) (Pair, error) {
	return f(ctx, refreshToken)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithTimeout bounds each renewal call. A renewer that ignores its context
// is abandoned after the timeout, and the next renewal waits for it to return
// before calling the renewer again.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithThreshold sets how long before expiry a token counts as stale.
func WithThreshold(d time.Duration) Option {
	return func(c *Coordinator) {
		if d >= 0 {
			c.threshold = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver receives refresh progress notifications.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		if o != nil {
			c.observer = o
		}
	}
}

// Coordinator performs token renewal for the whole process. However many
// callers need a fresh token at once, at most one renewal call is outstanding
// and every caller receives that call's outcome.
//
// Create one per process with NewCoordinator and share it by reference.
type Coordinator struct {
	store     Store
	renewer   Renewer
	timeout   time.Duration
	threshold time.Duration
	logger    *zap.Logger
	observer  Observer

	// mu serializes the decision to join or start a renewal.
	mu     sync.Mutex
	flight flight
	failed atomic.Bool
	// straggler is closed once a renewer that timed out returns. Only
	// touched from inside the flight, which runs one renewal at a time.
	straggler chan struct{}
}

// NewCoordinator creates a Coordinator renewing the pair held by store.
func NewCoordinator(store Store, renewer Renewer, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		renewer:   renewer,
		timeout:   DefaultRefreshTimeout,
		threshold: DefaultThreshold,
		logger:    zap.NewNop(),
		observer:  noopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Threshold returns the proactive renewal threshold.
func (c *Coordinator) Threshold() time.Duration { return c.threshold }

// Status reports whether a renewal is in flight.
func (c *Coordinator) Status() Status {
	if c.flight.inFlight() {
		return Refreshing
	}
	return Idle
}

// Failed reports whether a renewal has failed since the last Reset. While set,
// the transport does not attempt reactive recovery.
func (c *Coordinator) Failed() bool { return c.failed.Load() }

// Reset clears the failure flag. Call it after a successful login.
func (c *Coordinator) Reset() { c.failed.Store(false) }

// EnsureFreshAccessToken returns an access token that is not about to
// expire. It joins an in-flight renewal if there is one; otherwise it returns
// the stored token when that is still fresh, and only renews when it is not.
func (c *Coordinator) EnsureFreshAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if ch, ok := c.flight.joinIfRunning(); ok {
		c.mu.Unlock()
		return wait(ctx, ch)
	}

	current, err := c.store.Load(ctx)
	if err != nil {
		c.mu.Unlock()
		return "", fmt.Errorf("failed to load credentials: %w", err)
	}
	if current.Access != "" && !IsExpiringSoon(current.Access, c.threshold) {
		c.mu.Unlock()
		return current.Access, nil
	}

	ch, _ := c.flight.enqueue(ctx, c.renew)
	c.mu.Unlock()
	return wait(ctx, ch)
}

// Refresh renews the access token regardless of its expiry, joining an
// in-flight renewal if there is one. Used when the server rejected a token
// that still looks valid locally.
func (c *Coordinator) Refresh(ctx context.Context) (string, error) {
	c.mu.Lock()
	ch, _ := c.flight.enqueue(ctx, c.renew)
	c.mu.Unlock()
	return wait(ctx, ch)
}

func (c *Coordinator) renew(ctx context.Context) (string, error) {
	c.observer.Refreshing()
	start := time.Now()

	token, err := c.exchange(ctx)
	if err != nil {
		c.failed.Store(true)
		if clearErr := c.store.Clear(ctx); clearErr != nil {
			c.logger.Error("failed to clear credentials after refresh failure", zap.Error(clearErr))
		}
		c.logger.Warn("token refresh failed",
			zap.Error(err),
			zap.Duration("elapsed", time.Since(start)),
		)
		c.observer.RefreshFailed(err)
		return "", err
	}

	fields := []zap.Field{zap.Duration("elapsed", time.Since(start))}
	if exp, expErr := ExpiresAt(token); expErr == nil {
		fields = append(fields, zap.Time("expires_at", exp))
	}
	c.logger.Info("token refreshed", fields...)
	c.observer.RefreshOK()
	return token, nil
}

type renewResult struct {
	pair Pair
	err  error
}

func (c *Coordinator) exchange(ctx context.Context) (string, error) {
	current, err := c.store.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: failed to load credentials: %w", ErrRefreshFailed, err)
	}
	if current.Refresh == "" {
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, ErrNoRefreshToken)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// A renewer that outlived an earlier timeout may still be talking to the
	// backend; never start a second call next to it.
	if c.straggler != nil {
		select {
		case <-c.straggler:
			c.straggler = nil
		case <-reqCtx.Done():
			return "", fmt.Errorf("%w: %w: %w", ErrRefreshFailed, ErrRenewalPending, reqCtx.Err())
		}
	}

	// The renewer runs in its own goroutine so that one ignoring its context
	// still cannot hold the waiters past the timeout.
	done := make(chan renewResult, 1)
	returned := make(chan struct{})
	go func() {
		defer close(returned)
		p, err := c.renewer.Renew(reqCtx, current.Refresh)
		done <- renewResult{pair: p, err: err}
	}()

	var res renewResult
	select {
	case res = <-done:
	case <-reqCtx.Done():
		c.straggler = returned
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, reqCtx.Err())
	}
	if res.err != nil {
		return "", fmt.Errorf("%w: %w", ErrRefreshFailed, res.err)
	}

	next := res.pair
	if next.Refresh == "" {
		next.Refresh = current.Refresh
	}
	if err := c.store.Save(ctx, next); err != nil {
		return "", fmt.Errorf("%w: failed to persist credentials: %w", ErrRefreshFailed, err)
	}
	return next.Access, nil
}
