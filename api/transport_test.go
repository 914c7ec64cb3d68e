package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-authgate/order-console/session"
)

func TestRetryTransport_RetriesTransientFailures(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		io.WriteString(w, `{"id": 1, "email": "admin@gmail.com"}`)
	}))
	defer server.Close()

	rt, err := NewRetryTransport(nil, 5*time.Second)
	if err != nil {
		t.Fatalf("NewRetryTransport() error = %v", err)
	}
	c, err := NewClient(server.URL, WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	u, err := c.Me(context.Background())
	if err != nil {
		t.Fatalf("Me() error = %v", err)
	}
	if u.Email != "admin@gmail.com" {
		t.Errorf("Unexpected user %+v", u)
	}
	if n := attempts.Load(); n != 2 {
		t.Errorf("Expected 2 attempts (1 retry), got %d", n)
	}
}

// A resend after recovery that hits a transient failure is retried by the
// transport under the pipeline, so the 401 that follows belongs to the same
// call and must not trigger a second recovery.
func TestRetryTransport_ResendIsRecoveredOnce(t *testing.T) {
	var (
		hits       atomic.Int32
		mu         sync.Mutex
		requestIDs []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requestIDs = append(requestIDs, r.Header.Get(session.RequestIDHeader))
		mu.Unlock()

		switch hits.Add(1) {
		case 2:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"detail": "Given token not valid for any token type"}`)
		}
	}))
	defer server.Close()

	store := session.NewMemoryStore(session.Pair{
		Access:  signedToken(t, time.Now().Add(time.Hour)),
		Refresh: "r",
	})
	coord := session.NewCoordinator(store, session.RenewerFunc(func(context.Context, string) (session.Pair, error) {
		t.Error("Renewer must not be called")
		return session.Pair{}, errors.New("unexpected renewal")
	}))

	var recoveries atomic.Int32
	recovery := session.RecoveryFunc(func(context.Context) (string, error) {
		recoveries.Add(1)
		return signedToken(t, time.Now().Add(time.Hour)), nil
	})

	rt, err := NewRetryTransport(nil, 10*time.Second)
	if err != nil {
		t.Fatalf("NewRetryTransport() error = %v", err)
	}
	pipeline := session.NewTransport(store, coord, session.WithBase(rt), session.WithRecovery(recovery))
	c, err := NewClient(server.URL, WithHTTPClient(&http.Client{Transport: pipeline}))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, err = c.Me(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Expected ErrUnauthorized, got %v", err)
	}
	if n := recoveries.Load(); n != 1 {
		t.Errorf("Expected exactly 1 recovery, got %d", n)
	}
	if n := hits.Load(); n != 3 {
		t.Errorf("Expected 401, 503 and one retried 401, got %d requests", n)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, id := range requestIDs {
		if id == "" || id != requestIDs[0] {
			t.Errorf("Request %d carried id %q, want %q", i, id, requestIDs[0])
		}
	}
}

func TestClient_NoDeadlineAcrossRecovery(t *testing.T) {
	backend := &consoleBackend{t: t}
	server := httptest.NewServer(backend)
	defer server.Close()

	auth, err := NewAuth(server.URL)
	if err != nil {
		t.Fatalf("NewAuth() error = %v", err)
	}
	store := session.NewMemoryStore(session.Pair{
		Access:  signedToken(t, time.Now().Add(time.Hour)),
		Refresh: "r",
	})
	coord := session.NewCoordinator(store, auth)

	// The user takes longer to answer than a single send may last.
	recovery := session.RecoveryFunc(func(ctx context.Context) (string, error) {
		time.Sleep(300 * time.Millisecond)
		return coord.Refresh(ctx)
	})
	rt, err := NewRetryTransport(nil, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("NewRetryTransport() error = %v", err)
	}
	pipeline := session.NewTransport(store, coord, session.WithBase(rt), session.WithRecovery(recovery))
	c, err := NewClient(server.URL, WithHTTPClient(&http.Client{Transport: pipeline}))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if _, err := c.Me(context.Background()); err != nil {
		t.Fatalf("Me() error = %v", err)
	}
	if p, _ := store.Load(context.Background()); p.Refresh != "r" || p.Access == "" {
		t.Errorf("Expected the renewed pair to be stored, got %+v", p)
	}
}
