package session

import (
	"context"
	"sync"
)

// Pair is the access/refresh credential pair owned by a Store.
type Pair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// IsZero reports whether neither token is present (the logged-out state).
func (p Pair) IsZero() bool {
	return p.Access == "" && p.Refresh == ""
}

func (p Pair) validate() error {
	if p.Access == "" || p.Refresh == "" {
		return ErrIncompletePair
	}
	return nil
}

// Store persists the current credential pair. Load returns a zero Pair and
// no error when nothing is stored.
type Store interface {
	Load(ctx context.Context) (Pair, error)
	Save(ctx context.Context, p Pair) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the pair in process memory. Useful for tests and for
// sessions that must not touch the disk.
type MemoryStore struct {
	mu   sync.RWMutex
	pair Pair
}

// NewMemoryStore creates a MemoryStore holding p.
func NewMemoryStore(p Pair) *MemoryStore {
	return &MemoryStore{pair: p}
}

func (s *MemoryStore) Load(_ context.Context) (Pair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair, nil
}

func (s *MemoryStore) Save(_ context.Context, p Pair) error {
	if err := p.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = p
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = Pair{}
	return nil
}
