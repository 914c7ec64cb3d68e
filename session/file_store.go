package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// profileFile is the on-disk layout of a FileStore: one credential pair per
// profile (normally the backend URL), so several consoles can share a file.
type profileFile struct {
	Profiles map[string]*Pair `json:"profiles"`
}

// FileStore persists the pair in a JSON file that survives restarts.
// Writes are atomic (temp file + rename) and guarded by a lock file.
type FileStore struct {
	mu      sync.Mutex
	path    string
	profile string
	logger  *zap.Logger
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithFileLogger sets the logger for lock housekeeping problems.
func WithFileLogger(l *zap.Logger) FileStoreOption {
	return func(s *FileStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewFileStore creates a FileStore for profile backed by path.
func NewFileStore(path, profile string, opts ...FileStoreOption) *FileStore {
	s := &FileStore{path: path, profile: profile, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the credential file path.
func (s *FileStore) Path() string { return s.path }

// Load returns the pair stored for the profile. A missing file or profile is
// the logged-out state.
func (s *FileStore) Load(_ context.Context) (Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, err := s.read()
	if err != nil {
		return Pair{}, err
	}
	if p, ok := pf.Profiles[s.profile]; ok && p != nil {
		return *p, nil
	}
	return Pair{}, nil
}

// Save stores p for the profile, preserving other profiles in the file.
func (s *FileStore) Save(_ context.Context, p Pair) error {
	if err := p.validate(); err != nil {
		return err
	}
	return s.update(func(pf *profileFile) {
		pf.Profiles[s.profile] = &p
	})
}

// Clear removes the profile from the file.
func (s *FileStore) Clear(_ context.Context) error {
	return s.update(func(pf *profileFile) {
		delete(pf.Profiles, s.profile)
	})
}

func (s *FileStore) read() (*profileFile, error) {
	pf := &profileFile{Profiles: make(map[string]*Pair)}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return pf, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	if err := json.Unmarshal(data, pf); err != nil {
		return nil, fmt.Errorf("failed to parse credential file: %w", err)
	}
	if pf.Profiles == nil {
		pf.Profiles = make(map[string]*Pair)
	}
	return pf, nil
}

func (s *FileStore) update(mutate func(pf *profileFile)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	lock, err := acquireFileLock(s.path)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer s.releaseLock(lock)

	// Re-read inside the lock; a corrupt file is replaced rather than
	// blocking logout forever.
	pf, err := s.read()
	if err != nil {
		pf = &profileFile{Profiles: make(map[string]*Pair)}
	}
	mutate(pf)

	data, err := json.MarshalIndent(pf, "", "  ")
	if err != nil {
		return err
	}

	tempFile := s.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempFile, s.path); err != nil {
		if removeErr := os.Remove(tempFile); removeErr != nil {
			return fmt.Errorf(
				"failed to rename temp file: %v; additionally failed to remove temp file: %w",
				err,
				removeErr,
			)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

func (s *FileStore) releaseLock(lock *fileLock) {
	if err := lock.release(); err != nil {
		s.logger.Warn("failed to release credential file lock",
			zap.String("lock", lock.lockPath),
			zap.Error(err),
		)
	}
}
