package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FileStore persists one JSON file per session under a base directory.
// Writes are atomic: write to a temp file, then rename. Suitable for
// single-node deployments; the lease is held in process memory plus a
// lock file so a second process also fails fast.
type FileStore struct {
	baseDir string
	mu      sync.Mutex
	leases  map[string]struct{}
	closed  bool
}

// NewFileStore creates the base directory if needed.
func NewFileStore(config StoreConfig) (*FileStore, error) {
	baseDir := filepath.Join(config.BaseDir, "checkpoints")
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &FileStore{baseDir: baseDir, leases: make(map[string]struct{})}, nil
}

func (s *FileStore) path(sessionID string) string {
	return filepath.Join(s.baseDir, sessionID+".json")
}

func (s *FileStore) lockPath(sessionID string) string {
	return filepath.Join(s.baseDir, sessionID+".lock")
}

func (s *FileStore) Save(ctx context.Context, cp *Checkpoint) error {
	if err := validateCheckpoint(cp); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}

	// Atomic write: temp file then rename.
	target := s.path(cp.SessionID)
	temp := target + ".tmp"
	if err := os.WriteFile(temp, data, 0644); err != nil {
		return err
	}
	return os.Rename(temp, target)
}

func (s *FileStore) Load(ctx context.Context, sessionID string) (*Checkpoint, error) {
	if sessionID == "" {
		return nil, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	data, err := os.ReadFile(s.path(sessionID))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *FileStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	err := os.Remove(s.path(sessionID))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}

func (s *FileStore) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *FileStore) Acquire(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, held := s.leases[sessionID]; held {
		return ErrLeaseHeld
	}
	// O_EXCL guards against another process on the same checkpoint dir.
	f, err := os.OpenFile(s.lockPath(sessionID), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return ErrLeaseHeld
		}
		return err
	}
	_ = f.Close()
	s.leases[sessionID] = struct{}{}
	return nil
}

func (s *FileStore) Release(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	delete(s.leases, sessionID)
	err := os.Remove(s.lockPath(sessionID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for id := range s.leases {
		_ = os.Remove(s.lockPath(id))
	}
	s.leases = map[string]struct{}{}
	return nil
}

var _ Store = (*FileStore)(nil)
