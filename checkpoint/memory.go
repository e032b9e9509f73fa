package checkpoint

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// MemoryStore keeps checkpoints in process memory. Snapshots are stored as
// marshaled JSON so Load always returns an independent, normalized copy,
// the same shape a durable backend would return.
type MemoryStore struct {
	mu     sync.RWMutex
	blobs  map[string][]byte
	leases map[string]struct{}
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs:  make(map[string][]byte),
		leases: make(map[string]struct{}),
	}
}

func (s *MemoryStore) Save(ctx context.Context, cp *Checkpoint) error {
	if err := validateCheckpoint(cp); err != nil {
		return err
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.blobs[cp.SessionID] = data
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, sessionID string) (*Checkpoint, error) {
	if sessionID == "" {
		return nil, ErrInvalidInput
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	data, ok := s.blobs[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.blobs[sessionID]; !ok {
		return ErrNotFound
	}
	delete(s.blobs, sessionID)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	ids := make([]string, 0, len(s.blobs))
	for id := range s.blobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Acquire(ctx context.Context, sessionID string) error {
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
	s.leases[sessionID] = struct{}{}
	return nil
}

func (s *MemoryStore) Release(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	delete(s.leases, sessionID)
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ Store = (*MemoryStore)(nil)
