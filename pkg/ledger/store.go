package ledger

import (
	"context"
	"fmt"
	"sync"
)

// Store persists ledger entries. Implementations must keep entries in
// sequence order and never rewrite an existing row.
type Store interface {
	Append(ctx context.Context, e Entry) error
	Load(ctx context.Context) ([]Entry, error)
}

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.SequenceNo != uint64(len(s.entries)) {
		return fmt.Errorf("append sequence_no %d: store holds %d entries", e.SequenceNo, len(s.entries))
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *MemoryStore) Load(_ context.Context) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}
