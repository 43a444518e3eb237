package refcode

import (
	"context"
	"sync"
)

// MemoryStore keeps per-day counters in process memory. Counters vanish on
// restart, so it suits tests and single-run deployments only.
type MemoryStore struct {
	mu   sync.Mutex
	seqs map[string]int
}

// Ensure MemoryStore implements SequenceStore interface
var _ SequenceStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory sequence store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seqs: make(map[string]int)}
}

// Next advances and returns the counter for the given day.
func (s *MemoryStore) Next(_ context.Context, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seqs[day]++
	return s.seqs[day], nil
}
