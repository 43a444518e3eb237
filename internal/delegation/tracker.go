package delegation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cortexhq/cortex/internal/message"
)

var (
	// ErrAlreadyExists is returned when creating a record whose reference
	// code is already tracked.
	ErrAlreadyExists = errors.New("delegation already exists")
	// ErrNotFound is returned when no record is tracked for a reference code.
	ErrNotFound = errors.New("delegation not found")
)

// Tracker stores delegation records keyed by reference code.
type Tracker interface {
	// Create stores a new record. The reference code must be unused.
	Create(ctx context.Context, record Record) error
	// Get returns the record for a reference code.
	Get(ctx context.Context, ref message.ReferenceCode) (Record, error)
	// GetByAssignee returns every record delegated to the given agent.
	GetByAssignee(ctx context.Context, agentID string) ([]Record, error)
	// GetOverdue returns records whose DueAt is set, in the past, and whose
	// status is not Complete. Overdue is computed, never stored.
	GetOverdue(ctx context.Context) ([]Record, error)
	// UpdateStatus replaces the record with one in the new status. Moving to
	// Complete stamps CompletedAt.
	UpdateStatus(ctx context.Context, ref message.ReferenceCode, status Status) error
}

// MemoryTracker keeps delegation records in process memory.
type MemoryTracker struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

// Ensure MemoryTracker implements Tracker interface
var _ Tracker = (*MemoryTracker)(nil)

// NewMemoryTracker creates an empty in-memory delegation tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{
		records: make(map[string]Record),
		now:     time.Now,
	}
}

// Create stores a new record under its reference code.
func (t *MemoryTracker) Create(_ context.Context, record Record) error {
	key := record.ReferenceCode.String()

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.records[key]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, key)
	}
	t.records[key] = record
	return nil
}

// Get returns the record for a reference code.
func (t *MemoryTracker) Get(_ context.Context, ref message.ReferenceCode) (Record, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	record, ok := t.records[ref.String()]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return record, nil
}

// GetByAssignee returns every record delegated to the given agent, ordered
// by reference code.
func (t *MemoryTracker) GetByAssignee(_ context.Context, agentID string) ([]Record, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Record
	for _, record := range t.records {
		if record.DelegatedTo == agentID {
			out = append(out, record)
		}
	}
	sortByReference(out)
	return out, nil
}

// GetOverdue returns records past their due time that were never completed,
// ordered by reference code.
func (t *MemoryTracker) GetOverdue(_ context.Context) ([]Record, error) {
	now := t.now()

	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Record
	for _, record := range t.records {
		if record.DueAt != nil && record.DueAt.Before(now) && record.Status != StatusComplete {
			out = append(out, record)
		}
	}
	sortByReference(out)
	return out, nil
}

// UpdateStatus replaces the stored record with one carrying the new status.
func (t *MemoryTracker) UpdateStatus(_ context.Context, ref message.ReferenceCode, status Status) error {
	key := ref.String()

	t.mu.Lock()
	defer t.mu.Unlock()
	record, ok := t.records[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	record.Status = status
	if status == StatusComplete && record.CompletedAt == nil {
		completed := t.now().UTC()
		record.CompletedAt = &completed
	}
	t.records[key] = record
	return nil
}

func sortByReference(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].ReferenceCode.String() < records[j].ReferenceCode.String()
	})
}
