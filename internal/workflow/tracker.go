package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cortexhq/cortex/internal/message"
)

var (
	// ErrAlreadyExists is returned when creating a workflow whose parent
	// reference code is already tracked.
	ErrAlreadyExists = errors.New("workflow already exists")
	// ErrNotFound is returned when no workflow is tracked for a code.
	ErrNotFound = errors.New("workflow not found")
	// ErrSubtaskTaken is returned when a sub-task code is already owned by
	// another workflow. Every sub-task belongs to exactly one workflow.
	ErrSubtaskTaken = errors.New("subtask already assigned to a workflow")
)

// Tracker stores workflows and correlates sub-task replies back to them.
type Tracker interface {
	// Create registers a workflow and indexes its sub-task codes.
	Create(ctx context.Context, record Record) error
	// Get returns the workflow for a parent reference code.
	Get(ctx context.Context, parent message.ReferenceCode) (Record, error)
	// FindBySubtask returns the workflow owning a sub-task code, or nil if
	// the code is unknown. Parent codes return nil: the reverse index holds
	// child codes only.
	FindBySubtask(ctx context.Context, subtask message.ReferenceCode) (*Record, error)
	// StoreResult records the envelope an assignee returned for a sub-task.
	StoreResult(ctx context.Context, subtask message.ReferenceCode, env message.Envelope) error
	// AllSubtasksComplete reports whether every sub-task has a stored result.
	AllSubtasksComplete(ctx context.Context, parent message.ReferenceCode) (bool, error)
	// Results returns the stored results in sub-task declaration order.
	// Sub-tasks without a result yet are skipped.
	Results(ctx context.Context, parent message.ReferenceCode) ([]Result, error)
	// MarkCompleted transitions the workflow to Completed and stamps
	// CompletedAt.
	MarkCompleted(ctx context.Context, parent message.ReferenceCode) error
	// MarkFailed transitions the workflow to Failed.
	MarkFailed(ctx context.Context, parent message.ReferenceCode) error
}

// state pairs the immutable record with its mutable results map. Compound
// operations lock the state, not the whole tracker.
type state struct {
	mu      sync.Mutex
	record  Record
	results map[string]message.Envelope
}

// MemoryTracker keeps workflow state in process memory.
type MemoryTracker struct {
	mu       sync.RWMutex
	states   map[string]*state
	subtasks map[string]string // subtask ref -> parent ref
	now      func() time.Time
}

// Ensure MemoryTracker implements Tracker interface
var _ Tracker = (*MemoryTracker)(nil)

// NewMemoryTracker creates an empty in-memory workflow tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{
		states:   make(map[string]*state),
		subtasks: make(map[string]string),
		now:      time.Now,
	}
}

// Create registers the workflow and indexes its sub-task codes.
func (t *MemoryTracker) Create(_ context.Context, record Record) error {
	key := record.ReferenceCode.String()

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.states[key]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, key)
	}
	for _, subtask := range record.SubtaskReferenceCodes {
		if owner, ok := t.subtasks[subtask.String()]; ok {
			return fmt.Errorf("%w: %s belongs to %s", ErrSubtaskTaken, subtask, owner)
		}
	}

	record.SubtaskReferenceCodes = append([]message.ReferenceCode(nil), record.SubtaskReferenceCodes...)
	t.states[key] = &state{
		record:  record,
		results: make(map[string]message.Envelope, len(record.SubtaskReferenceCodes)),
	}
	for _, subtask := range record.SubtaskReferenceCodes {
		t.subtasks[subtask.String()] = key
	}
	return nil
}

// Get returns the workflow for a parent reference code.
func (t *MemoryTracker) Get(_ context.Context, parent message.ReferenceCode) (Record, error) {
	st := t.state(parent)
	if st == nil {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, parent)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.record, nil
}

// FindBySubtask resolves a sub-task code to the workflow that owns it.
func (t *MemoryTracker) FindBySubtask(_ context.Context, subtask message.ReferenceCode) (*Record, error) {
	t.mu.RLock()
	parent, ok := t.subtasks[subtask.String()]
	var st *state
	if ok {
		st = t.states[parent]
	}
	t.mu.RUnlock()

	if st == nil {
		return nil, nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	record := st.record
	return &record, nil
}

// StoreResult records the result envelope for a sub-task.
func (t *MemoryTracker) StoreResult(_ context.Context, subtask message.ReferenceCode, env message.Envelope) error {
	t.mu.RLock()
	parent, ok := t.subtasks[subtask.String()]
	var st *state
	if ok {
		st = t.states[parent]
	}
	t.mu.RUnlock()

	if st == nil {
		return fmt.Errorf("%w: no workflow owns subtask %s", ErrNotFound, subtask)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.results[subtask.String()] = env
	return nil
}

// AllSubtasksComplete reports whether every sub-task has a stored result.
func (t *MemoryTracker) AllSubtasksComplete(_ context.Context, parent message.ReferenceCode) (bool, error) {
	st := t.state(parent)
	if st == nil {
		return false, fmt.Errorf("%w: %s", ErrNotFound, parent)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	for _, subtask := range st.record.SubtaskReferenceCodes {
		if _, ok := st.results[subtask.String()]; !ok {
			return false, nil
		}
	}
	return true, nil
}

// Results returns stored results in sub-task declaration order.
func (t *MemoryTracker) Results(_ context.Context, parent message.ReferenceCode) ([]Result, error) {
	st := t.state(parent)
	if st == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, parent)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]Result, 0, len(st.record.SubtaskReferenceCodes))
	for _, subtask := range st.record.SubtaskReferenceCodes {
		if env, ok := st.results[subtask.String()]; ok {
			out = append(out, Result{SubtaskReferenceCode: subtask, Envelope: env})
		}
	}
	return out, nil
}

// MarkCompleted transitions the workflow to Completed.
func (t *MemoryTracker) MarkCompleted(_ context.Context, parent message.ReferenceCode) error {
	return t.transition(parent, StatusCompleted)
}

// MarkFailed transitions the workflow to Failed.
func (t *MemoryTracker) MarkFailed(_ context.Context, parent message.ReferenceCode) error {
	return t.transition(parent, StatusFailed)
}

func (t *MemoryTracker) transition(parent message.ReferenceCode, status Status) error {
	st := t.state(parent)
	if st == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, parent)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	st.record.Status = status
	if status == StatusCompleted && st.record.CompletedAt == nil {
		completed := t.now().UTC()
		st.record.CompletedAt = &completed
	}
	return nil
}

func (t *MemoryTracker) state(parent message.ReferenceCode) *state {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.states[parent.String()]
}
