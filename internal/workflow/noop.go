package workflow

import (
	"context"
	"fmt"

	"github.com/cortexhq/cortex/internal/message"
)

// NoopTracker is the null-object tracker used when no workflow tracking is
// wired in. It knows no workflows, reports nothing complete, and drops
// writes, which keeps the reply-aggregation branch of skill-driven agents
// inert.
type NoopTracker struct{}

// Ensure NoopTracker implements Tracker interface
var _ Tracker = (*NoopTracker)(nil)

// NewNoopTracker creates the null-object tracker.
func NewNoopTracker() *NoopTracker {
	return &NoopTracker{}
}

func (*NoopTracker) Create(context.Context, Record) error { return nil }

func (*NoopTracker) Get(_ context.Context, parent message.ReferenceCode) (Record, error) {
	return Record{}, fmt.Errorf("%w: %s", ErrNotFound, parent)
}

func (*NoopTracker) FindBySubtask(context.Context, message.ReferenceCode) (*Record, error) {
	return nil, nil
}

func (*NoopTracker) StoreResult(context.Context, message.ReferenceCode, message.Envelope) error {
	return nil
}

func (*NoopTracker) AllSubtasksComplete(context.Context, message.ReferenceCode) (bool, error) {
	return false, nil
}

func (*NoopTracker) Results(context.Context, message.ReferenceCode) ([]Result, error) {
	return nil, nil
}

func (*NoopTracker) MarkCompleted(context.Context, message.ReferenceCode) error { return nil }

func (*NoopTracker) MarkFailed(context.Context, message.ReferenceCode) error { return nil }
