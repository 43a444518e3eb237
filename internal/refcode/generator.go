// Package refcode allocates reference codes for workflows and delegated
// tasks. Codes carry the UTC date and a per-day sequence; the sequence store
// decides whether allocations survive restarts.
package refcode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cortexhq/cortex/internal/message"
)

// ErrSequenceExhausted is returned when a day has used every sequence number
// the code format can encode.
var ErrSequenceExhausted = errors.New("reference code sequence exhausted")

// dayKeyFormat buckets the sequence store by UTC date.
const dayKeyFormat = "2006-01-02"

// Generator mints reference codes with a monotonically increasing per-day
// sequence. Buckets roll over at midnight UTC.
type Generator struct {
	store SequenceStore
	now   func() time.Time
}

// NewGenerator creates a generator backed by the given sequence store.
func NewGenerator(store SequenceStore) *Generator {
	return &Generator{store: store, now: time.Now}
}

// NewGeneratorAt creates a generator with a custom clock for tests.
func NewGeneratorAt(store SequenceStore, now func() time.Time) *Generator {
	return &Generator{store: store, now: now}
}

// Generate allocates the next code for the current UTC day. Concurrent calls
// never return the same code.
func (g *Generator) Generate(ctx context.Context) (message.ReferenceCode, error) {
	day := g.now().UTC()
	seq, err := g.store.Next(ctx, day.Format(dayKeyFormat))
	if err != nil {
		return message.ReferenceCode{}, fmt.Errorf("failed to allocate sequence: %w", err)
	}
	if seq > message.MaxDailySequence {
		return message.ReferenceCode{}, fmt.Errorf("%w: day %s", ErrSequenceExhausted, day.Format(dayKeyFormat))
	}
	return message.NewReferenceCode(day, seq)
}
