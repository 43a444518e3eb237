package delegation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexhq/cortex/internal/message"
)

func newRecord(ref, assignee string) Record {
	return Record{
		ReferenceCode: message.MustReferenceCode(ref),
		DelegatedBy:   "cos",
		DelegatedTo:   assignee,
		Description:   "draft the quarterly report",
		Status:        StatusAssigned,
		AssignedAt:    time.Now().UTC(),
	}
}

func TestMemoryTrackerCreateAndGet(t *testing.T) {
	tracker := NewMemoryTracker()
	ctx := context.Background()

	record := newRecord("CTX-2026-0115-001", "writer")
	require.NoError(t, tracker.Create(ctx, record))

	got, err := tracker.Get(ctx, record.ReferenceCode)
	require.NoError(t, err)
	assert.Equal(t, record, got)

	t.Run("duplicate reference fails", func(t *testing.T) {
		err := tracker.Create(ctx, newRecord("CTX-2026-0115-001", "analyst"))
		require.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("unknown reference fails", func(t *testing.T) {
		_, err := tracker.Get(ctx, message.MustReferenceCode("CTX-2026-0115-999"))
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemoryTrackerGetByAssignee(t *testing.T) {
	tracker := NewMemoryTracker()
	ctx := context.Background()

	require.NoError(t, tracker.Create(ctx, newRecord("CTX-2026-0115-002", "writer")))
	require.NoError(t, tracker.Create(ctx, newRecord("CTX-2026-0115-001", "writer")))
	require.NoError(t, tracker.Create(ctx, newRecord("CTX-2026-0115-003", "analyst")))

	records, err := tracker.GetByAssignee(ctx, "writer")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "CTX-2026-0115-001", records[0].ReferenceCode.String(), "results are ordered by reference")
	assert.Equal(t, "CTX-2026-0115-002", records[1].ReferenceCode.String())

	records, err = tracker.GetByAssignee(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestMemoryTrackerGetOverdue(t *testing.T) {
	tracker := NewMemoryTracker()
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	overdue := newRecord("CTX-2026-0115-001", "writer")
	overdue.DueAt = &past

	onTime := newRecord("CTX-2026-0115-002", "writer")
	onTime.DueAt = &future

	noDue := newRecord("CTX-2026-0115-003", "writer")

	finished := newRecord("CTX-2026-0115-004", "writer")
	finished.DueAt = &past
	finished.Status = StatusComplete

	for _, record := range []Record{overdue, onTime, noDue, finished} {
		require.NoError(t, tracker.Create(ctx, record))
	}

	records, err := tracker.GetOverdue(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1, "only past-due incomplete records are overdue")
	assert.Equal(t, overdue.ReferenceCode, records[0].ReferenceCode)
	assert.Equal(t, StatusAssigned, records[0].Status, "overdue is computed, not stored")
}

func TestMemoryTrackerUpdateStatus(t *testing.T) {
	tracker := NewMemoryTracker()
	ctx := context.Background()

	record := newRecord("CTX-2026-0115-001", "writer")
	require.NoError(t, tracker.Create(ctx, record))

	require.NoError(t, tracker.UpdateStatus(ctx, record.ReferenceCode, StatusInProgress))
	got, err := tracker.Get(ctx, record.ReferenceCode)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, got.Status)
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, tracker.UpdateStatus(ctx, record.ReferenceCode, StatusComplete))
	got, err = tracker.Get(ctx, record.ReferenceCode)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, got.Status)
	require.NotNil(t, got.CompletedAt, "completing stamps CompletedAt")

	t.Run("unknown reference fails", func(t *testing.T) {
		err := tracker.UpdateStatus(ctx, message.MustReferenceCode("CTX-2026-0115-999"), StatusComplete)
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRetryCounter(t *testing.T) {
	counter := NewRetryCounter()
	ref := message.MustReferenceCode("CTX-2026-0115-001")
	other := message.MustReferenceCode("CTX-2026-0115-002")

	assert.Equal(t, 0, counter.Count(ref))
	assert.Equal(t, 1, counter.Increment(ref))
	assert.Equal(t, 2, counter.Increment(ref))
	assert.Equal(t, 1, counter.Increment(other), "codes count independently")
	assert.Equal(t, 2, counter.Count(ref))

	counter.Reset(ref)
	assert.Equal(t, 0, counter.Count(ref))
	assert.Equal(t, 1, counter.Count(other))
}

func TestRetryCounterConcurrentIncrement(t *testing.T) {
	counter := NewRetryCounter()
	ref := message.MustReferenceCode("CTX-2026-0115-001")

	const workers = 32
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int]struct{}, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := counter.Increment(ref)
			mu.Lock()
			seen[n] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, seen, workers, "every increment must observe a distinct count")
	assert.Equal(t, workers, counter.Count(ref))
}
