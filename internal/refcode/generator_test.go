package refcode

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexhq/cortex/internal/message"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestGeneratorGenerate(t *testing.T) {
	day := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)

	t.Run("allocates sequential codes within a day", func(t *testing.T) {
		gen := NewGeneratorAt(NewMemoryStore(), fixedClock(day))

		first, err := gen.Generate(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "CTX-2026-0115-001", first.String())

		second, err := gen.Generate(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "CTX-2026-0115-002", second.String())
	})

	t.Run("sequence restarts on day rollover", func(t *testing.T) {
		now := day
		gen := NewGeneratorAt(NewMemoryStore(), func() time.Time { return now })

		first, err := gen.Generate(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "CTX-2026-0115-001", first.String())

		now = day.Add(24 * time.Hour)
		next, err := gen.Generate(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "CTX-2026-0116-001", next.String())
	})

	t.Run("local time is normalized to UTC", func(t *testing.T) {
		// 23:30 on Jan 15 in UTC+3 is 20:30 UTC the same day.
		loc := time.FixedZone("UTC+3", 3*60*60)
		local := time.Date(2026, 1, 15, 23, 30, 0, 0, loc)
		gen := NewGeneratorAt(NewMemoryStore(), fixedClock(local))

		code, err := gen.Generate(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "CTX-2026-0115-001", code.String())
	})

	t.Run("fails with capacity error when the day is exhausted", func(t *testing.T) {
		store := NewMemoryStore()
		store.seqs[day.Format(dayKeyFormat)] = message.MaxDailySequence - 1
		gen := NewGeneratorAt(store, fixedClock(day))

		last, err := gen.Generate(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "CTX-2026-0115-999", last.String())

		_, err = gen.Generate(context.Background())
		require.ErrorIs(t, err, ErrSequenceExhausted)
	})
}

func TestGeneratorConcurrency(t *testing.T) {
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	gen := NewGeneratorAt(NewMemoryStore(), fixedClock(day))

	const workers = 50
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		codes = make(map[string]struct{}, workers)
	)
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, err := gen.Generate(context.Background())
			if err != nil {
				errs <- err
				return
			}
			mu.Lock()
			codes[code.String()] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent generate failed: %v", err)
	}
	assert.Len(t, codes, workers, "every concurrent call must yield a distinct code")
}

func TestMemoryStoreNext(t *testing.T) {
	store := NewMemoryStore()

	t.Run("counts up from one per day", func(t *testing.T) {
		for want := 1; want <= 3; want++ {
			got, err := store.Next(context.Background(), "2026-01-15")
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	})

	t.Run("days are independent", func(t *testing.T) {
		got, err := store.Next(context.Background(), "2026-01-16")
		require.NoError(t, err)
		assert.Equal(t, 1, got)
	})
}

func TestGeneratedCodesParseBack(t *testing.T) {
	day := time.Date(2026, 12, 31, 12, 0, 0, 0, time.UTC)
	gen := NewGeneratorAt(NewMemoryStore(), fixedClock(day))

	for i := 0; i < 5; i++ {
		code, err := gen.Generate(context.Background())
		require.NoError(t, err)

		parsed, err := message.ParseReferenceCode(code.String())
		require.NoError(t, err, "generated code %q must round-trip", code)
		assert.Equal(t, code, parsed)
	}
}

func ExampleGenerator_Generate() {
	gen := NewGeneratorAt(NewMemoryStore(), func() time.Time {
		return time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	})
	code, _ := gen.Generate(context.Background())
	fmt.Println(code)
	// Output: CTX-2026-0504-001
}
