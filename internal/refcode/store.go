package refcode

import "context"

// SequenceStore hands out monotonically increasing sequence numbers bucketed
// by day. The first allocation for a day returns 1. Implementations must be
// safe for concurrent use: two calls with the same day key never observe the
// same value.
type SequenceStore interface {
	// Next advances the counter for the given day key and returns the new
	// value. Day keys use the YYYY-MM-DD form of the UTC date.
	Next(ctx context.Context, day string) (int, error)
}
