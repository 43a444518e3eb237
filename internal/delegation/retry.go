package delegation

import (
	"sync"

	"github.com/cortexhq/cortex/internal/message"
)

// RetryCounter counts supervision attempts per reference code.
type RetryCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewRetryCounter creates an empty retry counter.
func NewRetryCounter() *RetryCounter {
	return &RetryCounter{counts: make(map[string]int)}
}

// Increment bumps the counter for a reference code and returns the new count.
func (c *RetryCounter) Increment(ref message.ReferenceCode) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[ref.String()]++
	return c.counts[ref.String()]
}

// Reset removes the counter for a reference code.
func (c *RetryCounter) Reset(ref message.ReferenceCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, ref.String())
}

// Count returns the current count without incrementing.
func (c *RetryCounter) Count(ref message.ReferenceCode) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[ref.String()]
}
