package harness

import "sync"

// DefaultDedupCapacity bounds the in-memory dedup window.
const DefaultDedupCapacity = 4096

// DedupStore remembers which message IDs a consumer already processed so
// broker redeliveries can be skipped. Marking the same ID twice leaves the
// store as after one call.
type DedupStore interface {
	// MarkSeen records the ID and reports whether it was already present.
	MarkSeen(messageID string) bool
}

// MemoryDedup is a bounded in-memory dedup window. Once the capacity is
// reached the oldest IDs are forgotten, so it protects against broker
// redelivery bursts, not against replays older than the window.
type MemoryDedup struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	order    []string
	capacity int
}

// Ensure MemoryDedup implements DedupStore interface
var _ DedupStore = (*MemoryDedup)(nil)

// NewMemoryDedup creates a dedup window holding up to capacity IDs.
// Non-positive capacities fall back to DefaultDedupCapacity.
func NewMemoryDedup(capacity int) *MemoryDedup {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	return &MemoryDedup{
		seen:     make(map[string]struct{}, capacity),
		capacity: capacity,
	}
}

// MarkSeen records the ID and reports whether it was already present.
func (d *MemoryDedup) MarkSeen(messageID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[messageID]; ok {
		return true
	}
	d.seen[messageID] = struct{}{}
	d.order = append(d.order, messageID)
	if len(d.order) > d.capacity {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
	}
	return false
}
