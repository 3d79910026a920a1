// pkg/buffer/ring.go
package buffer

import (
	"sync"

	"github.com/lucid-vigil/warden/pkg/events"
)

// Ring is a fixed-capacity buffer of recent security events. Insert is
// O(1) and evicts the oldest entry on overflow. The monitor's worker
// goroutine is the sole writer; readers take point-in-time copies so
// metrics and pattern evaluation never observe a torn view.
//
// The capacity also bounds real-time detection: a pattern whose time
// window holds more events than fit in the buffer will undercount.
// Longer windows must be answered from the persisted log instead.
type Ring struct {
	mu       sync.RWMutex
	entries  []events.SecurityEvent
	head     int // next write position
	size     int
	capacity int
}

// NewRing creates a ring buffer with the given capacity (minimum 1).
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{
		entries:  make([]events.SecurityEvent, capacity),
		capacity: capacity,
	}
}

// Insert appends an event, evicting the oldest entry when full.
func (r *Ring) Insert(ev events.SecurityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.head] = ev
	r.head = (r.head + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
}

// Len returns the number of buffered events.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Capacity returns the fixed capacity.
func (r *Ring) Capacity() int { return r.capacity }

// Snapshot returns a copy of the buffered events in insertion order,
// oldest first.
func (r *Ring) Snapshot() []events.SecurityEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]events.SecurityEvent, 0, r.size)
	start := (r.head - r.size + r.capacity) % r.capacity
	for i := 0; i < r.size; i++ {
		out = append(out, r.entries[(start+i)%r.capacity])
	}
	return out
}

// Recent returns up to limit of the most recent events, newest first.
func (r *Ring) Recent(limit int) []events.SecurityEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > r.size {
		limit = r.size
	}
	out := make([]events.SecurityEvent, 0, limit)
	for i := 1; i <= limit; i++ {
		out = append(out, r.entries[(r.head-i+r.capacity)%r.capacity])
	}
	return out
}
