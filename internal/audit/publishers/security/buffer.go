package security

import (
	"sync"

	"fcp-audit/internal/audit/models"
)

// RingBuffer is a bounded, thread-safe buffer for security views.
// When full, the oldest views are dropped to make room for new ones.
type RingBuffer struct {
	mu       sync.Mutex
	views    []models.SecurityView
	head     int // next write position
	tail     int // next read position
	count    int
	capacity int

	dropped int64
}

// NewRingBuffer creates a ring buffer with the given capacity.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 10000
	}
	return &RingBuffer{
		views:    make([]models.SecurityView, capacity),
		capacity: capacity,
	}
}

// Enqueue adds a view, dropping the oldest if necessary. It reports whether
// a view was dropped.
func (b *RingBuffer) Enqueue(view models.SecurityView) (dropped bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count >= b.capacity {
		b.views[b.tail] = models.SecurityView{}
		b.tail = (b.tail + 1) % b.capacity
		b.count--
		b.dropped++
		dropped = true
	}

	b.views[b.head] = view
	b.head = (b.head + 1) % b.capacity
	b.count++
	return dropped
}

// DequeueBatch removes up to n views from the buffer, oldest first.
func (b *RingBuffer) DequeueBatch(n int) []models.SecurityView {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	if n > b.count {
		n = b.count
	}

	result := make([]models.SecurityView, n)
	for i := 0; i < n; i++ {
		result[i] = b.views[b.tail]
		b.views[b.tail] = models.SecurityView{}
		b.tail = (b.tail + 1) % b.capacity
	}
	b.count -= n
	return result
}

// Len returns the current number of buffered views.
func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Dropped returns the total number of views dropped for lack of space.
func (b *RingBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
