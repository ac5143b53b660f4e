package buffer

import (
	"sync"
)

// Handoff is a thread-safe growable ring queue. Samplers push sealed batches
// in, the writer side blocks on Receive. Capacity doubles when full, so a
// slow writer delays persistence but never blocks or drops a seal.
type Handoff[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	closed   bool

	// Stats
	totalIn  int64
	totalOut int64
	grows    int
}

// NewHandoff creates a queue with the given initial capacity.
func NewHandoff[T any](initialCapacity int) *Handoff[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	h := &Handoff[T]{
		buf:      make([]T, initialCapacity),
		capacity: initialCapacity,
	}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Send enqueues an item, growing the ring if it is full.
// Returns false if the queue is closed.
func (h *Handoff[T]) Send(item T) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}

	if h.count == h.capacity {
		h.grow()
	}

	h.buf[h.tail] = item
	h.tail = (h.tail + 1) % h.capacity
	h.count++
	h.totalIn++

	h.cond.Signal()
	return true
}

// Receive dequeues an item, blocking until one is available or the queue is
// closed. After close, remaining items are still delivered; once drained,
// Receive returns the zero value and false.
func (h *Handoff[T]) Receive() (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for h.count == 0 && !h.closed {
		h.cond.Wait()
	}

	if h.count == 0 && h.closed {
		var zero T
		return zero, false
	}

	return h.takeLocked(), true
}

// TryReceive dequeues without blocking. Returns false if the queue is empty.
func (h *Handoff[T]) TryReceive() (T, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		var zero T
		return zero, false
	}

	return h.takeLocked(), true
}

// DrainTo removes up to max items (all items if max <= 0). Used by the
// orchestrator's forced-shutdown path to spill whatever is still queued.
func (h *Handoff[T]) DrainTo(max int) []T {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 {
		return nil
	}

	n := h.count
	if max > 0 && max < n {
		n = max
	}

	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, h.takeLocked())
	}
	return out
}

// Close closes the queue. After closing, Send returns false; receivers drain
// remaining items then observe the closed signal.
func (h *Handoff[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	h.cond.Broadcast()
}

// Len returns the number of queued items.
func (h *Handoff[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Cap returns the current ring capacity.
func (h *Handoff[T]) Cap() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.capacity
}

// Stats returns queue statistics.
func (h *Handoff[T]) Stats() HandoffStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HandoffStats{
		Count:    h.count,
		Capacity: h.capacity,
		TotalIn:  h.totalIn,
		TotalOut: h.totalOut,
		Grows:    h.grows,
	}
}

// HandoffStats contains queue statistics.
type HandoffStats struct {
	Count    int
	Capacity int
	TotalIn  int64
	TotalOut int64
	Grows    int
}

// takeLocked removes and returns the head item. Must be called with the lock
// held and count > 0.
func (h *Handoff[T]) takeLocked() T {
	item := h.buf[h.head]
	var zero T
	h.buf[h.head] = zero // release reference for GC
	h.head = (h.head + 1) % h.capacity
	h.count--
	h.totalOut++
	return item
}

// grow doubles the ring capacity. Must be called with the lock held.
func (h *Handoff[T]) grow() {
	newCapacity := h.capacity * 2
	newBuf := make([]T, newCapacity)

	if h.count > 0 {
		if h.head < h.tail {
			copy(newBuf, h.buf[h.head:h.tail])
		} else {
			n := copy(newBuf, h.buf[h.head:])
			copy(newBuf[n:], h.buf[:h.tail])
		}
	}

	h.buf = newBuf
	h.head = 0
	h.tail = h.count
	h.capacity = newCapacity
	h.grows++
}
