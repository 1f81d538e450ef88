package helper

import (
	"sync"
)

// RingBuffer keeps the most recent values up to a fixed capacity.
// It is safe for concurrent use.
type RingBuffer[T any] struct {
	mu     sync.Mutex
	buffer []T
	next   int
	count  int
}

// NewRingBuffer creates a new ring buffer with a fixed size. Sizes below one are raised to one.
func NewRingBuffer[T any](size int) *RingBuffer[T] {
	if size < 1 {
		size = 1
	}
	return &RingBuffer[T]{
		buffer: make([]T, size),
	}
}

// Add inserts a new element into the buffer, overwriting the oldest if full.
func (rb *RingBuffer[T]) Add(value T) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.buffer[rb.next] = value
	rb.next = (rb.next + 1) % len(rb.buffer)
	if rb.count < len(rb.buffer) {
		rb.count++
	}
}

// Snapshot returns the contents of the buffer, oldest first.
func (rb *RingBuffer[T]) Snapshot() []T {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	size := len(rb.buffer)
	result := make([]T, 0, rb.count)
	for i := 0; i < rb.count; i++ {
		result = append(result, rb.buffer[(rb.next+size-rb.count+i)%size])
	}
	return result
}

// Last returns the most recently added element.
func (rb *RingBuffer[T]) Last() (T, bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	var zero T
	if rb.count == 0 {
		return zero, false
	}
	size := len(rb.buffer)
	return rb.buffer[(rb.next+size-1)%size], true
}

// Len returns the current number of elements in the buffer.
func (rb *RingBuffer[T]) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}
