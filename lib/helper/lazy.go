package helper

import "sync"

// Lazy holds a value computed on first successful use. Concurrent callers
// block while the first one computes. A failed computation is not cached.
type Lazy[T any] struct {
	mu    sync.Mutex
	done  bool
	value T
}

// Get returns the cached value, computing it when no value is cached yet.
func (l *Lazy[T]) Get(compute func() (T, error)) (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done {
		return l.value, nil
	}
	v, err := compute()
	if err != nil {
		var zero T
		return zero, err
	}
	l.value = v
	l.done = true
	return v, nil
}

// Peek returns the cached value without computing it.
func (l *Lazy[T]) Peek() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.done
}
