package resource

import (
	"errors"
	"slices"
	"sync"
)

var ErrClosed = errors.New("resource backend closed")

// LocalBackend is an in-memory slot store with first-fit reuse:
// Create always fills the lowest-numbered free slot.
type LocalBackend[T any] struct {
	entries []entry[T] // entries[0] is the reserved slot
	free    []Handle   // ascending
	live    int
	mu      sync.RWMutex
	closed  bool
}

type entry[T any] struct {
	value T
	valid bool
}

// NewLocalBackend creates a new in-memory backend.
func NewLocalBackend[T any]() *LocalBackend[T] {
	return &LocalBackend[T]{
		entries: make([]entry[T], 1, 64),
	}
}

// Create stores a value and returns its handle.
func (b *LocalBackend[T]) Create(value T) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}

	e := entry[T]{value: value, valid: true}
	b.live++

	if len(b.free) > 0 {
		handle := b.free[0]
		b.free = b.free[1:]
		b.entries[handle] = e
		return handle, nil
	}

	b.entries = append(b.entries, e)
	return Handle(len(b.entries) - 1), nil
}

// Get retrieves a value by handle.
func (b *LocalBackend[T]) Get(handle Handle) (T, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.lookup(handle)
	if !ok {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Drop removes a value and returns (value, true) if the handle was live.
func (b *LocalBackend[T]) Drop(handle Handle) (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	e, ok := b.lookup(handle)
	if !ok {
		return zero, false
	}

	value := e.value
	b.entries[handle] = entry[T]{}
	b.live--

	if int(handle) == len(b.entries)-1 {
		b.entries = b.entries[:handle]
		b.trimTail()
		return value, true
	}

	i, _ := slices.BinarySearch(b.free, handle)
	b.free = slices.Insert(b.free, i, handle)
	return value, true
}

// trimTail shrinks entries while the last slot is free, keeping the free
// list limited to holes below the high-water mark.
func (b *LocalBackend[T]) trimTail() {
	for len(b.free) > 0 {
		last := b.free[len(b.free)-1]
		if int(last) != len(b.entries)-1 {
			return
		}
		b.free = b.free[:len(b.free)-1]
		b.entries = b.entries[:last]
	}
}

// Close discards every live value; later Creates fail with ErrClosed.
func (b *LocalBackend[T]) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	b.entries = nil
	b.free = nil
	b.live = 0
	return nil
}

// Len returns the number of live values.
func (b *LocalBackend[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.live
}

// Each iterates over live values in ascending handle order.
func (b *LocalBackend[T]) Each(fn func(Handle, T) bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i, e := range b.entries {
		if e.valid {
			if !fn(Handle(i), e.value) {
				break
			}
		}
	}
}

func (b *LocalBackend[T]) lookup(handle Handle) (entry[T], bool) {
	if handle == 0 || int(handle) >= len(b.entries) {
		return entry[T]{}, false
	}
	e := b.entries[handle]
	return e, e.valid
}
