package resource

import (
	"sync"
)

// Table maps handles to values of type T and notifies observers of
// insertions and removals.
type Table[T any] struct {
	backend   *LocalBackend[T]
	observers []Observer
	obsMu     sync.RWMutex
	closed    bool
	closeMu   sync.RWMutex
}

// NewTable creates a new table with a LocalBackend.
func NewTable[T any]() *Table[T] {
	return &Table[T]{
		backend: NewLocalBackend[T](),
	}
}

// Insert adds a value and returns its handle, or 0 once the table is closed.
func (t *Table[T]) Insert(value T) Handle {
	t.closeMu.RLock()
	if t.closed {
		t.closeMu.RUnlock()
		return 0
	}
	t.closeMu.RUnlock()

	handle, err := t.backend.Create(value)
	if err != nil {
		return 0
	}

	t.notify(Event{
		Type:   EventCreated,
		Handle: handle,
		Value:  value,
	})

	return handle
}

// Get retrieves a value by handle.
func (t *Table[T]) Get(handle Handle) (T, bool) {
	return t.backend.Get(handle)
}

// Contains reports whether handle names a live value.
func (t *Table[T]) Contains(handle Handle) bool {
	_, ok := t.backend.Get(handle)
	return ok
}

// Remove drops a value and returns (value, true) if found.
func (t *Table[T]) Remove(handle Handle) (T, bool) {
	value, ok := t.backend.Drop(handle)
	if !ok {
		return value, false
	}

	t.notify(Event{
		Type:   EventDropped,
		Handle: handle,
		Value:  value,
	})

	return value, true
}

// Subscribe adds an observer for lifecycle events.
func (t *Table[T]) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table[T]) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Len returns the number of live values.
func (t *Table[T]) Len() int {
	return t.backend.Len()
}

// Each iterates over live values in ascending handle order.
func (t *Table[T]) Each(fn func(Handle, T) bool) {
	t.backend.Each(fn)
}

// Handles returns the live handles in ascending order.
func (t *Table[T]) Handles() []Handle {
	var handles []Handle
	t.backend.Each(func(h Handle, _ T) bool {
		handles = append(handles, h)
		return true
	})
	return handles
}

// Clear removes every value, notifying observers for each.
func (t *Table[T]) Clear() {
	for _, h := range t.Handles() {
		t.Remove(h)
	}
}

// Close releases all values and stops accepting inserts.
func (t *Table[T]) Close() error {
	t.closeMu.Lock()
	t.closed = true
	t.closeMu.Unlock()

	return t.backend.Close()
}

func (t *Table[T]) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
