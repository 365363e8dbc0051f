package resource

import (
	"sync"
)

// Table tracks live owners by handle and drops them in kind order on teardown.
type Table struct {
	backend   *LocalBackend
	observers []Observer
	obsMu     sync.RWMutex
	closed    bool
	closeMu   sync.RWMutex
}

// NewTable creates a table with a LocalBackend.
func NewTable() *Table {
	return &Table{
		backend: NewLocalBackend(),
	}
}

// Insert tracks a value and returns its handle. It returns 0 once the table
// is closed.
func (t *Table) Insert(kind Kind, value any) Handle {
	t.closeMu.RLock()
	if t.closed {
		t.closeMu.RUnlock()
		return 0
	}
	t.closeMu.RUnlock()

	handle, err := t.backend.Create(kind, value)
	if err != nil {
		return 0
	}

	t.notify(Event{
		Type:   EventTracked,
		Handle: handle,
		Kind:   kind,
		Value:  value,
	})

	return handle
}

// Get retrieves a value by handle.
func (t *Table) Get(handle Handle) (any, bool) {
	return t.backend.Get(handle)
}

// Remove stops tracking handle and calls Drop on the value if it implements
// Dropper. The handle is invalid before Drop runs, so Drop may call Remove
// or Forget on its own handle again. The handle is not reused until Drop
// returns.
func (t *Table) Remove(handle Handle) (any, bool) {
	kind, _ := t.backend.Kind(handle)
	value, ok := t.backend.Detach(handle)
	if !ok {
		return nil, false
	}

	if d, ok := value.(Dropper); ok {
		d.Drop()
	}
	t.backend.Release(handle)

	t.notify(Event{
		Type:   EventDropped,
		Handle: handle,
		Kind:   kind,
		Value:  value,
	})

	return value, true
}

// Forget stops tracking handle without calling Drop.
func (t *Table) Forget(handle Handle) (any, bool) {
	kind, _ := t.backend.Kind(handle)
	value, ok := t.backend.Drop(handle)
	if !ok {
		return nil, false
	}
	t.notify(Event{
		Type:   EventDropped,
		Handle: handle,
		Kind:   kind,
		Value:  value,
	})
	return value, true
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Len returns the number of tracked values.
func (t *Table) Len() int {
	return t.backend.Len()
}

// Count returns the number of tracked values of one kind.
func (t *Table) Count(kind Kind) int {
	n := 0
	t.backend.Each(func(_ Handle, k Kind, _ any) bool {
		if k == kind {
			n++
		}
		return true
	})
	return n
}

// Each visits tracked values of one kind in insertion order.
func (t *Table) Each(kind Kind, fn func(Handle, any) bool) {
	t.backend.Each(func(h Handle, k Kind, v any) bool {
		if k != kind {
			return true
		}
		return fn(h, v)
	})
}

// ClearKind removes every value of one kind, in insertion order, and returns
// how many were removed.
func (t *Table) ClearKind(kind Kind) int {
	var handles []Handle
	t.Each(kind, func(h Handle, _ any) bool {
		handles = append(handles, h)
		return true
	})
	n := 0
	for _, h := range handles {
		if _, ok := t.Remove(h); ok {
			n++
		}
	}
	return n
}

// Clear removes every tracked value.
func (t *Table) Clear() {
	// Collect handles first to avoid holding lock during Remove
	var handles []Handle
	t.backend.Each(func(h Handle, _ Kind, _ any) bool {
		handles = append(handles, h)
		return true
	})
	for _, h := range handles {
		t.Remove(h)
	}
}

// Close drops everything still tracked and stops accepting inserts.
func (t *Table) Close() error {
	t.closeMu.Lock()
	t.closed = true
	t.closeMu.Unlock()

	return t.backend.Close()
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}

// TypedTable is a view over one kind of a Table with a fixed Go type.
type TypedTable[T any] struct {
	table *Table
	kind  Kind
}

// Typed returns a typed view of kind.
func Typed[T any](t *Table, kind Kind) *TypedTable[T] {
	return &TypedTable[T]{table: t, kind: kind}
}

// Each visits values of this kind that hold a T.
func (tt *TypedTable[T]) Each(fn func(Handle, T) bool) {
	tt.table.Each(tt.kind, func(h Handle, v any) bool {
		typed, ok := v.(T)
		if !ok {
			return true
		}
		return fn(h, typed)
	})
}
