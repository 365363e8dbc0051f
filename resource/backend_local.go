package resource

import (
	"cmp"
	"errors"
	"slices"
	"sync"
)

var ErrClosed = errors.New("resource backend closed")

// LocalBackend is the in-memory slot store behind Table.
type LocalBackend struct {
	entries  []entry
	freeList []Handle
	seq      uint64
	mu       sync.RWMutex
	closed   bool
}

type entry struct {
	value    any
	kind     Kind
	seq      uint64
	valid    bool
	detached bool
}

// NewLocalBackend creates a new in-memory backend.
func NewLocalBackend() *LocalBackend {
	return &LocalBackend{
		entries:  make([]entry, 0, 64),
		freeList: make([]Handle, 0, 16),
	}
}

// Create stores a value and returns a handle. Freed slots are reused.
func (b *LocalBackend) Create(kind Kind, value any) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}

	b.seq++
	e := entry{kind: kind, value: value, seq: b.seq, valid: true}

	if n := len(b.freeList); n > 0 {
		handle := b.freeList[n-1]
		b.freeList = b.freeList[:n-1]
		b.entries[handle-1] = e
		return handle, nil
	}

	b.entries = append(b.entries, e)
	return Handle(len(b.entries)), nil
}

func (b *LocalBackend) lookup(handle Handle) (entry, bool) {
	if handle == 0 || int(handle) > len(b.entries) {
		return entry{}, false
	}
	e := b.entries[handle-1]
	return e, e.valid
}

// Get retrieves a value by handle.
func (b *LocalBackend) Get(handle Handle) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.lookup(handle)
	return e.value, ok
}

// Kind returns the kind a handle was created with.
func (b *LocalBackend) Kind(handle Handle) (Kind, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.lookup(handle)
	return e.kind, ok
}

// Drop invalidates a handle and returns its value. It returns (nil, false)
// when the handle is unknown or already dropped.
func (b *LocalBackend) Drop(handle Handle) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	value, ok := b.invalidate(handle)
	if ok {
		b.freeList = append(b.freeList, handle)
	}
	return value, ok
}

// Detach invalidates a handle like Drop but keeps its slot out of the free
// list until Release. Values created in between never receive the handle.
func (b *LocalBackend) Detach(handle Handle) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	value, ok := b.invalidate(handle)
	if ok {
		b.entries[handle-1].detached = true
	}
	return value, ok
}

// Release returns a detached slot to the free list.
func (b *LocalBackend) Release(handle Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if handle == 0 || int(handle) > len(b.entries) {
		return
	}
	e := &b.entries[handle-1]
	if !e.detached {
		return
	}
	e.detached = false
	b.freeList = append(b.freeList, handle)
}

func (b *LocalBackend) invalidate(handle Handle) (any, bool) {
	if _, ok := b.lookup(handle); !ok {
		return nil, false
	}
	e := &b.entries[handle-1]
	value := e.value
	e.valid = false
	e.value = nil
	return value, true
}

// Close invalidates every slot, calling Drop on values that implement Dropper.
// Values are dropped after the lock is released.
func (b *LocalBackend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true

	var pending []Dropper
	for i := range b.entries {
		if b.entries[i].valid {
			if d, ok := b.entries[i].value.(Dropper); ok {
				pending = append(pending, d)
			}
		}
	}
	b.entries = nil
	b.freeList = nil
	b.mu.Unlock()

	for _, d := range pending {
		d.Drop()
	}
	return nil
}

// Len returns the number of live entries.
func (b *LocalBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, e := range b.entries {
		if e.valid {
			count++
		}
	}
	return count
}

// Each iterates over entries live at the time of the call, in insertion
// order. fn may drop entries; dropped ones are skipped.
func (b *LocalBackend) Each(fn func(Handle, Kind, any) bool) {
	b.mu.RLock()
	type item struct {
		h   Handle
		seq uint64
	}
	items := make([]item, 0, len(b.entries))
	for i, e := range b.entries {
		if e.valid {
			items = append(items, item{Handle(i + 1), e.seq})
		}
	}
	b.mu.RUnlock()

	// Slots are reused, so handle order is not insertion order.
	slices.SortFunc(items, func(a, b item) int { return cmp.Compare(a.seq, b.seq) })

	for _, it := range items {
		b.mu.RLock()
		e, ok := b.lookup(it.h)
		b.mu.RUnlock()
		if !ok || e.seq != it.seq {
			continue
		}
		if !fn(it.h, e.kind, e.value) {
			return
		}
	}
}
