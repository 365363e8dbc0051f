package resource

import (
	"sync"
	"testing"
)

func TestLocalBackend_Basic(t *testing.T) {
	b := NewLocalBackend()

	handle, err := b.Create(KindBehavior, "test value")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if handle == 0 {
		t.Fatal("Expected non-zero handle")
	}

	val, ok := b.Get(handle)
	if !ok || val != "test value" {
		t.Fatalf("Get: got %v, %v", val, ok)
	}

	kind, ok := b.Kind(handle)
	if !ok || kind != KindBehavior {
		t.Fatalf("Kind: got %v, %v", kind, ok)
	}

	val, ok = b.Drop(handle)
	if !ok || val != "test value" {
		t.Fatalf("Drop: got %v, %v", val, ok)
	}

	if _, ok := b.Get(handle); ok {
		t.Fatal("Expected Get to fail after Drop")
	}
}

func TestLocalBackend_HandleReuse(t *testing.T) {
	b := NewLocalBackend()

	h1, _ := b.Create(KindBehavior, "a")
	b.Drop(h1)
	h2, _ := b.Create(KindEnvironment, "b")

	if h1 != h2 {
		t.Fatalf("Expected slot reuse, got %d and %d", h1, h2)
	}
	kind, _ := b.Kind(h2)
	if kind != KindEnvironment {
		t.Fatal("reused slot kept the old kind")
	}
}

func TestLocalBackend_Close(t *testing.T) {
	b := NewLocalBackend()
	b.Create(KindBehavior, "a")

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if _, err := b.Create(KindBehavior, "b"); err != ErrClosed {
		t.Fatalf("Expected ErrClosed, got %v", err)
	}
}

func TestLocalBackend_Concurrent(t *testing.T) {
	b := NewLocalBackend()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h, err := b.Create(KindEnvironment, j)
				if err != nil {
					t.Error(err)
					return
				}
				b.Get(h)
				b.Drop(h)
			}
		}()
	}
	wg.Wait()

	if b.Len() != 0 {
		t.Fatalf("Expected Len() == 0, got %d", b.Len())
	}
}

func TestLocalBackend_EachSkipsDropped(t *testing.T) {
	b := NewLocalBackend()
	h1, _ := b.Create(KindBehavior, "a")
	h2, _ := b.Create(KindBehavior, "b")
	b.Create(KindBehavior, "c")

	var seen []any
	b.Each(func(h Handle, _ Kind, v any) bool {
		if h == h1 {
			b.Drop(h2)
		}
		seen = append(seen, v)
		return true
	})

	if len(seen) != 2 || seen[0] != "a" || seen[1] != "c" {
		t.Fatalf("Each saw %v, want [a c]", seen)
	}
}

func TestLocalBackend_InvalidHandle(t *testing.T) {
	b := NewLocalBackend()

	if _, ok := b.Get(0); ok {
		t.Fatal("handle 0 must be invalid")
	}
	if _, ok := b.Get(42); ok {
		t.Fatal("unknown handle must be invalid")
	}
	if _, ok := b.Drop(42); ok {
		t.Fatal("Drop of unknown handle must fail")
	}
	if _, ok := b.Kind(0); ok {
		t.Fatal("Kind of handle 0 must fail")
	}
}

func TestLocalBackend_DetachRelease(t *testing.T) {
	b := NewLocalBackend()
	h, _ := b.Create(KindBehavior, "a")

	val, ok := b.Detach(h)
	if !ok || val != "a" {
		t.Fatalf("Detach: got %v, %v", val, ok)
	}
	if _, ok := b.Get(h); ok {
		t.Fatal("Expected Get to fail after Detach")
	}
	if _, ok := b.Drop(h); ok {
		t.Fatal("Drop of a detached handle must fail")
	}

	other, _ := b.Create(KindBehavior, "b")
	if other == h {
		t.Fatal("detached slot must not be reused before Release")
	}

	b.Release(h)
	b.Release(h)
	first, _ := b.Create(KindBehavior, "c")
	second, _ := b.Create(KindBehavior, "d")
	if first != h {
		t.Fatalf("Expected released handle %d to be reused, got %d", h, first)
	}
	if second == h {
		t.Fatal("double Release must not free the slot twice")
	}
}
