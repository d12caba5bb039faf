package resource

import (
	"errors"
	"sync"
	"testing"
)

func TestLocalBackend_Basic(t *testing.T) {
	b := NewLocalBackend[string]()

	handle, err := b.Create("test value")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if handle != 1 {
		t.Fatalf("Expected first handle 1, got %d", handle)
	}

	val, ok := b.Get(handle)
	if !ok {
		t.Fatal("Get failed")
	}
	if val != "test value" {
		t.Fatalf("Expected 'test value', got %v", val)
	}

	val, ok = b.Drop(handle)
	if !ok {
		t.Fatal("Drop failed")
	}
	if val != "test value" {
		t.Fatalf("Expected 'test value', got %v", val)
	}

	if _, ok = b.Get(handle); ok {
		t.Fatal("Expected Get to fail after Drop")
	}
}

func TestLocalBackend_FirstFit(t *testing.T) {
	tests := []struct {
		name   string
		create int
		drop   []Handle
		want   []Handle
	}{
		{
			name:   "lowest hole first",
			create: 5,
			drop:   []Handle{4, 2},
			want:   []Handle{2, 4, 6},
		},
		{
			name:   "drop order does not matter",
			create: 4,
			drop:   []Handle{1, 3, 2},
			want:   []Handle{1, 2, 3, 5},
		},
		{
			name:   "tail drop shrinks",
			create: 3,
			drop:   []Handle{3, 2},
			want:   []Handle{2, 3, 4},
		},
		{
			name:   "everything freed",
			create: 3,
			drop:   []Handle{2, 1, 3},
			want:   []Handle{1, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewLocalBackend[int]()
			for i := 0; i < tt.create; i++ {
				h, err := b.Create(i)
				if err != nil {
					t.Fatalf("Create: %v", err)
				}
				if h != Handle(i+1) {
					t.Fatalf("Create %d returned %d", i, h)
				}
			}
			for _, h := range tt.drop {
				if _, ok := b.Drop(h); !ok {
					t.Fatalf("Drop(%d) failed", h)
				}
			}
			for i, want := range tt.want {
				got, err := b.Create(100 + i)
				if err != nil {
					t.Fatalf("Create: %v", err)
				}
				if got != want {
					t.Errorf("insert %d: got handle %d, want %d", i, got, want)
				}
			}
		})
	}
}

func TestLocalBackend_DoubleDrop(t *testing.T) {
	b := NewLocalBackend[string]()
	h, _ := b.Create("a")
	b.Create("b")

	if _, ok := b.Drop(h); !ok {
		t.Fatal("first Drop failed")
	}
	if _, ok := b.Drop(h); ok {
		t.Fatal("second Drop should report missing")
	}
	if b.Len() != 1 {
		t.Fatalf("Expected Len() == 1, got %d", b.Len())
	}

	// a double drop must not create a duplicate hole
	h1, _ := b.Create("c")
	h2, _ := b.Create("d")
	if h1 == h2 {
		t.Fatalf("duplicate handle %d", h1)
	}
}

func TestLocalBackend_Close(t *testing.T) {
	b := NewLocalBackend[string]()

	h, _ := b.Create("a")
	b.Create("b")

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if b.Len() != 0 {
		t.Fatalf("Expected Len() == 0 after Close, got %d", b.Len())
	}
	if _, ok := b.Get(h); ok {
		t.Fatal("Get should fail after Close")
	}

	_, err := b.Create("c")
	if !errors.Is(err, ErrClosed) {
		t.Fatal("Expected ErrClosed after Close")
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestLocalBackend_Concurrent(t *testing.T) {
	b := NewLocalBackend[int]()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			h, _ := b.Create(id)
			if v, ok := b.Get(h); !ok || v != id {
				t.Errorf("Get(%d) = %d, %v", h, v, ok)
			}
			b.Drop(h)
		}(i)
	}

	wg.Wait()
	if b.Len() != 0 {
		t.Fatalf("Expected Len() == 0, got %d", b.Len())
	}
}

func TestLocalBackend_Len(t *testing.T) {
	b := NewLocalBackend[string]()

	if b.Len() != 0 {
		t.Fatal("Expected Len() == 0 initially")
	}

	h1, _ := b.Create("a")
	h2, _ := b.Create("b")
	b.Create("c")

	if b.Len() != 3 {
		t.Fatalf("Expected Len() == 3, got %d", b.Len())
	}

	b.Drop(h1)
	if b.Len() != 2 {
		t.Fatalf("Expected Len() == 2, got %d", b.Len())
	}

	b.Drop(h2)
	if b.Len() != 1 {
		t.Fatalf("Expected Len() == 1, got %d", b.Len())
	}
}

func TestLocalBackend_Each(t *testing.T) {
	b := NewLocalBackend[string]()

	b.Create("a")
	h, _ := b.Create("b")
	b.Create("c")
	b.Drop(h)

	var seen []Handle
	b.Each(func(h Handle, value string) bool {
		seen = append(seen, h)
		return true
	})

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 3 {
		t.Fatalf("Expected handles [1 3], got %v", seen)
	}

	count := 0
	b.Each(func(Handle, string) bool {
		count++
		return false
	})

	if count != 1 {
		t.Fatalf("Expected to iterate over 1 item (early term), got %d", count)
	}
}

func TestLocalBackend_InvalidHandle(t *testing.T) {
	b := NewLocalBackend[string]()
	b.Create("a")

	if _, ok := b.Get(0); ok {
		t.Fatal("Handle 0 should be invalid")
	}
	if _, ok := b.Drop(0); ok {
		t.Fatal("Handle 0 should fail Drop")
	}
	if _, ok := b.Get(999); ok {
		t.Fatal("Non-existent handle should be invalid")
	}
}
