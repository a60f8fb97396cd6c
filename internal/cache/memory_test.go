package cache

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestMemoryGetSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10, time.Minute)

	if _, ok := m.Get(ctx, "missing"); ok {
		t.Error("Get(missing) = true, want false")
	}
	m.Set(ctx, "k", "v")
	v, ok := m.Get(ctx, "k")
	if !ok || v != "v" {
		t.Errorf("Get(k) = (%q, %v), want (\"v\", true)", v, ok)
	}

	// Overwrite keeps a single entry.
	m.Set(ctx, "k", "v2")
	if v, _ := m.Get(ctx, "k"); v != "v2" {
		t.Errorf("Get(k) after overwrite = %q, want \"v2\"", v)
	}
}

func TestMemoryTTLExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(10, time.Minute)
	clock := time.Now()
	m.now = func() time.Time { return clock }

	m.Set(ctx, "k", "v")
	clock = clock.Add(59 * time.Second)
	if _, ok := m.Get(ctx, "k"); !ok {
		t.Fatal("entry expired before its TTL")
	}
	clock = clock.Add(2 * time.Second)
	if _, ok := m.Get(ctx, "k"); ok {
		t.Fatal("entry survived past its TTL")
	}
}

func TestMemoryLRUEviction(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(3, time.Minute)

	m.Set(ctx, "a", "1")
	m.Set(ctx, "b", "2")
	m.Set(ctx, "c", "3")
	// Touch "a" so "b" becomes the least recently used.
	m.Get(ctx, "a")
	m.Set(ctx, "d", "4")

	if _, ok := m.Get(ctx, "b"); ok {
		t.Error("least recently used entry survived eviction")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok := m.Get(ctx, k); !ok {
			t.Errorf("entry %q evicted unexpectedly", k)
		}
	}
}

func TestMemoryConcurrent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(64, time.Minute)
	done := make(chan struct{})
	for g := 0; g < 4; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 100; i++ {
				key := fmt.Sprintf("k%d", i%16)
				m.Set(ctx, key, "v")
				m.Get(ctx, key)
			}
		}(g)
	}
	for g := 0; g < 4; g++ {
		<-done
	}
}

func TestNop(t *testing.T) {
	ctx := context.Background()
	var c Cache = Nop{}
	c.Set(ctx, "k", "v")
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("Nop cache stored a value")
	}
}
