package cache

import (
	"strings"
	"testing"
	"time"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a should be cached")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("a = %d, %v", v, ok)
	}
	if c.Size() != 2 {
		t.Fatalf("size = %d", c.Size())
	}
}

func TestLRUExpiry(t *testing.T) {
	c := NewLRUCache[string](10, 10*time.Millisecond)
	c.Set("k", "v")
	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry should have expired")
	}

	c.Set("x", "1")
	c.Set("y", "2")
	time.Sleep(20 * time.Millisecond)
	if n := c.CleanExpired(); n != 2 {
		t.Fatalf("cleaned %d entries, want 2", n)
	}
}

func TestLRUDeleteFunc(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	c.Set("u1|2025-01|2025-03", 1)
	c.Set("u1|2025-02|2025-03", 2)
	c.Set("u2|2025-01|2025-03", 3)

	n := c.DeleteFunc(func(k string) bool { return strings.HasPrefix(k, "u1|") })
	if n != 2 || c.Size() != 1 {
		t.Fatalf("removed %d, size %d", n, c.Size())
	}
	if _, ok := c.Get("u2|2025-01|2025-03"); !ok {
		t.Fatal("other user's entry must survive")
	}
}

func TestManagerCleanAll(t *testing.T) {
	c := NewLRUCache[int](10, time.Millisecond)
	c.Set("a", 1)
	m := NewManager(nil)
	m.Register(c)
	time.Sleep(5 * time.Millisecond)
	m.CleanAll()
	if c.Size() != 0 {
		t.Fatalf("size = %d after cleanup", c.Size())
	}

	if err := m.StartCleanup("not a schedule"); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	if err := m.StartCleanup("@every 1h"); err != nil {
		t.Fatalf("start: %v", err)
	}
	m.Stop()
}
