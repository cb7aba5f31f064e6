package cache

import (
	"testing"
	"time"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRU[string, int](2, 0)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a missing")
	}
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %v, %v", v, ok)
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d", c.Len())
	}
}

func TestLRUExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRU[string, int](10, time.Minute).WithClock(func() time.Time { return now })
	c.Set("a", 1)
	c.Set("b", 2)

	now = now.Add(30 * time.Second)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a expired too early")
	}

	now = now.Add(time.Minute)
	if n := c.CleanExpired(); n != 2 {
		t.Errorf("CleanExpired = %d, want 2", n)
	}
	if _, ok := c.Get("a"); ok {
		t.Error("a should be gone")
	}
}

func TestLRUDeleteFunc(t *testing.T) {
	c := NewLRU[string, int](10, 0)
	for _, k := range []string{"2024-10|x", "2024-11|y", "all|z"} {
		c.Set(k, 1)
	}
	n := c.DeleteFunc(func(k string) bool { return k[:4] == "2024" })
	if n != 2 || c.Len() != 1 {
		t.Errorf("DeleteFunc removed %d, left %d", n, c.Len())
	}
	c.Purge()
	if c.Len() != 0 {
		t.Errorf("Purge left %d", c.Len())
	}
}

func TestLRUStats(t *testing.T) {
	c := NewLRU[int, string](1, 0)
	c.Set(1, "x")
	c.Get(1)
	c.Get(2)
	c.Delete(1)
	c.Get(1)
	if s := c.Stats(); s.Hits != 1 || s.Misses != 2 {
		t.Errorf("Stats = %+v", s)
	}
}
