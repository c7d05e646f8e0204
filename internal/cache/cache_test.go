package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestFingerprintStability(t *testing.T) {
	a := NewFingerprint("ERROR boom", "claude-sonnet", "standard", "json")
	b := NewFingerprint("ERROR boom", "claude-sonnet", "standard", "json")
	if a != b {
		t.Errorf("identical inputs produced different fingerprints: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(a))
	}
}

func TestFingerprintSensitivity(t *testing.T) {
	base := NewFingerprint("ERROR boom", "claude-sonnet", "standard", "json")
	variants := []Fingerprint{
		NewFingerprint("ERROR bang", "claude-sonnet", "standard", "json"),
		NewFingerprint("ERROR boom", "gpt-4o-mini", "standard", "json"),
		NewFingerprint("ERROR boom", "claude-sonnet", "detailed", "json"),
		NewFingerprint("ERROR boom", "claude-sonnet", "standard", "syslog"),
	}
	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d collided with the base fingerprint", i)
		}
	}
	// Field boundaries must matter, not just concatenated bytes.
	x := NewFingerprint("ab", "c", "", "")
	y := NewFingerprint("a", "bc", "", "")
	if x == y {
		t.Error("shifting bytes across field boundaries collided")
	}
}

func TestCachePutGet(t *testing.T) {
	c := New()
	key := NewFingerprint("text", "model", "standard", "standard")

	if _, ok := c.Get(key); ok {
		t.Error("Get() on empty cache returned a hit")
	}

	c.Put(key, "analysis result")
	got, ok := c.Get(key)
	if !ok || got != "analysis result" {
		t.Errorf("Get() = (%q, %v), want (\"analysis result\", true)", got, ok)
	}

	stats := c.Snapshot()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Entries != 1 {
		t.Errorf("Snapshot() = %+v, want 1 hit, 1 miss, 1 entry", stats)
	}
}

func TestCacheLRUEviction(t *testing.T) {
	c := New(WithMaxEntries(2))
	k1 := NewFingerprint("1", "m", "v", "f")
	k2 := NewFingerprint("2", "m", "v", "f")
	k3 := NewFingerprint("3", "m", "v", "f")

	c.Put(k1, "one")
	c.Put(k2, "two")
	c.Get(k1) // k1 now most recently used
	c.Put(k3, "three")

	if _, ok := c.Get(k2); ok {
		t.Error("least recently used entry survived eviction")
	}
	if _, ok := c.Get(k1); !ok {
		t.Error("recently used entry was evicted")
	}
	if _, ok := c.Get(k3); !ok {
		t.Error("newest entry was evicted")
	}
	if ev := c.Snapshot().Evicted; ev != 1 {
		t.Errorf("Evicted = %d, want 1", ev)
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	c := New(WithTTL(time.Hour), WithClock(clock))
	key := NewFingerprint("t", "m", "v", "f")

	c.Put(key, "fresh")
	if _, ok := c.Get(key); !ok {
		t.Fatal("entry missing before TTL elapsed")
	}

	now = now.Add(time.Hour + time.Second)
	if _, ok := c.Get(key); ok {
		t.Error("entry survived past its TTL")
	}
	stats := c.Snapshot()
	if stats.Expired != 1 || stats.Entries != 0 {
		t.Errorf("Snapshot() = %+v, want 1 expired, 0 entries", stats)
	}
}

func TestCacheDisabled(t *testing.T) {
	c := New(Disabled())
	key := NewFingerprint("t", "m", "v", "f")

	c.Put(key, "value")
	if _, ok := c.Get(key); ok {
		t.Error("disabled cache returned a hit")
	}
	if c.Len() != 0 {
		t.Errorf("disabled cache holds %d entries", c.Len())
	}
}

func TestCacheNilSafe(t *testing.T) {
	var c *Cache
	c.Put(NewFingerprint("t", "m", "v", "f"), "value")
	if _, ok := c.Get(NewFingerprint("t", "m", "v", "f")); ok {
		t.Error("nil cache returned a hit")
	}
	if s := c.Snapshot(); s.Entries != 0 {
		t.Errorf("nil cache Snapshot() = %+v", s)
	}
}

func TestCacheByteAccounting(t *testing.T) {
	c := New()
	key := NewFingerprint("t", "m", "v", "f")

	c.Put(key, "12345")
	if b := c.Snapshot().Bytes; b != 5 {
		t.Errorf("Bytes = %d, want 5", b)
	}
	c.Put(key, "1234567890")
	if b := c.Snapshot().Bytes; b != 10 {
		t.Errorf("Bytes after overwrite = %d, want 10", b)
	}
	c.Clear()
	if b := c.Snapshot().Bytes; b != 0 {
		t.Errorf("Bytes after Clear = %d, want 0", b)
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New(WithMaxEntries(64))

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := NewFingerprint(fmt.Sprintf("seg-%d", i%100), "m", "v", "f")
				if i%3 == 0 {
					c.Put(key, fmt.Sprintf("result-%d", i))
				} else {
					c.Get(key)
				}
			}
		}(g)
	}
	wg.Wait()

	if n := c.Len(); n > 64 {
		t.Errorf("Len() = %d, exceeds capacity 64", n)
	}
}
