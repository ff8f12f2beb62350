// internal/meterbus/cache_test.go
package meterbus

import (
	"testing"
	"time"
)

func TestCache_FreshAndExpired(t *testing.T) {
	c := newRequestCache(3 * time.Second)
	key := cacheKey{device: 10, addr: 0x0BB7, count: 2, dtype: Float32}
	t0 := time.Now()

	c.put(key, float32(1.5), t0)

	if v, ok := c.get(key, t0.Add(time.Second)); !ok || v != float32(1.5) {
		t.Fatalf("expected fresh hit, got v=%v ok=%v", v, ok)
	}
	if _, ok := c.get(key, t0.Add(3*time.Second)); ok {
		t.Fatalf("expected expiry at TTL boundary")
	}
	// Expired entries are dropped on access.
	if c.len() != 0 {
		t.Fatalf("expected expired entry removed, len=%d", c.len())
	}
}

func TestCache_InvalidateDevice(t *testing.T) {
	c := newRequestCache(3 * time.Second)
	now := time.Now()

	c.put(cacheKey{device: 10, addr: 1, count: 1, dtype: Uint16}, uint16(1), now)
	c.put(cacheKey{device: 10, addr: 2, count: 1, dtype: Uint16}, uint16(2), now)
	c.put(cacheKey{device: 30, addr: 1, count: 1, dtype: Uint16}, uint16(3), now)

	if n := c.invalidateDevice(10); n != 2 {
		t.Fatalf("expected 2 entries purged, got %d", n)
	}
	if _, ok := c.get(cacheKey{device: 30, addr: 1, count: 1, dtype: Uint16}, now); !ok {
		t.Fatalf("other device's entry must survive")
	}
}

func TestCache_Sweep(t *testing.T) {
	c := newRequestCache(time.Second)
	t0 := time.Now()

	c.put(cacheKey{device: 1, addr: 1, count: 1, dtype: Uint16}, uint16(1), t0)
	c.put(cacheKey{device: 1, addr: 2, count: 1, dtype: Uint16}, uint16(2), t0.Add(900*time.Millisecond))

	c.sweep(t0.Add(1100 * time.Millisecond))

	if c.len() != 1 {
		t.Fatalf("expected 1 entry after sweep, got %d", c.len())
	}
}
