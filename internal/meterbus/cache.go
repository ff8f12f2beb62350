// internal/meterbus/cache.go
package meterbus

import "time"

// cacheKey identifies one read. Scalar reads key on their full geometry
// and type; batch reads key on the window alone.
type cacheKey struct {
	device uint8
	addr   uint16
	count  uint16
	dtype  DataType
	batch  bool
}

func scalarKey(device uint8, spec RegisterSpec) cacheKey {
	return cacheKey{device: device, addr: spec.Address, count: spec.Count, dtype: spec.Type}
}

func batchKey(device uint8, b BatchSpec) cacheKey {
	return cacheKey{device: device, addr: b.Address, count: b.Count, batch: true}
}

type cacheEntry struct {
	value any
	at    time.Time
}

// requestCache deduplicates near-simultaneous reads of the same register.
// Not safe for concurrent use: the coordinator's lock covers it.
type requestCache struct {
	ttl     time.Duration
	entries map[cacheKey]cacheEntry
}

func newRequestCache(ttl time.Duration) *requestCache {
	return &requestCache{
		ttl:     ttl,
		entries: make(map[cacheKey]cacheEntry),
	}
}

// get returns a value only while it is fresh. Expired entries are inert:
// they are dropped here rather than waiting for a sweep.
func (c *requestCache) get(key cacheKey, now time.Time) (any, bool) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if now.Sub(e.at) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *requestCache) put(key cacheKey, value any, now time.Time) {
	c.entries[key] = cacheEntry{value: value, at: now}
}

// invalidateDevice drops every entry for one unit id. Used on suspected
// cross-talk, where any cached value for that device may be poisoned.
func (c *requestCache) invalidateDevice(device uint8) int {
	n := 0
	for key := range c.entries {
		if key.device == device {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

func (c *requestCache) invalidateAll() {
	c.entries = make(map[cacheKey]cacheEntry)
}

// sweep drops expired entries. Opportunistic housekeeping only; get
// already enforces freshness.
func (c *requestCache) sweep(now time.Time) {
	for key, e := range c.entries {
		if now.Sub(e.at) >= c.ttl {
			delete(c.entries, key)
		}
	}
}

func (c *requestCache) len() int { return len(c.entries) }
