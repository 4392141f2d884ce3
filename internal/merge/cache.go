package merge

import (
	"sync"
	"time"
)

// Clock returns the current time.
type Clock func() time.Time

// resultCache holds the last merged result and when it was computed. Entries
// expire purely by age; nothing else invalidates them.
type resultCache struct {
	mu         sync.Mutex
	value      *Result
	computedAt time.Time
	ttl        time.Duration
	now        Clock
}

func newResultCache(ttl time.Duration, now Clock) *resultCache {
	return &resultCache{ttl: ttl, now: now}
}

// get returns the cached result while it is younger than the TTL.
func (c *resultCache) get() (*Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.value == nil {
		return nil, false
	}
	if c.now().Sub(c.computedAt) >= c.ttl {
		return nil, false
	}
	return c.value, true
}

// put replaces the cached result. Concurrent misses each call put; the last
// writer wins.
func (c *resultCache) put(value *Result, computedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = value
	c.computedAt = computedAt
}
