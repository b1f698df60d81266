package session

import "time"

// CacheBustGenerator hands out a strictly increasing value per session so
// that caching intermediaries never answer a request with a stored response.
type CacheBustGenerator struct {
	now     func() time.Time
	counter int32
	seeded  bool
}

// NewCacheBustGenerator creates a generator seeded from now on first use.
// A nil clock uses time.Now.
func NewCacheBustGenerator(now func() time.Time) *CacheBustGenerator {
	if now == nil {
		now = time.Now
	}
	return &CacheBustGenerator{now: now}
}

// Next returns the current counter value and advances it. The first call
// seeds the counter with the wall clock in Unix seconds, truncated to 32 bits.
func (c *CacheBustGenerator) Next() int32 {
	if !c.seeded {
		c.counter = int32(c.now().Unix())
		c.seeded = true
	}
	v := c.counter
	c.counter++
	return v
}
