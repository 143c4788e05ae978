package mem

// Cache geometry for the hit/miss counters: 16 direct-mapped lines of 64
// bytes. Only the counters are observable; no contents or timing are modeled.
const (
	cacheLines    = 16
	cacheLineSize = 64
)

// CacheStats counts quad-access hits and misses against a direct-mapped tag
// array.
type CacheStats struct {
	tags   [cacheLines]int64
	filled [cacheLines]bool
	hits   int64
	misses int64
}

func newCacheStats() *CacheStats {
	return &CacheStats{}
}

func (c *CacheStats) access(addr int64) {
	tag := addr / cacheLineSize
	line := tag % cacheLines
	if c.filled[line] && c.tags[line] == tag {
		c.hits++
		return
	}
	c.misses++
	c.tags[line] = tag
	c.filled[line] = true
}

// Hits returns the number of cache hits so far.
func (c *CacheStats) Hits() int64 {
	return c.hits
}

// Misses returns the number of cache misses so far.
func (c *CacheStats) Misses() int64 {
	return c.misses
}

// Rate returns the hit rate as a percentage in [0, 100].
func (c *CacheStats) Rate() float64 {
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total) * 100
}
