package symbols

import "sync"

// Cache memoizes Normalize results. Normalization is pure and the same raw
// tickers arrive over and over from ingestion and verification, so a plain
// map keyed by (raw, hint) is enough.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]NormalizedSymbol
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]NormalizedSymbol)}
}

// Normalize returns the cached result for (raw, hint), computing it on first use.
func (c *Cache) Normalize(raw, hint string) NormalizedSymbol {
	key := raw + "|" + hint

	c.mu.RLock()
	ns, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return ns
	}

	ns = Normalize(raw, hint)

	c.mu.Lock()
	c.entries[key] = ns
	c.mu.Unlock()
	return ns
}

// Len reports the number of memoized entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
