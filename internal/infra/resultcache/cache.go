package resultcache

import (
	"strings"
	"sync"
	"time"

	"mcpscene/internal/infra/hashutil"
)

type entry struct {
	value    any
	storedAt time.Time
}

// Cache maps tool call keys to their last result. Staleness is decided on read
// against the caller-supplied TTL; there is no background sweep.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

type Options struct {
	// Now overrides the clock, for tests.
	Now func() time.Time
}

func New(opts Options) *Cache {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Cache{
		entries: make(map[string]entry),
		now:     now,
	}
}

// Key builds the cache key for a tool call. The tool name leads the key so
// per-tool invalidation can match on prefix. ok is false when args cannot be
// serialized, in which case the call must not be cached.
func Key(toolName, functionName string, args map[string]any) (string, bool) {
	if args == nil {
		args = map[string]any{}
	}
	digest, err := hashutil.Fingerprint(args)
	if err != nil {
		return "", false
	}
	return toolName + ":" + functionName + ":" + digest, true
}

// Get returns the value stored under key if it is younger than ttl.
func (c *Cache) Get(key string, ttl time.Duration) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) >= ttl {
		c.mu.Lock()
		if current, still := c.entries[key]; still && current.storedAt.Equal(e.storedAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

// Put stores value under key. Last write wins.
func (c *Cache) Put(key string, value any) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, storedAt: c.now()}
	c.mu.Unlock()
}

// Invalidate drops every entry for toolName, or everything when toolName is empty.
// It returns the number of entries removed.
func (c *Cache) Invalidate(toolName string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if toolName == "" {
		n := len(c.entries)
		c.entries = make(map[string]entry)
		return n
	}
	prefix := toolName + ":"
	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored entries, stale ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
