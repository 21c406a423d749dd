package cache

import (
	"strings"
	"time"
)

// Defaults for the query cache. Answers go stale as the corpus or prompt
// evolves, so the TTL is short and nothing is persisted.
const (
	DefaultQueryMaxSize = 200
	DefaultQueryTTL     = 30 * time.Minute
)

// QueryCache caches complete answer payloads keyed by the normalized
// question text plus a hash of the retrieved context. Two phrasings that
// normalize identically against the same context share an entry.
type QueryCache struct {
	mem *Store
}

// NewQueryCache constructs a QueryCache with the given capacity and TTL,
// falling back to package defaults for non-positive values.
func NewQueryCache(maxSize int, ttl time.Duration) *QueryCache {
	if maxSize <= 0 {
		maxSize = DefaultQueryMaxSize
	}
	if ttl <= 0 {
		ttl = DefaultQueryTTL
	}
	return &QueryCache{mem: NewStore(maxSize, ttl)}
}

// Key derives the cache key for a question against a retrieval context.
// The question is lowercased and trimmed so trivial rephrasings collide.
func (c *QueryCache) Key(question, contextText string) string {
	return FieldKey(map[string]string{
		"query":        strings.ToLower(strings.TrimSpace(question)),
		"context_hash": ContentHash(contextText),
	})
}

// Get returns the cached answer payload for key and true on a hit.
func (c *QueryCache) Get(key string) (any, bool) { return c.mem.Get(key) }

// Put stores an answer payload under key.
func (c *QueryCache) Put(key string, value any) { c.mem.Set(key, value) }

// Clear empties the cache.
func (c *QueryCache) Clear() { c.mem.Clear() }

// Stats returns the cache counters.
func (c *QueryCache) Stats() Stats { return c.mem.Stats() }
