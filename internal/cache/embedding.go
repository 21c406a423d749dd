package cache

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Defaults for the embedding cache. Embeddings are expensive to recompute
// and immutable for a given text, so the TTL is generous.
const (
	DefaultEmbeddingMaxSize = 500
	DefaultEmbeddingTTL     = 2 * time.Hour
)

// diskEntry is the JSON document persisted per embedding under the cache
// directory. The preview exists only to make the files inspectable.
type diskEntry struct {
	TextPreview string    `json:"text_preview"`
	Embedding   []float32 `json:"embedding"`
	Timestamp   time.Time `json:"timestamp"`
	TextLength  int       `json:"text_length"`
}

// EmbeddingCache caches embedding vectors in memory with a write-through
// disk layer. The disk layer survives process restarts: a memory miss falls
// back to `<dir>/<sha256>.json`, and a disk hit repopulates memory.
//
// Disk failures are never fatal. A read error is a miss, a write error is
// a no-op; both are logged at warn level.
type EmbeddingCache struct {
	mem *Store
	dir string
	log *slog.Logger
}

// NewEmbeddingCache constructs an EmbeddingCache persisting to
// dir/embeddings. An empty dir disables the disk layer entirely.
func NewEmbeddingCache(dir string, maxSize int, ttl time.Duration, log *slog.Logger) (*EmbeddingCache, error) {
	if maxSize <= 0 {
		maxSize = DefaultEmbeddingMaxSize
	}
	if ttl <= 0 {
		ttl = DefaultEmbeddingTTL
	}
	c := &EmbeddingCache{
		mem: NewStore(maxSize, ttl),
		log: log,
	}
	if dir != "" {
		c.dir = filepath.Join(dir, "embeddings")
		if err := os.MkdirAll(c.dir, 0o755); err != nil {
			return nil, fmt.Errorf("cache: create embedding cache dir: %w", err)
		}
	}
	return c, nil
}

// Get returns the cached embedding for key and true on a hit.
// The memory layer is consulted first; on a miss the disk layer is read
// and, when it hits, the vector is promoted back into memory.
func (c *EmbeddingCache) Get(key string) ([]float32, bool) {
	if v, ok := c.mem.Get(key); ok {
		if vec, ok := v.([]float32); ok {
			return vec, true
		}
	}

	if c.dir == "" {
		return nil, false
	}

	data, err := os.ReadFile(c.diskPath(key))
	if err != nil {
		if !os.IsNotExist(err) {
			c.log.Warn("embedding cache disk read failed",
				slog.String("key", ContentHash(key)[:12]),
				slog.Any("error", err),
			)
		}
		return nil, false
	}

	var de diskEntry
	if err := json.Unmarshal(data, &de); err != nil {
		c.log.Warn("embedding cache disk entry corrupt",
			slog.String("key", ContentHash(key)[:12]),
			slog.Any("error", err),
		)
		return nil, false
	}

	c.mem.Set(key, de.Embedding)
	return de.Embedding, true
}

// Put stores the embedding for key in memory and, when a cache directory
// is configured, writes it through to disk.
func (c *EmbeddingCache) Put(key string, embedding []float32) {
	c.mem.Set(key, embedding)

	if c.dir == "" {
		return
	}

	de := diskEntry{
		TextPreview: preview(key, 100),
		Embedding:   embedding,
		Timestamp:   time.Now().UTC(),
		TextLength:  len(key),
	}
	data, err := json.Marshal(de)
	if err != nil {
		c.log.Warn("embedding cache marshal failed", slog.Any("error", err))
		return
	}
	if err := os.WriteFile(c.diskPath(key), data, 0o644); err != nil {
		c.log.Warn("embedding cache disk write failed",
			slog.String("key", ContentHash(key)[:12]),
			slog.Any("error", err),
		)
	}
}

// Clear empties the memory layer and removes persisted entries from disk.
func (c *EmbeddingCache) Clear() {
	c.mem.Clear()

	if c.dir == "" {
		return
	}
	matches, err := filepath.Glob(filepath.Join(c.dir, "*.json"))
	if err != nil {
		return
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			c.log.Warn("embedding cache disk remove failed",
				slog.String("path", m),
				slog.Any("error", err),
			)
		}
	}
}

// Stats returns counters for the memory layer.
func (c *EmbeddingCache) Stats() Stats { return c.mem.Stats() }

// diskPath maps a key to its persisted JSON file.
func (c *EmbeddingCache) diskPath(key string) string {
	return filepath.Join(c.dir, ContentHash(key)+".json")
}

// preview truncates s to at most n bytes for human inspection.
func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
