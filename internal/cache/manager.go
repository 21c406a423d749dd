package cache

import (
	"log/slog"
	"time"
)

// ManagerConfig carries the tunables for both pipeline caches.
// Zero values select the package defaults.
type ManagerConfig struct {
	// Dir is the on-disk cache root. Empty disables embedding persistence.
	Dir string

	EmbeddingMaxSize int
	EmbeddingTTL     time.Duration

	QueryMaxSize int
	QueryTTL     time.Duration
}

// Manager bundles the embedding and query caches. One Manager is built per
// process and handed to every consumer; there is no package-level instance.
type Manager struct {
	// Embeddings is the disk-backed embedding vector cache.
	Embeddings *EmbeddingCache
	// Queries is the short-lived answer cache.
	Queries *QueryCache
}

// NewManager constructs both caches from cfg.
func NewManager(cfg ManagerConfig, log *slog.Logger) (*Manager, error) {
	emb, err := NewEmbeddingCache(cfg.Dir, cfg.EmbeddingMaxSize, cfg.EmbeddingTTL, log)
	if err != nil {
		return nil, err
	}
	return &Manager{
		Embeddings: emb,
		Queries:    NewQueryCache(cfg.QueryMaxSize, cfg.QueryTTL),
	}, nil
}

// ClearAll empties both caches, including persisted embeddings.
func (m *Manager) ClearAll() {
	m.Embeddings.Clear()
	m.Queries.Clear()
}

// StatsByName returns per-cache counters keyed by cache name, in the shape
// served by GET /api/stats and `physrag cache stats`.
func (m *Manager) StatsByName() map[string]Stats {
	return map[string]Stats{
		"embeddings": m.Embeddings.Stats(),
		"queries":    m.Queries.Stats(),
	}
}
