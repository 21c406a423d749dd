package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cloudwego/eino/components/model"

	"github.com/54b3r/physrag-go/internal/cache"
	"github.com/54b3r/physrag-go/internal/embedder"
	"github.com/54b3r/physrag-go/internal/embeddings"
	"github.com/54b3r/physrag-go/internal/generator"
	"github.com/54b3r/physrag-go/internal/provider"
	"github.com/54b3r/physrag-go/internal/rag"
	"github.com/54b3r/physrag-go/internal/store"
)

// systemPrompt grounds every generation in the retrieved corpus context.
const systemPrompt = `You are a physiology expert assistant for medical students.
Answer from the provided context only, cite sources by number, and say so
plainly when the context does not cover the question.`

// buildCaches constructs the process-wide cache manager. The disk cache
// root defaults to ~/.physrag/cache; PHYSRAG_CACHE_DIR overrides it and an
// empty override disables embedding persistence.
func buildCaches(log *slog.Logger) (*cache.Manager, error) {
	dir, dirSet := os.LookupEnv("PHYSRAG_CACHE_DIR")
	if !dirSet {
		home, err := os.UserHomeDir()
		if err != nil {
			log.Warn("cache: could not resolve home dir, embeddings cache is memory-only", slog.Any("error", err))
		} else {
			dir = filepath.Join(home, ".physrag", "cache")
		}
	}

	return cache.NewManager(cache.ManagerConfig{
		Dir:              dir,
		EmbeddingMaxSize: getEnvInt("PHYSRAG_EMBEDDING_CACHE_SIZE", 0),
		EmbeddingTTL:     getEnvDuration("PHYSRAG_EMBEDDING_CACHE_TTL", 0),
		QueryMaxSize:     getEnvInt("PHYSRAG_QUERY_CACHE_SIZE", 0),
		QueryTTL:         getEnvDuration("PHYSRAG_QUERY_CACHE_TTL", 0),
	}, log)
}

// buildVectorStore connects to Qdrant, sizing the collection to match the
// configured embedding backend.
func buildVectorStore(ctx context.Context) (*rag.QdrantStore, error) {
	embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", "gemini")

	return rag.NewQdrantStore(ctx, &rag.QdrantConfig{
		Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
		Port:       getEnvInt("QDRANT_PORT", 6334),
		Collection: getEnvOrDefault("QDRANT_COLLECTION", rag.DefaultCollection),
		VectorSize: uint64(embedder.DefaultDimensions(embBackend)), //nolint:gosec // dimensions are bounded
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
}

// buildEmbeddingService validates the embedding configuration and wraps the
// provider with the cache-first service.
func buildEmbeddingService(ctx context.Context, caches *cache.Manager, log *slog.Logger) (*embeddings.Service, error) {
	if err := embedder.ValidateForRAG(log); err != nil {
		return nil, err
	}

	prov, err := embedder.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	var embCache *cache.EmbeddingCache
	if caches != nil {
		embCache = caches.Embeddings
	}
	return embeddings.NewService(prov, embCache, getEnvInt("PHYSRAG_INGEST_BATCH_SIZE", 0), log), nil
}

// buildEngine assembles the full answer pipeline: retriever over the vector
// store, chat model, generator, and the query-cache-wrapped engine. The chat
// model is returned as well so callers can reuse it for readiness probes and
// attribution.
func buildEngine(ctx context.Context, caches *cache.Manager, vs rag.VectorStore, log *slog.Logger) (*rag.Engine, model.ToolCallingChatModel, error) {
	embSvc, err := buildEmbeddingService(ctx, caches, log)
	if err != nil {
		return nil, nil, err
	}

	retriever, err := rag.NewRetriever(embSvc, vs, 0)
	if err != nil {
		return nil, nil, err
	}

	chatModel, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}

	gen := generator.NewChatGenerator(chatModel, systemPrompt)

	var qc *cache.QueryCache
	if caches != nil {
		qc = caches.Queries
	}
	engine, err := rag.NewEngine(retriever, gen, qc, rag.EngineConfig{})
	if err != nil {
		return nil, nil, err
	}
	return engine, chatModel, nil
}

// openHistoryPath resolves the SQLite history DB path. Setting
// PHYSRAG_HISTORY_DB to an empty string disables history; an empty return
// means no history. History is always best-effort.
func openHistoryPath(log *slog.Logger) string {
	dbPath, set := os.LookupEnv("PHYSRAG_HISTORY_DB")
	if set && dbPath == "" {
		log.Info("history: disabled via empty PHYSRAG_HISTORY_DB")
		return ""
	}
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return ""
		}
	}
	return dbPath
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvFloat returns the float value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvDuration returns the duration value of the named environment
// variable, or fallback if the variable is unset, empty, or not parseable.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
