package embeddings

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/54b3r/physrag-go/internal/cache"
)

// Batching defaults. The rate limit keeps ingestion under typical
// embedding API quotas without hand-rolled sleeps.
const (
	DefaultBatchSize = 10
	// DefaultBatchesPerSecond paces EmbedMany between batches.
	DefaultBatchesPerSecond = 2
	// cacheKeyTextLimit bounds how much text participates in the cache
	// key. Texts sharing their first kilobyte share a cache entry.
	cacheKeyTextLimit = 1000
)

// Service embeds text with a cache in front of the provider.
//
// Per-item provider failures degrade to zero vectors rather than failing
// the whole batch: a single flaky call during ingestion should not abort
// hundreds of sibling chunks. Context cancellation still aborts
// everything.
type Service struct {
	provider  Provider
	cache     *cache.EmbeddingCache
	batchSize int
	limiter   *rate.Limiter
	log       *slog.Logger
}

// NewService constructs a Service. A nil cache disables caching;
// batchSize falls back to DefaultBatchSize when non-positive.
func NewService(provider Provider, c *cache.EmbeddingCache, batchSize int, log *slog.Logger) *Service {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		provider:  provider,
		cache:     c,
		batchSize: batchSize,
		limiter:   rate.NewLimiter(rate.Limit(DefaultBatchesPerSecond), 1),
		log:       log,
	}
}

// cacheKey builds the cache key for one embed call. Only the leading
// kilobyte of text participates, matching the disk cache granularity.
func cacheKey(text, taskType string) string {
	t := text
	if len(t) > cacheKeyTextLimit {
		t = t[:cacheKeyTextLimit]
	}
	return taskType + ":" + t
}

// EmbedOne embeds a single text, consulting the cache first. A provider
// failure returns a zero vector and logs a warning; the error is not
// propagated.
func (s *Service) EmbedOne(ctx context.Context, text, taskType string) []float32 {
	key := cacheKey(text, taskType)
	if s.cache != nil {
		if vec, ok := s.cache.Get(key); ok {
			return vec
		}
	}

	vec, err := s.provider.EmbedText(ctx, text, taskType)
	if err != nil {
		s.log.Warn("embedding failed, using zero vector",
			slog.String("task", taskType),
			slog.Int("text_len", len(text)),
			slog.Any("error", err),
		)
		return make([]float32, s.provider.Dimensions())
	}

	if s.cache != nil {
		s.cache.Put(key, vec)
	}
	return vec
}

// EmbedMany embeds texts in batches, pacing between batches with the rate
// limiter. The result is parallel to texts. Individual failures become
// zero vectors; only context cancellation aborts the call.
func (s *Service) EmbedMany(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	for start := 0; start < len(texts); start += s.batchSize {
		if start > 0 {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("embeddings: batch pacing interrupted: %w", err)
			}
		}

		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		for i := start; i < end; i++ {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("embeddings: batch aborted: %w", err)
			}
			out[i] = s.EmbedOne(ctx, texts[i], taskType)
		}
	}

	return out, nil
}

// Dimensions exposes the provider's vector length.
func (s *Service) Dimensions() int { return s.provider.Dimensions() }
