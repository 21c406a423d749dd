// Package embeddings turns text into vectors through a cache-first
// pipeline. The Provider interface is the only external boundary; the
// Service adds caching, batching and graceful degradation on top, and the
// AsyncService adds a bounded worker pool for ingestion-scale workloads.
package embeddings

import "context"

// Task types passed through to the provider. Retrieval-tuned models embed
// corpus text and query text differently.
const (
	TaskDocument = "retrieval_document"
	TaskQuery    = "retrieval_query"
)

// Provider converts one text into one embedding vector. Implementations
// live in the embedder package and must be safe for concurrent use.
type Provider interface {
	// EmbedText embeds a single text for the given task type.
	EmbedText(ctx context.Context, text, taskType string) ([]float32, error)

	// Dimensions returns the provider's output vector length. It is used
	// to size zero-vector placeholders and vector store collections.
	Dimensions() int
}
