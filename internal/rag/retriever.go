package rag

import (
	"context"
	"fmt"

	"github.com/54b3r/physrag-go/internal/embeddings"
)

// DefaultTopK is the fallback result count when a caller passes 0.
const DefaultTopK = 5

// queryEmbedder is the slice of the embedding service the retriever needs.
type queryEmbedder interface {
	EmbedOne(ctx context.Context, text, taskType string) []float32
}

// DefaultRetriever implements Retriever by combining the cache-first
// embedding service with a VectorStore. Queries are embedded with the
// retrieval_query task type; store distances are converted to similarities
// here so downstream consumers only see 1 − distance.
type DefaultRetriever struct {
	embedder    queryEmbedder
	store       VectorStore
	defaultTopK int
}

// NewRetriever constructs a DefaultRetriever. A non-positive defaultTopK
// falls back to DefaultTopK.
func NewRetriever(embedder queryEmbedder, store VectorStore, defaultTopK int) (*DefaultRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	return &DefaultRetriever{
		embedder:    embedder,
		store:       store,
		defaultTopK: defaultTopK,
	}, nil
}

// Retrieve embeds the query and returns the topK nearest documents with
// Similarity populated, most similar first.
func (r *DefaultRetriever) Retrieve(ctx context.Context, query string, topK int) ([]ScoredDocument, error) {
	if topK <= 0 {
		topK = r.defaultTopK
	}

	vector := r.embedder.EmbedOne(ctx, query, embeddings.TaskQuery)

	docs, err := r.store.Query(ctx, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}

	for i := range docs {
		docs[i].Similarity = 1 - docs[i].Distance
	}
	return docs, nil
}
