package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-process VectorStore using exact cosine distance.
// It backs tests and local development where no Qdrant is running.
type MemoryStore struct {
	mu sync.RWMutex

	docs    map[string]Document
	vectors map[string][]float32
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:    make(map[string]Document),
		vectors: make(map[string][]float32),
	}
}

// Upsert stores or replaces documents keyed by ID.
func (s *MemoryStore) Upsert(_ context.Context, docs []Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("memory store: %d documents but %d embeddings", len(docs), len(embeddings))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, doc := range docs {
		s.docs[doc.ID] = doc
		s.vectors[doc.ID] = embeddings[i]
	}
	return nil
}

// Query returns the topK documents by cosine distance, closest first.
func (s *MemoryStore) Query(_ context.Context, vector []float32, topK int) ([]ScoredDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scored := make([]ScoredDocument, 0, len(s.docs))
	for id, doc := range s.docs {
		scored = append(scored, ScoredDocument{
			Document: doc,
			Distance: 1 - cosineSimilarity(vector, s.vectors[id]),
		})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Distance < scored[j].Distance })
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// Delete removes documents by ID. Unknown IDs are ignored.
func (s *MemoryStore) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.docs, id)
		delete(s.vectors, id)
	}
	return nil
}

// Count returns the number of stored documents.
func (s *MemoryStore) Count(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.docs)), nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// cosineSimilarity computes the cosine of the angle between a and b.
// Mismatched lengths or zero vectors score 0.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
