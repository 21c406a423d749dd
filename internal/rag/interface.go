// Package rag implements the retrieval side of the answer pipeline:
// vector storage, similarity retrieval, and the end-to-end answer engine.
// Concrete stores (Qdrant, in-memory) satisfy the VectorStore interface so
// nothing above this package depends on a specific backend.
package rag

import (
	"context"
)

// Document is a unit of stored or retrieved knowledge — one chunk of a
// corpus document with its metadata.
type Document struct {
	// ID is the unique identifier for this chunk.
	ID string `json:"id"`

	// Content is the chunk text.
	Content string `json:"content"`

	// DocumentName identifies the source document.
	DocumentName string `json:"document_name"`

	// ChunkIndex is the chunk's position within its document.
	ChunkIndex int `json:"chunk_index"`

	// Title is the section or page title, when known.
	Title string `json:"title,omitempty"`

	// PageID is the source page identifier, when known.
	PageID int `json:"page_id,omitempty"`

	// Concepts lists the medical terms detected at chunking time.
	Concepts []string `json:"medical_concepts,omitempty"`

	// ConceptDensity scores how terminology-rich the chunk is (0..1).
	ConceptDensity float64 `json:"concept_density,omitempty"`
}

// ScoredDocument is a Document with its retrieval scores. Stores report
// Distance (0 = identical); the retriever derives Similarity = 1 − Distance
// so consumers never re-implement the conversion.
type ScoredDocument struct {
	Document

	// Distance is the raw vector-space distance reported by the store.
	Distance float32 `json:"distance"`

	// Similarity is 1 − Distance, populated by the retriever.
	Similarity float32 `json:"similarity"`
}

// VectorStore persists document embeddings and answers nearest-neighbour
// queries. Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores or updates a batch of documents with their
	// pre-computed embeddings. embeddings[i] is the vector for docs[i].
	Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error

	// Query returns the topK nearest documents to the query vector,
	// closest first, with Distance populated.
	Query(ctx context.Context, vector []float32, topK int) ([]ScoredDocument, error)

	// Delete removes documents by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of stored documents.
	Count(ctx context.Context) (uint64, error)

	// Close releases any resources held by the store.
	Close() error
}

// Retriever fetches relevant context for a query. It combines query
// embedding and vector search and converts distances to similarities.
type Retriever interface {
	// Retrieve returns the topK most relevant documents for the query,
	// most similar first.
	Retrieve(ctx context.Context, query string, topK int) ([]ScoredDocument, error)
}
