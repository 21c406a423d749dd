// Package ingestion implements the document ingestion pipeline. It walks a
// directory of converted documents, splits each markdown file into chunks
// (TOC-section based when a metadata sidecar exists, semantic otherwise),
// embeds the chunks, and upserts the results into the vector store.
// This pipeline is invoked by the `physrag ingest` CLI command.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/54b3r/physrag-go/internal/chunking"
	"github.com/54b3r/physrag-go/internal/concepts"
	"github.com/54b3r/physrag-go/internal/embeddings"
	"github.com/54b3r/physrag-go/internal/logging"
	"github.com/54b3r/physrag-go/internal/rag"
)

// batchEmbedder is the slice of the embedding service the pipeline needs.
type batchEmbedder interface {
	EmbedMany(ctx context.Context, texts []string, taskType string) ([][]float32, error)
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the target number of characters per chunk.
	// Defaults to chunking.DefaultChunkSize if zero.
	ChunkSize int

	// OverlapRatio is the chunk overlap as a fraction of ChunkSize.
	// Defaults to chunking.DefaultOverlapRatio if zero.
	OverlapRatio float64
}

// DocumentResult summarises the ingestion of one document.
type DocumentResult struct {
	// Name is the document directory name.
	Name string `json:"name"`
	// Chunks is how many chunks were stored.
	Chunks int `json:"chunks"`
	// Images is how many figure images the document carries.
	Images int `json:"images"`
	// Sectioned is true when the TOC sidecar drove the chunking.
	Sectioned bool `json:"sectioned"`
}

// Result summarises a full ingestion run.
type Result struct {
	// Documents lists the per-document outcomes.
	Documents []DocumentResult `json:"documents"`
	// TotalChunks is the chunk count across all documents.
	TotalChunks int `json:"total_chunks"`
}

// Pipeline orchestrates the walk → chunk → embed → upsert flow over a
// directory of converted documents.
type Pipeline struct {
	// embedder converts chunk texts into dense vector embeddings.
	embedder batchEmbedder

	// store persists the embedded chunks.
	store rag.VectorStore

	// chunker is the semantic fallback for documents without a TOC.
	chunker *chunking.Chunker

	// detector annotates section chunks with medical concepts.
	detector *concepts.Detector

	// chunkSize bounds section chunk extraction.
	chunkSize int
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder batchEmbedder, store rag.VectorStore, cfg Config, log *slog.Logger) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunking.DefaultChunkSize
	}
	if cfg.OverlapRatio <= 0 {
		cfg.OverlapRatio = chunking.DefaultOverlapRatio
	}

	detector := concepts.MustDefaultDetector()
	return &Pipeline{
		embedder:  embedder,
		store:     store,
		chunker:   chunking.New(cfg.ChunkSize, cfg.OverlapRatio, detector, log),
		detector:  detector,
		chunkSize: cfg.ChunkSize,
	}, nil
}

// IngestDir processes every document directory under root. Each document
// directory must contain "<name>.md"; directories without one are skipped.
// Progress is reported via the optional progress callback.
func (p *Pipeline) IngestDir(ctx context.Context, root string, progress func(msg string)) (*Result, error) {
	if progress == nil {
		progress = func(string) {}
	}
	log := logging.FromContext(ctx)

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("ingestion: read documents dir %s: %w", root, err)
	}

	result := &Result{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		mdPath := filepath.Join(root, name, name+".md")
		if _, err := os.Stat(mdPath); err != nil {
			log.Debug("skipping directory without markdown", slog.String("dir", name))
			continue
		}

		progress(fmt.Sprintf("ingesting %s", name))
		doc, err := p.ingestDocument(ctx, filepath.Join(root, name), name)
		if err != nil {
			return nil, fmt.Errorf("ingestion: document %s: %w", name, err)
		}
		progress(fmt.Sprintf("stored %d chunks from %s", doc.Chunks, name))

		result.Documents = append(result.Documents, doc)
		result.TotalChunks += doc.Chunks
	}

	log.Info("ingestion complete",
		slog.Int("documents", len(result.Documents)),
		slog.Int("chunks", result.TotalChunks),
	)
	return result, nil
}

// ingestDocument chunks, embeds, and stores one document directory.
func (p *Pipeline) ingestDocument(ctx context.Context, docDir, name string) (DocumentResult, error) {
	res := DocumentResult{Name: name}

	content, err := os.ReadFile(filepath.Join(docDir, name+".md"))
	if err != nil {
		return res, fmt.Errorf("read markdown: %w", err)
	}

	meta, err := LoadMetadata(filepath.Join(docDir, "metadata.txt"))
	if err != nil {
		return res, err
	}

	chunks := p.chunkDocument(string(content), name, meta)
	res.Sectioned = len(meta.TableOfContents) > 0 && len(chunks) > 0 && chunks[0].Type == "section"
	if len(chunks) == 0 {
		return res, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.EmbedMany(ctx, texts, embeddings.TaskDocument)
	if err != nil {
		return res, fmt.Errorf("embed chunks: %w", err)
	}

	docs := make([]rag.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = rag.Document{
			ID:             chunkID(name, i),
			Content:        c.Text,
			DocumentName:   name,
			ChunkIndex:     i,
			Title:          c.Metadata.Title,
			PageID:         c.Metadata.PageID,
			Concepts:       c.Concepts,
			ConceptDensity: c.ConceptDensity,
		}
	}
	if err := p.store.Upsert(ctx, docs, vectors); err != nil {
		return res, fmt.Errorf("upsert: %w", err)
	}

	images, err := ScanImages(docDir)
	if err != nil {
		return res, err
	}
	res.Chunks = len(docs)
	res.Images = len(images)
	return res, nil
}

// chunkDocument prefers TOC-section chunks when the sidecar provides a
// table of contents; otherwise, and when no section title matches the
// text, it falls back to the semantic chunker.
func (p *Pipeline) chunkDocument(content, name string, meta DocMetadata) []chunking.Chunk {
	var chunks []chunking.Chunk
	for _, item := range meta.TableOfContents {
		section := extractSectionText(content, item.Title, p.chunkSize)
		if section == "" {
			continue
		}
		detected := p.detector.Detect(section)
		chunks = append(chunks, chunking.Chunk{
			Text:           section,
			Type:           "section",
			Size:           len(section),
			Concepts:       concepts.Flatten(detected),
			ConceptDensity: p.detector.Density(section),
			Metadata: chunking.Metadata{
				DocumentName: name,
				Title:        item.Title,
				PageID:       item.PageID,
			},
		})
	}
	if len(chunks) > 0 {
		return chunks
	}
	return p.chunker.Split(content, chunking.Metadata{DocumentName: name})
}

// chunkID generates a deterministic point ID for a document chunk so
// re-ingesting a document overwrites its previous points.
func chunkID(docName string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s#%d", docName, index))).String()
}
