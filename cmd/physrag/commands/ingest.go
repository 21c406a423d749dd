package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/physrag-go/internal/embeddings"
	"github.com/54b3r/physrag-go/internal/ingestion"
	"github.com/54b3r/physrag-go/internal/logging"
)

// NewIngestCmd constructs the `physrag ingest` command, which runs the
// document ingestion pipeline to populate the Qdrant vector store.
func NewIngestCmd() *cobra.Command {
	var dir string
	var workers int

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest the document corpus into the vector store",
		Long: `Chunk, embed, and index the document corpus into Qdrant.

The documents directory holds one subdirectory per document, each containing
<name>.md plus an optional metadata.txt sidecar with a table of contents.
Documents with a table of contents are chunked by section; the rest fall
back to concept-aware semantic chunking. Re-ingesting a document overwrites
its previous chunks.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: physiology_documents)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  EMBEDDING_PROVIDER   Embedding backend: gemini, ollama, openai, azure (default: gemini)
  EMBEDDING_*          Backend-specific overrides (see README)

Examples:
  physrag ingest --dir ./data/documents
  PHYSRAG_DOCUMENTS_DIR=./docs physrag ingest --workers 8`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			root := dir
			if root == "" {
				root = getEnvOrDefault("PHYSRAG_DOCUMENTS_DIR", "")
			}
			if root == "" {
				return fmt.Errorf("ingest: documents directory required — pass --dir or set PHYSRAG_DOCUMENTS_DIR")
			}

			caches, err := buildCaches(log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			embSvc, err := buildEmbeddingService(ctx, caches, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			vs, err := buildVectorStore(ctx)
			if err != nil {
				return fmt.Errorf("ingest: failed to connect to Qdrant: %w", err)
			}
			defer vs.Close()
			log.Info("qdrant store ready")

			if workers == 0 {
				workers = getEnvInt("PHYSRAG_INGEST_WORKERS", 0)
			}

			// The async pool parallelises embedding across chunks; the scoped
			// form guarantees the pool drains on every exit path.
			return embeddings.WithAsyncService(embSvc, workers, log, func(async *embeddings.AsyncService) error {
				pipeline, err := ingestion.NewPipeline(async, vs, ingestion.Config{
					ChunkSize:    getEnvInt("PHYSRAG_CHUNK_SIZE", 0),
					OverlapRatio: getEnvFloat("PHYSRAG_OVERLAP_RATIO", 0),
				}, log)
				if err != nil {
					return fmt.Errorf("ingest: failed to create pipeline: %w", err)
				}

				result, err := pipeline.IngestDir(ctx, root, func(msg string) {
					log.Info(msg)
				})
				if err != nil {
					return fmt.Errorf("ingest: pipeline failed: %w", err)
				}

				log.Info("ingestion complete",
					slog.Int("documents", len(result.Documents)),
					slog.Int("chunks", result.TotalChunks),
				)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Documents directory (default: PHYSRAG_DOCUMENTS_DIR)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Embedding worker pool size (0 = default)")

	return cmd
}
