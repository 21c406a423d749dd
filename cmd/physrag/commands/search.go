package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/physrag-go/internal/logging"
	"github.com/54b3r/physrag-go/internal/rag"
)

// NewSearchCmd constructs the `physrag search` command, which runs retrieval
// only and prints the matching chunks without generating an answer.
func NewSearchCmd() *cobra.Command {
	var topK int
	var full bool

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the ingested corpus without generating an answer",
		Long: `Retrieve the document chunks most similar to a query.

Useful for inspecting what the answer pipeline would see, and for checking
ingestion quality.

Examples:
  physrag search "baroreceptor reflex"
  physrag search --top-k 10 --full "cerebrospinal fluid"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			caches, err := buildCaches(log)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			vs, err := buildVectorStore(ctx)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			defer vs.Close()

			embSvc, err := buildEmbeddingService(ctx, caches, log)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			retriever, err := rag.NewRetriever(embSvc, vs, topK)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			query := strings.Join(args, " ")
			docs, err := retriever.Retrieve(ctx, query, topK)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}

			if len(docs) == 0 {
				fmt.Println("no results")
				return nil
			}

			for i, doc := range docs {
				title := doc.Title
				if title == "" {
					title = "Content"
				}
				fmt.Printf("%d. %s — %s (page %d, similarity %.3f)\n",
					i+1, doc.DocumentName, title, doc.PageID, doc.Similarity)
				content := doc.Content
				if !full && len(content) > 200 {
					content = content[:200] + "..."
				}
				fmt.Printf("   %s\n\n", strings.ReplaceAll(content, "\n", "\n   "))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks to retrieve (0 = default)")
	cmd.Flags().BoolVar(&full, "full", false, "Print full chunk content instead of a preview")

	return cmd
}
