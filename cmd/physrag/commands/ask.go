package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/cloudwego/eino/components/model"
	"github.com/spf13/cobra"

	"github.com/54b3r/physrag-go/internal/attribution"
	"github.com/54b3r/physrag-go/internal/generator"
	"github.com/54b3r/physrag-go/internal/logging"
	"github.com/54b3r/physrag-go/internal/paragraphs"
	"github.com/54b3r/physrag-go/internal/rag"
	"github.com/54b3r/physrag-go/internal/store"
)

// NewAskCmd constructs the `physrag ask` command, which runs a single
// question through the full pipeline and prints the answer with its sources.
func NewAskCmd() *cobra.Command {
	var topK int
	var attribute bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a physiology question over the ingested corpus",
		Long: `Ask a natural language physiology question.

The question is embedded, the most relevant document chunks are retrieved
from Qdrant, and the answer is generated from that context. With --attribute
the answer is additionally mapped back to the supporting paragraphs.

Examples:
  physrag ask "How does cerebral autoregulation work?"
  physrag ask --top-k 5 "What maintains the blood-brain barrier?"
  physrag ask --attribute "Describe CSF circulation"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			caches, err := buildCaches(log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			vs, err := buildVectorStore(ctx)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer vs.Close()

			engine, chatModel, err := buildEngine(ctx, caches, vs, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			question := args[0]
			resp, err := engine.Answer(ctx, question, topK)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			recordAsk(ctx, log, resp.Question, resp.Answer, len(resp.Sources), resp.CacheHit)

			var attributed *attribution.AttributedAnswer
			if attribute && resp.Error == "" {
				attributed = attributeAnswer(ctx, chatModel, resp)
			}

			if asJSON {
				out := struct {
					Question    string                        `json:"question"`
					Answer      string                        `json:"answer"`
					CacheHit    bool                          `json:"cache_hit"`
					Error       string                        `json:"error,omitempty"`
					Attribution *attribution.AttributedAnswer `json:"attribution,omitempty"`
				}{resp.Question, resp.Answer, resp.CacheHit, resp.Error, attributed}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			fmt.Println(resp.Answer)
			if len(resp.Sources) > 0 {
				fmt.Println("\nSources:")
				for i, src := range resp.Sources {
					title := src.Title
					if title == "" {
						title = "Content"
					}
					fmt.Printf("  %d. %s — %s (page %d, relevance %.3f)\n",
						i+1, src.DocumentName, title, src.PageID, src.Similarity)
				}
			}
			if attributed != nil {
				fmt.Printf("\nAttribution confidence: %.2f", attributed.OverallConfidence)
				if attributed.Fallback {
					fmt.Print(" (fallback)")
				}
				fmt.Println()
			}
			if resp.Error != "" {
				fmt.Fprintf(os.Stderr, "note: %s\n", resp.Error)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks to retrieve (0 = default)")
	cmd.Flags().BoolVarP(&attribute, "attribute", "a", false, "Map the answer back to its supporting paragraphs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full response as JSON")

	return cmd
}

// recordAsk appends the answered question to the history store when one is
// configured. Failures are logged and never fail the command.
func recordAsk(ctx context.Context, log *slog.Logger, question, answer string, sources int, cacheHit bool) {
	dbPath := openHistoryPath(log)
	if dbPath == "" {
		return
	}
	hs, err := store.Open(dbPath)
	if err != nil {
		log.Warn("history: failed to open store", slog.Any("error", err))
		return
	}
	defer hs.Close()

	err = hs.Record(ctx, store.Entry{
		Question:    question,
		Answer:      answer,
		SourceCount: sources,
		CacheHit:    cacheHit,
	})
	if err != nil {
		log.Warn("history: record failed", slog.Any("error", err))
	}
}

// attributeAnswer maps the answer back to the paragraph pool extracted from
// its sources. Attribution failures degrade to nil, never to an error.
func attributeAnswer(ctx context.Context, chatModel model.ToolCallingChatModel, resp *rag.Response) *attribution.AttributedAnswer {
	mapper, err := attribution.NewMapper(generator.NewChatGenerator(chatModel, ""))
	if err != nil {
		return nil
	}

	extractor := paragraphs.New(nil, slog.Default())
	srcs := make([]paragraphs.Source, 0, len(resp.Sources))
	for _, src := range resp.Sources {
		srcs = append(srcs, paragraphs.Source{
			Text:         src.Content,
			ChunkIndex:   src.ChunkIndex,
			DocumentName: src.DocumentName,
		})
	}
	pool := extractor.ExtractFromSources(srcs)
	if len(pool) == 0 {
		return nil
	}
	return mapper.Attribute(ctx, resp.Question, resp.Answer, pool)
}
