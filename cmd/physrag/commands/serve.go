package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/54b3r/physrag-go/internal/attribution"
	"github.com/54b3r/physrag-go/internal/generator"
	"github.com/54b3r/physrag-go/internal/logging"
	"github.com/54b3r/physrag-go/internal/paragraphs"
	"github.com/54b3r/physrag-go/internal/server"
	"github.com/54b3r/physrag-go/internal/store"
	"github.com/54b3r/physrag-go/internal/tracing"
)

// NewServeCmd constructs the `physrag serve` command, which starts the HTTP
// API server.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the physrag HTTP API server",
		Long: `Start the physrag HTTP server on localhost.

The server exposes the answer pipeline (POST /api/ask), liveness and
readiness probes, cache statistics, and Prometheus metrics.

Examples:
  physrag serve
  physrag serve --port 9090
  MODEL_PROVIDER=ollama physrag serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Langfuse tracing is opt-in and a no-op when keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			caches, err := buildCaches(log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			vs, err := buildVectorStore(ctx)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer vs.Close()

			engine, chatModel, err := buildEngine(ctx, caches, vs, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			log.Info("answer pipeline initialised")

			// Open question history. PHYSRAG_HISTORY_DB overrides the default
			// (~/.physrag/history.db); an empty value disables it.
			var history store.HistoryStore
			if dbPath := openHistoryPath(log); dbPath != "" {
				hs, hsErr := store.Open(dbPath)
				if hsErr != nil {
					log.Warn("history: failed to open store, disabling", slog.Any("error", hsErr))
				} else {
					history = hs
					defer func() { _ = hs.Close() }()
					log.Info("history: store opened", slog.String("path", dbPath))
				}
			}

			mapper, err := attribution.NewMapper(generator.NewChatGenerator(chatModel, ""))
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			pingers := []server.Pinger{
				server.NewModelPinger(chatModel, getEnvOrDefault("MODEL_PROVIDER", "gemini")),
				server.NewQdrantPinger(vs.Client()),
			}

			srv, err := server.New(engine, &server.Config{
				Host:       host,
				Port:       port,
				Logger:     log,
				Pingers:    pingers,
				APIKey:     os.Getenv("PHYSRAG_API_KEY"),
				History:    history,
				Caches:     caches,
				Vectors:    vs,
				Attributor: mapper,
				Paragraphs: paragraphs.New(nil, log),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
