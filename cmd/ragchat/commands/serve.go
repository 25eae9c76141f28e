package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/ragchat-go/internal/chat"
	"github.com/54b3r/ragchat-go/internal/config"
	"github.com/54b3r/ragchat-go/internal/ingestion"
	"github.com/54b3r/ragchat-go/internal/logging"
	"github.com/54b3r/ragchat-go/internal/provider"
	"github.com/54b3r/ragchat-go/internal/rag"
	"github.com/54b3r/ragchat-go/internal/server"
	"github.com/54b3r/ragchat-go/internal/tracing"
)

// NewServeCmd constructs the `ragchat serve` command, which starts the HTTP
// API backed by an in-memory document index and a SQLite session store.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the ragchat HTTP API",
		Long: `Start the ragchat HTTP API.

Documents uploaded to /api/documents/upload are chunked, embedded, and held in
memory for the lifetime of the process. Conversation history is persisted to
SQLite (RAGCHAT_HISTORY_DB, default ~/.ragchat/history.db; set it to
"disabled" to keep history in memory).

Examples:
  ragchat serve
  ragchat serve --port 9090
  MODEL_PROVIDER=gemini EMBEDDING_PROVIDER=gemini ragchat serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			settings := config.SettingsFromEnv()
			if cmd.Flags().Changed("host") {
				settings.Host = host
			}
			if cmd.Flags().Changed("port") {
				settings.Port = port
			}
			if err := settings.Validate(); err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			// Langfuse tracing is opt-in and a no-op when keys are absent.
			tracingCfg := tracing.ConfigFromEnv()
			if flush, ok := tracing.Setup(tracingCfg); ok {
				defer flush()
				log.Info("langfuse tracing enabled", slog.String("host", tracingCfg.Host))
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			chatModel, providerCfg, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			log.Info("provider initialised",
				slog.String("provider", string(providerCfg.Backend)),
				slog.String("model", providerCfg.ModelName()),
			)

			index, err := buildIndex(ctx, log, prometheus.DefaultRegisterer)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			pipeline, err := ingestion.NewPipeline(index, &ingestion.Config{Chunking: settings.Chunking})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			retriever, err := rag.NewRetriever(index, settings.ChatTopK, settings.SimilarityThreshold)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			history, err := openHistory(log, settings.HistoryDB, 2*settings.HistoryMaxExchanges)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = history.Close() }()

			chatSvc, err := chat.NewService(&chat.Config{
				Model:           chatModel,
				Store:           history,
				Retriever:       retriever,
				HistoryMessages: settings.HistoryMaxExchanges,
			})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			srv, err := server.New(&server.Deps{
				Chat:     chatSvc,
				Sessions: history,
				Index:    index,
				Ingester: pipeline,
			}, &server.Config{
				Host:   settings.Host,
				Port:   settings.Port,
				Logger: log,
				Pingers: []server.Pinger{
					server.NewPinger("sessions", history.Ping),
					server.NewPinger("embedder", index.Ping),
					server.NewPinger("llm", chatSvc.Ping),
				},
				APIKey:          settings.APIKey,
				MaxUploadBytes:  settings.MaxUploadBytes,
				SearchTopK:      settings.SearchTopK,
				SearchMaxTopK:   settings.SearchMaxTopK,
				SearchThreshold: settings.SimilarityThreshold,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", config.DefaultHost, "Host address to bind to (overrides RAGCHAT_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", config.DefaultPort, "TCP port to listen on (overrides RAGCHAT_PORT)")

	return cmd
}
