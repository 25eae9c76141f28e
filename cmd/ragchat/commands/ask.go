package commands

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/ragchat-go/internal/chat"
	"github.com/54b3r/ragchat-go/internal/config"
	"github.com/54b3r/ragchat-go/internal/ingestion"
	"github.com/54b3r/ragchat-go/internal/logging"
	"github.com/54b3r/ragchat-go/internal/provider"
	"github.com/54b3r/ragchat-go/internal/rag"
)

// NewAskCmd constructs the `ragchat ask` command, which answers a single
// question, optionally grounded in local documents, and records the turn in
// the session store so a conversation can be continued with --session.
func NewAskCmd() *cobra.Command {
	var sessionID string
	var files, urls []string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question, optionally grounded in documents",
		Long: `Ask the configured model a question and print the answer.

Documents passed with --file or --url are indexed in memory for this call
only and their most relevant fragments are supplied as context. Pass the
printed session ID back with --session to continue the conversation.

Examples:
  ragchat ask "what is retrieval augmented generation?"
  ragchat ask --file handbook.pdf "what is the parental leave policy?"
  ragchat ask --session 3f1c... "and for contractors?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)
			settings := config.SettingsFromEnv()

			chatModel, _, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise model provider: %w", err)
			}

			history, err := openHistory(log, settings.HistoryDB, 2*settings.HistoryMaxExchanges)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer func() { _ = history.Close() }()

			cfg := &chat.Config{
				Model:           chatModel,
				Store:           history,
				HistoryMessages: settings.HistoryMaxExchanges,
			}

			if len(files) > 0 || len(urls) > 0 {
				index, err := buildIndex(ctx, log, prometheus.NewRegistry())
				if err != nil {
					return fmt.Errorf("ask: %w", err)
				}
				pipeline, err := ingestion.NewPipeline(index, &ingestion.Config{Chunking: settings.Chunking})
				if err != nil {
					return fmt.Errorf("ask: %w", err)
				}
				if _, err := ingestSources(ctx, log, pipeline, files, urls); err != nil {
					return fmt.Errorf("ask: %w", err)
				}
				retriever, err := rag.NewRetriever(index, settings.ChatTopK, settings.SimilarityThreshold)
				if err != nil {
					return fmt.Errorf("ask: %w", err)
				}
				cfg.Retriever = retriever
			}

			svc, err := chat.NewService(cfg)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			resp, err := svc.Reply(ctx, chat.Request{
				Message:   strings.Join(args, " "),
				SessionID: sessionID,
				UseRAG:    cfg.Retriever != nil,
			})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, resp.Response)
			if len(resp.Sources) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Sources:")
				for _, s := range resp.Sources {
					fmt.Fprintf(out, "  [%.3f] %s (%s)\n", s.Score, s.Filename, s.ChunkID)
				}
			}
			fmt.Fprintf(out, "\nsession: %s\n", resp.SessionID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session ID to continue (default: start a new session)")
	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "Local .txt or .pdf document to ground the answer in (repeatable)")
	cmd.Flags().StringArrayVarP(&urls, "url", "u", nil, "Document URL to ground the answer in (repeatable)")

	return cmd
}
