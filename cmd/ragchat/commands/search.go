package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/ragchat-go/internal/chat"
	"github.com/54b3r/ragchat-go/internal/config"
	"github.com/54b3r/ragchat-go/internal/ingestion"
	"github.com/54b3r/ragchat-go/internal/logging"
	"github.com/54b3r/ragchat-go/internal/rag"
)

// NewSearchCmd constructs the `ragchat search` command, which indexes the
// given documents into a throwaway in-memory index and runs one query.
func NewSearchCmd() *cobra.Command {
	var files, urls []string
	var topK int
	var threshold float64
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Index documents in memory and search them",
		Long: `Index one or more documents into an in-memory vector index and print the
fragments most similar to the query. Nothing is persisted.

The embedding backend is resolved exactly as for 'ragchat serve'
(EMBEDDING_PROVIDER, else MODEL_PROVIDER, else ollama).

Examples:
  ragchat search --file handbook.pdf "how many vacation days do I get"
  ragchat search --url https://example.com/faq.txt --top-k 3 --json "refund policy"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(files) == 0 && len(urls) == 0 {
				return fmt.Errorf("search: at least one --file or --url is required")
			}
			query := strings.Join(args, " ")

			settings := config.SettingsFromEnv()
			if !cmd.Flags().Changed("top-k") {
				topK = settings.SearchTopK
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = settings.SimilarityThreshold
			}

			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			index, err := buildIndex(ctx, log, prometheus.NewRegistry())
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			pipeline, err := ingestion.NewPipeline(index, &ingestion.Config{Chunking: settings.Chunking})
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			if _, err := ingestSources(ctx, log, pipeline, files, urls); err != nil {
				return fmt.Errorf("search: %w", err)
			}

			results := index.Search(ctx, query, topK, threshold)

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			return printResults(cmd, results)
		},
	}

	cmd.Flags().StringArrayVarP(&files, "file", "f", nil, "Local .txt or .pdf document to index (repeatable)")
	cmd.Flags().StringArrayVarP(&urls, "url", "u", nil, "Document URL to fetch and index (repeatable)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", config.DefaultSearchTopK, "Maximum number of results")
	cmd.Flags().Float64Var(&threshold, "threshold", config.DefaultSimilarityThreshold, "Minimum cosine similarity")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")

	return cmd
}

// printResults writes results as an aligned table.
func printResults(cmd *cobra.Command, results []rag.SearchResult) error {
	out := cmd.OutOrStdout()
	if len(results) == 0 {
		_, err := fmt.Fprintln(out, "no matching fragments")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tSOURCE\tCHUNK\tPREVIEW")
	for _, r := range results {
		preview := strings.Join(strings.Fields(chat.Preview(r.Content)), " ")
		fmt.Fprintf(tw, "%.3f\t%s\t%d\t%s\n", r.Score, r.Metadata.SourceName, r.Metadata.ChunkNumber, preview)
	}
	return tw.Flush()
}
