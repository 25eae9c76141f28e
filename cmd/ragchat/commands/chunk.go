package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/54b3r/ragchat-go/internal/chunker"
	"github.com/54b3r/ragchat-go/internal/config"
	"github.com/54b3r/ragchat-go/internal/extract"
)

// NewChunkCmd constructs the `ragchat chunk` command, which extracts text
// from a local document and prints the fragments it would be split into.
// No embedding provider is contacted.
func NewChunkCmd() *cobra.Command {
	var file string
	var size, overlap int

	cmd := &cobra.Command{
		Use:   "chunk",
		Short: "Split a document into fragments and print them as JSON",
		Long: `Extract text from a .txt or .pdf file and print the fragments the
ingestion pipeline would produce, with their identifiers and byte offsets.

Fragment size and overlap default to CHUNK_SIZE and CHUNK_OVERLAP (1000 / 200).

Examples:
  ragchat chunk --file handbook.pdf
  ragchat chunk --file notes.txt --size 500 --overlap 50`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				return fmt.Errorf("chunk: --file is required")
			}

			cfg := config.SettingsFromEnv().Chunking
			if cmd.Flags().Changed("size") {
				cfg.TargetSize = size
			}
			if cmd.Flags().Changed("overlap") {
				cfg.Overlap = overlap
			}

			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("chunk: %w", err)
			}
			name := filepath.Base(file)
			text, err := extract.Extract(name, data)
			if err != nil {
				return fmt.Errorf("chunk: %w", err)
			}

			fragments, err := chunker.Chunk(text, name, cfg)
			if err != nil {
				return fmt.Errorf("chunk: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(fragments)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to a .txt or .pdf document")
	cmd.Flags().IntVar(&size, "size", chunker.DefaultTargetSize, "Maximum fragment size in bytes")
	cmd.Flags().IntVar(&overlap, "overlap", chunker.DefaultOverlap, "Bytes shared by consecutive fragments")

	return cmd
}
