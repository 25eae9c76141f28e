package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/ragchat-go/internal/embedder"
	"github.com/54b3r/ragchat-go/internal/ingestion"
	"github.com/54b3r/ragchat-go/internal/rag"
	"github.com/54b3r/ragchat-go/internal/store"
)

// historyDisabled is the RAGCHAT_HISTORY_DB value that keeps conversation
// history in a private in-memory database.
const historyDisabled = "disabled"

// buildIndex resolves and validates the embedding settings and returns an
// empty in-memory index backed by the resulting embedder. reg receives the
// index metrics; nil leaves them unregistered.
func buildIndex(ctx context.Context, log *slog.Logger, reg prometheus.Registerer) (*rag.MemoryStore, error) {
	settings := embedder.ResolveFromEnv()
	if err := embedder.ValidateForRAG(log, settings); err != nil {
		return nil, err
	}

	emb, err := embedder.New(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	index, err := rag.NewMemoryStore(&rag.MemoryStoreConfig{
		Embedder:        emb,
		EmbeddingModel:  settings.Model,
		MetricsRegistry: reg,
	})
	if err != nil {
		return nil, err
	}

	log.Info("embedder initialised",
		slog.String("backend", settings.Backend),
		slog.String("model", settings.Model),
	)
	return index, nil
}

// openHistory opens the conversation store at path. An empty path selects
// store.DefaultDBPath; historyDisabled selects an in-memory database.
// retain bounds the messages kept per session.
func openHistory(log *slog.Logger, path string, retain int) (*store.SQLiteStore, error) {
	switch path {
	case historyDisabled:
		log.Info("history: persistence disabled, using in-memory store")
		path = ":memory:"
	case "":
		p, err := store.DefaultDBPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	s, err := store.Open(path, store.WithRetention(retain))
	if err != nil {
		return nil, err
	}
	log.Info("history: store opened", slog.String("path", path))
	return s, nil
}

// ingestSources feeds local files and URLs through pipeline, logging a
// summary for each. The first failure aborts.
func ingestSources(ctx context.Context, log *slog.Logger, pipeline *ingestion.Pipeline, files, urls []string) (int, error) {
	total := 0
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return total, fmt.Errorf("read %s: %w", f, err)
		}
		res, err := pipeline.IngestFile(ctx, filepath.Base(f), data)
		if err != nil {
			return total, err
		}
		logIngested(log, res)
		total += res.ChunksEmbedded
	}
	for _, u := range urls {
		res, err := pipeline.IngestURL(ctx, u)
		if err != nil {
			return total, err
		}
		logIngested(log, res)
		total += res.ChunksEmbedded
	}
	return total, nil
}

// logIngested records one ingestion result, warning when some fragments
// could not be embedded.
func logIngested(log *slog.Logger, res *ingestion.Result) {
	attrs := []any{
		slog.String("filename", res.Filename),
		slog.Int("chunks_created", res.ChunksCreated),
		slog.Int("chunks_embedded", res.ChunksEmbedded),
	}
	if len(res.Failures) > 0 {
		log.Warn("document partially indexed", append(attrs, slog.Int("failed", len(res.Failures)))...)
		return
	}
	log.Info("document indexed", attrs...)
}
