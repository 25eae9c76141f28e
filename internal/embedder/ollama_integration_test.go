//go:build integration

package embedder

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/54b3r/ragchat-go/internal/rag"
)

// Needs a running Ollama with the embedding model pulled:
//
//	ollama pull nomic-embed-text
//	go test -tags=integration -run Integration ./internal/embedder/
//
// OLLAMA_HOST and EMBEDDING_MODEL override the defaults.
func TestOllamaEmbedder_Integration(t *testing.T) {
	host := envOr(t, "OLLAMA_HOST", defaultOllamaHost)
	model := envOr(t, "EMBEDDING_MODEL", defaultOllamaModel)

	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Second)
	defer cancel()

	const anchor, near, far = 0, 1, 2
	vecs, err := NewOllamaEmbedder(&OllamaConfig{Host: host, Model: model}).Embed(ctx, []string{
		anchor: "The cat sat on the mat and purred.",
		near:   "A kitten was sleeping on the rug.",
		far:    "Quarterly revenue grew by twelve percent.",
	})
	if err != nil {
		t.Fatalf("Embed against %s with %s: %v", host, model, err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vecs))
	}

	nearScore, ok1 := rag.CosineSimilarity(vecs[anchor], vecs[near])
	farScore, ok2 := rag.CosineSimilarity(vecs[anchor], vecs[far])
	if !ok1 || !ok2 {
		t.Fatal("similarity undefined for a returned vector")
	}
	if nearScore <= farScore {
		t.Errorf("related pair %.3f should outscore unrelated pair %.3f", nearScore, farScore)
	}
	t.Logf("model=%s dim=%d near=%.3f far=%.3f", model, len(vecs[anchor]), nearScore, farScore)
}

func envOr(t *testing.T, key, fallback string) string {
	t.Helper()
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
