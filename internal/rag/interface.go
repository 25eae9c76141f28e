// Package rag defines the retrieval core: the fragment and search result
// types, the Embedder capability the core consumes, and the in-memory
// MemoryStore that embeds, indexes, and ranks fragments by cosine similarity.
// The package knows nothing about HTTP, files, or databases.
package rag

import (
	"context"
	"errors"
)

var (
	// ErrDimensionMismatch is reported when an embedding's length differs
	// from the dimension established by the first stored embedding.
	ErrDimensionMismatch = errors.New("rag: embedding dimension mismatch")

	// ErrEmptyEmbedding is reported when a provider returns no vector, or a
	// zero-length vector, for a non-empty input.
	ErrEmptyEmbedding = errors.New("rag: provider returned an empty embedding")

	// ErrNotFound is returned by lookups on an unknown fragment identifier.
	ErrNotFound = errors.New("rag: fragment not found")
)

// Metadata is the immutable positional metadata recorded for a fragment at
// creation time.
type Metadata struct {
	// SourceName is the originating document name (usually the upload filename).
	SourceName string `json:"filename"`

	// ChunkNumber is the 0-based sequential index of the fragment within its document.
	ChunkNumber int `json:"chunk_number"`

	// StartChar is the inclusive byte offset of the fragment window in the source text.
	StartChar int `json:"start_char"`

	// EndChar is the exclusive byte offset of the fragment window in the source text.
	EndChar int `json:"end_char"`
}

// Fragment is a bounded span of source text stored as an independently
// retrievable and embeddable unit.
type Fragment struct {
	// ID is the opaque identifier assigned when the fragment was created.
	ID string `json:"chunk_id"`

	// Content is the trimmed, non-empty fragment text.
	Content string `json:"content"`

	// Metadata holds the source name and character offsets.
	Metadata Metadata `json:"metadata"`

	// Embedding is the dense vector for Content. Nil until computed.
	// It is never serialised back to API callers.
	Embedding []float32 `json:"-"`
}

// SearchResult is a ranked fragment produced transiently by a query.
type SearchResult struct {
	// ID is the fragment identifier.
	ID string `json:"chunk_id"`

	// Content is the fragment text.
	Content string `json:"content"`

	// Score is the cosine similarity between the query and the fragment, in [-1, 1].
	Score float64 `json:"score"`

	// Metadata is the fragment's source metadata.
	Metadata Metadata `json:"metadata"`
}

// Embedder is the interface for converting text into dense vector embeddings.
// Every call is independently fallible; implementations own any retry policy.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Searcher is the read path used by the response-generation layer.
// *MemoryStore satisfies it; tests inject fakes.
type Searcher interface {
	// Search returns at most topK fragments scoring at least threshold,
	// ordered by descending score. It never returns an error: provider
	// failures degrade to an empty result.
	Search(ctx context.Context, query string, topK int, threshold float64) []SearchResult
}

// Retriever returns context fragments for a question using a bound result
// count and threshold. *DefaultRetriever satisfies it.
type Retriever interface {
	// Retrieve returns the fragments most relevant to query.
	Retrieve(ctx context.Context, query string) []SearchResult
}
