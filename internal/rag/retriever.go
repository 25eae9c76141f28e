package rag

import (
	"context"
	"fmt"
)

// DefaultRetriever binds a Searcher to the configured result count and
// similarity threshold so response generation can retrieve context with a
// single query argument.
type DefaultRetriever struct {
	// searcher performs the similarity search.
	searcher Searcher

	// topK is the number of fragments requested per query.
	topK int

	// threshold is the minimum cosine score a fragment must reach.
	threshold float64
}

// NewRetriever constructs a DefaultRetriever. topK <= 0 falls back to
// DefaultTopK.
func NewRetriever(searcher Searcher, topK int, threshold float64) (*DefaultRetriever, error) {
	if searcher == nil {
		return nil, fmt.Errorf("rag: searcher must not be nil")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &DefaultRetriever{
		searcher:  searcher,
		topK:      topK,
		threshold: threshold,
	}, nil
}

// Retrieve returns the most relevant fragments for query. An empty result is
// not an error: the store degrades provider failures to no context.
func (r *DefaultRetriever) Retrieve(ctx context.Context, query string) []SearchResult {
	return r.searcher.Search(ctx, query, r.topK, r.threshold)
}
