package rag

import (
	"context"
	"testing"
)

// recordingSearcher captures the arguments of the last Search call.
type recordingSearcher struct {
	query     string
	topK      int
	threshold float64
	results   []SearchResult
}

func (r *recordingSearcher) Search(_ context.Context, query string, topK int, threshold float64) []SearchResult {
	r.query, r.topK, r.threshold = query, topK, threshold
	return r.results
}

func TestNewRetriever_NilSearcher(t *testing.T) {
	t.Parallel()

	if _, err := NewRetriever(nil, 3, 0.3); err == nil {
		t.Fatal("expected error for nil searcher")
	}
}

func TestRetriever_BindsTopKAndThreshold(t *testing.T) {
	t.Parallel()

	s := &recordingSearcher{results: []SearchResult{{ID: "a", Score: 0.9}}}
	r, err := NewRetriever(s, 3, 0.45)
	if err != nil {
		t.Fatal(err)
	}

	got := r.Retrieve(context.Background(), "what is a fragment")
	if len(got) != 1 || got[0].ID != "a" {
		t.Errorf("results not passed through: %+v", got)
	}
	if s.query != "what is a fragment" || s.topK != 3 || s.threshold != 0.45 {
		t.Errorf("search called with (%q, %d, %v)", s.query, s.topK, s.threshold)
	}
}

func TestRetriever_DefaultTopK(t *testing.T) {
	t.Parallel()

	s := &recordingSearcher{}
	r, err := NewRetriever(s, 0, 0.3)
	if err != nil {
		t.Fatal(err)
	}
	r.Retrieve(context.Background(), "q")
	if s.topK != DefaultTopK {
		t.Errorf("topK = %d, want DefaultTopK (%d)", s.topK, DefaultTopK)
	}
}

func TestRetriever_OverMemoryStore(t *testing.T) {
	t.Parallel()

	emb := &fakeEmbedder{fn: lengthVector}
	store, _ := newTestStore(t, emb)
	store.Ingest(context.Background(), []Fragment{
		{ID: "cat", Content: "The cat sat.", Metadata: Metadata{SourceName: "pets.txt"}},
		{ID: "dog", Content: "The dog ran.", Metadata: Metadata{SourceName: "pets.txt", ChunkNumber: 1}},
	})

	var _ Retriever = (*DefaultRetriever)(nil)
	r, err := NewRetriever(store, 1, 0.99)
	if err != nil {
		t.Fatal(err)
	}
	got := r.Retrieve(context.Background(), "Which pet sat")
	if len(got) != 1 || got[0].ID != "cat" {
		t.Errorf("expected the first inserted fragment only, got %+v", got)
	}
}
