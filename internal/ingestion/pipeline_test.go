package ingestion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/54b3r/ragchat-go/internal/chunker"
	"github.com/54b3r/ragchat-go/internal/extract"
	"github.com/54b3r/ragchat-go/internal/rag"
)

// stubEmbedder returns a constant vector, failing for texts containing fail.
type stubEmbedder struct {
	fail string
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if s.fail != "" && strings.Contains(text, s.fail) {
			return nil, fmt.Errorf("stub: refusing %q", s.fail)
		}
		out[i] = []float32{1, 1, 1}
	}
	return out, nil
}

func newTestPipeline(t *testing.T, emb rag.Embedder, chunking chunker.Config) (*Pipeline, *rag.MemoryStore) {
	t.Helper()
	store, err := rag.NewMemoryStore(&rag.MemoryStoreConfig{Embedder: emb})
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	p, err := NewPipeline(store, &Config{Chunking: chunking})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p, store
}

func TestNewPipeline_InvalidChunkingIsFatal(t *testing.T) {
	t.Parallel()

	store, _ := rag.NewMemoryStore(&rag.MemoryStoreConfig{Embedder: &stubEmbedder{}})
	_, err := NewPipeline(store, &Config{Chunking: chunker.Config{TargetSize: 100, Overlap: 100}})
	if !errors.Is(err, chunker.ErrInvalidConfig) {
		t.Fatalf("want ErrInvalidConfig, got %v", err)
	}
	if _, err := NewPipeline(nil, nil); err == nil {
		t.Fatal("want error for nil store")
	}
}

func TestNewPipeline_Defaults(t *testing.T) {
	t.Parallel()

	p, _ := newTestPipeline(t, &stubEmbedder{}, chunker.Config{})
	if p.Chunking() != chunker.DefaultConfig() {
		t.Errorf("chunking defaults: %+v", p.Chunking())
	}
}

func TestPipeline_IngestFile(t *testing.T) {
	t.Parallel()

	p, store := newTestPipeline(t, &stubEmbedder{}, chunker.Config{TargetSize: 100, Overlap: 20})
	text := strings.Repeat("Sentences end here. ", 30)

	res, err := p.IngestFile(t.Context(), "notes.txt", []byte(text))
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if res.Filename != "notes.txt" || res.DocumentID == "" {
		t.Errorf("result: %+v", res)
	}
	if res.ChunksCreated < 2 || res.ChunksEmbedded != res.ChunksCreated {
		t.Errorf("counts: created %d embedded %d", res.ChunksCreated, res.ChunksEmbedded)
	}
	if st := store.Stats(); st.FragmentCount != res.ChunksCreated {
		t.Errorf("store holds %d fragments, result says %d", st.FragmentCount, res.ChunksCreated)
	}
}

func TestPipeline_IngestFile_PartialFailure(t *testing.T) {
	t.Parallel()

	p, store := newTestPipeline(t, &stubEmbedder{fail: "POISON"}, chunker.Config{TargetSize: 50, Overlap: 0})
	text := strings.Repeat("a", 49) + " " + "POISON" + strings.Repeat("b", 60)

	res, err := p.IngestFile(t.Context(), "mixed.txt", []byte(text))
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if len(res.Failures) == 0 || res.ChunksEmbedded >= res.ChunksCreated {
		t.Fatalf("want partial failure, got %+v", res)
	}
	for _, f := range res.Failures {
		if f.Outcome != rag.OutcomeProviderError {
			t.Errorf("failure outcome: %v", f.Outcome)
		}
	}
	st := store.Stats()
	if st.FragmentCount != res.ChunksCreated || st.EmbeddingCount != res.ChunksEmbedded {
		t.Errorf("stats %+v disagree with result %+v", st, res)
	}
}

func TestPipeline_IngestFile_Errors(t *testing.T) {
	t.Parallel()

	p, _ := newTestPipeline(t, &stubEmbedder{}, chunker.Config{})

	if _, err := p.IngestFile(t.Context(), "deck.pptx", []byte("x")); !errors.Is(err, extract.ErrUnsupportedFormat) {
		t.Errorf("unsupported: got %v", err)
	}
	if _, err := p.IngestFile(t.Context(), "blank.txt", []byte("   ")); !errors.Is(err, extract.ErrNoText) {
		t.Errorf("blank: got %v", err)
	}
	if _, err := p.IngestText(t.Context(), "blank", "  \n "); !errors.Is(err, ErrNoFragments) {
		t.Errorf("no fragments: got %v", err)
	}
}

func TestPipeline_IngestURL(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/docs/guide":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<p>The guide explains retrieval.</p>"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	p, store := newTestPipeline(t, &stubEmbedder{}, chunker.Config{})

	res, err := p.IngestURL(t.Context(), srv.URL+"/docs/guide")
	if err != nil {
		t.Fatalf("IngestURL: %v", err)
	}
	if res.Filename != "guide" || res.ChunksCreated != 1 {
		t.Errorf("result: %+v", res)
	}
	if store.Stats().FragmentCount != 1 {
		t.Errorf("store: %+v", store.Stats())
	}

	if _, err := p.IngestURL(t.Context(), srv.URL+"/missing"); err == nil {
		t.Error("want error for 404")
	}
}

func TestPipeline_IngestURL_BodyLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	t.Cleanup(srv.Close)

	store, _ := rag.NewMemoryStore(&rag.MemoryStoreConfig{Embedder: &stubEmbedder{}})
	p, err := NewPipeline(store, &Config{MaxFetchBytes: 16})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	if _, err := p.IngestURL(t.Context(), srv.URL+"/big.txt"); err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Fatalf("want size limit error, got %v", err)
	}
}
