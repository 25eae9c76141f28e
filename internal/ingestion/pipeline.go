// Package ingestion implements the document ingestion pipeline. It extracts
// text from uploaded files or fetched URLs, splits it into fragments with the
// chunker, and hands the fragments to the vector store for embedding.
// The HTTP upload handler and the `ragchat search` CLI command both use it.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/ragchat-go/internal/chunker"
	"github.com/54b3r/ragchat-go/internal/extract"
	"github.com/54b3r/ragchat-go/internal/logging"
	"github.com/54b3r/ragchat-go/internal/rag"
)

// ErrNoFragments is returned when extraction succeeded but chunking produced
// nothing to store.
var ErrNoFragments = errors.New("ingestion: no content extracted from document")

// Ingester is the write side of the vector store used by the pipeline.
// *rag.MemoryStore satisfies it.
type Ingester interface {
	// Ingest stores and embeds fragments, reporting per-fragment outcomes.
	Ingest(ctx context.Context, fragments []rag.Fragment) rag.IngestReport
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// Chunking holds the fragment size and overlap. Zero values use the
	// chunker defaults (1000 / 200).
	Chunking chunker.Config

	// HTTPTimeout is the timeout for each URL fetch.
	// Defaults to 30s if zero.
	HTTPTimeout time.Duration

	// MaxFetchBytes caps the body size read from a fetched URL.
	// Defaults to 20 MiB if zero.
	MaxFetchBytes int64

	// UserAgent is the HTTP User-Agent header sent with fetch requests.
	UserAgent string
}

// Result summarises one ingested document.
type Result struct {
	// DocumentID identifies this ingestion. Fragments carry their own IDs.
	DocumentID string `json:"document_id"`

	// Filename is the source name recorded on every fragment.
	Filename string `json:"filename"`

	// ChunksCreated is the number of fragments produced and stored.
	ChunksCreated int `json:"chunks_created"`

	// ChunksEmbedded is the number of fragments that are searchable.
	ChunksEmbedded int `json:"chunks_embedded"`

	// Failures lists fragments whose embedding failed. They are stored
	// but not searchable.
	Failures []rag.FragmentResult `json:"failed_chunks,omitempty"`
}

// Pipeline orchestrates the extract → chunk → ingest flow.
type Pipeline struct {
	// store embeds and indexes the fragments.
	store Ingester

	// cfg holds the resolved pipeline configuration.
	cfg *Config

	// httpClient is the HTTP client used for fetching documents by URL.
	httpClient *http.Client
}

// NewPipeline constructs a Pipeline. An invalid chunking configuration is
// returned as an error wrapping chunker.ErrInvalidConfig.
func NewPipeline(store Ingester, cfg *Config) (*Pipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	resolved := Config{}
	if cfg != nil {
		resolved = *cfg
	}
	if resolved.Chunking == (chunker.Config{}) {
		resolved.Chunking = chunker.DefaultConfig()
	}
	if err := resolved.Chunking.Validate(); err != nil {
		return nil, fmt.Errorf("ingestion: %w", err)
	}
	if resolved.HTTPTimeout <= 0 {
		resolved.HTTPTimeout = 30 * time.Second
	}
	if resolved.MaxFetchBytes <= 0 {
		resolved.MaxFetchBytes = 20 << 20
	}
	if resolved.UserAgent == "" {
		resolved.UserAgent = "ragchat-go/1.0 (document ingestion)"
	}

	return &Pipeline{
		store: store,
		cfg:   &resolved,
		httpClient: &http.Client{
			Timeout: resolved.HTTPTimeout,
		},
	}, nil
}

// Chunking returns the resolved chunking configuration.
func (p *Pipeline) Chunking() chunker.Config {
	return p.cfg.Chunking
}

// IngestFile extracts text from an uploaded file and ingests it under
// filename. Extraction errors wrap extract.ErrUnsupportedFormat or
// extract.ErrNoText so callers can map them to client errors.
func (p *Pipeline) IngestFile(ctx context.Context, filename string, data []byte) (*Result, error) {
	text, err := extract.Extract(filename, data)
	if err != nil {
		return nil, fmt.Errorf("ingestion: %s: %w", filename, err)
	}
	return p.IngestText(ctx, filename, text)
}

// IngestURL fetches rawURL and ingests its content. The source name is
// derived from the URL; PDF responses are parsed as PDF and everything else
// as text.
func (p *Pipeline) IngestURL(ctx context.Context, rawURL string) (*Result, error) {
	body, contentType, err := p.fetch(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("ingestion: fetch failed for %s: %w", rawURL, err)
	}

	name := SourceNameFromURL(rawURL)
	text, err := extract.Extract(extractionName(name, contentType), body)
	if err != nil {
		return nil, fmt.Errorf("ingestion: %s: %w", rawURL, err)
	}
	return p.IngestText(ctx, name, text)
}

// IngestText chunks text and ingests the fragments under sourceName.
func (p *Pipeline) IngestText(ctx context.Context, sourceName, text string) (*Result, error) {
	log := logging.FromContext(ctx)

	fragments, err := chunker.Chunk(text, sourceName, p.cfg.Chunking)
	if err != nil {
		return nil, fmt.Errorf("ingestion: chunk %s: %w", sourceName, err)
	}
	if len(fragments) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFragments, sourceName)
	}

	report := p.store.Ingest(ctx, fragments)
	res := &Result{
		DocumentID:     uuid.NewString(),
		Filename:       sourceName,
		ChunksCreated:  report.Stored,
		ChunksEmbedded: report.Embedded,
		Failures:       report.Failures(),
	}

	log.Info("ingestion: document ingested",
		"document_id", res.DocumentID,
		"filename", sourceName,
		"chunks_created", res.ChunksCreated,
		"chunks_embedded", res.ChunksEmbedded,
	)
	return res, nil
}

// fetch retrieves the body and Content-Type of a URL.
func (p *Pipeline) fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	req.Header.Set("Accept", "text/plain, text/html, application/pdf")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.cfg.MaxFetchBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("reading body: %w", err)
	}
	if int64(len(body)) > p.cfg.MaxFetchBytes {
		return nil, "", fmt.Errorf("body exceeds %d bytes", p.cfg.MaxFetchBytes)
	}

	return body, resp.Header.Get("Content-Type"), nil
}
