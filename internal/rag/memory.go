package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/ragchat-go/internal/logging"
)

const (
	// DefaultTopK is the result count used when Search is called with topK <= 0.
	DefaultTopK = 5

	// DefaultSimilarityThreshold is the minimum cosine score callers use when
	// they have no configured threshold of their own.
	DefaultSimilarityThreshold = 0.3

	// bytesPerFloat is the storage size of one embedding component.
	bytesPerFloat = 4
)

// EmbedOutcome is the result of embedding one fragment during Ingest.
type EmbedOutcome int

const (
	// OutcomeEmbedded means the fragment was stored with its embedding.
	OutcomeEmbedded EmbedOutcome = iota

	// OutcomeProviderError means the embedding provider call failed. The
	// fragment content is stored but it is not searchable.
	OutcomeProviderError

	// OutcomeEmptyEmbedding means the provider returned no vector.
	OutcomeEmptyEmbedding

	// OutcomeDimensionMismatch means the vector length differed from the
	// store's established dimension.
	OutcomeDimensionMismatch

	// OutcomeSuperseded means the fragment was removed, overwritten, or the
	// store was cleared while its embedding was being computed.
	OutcomeSuperseded
)

// String returns the metric/log label for the outcome.
func (o EmbedOutcome) String() string {
	switch o {
	case OutcomeEmbedded:
		return "embedded"
	case OutcomeProviderError:
		return "provider_error"
	case OutcomeEmptyEmbedding:
		return "empty_embedding"
	case OutcomeDimensionMismatch:
		return "dimension_mismatch"
	case OutcomeSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// MarshalText renders the outcome as its label in JSON payloads.
func (o EmbedOutcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// FragmentResult reports what happened to a single fragment during Ingest.
type FragmentResult struct {
	// ID is the fragment identifier.
	ID string `json:"chunk_id"`

	// Outcome is the embedding outcome for this fragment.
	Outcome EmbedOutcome `json:"outcome"`

	// Err is the underlying error for failed outcomes, nil on success.
	Err error `json:"-"`
}

// IngestReport summarises an Ingest call. Results is parallel to the input.
type IngestReport struct {
	// Results holds one entry per input fragment, in input order.
	Results []FragmentResult

	// Stored is the number of distinct fragment IDs whose content was
	// committed. A batch that repeats an ID stores it once; the earlier
	// occurrence reports OutcomeSuperseded.
	Stored int

	// Embedded is the number of fragments that received an embedding.
	Embedded int
}

// Failures returns the results whose outcome is not OutcomeEmbedded.
func (r IngestReport) Failures() []FragmentResult {
	var out []FragmentResult
	for _, res := range r.Results {
		if res.Outcome != OutcomeEmbedded {
			out = append(out, res)
		}
	}
	return out
}

// Stats is a snapshot of the store's size and configuration.
type Stats struct {
	// FragmentCount is the number of stored fragments.
	FragmentCount int `json:"total_chunks"`

	// EmbeddingCount is the number of stored fragments carrying an embedding.
	EmbeddingCount int `json:"total_embeddings"`

	// Dimension is the established embedding dimension, nil when unset.
	Dimension *int `json:"embedding_dimension"`

	// EmbeddingModel is the configured embedding model name.
	EmbeddingModel string `json:"model_name"`

	// EstimatedMemoryBytes approximates the memory held by embeddings
	// (4 bytes per component) plus fragment content.
	EstimatedMemoryBytes int64 `json:"memory_usage_bytes"`

	// EstimatedMemoryMB is EstimatedMemoryBytes expressed in mebibytes.
	EstimatedMemoryMB float64 `json:"memory_usage_mb"`
}

// MemoryStoreConfig holds the dependencies for a MemoryStore.
type MemoryStoreConfig struct {
	// Embedder computes fragment and query embeddings. Required.
	Embedder Embedder

	// EmbeddingModel is reported by Stats. Informational only.
	EmbeddingModel string

	// MetricsRegistry receives the store's Prometheus metrics.
	// Nil leaves them unregistered.
	MetricsRegistry prometheus.Registerer
}

// record is the single owning entry for a fragment. A fragment is
// searchable exactly when embedding is non-nil.
type record struct {
	fragment  Fragment
	embedding []float32
	norm      float64
	seq       uint64
}

// MemoryStore is an in-memory vector index that embeds fragments through an
// Embedder and ranks them by exhaustive cosine similarity. It is safe for
// concurrent use. Provider calls are never made while the lock is held.
type MemoryStore struct {
	embedder Embedder
	model    string
	metrics  *storeMetrics

	mu         sync.RWMutex
	records    map[string]*record
	dimension  int
	embedded   int
	seq        uint64
	generation uint64
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore(cfg *MemoryStoreConfig) (*MemoryStore, error) {
	if cfg == nil || cfg.Embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	return &MemoryStore{
		embedder: cfg.Embedder,
		model:    cfg.EmbeddingModel,
		metrics:  newStoreMetrics(cfg.MetricsRegistry),
		records:  make(map[string]*record),
	}, nil
}

// Ingest stores the given fragments and embeds each one independently.
// Content is committed before the provider is called, so a fragment whose
// embedding fails is still retrievable by ID but never appears in search
// results. A fragment with the same ID as an existing one replaces it.
// Fragments arriving with a precomputed Embedding skip the provider call.
// Failures are reported per fragment and never abort the batch.
func (s *MemoryStore) Ingest(ctx context.Context, fragments []Fragment) IngestReport {
	report := IngestReport{Results: make([]FragmentResult, len(fragments))}
	if len(fragments) == 0 {
		return report
	}
	log := logging.FromContext(ctx)

	recs := make([]*record, len(fragments))
	precomputed := make([][]float32, len(fragments))
	batchIDs := make(map[string]struct{}, len(fragments))
	s.mu.Lock()
	gen := s.generation
	for i, f := range fragments {
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		if len(f.Embedding) > 0 {
			precomputed[i] = f.Embedding
		}
		f.Embedding = nil
		rec := &record{fragment: f, seq: s.nextSeq()}
		if old, ok := s.records[f.ID]; ok && old.embedding != nil {
			s.embedded--
		}
		s.records[f.ID] = rec
		recs[i] = rec
		batchIDs[f.ID] = struct{}{}
		report.Results[i].ID = f.ID
	}
	report.Stored = len(batchIDs)
	s.updateGaugesLocked()
	s.mu.Unlock()

	for i, rec := range recs {
		vec := precomputed[i]
		var err error
		if vec == nil {
			vec, err = s.embedOne(ctx, rec.fragment.Content)
		}

		outcome := OutcomeEmbedded
		switch {
		case errors.Is(err, ErrEmptyEmbedding):
			outcome = OutcomeEmptyEmbedding
		case err != nil:
			outcome = OutcomeProviderError
		default:
			outcome, err = s.commitEmbedding(rec, gen, vec)
		}

		report.Results[i].Outcome = outcome
		report.Results[i].Err = err
		s.metrics.ingestOutcomes.WithLabelValues(outcome.String()).Inc()

		if outcome == OutcomeEmbedded {
			report.Embedded++
			continue
		}
		log.Warn("rag: fragment not embedded",
			"chunk_id", rec.fragment.ID,
			"source", rec.fragment.Metadata.SourceName,
			"chunk_number", rec.fragment.Metadata.ChunkNumber,
			"outcome", outcome.String(),
			"error", err,
		)
	}

	log.Debug("rag: ingest complete",
		"fragments", report.Stored,
		"embedded", report.Embedded,
	)
	return report
}

// commitEmbedding attaches vec to rec if rec is still the live record for its
// ID and the store has not been cleared since gen.
func (s *MemoryStore) commitEmbedding(rec *record, gen uint64, vec []float32) (EmbedOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != gen || s.records[rec.fragment.ID] != rec {
		return OutcomeSuperseded, nil
	}
	if s.dimension != 0 && len(vec) != s.dimension {
		return OutcomeDimensionMismatch, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), s.dimension)
	}
	if s.dimension == 0 {
		s.dimension = len(vec)
	}

	rec.embedding = append([]float32(nil), vec...)
	rec.norm = norm(rec.embedding)
	s.embedded++
	s.updateGaugesLocked()
	return OutcomeEmbedded, nil
}

// embedOne calls the provider for a single text and validates the shape of
// the response.
func (s *MemoryStore) embedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("rag: embed: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return vecs[0], nil
}

// scored is a search candidate carried through ranking.
type scored struct {
	rec   *record
	score float64
}

// Search embeds query and returns up to topK fragments whose cosine
// similarity is at least threshold, ordered by descending score with ties
// broken by insertion order. topK <= 0 uses DefaultTopK and threshold is
// clamped to [-1, 1]. When nothing is embedded the provider is not called.
// Provider failures and dimension mismatches yield an empty result.
func (s *MemoryStore) Search(ctx context.Context, query string, topK int, threshold float64) []SearchResult {
	start := time.Now()
	results := s.search(ctx, query, topK, threshold)
	s.metrics.searchDurationSeconds.Observe(time.Since(start).Seconds())
	s.metrics.searchResults.Observe(float64(len(results)))
	return results
}

func (s *MemoryStore) search(ctx context.Context, query string, topK int, threshold float64) []SearchResult {
	if topK <= 0 {
		topK = DefaultTopK
	}
	threshold = math.Max(-1, math.Min(1, threshold))
	log := logging.FromContext(ctx)

	s.mu.RLock()
	empty := s.embedded == 0
	s.mu.RUnlock()
	if empty {
		return []SearchResult{}
	}

	qvec, err := s.embedOne(ctx, query)
	if err != nil {
		log.Warn("rag: query embedding failed", "error", err)
		return []SearchResult{}
	}
	qnorm := norm(qvec)
	if qnorm == 0 {
		log.Warn("rag: query embedding has zero norm")
		return []SearchResult{}
	}

	s.mu.RLock()
	if len(qvec) != s.dimension {
		dim := s.dimension
		s.mu.RUnlock()
		log.Warn("rag: query embedding dimension mismatch",
			"error", fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(qvec), dim),
		)
		return []SearchResult{}
	}

	candidates := make([]scored, 0, s.embedded)
	for _, rec := range s.records {
		if rec.embedding == nil || rec.norm == 0 {
			continue
		}
		score := clampScore(dot(qvec, rec.embedding) / (qnorm * rec.norm))
		if score >= threshold {
			candidates = append(candidates, scored{rec: rec, score: score})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].rec.seq < candidates[j].rec.seq
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	results := make([]SearchResult, len(candidates))
	for i, c := range candidates {
		results[i] = SearchResult{
			ID:       c.rec.fragment.ID,
			Content:  c.rec.fragment.Content,
			Score:    c.score,
			Metadata: c.rec.fragment.Metadata,
		}
	}
	s.mu.RUnlock()

	return results
}

// Get returns a copy of the fragment with the given ID, including its
// embedding when one has been computed.
func (s *MemoryStore) Get(id string) (Fragment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return Fragment{}, false
	}
	f := rec.fragment
	if rec.embedding != nil {
		f.Embedding = append([]float32(nil), rec.embedding...)
	}
	return f, true
}

// Remove deletes the fragment and its embedding. It reports whether the ID
// was present. The established dimension is kept even when the last
// embedding is removed.
func (s *MemoryStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return false
	}
	if rec.embedding != nil {
		s.embedded--
	}
	delete(s.records, id)
	s.updateGaugesLocked()
	return true
}

// Clear removes every fragment, resets the dimension to unset, and returns
// the number of fragments removed. Ingests in flight at the time of the call
// will not commit their embeddings.
func (s *MemoryStore) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.records)
	s.records = make(map[string]*record)
	s.dimension = 0
	s.embedded = 0
	s.generation++
	s.updateGaugesLocked()
	return n
}

// Stats returns a snapshot of the store's counts and estimated footprint.
func (s *MemoryStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		FragmentCount:  len(s.records),
		EmbeddingCount: s.embedded,
		EmbeddingModel: s.model,
	}
	if s.dimension != 0 {
		dim := s.dimension
		st.Dimension = &dim
	}

	var textBytes int64
	for _, rec := range s.records {
		textBytes += int64(len(rec.fragment.Content))
	}
	st.EstimatedMemoryBytes = int64(s.embedded)*int64(s.dimension)*bytesPerFloat + textBytes
	st.EstimatedMemoryMB = float64(st.EstimatedMemoryBytes) / (1024 * 1024)
	return st
}

// Ping verifies the embedding provider responds, for readiness probes.
func (s *MemoryStore) Ping(ctx context.Context) error {
	if _, err := s.embedOne(ctx, "ping"); err != nil {
		return fmt.Errorf("rag: ping embedder: %w", err)
	}
	return nil
}

func (s *MemoryStore) nextSeq() uint64 {
	s.seq++
	return s.seq
}

// updateGaugesLocked refreshes the size gauges. Callers hold s.mu.
func (s *MemoryStore) updateGaugesLocked() {
	s.metrics.fragments.Set(float64(len(s.records)))
	s.metrics.embeddings.Set(float64(s.embedded))
}

// CosineSimilarity returns the cosine of the angle between a and b. The
// boolean is false when the vectors differ in length, are empty, or either
// has zero magnitude.
func CosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0, false
	}
	return clampScore(dot(a, b) / (na * nb)), true
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}

// clampScore absorbs floating point drift so scores stay within [-1, 1].
func clampScore(x float64) float64 {
	return math.Max(-1, math.Min(1, x))
}
