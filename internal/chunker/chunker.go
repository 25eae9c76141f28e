// Package chunker splits raw document text into overlapping fragments sized
// for embedding models and LLM context windows. Cuts prefer sentence
// terminators, then spaces, within the trailing 30% of each window, and fall
// back to a hard cut when neither is present.
//
// Chunking is pure and deterministic apart from the fragment identifiers,
// which are random UUIDs assigned at creation time.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/54b3r/ragchat-go/internal/rag"
)

// Default chunking parameters, matching the document service defaults.
const (
	// DefaultTargetSize is the default window size in bytes.
	DefaultTargetSize = 1000
	// DefaultOverlap is the default number of bytes shared by consecutive windows.
	DefaultOverlap = 200

	// boundaryRatio marks where the boundary search region starts inside a
	// window: only the trailing 30% is searched for a natural cut.
	boundaryRatio = 0.7
)

// ErrInvalidConfig is returned when the chunking parameters cannot guarantee
// forward progress (overlap >= target size, or negative values).
var ErrInvalidConfig = errors.New("chunker: invalid configuration")

// Config holds the chunking parameters.
type Config struct {
	// TargetSize is the maximum window length in bytes. Must be > Overlap.
	TargetSize int `json:"chunk_size"`
	// Overlap is the number of bytes consecutive windows may share. Must be >= 0.
	Overlap int `json:"chunk_overlap"`
}

// DefaultConfig returns the default chunking parameters (1000 / 200).
func DefaultConfig() Config {
	return Config{TargetSize: DefaultTargetSize, Overlap: DefaultOverlap}
}

// Validate reports a configuration error unless TargetSize > Overlap >= 0.
func (c Config) Validate() error {
	if c.Overlap < 0 {
		return fmt.Errorf("%w: overlap %d must not be negative", ErrInvalidConfig, c.Overlap)
	}
	if c.TargetSize <= c.Overlap {
		return fmt.Errorf("%w: target size %d must be greater than overlap %d", ErrInvalidConfig, c.TargetSize, c.Overlap)
	}
	return nil
}

// Chunk splits text into an ordered sequence of fragments attributed to
// sourceName. Offsets in the returned metadata are byte offsets into text.
// Empty or whitespace-only text yields an empty slice.
func Chunk(text, sourceName string, cfg Config) ([]rag.Fragment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return []rag.Fragment{}, nil
	}

	n := len(text)
	fragments := make([]rag.Fragment, 0, n/(cfg.TargetSize-cfg.Overlap)+1)
	start := 0
	number := 0

	for start < n {
		cut := nextCut(text, start, cfg)

		if content := strings.TrimSpace(text[start:cut]); content != "" {
			fragments = append(fragments, rag.Fragment{
				ID:      uuid.NewString(),
				Content: content,
				Metadata: rag.Metadata{
					SourceName:  sourceName,
					ChunkNumber: number,
					StartChar:   start,
					EndChar:     cut,
				},
			})
			number++
		}

		if cut >= n {
			break
		}
		next := alignForward(text, cut-cfg.Overlap, cut)
		if next <= start {
			// No forward progress is possible; treat as end of input.
			break
		}
		start = next
	}

	return fragments, nil
}

// nextCut returns the exclusive end of the window that begins at start.
// A natural boundary is used only when the following window would still
// advance past start; otherwise the hard window edge is used.
func nextCut(text string, start int, cfg Config) int {
	n := len(text)
	end := start + cfg.TargetSize
	if end >= n {
		return n
	}

	if cut, ok := boundaryCut(text, start, end, cfg.TargetSize); ok && cut-cfg.Overlap > start {
		return cut
	}
	return hardCut(text, start, end, cfg.Overlap)
}

// boundaryCut searches the trailing 30% of [start, end) for the right-most
// sentence terminator (cut after it), then the right-most space (cut before it).
func boundaryCut(text string, start, end, targetSize int) (int, bool) {
	lo := start + int(boundaryRatio*float64(targetSize))
	if lo >= end {
		return 0, false
	}
	region := text[lo:end]

	if i := strings.LastIndexAny(region, ".!?"); i >= 0 {
		return lo + i + 1, true
	}
	if i := strings.LastIndexByte(region, ' '); i >= 0 && lo+i > start {
		return lo + i, true
	}
	return 0, false
}

// hardCut returns end moved back to the nearest rune start so no fragment
// splits a multi-byte character. If that would stall the cursor, the cut is
// moved forward to the next rune start instead.
func hardCut(text string, start, end, overlap int) int {
	cut := end
	for cut > start && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if cut-overlap > start {
		return cut
	}
	cut = end
	for cut < len(text) && !utf8.RuneStart(text[cut]) {
		cut++
	}
	return cut
}

// alignForward moves pos forward to the next rune start, never past limit.
func alignForward(text string, pos, limit int) int {
	if pos < 0 {
		pos = 0
	}
	for pos < limit && pos < len(text) && !utf8.RuneStart(text[pos]) {
		pos++
	}
	return pos
}
