package chunker

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/54b3r/ragchat-go/internal/rag"
)

// prose is a multi-sentence sample with regular sentence and word boundaries.
var prose = strings.Repeat("The quick brown fox jumps over the lazy dog. "+
	"Pack my box with five dozen liquor jugs! "+
	"How vexingly quick daft zebras jump? ", 40)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "defaults", cfg: DefaultConfig()},
		{name: "zero overlap", cfg: Config{TargetSize: 10, Overlap: 0}},
		{name: "overlap just below size", cfg: Config{TargetSize: 10, Overlap: 9}},
		{name: "overlap equals size", cfg: Config{TargetSize: 10, Overlap: 10}, wantErr: true},
		{name: "overlap above size", cfg: Config{TargetSize: 10, Overlap: 50}, wantErr: true},
		{name: "negative overlap", cfg: Config{TargetSize: 10, Overlap: -1}, wantErr: true},
		{name: "zero size", cfg: Config{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Fatalf("want ErrInvalidConfig, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestChunk_InvalidConfigFailsFast(t *testing.T) {
	t.Parallel()

	_, err := Chunk("some text", "a.txt", Config{TargetSize: 20, Overlap: 20})
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("want ErrInvalidConfig, got %v", err)
	}
}

func TestChunk_EmptyText(t *testing.T) {
	t.Parallel()

	for _, text := range []string{"", "   ", "\n\t \n"} {
		got, err := Chunk(text, "empty.txt", DefaultConfig())
		if err != nil {
			t.Fatalf("Chunk(%q): unexpected error: %v", text, err)
		}
		if len(got) != 0 {
			t.Errorf("Chunk(%q): want 0 fragments, got %d", text, len(got))
		}
	}
}

func TestChunk_ShortTextSingleFragment(t *testing.T) {
	t.Parallel()

	text := "  A short note.  "
	got, err := Chunk(text, "note.txt", DefaultConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 fragment, got %d", len(got))
	}
	f := got[0]
	if f.Content != "A short note." {
		t.Errorf("Content: got %q", f.Content)
	}
	if f.Metadata.StartChar != 0 || f.Metadata.EndChar != len(text) {
		t.Errorf("range: got [%d,%d), want [0,%d)", f.Metadata.StartChar, f.Metadata.EndChar, len(text))
	}
	if f.Metadata.SourceName != "note.txt" || f.Metadata.ChunkNumber != 0 {
		t.Errorf("metadata: got %+v", f.Metadata)
	}
	if f.ID == "" {
		t.Error("ID must be assigned")
	}
	if f.Embedding != nil {
		t.Error("Embedding must be absent until computed")
	}
}

// assertCoverage checks that fragment ranges start at 0, never leave a gap,
// have non-decreasing starts, and end at len(text).
func assertCoverage(t *testing.T, text string, frags []rag.Fragment) {
	t.Helper()
	if len(frags) == 0 {
		t.Fatal("no fragments")
	}
	if frags[0].Metadata.StartChar != 0 {
		t.Errorf("first fragment starts at %d, want 0", frags[0].Metadata.StartChar)
	}
	covered := frags[0].Metadata.EndChar
	for i := 1; i < len(frags); i++ {
		prev, cur := frags[i-1].Metadata, frags[i].Metadata
		if cur.StartChar < prev.StartChar {
			t.Errorf("fragment %d starts at %d before previous start %d", i, cur.StartChar, prev.StartChar)
		}
		if cur.StartChar > covered {
			t.Errorf("gap before fragment %d: covered up to %d, next starts at %d", i, covered, cur.StartChar)
		}
		if cur.EndChar > covered {
			covered = cur.EndChar
		}
	}
	if covered != len(text) {
		t.Errorf("coverage ends at %d, want %d", covered, len(text))
	}
}

func TestChunk_CoverageAndOrdering(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		cfg  Config
	}{
		{name: "prose defaults", text: prose, cfg: DefaultConfig()},
		{name: "prose small windows", text: prose, cfg: Config{TargetSize: 100, Overlap: 20}},
		{name: "prose large overlap", text: prose, cfg: Config{TargetSize: 100, Overlap: 90}},
		{name: "no boundaries", text: strings.Repeat("x", 1234), cfg: Config{TargetSize: 100, Overlap: 20}},
		{name: "words only", text: strings.Repeat("lorem ipsum ", 200), cfg: Config{TargetSize: 64, Overlap: 8}},
		{name: "zero overlap", text: prose, cfg: Config{TargetSize: 150, Overlap: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			frags, err := Chunk(tt.text, "doc.txt", tt.cfg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			assertCoverage(t, tt.text, frags)
			for i, f := range frags {
				if f.Metadata.ChunkNumber != i {
					t.Errorf("fragment %d has chunk number %d", i, f.Metadata.ChunkNumber)
				}
				if w := f.Metadata.EndChar - f.Metadata.StartChar; w > tt.cfg.TargetSize {
					t.Errorf("fragment %d window %d exceeds target size %d", i, w, tt.cfg.TargetSize)
				}
				if f.Content == "" || f.Content != strings.TrimSpace(f.Content) {
					t.Errorf("fragment %d content not trimmed/non-empty: %q", i, f.Content)
				}
			}
		})
	}
}

func TestChunk_OverlapBound(t *testing.T) {
	t.Parallel()

	cfg := Config{TargetSize: 120, Overlap: 30}
	frags, err := Chunk(prose, "doc.txt", cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 1; i < len(frags); i++ {
		overlap := frags[i-1].Metadata.EndChar - frags[i].Metadata.StartChar
		if overlap > cfg.Overlap {
			t.Errorf("fragments %d/%d overlap by %d, max %d", i-1, i, overlap, cfg.Overlap)
		}
	}
}

func TestChunk_BoundaryPreference(t *testing.T) {
	t.Parallel()

	cfg := Config{TargetSize: 100, Overlap: 20}

	tests := []struct {
		name    string
		text    string
		wantEnd int
	}{
		{
			name:    "sentence terminator in trailing window",
			text:    strings.Repeat("a", 84) + "." + strings.Repeat("b", 100),
			wantEnd: 85,
		},
		{
			name:    "question mark beats earlier period",
			text:    strings.Repeat("a", 75) + "." + strings.Repeat("a", 10) + "?" + strings.Repeat("b", 100),
			wantEnd: 87,
		},
		{
			name:    "space when no terminator",
			text:    strings.Repeat("a", 90) + " " + strings.Repeat("b", 100),
			wantEnd: 90,
		},
		{
			name:    "terminator before trailing window is ignored",
			text:    strings.Repeat("a", 50) + "." + strings.Repeat("a", 200),
			wantEnd: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			frags, err := Chunk(tt.text, "doc.txt", cfg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := frags[0].Metadata.EndChar; got != tt.wantEnd {
				t.Errorf("first cut: got %d, want %d", got, tt.wantEnd)
			}
			if got := frags[1].Metadata.StartChar; got != tt.wantEnd-cfg.Overlap {
				t.Errorf("second start: got %d, want %d", got, tt.wantEnd-cfg.Overlap)
			}
		})
	}
}

// The n/(size-overlap)+1 bound holds when every cut is a hard cut, which is
// the case for text with no sentence or word boundaries.
func TestChunk_TerminationBound(t *testing.T) {
	t.Parallel()

	cfg := Config{TargetSize: 100, Overlap: 20}
	for _, n := range []int{1, 99, 100, 101, 180, 181, 1000, 4321} {
		text := strings.Repeat("z", n)
		frags, err := Chunk(text, "z.txt", cfg)
		if err != nil {
			t.Fatalf("n=%d: unexpected error: %v", n, err)
		}
		limit := n/(cfg.TargetSize-cfg.Overlap) + 1
		if len(frags) > limit {
			t.Errorf("n=%d: %d fragments exceeds bound %d", n, len(frags), limit)
		}
		assertCoverage(t, text, frags)
	}
}

func TestChunk_MultiByteTextStaysValidUTF8(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("é", 500) + strings.Repeat("日本語", 100)
	frags, err := Chunk(text, "utf8.txt", Config{TargetSize: 101, Overlap: 21})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertCoverage(t, text, frags)
	for i, f := range frags {
		if !utf8.ValidString(f.Content) {
			t.Errorf("fragment %d is not valid UTF-8", i)
		}
	}
}

func TestChunk_UniqueIDs(t *testing.T) {
	t.Parallel()

	frags, err := Chunk(prose, "doc.txt", Config{TargetSize: 80, Overlap: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seen := make(map[string]bool, len(frags))
	for _, f := range frags {
		if seen[f.ID] {
			t.Fatalf("duplicate fragment ID %s", f.ID)
		}
		seen[f.ID] = true
	}
}

// A boundary cut lands at least boundaryRatio*size into its window, so
// boundary-rich text is bounded by n/(0.7*size-overlap)+1 instead.
func TestChunk_BoundaryCutBound(t *testing.T) {
	t.Parallel()

	for _, cfg := range []Config{{TargetSize: 100, Overlap: 20}, {TargetSize: 1000, Overlap: 200}, {TargetSize: 150, Overlap: 0}} {
		frags, err := Chunk(prose, "doc.txt", cfg)
		if err != nil {
			t.Fatalf("%+v: unexpected error: %v", cfg, err)
		}
		minAdvance := int(boundaryRatio*float64(cfg.TargetSize)) - cfg.Overlap
		if limit := len(prose)/minAdvance + 1; len(frags) > limit {
			t.Errorf("%+v: %d fragments exceeds bound %d", cfg, len(frags), limit)
		}
	}
}

// Windows holding only whitespace produce no fragment, so the ranges may
// skip a run of whitespace but never any other text.
func TestChunk_GapsOnlyOverWhitespace(t *testing.T) {
	t.Parallel()

	text := "abc." + strings.Repeat(" ", 300) + "def."
	frags, err := Chunk(text, "gap.txt", Config{TargetSize: 100, Overlap: 20})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frags) != 2 {
		t.Fatalf("want 2 fragments, got %d: %+v", len(frags), frags)
	}
	if frags[0].Content != "abc." || frags[1].Content != "def." {
		t.Errorf("contents: %q, %q", frags[0].Content, frags[1].Content)
	}

	covered := 0
	for i, f := range frags {
		if f.Metadata.StartChar > covered {
			if gap := text[covered:f.Metadata.StartChar]; strings.TrimSpace(gap) != "" {
				t.Errorf("fragment %d: gap [%d,%d) holds text %q", i, covered, f.Metadata.StartChar, gap)
			}
		}
		covered = max(covered, f.Metadata.EndChar)
	}
	if covered != len(text) {
		t.Errorf("coverage ends at %d, want %d", covered, len(text))
	}
}
