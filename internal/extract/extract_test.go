package extract

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
)

// minimalPDF builds a single-page PDF whose content stream draws text with
// a standard Helvetica font. Object offsets are computed so the xref table
// is exact.
func minimalPDF(t *testing.T, text string) []byte {
	t.Helper()
	stream := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestExtract_Text(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		filename string
		data     []byte
		want     string
	}{
		{name: "utf8", filename: "notes.txt", data: []byte("héllo wörld"), want: "héllo wörld"},
		{name: "bom stripped", filename: "bom.txt", data: append([]byte{0xEF, 0xBB, 0xBF}, "plain"...), want: "plain"},
		{name: "latin1 fallback", filename: "legacy.TXT", data: []byte{'c', 'a', 'f', 0xE9}, want: "café"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Extract(tt.filename, tt.data)
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtract_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		filename string
		data     []byte
		wantErr  error
	}{
		{name: "unsupported extension", filename: "slides.pptx", data: []byte("x"), wantErr: ErrUnsupportedFormat},
		{name: "no extension", filename: "README", data: []byte("x"), wantErr: ErrUnsupportedFormat},
		{name: "whitespace only", filename: "blank.txt", data: []byte(" \n\t "), wantErr: ErrNoText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Extract(tt.filename, tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("want %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestExtract_PDF(t *testing.T) {
	t.Parallel()

	got, err := Extract("report.pdf", minimalPDF(t, "Hello PDF"))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(got, "Hello") {
		t.Errorf("extracted text %q does not contain page text", got)
	}
}

func TestExtract_MalformedPDF(t *testing.T) {
	t.Parallel()

	if _, err := Extract("broken.pdf", []byte("%PDF-1.4 not really")); err == nil {
		t.Fatal("want error for malformed pdf")
	}
}

func TestSupportedFormats(t *testing.T) {
	t.Parallel()

	got := SupportedFormats()
	if !slices.Equal(got, []string{".pdf", ".txt"}) {
		t.Errorf("SupportedFormats: %v", got)
	}
	if !Supported("A.PDF") || Supported("a.docx") {
		t.Error("Supported misreports extensions")
	}
}
