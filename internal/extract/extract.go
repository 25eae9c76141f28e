// Package extract turns uploaded document bytes into plain text for the
// chunker. Plain text files are decoded as UTF-8 with a Latin-1 fallback;
// PDF files are read page by page.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/text/encoding/charmap"
)

var (
	// ErrUnsupportedFormat is returned for file extensions with no extractor.
	ErrUnsupportedFormat = errors.New("extract: unsupported file format")

	// ErrNoText is returned when extraction yields only whitespace.
	ErrNoText = errors.New("extract: no text content found in document")
)

// extractor converts raw file bytes into text.
type extractor func(data []byte) (string, error)

// extractors maps lower-case file extensions to their extractor.
var extractors = map[string]extractor{
	".txt": extractText,
	".pdf": extractPDF,
}

// SupportedFormats returns the accepted file extensions in sorted order.
func SupportedFormats() []string {
	out := make([]string, 0, len(extractors))
	for ext := range extractors {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Supported reports whether filename has an extension Extract can handle.
func Supported(filename string) bool {
	_, ok := extractors[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Extract returns the text content of data, choosing the extractor from the
// extension of filename.
func Extract(filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	fn, ok := extractors[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedFormat, ext, strings.Join(SupportedFormats(), ", "))
	}

	text, err := fn(data)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	return text, nil
}

// utf8BOM is stripped from the start of text files.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// extractText decodes data as UTF-8, falling back to ISO-8859-1 when the
// bytes are not valid UTF-8.
func extractText(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(bytes.TrimPrefix(data, utf8BOM)), nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("extract: decode latin-1 text: %w", err)
	}
	return string(decoded), nil
}

// extractPDF concatenates the plain text of every page, one page per line.
// The pdf reader panics on some malformed inputs; those become errors.
func extractPDF(data []byte) (_ string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("extract: malformed pdf: %v", rec)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("extract: open pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract: read pdf page %d: %w", i, err)
		}
		b.WriteString(text)
		b.WriteByte('\n')
	}
	return b.String(), nil
}
