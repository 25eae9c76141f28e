package ingestion

import (
	"mime"
	"net/url"
	"path"
	"strings"
)

// fallbackSourceName is used when nothing usable can be derived from a URL.
const fallbackSourceName = "document"

// SourceNameFromURL derives a human-readable source name for fragments
// fetched from rawURL. The last non-empty path segment wins
// (".../guides/setup.pdf" → "setup.pdf"); a bare host yields the host name.
func SourceNameFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fallbackSourceName
	}

	segments := trimSegments(parsed.Path)
	if len(segments) > 0 {
		last := segments[len(segments)-1]
		if unescaped, err := url.PathUnescape(last); err == nil {
			last = unescaped
		}
		return last
	}
	if host := parsed.Hostname(); host != "" {
		return host
	}
	return fallbackSourceName
}

// contentTypeExtensions maps fetched media types to the extension whose
// extractor understands them. HTML and other text types are read as text.
var contentTypeExtensions = map[string]string{
	"application/pdf":  ".pdf",
	"text/plain":       ".txt",
	"text/html":        ".txt",
	"text/markdown":    ".txt",
	"application/json": ".txt",
}

// extractionName returns the name handed to the extractor for a fetched
// document. A recognised extension on the source name is kept; otherwise the
// response Content-Type decides, defaulting to plain text.
func extractionName(sourceName, contentType string) string {
	ext := strings.ToLower(path.Ext(sourceName))
	if ext == ".pdf" || ext == ".txt" {
		return sourceName
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if mapped, ok := contentTypeExtensions[mediaType]; ok {
			return sourceName + mapped
		}
		if strings.HasPrefix(mediaType, "text/") {
			return sourceName + ".txt"
		}
	}
	return sourceName + ".txt"
}

// trimSegments splits a URL path into non-empty segments.
func trimSegments(p string) []string {
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
