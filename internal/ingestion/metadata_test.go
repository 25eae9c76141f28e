package ingestion

import "testing"

func TestSourceNameFromURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
		want string
	}{
		{name: "file path", url: "https://example.com/docs/guides/setup.pdf", want: "setup.pdf"},
		{name: "trailing slash", url: "https://example.com/docs/intro/", want: "intro"},
		{name: "escaped segment", url: "https://example.com/files/annual%20report.txt", want: "annual report.txt"},
		{name: "query ignored", url: "https://example.com/a/notes.txt?download=1", want: "notes.txt"},
		{name: "bare host", url: "https://example.com", want: "example.com"},
		{name: "bare host slash", url: "https://example.com/", want: "example.com"},
		{name: "unparseable", url: "://nope", want: "document"},
		{name: "empty", url: "", want: "document"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SourceNameFromURL(tt.url); got != tt.want {
				t.Errorf("SourceNameFromURL(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestExtractionName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		sourceName  string
		contentType string
		want        string
	}{
		{name: "pdf extension kept", sourceName: "a.pdf", contentType: "application/octet-stream", want: "a.pdf"},
		{name: "txt extension kept", sourceName: "a.TXT", contentType: "", want: "a.TXT"},
		{name: "pdf by content type", sourceName: "download", contentType: "application/pdf", want: "download.pdf"},
		{name: "html as text", sourceName: "index.html", contentType: "text/html; charset=utf-8", want: "index.html.txt"},
		{name: "other text type", sourceName: "data", contentType: "text/csv", want: "data.txt"},
		{name: "unknown defaults to text", sourceName: "blob", contentType: "", want: "blob.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := extractionName(tt.sourceName, tt.contentType); got != tt.want {
				t.Errorf("extractionName(%q, %q) = %q, want %q", tt.sourceName, tt.contentType, got, tt.want)
			}
		})
	}
}
