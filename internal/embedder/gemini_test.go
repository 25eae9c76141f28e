package embedder

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"google.golang.org/genai"
)

// geminiRequest is the batchEmbedContents body the SDK sends.
type geminiRequest struct {
	Requests []struct {
		Model                string `json:"model"`
		OutputDimensionality int    `json:"outputDimensionality"`
		Content              struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"requests"`
}

// newGeminiServer serves batchEmbedContents with status and body, recording
// each decoded request.
func newGeminiServer(t *testing.T, status int, body string) (*GeminiEmbedder, func() []geminiRequest, *atomic.Int64) {
	t.Helper()
	var (
		mu    sync.Mutex
		reqs  []geminiRequest
		calls atomic.Int64
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "models/text-embedding-004:batchEmbedContents") {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "AIza-test" {
			t.Errorf("api key header: %q", got)
		}
		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		mu.Lock()
		reqs = append(reqs, req)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	emb, err := NewGeminiEmbedder(t.Context(), &GeminiConfig{
		APIKey:     "AIza-test",
		Model:      "text-embedding-004",
		Dimensions: 2,
		BaseURL:    srv.URL + "/",
	})
	if err != nil {
		t.Fatalf("NewGeminiEmbedder: %v", err)
	}
	recorded := func() []geminiRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]geminiRequest(nil), reqs...)
	}
	return emb, recorded, &calls
}

func TestGeminiEmbedder_Embed(t *testing.T) {
	t.Parallel()

	emb, reqs, _ := newGeminiServer(t, http.StatusOK,
		`{"embeddings":[{"values":[1,0]},{"values":[0,1]}]}`)

	got, err := emb.Embed(t.Context(), []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(got) != 2 || got[0][0] != 1 || got[1][1] != 1 {
		t.Errorf("embeddings: %v", got)
	}

	recorded := reqs()
	if len(recorded) != 1 {
		t.Fatalf("requests: got %d, want 1", len(recorded))
	}
	sent := recorded[0].Requests
	if len(sent) != 2 {
		t.Fatalf("batch size: got %d, want 2", len(sent))
	}
	for i, want := range []string{"alpha", "beta"} {
		if len(sent[i].Content.Parts) != 1 || sent[i].Content.Parts[0].Text != want {
			t.Errorf("request %d content: %+v", i, sent[i].Content)
		}
		if sent[i].OutputDimensionality != 2 {
			t.Errorf("request %d outputDimensionality: got %d, want 2", i, sent[i].OutputDimensionality)
		}
	}
}

func TestGeminiEmbedder_MalformedResponses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"count mismatch", `{"embeddings":[{"values":[1,0]}]}`, "expected 2 embeddings, got 1"},
		{"nil embedding", `{"embeddings":[{"values":[1,0]},null]}`, "embedding 1 missing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			emb, _, _ := newGeminiServer(t, http.StatusOK, tt.body)
			_, err := emb.Embed(t.Context(), []string{"a", "b"})
			if err == nil || !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Embed() = %v, want error containing %q", err, tt.wantMsg)
			}
		})
	}
}

func TestGeminiEmbedder_ErrorStatusIsNotRetried(t *testing.T) {
	t.Parallel()

	emb, _, calls := newGeminiServer(t, http.StatusForbidden,
		`{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`)

	_, err := emb.Embed(t.Context(), []string{"a"})
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusForbidden {
		t.Fatalf("want wrapped genai.APIError 403, got %v", err)
	}
	if retryable(err) {
		t.Error("403 from gemini classified retryable")
	}

	calls.Store(0)
	r := NewResilient(emb, ResilientConfig{MaxRetries: 3})
	if _, err := r.Embed(t.Context(), []string{"a"}); err == nil {
		t.Fatal("want error through Resilient")
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("server calls through Resilient: got %d, want 1", n)
	}
}

func TestNewGeminiEmbedder_RequiresKey(t *testing.T) {
	t.Parallel()
	if _, err := NewGeminiEmbedder(t.Context(), &GeminiConfig{Model: "text-embedding-004"}); err == nil {
		t.Fatal("want error without API key")
	}
}
