package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// defaultOllamaTimeout bounds one /api/embed round trip.
	defaultOllamaTimeout = 60 * time.Second
	// maxOllamaResponse caps the response body read from Ollama.
	maxOllamaResponse = 64 << 20
)

// OllamaConfig configures an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the server base URL, e.g. "http://localhost:11434".
	Host string
	// Model is the embedding model, e.g. "nomic-embed-text".
	Model string
	// HTTPClient replaces the default client with a 60s timeout.
	HTTPClient *http.Client
}

// OllamaEmbedder embeds text batches through Ollama's /api/embed. It needs
// no credentials and is safe for concurrent use.
type OllamaEmbedder struct {
	endpoint string
	model    string
	client   *http.Client
}

// NewOllamaEmbedder returns an embedder for cfg.
func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultOllamaTimeout}
	}
	return &OllamaEmbedder{
		endpoint: strings.TrimSuffix(cfg.Host, "/") + "/api/embed",
		model:    cfg.Model,
		client:   client,
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Embed returns one vector per text, in input order.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var out ollamaEmbedResponse
	if err := e.post(ctx, ollamaEmbedRequest{Model: e.model, Input: texts}, &out); err != nil {
		return nil, err
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embedder: got %d embeddings for %d texts", len(out.Embeddings), len(texts))
	}
	return out.Embeddings, nil
}

// post sends in as JSON and decodes the reply into out. A non-2xx reply
// becomes a *StatusError carrying Ollama's error text when it sent one.
func (e *OllamaEmbedder) post(ctx context.Context, in any, out *ollamaEmbedResponse) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("ollama embedder: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("ollama embedder: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama embedder: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxOllamaResponse))
	if err != nil {
		return fmt.Errorf("ollama embedder: read response: %w", err)
	}
	decodeErr := json.Unmarshal(body, out)

	if resp.StatusCode/100 != 2 {
		se := &StatusError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("ollama embedder: HTTP %d", resp.StatusCode)}
		if decodeErr == nil && out.Error != "" {
			se.Message += ": " + out.Error
		}
		return se
	}
	if decodeErr != nil {
		return fmt.Errorf("ollama embedder: decode response: %w", decodeErr)
	}
	return nil
}

// StatusError is a non-2xx answer from an embedding provider. Resilient
// retries only the status codes that can succeed on a later attempt.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string { return e.Message }
