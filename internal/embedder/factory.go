package embedder

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/54b3r/ragchat-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultGeminiModel = "text-embedding-004"

	defaultOllamaHost       = "http://localhost:11434"
	defaultOpenAIBaseURL    = "https://api.openai.com/v1"
	defaultAzureAPIVersion  = "2025-04-01-preview"
	defaultEmbeddingBackend = "ollama"
)

// Settings is the fully resolved embedding configuration.
type Settings struct {
	// Backend is the embedding provider: ollama, openai, azure, or gemini.
	Backend string
	// Model is the embedding model (or Azure deployment) name.
	Model string
	// APIKey is the provider credential. Empty for Ollama.
	APIKey string
	// Endpoint is the provider base URL.
	Endpoint string
	// APIVersion is the Azure OpenAI API version. Azure only.
	APIVersion string
	// Dimensions requests a specific output size (0 = model default).
	Dimensions int
	// RatePerSecond throttles provider calls (0 = unlimited).
	RatePerSecond float64
	// MaxRetries bounds retries per call (0 = default, negative = none).
	MaxRetries int
}

// ResolveFromEnv resolves embedding settings using cascading defaults that
// inherit from the chat provider configuration when embedding-specific
// overrides are not set.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER, else MODEL_PROVIDER, else ollama
//  2. Per-backend credentials are inherited from the chat provider's env vars
//  3. EMBEDDING_MODEL overrides the default model for the resolved backend
//  4. EMBEDDING_API_KEY overrides the inherited API key
//  5. EMBEDDING_ENDPOINT overrides the inherited endpoint
//  6. EMBEDDING_DIMENSIONS requests a specific vector size
//  7. EMBEDDING_RATE_LIMIT and EMBEDDING_MAX_RETRIES tune Resilient
func ResolveFromEnv() Settings {
	s := Settings{
		Backend:    resolveBackend(),
		Model:      getEnv("EMBEDDING_MODEL"),
		APIKey:     getEnv("EMBEDDING_API_KEY"),
		Endpoint:   getEnv("EMBEDDING_ENDPOINT"),
		Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
		MaxRetries: getEnvInt("EMBEDDING_MAX_RETRIES", 0),
	}
	if v := getEnv("EMBEDDING_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.RatePerSecond = f
		}
	}

	switch s.Backend {
	case "ollama":
		s.Endpoint = firstNonEmpty(s.Endpoint, getEnv("OLLAMA_HOST"), defaultOllamaHost)
		s.Model = firstNonEmpty(s.Model, defaultOllamaModel)
	case "openai":
		s.APIKey = firstNonEmpty(s.APIKey, getEnv("OPENAI_API_KEY"))
		s.Endpoint = firstNonEmpty(s.Endpoint, defaultOpenAIBaseURL)
		s.Model = firstNonEmpty(s.Model, defaultOpenAIModel)
	case "azure":
		s.APIKey = firstNonEmpty(s.APIKey, getEnv("AZURE_OPENAI_API_KEY"))
		s.Endpoint = firstNonEmpty(s.Endpoint, getEnv("AZURE_OPENAI_ENDPOINT"))
		s.APIVersion = getEnvOrDefault("AZURE_OPENAI_API_VERSION", defaultAzureAPIVersion)
		s.Model = firstNonEmpty(s.Model, defaultOpenAIModel)
	case "gemini":
		s.APIKey = firstNonEmpty(s.APIKey, getEnv("GOOGLE_API_KEY"), getEnv("GEMINI_API_KEY"))
		s.Model = firstNonEmpty(s.Model, defaultGeminiModel)
	}
	return s
}

// Validate reports missing credentials for the resolved backend.
func (s Settings) Validate() error {
	switch s.Backend {
	case "ollama":
		if s.Endpoint == "" {
			return fmt.Errorf("embedder: ollama requires OLLAMA_HOST or EMBEDDING_ENDPOINT")
		}
	case "openai":
		if s.APIKey == "" {
			return fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
	case "azure":
		if s.APIKey == "" {
			return fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if s.Endpoint == "" {
			return fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
	case "gemini":
		if s.APIKey == "" {
			return fmt.Errorf("embedder: gemini requires GOOGLE_API_KEY, GEMINI_API_KEY, or EMBEDDING_API_KEY")
		}
	default:
		return fmt.Errorf("embedder: unknown backend %q, valid values: ollama, openai, azure, gemini "+
			"(set EMBEDDING_PROVIDER when MODEL_PROVIDER has no embedding support)", s.Backend)
	}
	return nil
}

// NewFromEnv resolves settings from the environment and constructs the
// embedder they describe. The returned Settings identify the model in use.
func NewFromEnv(ctx context.Context) (rag.Embedder, Settings, error) {
	s := ResolveFromEnv()
	emb, err := New(ctx, s)
	return emb, s, err
}

// New constructs the backend embedder for s wrapped in Resilient.
func New(ctx context.Context, s Settings) (rag.Embedder, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	var base rag.Embedder
	switch s.Backend {
	case "ollama":
		base = NewOllamaEmbedder(&OllamaConfig{Host: s.Endpoint, Model: s.Model})
	case "openai":
		base = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    s.Endpoint,
			APIKey:     s.APIKey,
			Model:      s.Model,
			Dimensions: s.Dimensions,
		})
	case "azure":
		base = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    s.Endpoint,
			APIKey:     s.APIKey,
			Model:      s.Model,
			Dimensions: s.Dimensions,
			Azure:      true,
			APIVersion: s.APIVersion,
		})
	case "gemini":
		g, err := NewGeminiEmbedder(ctx, &GeminiConfig{
			APIKey:     s.APIKey,
			Model:      s.Model,
			Dimensions: s.Dimensions,
			BaseURL:    s.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		base = g
	}

	return NewResilient(base, ResilientConfig{
		RatePerSecond: s.RatePerSecond,
		MaxRetries:    s.MaxRetries,
	}), nil
}

// resolveBackend applies the EMBEDDING_PROVIDER → MODEL_PROVIDER → ollama cascade.
func resolveBackend() string {
	if b := getEnv("EMBEDDING_PROVIDER"); b != "" {
		return b
	}
	return getEnvOrDefault("MODEL_PROVIDER", defaultEmbeddingBackend)
}

// firstNonEmpty returns the first non-empty value, or "".
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
