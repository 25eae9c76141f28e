package provider

import (
	"context"
	"os"
	"strconv"

	"github.com/cloudwego/eino/components/model"
)

// Defaults applied when the corresponding variable is unset.
const (
	defaultMaxTokens   = 1000
	defaultTemperature = 0.7

	defaultOllamaHost   = "http://localhost:11434"
	defaultOllamaModel  = "llama3"
	defaultOpenAIModel  = "gpt-4o"
	defaultAzureVersion = "2024-02-01"
	defaultGeminiModel  = "gemini-2.5-flash"
)

// ConfigFromEnv resolves a Config from the process environment.
// MODEL_PROVIDER picks the backend (default ollama); each backend reads its
// own native variables:
//
//	ollama  OLLAMA_HOST, OLLAMA_MODEL
//	openai  OPENAI_API_KEY, OPENAI_MODEL, OPENAI_BASE_URL
//	azure   AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT,
//	        AZURE_OPENAI_DEPLOYMENT, AZURE_OPENAI_API_VERSION
//	ark     ARK_API_KEY, ARK_MODEL, ARK_BASE_URL
//	gemini  GOOGLE_API_KEY (or GEMINI_API_KEY), GEMINI_MODEL
//
// MODEL_MAX_TOKENS and MODEL_TEMPERATURE apply to every backend.
func ConfigFromEnv() *Config {
	return &Config{
		Backend: Backend(envOr("MODEL_PROVIDER", string(BackendOllama))),
		Ollama: ProviderOllama{
			Host:  envOr("OLLAMA_HOST", defaultOllamaHost),
			Model: envOr("OLLAMA_MODEL", defaultOllamaModel),
		},
		OpenAI: ProviderOpenAI{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   envOr("OPENAI_MODEL", defaultOpenAIModel),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
		},
		AzureOpenAI: ProviderAzureOpenAI{
			APIKey:     os.Getenv("AZURE_OPENAI_API_KEY"),
			Endpoint:   os.Getenv("AZURE_OPENAI_ENDPOINT"),
			Deployment: os.Getenv("AZURE_OPENAI_DEPLOYMENT"),
			APIVersion: envOr("AZURE_OPENAI_API_VERSION", defaultAzureVersion),
		},
		Ark: ProviderArk{
			APIKey:  os.Getenv("ARK_API_KEY"),
			Model:   os.Getenv("ARK_MODEL"),
			BaseURL: os.Getenv("ARK_BASE_URL"),
		},
		Gemini: ProviderGemini{
			APIKey: envOr("GOOGLE_API_KEY", os.Getenv("GEMINI_API_KEY")),
			Model:  envOr("GEMINI_MODEL", defaultGeminiModel),
		},
		Tuning: SharedTuning{
			MaxTokens:   envParsed("MODEL_MAX_TOKENS", defaultMaxTokens, strconv.Atoi),
			Temperature: envParsed("MODEL_TEMPERATURE", float32(defaultTemperature), parseFloat32),
		},
	}
}

// NewFromEnv builds the chat model described by ConfigFromEnv and returns
// the config alongside it for logging.
func NewFromEnv(ctx context.Context) (model.BaseChatModel, *Config, error) {
	cfg := ConfigFromEnv()
	m, err := New(ctx, cfg)
	return m, cfg, err
}

// New validates cfg and builds the chat model of its backend, so
// misconfiguration fails at startup instead of on the first request.
func New(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return backends[cfg.Backend].build(ctx, cfg)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envParsed parses key with parse, returning fallback when the variable is
// unset or malformed.
func envParsed[T any](key string, fallback T, parse func(string) (T, error)) T {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if parsed, err := parse(v); err == nil {
		return parsed
	}
	return fallback
}

func parseFloat32(s string) (float32, error) {
	f, err := strconv.ParseFloat(s, 32)
	return float32(f), err
}
