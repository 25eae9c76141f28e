// Package provider selects and constructs the LLM chat backend used to
// answer questions. Supported backends: Ollama, OpenAI, Azure OpenAI,
// Volcengine Ark, Google Gemini.
package provider

import (
	"fmt"
	"strings"
)

// Backend names an inference provider; it is the value of MODEL_PROVIDER.
type Backend string

const (
	BackendOllama Backend = "ollama"
	BackendOpenAI Backend = "openai"
	BackendAzure  Backend = "azure"
	BackendArk    Backend = "ark"
	BackendGemini Backend = "gemini"
)

// ProviderOllama holds the Ollama connection settings.
type ProviderOllama struct {
	Host  string // OLLAMA_HOST
	Model string // OLLAMA_MODEL
}

// ProviderOpenAI holds the OpenAI API settings. BaseURL points the client at
// an OpenAI-compatible server.
type ProviderOpenAI struct {
	APIKey  string // OPENAI_API_KEY
	Model   string // OPENAI_MODEL
	BaseURL string // OPENAI_BASE_URL
}

// ProviderAzureOpenAI holds the Azure OpenAI Service settings.
type ProviderAzureOpenAI struct {
	APIKey     string // AZURE_OPENAI_API_KEY
	Endpoint   string // AZURE_OPENAI_ENDPOINT
	Deployment string // AZURE_OPENAI_DEPLOYMENT
	APIVersion string // AZURE_OPENAI_API_VERSION
}

// ProviderArk holds the Volcengine Ark settings.
type ProviderArk struct {
	APIKey  string // ARK_API_KEY
	Model   string // ARK_MODEL, an endpoint or model ID
	BaseURL string // ARK_BASE_URL
}

// ProviderGemini holds the Google AI Studio settings.
type ProviderGemini struct {
	APIKey string // GOOGLE_API_KEY, falling back to GEMINI_API_KEY
	Model  string // GEMINI_MODEL
}

// SharedTuning holds generation parameters applied to every backend that
// accepts them.
type SharedTuning struct {
	MaxTokens   int
	Temperature float32 // 0.0 to 1.0
}

// Config is the resolved provider configuration. Only the block matching
// Backend is consulted.
type Config struct {
	Backend Backend

	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Ark         ProviderArk
	Gemini      ProviderGemini

	Tuning SharedTuning
}

// Validate reports every missing setting of the selected backend, naming
// the environment variables that supply them.
func (c *Config) Validate() error {
	b, ok := backends[c.Backend]
	if !ok {
		return fmt.Errorf("provider: unknown backend %q, valid values: %s", c.Backend, strings.Join(backendNames(), ", "))
	}
	var missing []string
	for _, s := range b.required {
		if s.value(c) == "" {
			missing = append(missing, s.env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("provider: %s backend requires %s", c.Backend, strings.Join(missing, ", "))
	}
	return nil
}

// ModelName returns the model or deployment name of the selected backend,
// or "" for an unknown backend.
func (c *Config) ModelName() string {
	if b, ok := backends[c.Backend]; ok {
		return b.model(c)
	}
	return ""
}
