// Package config loads ragchat configuration from a YAML file and overlays
// environment variables. Environment variables always take precedence over
// YAML values, so operators can override any setting without editing files.
//
// Config file search order (first found wins):
//
//  1. Path passed via --config flag
//  2. RAGCHAT_CONFIG environment variable
//  3. ~/.ragchat/config.yaml
//  4. ./ragchat.yaml (current directory)
//
// If no config file is found, the application falls back to env vars only.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
type Config struct {
	// Model holds chat model provider settings.
	Model ModelConfig `yaml:"model"`
	// Embedding holds embedding provider overrides.
	Embedding EmbeddingConfig `yaml:"embedding"`
	// RAG holds chunking and retrieval tuning.
	RAG RAGConfig `yaml:"rag"`
	// Server holds HTTP server settings.
	Server ServerConfig `yaml:"server"`
	// Logging holds log level and format.
	Logging LoggingConfig `yaml:"logging"`
	// History holds conversation history settings.
	History HistoryConfig `yaml:"history"`
	// Tracing holds Langfuse tracing settings.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds chat model provider configuration.
type ModelConfig struct {
	// Provider selects the backend: ollama, openai, azure, ark, gemini.
	Provider string `yaml:"provider"`
	// MaxTokens is the maximum number of tokens in the model response.
	MaxTokens int `yaml:"max_tokens"`
	// Temperature controls response randomness (0.0 to 1.0).
	Temperature float32 `yaml:"temperature"`

	Ollama OllamaConfig `yaml:"ollama"`
	OpenAI OpenAIConfig `yaml:"openai"`
	Azure  AzureConfig  `yaml:"azure"`
	Ark    ArkConfig    `yaml:"ark"`
	Gemini GeminiConfig `yaml:"gemini"`
}

// OllamaConfig holds Ollama-specific settings.
type OllamaConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI-specific settings.
type OpenAIConfig struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// AzureConfig holds Azure OpenAI-specific settings.
type AzureConfig struct {
	Endpoint   string `yaml:"endpoint"`
	Deployment string `yaml:"deployment"`
	APIVersion string `yaml:"api_version"`
}

// ArkConfig holds Volcengine Ark-specific settings.
type ArkConfig struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// GeminiConfig holds Google Gemini-specific settings.
type GeminiConfig struct {
	Model string `yaml:"model"`
}

// EmbeddingConfig holds embedding provider overrides.
type EmbeddingConfig struct {
	Provider   string  `yaml:"provider"`
	Model      string  `yaml:"model"`
	Endpoint   string  `yaml:"endpoint"`
	Dimensions int     `yaml:"dimensions"`
	RateLimit  float64 `yaml:"rate_limit"`
	MaxRetries int     `yaml:"max_retries"`
}

// RAGConfig holds chunking and retrieval settings.
type RAGConfig struct {
	ChunkSize           int     `yaml:"chunk_size"`
	ChunkOverlap        int     `yaml:"chunk_overlap"`
	TopK                int     `yaml:"top_k"`
	SearchTopK          int     `yaml:"search_top_k"`
	SearchMaxTopK       int     `yaml:"search_max_top_k"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HistoryConfig holds conversation history settings.
type HistoryConfig struct {
	// DBPath is the SQLite database path. "disabled" uses a private
	// in-memory database that is lost on exit.
	DBPath string `yaml:"db_path"`
	// MaxExchanges is the number of prior messages sent with each turn.
	MaxExchanges int `yaml:"max_exchanges"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	LangfuseHost string `yaml:"langfuse_host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied, and only when the env var is unset.
var envMapping = []struct {
	envKey string
	getter func(c *Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},

	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},

	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"OPENAI_BASE_URL", func(c *Config) string { return c.Model.OpenAI.BaseURL }},

	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},

	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"ARK_BASE_URL", func(c *Config) string { return c.Model.Ark.BaseURL }},

	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},

	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_RATE_LIMIT", func(c *Config) string { return float64Str(c.Embedding.RateLimit) }},
	{"EMBEDDING_MAX_RETRIES", func(c *Config) string { return intStr(c.Embedding.MaxRetries) }},

	{"CHUNK_SIZE", func(c *Config) string { return intStr(c.RAG.ChunkSize) }},
	{"CHUNK_OVERLAP", func(c *Config) string { return intStr(c.RAG.ChunkOverlap) }},
	{"RAG_TOP_K", func(c *Config) string { return intStr(c.RAG.TopK) }},
	{"SEARCH_TOP_K", func(c *Config) string { return intStr(c.RAG.SearchTopK) }},
	{"SEARCH_MAX_TOP_K", func(c *Config) string { return intStr(c.RAG.SearchMaxTopK) }},
	{"RAG_SIMILARITY_THRESHOLD", func(c *Config) string { return float64Str(c.RAG.SimilarityThreshold) }},

	{"RAGCHAT_HOST", func(c *Config) string { return c.Server.Host }},
	{"RAGCHAT_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"MAX_UPLOAD_BYTES", func(c *Config) string { return int64Str(c.Server.MaxUploadBytes) }},

	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},

	{"RAGCHAT_HISTORY_DB", func(c *Config) string { return c.History.DBPath }},
	{"HISTORY_MAX_EXCHANGES", func(c *Config) string { return intStr(c.History.MaxExchanges) }},

	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.LangfuseHost }},
}

// Load reads the YAML config file (if found) and sets environment variables
// for any fields that are not already set in the environment. This means
// env vars always win over YAML values.
//
// explicitPath is the --config flag value; pass "" to use the search order.
// Returns the path of the loaded config file, or "" if none was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debug("config: file not found", slog.String("path", path))
			return "", nil
		}
		return "", fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		if os.Getenv(m.envKey) != "" {
			continue
		}
		val := m.getter(&cfg)
		if val == "" {
			continue
		}
		if err := os.Setenv(m.envKey, val); err != nil {
			return "", fmt.Errorf("config: set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded",
		slog.String("path", path),
		slog.Int("fields_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists,
// following the documented search order.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}

	if p := os.Getenv("RAGCHAT_CONFIG"); p != "" {
		return p
	}

	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".ragchat", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("ragchat.yaml"); err == nil {
		return "ragchat.yaml"
	}

	return ""
}

// intStr converts a non-zero int to a string, or returns "" for zero.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// int64Str converts a non-zero int64 to a string, or returns "" for zero.
func int64Str(v int64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatInt(v, 10)
}

// float32Str converts a non-zero float32 to a string, or returns "" for zero.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(float64(v), 'f', -1, 32)
}

// float64Str converts a non-zero float64 to a string, or returns "" for zero.
func float64Str(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
