package provider

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	einoark "github.com/cloudwego/eino-ext/components/model/ark"
	einogemini "github.com/cloudwego/eino-ext/components/model/gemini"
	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

// setting is one required value of a backend and the env var that sets it.
type setting struct {
	env   string
	value func(*Config) string
}

// backend describes how one provider is validated, named and built.
type backend struct {
	required []setting
	model    func(*Config) string
	build    func(context.Context, *Config) (model.BaseChatModel, error)
}

var backends = map[Backend]backend{
	BackendOllama: {
		required: []setting{
			{"OLLAMA_HOST", func(c *Config) string { return c.Ollama.Host }},
			{"OLLAMA_MODEL", func(c *Config) string { return c.Ollama.Model }},
		},
		model: func(c *Config) string { return c.Ollama.Model },
		build: newOllama,
	},
	BackendOpenAI: {
		required: []setting{
			{"OPENAI_API_KEY", func(c *Config) string { return c.OpenAI.APIKey }},
			{"OPENAI_MODEL", func(c *Config) string { return c.OpenAI.Model }},
		},
		model: func(c *Config) string { return c.OpenAI.Model },
		build: newOpenAI,
	},
	BackendAzure: {
		required: []setting{
			{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.AzureOpenAI.APIKey }},
			{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.AzureOpenAI.Endpoint }},
			{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.AzureOpenAI.Deployment }},
		},
		model: func(c *Config) string { return c.AzureOpenAI.Deployment },
		build: newAzure,
	},
	BackendArk: {
		required: []setting{
			{"ARK_API_KEY", func(c *Config) string { return c.Ark.APIKey }},
			{"ARK_MODEL", func(c *Config) string { return c.Ark.Model }},
		},
		model: func(c *Config) string { return c.Ark.Model },
		build: newArk,
	},
	BackendGemini: {
		required: []setting{
			{"GOOGLE_API_KEY", func(c *Config) string { return c.Gemini.APIKey }},
			{"GEMINI_MODEL", func(c *Config) string { return c.Gemini.Model }},
		},
		model: func(c *Config) string { return c.Gemini.Model },
		build: newGemini,
	},
}

// backendNames lists the registered backends in sorted order.
func backendNames() []string {
	names := make([]string, 0, len(backends))
	for _, b := range slices.Sorted(maps.Keys(backends)) {
		names = append(names, string(b))
	}
	return names
}

// azureReasoningPrefixes identify Azure deployments of reasoning models,
// which reject the temperature and max_tokens parameters.
var azureReasoningPrefixes = []string{"o1", "o3", "o4", "codex"}

func isAzureReasoningModel(deployment string) bool {
	lower := strings.ToLower(deployment)
	return slices.ContainsFunc(azureReasoningPrefixes, func(p string) bool {
		return strings.HasPrefix(lower, p)
	})
}

// tuning returns pointers to copies of the shared generation parameters, in
// the form the eino-ext configs take them.
func (c *Config) tuning() (*int, *float32) {
	maxTokens, temp := c.Tuning.MaxTokens, c.Tuning.Temperature
	return &maxTokens, &temp
}

func newOllama(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	m, err := einoollama.NewChatModel(ctx, &einoollama.ChatModelConfig{
		BaseURL: cfg.Ollama.Host,
		Model:   cfg.Ollama.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: ollama: %w", err)
	}
	return m, nil
}

func newOpenAI(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	maxTokens, temp := cfg.tuning()
	m, err := einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{
		Model:       cfg.OpenAI.Model,
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		MaxTokens:   maxTokens,
		Temperature: temp,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: openai: %w", err)
	}
	return m, nil
}

func newAzure(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	az := cfg.AzureOpenAI
	mc := &einoopenai.ChatModelConfig{
		Model:      az.Deployment,
		APIKey:     az.APIKey,
		BaseURL:    az.Endpoint,
		ByAzure:    true,
		APIVersion: az.APIVersion,
		// The default mapper strips dots and colons, breaking names like "gpt-4.1".
		AzureModelMapperFunc: func(model string) string { return model },
	}
	if !isAzureReasoningModel(az.Deployment) {
		mc.MaxTokens, mc.Temperature = cfg.tuning()
	}
	m, err := einoopenai.NewChatModel(ctx, mc)
	if err != nil {
		return nil, fmt.Errorf("provider: azure: %w", err)
	}
	return m, nil
}

func newArk(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	maxTokens, temp := cfg.tuning()
	m, err := einoark.NewChatModel(ctx, &einoark.ChatModelConfig{
		Model:       cfg.Ark.Model,
		APIKey:      cfg.Ark.APIKey,
		BaseURL:     cfg.Ark.BaseURL,
		MaxTokens:   maxTokens,
		Temperature: temp,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: ark: %w", err)
	}
	return m, nil
}

func newGemini(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.Gemini.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: gemini client: %w", err)
	}
	m, err := einogemini.NewChatModel(ctx, &einogemini.Config{
		Client: client,
		Model:  cfg.Gemini.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: gemini: %w", err)
	}
	return m, nil
}
