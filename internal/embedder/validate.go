package embedder

import (
	"log/slog"
	"os"
	"strings"
)

// chatFamilies are name fragments of chat or completion model families.
// A model whose name contains one of them, and not "embed", is probably a
// misconfigured EMBEDDING_MODEL.
var chatFamilies = []string{
	"gpt-4", "gpt-3.5", "gpt-35", "o1", "o3",
	"llama2", "llama3", "llama-2", "llama-3",
	"mistral", "mixtral", "gemma", "gemini-", "phi-", "phi3",
	"claude", "command-r", "deepseek", "qwen",
	"solar", "vicuna", "falcon", "yi-",
}

// chatFamily returns the chat family model appears to belong to.
func chatFamily(model string) (string, bool) {
	lower := strings.ToLower(model)
	if strings.Contains(lower, "embed") {
		return "", false
	}
	for _, f := range chatFamilies {
		if strings.Contains(lower, f) {
			return f, true
		}
	}
	return "", false
}

func looksLikeChatModel(model string) bool {
	_, ok := chatFamily(model)
	return ok
}

// ValidateForRAG checks the embedding settings before the embedder is built.
// It fails on settings that cannot work and only warns about likely mistakes:
// a backend inherited from MODEL_PROVIDER, or a chat model configured as
// EMBEDDING_MODEL.
func ValidateForRAG(log *slog.Logger, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	if os.Getenv("EMBEDDING_PROVIDER") == "" && s.Backend != defaultEmbeddingBackend {
		log.Warn("embedder: EMBEDDING_PROVIDER is not set, using the MODEL_PROVIDER backend",
			slog.String("backend", s.Backend),
		)
	}
	if family, ok := chatFamily(s.Model); ok {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model",
			slog.String("model", s.Model),
			slog.String("family", family),
			slog.String("hint", "use an embedding model such as nomic-embed-text or text-embedding-3-small"),
		)
	}
	return nil
}
