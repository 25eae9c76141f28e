// Package audit records which command ran and with what effective
// environment. Credentials appear only as "set" or "unset".
package audit

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// trackedEnv is the ordered list of variables included in every entry.
var trackedEnv = []string{
	"MODEL_PROVIDER",
	"OLLAMA_HOST",
	"OLLAMA_MODEL",
	"OPENAI_API_KEY",
	"OPENAI_MODEL",
	"AZURE_OPENAI_API_KEY",
	"AZURE_OPENAI_ENDPOINT",
	"AZURE_OPENAI_DEPLOYMENT",
	"GOOGLE_API_KEY",
	"GEMINI_API_KEY",
	"GEMINI_MODEL",
	"ARK_API_KEY",
	"ARK_MODEL",
	"EMBEDDING_PROVIDER",
	"EMBEDDING_MODEL",
	"EMBEDDING_API_KEY",
	"EMBEDDING_RATE_LIMIT",
	"CHUNK_SIZE",
	"CHUNK_OVERLAP",
	"RAG_TOP_K",
	"RAG_SIMILARITY_THRESHOLD",
	"RAGCHAT_API_KEY",
	"RAGCHAT_HISTORY_DB",
	"LOG_LEVEL",
	"LOG_FORMAT",
	"LANGFUSE_PUBLIC_KEY",
	"LANGFUSE_SECRET_KEY",
}

// secretSuffixes mark a variable as a credential.
var secretSuffixes = []string{"_API_KEY", "_SECRET_KEY", "_PUBLIC_KEY", "_TOKEN"}

// IsSecret reports whether key names a credential.
func IsSecret(key string) bool {
	for _, s := range secretSuffixes {
		if strings.HasSuffix(key, s) {
			return true
		}
	}
	return false
}

// LogCommandStart writes one info entry for command, with the config file it
// loaded and the tracked environment grouped under "env".
func LogCommandStart(ctx context.Context, log *slog.Logger, command, configPath string) {
	env := make([]any, 0, len(trackedEnv))
	for _, key := range trackedEnv {
		env = append(env, slog.String(key, SanitiseKey(key, os.Getenv(key))))
	}

	log.LogAttrs(ctx, slog.LevelInfo, "audit: command start",
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
		slog.Group("env", env...),
	)
}

// SanitiseKey returns the loggable form of value: "set" or "unset" for
// credentials, the value itself (or "unset") otherwise.
func SanitiseKey(key, value string) string {
	switch {
	case value == "":
		return "unset"
	case IsSecret(key):
		return "set"
	default:
		return value
	}
}

// sanitiseConfigPath shortens paths under the home directory to ~ and
// reports "none" when no file was loaded.
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if rel, err := filepath.Rel(home, p); err == nil && !strings.HasPrefix(rel, "..") && filepath.IsAbs(p) {
		return filepath.Join("~", rel)
	}
	return p
}
