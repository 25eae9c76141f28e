package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/54b3r/ragchat-go/internal/chunker"
)

// Defaults for the runtime settings resolved by SettingsFromEnv.
const (
	DefaultChatTopK            = 3
	DefaultSearchTopK          = 5
	DefaultSearchMaxTopK       = 20
	DefaultSimilarityThreshold = 0.3
	DefaultHistoryMaxExchanges = 10
	DefaultMaxUploadBytes      = 10 << 20
	DefaultHost                = "127.0.0.1"
	DefaultPort                = 8080
)

// Settings is the resolved runtime configuration shared by the serve, chunk
// and search commands. It is read after Load has applied the YAML overlay.
type Settings struct {
	// Chunking holds the fragment size and overlap.
	Chunking chunker.Config
	// ChatTopK is the number of passages retrieved for each chat turn.
	ChatTopK int
	// SearchTopK is the default result count for document search.
	SearchTopK int
	// SearchMaxTopK caps a caller-supplied search result count.
	SearchMaxTopK int
	// SimilarityThreshold is the minimum score a retrieved passage needs.
	SimilarityThreshold float64
	// HistoryMaxExchanges is the number of prior messages sent to the model.
	HistoryMaxExchanges int
	// HistoryDB is the SQLite path for conversation history. Empty selects
	// the default path; "disabled" selects a private in-memory database.
	HistoryDB string
	// Host and Port are the HTTP listen address.
	Host string
	Port int
	// APIKey is the bearer token protecting /api routes. Empty disables auth.
	APIKey string
	// MaxUploadBytes caps a single uploaded document.
	MaxUploadBytes int64
}

// SettingsFromEnv resolves Settings from environment variables, applying
// defaults for anything unset. Unparseable numbers fall back to defaults.
func SettingsFromEnv() Settings {
	def := chunker.DefaultConfig()
	return Settings{
		Chunking: chunker.Config{
			TargetSize: envInt("CHUNK_SIZE", def.TargetSize),
			Overlap:    envInt("CHUNK_OVERLAP", def.Overlap),
		},
		ChatTopK:            envInt("RAG_TOP_K", DefaultChatTopK),
		SearchTopK:          envInt("SEARCH_TOP_K", DefaultSearchTopK),
		SearchMaxTopK:       envInt("SEARCH_MAX_TOP_K", DefaultSearchMaxTopK),
		SimilarityThreshold: envFloat("RAG_SIMILARITY_THRESHOLD", DefaultSimilarityThreshold),
		HistoryMaxExchanges: envInt("HISTORY_MAX_EXCHANGES", DefaultHistoryMaxExchanges),
		HistoryDB:           os.Getenv("RAGCHAT_HISTORY_DB"),
		Host:                envString("RAGCHAT_HOST", DefaultHost),
		Port:                envInt("RAGCHAT_PORT", DefaultPort),
		APIKey:              os.Getenv("RAGCHAT_API_KEY"),
		MaxUploadBytes:      int64(envInt("MAX_UPLOAD_BYTES", DefaultMaxUploadBytes)),
	}
}

// Validate reports settings that cannot produce a working service.
func (s Settings) Validate() error {
	if err := s.Chunking.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if s.ChatTopK <= 0 || s.SearchTopK <= 0 {
		return fmt.Errorf("config: RAG_TOP_K and SEARCH_TOP_K must be positive")
	}
	if s.SearchMaxTopK < s.SearchTopK {
		return fmt.Errorf("config: SEARCH_MAX_TOP_K (%d) must be at least SEARCH_TOP_K (%d)", s.SearchMaxTopK, s.SearchTopK)
	}
	if s.SimilarityThreshold < 0 || s.SimilarityThreshold > 1 {
		return fmt.Errorf("config: RAG_SIMILARITY_THRESHOLD must be within [0, 1], got %v", s.SimilarityThreshold)
	}
	if s.MaxUploadBytes <= 0 {
		return fmt.Errorf("config: MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

// envString returns the named variable or fallback when unset.
func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt returns the named variable as an int or fallback.
func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// envFloat returns the named variable as a float64 or fallback.
func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
