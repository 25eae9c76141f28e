package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/54b3r/ragchat-go/internal/chunker"
)

func TestLoad_NoFile(t *testing.T) {
	t.Parallel()

	log := slog.Default()
	path, err := Load("/nonexistent/path/config.yaml", log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: azure
  max_tokens: 8192
  temperature: 0.3
  azure:
    endpoint: https://my-resource.openai.azure.com
    deployment: gpt-4o
    api_version: "2025-04-01-preview"
embedding:
  provider: ollama
  model: nomic-embed-text
  rate_limit: 2.5
rag:
  chunk_size: 800
  chunk_overlap: 100
  top_k: 4
  similarity_threshold: 0.25
server:
  port: 9090
  max_upload_bytes: 5242880
history:
  db_path: /tmp/ragchat-test.db
logging:
  level: debug
  format: text
`)

	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Clear env vars that the YAML should set.
	envKeys := []string{
		"MODEL_PROVIDER", "MODEL_MAX_TOKENS", "MODEL_TEMPERATURE",
		"AZURE_OPENAI_ENDPOINT", "AZURE_OPENAI_DEPLOYMENT", "AZURE_OPENAI_API_VERSION",
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_RATE_LIMIT",
		"CHUNK_SIZE", "CHUNK_OVERLAP", "RAG_TOP_K", "RAG_SIMILARITY_THRESHOLD",
		"RAGCHAT_PORT", "MAX_UPLOAD_BYTES", "RAGCHAT_HISTORY_DB",
		"LOG_LEVEL", "LOG_FORMAT",
	}
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	log := slog.Default()
	loaded, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	checks := map[string]string{
		"MODEL_PROVIDER":           "azure",
		"MODEL_MAX_TOKENS":         "8192",
		"MODEL_TEMPERATURE":        "0.3",
		"AZURE_OPENAI_ENDPOINT":    "https://my-resource.openai.azure.com",
		"AZURE_OPENAI_DEPLOYMENT":  "gpt-4o",
		"AZURE_OPENAI_API_VERSION": "2025-04-01-preview",
		"EMBEDDING_PROVIDER":       "ollama",
		"EMBEDDING_MODEL":          "nomic-embed-text",
		"EMBEDDING_RATE_LIMIT":     "2.5",
		"CHUNK_SIZE":               "800",
		"CHUNK_OVERLAP":            "100",
		"RAG_TOP_K":                "4",
		"RAG_SIMILARITY_THRESHOLD": "0.25",
		"RAGCHAT_PORT":             "9090",
		"MAX_UPLOAD_BYTES":         "5242880",
		"RAGCHAT_HISTORY_DB":       "/tmp/ragchat-test.db",
		"LOG_LEVEL":                "debug",
		"LOG_FORMAT":               "text",
	}
	for k, want := range checks {
		got := os.Getenv(k)
		if got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}

	s := SettingsFromEnv()
	if s.Chunking.TargetSize != 800 || s.Chunking.Overlap != 100 {
		t.Errorf("chunking: got %+v, want 800/100", s.Chunking)
	}
	if s.ChatTopK != 4 {
		t.Errorf("ChatTopK: got %d, want 4", s.ChatTopK)
	}
	if s.Port != 9090 {
		t.Errorf("Port: got %d, want 9090", s.Port)
	}
	if s.MaxUploadBytes != 5242880 {
		t.Errorf("MaxUploadBytes: got %d, want 5242880", s.MaxUploadBytes)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: ollama
rag:
  chunk_size: 500
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Set env vars BEFORE loading; they must not be overwritten.
	t.Setenv("MODEL_PROVIDER", "azure")
	t.Setenv("CHUNK_SIZE", "1200")

	log := slog.Default()
	_, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := os.Getenv("MODEL_PROVIDER"); got != "azure" {
		t.Errorf("MODEL_PROVIDER: expected env override %q, got %q", "azure", got)
	}
	if got := os.Getenv("CHUNK_SIZE"); got != "1200" {
		t.Errorf("CHUNK_SIZE: expected env override %q, got %q", "1200", got)
	}
}

func TestLoad_ConfigEnvVar(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(cfgPath, []byte("logging:\n  level: warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RAGCHAT_CONFIG", cfgPath)
	t.Setenv("LOG_LEVEL", "")
	os.Unsetenv("LOG_LEVEL")

	loaded, err := Load("", slog.Default())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}
	if got := os.Getenv("LOG_LEVEL"); got != "warn" {
		t.Errorf("LOG_LEVEL: got %q, want %q", got, "warn")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	log := slog.Default()
	_, err := Load(cfgPath, log)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestFloat32Str(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   float32
		want string
	}{
		{0.0, ""},
		{0.2, "0.2"},
		{0.3, "0.3"},
		{1.0, "1"},
	}
	for _, tt := range tests {
		if got := float32Str(tt.in); got != tt.want {
			t.Errorf("float32Str(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSettingsFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{
		"CHUNK_SIZE", "CHUNK_OVERLAP", "RAG_TOP_K", "SEARCH_TOP_K", "SEARCH_MAX_TOP_K",
		"RAG_SIMILARITY_THRESHOLD", "HISTORY_MAX_EXCHANGES", "RAGCHAT_HISTORY_DB",
		"RAGCHAT_HOST", "RAGCHAT_PORT", "RAGCHAT_API_KEY", "MAX_UPLOAD_BYTES",
	} {
		t.Setenv(k, "")
	}

	s := SettingsFromEnv()
	if s.Chunking.TargetSize != 1000 || s.Chunking.Overlap != 200 {
		t.Errorf("chunking: got %+v, want 1000/200", s.Chunking)
	}
	if s.ChatTopK != DefaultChatTopK || s.SearchTopK != DefaultSearchTopK || s.SearchMaxTopK != DefaultSearchMaxTopK {
		t.Errorf("top k: got %d/%d/%d", s.ChatTopK, s.SearchTopK, s.SearchMaxTopK)
	}
	if s.SimilarityThreshold != DefaultSimilarityThreshold {
		t.Errorf("threshold: got %v", s.SimilarityThreshold)
	}
	if s.Host != DefaultHost || s.Port != DefaultPort {
		t.Errorf("address: got %s:%d", s.Host, s.Port)
	}
	if s.MaxUploadBytes != DefaultMaxUploadBytes {
		t.Errorf("MaxUploadBytes: got %d", s.MaxUploadBytes)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestSettingsFromEnv_BadNumberFallsBack(t *testing.T) {
	t.Setenv("RAG_TOP_K", "three")
	t.Setenv("RAG_SIMILARITY_THRESHOLD", "high")

	s := SettingsFromEnv()
	if s.ChatTopK != DefaultChatTopK {
		t.Errorf("ChatTopK: got %d, want %d", s.ChatTopK, DefaultChatTopK)
	}
	if s.SimilarityThreshold != DefaultSimilarityThreshold {
		t.Errorf("threshold: got %v, want %v", s.SimilarityThreshold, DefaultSimilarityThreshold)
	}
}

func TestSettingsValidate(t *testing.T) {
	t.Parallel()

	valid := func() Settings {
		return Settings{
			Chunking:            chunker.Config{TargetSize: 1000, Overlap: 200},
			ChatTopK:            3,
			SearchTopK:          5,
			SearchMaxTopK:       20,
			SimilarityThreshold: 0.3,
			MaxUploadBytes:      1 << 20,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"valid", func(*Settings) {}, false},
		{"overlap not below size", func(s *Settings) { s.Chunking = chunker.Config{TargetSize: 100, Overlap: 100} }, true},
		{"zero top k", func(s *Settings) { s.ChatTopK = 0 }, true},
		{"max below default", func(s *Settings) { s.SearchMaxTopK = 2 }, true},
		{"threshold above one", func(s *Settings) { s.SimilarityThreshold = 1.5 }, true},
		{"negative threshold", func(s *Settings) { s.SimilarityThreshold = -0.1 }, true},
		{"zero upload cap", func(s *Settings) { s.MaxUploadBytes = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := valid()
			tt.mutate(&s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
