// Package tracing wires LLM call tracing into the eino callback system.
// When Langfuse credentials are configured, every chat model call made by the
// chat service is reported as a trace.
package tracing

import (
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// defaultHost is the Langfuse endpoint used when LANGFUSE_HOST is unset.
const defaultHost = "http://localhost:3000"

// Config holds the Langfuse connection settings.
type Config struct {
	// Host is the Langfuse base URL (LANGFUSE_HOST).
	Host string
	// PublicKey is the project public key (LANGFUSE_PUBLIC_KEY).
	PublicKey string
	// SecretKey is the project secret key (LANGFUSE_SECRET_KEY).
	SecretKey string
}

// ConfigFromEnv reads Langfuse settings from the environment.
func ConfigFromEnv() Config {
	c := Config{
		Host:      os.Getenv("LANGFUSE_HOST"),
		PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
	}
	if c.Host == "" {
		c.Host = defaultHost
	}
	return c
}

// Enabled reports whether both keys are present.
func (c Config) Enabled() bool {
	return c.PublicKey != "" && c.SecretKey != ""
}

// Setup registers a global Langfuse callback handler when cfg is enabled.
// The returned flush function must be called before process exit so queued
// traces are sent; it is a no-op when tracing is disabled.
func Setup(cfg Config) (flush func(), enabled bool) {
	if !cfg.Enabled() {
		return func() {}, false
	}

	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      cfg.Host,
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
	})
	callbacks.AppendGlobalHandlers(handler)

	return flusher, true
}
