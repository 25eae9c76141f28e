package tracing

import "testing"

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LANGFUSE_HOST", "")
	t.Setenv("LANGFUSE_PUBLIC_KEY", "pk")
	t.Setenv("LANGFUSE_SECRET_KEY", "")

	cfg := ConfigFromEnv()
	if cfg.Host != defaultHost {
		t.Errorf("Host = %q, want %q", cfg.Host, defaultHost)
	}
	if cfg.Enabled() {
		t.Error("Enabled() = true with no secret key")
	}
}

func TestSetupDisabled(t *testing.T) {
	t.Parallel()
	flush, enabled := Setup(Config{Host: defaultHost})
	if enabled {
		t.Fatal("Setup reported enabled without credentials")
	}
	if flush == nil {
		t.Fatal("flush must never be nil")
	}
	flush()
}
