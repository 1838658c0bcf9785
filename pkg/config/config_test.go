package config

import (
	"testing"
	"time"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LEADVOICE_DATABASE_URL", "postgres://localhost/leadvoice")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Addr != ":8000" {
		t.Fatalf("Addr = %q, want :8000", cfg.Addr)
	}
	if cfg.ContextUpdateInterval != time.Second {
		t.Fatalf("ContextUpdateInterval = %v, want 1s", cfg.ContextUpdateInterval)
	}
	if cfg.ChatModel == "" || cfg.STTModel == "" || cfg.TTSModel == "" {
		t.Fatalf("model defaults missing: %+v", cfg)
	}
}

func TestLoadFromEnvRequiresKeyAndDatabase(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("LEADVOICE_DATABASE_URL", "postgres://localhost/leadvoice")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected error when OPENAI_API_KEY is unset")
	}

	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LEADVOICE_DATABASE_URL", "")
	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected error when LEADVOICE_DATABASE_URL is unset")
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LEADVOICE_DATABASE_URL", "postgres://localhost/leadvoice")
	t.Setenv("LEADVOICE_ADDR", ":9000")
	t.Setenv("LEADVOICE_CONTEXT_UPDATE_INTERVAL", "250ms")
	t.Setenv("LEADVOICE_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Addr != ":9000" {
		t.Fatalf("Addr = %q", cfg.Addr)
	}
	if cfg.ContextUpdateInterval != 250*time.Millisecond {
		t.Fatalf("ContextUpdateInterval = %v", cfg.ContextUpdateInterval)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("CORSAllowedOrigins = %v", cfg.CORSAllowedOrigins)
	}
}
