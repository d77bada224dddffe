package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("YOUTUBE_API_KEY", "yt")
	t.Setenv("MODEL_PROVIDER", "openai")
	t.Setenv("OPENAI_SECRET_KEY", "sk")
}

func TestFromEnvDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	if cfg.GenerationTimeout != 90*time.Second {
		t.Errorf("expected default generation timeout, got %v", cfg.GenerationTimeout)
	}
	if cfg.SessionIdleTTL != 0 {
		t.Errorf("sessions should never expire by default, got %v", cfg.SessionIdleTTL)
	}
	if cfg.RepairAttempts != 0 {
		t.Errorf("expected no repair attempts by default, got %d", cfg.RepairAttempts)
	}
	if cfg.Postgres.Enabled() {
		t.Error("plan archive should be disabled without POSTGRES_DB_HOST")
	}
}

func TestFromEnvMissingCredentials(t *testing.T) {
	tests := []struct {
		name  string
		unset string
		want  string
	}{
		{"telegram", "TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN"},
		{"youtube", "YOUTUBE_API_KEY", "YOUTUBE_API_KEY"},
		{"openai", "OPENAI_SECRET_KEY", "OPENAI_SECRET_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.unset, "")

			_, err := FromEnv()
			if err == nil {
				t.Fatal("expected startup failure")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error to mention %s, got %v", tt.want, err)
			}
		})
	}
}

func TestFromEnvProviderKeyFollowsProvider(t *testing.T) {
	setRequired(t)
	t.Setenv("OPENAI_SECRET_KEY", "")
	t.Setenv("MODEL_PROVIDER", "Gemini")
	t.Setenv("GEMINI_SECRET_KEY", "g")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	if cfg.ModelProvider != ProviderGemini {
		t.Errorf("expected gemini provider, got %q", cfg.ModelProvider)
	}

	t.Setenv("MODEL_PROVIDER", "claude")
	if _, err := FromEnv(); err == nil {
		t.Error("expected unknown provider to fail")
	}
}

func TestFromEnvParsesOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SESSION_IDLE_TTL", "2h")
	t.Setenv("LOOKUP_CONCURRENCY", "8")
	t.Setenv("TELEGRAM_DEBUG", "yes")
	t.Setenv("LOOKUP_TIMEOUT", "not-a-duration")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	if cfg.SessionIdleTTL != 2*time.Hour {
		t.Errorf("expected 2h idle ttl, got %v", cfg.SessionIdleTTL)
	}
	if cfg.LookupConcurrency != 8 {
		t.Errorf("expected concurrency 8, got %d", cfg.LookupConcurrency)
	}
	if !cfg.TelegramDebug {
		t.Error("expected debug enabled")
	}
	if cfg.LookupTimeout != 10*time.Second {
		t.Errorf("invalid duration should fall back, got %v", cfg.LookupTimeout)
	}
}
