package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %s", cfg.LogLevel)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("expected default cache TTL 5m, got %s", cfg.CacheTTL)
	}
	if cfg.NotifyWorkers != 2 {
		t.Errorf("expected 2 notify workers, got %d", cfg.NotifyWorkers)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("USE_MEMORY_QUEUE", "true")
	t.Setenv("APPOINTMENT_CACHE_TTL", "90s")
	t.Setenv("NOTIFY_WORKERS", "5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("EMAIL_PROVIDER", " SendGrid ")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Port)
	}
	if !cfg.UseMemoryQueue {
		t.Error("expected memory queue enabled")
	}
	if cfg.CacheTTL != 90*time.Second {
		t.Errorf("expected cache TTL 90s, got %s", cfg.CacheTTL)
	}
	if cfg.NotifyWorkers != 5 {
		t.Errorf("expected 5 notify workers, got %d", cfg.NotifyWorkers)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Errorf("unexpected origins: %v", cfg.CORSAllowedOrigins)
	}
	if cfg.EmailProvider != "sendgrid" {
		t.Errorf("expected normalized provider sendgrid, got %q", cfg.EmailProvider)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("NOTIFY_WORKERS", "many")
	t.Setenv("USE_MEMORY_QUEUE", "yep")
	t.Setenv("APPOINTMENT_CACHE_TTL", "soon")

	cfg := Load()

	if cfg.NotifyWorkers != 2 {
		t.Errorf("expected fallback worker count, got %d", cfg.NotifyWorkers)
	}
	if cfg.UseMemoryQueue {
		t.Error("expected fallback false for unparseable bool")
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("expected fallback TTL, got %s", cfg.CacheTTL)
	}
}
