package config

import (
	"testing"
	"time"
)

// setRequiredEnv は必須環境変数を設定するテストヘルパー。
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("API_BASE_URL", "https://api.example.com")
}

func TestLoad_RequiredMissing(t *testing.T) {
	t.Setenv("API_BASE_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when API_BASE_URL is missing, got nil")
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PROVIDER_URL", "")
	t.Setenv("PROVIDER_ANON_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.RequestTimeout != 15*time.Second {
		t.Errorf("RequestTimeout = %v, want %v", cfg.RequestTimeout, 15*time.Second)
	}
	if cfg.RequestRate != 10 {
		t.Errorf("RequestRate = %v, want 10", cfg.RequestRate)
	}
	if cfg.RequestBurst != 20 {
		t.Errorf("RequestBurst = %v, want 20", cfg.RequestBurst)
	}
	if cfg.RefreshMargin != 60*time.Second {
		t.Errorf("RefreshMargin = %v, want %v", cfg.RefreshMargin, 60*time.Second)
	}
	if cfg.ListenPort != "8787" {
		t.Errorf("ListenPort = %q, want %q", cfg.ListenPort, "8787")
	}
	if cfg.StatePath == "" {
		t.Error("expected non-empty default StatePath")
	}
}

func TestLoad_ProviderOptional(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PROVIDER_URL", "")
	t.Setenv("PROVIDER_ANON_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.AuthConfigured() {
		t.Error("expected AuthConfigured to be false without provider settings")
	}
}

func TestLoad_ProviderConfigured(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PROVIDER_URL", "https://auth.example.com")
	t.Setenv("PROVIDER_ANON_KEY", "anon-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.AuthConfigured() {
		t.Error("expected AuthConfigured to be true with provider settings")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("REQUEST_TIMEOUT", "5s")
	t.Setenv("REQUEST_RATE", "2.5")
	t.Setenv("LISTEN_PORT", "9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v, want %v", cfg.RequestTimeout, 5*time.Second)
	}
	if cfg.RequestRate != 2.5 {
		t.Errorf("RequestRate = %v, want 2.5", cfg.RequestRate)
	}
	if cfg.ListenPort != "9000" {
		t.Errorf("ListenPort = %q, want %q", cfg.ListenPort, "9000")
	}
}

func TestLoad_InvalidOptionalFallsBackToDefault(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("REQUEST_TIMEOUT", "not-a-duration")
	t.Setenv("REQUEST_BURST", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.RequestTimeout != 15*time.Second {
		t.Errorf("RequestTimeout = %v, want default %v", cfg.RequestTimeout, 15*time.Second)
	}
	if cfg.RequestBurst != 20 {
		t.Errorf("RequestBurst = %v, want default 20", cfg.RequestBurst)
	}
}
