package app

import (
	"io"
	"path/filepath"
	"strings"
	"testing"
)

func TestInit_MissingRequiredEnv(t *testing.T) {
	t.Setenv("API_BASE_URL", "")

	_, err := Init(io.Discard)
	if err == nil {
		t.Fatal("expected error for missing API_BASE_URL, got nil")
	}
	if !strings.Contains(err.Error(), "API_BASE_URL") {
		t.Errorf("error = %v, want mention of API_BASE_URL", err)
	}
}

func TestInit_LoadsConfig(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://api.example.com")

	cfg, err := Init(io.Discard)
	if err != nil {
		t.Fatalf("Init returned error: %v", err)
	}
	if cfg.APIBaseURL != "https://api.example.com" {
		t.Errorf("APIBaseURL = %q, want https://api.example.com", cfg.APIBaseURL)
	}
	// プロバイダー未設定は未認証モードであってエラーではない
	if cfg.AuthConfigured() {
		t.Error("expected AuthConfigured=false without provider settings")
	}
}

// TestBuildDeps はワイヤリングが未認証モードでも完了することを検証する。
func TestBuildDeps(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://api.example.com")
	t.Setenv("STATE_PATH", filepath.Join(t.TempDir(), "state.db"))

	cfg, err := Init(io.Discard)
	if err != nil {
		t.Fatalf("Init returned error: %v", err)
	}

	d, err := buildDeps(cfg)
	if err != nil {
		t.Fatalf("buildDeps returned error: %v", err)
	}
	defer d.st.Close()

	if d.provider != nil {
		t.Error("expected nil provider in unconfigured mode")
	}
	if d.sessions == nil || d.accounts == nil || d.styles == nil || d.creator == nil {
		t.Error("expected all registries to be wired")
	}
	if d.sessions.Loading() {
		t.Error("expected loading=false in unconfigured mode")
	}
}

// TestRunMigrate はローカル状態DBのマイグレーションが冪等に
// 適用できることを検証する。
func TestRunMigrate(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://api.example.com")
	t.Setenv("STATE_PATH", filepath.Join(t.TempDir(), "state.db"))

	cfg, err := Init(io.Discard)
	if err != nil {
		t.Fatalf("Init returned error: %v", err)
	}

	if err := runMigrate(cfg); err != nil {
		t.Fatalf("runMigrate returned error: %v", err)
	}
	if err := runMigrate(cfg); err != nil {
		t.Fatalf("second runMigrate returned error: %v", err)
	}
}
