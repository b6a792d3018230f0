// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Backend
	APIBaseURL string

	// Identity Provider（未設定の場合は未認証モードで起動する）
	ProviderURL         string
	ProviderAnonKey     string
	ProviderRedirectURL string

	// Local state
	StatePath string

	// HTTP client
	RequestTimeout time.Duration
	RequestRate    float64 // 送信レート（req/sec）
	RequestBurst   int

	// Token refresh
	RefreshMargin time.Duration // 期限切れ何秒前にリフレッシュするか

	// Local listener
	ListenPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// プロバイダー関連の環境変数は任意で、未設定の場合は未認証モードを意味する。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.APIBaseURL = os.Getenv("API_BASE_URL")
	if cfg.APIBaseURL == "" {
		missing = append(missing, "API_BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Provider settings（任意: 3つ揃って初めて認証が有効になる）
	cfg.ProviderURL = os.Getenv("PROVIDER_URL")
	cfg.ProviderAnonKey = os.Getenv("PROVIDER_ANON_KEY")
	cfg.ProviderRedirectURL = getEnvString("PROVIDER_REDIRECT_URL", "http://localhost:8787/auth/callback")

	// Optional fields with defaults
	cfg.StatePath = getEnvString("STATE_PATH", defaultStatePath())
	cfg.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", 15*time.Second)
	cfg.RequestRate = getEnvFloat("REQUEST_RATE", 10)
	cfg.RequestBurst = getEnvInt("REQUEST_BURST", 20)
	cfg.RefreshMargin = getEnvDuration("REFRESH_MARGIN", 60*time.Second)
	cfg.ListenPort = getEnvString("LISTEN_PORT", "8787")

	return cfg, nil
}

// AuthConfigured はIDプロバイダーの設定が揃っているかどうかを返す。
func (c *Config) AuthConfigured() bool {
	return c.ProviderURL != "" && c.ProviderAnonKey != ""
}

// defaultStatePath はローカル状態DBのデフォルトパスを返す。
// ユーザー設定ディレクトリが解決できない場合はカレントディレクトリを使う。
func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "accountman.db"
	}
	return dir + "/accountman/state.db"
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
