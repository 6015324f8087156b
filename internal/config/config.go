// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Protocol
	APISalt       string
	APIEnabled    bool
	APIPathPrefix string

	// Server
	ServerPort     string
	LoginRateLimit int

	// MetricsPort はworkerが/metricsと/healthを公開するポート。
	MetricsPort string

	// Fetch
	FetchTimeout        time.Duration
	FetchMaxSize        int64
	FetchMaxConcurrent  int
	FetchInterval       time.Duration
	FeedRefreshInterval time.Duration

	// Retention
	EntryRetentionDays int

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は、未設定のものをすべて列挙したエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.APISalt = os.Getenv("API_SALT")
	if cfg.APISalt == "" {
		missing = append(missing, "API_SALT")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.APIEnabled = getEnvBool("API_ENABLED", true)
	cfg.APIPathPrefix = normalizePrefix(getEnvString("API_PATH_PREFIX", "/api/greader.php"))
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LoginRateLimit = getEnvInt("LOGIN_RATE_LIMIT", 10)
	cfg.MetricsPort = getEnvString("METRICS_PORT", "9090")
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.FetchMaxConcurrent = getEnvInt("FETCH_MAX_CONCURRENT", 10)
	cfg.FetchInterval = getEnvDuration("FETCH_INTERVAL", 5*time.Minute)
	cfg.FeedRefreshInterval = getEnvDuration("FEED_REFRESH_INTERVAL", 60*time.Minute)
	cfg.EntryRetentionDays = getEnvInt("ENTRY_RETENTION_DAYS", 90)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

// normalizePrefix は先頭にスラッシュを付け、末尾のスラッシュを取り除く。
func normalizePrefix(prefix string) string {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return prefix
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
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
