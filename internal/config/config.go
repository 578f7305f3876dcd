// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Redis。空の場合はアクティビティの重複抑止を無効にする。
	RedisURL string

	// Server
	ServerPort        string
	CORSAllowedOrigin string

	// Activity
	ActivityDedupWindow time.Duration

	// Rate Limit（req/min/user）
	RateLimitGeneral int

	// Session sweeper
	SessionIdleTimeout time.Duration
	SweepInterval      time.Duration

	// Analytics
	AnalyticsMaxDays int

	// Logging
	LogLevel string
}

// LoadDotEnv は指定された.envファイルを環境変数に読み込む。
// 既に設定済みの環境変数は上書きしない。ファイルが存在しない場合は何もしない。
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("required environment variables are not set: %v", []string{"DATABASE_URL"})
	}

	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.ActivityDedupWindow = getEnvDuration("ACTIVITY_DEDUP_WINDOW", 2*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.SessionIdleTimeout = getEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute)
	cfg.SweepInterval = getEnvDuration("SWEEP_INTERVAL", 5*time.Minute)
	cfg.AnalyticsMaxDays = getEnvInt("ANALYTICS_MAX_DAYS", 365)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate は0以下になってはならない値を検証する。
func (c *Config) validate() error {
	switch {
	case c.ActivityDedupWindow <= 0:
		return fmt.Errorf("ACTIVITY_DEDUP_WINDOW must be positive: %s", c.ActivityDedupWindow)
	case c.SessionIdleTimeout <= 0:
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive: %s", c.SessionIdleTimeout)
	case c.SweepInterval <= 0:
		return fmt.Errorf("SWEEP_INTERVAL must be positive: %s", c.SweepInterval)
	case c.AnalyticsMaxDays < 1:
		return fmt.Errorf("ANALYTICS_MAX_DAYS must be at least 1: %d", c.AnalyticsMaxDays)
	}
	return nil
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
