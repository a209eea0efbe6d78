package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the server and admin CLI.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	RedisURL    string

	// StorageDriver is "postgres" or "memory".
	StorageDriver string
	// RealtimeDriver is "redis" or "memory".
	RealtimeDriver string

	JWTSecret        string
	TelegramBotToken string

	SweepInterval time.Duration
}

// Load reads configuration from environment variables.
// A .env file is loaded first if present. In production it panics on
// missing required variables.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		Env:              getEnv("ENV", "development"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		StorageDriver:    strings.ToLower(getEnv("STORAGE_DRIVER", "postgres")),
		RealtimeDriver:   strings.ToLower(getEnv("REALTIME_DRIVER", "redis")),
		JWTSecret:        getEnv("JWT_SECRET", "dev-secret-change-me"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		SweepInterval:    DefaultSweepInterval,
	}

	if raw := os.Getenv("SWEEP_INTERVAL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.SweepInterval = d
		}
	}

	if cfg.Env == "production" {
		if cfg.StorageDriver == "postgres" && cfg.DatabaseURL == "" {
			panic("DATABASE_URL is required in production")
		}
		if cfg.RealtimeDriver == "redis" && cfg.RedisURL == "" {
			panic("REDIS_URL is required in production")
		}
		if os.Getenv("JWT_SECRET") == "" {
			panic("JWT_SECRET is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
