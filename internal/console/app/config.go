package app

import (
	"os"
	"time"
)

type Config struct {
	APIBaseURL string // Required: base URL of the desk service

	StorageDriver string // Optional: session storage driver (sqlite, redis) (default: sqlite)
	DatabaseFile  string // Optional: path to SQLite database file (default: ./opsdesk.db)
	RedisAddr     string // Optional: redis address when driver=redis (default: localhost:6379)
	RedisKey      string // Optional: redis hash key for the session record

	Env         string        // Environment (dev, staging, prod) (default: dev)
	LogLevel    string        // Log level (debug, info, warn, error) (default: info)
	LogFormat   string        // Log format (json, text) (default: text)
	HTTPTimeout time.Duration // Desk service request timeout (default: 10s)
}

func LoadConfig() Config {
	return Config{
		APIBaseURL:    getEnvOrDefault("OPSDESK_API_URL", "http://localhost:8080"),
		StorageDriver: getEnvOrDefault("OPSDESK_STORAGE_DRIVER", "sqlite"),
		DatabaseFile:  getEnvOrDefault("OPSDESK_DATABASE_FILE", "opsdesk.db"),
		RedisAddr:     getEnvOrDefault("OPSDESK_REDIS_ADDR", "localhost:6379"),
		RedisKey:      os.Getenv("OPSDESK_REDIS_KEY"), // Optional: driver default applies
		Env:           getEnvOrDefault("ENV", "dev"),
		LogLevel:      getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:     getEnvOrDefault("LOG_FORMAT", "text"),
		HTTPTimeout:   getEnvDurationOrDefault("OPSDESK_HTTP_TIMEOUT", 10*time.Second),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
