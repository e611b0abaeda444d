// Package config loads server configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all server settings.
type Config struct {
	Port string `validate:"required"`

	// Upstream realtime service.
	UpstreamURL    string `validate:"required,url"`
	UpstreamAPIKey string `validate:"required"`
	SessionURL     string `validate:"required,url"`

	// UI session tokens.
	JWTSecret   string        `validate:"required,min=16"`
	JWTLifetime time.Duration `validate:"required"`

	// Persistence.
	MongoURI      string `validate:"omitempty,uri"`
	MongoDatabase string
	DataDir       string `validate:"required"`
	LogSinkPath   string `validate:"required"`
	// LogForwardURL, when set, receives a copy of connection and transport
	// diagnostics as fire-and-forget posts.
	LogForwardURL string `validate:"omitempty,url"`

	// Tunables.
	SilenceWindow  time.Duration `validate:"required"`
	RetryDelay     time.Duration `validate:"required"`
	TranscriptTTL  time.Duration
	GreetOnConnect bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		UpstreamURL:    getEnv("UPSTREAM_REALTIME_URL", "wss://api.openai.com/v1/realtime"),
		UpstreamAPIKey: os.Getenv("UPSTREAM_API_KEY"),
		SessionURL:     getEnv("UPSTREAM_SESSION_URL", "https://api.openai.com/v1/realtime/sessions"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		JWTLifetime:    getDuration("JWT_LIFETIME", time.Hour),
		MongoURI:       os.Getenv("MONGODB_URI"),
		MongoDatabase:  getEnv("MONGODB_DATABASE", "voiceui"),
		DataDir:        getEnv("DATA_DIR", "./data"),
		LogSinkPath:    getEnv("LOG_SINK_PATH", "./data/client_logs.jsonl"),
		LogForwardURL:  os.Getenv("LOG_FORWARD_URL"),
		SilenceWindow:  getDuration("SILENCE_WINDOW", 1200*time.Millisecond),
		RetryDelay:     getDuration("CONNECT_RETRY_DELAY", 5*time.Second),
		TranscriptTTL:  getDuration("TRANSCRIPT_TTL", 30*24*time.Hour),
		GreetOnConnect: getBool("GREET_ON_CONNECT", true),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
