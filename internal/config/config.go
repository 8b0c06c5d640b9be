// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	DataDir        string
	SessionIdleTTL time.Duration
	Engine         EngineConfig
	Turn           TurnConfig
	RateLimit      RateLimitConfig
	TranscriptLog  TranscriptLogConfig
}

// EngineConfig configures the reasoning-engine client.
type EngineConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// TurnConfig bounds a single streaming turn.
type TurnConfig struct {
	Timeout        time.Duration
	MaxEngineCalls int
	BufferSize     int
}

// RateLimitConfig controls per-user chat throttling.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// TranscriptLogConfig controls NDJSON transcript logging.
type TranscriptLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		DataDir:        getEnv("DATA_DIR", "./data"),
		SessionIdleTTL: getEnvDuration("SESSION_IDLE_TTL", 2*time.Hour),
		Engine: EngineConfig{
			BaseURL: getEnv("ENGINE_BASE_URL", ""),
			APIKey:  getEnv("ENGINE_API_KEY", ""),
			Model:   getEnv("ENGINE_MODEL", "gpt-4o"),
		},
		Turn: TurnConfig{
			Timeout:        getEnvDuration("TURN_TIMEOUT", 5*time.Minute),
			MaxEngineCalls: getEnvInt("TURN_MAX_ENGINE_CALLS", 200),
			BufferSize:     getEnvInt("TURN_BUFFER_SIZE", 64),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 20),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		TranscriptLog: TranscriptLogConfig{
			Enabled:   getEnvBool("TRANSCRIPT_LOG_ENABLED", true),
			Dir:       getEnv("TRANSCRIPT_LOG_DIR", "./data/logs/transcripts"),
			QueueSize: getEnvInt("TRANSCRIPT_LOG_QUEUE_SIZE", 1000),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR cannot be empty")
	}
	if c.Engine.Model == "" {
		return fmt.Errorf("ENGINE_MODEL cannot be empty")
	}
	if c.Turn.Timeout <= 0 {
		return fmt.Errorf("TURN_TIMEOUT must be > 0")
	}
	if c.Turn.MaxEngineCalls <= 0 {
		return fmt.Errorf("TURN_MAX_ENGINE_CALLS must be > 0")
	}
	if c.Turn.BufferSize <= 0 {
		return fmt.Errorf("TURN_BUFFER_SIZE must be > 0")
	}
	if c.TranscriptLog.Enabled && c.TranscriptLog.Dir == "" {
		return fmt.Errorf("TRANSCRIPT_LOG_DIR cannot be empty")
	}
	if c.TranscriptLog.QueueSize <= 0 {
		return fmt.Errorf("TRANSCRIPT_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// DocumentPath returns the path of a named document file under DataDir.
func (c *Config) DocumentPath(filename string) string {
	return filepath.Join(c.DataDir, filename)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
