// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	Chat        ChatConfig
	Timeout     TimeoutConfig
}

// ChatConfig controls the model server connection. Chat is disabled when
// BaseURL is empty.
type ChatConfig struct {
	BaseURL       string
	Model         string
	Temperature   float64
	MaxTokens     int64
	HistoryLimit  int
	MaxToolRounds int
	ToolTimeout   time.Duration
}

// TimeoutConfig holds operational timeouts.
type TimeoutConfig struct {
	HealthCheck time.Duration
	Shutdown    time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/hacklab.db"),
		Chat: ChatConfig{
			BaseURL:       getEnv("OLLAMA_BASE_URL", ""),
			Model:         getEnv("OLLAMA_MODEL", "qwen3:8b"),
			Temperature:   getEnvFloat("OLLAMA_TEMPERATURE", 0.7),
			MaxTokens:     int64(getEnvInt("OLLAMA_MAX_TOKENS", 4096)),
			HistoryLimit:  getEnvInt("CHAT_HISTORY_LIMIT", 20),
			MaxToolRounds: getEnvInt("CHAT_MAX_TOOL_ROUNDS", 4),
			ToolTimeout:   getEnvDuration("TOOL_TIMEOUT", 2*time.Minute),
		},
		Timeout: TimeoutConfig{
			HealthCheck: getEnvDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second),
			Shutdown:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
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
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Chat.HistoryLimit <= 0 {
		return fmt.Errorf("CHAT_HISTORY_LIMIT must be > 0")
	}
	if c.Chat.MaxToolRounds <= 0 {
		return fmt.Errorf("CHAT_MAX_TOOL_ROUNDS must be > 0")
	}
	return nil
}

// ChatEnabled returns true if a model server is configured.
func (c *Config) ChatEnabled() bool {
	return c.Chat.BaseURL != ""
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

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
