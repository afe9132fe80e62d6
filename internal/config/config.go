package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Directory service client configuration
	BaseURL     string
	HTTPTimeout time.Duration
	Operator    string

	// Polling configuration. Both bounds are mandatory: unbounded polling
	// is treated as a configuration error.
	PollInterval    time.Duration
	PollMaxAttempts int

	// Result paging configuration
	PageSize int

	// Reference server configuration
	ServerPort    string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	HistoryDBPath string

	// Logging configuration
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		BaseURL:         getEnv("SYNC_BASE_URL", "http://localhost:8080"),
		HTTPTimeout:     getEnvDuration("SYNC_HTTP_TIMEOUT", 30*time.Second),
		Operator:        getEnv("SYNC_OPERATOR", "system"),
		PollInterval:    getEnvDuration("SYNC_POLL_INTERVAL", 2*time.Second),
		PollMaxAttempts: getEnvInt("SYNC_POLL_MAX_ATTEMPTS", 100),
		PageSize:        getEnvInt("SYNC_PAGE_SIZE", 25),
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		ReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT", 5*time.Minute),
		IdleTimeout:     getEnvDuration("HTTP_IDLE_TIMEOUT", 120*time.Second),
		HistoryDBPath:   getEnv("HISTORY_DB_PATH", "./history.db"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate validates the configuration.
func (c *Config) validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("SYNC_BASE_URL is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("SYNC_POLL_INTERVAL must be positive")
	}
	if c.PollMaxAttempts < 1 {
		return fmt.Errorf("SYNC_POLL_MAX_ATTEMPTS must be at least 1")
	}
	if c.PageSize < 1 {
		return fmt.Errorf("SYNC_PAGE_SIZE must be at least 1")
	}
	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}
	if c.HistoryDBPath == "" {
		return fmt.Errorf("HISTORY_DB_PATH is required")
	}
	return nil
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as int with a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration gets an environment variable as duration with a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
