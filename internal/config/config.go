// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "json" or "text"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Detection settings
	DetectionSecret  string // Shared HMAC secret authenticating game-server submissions
	DetectorTimeout  time.Duration
	FreshnessWindow  time.Duration
	SessionRetention time.Duration // In-memory session/nonce retention
	DecayInterval    time.Duration // Risk-decay sweep interval

	// Alerting
	AlertWebhookURL string // Optional operator webhook for high-confidence blocks

	// Security
	RateLimitRPS int

	// Tracing
	OTLPEndpoint string // OTLP gRPC endpoint (optional, tracing disabled if not set)
}

// Defaults
const (
	DefaultPort             = "8080"
	DefaultEnv              = "development"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
	DefaultRateLimit        = 100
	DefaultDetectorTimeout  = 2 * time.Second
	DefaultFreshnessWindow  = 5 * time.Minute
	DefaultSessionRetention = 24 * time.Hour
	DefaultDecayInterval    = time.Hour
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", DefaultPort),
		Env:              getEnv("ENV", DefaultEnv),
		LogLevel:         getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:        getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:      os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		DetectionSecret:  os.Getenv("DETECTION_SECRET"),
		DetectorTimeout:  getEnvDuration("DETECTOR_TIMEOUT", DefaultDetectorTimeout),
		FreshnessWindow:  getEnvDuration("FRESHNESS_WINDOW", DefaultFreshnessWindow),
		SessionRetention: getEnvDuration("SESSION_RETENTION", DefaultSessionRetention),
		DecayInterval:    getEnvDuration("DECAY_INTERVAL", DefaultDecayInterval),
		AlertWebhookURL:  os.Getenv("ALERT_WEBHOOK_URL"),
		RateLimitRPS:     int(getEnvInt64("RATE_LIMIT_RPS", int64(DefaultRateLimit))),
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.DetectionSecret == "" {
		return fmt.Errorf("DETECTION_SECRET is required")
	}
	if len(c.DetectionSecret) < 16 {
		return fmt.Errorf("DETECTION_SECRET must be at least 16 characters")
	}

	if c.FreshnessWindow <= 0 {
		return fmt.Errorf("FRESHNESS_WINDOW must be positive")
	}
	if c.DetectorTimeout <= 0 {
		return fmt.Errorf("DETECTOR_TIMEOUT must be positive")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
