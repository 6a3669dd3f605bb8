// Package config provides centralized configuration loading and validation
// for the blog API.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// PolicyConfig holds the limit and window of one rate limit policy.
type PolicyConfig struct {
	Limit  int64
	Window time.Duration
}

// Config holds all validated configuration for the blog API.
type Config struct {
	// ListenAddr is the address the HTTP server binds to (e.g., ":3000").
	ListenAddr string

	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string

	// RedisAddr is the Redis server address (host:port). Empty disables
	// caching and distributed rate limiting.
	RedisAddr string

	// JWTSecret signs access tokens.
	JWTSecret string

	// BcryptCost is the password hashing work factor.
	BcryptCost int

	// TrustProxy enables trusting X-Forwarded-For headers.
	TrustProxy bool

	// RateLimitEnabled toggles request rate limiting.
	RateLimitEnabled bool

	// GlobalLimit, IPLimit and UserLimit are the three rate limit policies.
	GlobalLimit PolicyConfig
	IPLimit     PolicyConfig
	UserLimit   PolicyConfig

	// LoginRPS and LoginBurst bound login attempts per client address.
	LoginRPS   float64
	LoginBurst int

	// LogLevel controls the minimum log level (debug, info, warn, error).
	LogLevel string
}

// Load reads configuration from environment variables, applies defaults,
// and validates all required values.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:       getEnv("LISTEN_ADDR", ":3000"),
		DatabaseURL:      strings.TrimSpace(getEnv("DATABASE_URL", "")),
		RedisAddr:        strings.TrimSpace(getEnv("REDIS_ADDR", "localhost:6379")),
		JWTSecret:        strings.TrimSpace(getEnv("JWT_SECRET", "")),
		BcryptCost:       getEnvInt("BCRYPT_COST", bcrypt.DefaultCost),
		TrustProxy:       getEnv("TRUST_PROXY", "false") == "true",
		RateLimitEnabled: getEnv("RATE_LIMIT_ENABLED", "true") == "true",
		GlobalLimit: PolicyConfig{
			Limit:  getEnvInt64("RATE_LIMIT_GLOBAL_REQUESTS", 1000),
			Window: time.Duration(getEnvInt("RATE_LIMIT_GLOBAL_WINDOW_SECONDS", 60)) * time.Second,
		},
		IPLimit: PolicyConfig{
			Limit:  getEnvInt64("RATE_LIMIT_IP_REQUESTS", 100),
			Window: time.Duration(getEnvInt("RATE_LIMIT_IP_WINDOW_SECONDS", 60)) * time.Second,
		},
		UserLimit: PolicyConfig{
			Limit:  getEnvInt64("RATE_LIMIT_USER_REQUESTS", 300),
			Window: time.Duration(getEnvInt("RATE_LIMIT_USER_WINDOW_SECONDS", 60)) * time.Second,
		},
		LoginRPS:   getEnvFloat("LOGIN_RATE_PER_SECOND", 0.5),
		LoginBurst: getEnvInt("LOGIN_BURST", 5),
		LogLevel:   strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is consistent and safe.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("config: JWT_SECRET is required")
	}
	if c.JWTSecret == "change-me" {
		return fmt.Errorf("config: JWT_SECRET must be changed from default value")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("config: JWT_SECRET must be at least 32 characters")
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("config: BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.RateLimitEnabled {
		if c.RedisAddr == "" {
			return fmt.Errorf("config: REDIS_ADDR is required when rate limiting is enabled")
		}
		for name, policy := range map[string]PolicyConfig{
			"GLOBAL": c.GlobalLimit,
			"IP":     c.IPLimit,
			"USER":   c.UserLimit,
		} {
			if policy.Limit <= 0 {
				return fmt.Errorf("config: RATE_LIMIT_%s_REQUESTS must be > 0", name)
			}
			if policy.Window <= 0 {
				return fmt.Errorf("config: RATE_LIMIT_%s_WINDOW_SECONDS must be > 0", name)
			}
		}
	}
	if c.LoginRPS <= 0 {
		return fmt.Errorf("config: LOGIN_RATE_PER_SECOND must be > 0")
	}
	if c.LoginBurst <= 0 {
		return fmt.Errorf("config: LOGIN_BURST must be > 0")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("config: LOG_LEVEL must be one of: debug, info, warn, error; got %q", c.LogLevel)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt64(key string, fallback int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}

	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}

	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
