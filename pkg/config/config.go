package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds the application configuration
type Config struct {
	Environment         string
	ServerPort          int
	LogLevel            string
	StorageDriver       string
	DatabaseURL         string
	Database            DatabaseConfig
	RedisURL            string
	JWTSecret           string
	JWTTTL              time.Duration
	CORSAllowedOrigins  []string
	RateLimitPerMinute  int
	OverdueScanInterval time.Duration
	NotifyPollInterval  time.Duration
	NotifyMaxAttempts   int
	SMTP                SMTPConfig
	Bootstrap           BootstrapConfig
}

// DatabaseConfig holds discrete Postgres settings used when DATABASE_URL is empty
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// SMTPConfig configures outbound mail. An empty Host disables SMTP delivery.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// BootstrapConfig seeds a first tenant and admin account on startup so a
// fresh deployment can be logged into.
type BootstrapConfig struct {
	TenantID      string
	TenantName    string
	AdminEmail    string
	AdminPassword string
}

// Enabled reports whether a bootstrap tenant was requested
func (b BootstrapConfig) Enabled() bool {
	return b.TenantID != "" && b.AdminEmail != "" && b.AdminPassword != ""
}

// Enabled reports whether SMTP delivery is configured
func (s SMTPConfig) Enabled() bool {
	return s.Host != ""
}

// Load reads configuration from environment variables, after loading a
// .env file from the working directory when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	port, err := getInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	dbPort, err := getInt("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}
	ttlMinutes, err := getInt("JWT_TTL_MINUTES", 60)
	if err != nil {
		return nil, err
	}
	rateLimit, err := getInt("RATE_LIMIT_PER_MINUTE", 100)
	if err != nil {
		return nil, err
	}
	overdueSeconds, err := getInt("OVERDUE_SCAN_INTERVAL_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	notifyPollSeconds, err := getInt("NOTIFY_POLL_INTERVAL_SECONDS", 5)
	if err != nil {
		return nil, err
	}
	maxAttempts, err := getInt("NOTIFY_MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Environment:   getEnv("ENVIRONMENT", "development"),
		ServerPort:    port,
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", StorageMemory)),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "gearpool"),
			Password: getEnv("DB_PASSWORD", "dev"),
			Name:     getEnv("DB_NAME", "gearpool"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		RedisURL:  os.Getenv("REDIS_URL"),
		JWTSecret: os.Getenv("JWT_SECRET"),
		JWTTTL:    time.Duration(ttlMinutes) * time.Minute,
		CORSAllowedOrigins: parseCSVEnv("CORS_ALLOWED_ORIGINS", []string{
			"http://localhost:5173",
			"http://localhost:3000",
		}),
		RateLimitPerMinute:  rateLimit,
		OverdueScanInterval: time.Duration(overdueSeconds) * time.Second,
		NotifyPollInterval:  time.Duration(notifyPollSeconds) * time.Second,
		NotifyMaxAttempts:   maxAttempts,
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnv("SMTP_PORT", "587"),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
		},
		Bootstrap: BootstrapConfig{
			TenantID:      os.Getenv("BOOTSTRAP_TENANT_ID"),
			TenantName:    getEnv("BOOTSTRAP_TENANT_NAME", os.Getenv("BOOTSTRAP_TENANT_ID")),
			AdminEmail:    os.Getenv("BOOTSTRAP_ADMIN_EMAIL"),
			AdminPassword: os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("invalid STORAGE_DRIVER %q: want postgres or memory", c.StorageDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL_MINUTES must be positive")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.OverdueScanInterval <= 0 || c.NotifyPollInterval <= 0 {
		return fmt.Errorf("worker intervals must be positive")
	}
	if c.NotifyMaxAttempts < 1 {
		return fmt.Errorf("NOTIFY_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

// DSN returns the Postgres connection string, preferring DATABASE_URL.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	d := c.Database
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parseCSVEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
