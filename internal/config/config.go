package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	AppEnv   string
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Session  SessionConfig
	Console  ConsoleConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	CORSAllowedOrigins string // comma-separated, or "*"
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings. Empty Addr disables redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// SessionConfig controls how long cached permissions are trusted.
type SessionConfig struct {
	MaxAge      time.Duration
	SnapshotKey string
}

// ConsoleConfig is read by cmd/console only.
type ConsoleConfig struct {
	APIURL         string
	Strict         bool
	SearchDebounce time.Duration
	RequestTimeout time.Duration
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.Host, c.User, c.Password, c.DBName, c.Port, c.SSLMode,
	)
}

// WSURL derives the websocket endpoint from the REST base URL.
func (c ConsoleConfig) WSURL() string {
	base := strings.TrimSuffix(c.APIURL, "/")
	base = strings.TrimSuffix(base, "/api/v1")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// Origins splits the CORS setting.
func (c ServerConfig) Origins() []string {
	return splitTrim(c.CORSAllowedOrigins, ",")
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv: getEnv("APP_ENV", "production"),
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "fleet"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", ""),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		Session: SessionConfig{
			MaxAge:      time.Duration(getEnvInt("SESSION_MAX_AGE_MIN", 30)) * time.Minute,
			SnapshotKey: getEnv("SESSION_SNAPSHOT_KEY", "fleet-console:session"),
		},
		Console: ConsoleConfig{
			APIURL:         getEnv("CONSOLE_API_URL", "http://localhost:8080/api/v1"),
			Strict:         getEnvBool("STORE_STRICT", false),
			SearchDebounce: time.Duration(getEnvInt("SEARCH_DEBOUNCE_MS", 300)) * time.Millisecond,
			RequestTimeout: time.Duration(getEnvInt("CONSOLE_TIMEOUT_SEC", 10)) * time.Second,
		},
	}

	if cfg.JWT.ExpireHours <= 0 {
		return nil, fmt.Errorf("JWT_EXPIRE_HOURS must be positive, got %d", cfg.JWT.ExpireHours)
	}
	if cfg.Session.MaxAge <= 0 {
		return nil, fmt.Errorf("SESSION_MAX_AGE_MIN must be positive")
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
