package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Base sources.
const (
	SourceBackend  = "backend"
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

type Config struct {
	Port                string        `mapstructure:"PORT"`
	Env                 string        `mapstructure:"ENV"`
	LogLevel            string        `mapstructure:"LOG_LEVEL"`
	BackendURL          string        `mapstructure:"BACKEND_URL"`
	FrontendURL         string        `mapstructure:"FRONTEND_URL"`
	BackendTimeout      time.Duration `mapstructure:"BACKEND_TIMEOUT"`
	BaseSource          string        `mapstructure:"BASE_SOURCE"`
	SeedFile            string        `mapstructure:"SEED_FILE"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL            string        `mapstructure:"REDIS_URL"`
	SessionTTL          time.Duration `mapstructure:"SESSION_TTL"`
	CORSOrigins         []string      `mapstructure:"CORS_ORIGINS"`
	BodyLimit           string        `mapstructure:"BODY_LIMIT"`
	UploadLimit         string        `mapstructure:"UPLOAD_LIMIT"`
	RequestTimeout      time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	PersistSourceFilter bool          `mapstructure:"PERSIST_SOURCE_FILTER"`
	RateLimitRPS        float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst      int           `mapstructure:"RATE_LIMIT_BURST"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "BACKEND_URL", "FRONTEND_URL", "BACKEND_TIMEOUT",
	"BASE_SOURCE", "SEED_FILE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "SESSION_TTL", "CORS_ORIGINS", "BODY_LIMIT", "UPLOAD_LIMIT",
	"REQUEST_TIMEOUT", "PERSIST_SOURCE_FILTER", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
}

// Load reads .env (if present) and the environment. It does not validate;
// call Validate before serving.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("BACKEND_URL", "http://localhost:8080")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("BACKEND_TIMEOUT", "15s")
	v.SetDefault("BASE_SOURCE", SourceBackend)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("SESSION_TTL", "8h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("UPLOAD_LIMIT", "10M")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("PERSIST_SOURCE_FILTER", false)
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}
	cfg.BaseSource = strings.ToLower(strings.TrimSpace(cfg.BaseSource))

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Level returns the zerolog level, defaulting to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Validate checks that the configuration is consistent: the base source
// has what it needs and every URL parses.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if err := checkURL("BACKEND_URL", c.BackendURL, true); err != nil {
		return err
	}
	if err := checkURL("FRONTEND_URL", c.FrontendURL, false); err != nil {
		return err
	}

	switch c.BaseSource {
	case SourceBackend:
	case SourceFile:
		if c.SeedFile == "" {
			return fmt.Errorf("SEED_FILE is required when BASE_SOURCE is %q", SourceFile)
		}
	case SourcePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when BASE_SOURCE is %q", SourcePostgres)
		}
		if c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
		}
	default:
		return fmt.Errorf("BASE_SOURCE must be %q, %q or %q, got %q", SourceBackend, SourceFile, SourcePostgres, c.BaseSource)
	}

	if c.RedisURL != "" {
		if _, err := url.Parse(c.RedisURL); err != nil {
			return fmt.Errorf("REDIS_URL is not a valid URL: %w", err)
		}
	}
	for name, raw := range map[string]string{"BODY_LIMIT": c.BodyLimit, "UPLOAD_LIMIT": c.UploadLimit} {
		if raw == "" {
			continue
		}
		if _, err := ParseSize(raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.BackendTimeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must be positive, got %s", c.BackendTimeout)
	}
	if c.IsProduction() {
		for _, o := range c.CORSOrigins {
			if o == "*" {
				return fmt.Errorf("CORS_ORIGINS must not be \"*\" in production: the session cookie is sent with credentials")
			}
		}
	}
	return nil
}

// BodyBytes is BODY_LIMIT in bytes, 1M when unset or invalid.
func (c *Config) BodyBytes() int64 { return sizeOr(c.BodyLimit, 1<<20) }

// UploadBytes is UPLOAD_LIMIT in bytes, 10M when unset or invalid.
func (c *Config) UploadBytes() int64 { return sizeOr(c.UploadLimit, 10<<20) }

func sizeOr(raw string, def int64) int64 {
	n, err := ParseSize(raw)
	if err != nil {
		return def
	}
	return n
}

// ParseSize reads a byte count written as a bare number or with a K, M or
// G suffix (an optional trailing B is accepted): "512K", "10M", "1GB".
func ParseSize(s string) (int64, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	v = strings.TrimSuffix(v, "B")
	shift := 0
	switch {
	case strings.HasSuffix(v, "K"):
		shift = 10
	case strings.HasSuffix(v, "M"):
		shift = 20
	case strings.HasSuffix(v, "G"):
		shift = 30
	}
	if shift > 0 {
		v = v[:len(v)-1]
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n << shift, nil
}

func checkURL(name, raw string, required bool) error {
	if raw == "" {
		if required {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", name, raw)
	}
	return nil
}
