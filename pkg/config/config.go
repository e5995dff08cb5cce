// Package config reads server settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Ledger drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds server configuration.
type Config struct {
	Port     string
	LogLevel string

	CatalogPath string

	LedgerDriver string
	DatabaseURL  string
	SQLitePath   string

	JWTSecret string
	JWTIssuer string

	RateLimitRPS   float64
	RateLimitBurst int
	RedisAddr      string

	NATSURL string

	ArtifactStorage string
	DataDir         string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3Prefix        string
	GCSBucket       string
	GCSPrefix       string

	VerifySchedule string
	SensingURL     string

	OTelEnabled  bool
	OTLPEndpoint string
}

// Load reads the environment. Unset variables take their defaults; malformed
// numeric or boolean values are errors.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            env("PORT", "8080"),
		LogLevel:        env("LOG_LEVEL", "INFO"),
		CatalogPath:     os.Getenv("CATALOG_PATH"),
		LedgerDriver:    strings.ToLower(env("LEDGER_DRIVER", DriverMemory)),
		DatabaseURL:     env("DATABASE_URL", "postgres://landguard@localhost:5432/landguard?sslmode=disable"),
		SQLitePath:      env("SQLITE_PATH", "data/ledger.db"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		JWTIssuer:       env("JWT_ISSUER", "landguard"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		NATSURL:         os.Getenv("NATS_URL"),
		ArtifactStorage: env("ARTIFACT_STORAGE_TYPE", "fs"),
		DataDir:         env("DATA_DIR", "data"),
		S3Bucket:        os.Getenv("ARTIFACT_S3_BUCKET"),
		S3Region:        env("ARTIFACT_S3_REGION", "us-east-1"),
		S3Endpoint:      os.Getenv("ARTIFACT_S3_ENDPOINT"),
		S3Prefix:        os.Getenv("ARTIFACT_S3_PREFIX"),
		GCSBucket:       os.Getenv("ARTIFACT_GCS_BUCKET"),
		GCSPrefix:       os.Getenv("ARTIFACT_GCS_PREFIX"),
		VerifySchedule:  env("VERIFY_SCHEDULE", "@every 1h"),
		SensingURL:      os.Getenv("SENSING_URL"),
		OTLPEndpoint:    env("OTLP_ENDPOINT", "localhost:4317"),
	}

	var err error
	if cfg.RateLimitRPS, err = floatEnv("RATE_LIMIT_RPS", 10); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = intEnv("RATE_LIMIT_BURST", 20); err != nil {
		return nil, err
	}
	if cfg.OTelEnabled, err = boolEnv("OTEL_ENABLED", false); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.LedgerDriver {
	case DriverMemory, DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("config: LEDGER_DRIVER must be memory, sqlite or postgres, got %q", c.LedgerDriver)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("config: rate limits must not be negative")
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 16 {
		return fmt.Errorf("config: JWT_SECRET must be at least 16 bytes")
	}
	return nil
}

// AuthEnabled reports whether requests must carry a bearer token.
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

// SlogLevel maps LogLevel onto slog levels, defaulting to INFO.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func floatEnv(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return f, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func boolEnv(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}
