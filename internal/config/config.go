// Package config loads the service settings from struct-tag defaults, an
// optional .env file and the process environment, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcuadros/go-defaults"
)

const (
	VerifierModeGRPC = "grpc"
	VerifierModeHTTP = "http"
)

type Config struct {
	Host string `default:"0.0.0.0"`
	Port int    `default:"5000"`

	UploadDir    string `default:"static/uploads"`
	ReferenceDir string `default:"static/user_images"`

	// AllowedOrigin is the only cross-origin caller accepted on /login.
	AllowedOrigin string `default:"https://deliveryauthsystem.web.app"`

	Verifier VerifierConfig
	Auth     AuthConfig

	DatabaseDSN string // empty disables the attempt audit log
	RedisAddr   string // empty disables the attempt cache

	LogFile         string
	ShutdownTimeout time.Duration `default:"15s"`
}

type VerifierConfig struct {
	Mode    string        `default:"grpc"`
	Addr    string        `default:"face-verifier:50051"`
	URL     string        `default:"http://face-verifier:5005"`
	Model   string        `default:"VGG-Face"`
	Timeout time.Duration // per comparison, 0 means unbounded
}

type AuthConfig struct {
	Secret   string        `default:"dev-secret"`
	Audience string
	TokenTTL time.Duration `default:"1h"`
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load builds a Config. envFiles are passed to godotenv; with none, ./.env is
// read if present.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg := &Config{}
	defaults.SetDefaults(cfg)

	cfg.Host = getEnv("HOST", cfg.Host)
	cfg.UploadDir = getEnv("UPLOAD_DIR", cfg.UploadDir)
	cfg.ReferenceDir = getEnv("REFERENCE_DIR", cfg.ReferenceDir)
	cfg.AllowedOrigin = getEnv("ALLOWED_ORIGIN", cfg.AllowedOrigin)
	cfg.Verifier.Mode = getEnv("VERIFIER_MODE", cfg.Verifier.Mode)
	cfg.Verifier.Addr = getEnv("VERIFIER_ADDR", cfg.Verifier.Addr)
	cfg.Verifier.URL = getEnv("VERIFIER_URL", cfg.Verifier.URL)
	cfg.Verifier.Model = getEnv("VERIFIER_MODEL", cfg.Verifier.Model)
	cfg.Auth.Secret = getEnv("JWT_SECRET", cfg.Auth.Secret)
	cfg.Auth.Audience = getEnv("JWT_AUDIENCE", cfg.Auth.Audience)
	cfg.DatabaseDSN = getEnv("DATABASE_DSN", cfg.DatabaseDSN)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)

	var err error
	if cfg.Port, err = getEnvInt("PORT", cfg.Port); err != nil {
		return nil, err
	}
	if cfg.Verifier.Timeout, err = getEnvDuration("VERIFY_TIMEOUT", cfg.Verifier.Timeout); err != nil {
		return nil, err
	}
	if cfg.Auth.TokenTTL, err = getEnvDuration("TOKEN_TTL", cfg.Auth.TokenTTL); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getEnvDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be caught by parsing alone.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	switch c.Verifier.Mode {
	case VerifierModeGRPC, VerifierModeHTTP:
	default:
		return fmt.Errorf("unknown verifier mode %q", c.Verifier.Mode)
	}
	if c.UploadDir == "" || c.ReferenceDir == "" {
		return errors.New("upload and reference directories are required")
	}
	return nil
}

// EnsureDirs creates the upload and reference directories.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.UploadDir, c.ReferenceDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
