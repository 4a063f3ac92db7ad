// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrStagingDirRequired is returned when STAGING_DIR is set to an empty value.
	ErrStagingDirRequired = errors.New("config: STAGING_DIR must not be empty")
	// ErrOutputDirRequired is returned when OUTPUT_DIR is set to an empty value.
	ErrOutputDirRequired = errors.New("config: OUTPUT_DIR must not be empty")
	// ErrInvalidUploadLimit is returned when MAX_UPLOAD_BYTES is zero or negative.
	ErrInvalidUploadLimit = errors.New("config: MAX_UPLOAD_BYTES must be positive")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port    int    `env:"PORT, default=3000" json:"port"`
	BaseURL string `env:"BASE_URL" json:"base_url,omitempty"` // Absolute origin for frame URLs; empty falls back to the request host

	// Storage settings
	StagingDir string `env:"STAGING_DIR, default=/tmp/keyframes/staging" json:"staging_dir"`
	OutputDir  string `env:"OUTPUT_DIR, default=/tmp/keyframes/output" json:"output_dir"`

	// Pipeline settings
	FFmpegPath      string        `env:"FFMPEG_PATH" json:"ffmpeg_path,omitempty"` // Empty uses "ffmpeg" from PATH
	DownloadTimeout time.Duration `env:"DOWNLOAD_TIMEOUT, default=60s" json:"download_timeout"`
	ExtractTimeout  time.Duration `env:"EXTRACT_TIMEOUT, default=5m" json:"extract_timeout"` // Zero disables the engine deadline
	MaxUploadBytes  int64         `env:"MAX_UPLOAD_BYTES, default=536870912" json:"max_upload_bytes"`
	StagingMaxAge   time.Duration `env:"STAGING_MAX_AGE, default=1h" json:"staging_max_age"` // Zero disables the sweeper

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig.
// It returns an error if any value fails to parse or validate.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	// Frame URLs are joined onto the base, so a trailing slash would double up.
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and sane.
func (c *Config) Validate() error {
	if c.StagingDir == "" {
		return ErrStagingDirRequired
	}
	if c.OutputDir == "" {
		return ErrOutputDirRequired
	}
	if c.MaxUploadBytes <= 0 {
		return ErrInvalidUploadLimit
	}
	if c.DownloadTimeout < 0 {
		return fmt.Errorf("config: DOWNLOAD_TIMEOUT must not be negative, got %s", c.DownloadTimeout)
	}
	if c.ExtractTimeout < 0 {
		return fmt.Errorf("config: EXTRACT_TIMEOUT must not be negative, got %s", c.ExtractTimeout)
	}
	if c.StagingMaxAge < 0 {
		return fmt.Errorf("config: STAGING_MAX_AGE must not be negative, got %s", c.StagingMaxAge)
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, BaseURL: %s, StagingDir: %s, OutputDir: %s, DownloadTimeout: %s, ExtractTimeout: %s, MaxUploadBytes: %d, StagingMaxAge: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.BaseURL,
		c.StagingDir,
		c.OutputDir,
		c.DownloadTimeout,
		c.ExtractTimeout,
		c.MaxUploadBytes,
		c.StagingMaxAge,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
