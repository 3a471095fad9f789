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
	// ErrInvalidMaxClip is returned when MAX_CLIP_SEC is not positive.
	ErrInvalidMaxClip = errors.New("config: MAX_CLIP_SEC must be positive")
	// ErrInvalidUploadLimit is returned when MAX_UPLOAD_MB is not positive.
	ErrInvalidUploadLimit = errors.New("config: MAX_UPLOAD_MB must be positive")
	// ErrInvalidPaletteConcurrency is returned when PALETTE_CONCURRENCY is not positive.
	ErrInvalidPaletteConcurrency = errors.New("config: PALETTE_CONCURRENCY must be positive")
	// ErrInvalidImagePixels is returned when MAX_IMAGE_PIXELS is not positive.
	ErrInvalidImagePixels = errors.New("config: MAX_IMAGE_PIXELS must be positive")
	// ErrInvalidSessionTTL is returned when SESSION_IDLE_TTL or SESSION_REAP_INTERVAL is not positive.
	ErrInvalidSessionTTL = errors.New("config: SESSION_IDLE_TTL and SESSION_REAP_INTERVAL must be positive")
	// ErrInvalidS3Config is returned when only one of S3_BUCKET and S3_REGION is set.
	ErrInvalidS3Config = errors.New("config: S3_BUCKET and S3_REGION must be set together")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port           int      `env:"PORT, default=8080" json:"port"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS, default=*" json:"allowed_origins"`
	MaxUploadMB    int      `env:"MAX_UPLOAD_MB, default=200" json:"max_upload_mb"`
	MaxImagePixels int      `env:"MAX_IMAGE_PIXELS, default=40000000" json:"max_image_pixels"`

	// Session settings
	SessionIdleTTL      time.Duration `env:"SESSION_IDLE_TTL, default=1h" json:"session_idle_ttl"`
	SessionReapInterval time.Duration `env:"SESSION_REAP_INTERVAL, default=1m" json:"session_reap_interval"`

	// Storage settings
	TempDir       string `env:"TEMP_DIR, default=/tmp/marathon-media" json:"temp_dir"`
	PublishDir    string `env:"PUBLISH_DIR" json:"publish_dir,omitempty"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" json:"public_base_url,omitempty"`

	// Trim settings
	MaxClipSec     float64 `env:"MAX_CLIP_SEC, default=60" json:"max_clip_sec"`
	TrimTimeoutSec int     `env:"TRIM_TIMEOUT_SEC, default=120" json:"trim_timeout_sec"`
	FFmpegPath     string  `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath    string  `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`

	// Palette settings
	PaletteConcurrency     int     `env:"PALETTE_CONCURRENCY, default=8" json:"palette_concurrency"`
	PaletteFetchRPS        float64 `env:"PALETTE_FETCH_RPS, default=20" json:"palette_fetch_rps"`
	PaletteFetchTimeoutSec int     `env:"PALETTE_FETCH_TIMEOUT_SEC, default=10" json:"palette_fetch_timeout_sec"`

	// Activity settings
	ActivityLogSize int `env:"ACTIVITY_LOG_SIZE, default=200" json:"activity_log_size"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
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

// MaxUploadBytes returns the upload cap in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// TrimTimeout returns the base timeout of a trim job.
func (c *Config) TrimTimeout() time.Duration {
	return time.Duration(c.TrimTimeoutSec) * time.Second
}

// PaletteFetchTimeout returns the per-image fetch timeout.
func (c *Config) PaletteFetchTimeout() time.Duration {
	return time.Duration(c.PaletteFetchTimeoutSec) * time.Second
}

// Load reads configuration from environment variables using go-envconfig.
// It returns an error if a variable cannot be parsed or the result is invalid.
func Load() (*Config, error) {
	return load(context.Background(), envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that numeric limits are usable and S3 settings are complete.
func (c *Config) Validate() error {
	if c.MaxClipSec <= 0 {
		return ErrInvalidMaxClip
	}
	if c.MaxUploadMB <= 0 {
		return ErrInvalidUploadLimit
	}
	if c.MaxImagePixels <= 0 {
		return ErrInvalidImagePixels
	}
	if c.PaletteConcurrency <= 0 {
		return ErrInvalidPaletteConcurrency
	}
	if c.SessionIdleTTL <= 0 || c.SessionReapInterval <= 0 {
		return ErrInvalidSessionTTL
	}
	if (c.S3Bucket == "") != (c.S3Region == "") {
		return ErrInvalidS3Config
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
		"Config{Port: %d, TempDir: %s, PublishDir: %s, PublicBaseURL: %s, MaxUploadMB: %d, MaxImagePixels: %d, SessionIdleTTL: %s, MaxClipSec: %g, TrimTimeoutSec: %d, PaletteConcurrency: %d, S3Bucket: %s, S3Region: %s, S3Endpoint: %s, AWSAccessKeyID: %s, AWSSecretAccessKey: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.PublishDir,
		c.PublicBaseURL,
		c.MaxUploadMB,
		c.MaxImagePixels,
		c.SessionIdleTTL,
		c.MaxClipSec,
		c.TrimTimeoutSec,
		c.PaletteConcurrency,
		c.S3Bucket,
		c.S3Region,
		c.S3Endpoint,
		mask(c.AWSAccessKeyID),
		mask(c.AWSSecretAccessKey),
		c.LogFormat,
		c.LogLevel,
	)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "****"
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
