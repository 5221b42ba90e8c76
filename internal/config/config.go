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

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Provider names accepted in PROVIDER_ORDER.
const (
	ProviderRunPod = "runpod"
	ProviderBeam   = "beam"
)

// Static errors for configuration validation.
var (
	// ErrPublicBaseURLRequired is returned when PUBLIC_BASE_URL is not set.
	ErrPublicBaseURLRequired = errors.New("config: PUBLIC_BASE_URL is required")
	// ErrWebhookSecretRequired is returned when WEBHOOK_SECRET is not set.
	ErrWebhookSecretRequired = errors.New("config: WEBHOOK_SECRET is required")
	// ErrNoProviderConfigured is returned when neither RunPod nor Beam credentials are set.
	ErrNoProviderConfigured = errors.New("config: no video provider configured")
	// ErrUnknownProvider is returned for names in PROVIDER_ORDER other than runpod and beam.
	ErrUnknownProvider = errors.New("config: unknown provider in PROVIDER_ORDER")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port          int    `env:"PORT, default=8080" json:"port"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL, required" json:"public_base_url"`

	// Inbound webhook settings
	WebhookSecret    string        `env:"WEBHOOK_SECRET, required" json:"-"` // Masked in JSON
	WebhookTolerance time.Duration `env:"WEBHOOK_TOLERANCE, default=5m" json:"webhook_tolerance"`
	WebhookWorkers   int           `env:"WEBHOOK_WORKERS, default=4" json:"webhook_workers"`
	WebhookQueueSize int           `env:"WEBHOOK_QUEUE_SIZE, default=256" json:"webhook_queue_size"`

	// Persistence; empty selects the in-memory repository
	DatabaseURL string `env:"DATABASE_URL" json:"-"`

	// RunPod settings
	RunPodAPIKey     string `env:"RUNPOD_API_KEY" json:"-"` // Masked in JSON
	RunPodEndpointID string `env:"RUNPOD_ENDPOINT_ID" json:"runpod_endpoint_id,omitempty"`
	RunPodSync       bool   `env:"RUNPOD_SYNC, default=false" json:"runpod_sync"`

	// Beam settings
	BeamToken    string `env:"BEAM_TOKEN" json:"-"` // Masked in JSON
	BeamQueueURL string `env:"BEAM_QUEUE_URL" json:"beam_queue_url,omitempty"`
	BeamSync     bool   `env:"BEAM_SYNC, default=false" json:"beam_sync"`

	// Dispatch settings
	ProviderOrder         []string `env:"PROVIDER_ORDER, default=runpod,beam" json:"provider_order"`
	DispatchRetries       int      `env:"DISPATCH_RETRIES, default=1" json:"dispatch_retries"`
	MaxConcurrentDispatch int      `env:"MAX_CONCURRENT_DISPATCH, default=4" json:"max_concurrent_dispatch"`

	// Render settings; empty queue URL selects the in-memory queue
	RenderQueueURL      string  `env:"RENDER_QUEUE_URL" json:"render_queue_url,omitempty"`
	RenderTransitionSec float64 `env:"RENDER_TRANSITION_SEC, default=0.5" json:"render_transition_sec"`

	// Storage settings
	TempDir       string `env:"TEMP_DIR, default=/tmp/listingvideo" json:"temp_dir"`
	ArchiveAssets bool   `env:"ARCHIVE_ASSETS, default=false" json:"archive_assets"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSRegion          string `env:"AWS_REGION" json:"aws_region,omitempty"`
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

// RunPodEnabled returns true if the RunPod strategy can be built.
func (c *Config) RunPodEnabled() bool {
	return c.RunPodAPIKey != "" && c.RunPodEndpointID != ""
}

// BeamEnabled returns true if the Beam strategy can be built.
func (c *Config) BeamEnabled() bool {
	return c.BeamToken != "" && c.BeamQueueURL != ""
}

// WebhookURL is the inbound provider webhook endpoint.
func (c *Config) WebhookURL() string {
	return strings.TrimRight(c.PublicBaseURL, "/") + "/webhooks/provider"
}

// AssetsBaseURL is the public prefix of archived clips served from local disk.
func (c *Config) AssetsBaseURL() string {
	return strings.TrimRight(c.PublicBaseURL, "/") + "/assets"
}

// SQSRegion is the region for the render queue client.
func (c *Config) SQSRegion() string {
	if c.AWSRegion != "" {
		return c.AWSRegion
	}
	return c.S3Region
}

// Load reads configuration from environment variables using go-envconfig.
// A .env file in the working directory is applied first when present;
// variables already set in the environment take precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := &Config{}
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		// Map envconfig errors to our domain errors for required fields
		if strings.Contains(err.Error(), "PUBLIC_BASE_URL") {
			return nil, ErrPublicBaseURLRequired
		}
		if strings.Contains(err.Error(), "WEBHOOK_SECRET") {
			return nil, ErrWebhookSecretRequired
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if c.PublicBaseURL == "" {
		return ErrPublicBaseURLRequired
	}
	if c.WebhookSecret == "" {
		return ErrWebhookSecretRequired
	}
	for _, p := range c.ProviderOrder {
		switch strings.ToLower(strings.TrimSpace(p)) {
		case ProviderRunPod, ProviderBeam:
		default:
			return fmt.Errorf("%w: %q", ErrUnknownProvider, p)
		}
	}
	if len(c.EnabledProviders()) == 0 {
		return ErrNoProviderConfigured
	}
	return nil
}

// EnabledProviders returns the configured providers in PROVIDER_ORDER.
func (c *Config) EnabledProviders() []string {
	var out []string
	seen := make(map[string]bool)
	for _, p := range c.ProviderOrder {
		name := strings.ToLower(strings.TrimSpace(p))
		if seen[name] {
			continue
		}
		seen[name] = true
		if (name == ProviderRunPod && c.RunPodEnabled()) || (name == ProviderBeam && c.BeamEnabled()) {
			out = append(out, name)
		}
	}
	return out
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
		"Config{Port: %d, PublicBaseURL: %s, Providers: %v, DispatchRetries: %d, MaxConcurrentDispatch: %d, Database: %t, RenderQueue: %t, S3Bucket: %s, S3Region: %s, ArchiveAssets: %t, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.PublicBaseURL,
		c.EnabledProviders(),
		c.DispatchRetries,
		c.MaxConcurrentDispatch,
		c.DatabaseURL != "",
		c.RenderQueueURL != "",
		c.S3Bucket,
		c.S3Region,
		c.ArchiveAssets,
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
