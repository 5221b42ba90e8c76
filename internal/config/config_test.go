package config

import (
	"bytes"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var managedVars = []string{
	"PORT", "PUBLIC_BASE_URL", "WEBHOOK_SECRET", "WEBHOOK_TOLERANCE", "WEBHOOK_WORKERS",
	"WEBHOOK_QUEUE_SIZE", "DATABASE_URL", "RUNPOD_API_KEY", "RUNPOD_ENDPOINT_ID", "RUNPOD_SYNC",
	"BEAM_TOKEN", "BEAM_QUEUE_URL", "BEAM_SYNC", "PROVIDER_ORDER", "DISPATCH_RETRIES",
	"MAX_CONCURRENT_DISPATCH", "RENDER_QUEUE_URL", "RENDER_TRANSITION_SEC", "TEMP_DIR",
	"ARCHIVE_ASSETS", "S3_BUCKET", "S3_REGION", "S3_ENDPOINT", "AWS_REGION",
	"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "LOG_FORMAT", "LOG_LEVEL",
}

// clearEnv unsets every variable Load reads and restores them after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range managedVars {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

// setMinimal sets the variables a valid configuration needs.
func setMinimal(t *testing.T) {
	t.Helper()
	clearEnv(t)
	t.Setenv("PUBLIC_BASE_URL", "https://api.example.com")
	t.Setenv("WEBHOOK_SECRET", "whsec")
	t.Setenv("RUNPOD_API_KEY", "test-api-key")
	t.Setenv("RUNPOD_ENDPOINT_ID", "test-endpoint")
}

func TestLoad_RequiredVariables(t *testing.T) {
	t.Run("missing PUBLIC_BASE_URL returns error", func(t *testing.T) {
		setMinimal(t)
		os.Unsetenv("PUBLIC_BASE_URL")

		_, err := Load()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrPublicBaseURLRequired)
	})

	t.Run("missing WEBHOOK_SECRET returns error", func(t *testing.T) {
		setMinimal(t)
		os.Unsetenv("WEBHOOK_SECRET")

		_, err := Load()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrWebhookSecretRequired)
	})

	t.Run("no provider returns error", func(t *testing.T) {
		setMinimal(t)
		os.Unsetenv("RUNPOD_API_KEY")

		_, err := Load()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNoProviderConfigured)
	})

	t.Run("all required variables present succeeds", func(t *testing.T) {
		setMinimal(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "test-api-key", cfg.RunPodAPIKey)
		assert.Equal(t, "test-endpoint", cfg.RunPodEndpointID)
	})
}

func TestLoad_Defaults(t *testing.T) {
	setMinimal(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.WebhookTolerance)
	assert.Equal(t, 4, cfg.WebhookWorkers)
	assert.Equal(t, 256, cfg.WebhookQueueSize)
	assert.Equal(t, []string{"runpod", "beam"}, cfg.ProviderOrder)
	assert.Equal(t, 1, cfg.DispatchRetries)
	assert.Equal(t, 4, cfg.MaxConcurrentDispatch)
	assert.InDelta(t, 0.5, cfg.RenderTransitionSec, 1e-9)
	assert.Equal(t, "/tmp/listingvideo", cfg.TempDir)
	assert.False(t, cfg.ArchiveAssets)
	assert.False(t, cfg.RunPodSync)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_CustomValues(t *testing.T) {
	setMinimal(t)
	t.Setenv("PORT", "3000")
	t.Setenv("WEBHOOK_TOLERANCE", "90s")
	t.Setenv("BEAM_TOKEN", "beam-token")
	t.Setenv("BEAM_QUEUE_URL", "https://app.beam.cloud/taskqueue/listing-video/latest")
	t.Setenv("BEAM_SYNC", "true")
	t.Setenv("PROVIDER_ORDER", "beam,runpod")
	t.Setenv("DISPATCH_RETRIES", "2")
	t.Setenv("RENDER_QUEUE_URL", "https://sqs.eu-west-1.amazonaws.com/123/render")
	t.Setenv("TEMP_DIR", "/custom/temp")
	t.Setenv("ARCHIVE_ASSETS", "true")
	t.Setenv("S3_BUCKET", "my-bucket")
	t.Setenv("S3_REGION", "us-east-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "access-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret-key")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, 90*time.Second, cfg.WebhookTolerance)
	assert.True(t, cfg.BeamSync)
	assert.Equal(t, []string{"beam", "runpod"}, cfg.EnabledProviders())
	assert.Equal(t, 2, cfg.DispatchRetries)
	assert.Equal(t, "/custom/temp", cfg.TempDir)
	assert.True(t, cfg.ArchiveAssets)
	assert.True(t, cfg.S3Enabled())
	assert.Equal(t, "us-east-1", cfg.SQSRegion())
	assert.Equal(t, "access-key", cfg.AWSAccessKeyID)
	assert.Equal(t, "secret-key", cfg.AWSSecretAccessKey)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_InvalidInteger(t *testing.T) {
	setMinimal(t)
	t.Setenv("PORT", "not-a-number")

	// go-envconfig returns an error when parsing fails
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_UnknownProvider(t *testing.T) {
	setMinimal(t)
	t.Setenv("PROVIDER_ORDER", "runpod,kling")

	_, err := Load()
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestConfig_S3Enabled(t *testing.T) {
	tests := []struct {
		name     string
		bucket   string
		region   string
		expected bool
	}{
		{"both set", "bucket", "region", true},
		{"only bucket", "bucket", "", false},
		{"only region", "", "region", false},
		{"neither set", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				S3Bucket: tt.bucket,
				S3Region: tt.region,
			}
			assert.Equal(t, tt.expected, cfg.S3Enabled())
		})
	}
}

func TestConfig_EnabledProviders(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		expect []string
	}{
		{
			name:   "runpod only",
			cfg:    Config{ProviderOrder: []string{"runpod", "beam"}, RunPodAPIKey: "k", RunPodEndpointID: "e"},
			expect: []string{"runpod"},
		},
		{
			name:   "beam only",
			cfg:    Config{ProviderOrder: []string{"runpod", "beam"}, BeamToken: "t", BeamQueueURL: "u"},
			expect: []string{"beam"},
		},
		{
			name: "order respected and deduplicated",
			cfg: Config{
				ProviderOrder: []string{" Beam", "runpod", "beam"},
				RunPodAPIKey:  "k", RunPodEndpointID: "e",
				BeamToken: "t", BeamQueueURL: "u",
			},
			expect: []string{"beam", "runpod"},
		},
		{
			name: "missing half of credentials",
			cfg:  Config{ProviderOrder: []string{"runpod", "beam"}, RunPodAPIKey: "k", BeamQueueURL: "u"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, tt.cfg.EnabledProviders())
		})
	}
}

func TestConfig_URLs(t *testing.T) {
	cfg := &Config{PublicBaseURL: "https://api.example.com/"}
	assert.Equal(t, "https://api.example.com/webhooks/provider", cfg.WebhookURL())
	assert.Equal(t, "https://api.example.com/assets", cfg.AssetsBaseURL())
}

func TestConfig_String(t *testing.T) {
	cfg := &Config{
		Port:             8080,
		PublicBaseURL:    "https://api.example.com",
		WebhookSecret:    "whsec-secret",
		RunPodAPIKey:     "secret-key",
		RunPodEndpointID: "endpoint-123",
		ProviderOrder:    []string{"runpod"},
		DatabaseURL:      "postgres://user:pw@db/videos",
		S3Bucket:         "bucket",
		S3Region:         "region",
		LogFormat:        "json",
		LogLevel:         "info",
	}

	str := cfg.String()

	// Should contain non-sensitive values
	assert.Contains(t, str, "8080")
	assert.Contains(t, str, "https://api.example.com")
	assert.Contains(t, str, "runpod")
	assert.Contains(t, str, "bucket")

	// Should NOT contain sensitive values
	assert.NotContains(t, str, "secret-key")
	assert.NotContains(t, str, "whsec-secret")
	assert.NotContains(t, str, "pw@db")
}

func TestConfig_NewLogger_JSON(t *testing.T) {
	cfg := &Config{
		LogFormat: "json",
		LogLevel:  "info",
	}

	logger := cfg.NewLogger()
	require.NotNil(t, logger)

	// Capture output to verify it's JSON
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	testLogger := slog.New(handler)
	testLogger.Info("test message")

	// Should have JSON structure
	assert.Contains(t, buf.String(), `"msg"`)
	assert.Contains(t, buf.String(), "test message")
}

func TestConfig_NewLogger_Text(t *testing.T) {
	cfg := &Config{
		LogFormat: "text",
		LogLevel:  "debug",
	}

	logger := cfg.NewLogger()
	require.NotNil(t, logger)
	assert.True(t, logger.Enabled(t.Context(), slog.LevelDebug))
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			PublicBaseURL:    "https://api.example.com",
			WebhookSecret:    "s",
			ProviderOrder:    []string{"runpod", "beam"},
			RunPodAPIKey:     "key",
			RunPodEndpointID: "endpoint",
		}
	}

	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("missing secret", func(t *testing.T) {
		cfg := valid()
		cfg.WebhookSecret = ""
		assert.ErrorIs(t, cfg.Validate(), ErrWebhookSecretRequired)
	})

	t.Run("no provider", func(t *testing.T) {
		cfg := valid()
		cfg.RunPodAPIKey = ""
		assert.ErrorIs(t, cfg.Validate(), ErrNoProviderConfigured)
	})
}
