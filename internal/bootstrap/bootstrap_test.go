package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/listingvideo-api/internal/config"
	"github.com/maauso/listingvideo-api/internal/job"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		PublicBaseURL:         "https://api.example.com",
		WebhookSecret:         "whsec",
		WebhookWorkers:        2,
		WebhookQueueSize:      8,
		RunPodAPIKey:          "rp-key",
		RunPodEndpointID:      "rp-endpoint",
		BeamToken:             "beam-token",
		BeamQueueURL:          "https://app.beam.cloud/taskqueue/listing-video/latest",
		ProviderOrder:         []string{"beam", "runpod"},
		DispatchRetries:       1,
		MaxConcurrentDispatch: 4,
		RenderTransitionSec:   0.5,
		TempDir:               t.TempDir(),
	}
}

func TestNewDependencies_InMemory(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	deps, err := NewDependencies(context.Background(), testConfig(t), logger)
	require.NoError(t, err)
	defer deps.Close()

	assert.NotNil(t, deps.Service)
	assert.NotNil(t, deps.Ingestor)
	assert.IsType(t, &job.MemoryRepository{}, deps.Repository)
	assert.Equal(t, []string{"beam", "runpod"}, deps.Dispatcher.Strategies())
	assert.Empty(t, deps.AssetsDir)
}

func TestNewDependencies_LocalArchive(t *testing.T) {
	cfg := testConfig(t)
	cfg.ArchiveAssets = true
	cfg.ProviderOrder = []string{"runpod"}

	deps, err := NewDependencies(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer deps.Close()

	assert.Equal(t, cfg.TempDir, deps.AssetsDir)
	assert.Equal(t, []string{"runpod"}, deps.Dispatcher.Strategies())
}

func TestNewDependencies_NoProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.RunPodAPIKey = ""
	cfg.BeamToken = ""

	_, err := NewDependencies(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorIs(t, err, config.ErrNoProviderConfigured)
}
