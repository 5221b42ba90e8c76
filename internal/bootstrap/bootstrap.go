// Package bootstrap provides dependency initialization for the listing video API.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/maauso/listingvideo-api/internal/beam"
	"github.com/maauso/listingvideo-api/internal/config"
	"github.com/maauso/listingvideo-api/internal/download"
	"github.com/maauso/listingvideo-api/internal/generator"
	"github.com/maauso/listingvideo-api/internal/job"
	"github.com/maauso/listingvideo-api/internal/notify"
	"github.com/maauso/listingvideo-api/internal/pipeline"
	"github.com/maauso/listingvideo-api/internal/postgres"
	"github.com/maauso/listingvideo-api/internal/render"
	"github.com/maauso/listingvideo-api/internal/runpod"
	"github.com/maauso/listingvideo-api/internal/storage"
	"github.com/maauso/listingvideo-api/internal/webhook"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Service    *pipeline.Service
	Ingestor   *webhook.Ingestor
	Dispatcher *generator.Dispatcher
	Metrics    *generator.Metrics
	Repository job.Repository
	// AssetsDir is the local archive root to serve, empty when clips are
	// not archived on local disk.
	AssetsDir string

	closers []func()
}

// Close releases resources such as the database pool.
func (d *Dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// NewDependencies creates and initializes all dependencies for the application.
// ctx is the process lifetime; background work derives its values from it.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{}

	repo, err := initRepository(ctx, cfg, logger, deps)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.Repository = repo

	strategies, err := initStrategies(cfg, logger)
	if err != nil {
		deps.Close()
		return nil, err
	}

	deps.Metrics = generator.NewMetrics(generator.DefaultMetricsWindow)
	deps.Dispatcher = generator.NewDispatcher(strategies,
		generator.WithMaxRetries(cfg.DispatchRetries),
		generator.WithMetrics(deps.Metrics),
		generator.WithLogger(logger),
	)

	queue, err := initRenderQueue(ctx, cfg, logger)
	if err != nil {
		deps.Close()
		return nil, err
	}

	opts := []pipeline.Option{
		pipeline.WithNotifier(notify.NewHTTPSender(notify.WithLogger(logger))),
		pipeline.WithWebhookURL(cfg.WebhookURL()),
		pipeline.WithMaxConcurrentDispatch(cfg.MaxConcurrentDispatch),
		pipeline.WithTransitionSeconds(cfg.RenderTransitionSec),
		pipeline.WithLogger(logger),
		pipeline.WithBaseContext(ctx),
	}
	if cfg.ArchiveAssets {
		store, assetsDir, err := initStorage(ctx, cfg, logger)
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.AssetsDir = assetsDir
		opts = append(opts, pipeline.WithArchive(store, download.New(download.WithLogger(logger))))
	}
	deps.Service = pipeline.New(repo, deps.Dispatcher, queue, opts...)

	verifier := webhook.NewVerifier(cfg.WebhookSecret, webhook.WithTolerance(cfg.WebhookTolerance))
	deps.Ingestor = webhook.NewIngestor(verifier, deps.Service,
		webhook.WithWorkers(cfg.WebhookWorkers),
		webhook.WithQueueSize(cfg.WebhookQueueSize),
		webhook.WithLogger(logger),
	)

	logger.Info("dependencies initialized",
		slog.Any("providers", deps.Dispatcher.Strategies()),
		slog.Bool("archive_assets", cfg.ArchiveAssets),
	)
	return deps, nil
}

// initRepository selects Postgres when DATABASE_URL is set and the in-memory
// repository otherwise.
func initRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps *Dependencies) (job.Repository, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory repository")
		return job.NewMemoryRepository(), nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}
	deps.closers = append(deps.closers, pool.Close)

	repo := postgres.New(pool)
	if err := repo.Migrate(ctx); err != nil {
		return nil, err
	}
	logger.Info("postgres repository configured")
	return repo, nil
}

// initStrategies builds one strategy per enabled provider in PROVIDER_ORDER.
func initStrategies(cfg *config.Config, logger *slog.Logger) ([]generator.Strategy, error) {
	var strategies []generator.Strategy
	for _, name := range cfg.EnabledProviders() {
		switch name {
		case config.ProviderRunPod:
			client, err := runpod.NewClient(cfg.RunPodEndpointID, runpod.WithAPIKey(cfg.RunPodAPIKey))
			if err != nil {
				return nil, fmt.Errorf("create RunPod client: %w", err)
			}
			strategies = append(strategies, generator.NewRunPodStrategy(client, generator.WithRunPodSync(cfg.RunPodSync)))
			logger.Info("RunPod strategy configured",
				slog.String("endpoint_id", cfg.RunPodEndpointID),
				slog.Bool("sync", cfg.RunPodSync),
			)
		case config.ProviderBeam:
			client, err := beam.NewClient(cfg.BeamQueueURL, beam.WithToken(cfg.BeamToken))
			if err != nil {
				return nil, fmt.Errorf("create Beam client: %w", err)
			}
			strategies = append(strategies, generator.NewBeamStrategy(client, generator.WithBeamSync(cfg.BeamSync)))
			logger.Info("Beam strategy configured",
				slog.String("queue_url", cfg.BeamQueueURL),
				slog.Bool("sync", cfg.BeamSync),
			)
		}
	}
	if len(strategies) == 0 {
		return nil, config.ErrNoProviderConfigured
	}
	return strategies, nil
}

// initRenderQueue selects SQS when RENDER_QUEUE_URL is set and the in-memory
// queue otherwise.
func initRenderQueue(ctx context.Context, cfg *config.Config, logger *slog.Logger) (render.Queue, error) {
	if cfg.RenderQueueURL == "" {
		logger.Warn("RENDER_QUEUE_URL not set, render jobs are kept in memory")
		return render.NewMemoryQueue(logger), nil
	}

	awsCfg, err := loadAWSConfig(ctx, cfg, cfg.SQSRegion())
	if err != nil {
		return nil, err
	}
	queue, err := render.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.RenderQueueURL)
	if err != nil {
		return nil, fmt.Errorf("create render queue: %w", err)
	}
	logger.Info("SQS render queue configured", slog.String("queue_url", cfg.RenderQueueURL))
	return queue, nil
}

// initStorage creates the archive backend. The returned directory is set only
// for local disk storage.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, string, error) {
	if cfg.S3Enabled() {
		s3Store, err := storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, "", fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, "", nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir, cfg.AssetsBaseURL())
	if err != nil {
		return nil, "", fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", localStore.Root()),
	)
	return localStore, localStore.Root(), nil
}

func loadAWSConfig(ctx context.Context, cfg *config.Config, region string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	return awsCfg, nil
}
