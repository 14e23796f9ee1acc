package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"cloud.google.com/go/storage"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"news_crawler/internal/api"
	"news_crawler/internal/assets"
	"news_crawler/internal/assets/gcs"
	"news_crawler/internal/assets/local"
	"news_crawler/internal/clicks"
	"news_crawler/internal/config"
	"news_crawler/internal/feed"
	"news_crawler/internal/fetcher"
	"news_crawler/internal/ingest"
	"news_crawler/internal/publisher"
	"news_crawler/internal/scheduler"
	"news_crawler/internal/seed"
	"news_crawler/internal/service"
	"news_crawler/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("crawler stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info("connected to database")

	// Initialize stores
	sourceStore := postgres.NewSourceStore(db)
	postStore := postgres.NewPostStore(db)
	categoryStore := postgres.NewCategoryStore(db)
	statStore := postgres.NewCategoryStatStore(db)
	assetStore := postgres.NewAssetStore(db)
	txManager := postgres.NewTransactionManager(db)

	if cfg.Seed.OnStartup {
		seeder := seed.NewSeeder(categoryStore, sourceStore, cfg.Seed, logger)
		if _, err := seeder.Seed(ctx); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	blobs, closeBlobs, err := newBlobStore(ctx, cfg.Assets)
	if err != nil {
		return err
	}
	defer closeBlobs()

	feedFetcher := fetcher.New(fetcher.Config{
		Timeout:        cfg.Fetch.Timeout,
		MaxRedirects:   cfg.Fetch.MaxRedirects,
		UserAgent:      cfg.Fetch.UserAgent,
		MaxRetries:     *cfg.Fetch.Retry.MaxRetries,
		InitialBackoff: cfg.Fetch.Retry.InitialBackoff,
		MaxBackoff:     cfg.Fetch.Retry.MaxBackoff,
	}, logger)

	// The ingestor retries on its own schedule, so image downloads are single-shot.
	imageFetcher := fetcher.New(fetcher.Config{
		Timeout:      cfg.Images.Timeout,
		MaxRedirects: cfg.Fetch.MaxRedirects,
		UserAgent:    cfg.Fetch.UserAgent,
		MaxBytes:     cfg.Images.MaxBytes,
	}, logger)

	healthProber := fetcher.New(fetcher.Config{
		Timeout:      cfg.Health.Timeout,
		MaxRedirects: cfg.Fetch.MaxRedirects,
		UserAgent:    cfg.Fetch.UserAgent,
	}, logger)

	imageIngestor := ingest.NewImageIngestor(
		imageFetcher,
		assets.NewStore(blobs, assetStore, cfg.Assets.PublicBaseURL),
		ingest.Config{Attempts: cfg.Images.Attempts, RetryDelay: cfg.Images.RetryDelay},
		logger,
	)

	var pub service.Publisher
	if cfg.RabbitMQ.Enabled {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			return fmt.Errorf("connect to rabbitmq: %w", err)
		}
		defer rabbitMQ.Close()
		pub = rabbitMQ
	}

	crawler := service.NewCrawlerService(
		sourceStore,
		postStore,
		categoryStore,
		txManager,
		feedFetcher,
		feed.NewParser(),
		imageIngestor,
		pub,
		logger,
		service.CrawlerConfig{
			FirstCrawlCap: cfg.Crawl.FirstCrawlCap,
			RequireImage:  *cfg.Images.RequireImage,
		},
	)
	stats := service.NewStatsService(postStore, categoryStore, statStore, logger, service.StatsConfig{
		ClickWindow: cfg.Stats.ClickWindow,
		ClickFloor:  cfg.Stats.ClickFloor,
	})
	health := service.NewHealthService(sourceStore, healthProber, logger, service.HealthConfig{
		Timeout:   cfg.Health.Timeout,
		MaxErrors: cfg.Health.MaxErrors,
	})

	sched := scheduler.NewScheduler(cfg.Schedule.JobTimeout, logger)
	jobs := []struct {
		name     string
		schedule config.JobSchedule
		job      scheduler.Job
	}{
		{service.JobCrawl, cfg.Schedule.Crawl, service.NewCrawlJob(crawler)},
		{service.JobStats, cfg.Schedule.Stats, service.NewStatsJob(stats)},
		{service.JobHealth, cfg.Schedule.Health, service.NewHealthJob(health)},
	}
	for _, j := range jobs {
		if err := sched.Register(j.name, j.schedule.Spec, j.job); err != nil {
			return err
		}
	}

	recorder := clicks.NewRecorder(postStore, clicks.Config{
		BufferCapacity: cfg.Clicks.BufferCapacity,
		FlushInterval:  cfg.Clicks.FlushInterval,
		FlushThreshold: cfg.Clicks.FlushThreshold,
	}, logger)
	recorder.Start()
	defer recorder.Stop()

	handler := api.NewHandler(postStore, categoryStore, statStore, sourceStore, assetStore, recorder, sched, logger)
	var static *api.StaticAssets
	if cfg.Assets.Backend == "local" {
		static = &api.StaticAssets{URLPath: cfg.Assets.ServePath, Dir: cfg.Assets.BaseDir}
	}
	server := api.NewServer(cfg.HTTP, handler, static, logger)

	logger.Info("starting news crawler",
		"addr", cfg.HTTP.Addr,
		"crawl_schedule", cfg.Schedule.Crawl.Spec,
		"stats_schedule", cfg.Schedule.Stats.Spec,
		"health_schedule", cfg.Schedule.Health.Spec,
		"assets_backend", cfg.Assets.Backend,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Start(gctx)
	})
	g.Go(func() error {
		return server.Run(gctx)
	})

	for _, j := range jobs {
		if !j.schedule.RunOnStart {
			continue
		}
		name := j.name
		g.Go(func() error {
			if err := sched.RunNow(gctx, name); err != nil {
				logger.Error("startup job failed", "job", name, "error", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func newBlobStore(ctx context.Context, cfg config.AssetsConfig) (assets.BlobStore, func(), error) {
	switch cfg.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create gcs client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Bucket})
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return store, func() { client.Close() }, nil
	default:
		store, err := local.New(local.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
