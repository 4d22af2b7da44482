// Package main wires together the scan service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	geminianalyzer "github.com/probelab/sitescan/internal/analyzer/gemini"
	"github.com/probelab/sitescan/internal/api"
	"github.com/probelab/sitescan/internal/clock/system"
	"github.com/probelab/sitescan/internal/config"
	"github.com/probelab/sitescan/internal/dispatcher"
	"github.com/probelab/sitescan/internal/id/uuid"
	"github.com/probelab/sitescan/internal/janitor"
	"github.com/probelab/sitescan/internal/lifecycle"
	"github.com/probelab/sitescan/internal/logging"
	queueMemory "github.com/probelab/sitescan/internal/queue/memory"
	queuePubsub "github.com/probelab/sitescan/internal/queue/pubsub"
	chromedprenderer "github.com/probelab/sitescan/internal/renderer/chromedp"
	staticrenderer "github.com/probelab/sitescan/internal/renderer/static"
	"github.com/probelab/sitescan/internal/scan"
	storageGCS "github.com/probelab/sitescan/internal/storage/gcs"
	storageMemory "github.com/probelab/sitescan/internal/storage/memory"
	storagePostgres "github.com/probelab/sitescan/internal/storage/postgres"
	"github.com/probelab/sitescan/internal/visited/memory"
	visitedRedis "github.com/probelab/sitescan/internal/visited/redis"
	"github.com/probelab/sitescan/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, stop, cfg, logger); err != nil {
		logger.Error("service exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, stop context.CancelFunc, cfg config.Config, logger *zap.Logger) error {
	store, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	visited, err := buildVisited(cfg, logger)
	if err != nil {
		return err
	}

	queue, closeQueue, err := buildQueue(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeQueue()

	screenshots, err := buildScreenshotStore(ctx, cfg)
	if err != nil {
		return err
	}

	renderer := buildRenderer(cfg, logger)
	if closer, ok := renderer.(interface{ Close() }); ok {
		defer closer.Close()
	}

	analyzer := geminianalyzer.New(geminianalyzer.Config{
		APIKey:   cfg.Analyzer.APIKey,
		Model:    cfg.Analyzer.Model,
		Endpoint: cfg.Analyzer.Endpoint,
	}, logger.Named("analyzer"))

	clock := system.New()
	idGen := uuid.New()
	lc := lifecycle.New(store, queue, visited, clock, logger.Named("lifecycle"))

	workerCfg := worker.Config{
		MaxDepth:        cfg.Crawl.MaxDepth,
		MaxPages:        cfg.Crawl.MaxPages,
		RenderTimeout:   cfg.Crawl.RenderTimeout(),
		AnalysisTimeout: cfg.Crawl.AnalysisTimeout(),
	}
	var workers []*worker.Worker
	for i := 0; i < cfg.Crawl.Concurrency; i++ {
		workers = append(workers, worker.New(
			queue,
			store,
			visited,
			renderer,
			analyzer,
			screenshots,
			lc,
			clock,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, workers)

	apiServer := api.NewServer(store, dispatch, lc, idGen, clock, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", cfg.Crawl.Concurrency))
		dispatch.Run(ctx)
	}()

	if cfg.Janitor.Enabled {
		jan := janitor.New(store, lc, clock, janitor.Config{
			Interval:   time.Duration(cfg.Janitor.IntervalSeconds) * time.Second,
			StuckAfter: time.Duration(cfg.Janitor.StuckAfterSeconds) * time.Second,
		}, logger.Named("janitor"))
		go jan.Run(ctx)
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}

func buildStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (scan.Store, func(), error) {
	if cfg.DB.DSN == "" {
		logger.Info("using in-memory scan store")
		return storageMemory.NewScanStore(), func() {}, nil
	}
	store, err := storagePostgres.NewScanStore(ctx, storagePostgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	return store, store.Close, nil
}

func buildVisited(cfg config.Config, logger *zap.Logger) (scan.VisitedStore, error) {
	if cfg.Visited.RedisAddress == "" {
		logger.Info("using in-memory visited set")
		return memory.New(cfg.Visited.TTL()), nil
	}
	store, err := visitedRedis.New(visitedRedis.Config{
		Address:  cfg.Visited.RedisAddress,
		Password: cfg.Visited.RedisPassword,
		DB:       cfg.Visited.RedisDB,
		TTL:      cfg.Visited.TTL(),
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return store, nil
}

func buildQueue(ctx context.Context, cfg config.Config, logger *zap.Logger) (scan.Queue, func(), error) {
	if cfg.PubSub.ProjectID == "" {
		logger.Info("using in-memory task queue", zap.Int("depth", cfg.Crawl.QueueDepth))
		q := queueMemory.NewQueue(cfg.Crawl.QueueDepth)
		return q, q.Close, nil
	}
	q, err := queuePubsub.New(ctx, queuePubsub.Config{
		ProjectID:      cfg.PubSub.ProjectID,
		TopicID:        cfg.PubSub.TopicID,
		SubscriptionID: cfg.PubSub.SubscriptionID,
		Buffer:         cfg.Crawl.QueueDepth,
	}, logger.Named("queue"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect pubsub: %w", err)
	}
	// Receive blocks for the life of the context, so the receiver gets
	// its own goroutine; run() continues on to workers and the server.
	go func() {
		if err := q.Start(ctx); err != nil {
			logger.Error("pubsub receiver stopped", zap.Error(err))
		}
	}()
	return q, func() { _ = q.Close() }, nil
}

func buildScreenshotStore(ctx context.Context, cfg config.Config) (scan.ScreenshotStore, error) {
	if cfg.Storage.Provider != "gcs" {
		return storageMemory.NewScreenshotStore(), nil
	}
	client, err := gcstorage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return storageGCS.New(client, storageGCS.Config{
		Bucket: cfg.Storage.GCSBucket,
		Prefix: cfg.Storage.Prefix,
	})
}

func buildRenderer(cfg config.Config, logger *zap.Logger) scan.Renderer {
	r, err := chromedprenderer.New(chromedprenderer.Config{
		UserAgent:         cfg.Crawl.UserAgent,
		NavigationTimeout: cfg.Crawl.RenderTimeout(),
	}, logger.Named("renderer"))
	if err == nil {
		return r
	}
	logger.Warn("headless renderer init failed, falling back to static fetch", zap.Error(err))
	static, err := staticrenderer.New(staticrenderer.Config{
		UserAgent:      cfg.Crawl.UserAgent,
		RequestTimeout: cfg.Crawl.RenderTimeout(),
	})
	if err != nil {
		logger.Fatal("static renderer init failed", zap.Error(err))
	}
	return static
}
