// Package main runs the course catalog service.
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

	"go.uber.org/zap"

	"course-catalog/internal/api"
	"course-catalog/internal/catalog"
	"course-catalog/internal/clock/system"
	"course-catalog/internal/config"
	"course-catalog/internal/enrich"
	collyfetcher "course-catalog/internal/fetcher/colly"
	"course-catalog/internal/id/uuid"
	"course-catalog/internal/logging"
	"course-catalog/internal/metrics"
	"course-catalog/internal/policy/ratelimit"
	pubsubpublisher "course-catalog/internal/publisher/pubsub"
	queuememory "course-catalog/internal/queue/memory"
	storagememory "course-catalog/internal/storage/memory"
	"course-catalog/internal/store/jsonfile"
	"course-catalog/internal/tasks"
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
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	store, err := jsonfile.Open(cfg.Store.Path, clock, logging.Component(logger, "store"))
	if err != nil {
		logger.Fatal("open course store failed", zap.Error(err))
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.FetchTimeout(),
	})
	modelClient := enrich.NewClient(enrich.ClientConfig{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.Model,
		Timeout: cfg.ModelTimeout(),
	})
	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.Enrich.RateLimitRPM,
	})
	enricher := enrich.NewEnricher(
		fetcher,
		modelClient,
		limiter,
		logging.Component(logger, "enrich"),
		enrich.Config{
			ContextChars: cfg.OpenAI.ContextChars,
			MaxRetries:   cfg.OpenAI.MaxRetries,
			RequirePage:  cfg.Enrich.RequirePage,
		},
	)

	var publisher catalog.Publisher
	if cfg.PubSub.ProjectID != "" {
		pub, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Warn("pubsub publisher init failed, events disabled", zap.Error(err))
		} else {
			defer func() {
				_ = pub.Close()
			}()
			publisher = pub
		}
	}

	queue := queuememory.NewQueue(cfg.Tasks.QueueDepth)
	runner := tasks.New(
		store,
		storagememory.NewTaskStore(clock),
		queue,
		enricher,
		publisher,
		clock,
		uuid.New(),
		logging.Component(logger, "tasks"),
		tasks.Config{
			Workers:    cfg.Tasks.Workers,
			ExportPath: cfg.Store.ExportPath,
			Topic:      cfg.PubSub.Topic,
		},
	)

	apiServer := api.NewServer(store, runner, logging.Component(logger, "api"), api.Config{
		WaitTimeout: cfg.TaskWaitTimeout(),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("task runner started", zap.Int("workers", cfg.Tasks.Workers))
		runner.Run(ctx)
	}()

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
	queue.Close()
	logger.Info("shutdown complete")
}
