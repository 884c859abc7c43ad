// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"mediaflow/internal/config"
	"mediaflow/internal/domain/ports/adapter"
	"mediaflow/internal/infra/adapters/caption"
	"mediaflow/internal/infra/adapters/distribution"
	"mediaflow/internal/infra/adapters/objectstore"
	"mediaflow/internal/infra/adapters/provider"
	"mediaflow/internal/infra/adapters/telegram"
	"mediaflow/internal/infra/adapters/transform"
	apiv1 "mediaflow/internal/infra/api/apiv1"
	httpapi "mediaflow/internal/infra/http"
	"mediaflow/internal/infra/lock"
	"mediaflow/internal/infra/logging"
	"mediaflow/internal/infra/metrics"
	red "mediaflow/internal/infra/redis"
	"mediaflow/internal/infra/sched"
	"mediaflow/internal/infra/security"
	"mediaflow/internal/infra/worker"
	"mediaflow/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "console logs and verbose errors")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("mediaflow stopped")
	}
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().Str("version", version).Bool("dev", cfg.Runtime.Dev).Msg("starting mediaflow")

	// ---- Redis (optional unless it backs the publish locks) ----
	var redisClient *red.Client
	var cacheClient red.RedisClient
	if cfg.Redis.URL != "" {
		c, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer c.Close()
		redisClient, cacheClient = c, c
	}

	// ---- Store ----
	st, err := openStores(ctx, cfg, cacheClient, logger)
	if err != nil {
		return err
	}
	defer st.close()

	var (
		batchCache adapter.BatchCache
		cooldown   adapter.Cooldown = lock.NewStoreCooldown(st.locks)
		locker     adapter.Locker   = lock.NewStoreLocker(st.locks)
	)
	if redisClient != nil {
		batchCache = red.NewBatchCache(redisClient, cfg.Batch.CacheTTL)
		cooldown = red.NewCooldown(redisClient)
	}
	if cfg.Publish.LockBackend == "redis" {
		locker = red.NewLocker(redisClient)
	}

	// ---- Adapters ----
	storage, err := objectstore.NewGCS(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("object storage: %w", err)
	}
	defer storage.Close()

	queue, err := provider.NewQueueProvider(cfg.Provider, logger)
	if err != nil {
		return fmt.Errorf("queue provider: %w", err)
	}
	providers := map[string]adapter.GenerationProvider{"queue": queue}
	if cfg.Veo.APIKey != "" {
		veo, err := provider.NewVeoProvider(ctx, cfg.Veo, logger)
		if err != nil {
			return fmt.Errorf("veo provider: %w", err)
		}
		providers["veo"] = veo
	}
	gen := provider.NewLimited(provider.NewRouter("queue", providers), cfg.Worker.Concurrency)

	ffmpeg := transform.NewFFmpeg(cfg.Media.FFmpegPath, 0, logger)
	if err := ffmpeg.AssertReady(); err != nil {
		logger.Warn().Err(err).Msg("local transform steps will fail")
	}

	dist, err := distribution.NewClient(cfg.Distribution, logger)
	if err != nil {
		return fmt.Errorf("distribution: %w", err)
	}

	var captions adapter.CaptionWriter
	if cfg.Caption.OpenAIKey != "" {
		w, err := caption.NewWriter(cfg.Caption, logger)
		if err != nil {
			return fmt.Errorf("caption writer: %w", err)
		}
		captions = w
	}

	var notifier adapter.BatchNotifier = telegram.NewNoopNotifier(logger)
	if cfg.Telegram.Token != "" {
		n, err := telegram.NewBatchNotifier(cfg.Telegram, logger)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		notifier = n
	}

	signer, err := security.NewWebhookSigner(cfg.Provider.WebhookSecret, cfg.Provider.WebhookBaseURL, cfg.Provider.WebhookTTL)
	if err != nil {
		return fmt.Errorf("webhook signer: %w", err)
	}

	// ---- Worker pool ----
	pool := worker.NewPool(cfg.Worker.Concurrency, cfg.Worker.QueueSize, logger)
	poolCtx, cancelPool := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelPool()
	pool.Start(poolCtx)

	// ---- Use cases ----
	sources := usecase.NewSourceResolver(storage)
	exec := usecase.NewStepExecutor(gen, ffmpeg, storage, signer, cfg.Media.WorkDir, logger)
	tracker := usecase.NewBatchTracker(st.batches, batchCache, notifier, logger)
	runner := usecase.NewPipelineRunner(st.pjobs, exec, tracker, logger)
	router := usecase.NewCompletionRouter(st.pjobs, st.jobs, gen, exec, runner, tracker, pool, logger)
	jobsUC := usecase.NewJobUseCase(st.pjobs, st.jobs, st.recipients, sources, exec, runner, pool, logger)
	batchUC := usecase.NewBatchCoordinator(st.tx, st.batches, st.pjobs, st.jobs, st.recipients, sources, runner, pool, batchCache, logger)
	recoveryUC := usecase.NewRecoveryUseCase(st.pjobs, st.jobs, gen, router, runner, cooldown, usecase.RecoveryOptions{
		StuckAfter:  cfg.Recovery.StuckAfter,
		MinInterval: cfg.Recovery.MinInterval,
		MaxAttempts: cfg.Recovery.MaxAttempts,
		BatchSize:   cfg.Recovery.BatchSize,
	}, logger)
	publishUC := usecase.NewPublishUseCase(st.pjobs, st.batches, st.recipients, st.posts, st.idem, locker, storage, dist, captions,
		usecase.PublishOptions{
			LockTTL:        cfg.Publish.LockTTL,
			IdempotencyTTL: cfg.Publish.IdempotencyTTL,
			Concurrency:    cfg.Publish.Concurrency,
		}, logger)

	// ---- Background loops ----
	go func() { _ = sched.NewRecoveryWorker(recoveryUC, cfg.Recovery.Interval, logger).Run(ctx) }()
	go func() {
		_ = sched.NewQueueDispatcher(jobsUC, time.Minute, cfg.Worker.RequeueAfter, cfg.Worker.QueueSize/2, logger).Run(ctx)
	}()
	go func() {
		t := time.NewTicker(15 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				st.stats()
			}
		}
	}()

	// ---- HTTP ----
	checks := map[string]httpapi.HealthCheck{"database": st.ping}
	if redisClient != nil {
		checks["redis"] = redisClient.Ping
	}
	api := apiv1.NewServer(apiv1.Deps{
		Jobs:     jobsUC,
		Batches:  batchUC,
		Webhooks: router,
		Recovery: recoveryUC,
		Publish:  publishUC,
		Tokens:   signer,
	}, logger)
	srv := httpapi.NewServer(cfg.HTTP, api, checks, logger)
	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error().Err(err).Msg("http shutdown")
	}
	drained := make(chan struct{})
	go func() { pool.Stop(); close(drained) }()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("cancelling tasks still running")
		cancelPool()
		<-drained
	}
	logger.Info().Msg("bye")
	return nil
}
