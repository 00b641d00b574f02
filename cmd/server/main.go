package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kirapay/internal/application/services"
	"kirapay/internal/breaker"
	"kirapay/internal/config"
	"kirapay/internal/domain"
	"kirapay/internal/events"
	"kirapay/internal/idempotency"
	"kirapay/internal/infrastructure/kv"
	"kirapay/internal/infrastructure/persistence/postgres"
	"kirapay/internal/infrastructure/storage"
	"kirapay/internal/interfaces/rest/handlers"
	"kirapay/internal/provider"
	"kirapay/internal/receipt"
	"kirapay/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting kirapay service",
		"port", cfg.Server.Port,
		"log_level", cfg.Logger.Level,
	)

	ctx := context.Background()
	db, err := postgres.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store, err := kv.NewRedisStore(ctx, kv.Config{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		MaxRetries:  cfg.Redis.MaxRetries,
		DialTimeout: cfg.Redis.DialTimeout,
		Timeout:     cfg.Redis.Timeout,
		Prefix:      cfg.Redis.Prefix,
	})
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}

	artifacts, err := storage.NewS3Client(storage.S3Config{
		Endpoint:        cfg.Storage.Endpoint,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		Bucket:          cfg.Storage.Bucket,
		UseSSL:          cfg.Storage.UseSSL,
		Region:          cfg.Storage.Region,
		Prefix:          cfg.Storage.Prefix,
	})
	if err != nil {
		logger.Error("failed to set up artifact storage", "error", err)
		os.Exit(1)
	}

	paymentRepo := postgres.NewPaymentRepository(db)
	contractRepo := postgres.NewContractRepository(db)
	jobRepo := postgres.NewJobRepository(db)

	breakers := breaker.NewRegistry()
	breakers.Register(string(domain.MethodTelebirr), breakerSettings(cfg.Providers.Telebirr), logger)
	breakers.Register(string(domain.MethodCBEBirr), breakerSettings(cfg.Providers.CBEBirr), logger)
	breakers.Register(string(domain.MethodChapa), breakerSettings(cfg.Providers.Chapa), logger)

	providers := provider.NewRegistry(
		provider.NewTelebirrClient(cfg.Providers.Telebirr.BaseURL, cfg.Providers.Telebirr.CallTimeout),
		provider.NewCBEBirrClient(cfg.Providers.CBEBirr.BaseURL, cfg.Providers.CBEBirr.CallTimeout),
		provider.NewChapaClient(cfg.Providers.Chapa.BaseURL, cfg.Providers.Chapa.CallTimeout),
	)

	guard := idempotency.NewGuard(store, idempotency.Config{
		InFlightTTL:  cfg.Idempotency.InFlightTTL,
		ResolvedTTL:  cfg.Idempotency.ResolvedTTL,
		PollInterval: cfg.Idempotency.PollInterval,
		WaitBudget:   cfg.Idempotency.WaitBudget,
	}, logger)

	sequence := receipt.NewSequence(store, cfg.Payment.ReceiptPrefix)

	bus := events.NewBus(logger)
	bus.Subscribe(domain.EventPaymentFailed, func(event domain.Event) error {
		logger.Warn("payment failed", "payload", event.Payload)
		return nil
	})
	bus.Subscribe(domain.EventJobDeadLettered, func(event domain.Event) error {
		logger.Error("job dead-lettered", "payload", event.Payload)
		return nil
	})

	queue := worker.NewQueue(cfg.Worker.QueueSize, jobRepo, logger)

	paymentService := services.NewPaymentService(
		paymentRepo,
		contractRepo,
		guard,
		sequence,
		providers,
		breakers,
		queue,
		bus,
		logger,
		cfg.Payment.ToleranceRatio,
		cfg.Worker.MaxAttempts,
	)

	scanner := services.NewOverdueScanner(paymentRepo, contractRepo, bus, logger, services.OverdueConfig{
		GraceDays:          cfg.Overdue.GraceDays,
		BatchSize:          cfg.Overdue.BatchSize,
		ReminderMilestones: cfg.Overdue.ReminderMilestones,
	})

	pool := worker.NewPool(queue, jobRepo, bus, logger, cfg.Worker.Concurrency, cfg.Worker.BaseBackoff)
	jobHandlers := worker.NewHandlers(
		paymentService,
		scanner,
		paymentRepo,
		jobRepo,
		receipt.NewRenderer(),
		artifacts,
		store,
		bus,
		logger,
	)
	jobHandlers.RegisterAll(pool)

	scheduler := worker.NewOverdueScheduler(queue, cfg.Worker.OverdueEvery, cfg.Overdue.DryRun, logger)

	h := handlers.NewHandlers(paymentService, jobRepo, store, logger)
	router := h.InitRouter(cfg.Server.ReadTimeout, logger)

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	if err := queue.Recover(workerCtx); err != nil {
		logger.Error("failed to recover persisted jobs", "error", err)
	}
	pool.Start(workerCtx)
	go scheduler.Start(workerCtx)

	go func() {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	cancelWorkers()
	pool.Stop()
	bus.Drain()

	logger.Info("server exited")
}

func breakerSettings(cfg config.ProviderConfig) breaker.Settings {
	return breaker.Settings{
		FailureThreshold: cfg.FailureThreshold,
		SuccessThreshold: cfg.SuccessThreshold,
		CallTimeout:      cfg.CallTimeout,
		ResetTimeout:     cfg.ResetTimeout,
	}
}
