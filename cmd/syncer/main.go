package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"crm_syncer/internal/config"
	"crm_syncer/internal/credential"
	"crm_syncer/internal/fetcher"
	"crm_syncer/internal/metrics"
	"crm_syncer/internal/publisher"
	"crm_syncer/internal/scheduler"
	"crm_syncer/internal/service"
	"crm_syncer/internal/source/hubspot"
	"crm_syncer/internal/storage/postgres"
	"crm_syncer/internal/transform"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return 1
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("connected to database")

	rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
		URL:        cfg.RabbitMQ.URL,
		Exchange:   cfg.RabbitMQ.Exchange,
		RoutingKey: cfg.RabbitMQ.RoutingKey,
		QueueName:  cfg.RabbitMQ.QueueName,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		return 1
	}
	defer rabbitMQ.Close()

	cache, err := setupTokenCache(cfg.Redis, logger)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		return 1
	}
	defer cache.Close()

	txManager := postgres.NewTransactionManager(db)
	tenantStore := postgres.NewTenantStore(db, txManager)

	client := hubspot.New(hubspot.Config{
		BaseURL:      cfg.HubSpot.BaseURL,
		ClientID:     cfg.HubSpot.ClientID,
		ClientSecret: cfg.HubSpot.ClientSecret,
		Timeout:      cfg.HubSpot.Timeout,
	}, logger)

	credentials := credential.NewManager(client, cache, cfg.HubSpot.TokenExpiryMargin, logger)

	searcher := fetcher.New(client, credentials, fetcher.Config{
		MaxAttempts: cfg.HubSpot.Retry.MaxAttempts,
		BaseDelay:   cfg.HubSpot.Retry.BaseDelay,
	}, logger)

	syncService := service.NewSyncService(
		tenantStore,
		credentials,
		searcher,
		client,
		rabbitMQ,
		transform.Default(cfg.HubSpot.LookupConcurrency, logger),
		logger,
		cfg.Sync,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if cfg.Metrics.Addr != "" {
		metricsServer := metrics.NewServer(cfg.Metrics.Addr, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("metrics server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("starting crm syncer",
		"interval", cfg.Sync.Interval,
		"flush_threshold", cfg.Sync.FlushThreshold,
		"persist", cfg.Sync.PersistEnabled(),
	)

	sched := scheduler.NewScheduler(syncService, cfg.Sync.Interval, cfg.Sync.RunTimeout, logger)
	if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("sync finished with error", "error", err)
		return 1
	}

	return 0
}

type tokenCache interface {
	credential.Cache
	Close() error
}

func setupTokenCache(cfg config.RedisConfig, logger *slog.Logger) (tokenCache, error) {
	if cfg.Addr == "" {
		logger.Info("using in-memory token cache")
		return credential.NewMemoryCache(), nil
	}

	cache := credential.NewRedisCache(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cache.Ping(ctx); err != nil {
		_ = cache.Close()
		return nil, err
	}

	logger.Info("using redis token cache", "addr", cfg.Addr)
	return cache, nil
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
