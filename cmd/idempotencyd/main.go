package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/VenkatGGG/idempotency-coordinator/internal/api"
	"github.com/VenkatGGG/idempotency-coordinator/internal/config"
	"github.com/VenkatGGG/idempotency-coordinator/internal/idempotency"
	"github.com/VenkatGGG/idempotency-coordinator/internal/logging"
	"github.com/VenkatGGG/idempotency-coordinator/internal/order"
)

func main() {
	cfg := config.Load()
	logger := logging.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("idempotencyd failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	orders, closeOrders, err := openOrders(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeOrders()

	coordinator := idempotency.NewCoordinator(store,
		idempotency.WithLogger(logger),
		idempotency.WithMetrics(idempotency.NewMetrics(registry)),
		idempotency.WithReleaseTimeout(cfg.IdempotencyReleaseTimeout),
	)
	server := api.NewServer(orders, coordinator,
		api.WithLogger(logger),
		api.WithRegistry(registry),
		api.WithIdempotencyDefaults(idempotency.Options{
			HeaderName:   cfg.IdempotencyHeader,
			TTL:          cfg.IdempotencyTTL,
			LockTTL:      cfg.IdempotencyLockTTL,
			ConflictWait: cfg.IdempotencyConflictWait,
		}),
		api.WithAPIKey(cfg.APIKey),
		api.WithRateLimit(cfg.RateLimitPerMinute, time.Minute),
	)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      server.Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("idempotencyd listening", slog.String("addr", cfg.HTTPAddr), slog.String("store", cfg.Store))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (idempotency.Store, func(), error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory idempotency store; keys are not shared across instances")
		return idempotency.NewInMemoryStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}
	return idempotency.NewRedisStore(client), func() { _ = client.Close() }, nil
}

func openOrders(ctx context.Context, cfg config.Config, logger *slog.Logger) (order.Service, func(), error) {
	if cfg.PostgresDSN == "" {
		logger.Info("POSTGRES_DSN not set, keeping orders in memory")
		return order.NewInMemoryService(), func() {}, nil
	}
	svc, err := order.NewPostgresService(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	return svc, svc.Close, nil
}
