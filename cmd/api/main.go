package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/josh-kwaku/checkout-transactions/internal/auth"
	"github.com/josh-kwaku/checkout-transactions/internal/client"
	"github.com/josh-kwaku/checkout-transactions/internal/config"
	"github.com/josh-kwaku/checkout-transactions/internal/handler"
	"github.com/josh-kwaku/checkout-transactions/internal/lock"
	"github.com/josh-kwaku/checkout-transactions/internal/logging"
	"github.com/josh-kwaku/checkout-transactions/internal/metrics"
	"github.com/josh-kwaku/checkout-transactions/internal/middleware"
	"github.com/josh-kwaku/checkout-transactions/internal/projection"
	"github.com/josh-kwaku/checkout-transactions/internal/repository"
	"github.com/josh-kwaku/checkout-transactions/internal/service/transaction"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("checkout-transactions", cfg.LogLevel, cfg.AppEnv)

	db, err := connectDB(cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := connectRedis(cfg.RedisURL)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	vault, err := auth.NewVault(cfg.EmailEncryptionKey)
	if err != nil {
		slog.Error("failed to build email vault", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(reg)

	events := repository.NewEventRepository(db)
	idempotency := repository.NewIdempotencyRepository(db)
	projector := projection.NewProjector(
		events,
		repository.NewViewRepository(db),
		repository.NewCheckpointRepository(db),
		recorder,
		logger.With("component", "projector"),
		cfg.ProjectionPollInterval,
		cfg.ProjectionBatchSize,
	)
	guard := lock.NewGuard(lock.NewRedisStore(rdb, "checkout:"), cfg.LockTTL, cfg.LockWait, recorder)

	transactions := transaction.NewService(
		events,
		guard,
		projector,
		client.NewNodeClient(cfg.NodeURL, cfg.UpstreamTimeout),
		client.NewGatewayClient(cfg.GatewayURL, cfg.CallbackURL, cfg.UpstreamTimeout),
		vault,
		recorder,
		time.Now,
		cfg,
	)

	txHandler := handler.NewTransactionHandler(transactions, cfg.SessionTokenSecret, cfg.SessionTokenTTL)
	opsHandler := handler.NewOperationsHandler(transactions, vault)
	webhookHandler := handler.NewWebhookHandler(transactions, cfg.WebhookSecret)
	healthHandler := handler.NewHealthHandler(map[string]handler.Check{
		"database": func(ctx context.Context) error { return repository.Ping(ctx, db) },
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	})

	session := middleware.SessionAuth(cfg.SessionTokenSecret)
	idempotent := middleware.Idempotency(idempotency, cfg.IdempotencyTTL)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler.Liveness)
	mux.HandleFunc("GET /ready", healthHandler.Readiness)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	mux.Handle("POST /api/v1/transactions", idempotent(http.HandlerFunc(txHandler.Create)))
	mux.Handle("GET /api/v1/transactions/{id}", session(http.HandlerFunc(txHandler.Get)))
	mux.Handle("DELETE /api/v1/transactions/{id}", session(http.HandlerFunc(txHandler.Cancel)))
	mux.Handle("POST /api/v1/transactions/{id}/auth-requests", session(idempotent(http.HandlerFunc(txHandler.RequestAuthorization))))
	mux.HandleFunc("POST /api/v1/webhooks/authorization-outcomes", webhookHandler.ReceiveAuthorizationOutcome)

	mux.HandleFunc("POST /internal/v1/transactions/{id}/closure-requests", opsHandler.RequestClosure)
	mux.HandleFunc("POST /internal/v1/transactions/{id}/closure", opsHandler.Close)
	mux.HandleFunc("POST /internal/v1/transactions/{id}/user-receipts", opsHandler.AddUserReceipt)
	mux.HandleFunc("POST /internal/v1/transactions/{id}/refund-requests", opsHandler.RequestRefund)
	mux.HandleFunc("POST /internal/v1/transactions/{id}/refund", opsHandler.Refund)

	var h http.Handler = mux
	h = middleware.Recovery(h)
	h = middleware.Logging(h)
	h = middleware.Tracing(h)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	var bg sync.WaitGroup
	bg.Add(2)
	go func() {
		defer bg.Done()
		projector.Run(bgCtx)
	}()
	go func() {
		defer bg.Done()
		cleanIdempotencyCache(bgCtx, idempotency, cfg.IdempotencyCleanupEvery)
	}()

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	stopBackground()
	bg.Wait()
	slog.Info("server stopped")
}

func connectDB(cfg *config.Config) (*sql.DB, error) {
	pool := repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	}

	var err error
	for i := range 30 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		db, openErr := repository.NewPostgresDB(ctx, cfg.DatabaseURL, pool)
		cancel()
		if openErr == nil {
			return db, nil
		}
		err = openErr
		slog.Info("waiting for database", "attempt", i+1)
		time.Sleep(time.Second)
	}

	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", err)
}

func connectRedis(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("connectRedis: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connectRedis: ping: %w", err)
	}
	return rdb, nil
}

func cleanIdempotencyCache(ctx context.Context, repo *repository.IdempotencyRepository, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.CleanExpired(ctx)
			if err != nil {
				slog.Warn("idempotency cache cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("idempotency cache cleaned", "removed", n)
			}
		}
	}
}
