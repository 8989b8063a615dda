package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/audit"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/chain"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/config"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/infra"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/logging"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/metrics"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/routes"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		if err := infra.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
			logger.Error("apply migrations", "error", err)
			os.Exit(1)
		}
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory repositories")
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	} else {
		logger.Warn("REDIS_URL not set, idempotency and rate limiting disabled")
	}

	var sink audit.Sink
	var kafkaSink *audit.KafkaSink
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err = audit.NewKafkaSink(cfg.KafkaBrokers, cfg.AuditTopic)
		if err != nil {
			logger.Error("connect kafka", "error", err)
			os.Exit(1)
		}
		sink = kafkaSink
	} else {
		sink = audit.NewLogSink(logger)
	}

	recorder := audit.NewRecorder(sink, 256, logger)
	auditCtx, stopAudit := context.WithCancel(context.Background())
	auditDone := make(chan struct{})
	go func() {
		defer close(auditDone)
		_ = recorder.Run(auditCtx)
	}()

	srv, err := server.New(routes.Deps{
		Cfg:      cfg,
		DB:       db,
		Cache:    cache,
		Logger:   logger,
		Provider: chain.NewSimulatedProvider(cfg.DepositMinConfirmations),
		Metrics:  metrics.New(),
		Audit:    recorder,
	})
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	// Stop accepting audit events and drain whatever is buffered before the
	// sink goes away.
	stopAudit()
	<-auditDone
	if kafkaSink != nil {
		kafkaSink.Close()
	}

	logger.Info("server exited cleanly")
}
