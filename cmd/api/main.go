package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"payouts.hh/internal/api"
	"payouts.hh/internal/config"
	"payouts.hh/internal/fee"
	"payouts.hh/internal/logging"
	"payouts.hh/internal/metrics"
	"payouts.hh/internal/pixkey"
	"payouts.hh/internal/service"
	"payouts.hh/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	policy, err := cfg.FeePolicy()
	if err != nil {
		logger.Fatal("fee policy", zap.Error(err))
	}
	calc, err := fee.NewCalculator(policy)
	if err != nil {
		logger.Fatal("fee policy", zap.Error(err))
	}

	ctx := context.Background()

	var (
		repo    service.Repository
		pixKeys pixkey.Directory
	)
	if cfg.InMemory {
		logger.Warn("running with in-memory storage")
		repo = store.NewMemory()
		pixKeys = pixkey.Static{}
	} else {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("db error", zap.Error(err))
		}
		defer pool.Close()
		repo = store.New(pool)
		pixKeys = pixkey.NewPostgres(pool)
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis url", zap.Error(err))
		}
		client := redis.NewClient(opts)
		defer func() { _ = client.Close() }()
		pixKeys = pixkey.NewCache(pixKeys, client, cfg.PixKeyCacheTTL, logger)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	svc := service.New(service.Deps{
		Repo:          repo,
		Calculator:    calc,
		PixKeys:       pixKeys,
		Observer:      m,
		Logger:        logger,
		LookupTimeout: cfg.PixKeyLookupTimeout,
	})
	srv := api.NewServer(svc, cfg.AuthToken, logger, m.Handler())

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	go func() {
		logger.Info("listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}
