package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/splittab/splittab-backend/api/routes"
	"github.com/splittab/splittab-backend/internal/bills"
	"github.com/splittab/splittab-backend/internal/claims"
	"github.com/splittab/splittab-backend/internal/feed"
	"github.com/splittab/splittab-backend/internal/receipts"
	"github.com/splittab/splittab-backend/pkg/config"
	"github.com/splittab/splittab-backend/pkg/db"
	"github.com/splittab/splittab-backend/pkg/logger"
	"github.com/splittab/splittab-backend/pkg/metrics"
	"github.com/splittab/splittab-backend/pkg/migrate"
	"github.com/splittab/splittab-backend/pkg/pubsub"
	"github.com/splittab/splittab-backend/pkg/redis"
	"github.com/splittab/splittab-backend/pkg/storage/gcs"
)

const shutdownGrace = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	feedMetrics := metrics.NewFeedMetrics(registry)
	claimMetrics := metrics.NewClaimMetrics(registry)

	hub := feed.NewHub(cfg.Feed.SubscriberBuffer, feedMetrics, logg)
	defer hub.Close()

	broker, err := feed.NewRedisBroker(hub, redisClient, cfg.Feed, logg)
	if err != nil {
		logg.Error(ctx, "failed to create feed broker", err)
		os.Exit(1)
	}
	go func() {
		if err := broker.Run(ctx); err != nil && ctx.Err() == nil {
			logg.Error(ctx, "feed broker stopped unexpectedly", err)
		}
	}()
	defer func() {
		if err := broker.Close(); err != nil {
			logg.Error(context.Background(), "error closing feed broker", err)
		}
	}()

	liveStore, err := claims.NewRedisLiveClaimStore(redisClient, cfg.Claims)
	if err != nil {
		logg.Error(ctx, "failed to create live claim store", err)
		os.Exit(1)
	}

	selectionRepo := claims.NewRepository(dbClient.DB())
	claimService, err := claims.NewService(selectionRepo, liveStore, broker, claimMetrics, logg)
	if err != nil {
		logg.Error(ctx, "failed to create claims service", err)
		os.Exit(1)
	}

	billService, err := bills.NewService(bills.NewRepository(dbClient.DB()), selectionRepo, liveStore, broker, logg)
	if err != nil {
		logg.Error(ctx, "failed to create bills service", err)
		os.Exit(1)
	}

	// Object storage and pubsub are optional in dev: without them receipt
	// scanning is off but the split flow works end to end.
	var gcsClient *gcs.Client
	var pubsubClient *pubsub.Client
	var receiptService receipts.Service
	if cfg.GCS.BucketName != "" && cfg.GCP.ProjectID != "" {
		gcsClient, err = gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap object storage", err)
			os.Exit(1)
		}
		defer func() {
			if err := gcsClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing object storage", err)
			}
		}()

		pubsubClient, err = pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()

		receiptService, err = receipts.NewService(receipts.NewRepository(dbClient.DB()), gcsClient, pubsubClient, cfg.Receipts, logg)
		if err != nil {
			logg.Error(ctx, "failed to create receipts service", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(ctx, "object storage not configured, receipt scanning disabled")
	}

	deps := routes.Deps{
		Config:      cfg,
		Logger:      logg,
		DB:          dbClient,
		Redis:       redisClient,
		Bills:       billService,
		Claims:      claimService,
		Receipts:    receiptService,
		Broker:      broker,
		FeedMetrics: feedMetrics,
		Gatherer:    registry,
	}
	if gcsClient != nil {
		deps.GCS = gcsClient
	}
	if pubsubClient != nil {
		deps.PubSub = pubsubClient
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(deps),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(logCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(logCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(logCtx, "graceful shutdown failed", err)
		}
	}
}
