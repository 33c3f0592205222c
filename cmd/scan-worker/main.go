package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/splittab/splittab-backend/internal/bills"
	"github.com/splittab/splittab-backend/internal/claims"
	"github.com/splittab/splittab-backend/internal/feed"
	"github.com/splittab/splittab-backend/internal/receipts"
	"github.com/splittab/splittab-backend/pkg/config"
	"github.com/splittab/splittab-backend/pkg/db"
	"github.com/splittab/splittab-backend/pkg/logger"
	"github.com/splittab/splittab-backend/pkg/pubsub"
	"github.com/splittab/splittab-backend/pkg/redis"
	"github.com/splittab/splittab-backend/pkg/storage/gcs"
	"github.com/splittab/splittab-backend/pkg/vision"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "scan-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "scan-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	// The worker publishes items-changed hints through Redis so API
	// instances relay them to connected guests.
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer redisClient.Close()

	hub := feed.NewHub(cfg.Feed.SubscriberBuffer, nil, logg)
	defer hub.Close()

	broker, err := feed.NewRedisBroker(hub, redisClient, cfg.Feed, logg)
	requireResource(ctx, logg, "feed broker", err)

	gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	requireResource(ctx, logg, "object storage", err)
	defer gcsClient.Close()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer pubsubClient.Close()

	extractor, err := vision.NewClient(cfg.Vision, logg)
	requireResource(ctx, logg, "vision client", err)

	liveStore, err := claims.NewRedisLiveClaimStore(redisClient, cfg.Claims)
	requireResource(ctx, logg, "live claim store", err)

	selectionRepo := claims.NewRepository(dbClient.DB())
	billService, err := bills.NewService(bills.NewRepository(dbClient.DB()), selectionRepo, liveStore, broker, logg)
	requireResource(ctx, logg, "bills service", err)

	processor, err := receipts.NewProcessor(receipts.NewRepository(dbClient.DB()), gcsClient, extractor, billService, logg)
	requireResource(ctx, logg, "scan processor", err)

	consumer, err := receipts.NewConsumer(processor, pubsubClient.ScanSubscription(), logg)
	requireResource(ctx, logg, "scan consumer", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{"env": cfg.App.Env})
	logg.Info(runCtx, "scan worker ready")

	if err := consumer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "scan worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "scan worker shut down")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
