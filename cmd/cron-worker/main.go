package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/meridianfarms/pickups-backend/internal/availability"
	billingsvc "github.com/meridianfarms/pickups-backend/internal/billing"
	"github.com/meridianfarms/pickups-backend/internal/cron"
	pickupsvc "github.com/meridianfarms/pickups-backend/internal/pickups"
	"github.com/meridianfarms/pickups-backend/internal/schedule"
	"github.com/meridianfarms/pickups-backend/internal/shops"
	subsvc "github.com/meridianfarms/pickups-backend/internal/subscriptions"
	"github.com/meridianfarms/pickups-backend/pkg/clock"
	"github.com/meridianfarms/pickups-backend/pkg/config"
	"github.com/meridianfarms/pickups-backend/pkg/db"
	"github.com/meridianfarms/pickups-backend/pkg/logger"
	"github.com/meridianfarms/pickups-backend/pkg/metrics"
	"github.com/meridianfarms/pickups-backend/pkg/migrate"
	"github.com/meridianfarms/pickups-backend/pkg/outbox"
	"github.com/meridianfarms/pickups-backend/pkg/platform"
	"github.com/meridianfarms/pickups-backend/pkg/redis"
)

const lockKeyFormat = "mf:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	clk, err := clock.New(cfg.Scheduling.BusinessTimezone)
	if err != nil {
		logg.Error(context.Background(), "failed to load business timezone", err)
		os.Exit(1)
	}

	calc, err := schedule.NewCalculator(clk, cfg.Scheduling.BillingLeadHoursMin, cfg.Scheduling.BillingLeadHoursMax)
	if err != nil {
		logg.Error(context.Background(), "failed to create schedule calculator", err)
		os.Exit(1)
	}

	platformClient, err := platform.NewClient(cfg.Platform, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create platform client", err)
		os.Exit(1)
	}

	outboxRepo := outbox.NewRepository(dbClient.DB())
	emitter := outbox.NewService(outboxRepo, logg)

	availabilityService, err := availability.NewService(availability.NewRepository(dbClient.DB()), clk, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create availability service", err)
		os.Exit(1)
	}

	subscriptionService, err := subsvc.NewService(subsvc.ServiceParams{
		Repo:             subsvc.NewRepository(dbClient.DB()),
		Pickups:          pickupsvc.NewRepository(dbClient.DB()),
		Availability:     availabilityService,
		Platform:         platformClient,
		Tx:               dbClient,
		Events:           emitter,
		Calc:             calc,
		Clock:            clk,
		Logger:           logg,
		DefaultLeadHours: cfg.Scheduling.BillingLeadHours,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscription service", err)
		os.Exit(1)
	}

	billingService, err := billingsvc.NewService(billingsvc.ServiceParams{
		Attempts:      billingsvc.NewRepository(dbClient.DB()),
		Subscriptions: subsvc.NewRepository(dbClient.DB()),
		Pickups:       pickupsvc.NewRepository(dbClient.DB()),
		Provider:      platformClient,
		Tx:            dbClient,
		Events:        emitter,
		Calc:          calc,
		Clock:         clk,
		Logger:        logg,
		MaxFailures:   cfg.Scheduling.MaxBillingFailures,
		RetentionDays: cfg.Scheduling.AttemptRetentionDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create billing service", err)
		os.Exit(1)
	}

	sweepMetrics := metrics.NewSweepMetrics(prometheus.DefaultRegisterer)

	sweepJob, err := cron.NewSweepJob(cron.SweepJobParams{
		Logger:        logg,
		Shops:         shops.NewRepository(dbClient.DB()),
		Subscriptions: subscriptionService,
		Billing:       billingService,
		Metrics:       sweepMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep job", err)
		os.Exit(1)
	}

	retentionJob, err := cron.NewAttemptRetentionJob(cron.AttemptRetentionJobParams{
		Logger:  logg,
		Billing: billingService,
		Metrics: sweepMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create attempt retention job", err)
		os.Exit(1)
	}

	outboxJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(sweepJob, retentionJob, outboxJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Scheduling.SweepInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
