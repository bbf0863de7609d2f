package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/meridianfarms/pickups-backend/api/routes"
	availabilitysvc "github.com/meridianfarms/pickups-backend/internal/availability"
	billingsvc "github.com/meridianfarms/pickups-backend/internal/billing"
	pickupsvc "github.com/meridianfarms/pickups-backend/internal/pickups"
	"github.com/meridianfarms/pickups-backend/internal/schedule"
	subsvc "github.com/meridianfarms/pickups-backend/internal/subscriptions"
	"github.com/meridianfarms/pickups-backend/pkg/auth/session"
	"github.com/meridianfarms/pickups-backend/pkg/clock"
	"github.com/meridianfarms/pickups-backend/pkg/config"
	"github.com/meridianfarms/pickups-backend/pkg/db"
	"github.com/meridianfarms/pickups-backend/pkg/logger"
	"github.com/meridianfarms/pickups-backend/pkg/migrate"
	"github.com/meridianfarms/pickups-backend/pkg/outbox"
	"github.com/meridianfarms/pickups-backend/pkg/platform"
	"github.com/meridianfarms/pickups-backend/pkg/redis"
)

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

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

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

	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	availabilityService, err := availabilitysvc.NewService(availabilitysvc.NewRepository(dbClient.DB()), clk, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create availability service", err)
		os.Exit(1)
	}

	pickupService, err := pickupsvc.NewService(pickupsvc.ServiceParams{
		Repo:   pickupsvc.NewRepository(dbClient.DB()),
		Tx:     dbClient,
		Events: emitter,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create pickup service", err)
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

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			sessionManager,
			availabilityService,
			subscriptionService,
			pickupService,
			billingService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
