package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meridianfarms/pickups-backend/api/controllers"
	billingcontrollers "github.com/meridianfarms/pickups-backend/api/controllers/billing"
	subscriptioncontrollers "github.com/meridianfarms/pickups-backend/api/controllers/subscriptions"
	webhookcontrollers "github.com/meridianfarms/pickups-backend/api/controllers/webhooks"
	"github.com/meridianfarms/pickups-backend/api/middleware"
	availabilitysvc "github.com/meridianfarms/pickups-backend/internal/availability"
	billingsvc "github.com/meridianfarms/pickups-backend/internal/billing"
	pickupsvc "github.com/meridianfarms/pickups-backend/internal/pickups"
	subsvc "github.com/meridianfarms/pickups-backend/internal/subscriptions"
	"github.com/meridianfarms/pickups-backend/pkg/auth/session"
	"github.com/meridianfarms/pickups-backend/pkg/config"
	"github.com/meridianfarms/pickups-backend/pkg/db"
	"github.com/meridianfarms/pickups-backend/pkg/logger"
	"github.com/meridianfarms/pickups-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	sessionManager session.AccessSessionChecker,
	availabilityService availabilitysvc.Service,
	subscriptionService subsvc.Service,
	pickupService pickupsvc.Service,
	billingService billingsvc.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	webhookPolicy := middleware.NewRateLimitPolicy(
		"webhooks",
		cfg.RateLimit.WebhookWindow,
		cfg.RateLimit.WebhookIPLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, dbP, redisClient, logg))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(middleware.RateLimit(webhookPolicy, redisClient, logg))
		r.Post("/billing", webhookcontrollers.BillingConfirmation(billingService, cfg.Platform.WebhookToken, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, sessionManager, logg))
		r.Use(middleware.ShopContext(logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/availability", func(r chi.Router) {
			r.Get("/", controllers.AvailabilityPreview(availabilityService, logg))
			r.Get("/check", controllers.AvailabilityCheck(availabilityService, logg))
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", subscriptioncontrollers.Create(subscriptionService, logg))
			r.Get("/", subscriptioncontrollers.List(subscriptionService, logg))
			r.Route("/{subscriptionID}", func(r chi.Router) {
				r.Get("/", subscriptioncontrollers.Get(subscriptionService, logg))
				r.Post("/pause", subscriptioncontrollers.Pause(subscriptionService, logg))
				r.Post("/resume", subscriptioncontrollers.Resume(subscriptionService, logg))
				r.Post("/skip", subscriptioncontrollers.SkipNext(subscriptionService, logg))
				r.Post("/reschedule", subscriptioncontrollers.Reschedule(subscriptionService, logg))
				r.Delete("/reschedule", subscriptioncontrollers.ClearReschedule(subscriptionService, logg))
				r.With(middleware.RequireRole("admin", logg)).
					Post("/cancel", subscriptioncontrollers.Cancel(subscriptionService, logg))
				r.Get("/billing/attempts", billingcontrollers.AttemptHistory(billingService, logg))
				r.With(middleware.RequireRole("admin", logg)).
					Post("/billing/retry", billingcontrollers.ManualRetry(billingService, logg))
			})
		})

		r.Route("/billing", func(r chi.Router) {
			r.Get("/upcoming", subscriptioncontrollers.UpcomingBillings(subscriptionService, logg))
			r.Get("/failed", subscriptioncontrollers.FailedBillings(subscriptionService, logg))
		})

		r.Route("/pickups", func(r chi.Router) {
			r.Post("/", controllers.PickupCreateOneOff(pickupService, logg))
			r.Get("/", controllers.PickupList(pickupService, logg))
			r.Route("/{pickupID}", func(r chi.Router) {
				r.Get("/", controllers.PickupGet(pickupService, logg))
				r.Post("/status", controllers.PickupAdvanceStatus(pickupService, logg))
				r.Patch("/customer", controllers.PickupUpdateCustomer(pickupService, logg))
			})
		})
	})

	return r
}
