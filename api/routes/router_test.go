package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/meridianfarms/pickups-backend/internal/availability"
	"github.com/meridianfarms/pickups-backend/internal/billing"
	"github.com/meridianfarms/pickups-backend/internal/pickups"
	"github.com/meridianfarms/pickups-backend/internal/subscriptions"
	pkgauth "github.com/meridianfarms/pickups-backend/pkg/auth"
	"github.com/meridianfarms/pickups-backend/pkg/auth/session"
	"github.com/meridianfarms/pickups-backend/pkg/config"
	"github.com/meridianfarms/pickups-backend/pkg/db/models"
	"github.com/meridianfarms/pickups-backend/pkg/enums"
	"github.com/meridianfarms/pickups-backend/pkg/logger"
	"github.com/meridianfarms/pickups-backend/pkg/redis"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubSessionChecker struct {
	active bool
}

func (s stubSessionChecker) HasSession(ctx context.Context, accessID string) (bool, error) {
	return s.active, nil
}

type stubAvailabilityService struct{}

func (stubAvailabilityService) Preview(ctx context.Context, shopID uuid.UUID) ([]availability.DayAvailability, error) {
	return []availability.DayAvailability{}, nil
}

func (stubAvailabilityService) CheckSlot(ctx context.Context, shopID uuid.UUID, date time.Time, slotLabel string) (bool, error) {
	return true, nil
}

func (stubAvailabilityService) CheckDate(ctx context.Context, shopID uuid.UUID, date time.Time) (bool, error) {
	return true, nil
}

func (stubAvailabilityService) SlotStartMinutes(ctx context.Context, shopID uuid.UUID, slotLabel string) (int, error) {
	return 0, nil
}

type stubSubscriptionsService struct{}

func (stubSubscriptionsService) Create(ctx context.Context, shopID uuid.UUID, input subscriptions.CreateInput) (*models.Subscription, error) {
	return &models.Subscription{}, nil
}

func (stubSubscriptionsService) Get(ctx context.Context, shopID, subscriptionID uuid.UUID) (*models.Subscription, error) {
	return &models.Subscription{}, nil
}

func (stubSubscriptionsService) List(ctx context.Context, shopID uuid.UUID, status *enums.SubscriptionStatus, limit int) ([]models.Subscription, error) {
	return nil, nil
}

func (stubSubscriptionsService) Pause(ctx context.Context, shopID, subscriptionID uuid.UUID, input subscriptions.PauseInput) (*models.Subscription, error) {
	return &models.Subscription{}, nil
}

func (stubSubscriptionsService) Resume(ctx context.Context, shopID, subscriptionID uuid.UUID) (*models.Subscription, error) {
	return &models.Subscription{}, nil
}

func (stubSubscriptionsService) Cancel(ctx context.Context, shopID, subscriptionID uuid.UUID, reason string) (*models.Subscription, error) {
	return &models.Subscription{}, nil
}

func (stubSubscriptionsService) SkipNext(ctx context.Context, shopID, subscriptionID uuid.UUID) (*models.Subscription, error) {
	return &models.Subscription{}, nil
}

func (stubSubscriptionsService) Reschedule(ctx context.Context, shopID, subscriptionID uuid.UUID, input subscriptions.RescheduleInput) (*models.Subscription, error) {
	return &models.Subscription{}, nil
}

func (stubSubscriptionsService) ClearReschedule(ctx context.Context, shopID, subscriptionID uuid.UUID) (*models.Subscription, error) {
	return &models.Subscription{}, nil
}

func (stubSubscriptionsService) ResumeDue(ctx context.Context, shopID uuid.UUID) (int, error) {
	return 0, nil
}

func (stubSubscriptionsService) MaterializeDuePickups(ctx context.Context, shopID uuid.UUID) (int, error) {
	return 0, nil
}

func (stubSubscriptionsService) UpcomingBillings(ctx context.Context, shopID uuid.UUID, days, limit int) ([]models.Subscription, error) {
	return nil, nil
}

func (stubSubscriptionsService) FailedBillings(ctx context.Context, shopID uuid.UUID, limit int) ([]models.Subscription, error) {
	return nil, nil
}

type stubPickupsService struct{}

func (stubPickupsService) Get(ctx context.Context, shopID, pickupID uuid.UUID) (*models.PickupSchedule, error) {
	return &models.PickupSchedule{}, nil
}

func (stubPickupsService) List(ctx context.Context, shopID uuid.UUID, from, to time.Time, limit int) ([]models.PickupSchedule, error) {
	return nil, nil
}

func (stubPickupsService) CreateOneOff(ctx context.Context, shopID uuid.UUID, input pickups.CreateOneOffInput) (*models.PickupSchedule, error) {
	return &models.PickupSchedule{}, nil
}

func (stubPickupsService) AdvanceStatus(ctx context.Context, shopID, pickupID uuid.UUID, target enums.PickupStatus) (*models.PickupSchedule, error) {
	return &models.PickupSchedule{}, nil
}

func (stubPickupsService) UpdateCustomerSnapshot(ctx context.Context, shopID, pickupID uuid.UUID, input pickups.CustomerSnapshotInput) (*models.PickupSchedule, error) {
	return &models.PickupSchedule{}, nil
}

type stubBillingService struct {
	confirmations int
}

func (s *stubBillingService) ProcessDueBillings(ctx context.Context, shopID uuid.UUID) (billing.RunSummary, error) {
	return billing.RunSummary{}, nil
}

func (s *stubBillingService) ProcessSingleBilling(ctx context.Context, sub *models.Subscription) (billing.Outcome, error) {
	return "", nil
}

func (s *stubBillingService) ManualRetry(ctx context.Context, shopID, subscriptionID uuid.UUID) (*models.Subscription, error) {
	return &models.Subscription{}, nil
}

func (s *stubBillingService) ApplyConfirmation(ctx context.Context, input billing.ConfirmationInput) error {
	s.confirmations++
	return nil
}

func (s *stubBillingService) ReconcilePendingAttempts(ctx context.Context) (int, error) {
	return 0, nil
}

func (s *stubBillingService) PurgeOldAttempts(ctx context.Context) (int64, error) {
	return 0, nil
}

func (s *stubBillingService) AttemptHistory(ctx context.Context, shopID, subscriptionID uuid.UUID, limit int) ([]models.BillingAttemptLog, error) {
	return nil, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "router-test-secret",
			Issuer:            "pickups-test",
			ExpirationMinutes: 60,
		},
		Platform: config.PlatformConfig{WebhookToken: "hook-secret"},
	}
}

func newTestRouter(cfg *config.Config, sessions session.AccessSessionChecker, billingSvc billing.Service) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	if billingSvc == nil {
		billingSvc = &stubBillingService{}
	}
	return NewRouter(
		cfg,
		logg,
		stubPinger{},
		(*redis.Client)(nil),
		sessions,
		stubAvailabilityService{},
		stubSubscriptionsService{},
		stubPickupsService{},
		billingSvc,
	)
}

func mintRouterToken(t *testing.T, cfg *config.Config, shopID *uuid.UUID) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(cfg.JWT, time.Now(), pkgauth.AccessTokenPayload{
		UserID: uuid.New(),
		ShopID: shopID,
		Role:   enums.StaffRoleStaff,
		JTI:    session.NewAccessID(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestHealthLiveBypassesAuth(t *testing.T) {
	router := newTestRouter(testConfig(), stubSessionChecker{active: true}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for liveness got %d", resp.Code)
	}
	if got := resp.Header().Get("X-Pickups-Env"); got != "test" {
		t.Fatalf("expected env header test got %q", got)
	}
}

func TestProtectedGroupRejectsMissingToken(t *testing.T) {
	router := newTestRouter(testConfig(), stubSessionChecker{active: true}, nil)

	for _, path := range []string{"/api/v1/availability", "/api/v1/subscriptions", "/api/v1/pickups"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for %s without token got %d", path, resp.Code)
		}
	}
}

func TestProtectedGroupAcceptsShopPinnedToken(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, stubSessionChecker{active: true}, nil)

	shopID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/availability", nil)
	req.Header.Set("Authorization", "Bearer "+mintRouterToken(t, cfg, &shopID))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 with shop-pinned token got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestUnpinnedTokenNeedsShopHeader(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, stubSessionChecker{active: true}, nil)
	token := mintRouterToken(t, cfg, nil)

	bare := httptest.NewRequest(http.MethodGet, "/api/v1/availability", nil)
	bare.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, bare)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without shop header got %d", resp.Code)
	}

	scoped := httptest.NewRequest(http.MethodGet, "/api/v1/availability", nil)
	scoped.Header.Set("Authorization", "Bearer "+token)
	scoped.Header.Set("X-Shop-ID", uuid.NewString())
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, scoped)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 with shop header got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestRevokedSessionRejected(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, stubSessionChecker{active: false}, nil)

	shopID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/availability", nil)
	req.Header.Set("Authorization", "Bearer "+mintRouterToken(t, cfg, &shopID))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for revoked session got %d", resp.Code)
	}
}

func TestMutationsRequireIdempotencyKey(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, stubSessionChecker{active: true}, nil)

	shopID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions/"+uuid.NewString()+"/pause", strings.NewReader("{}"))
	req.Header.Set("Authorization", "Bearer "+mintRouterToken(t, cfg, &shopID))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without Idempotency-Key got %d", resp.Code)
	}
}

func TestWebhookRequiresSharedToken(t *testing.T) {
	cfg := testConfig()
	billingSvc := &stubBillingService{}
	router := newTestRouter(cfg, stubSessionChecker{active: true}, billingSvc)

	body := `{"attempt_ref":"att-1","success":true,"order_id":"order-1"}`

	bad := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/billing", strings.NewReader(body))
	bad.Header.Set("Content-Type", "application/json")
	bad.Header.Set("X-Platform-Token", "wrong")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, bad)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad webhook token got %d", resp.Code)
	}
	if billingSvc.confirmations != 0 {
		t.Fatalf("expected no confirmation on rejected webhook")
	}

	good := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/billing", strings.NewReader(body))
	good.Header.Set("Content-Type", "application/json")
	good.Header.Set("X-Platform-Token", "hook-secret")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, good)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for accepted webhook got %d: %s", resp.Code, resp.Body.String())
	}
	if billingSvc.confirmations != 1 {
		t.Fatalf("expected one confirmation got %d", billingSvc.confirmations)
	}
}
