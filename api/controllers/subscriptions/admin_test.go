package subscriptions

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/meridianfarms/pickups-backend/api/middleware"
	subsvc "github.com/meridianfarms/pickups-backend/internal/subscriptions"
	"github.com/meridianfarms/pickups-backend/pkg/db/models"
	"github.com/meridianfarms/pickups-backend/pkg/enums"
	pkgerrors "github.com/meridianfarms/pickups-backend/pkg/errors"
	"github.com/meridianfarms/pickups-backend/pkg/logger"
)

type stubSubscriptionsService struct {
	response    *models.Subscription
	listResult  []models.Subscription
	err         error
	createInput subsvc.CreateInput
	rescheduled subsvc.RescheduleInput
	calledPause bool
}

func (s *stubSubscriptionsService) Create(_ context.Context, _ uuid.UUID, input subsvc.CreateInput) (*models.Subscription, error) {
	s.createInput = input
	return s.response, s.err
}

func (s *stubSubscriptionsService) Get(context.Context, uuid.UUID, uuid.UUID) (*models.Subscription, error) {
	return s.response, s.err
}

func (s *stubSubscriptionsService) List(context.Context, uuid.UUID, *enums.SubscriptionStatus, int) ([]models.Subscription, error) {
	return s.listResult, s.err
}

func (s *stubSubscriptionsService) Pause(context.Context, uuid.UUID, uuid.UUID, subsvc.PauseInput) (*models.Subscription, error) {
	s.calledPause = true
	return s.response, s.err
}

func (s *stubSubscriptionsService) Resume(context.Context, uuid.UUID, uuid.UUID) (*models.Subscription, error) {
	return s.response, s.err
}

func (s *stubSubscriptionsService) Cancel(context.Context, uuid.UUID, uuid.UUID, string) (*models.Subscription, error) {
	return s.response, s.err
}

func (s *stubSubscriptionsService) SkipNext(context.Context, uuid.UUID, uuid.UUID) (*models.Subscription, error) {
	return s.response, s.err
}

func (s *stubSubscriptionsService) Reschedule(_ context.Context, _, _ uuid.UUID, input subsvc.RescheduleInput) (*models.Subscription, error) {
	s.rescheduled = input
	return s.response, s.err
}

func (s *stubSubscriptionsService) ClearReschedule(context.Context, uuid.UUID, uuid.UUID) (*models.Subscription, error) {
	return s.response, s.err
}

func (s *stubSubscriptionsService) ResumeDue(context.Context, uuid.UUID) (int, error) {
	return 0, s.err
}

func (s *stubSubscriptionsService) MaterializeDuePickups(context.Context, uuid.UUID) (int, error) {
	return 0, s.err
}

func (s *stubSubscriptionsService) UpcomingBillings(context.Context, uuid.UUID, int, int) ([]models.Subscription, error) {
	return s.listResult, s.err
}

func (s *stubSubscriptionsService) FailedBillings(context.Context, uuid.UUID, int) ([]models.Subscription, error) {
	return s.listResult, s.err
}

var _ subsvc.Service = (*stubSubscriptionsService)(nil)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func requestWithShop(method, target string, body []byte, params map[string]string) *http.Request {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	ctx := middleware.WithShopID(req.Context(), uuid.NewString())
	ctx = middleware.WithUserID(ctx, "staff@meridianfarms.com")
	if len(params) > 0 {
		rc := chi.NewRouteContext()
		for key, value := range params {
			rc.URLParams.Add(key, value)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rc)
	}
	return req.WithContext(ctx)
}

func activeSubscription() *models.Subscription {
	pickup := time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC)
	billing := time.Date(2026, 9, 3, 9, 0, 0, 0, time.UTC)
	return &models.Subscription{
		ID:                 uuid.New(),
		CustomerName:       "Dana Orchard",
		CustomerEmail:      "dana@example.com",
		Frequency:          enums.FrequencyWeekly,
		PreferredDayOfWeek: 5,
		PreferredTimeSlot:  "Morning",
		BillingLeadHours:   24,
		Status:             enums.SubscriptionStatusActive,
		NextPickupDate:     &pickup,
		NextBillingDate:    &billing,
		PlatformContractID: "contract-77",
	}
}

func TestCreateSuccess(t *testing.T) {
	service := &stubSubscriptionsService{response: activeSubscription()}
	handler := Create(service, testLogger())

	body, _ := json.Marshal(createRequest{
		CustomerName:       "Dana Orchard",
		CustomerEmail:      "dana@example.com",
		Frequency:          "weekly",
		PreferredDayOfWeek: 5,
		PreferredTimeSlot:  "Morning",
		PlatformContractID: "contract-77",
	})
	req := requestWithShop(http.MethodPost, "/api/v1/subscriptions", body, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if service.createInput.Frequency != enums.FrequencyWeekly {
		t.Fatalf("frequency not forwarded: %s", service.createInput.Frequency)
	}
	var envelope struct {
		Data subscriptionResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.Status != "active" {
		t.Fatalf("unexpected status %q", envelope.Data.Status)
	}
}

func TestCreateRejectsUnknownFrequency(t *testing.T) {
	handler := Create(&stubSubscriptionsService{response: activeSubscription()}, testLogger())

	body, _ := json.Marshal(createRequest{
		CustomerName:       "Dana Orchard",
		CustomerEmail:      "dana@example.com",
		Frequency:          "daily",
		PreferredTimeSlot:  "Morning",
		PlatformContractID: "contract-77",
	})
	req := requestWithShop(http.MethodPost, "/api/v1/subscriptions", body, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestPauseRequiresShopContext(t *testing.T) {
	service := &stubSubscriptionsService{response: activeSubscription()}
	handler := Pause(service, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/subscriptions/x/pause", bytes.NewReader([]byte(`{}`)))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without shop context, got %d", resp.Code)
	}
	if service.calledPause {
		t.Fatal("service must not run without shop context")
	}
}

func TestRescheduleForwardsParsedDate(t *testing.T) {
	service := &stubSubscriptionsService{response: activeSubscription()}
	handler := Reschedule(service, testLogger())

	subID := uuid.New()
	body, _ := json.Marshal(rescheduleRequest{
		NewDate:     "2026-09-09",
		NewTimeSlot: "Afternoon",
		Permanent:   true,
		Reason:      "vacation",
	})
	req := requestWithShop(http.MethodPost, "/api/v1/subscriptions/"+subID.String()+"/reschedule", body,
		map[string]string{"subscriptionID": subID.String()})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if !service.rescheduled.Permanent {
		t.Fatal("permanent flag not forwarded")
	}
	want := time.Date(2026, 9, 9, 0, 0, 0, 0, time.UTC)
	if !service.rescheduled.NewDate.Equal(want) {
		t.Fatalf("date not parsed: %v", service.rescheduled.NewDate)
	}
	if service.rescheduled.RequestedBy != "staff@meridianfarms.com" {
		t.Fatalf("requested_by not captured: %q", service.rescheduled.RequestedBy)
	}
}

func TestRescheduleRejectsBadDate(t *testing.T) {
	handler := Reschedule(&stubSubscriptionsService{response: activeSubscription()}, testLogger())

	subID := uuid.New()
	body, _ := json.Marshal(rescheduleRequest{NewDate: "09/09/2026", NewTimeSlot: "Afternoon"})
	req := requestWithShop(http.MethodPost, "/api/v1/subscriptions/"+subID.String()+"/reschedule", body,
		map[string]string{"subscriptionID": subID.String()})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestClearRescheduleReturnsSubscription(t *testing.T) {
	service := &stubSubscriptionsService{response: activeSubscription()}
	handler := ClearReschedule(service, testLogger())

	subID := uuid.New()
	req := requestWithShop(http.MethodDelete, "/api/v1/subscriptions/"+subID.String()+"/reschedule", nil,
		map[string]string{"subscriptionID": subID.String()})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data subscriptionResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.OverrideDate != nil {
		t.Fatalf("expected no override in the response, got %v", envelope.Data.OverrideDate)
	}
}

func TestClearRescheduleConflictWithoutOverride(t *testing.T) {
	service := &stubSubscriptionsService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "no one-time reschedule is pending")}
	handler := ClearReschedule(service, testLogger())

	subID := uuid.New()
	req := requestWithShop(http.MethodDelete, "/api/v1/subscriptions/"+subID.String()+"/reschedule", nil,
		map[string]string{"subscriptionID": subID.String()})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.Code)
	}
}

func TestListRejectsUnknownStatusFilter(t *testing.T) {
	handler := List(&stubSubscriptionsService{}, testLogger())

	req := requestWithShop(http.MethodGet, "/api/v1/subscriptions?status=dormant", nil, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestGetRejectsMalformedID(t *testing.T) {
	handler := Get(&stubSubscriptionsService{response: activeSubscription()}, testLogger())

	req := requestWithShop(http.MethodGet, "/api/v1/subscriptions/nope", nil,
		map[string]string{"subscriptionID": "nope"})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
