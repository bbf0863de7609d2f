package controllers

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
	pickupsvc "github.com/meridianfarms/pickups-backend/internal/pickups"
	"github.com/meridianfarms/pickups-backend/pkg/db/models"
	"github.com/meridianfarms/pickups-backend/pkg/enums"
	"github.com/meridianfarms/pickups-backend/pkg/logger"
)

type stubPickupsService struct {
	response     *models.PickupSchedule
	listResult   []models.PickupSchedule
	err          error
	oneOffInput  pickupsvc.CreateOneOffInput
	statusTarget enums.PickupStatus
}

func (s *stubPickupsService) Get(context.Context, uuid.UUID, uuid.UUID) (*models.PickupSchedule, error) {
	return s.response, s.err
}

func (s *stubPickupsService) List(context.Context, uuid.UUID, time.Time, time.Time, int) ([]models.PickupSchedule, error) {
	return s.listResult, s.err
}

func (s *stubPickupsService) CreateOneOff(_ context.Context, _ uuid.UUID, input pickupsvc.CreateOneOffInput) (*models.PickupSchedule, error) {
	s.oneOffInput = input
	return s.response, s.err
}

func (s *stubPickupsService) AdvanceStatus(_ context.Context, _, _ uuid.UUID, target enums.PickupStatus) (*models.PickupSchedule, error) {
	s.statusTarget = target
	return s.response, s.err
}

func (s *stubPickupsService) UpdateCustomerSnapshot(context.Context, uuid.UUID, uuid.UUID, pickupsvc.CustomerSnapshotInput) (*models.PickupSchedule, error) {
	return s.response, s.err
}

var _ pickupsvc.Service = (*stubPickupsService)(nil)

func pickupTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func pickupRequest(method, target string, body []byte, params map[string]string) *http.Request {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	ctx := middleware.WithShopID(req.Context(), uuid.NewString())
	if len(params) > 0 {
		rc := chi.NewRouteContext()
		for key, value := range params {
			rc.URLParams.Add(key, value)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rc)
	}
	return req.WithContext(ctx)
}

func scheduledPickup() *models.PickupSchedule {
	return &models.PickupSchedule{
		ID:             uuid.New(),
		CustomerName:   "Dana Orchard",
		CustomerEmail:  "dana@example.com",
		PickupDate:     time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC),
		PickupTimeSlot: "Morning",
		PickupStatus:   enums.PickupStatusScheduled,
	}
}

func TestPickupCreateOneOffSuccess(t *testing.T) {
	service := &stubPickupsService{response: scheduledPickup()}
	handler := PickupCreateOneOff(service, pickupTestLogger())

	body, _ := json.Marshal(oneOffPickupRequest{
		CustomerName:   "Dana Orchard",
		CustomerEmail:  "dana@example.com",
		PickupDate:     "2026-09-04",
		PickupTimeSlot: "Morning",
	})
	req := pickupRequest(http.MethodPost, "/api/v1/pickups", body, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	want := time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC)
	if !service.oneOffInput.PickupDate.Equal(want) {
		t.Fatalf("pickup date not parsed: %v", service.oneOffInput.PickupDate)
	}
}

func TestPickupCreateOneOffRejectsBadDate(t *testing.T) {
	handler := PickupCreateOneOff(&stubPickupsService{response: scheduledPickup()}, pickupTestLogger())

	body, _ := json.Marshal(oneOffPickupRequest{
		CustomerName:   "Dana Orchard",
		CustomerEmail:  "dana@example.com",
		PickupDate:     "next friday",
		PickupTimeSlot: "Morning",
	})
	req := pickupRequest(http.MethodPost, "/api/v1/pickups", body, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestPickupAdvanceStatusForwardsTarget(t *testing.T) {
	service := &stubPickupsService{response: scheduledPickup()}
	handler := PickupAdvanceStatus(service, pickupTestLogger())

	pickupID := uuid.New()
	body, _ := json.Marshal(pickupStatusRequest{Status: "ready"})
	req := pickupRequest(http.MethodPost, "/api/v1/pickups/"+pickupID.String()+"/status", body,
		map[string]string{"pickupID": pickupID.String()})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if service.statusTarget != enums.PickupStatusReady {
		t.Fatalf("status not forwarded: %s", service.statusTarget)
	}
}

func TestPickupAdvanceStatusRejectsUnknownStatus(t *testing.T) {
	handler := PickupAdvanceStatus(&stubPickupsService{response: scheduledPickup()}, pickupTestLogger())

	pickupID := uuid.New()
	body, _ := json.Marshal(pickupStatusRequest{Status: "teleported"})
	req := pickupRequest(http.MethodPost, "/api/v1/pickups/"+pickupID.String()+"/status", body,
		map[string]string{"pickupID": pickupID.String()})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestPickupListRejectsBadWindow(t *testing.T) {
	handler := PickupList(&stubPickupsService{}, pickupTestLogger())

	req := pickupRequest(http.MethodGet, "/api/v1/pickups?from=tomorrow", nil, nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
