package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/meridianfarms/pickups-backend/api/controllers/shopcontext"
	"github.com/meridianfarms/pickups-backend/api/responses"
	"github.com/meridianfarms/pickups-backend/api/validators"
	pickupsvc "github.com/meridianfarms/pickups-backend/internal/pickups"
	"github.com/meridianfarms/pickups-backend/pkg/db/models"
	"github.com/meridianfarms/pickups-backend/pkg/enums"
	pkgerrors "github.com/meridianfarms/pickups-backend/pkg/errors"
	"github.com/meridianfarms/pickups-backend/pkg/logger"
)

type oneOffPickupRequest struct {
	CustomerName   string `json:"customer_name" validate:"required,max=200"`
	CustomerEmail  string `json:"customer_email" validate:"required,email"`
	CustomerPhone  string `json:"customer_phone,omitempty" validate:"max=32"`
	PickupDate     string `json:"pickup_date" validate:"required"`
	PickupTimeSlot string `json:"pickup_time_slot" validate:"required,max=64"`
	Notes          string `json:"notes,omitempty" validate:"max=2000"`
	OrderRef       string `json:"order_ref,omitempty" validate:"max=128"`
}

type pickupStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type pickupCustomerRequest struct {
	CustomerName  *string `json:"customer_name,omitempty" validate:"omitempty,max=200"`
	CustomerEmail *string `json:"customer_email,omitempty" validate:"omitempty,email"`
	CustomerPhone *string `json:"customer_phone,omitempty" validate:"omitempty,max=32"`
}

type pickupResponse struct {
	ID             uuid.UUID  `json:"id"`
	SubscriptionID *uuid.UUID `json:"subscription_id,omitempty"`
	OrderRef       *string    `json:"order_ref,omitempty"`
	CustomerName   string     `json:"customer_name"`
	CustomerEmail  string     `json:"customer_email"`
	CustomerPhone  string     `json:"customer_phone,omitempty"`
	PickupDate     time.Time  `json:"pickup_date"`
	PickupTimeSlot string     `json:"pickup_time_slot"`
	PickupStatus   string     `json:"pickup_status"`
	Notes          string     `json:"notes,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func newPickupResponse(p *models.PickupSchedule) pickupResponse {
	return pickupResponse{
		ID:             p.ID,
		SubscriptionID: p.SubscriptionID,
		OrderRef:       p.OrderRef,
		CustomerName:   p.CustomerName,
		CustomerEmail:  p.CustomerEmail,
		CustomerPhone:  p.CustomerPhone,
		PickupDate:     p.PickupDate,
		PickupTimeSlot: p.PickupTimeSlot,
		PickupStatus:   p.PickupStatus.String(),
		Notes:          p.Notes,
		CreatedAt:      p.CreatedAt,
	}
}

func newPickupListResponse(rows []models.PickupSchedule) []pickupResponse {
	out := make([]pickupResponse, 0, len(rows))
	for i := range rows {
		out = append(out, newPickupResponse(&rows[i]))
	}
	return out
}

// PickupList returns the shop's pickups inside a date window.
func PickupList(svc pickupsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopID, err := shopcontext.ResolveShopID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 100, 1, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		from, err := parseDateQuery(r, "from")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		to, err := parseDateQuery(r, "to")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.List(r.Context(), shopID, from, to, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPickupListResponse(rows))
	}
}

// PickupGet returns one pickup.
func PickupGet(svc pickupsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopID, err := shopcontext.ResolveShopID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pickupID, err := shopcontext.ParseUUIDParam(r, "pickupID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pickup, err := svc.Get(r.Context(), shopID, pickupID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPickupResponse(pickup))
	}
}

// PickupCreateOneOff registers a pickup with no backing subscription.
func PickupCreateOneOff(svc pickupsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pickup service unavailable"))
			return
		}

		shopID, err := shopcontext.ResolveShopID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload oneOffPickupRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pickupDate, err := time.Parse(dateLayout, payload.PickupDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "pickup_date must be YYYY-MM-DD"))
			return
		}

		pickup, err := svc.CreateOneOff(r.Context(), shopID, pickupsvc.CreateOneOffInput{
			CustomerName:   payload.CustomerName,
			CustomerEmail:  payload.CustomerEmail,
			CustomerPhone:  payload.CustomerPhone,
			PickupDate:     pickupDate,
			PickupTimeSlot: payload.PickupTimeSlot,
			Notes:          payload.Notes,
			OrderRef:       payload.OrderRef,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newPickupResponse(pickup))
	}
}

// PickupAdvanceStatus moves a pickup along its fulfillment state machine.
func PickupAdvanceStatus(svc pickupsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopID, err := shopcontext.ResolveShopID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pickupID, err := shopcontext.ParseUUIDParam(r, "pickupID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload pickupStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		target, err := enums.ParsePickupStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid pickup status"))
			return
		}

		pickup, err := svc.AdvanceStatus(r.Context(), shopID, pickupID, target)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPickupResponse(pickup))
	}
}

// PickupUpdateCustomer edits the denormalized customer snapshot on one pickup.
func PickupUpdateCustomer(svc pickupsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopID, err := shopcontext.ResolveShopID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		pickupID, err := shopcontext.ParseUUIDParam(r, "pickupID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload pickupCustomerRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pickup, err := svc.UpdateCustomerSnapshot(r.Context(), shopID, pickupID, pickupsvc.CustomerSnapshotInput{
			CustomerName:  payload.CustomerName,
			CustomerEmail: payload.CustomerEmail,
			CustomerPhone: payload.CustomerPhone,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newPickupResponse(pickup))
	}
}

func parseDateQuery(r *http.Request, key string) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, key+" must be YYYY-MM-DD")
	}
	return parsed, nil
}
