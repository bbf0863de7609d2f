package subscriptions

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianfarms/pickups-backend/api/controllers/shopcontext"
	"github.com/meridianfarms/pickups-backend/api/middleware"
	"github.com/meridianfarms/pickups-backend/api/responses"
	"github.com/meridianfarms/pickups-backend/api/validators"
	subsvc "github.com/meridianfarms/pickups-backend/internal/subscriptions"
	"github.com/meridianfarms/pickups-backend/pkg/db/models"
	"github.com/meridianfarms/pickups-backend/pkg/enums"
	pkgerrors "github.com/meridianfarms/pickups-backend/pkg/errors"
	"github.com/meridianfarms/pickups-backend/pkg/logger"
	"github.com/meridianfarms/pickups-backend/pkg/outbox"
)

const dateLayout = "2006-01-02"

type createRequest struct {
	CustomerName       string `json:"customer_name" validate:"required,max=200"`
	CustomerEmail      string `json:"customer_email" validate:"required,email"`
	CustomerPhone      string `json:"customer_phone,omitempty" validate:"max=32"`
	Frequency          string `json:"frequency" validate:"required"`
	PreferredDayOfWeek int    `json:"preferred_day_of_week" validate:"min=0,max=6"`
	PreferredTimeSlot  string `json:"preferred_time_slot" validate:"required,max=64"`
	BillingLeadHours   int    `json:"billing_lead_hours,omitempty" validate:"min=0,max=168"`
	PlatformContractID string `json:"platform_contract_id" validate:"required,max=128"`
	AdminNotes         string `json:"admin_notes,omitempty" validate:"max=2000"`
}

type pauseRequest struct {
	Until  *time.Time `json:"until,omitempty"`
	Reason string     `json:"reason,omitempty" validate:"max=500"`
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

type rescheduleRequest struct {
	NewDate     string `json:"new_date" validate:"required"`
	NewTimeSlot string `json:"new_time_slot" validate:"required,max=64"`
	Permanent   bool   `json:"permanent"`
	Reason      string `json:"reason,omitempty" validate:"max=500"`
}

type subscriptionResponse struct {
	ID                 uuid.UUID       `json:"id"`
	CustomerName       string          `json:"customer_name"`
	CustomerEmail      string          `json:"customer_email"`
	CustomerPhone      string          `json:"customer_phone,omitempty"`
	Frequency          string          `json:"frequency"`
	PreferredDayOfWeek int             `json:"preferred_day_of_week"`
	PreferredTimeSlot  string          `json:"preferred_time_slot"`
	DiscountPercent    decimal.Decimal `json:"discount_percent"`
	BillingLeadHours   int             `json:"billing_lead_hours"`
	Status             string          `json:"status"`
	PausedUntil        *time.Time      `json:"paused_until,omitempty"`
	PauseReason        *string         `json:"pause_reason,omitempty"`
	NextPickupDate     *time.Time      `json:"next_pickup_date,omitempty"`
	NextBillingDate    *time.Time      `json:"next_billing_date,omitempty"`
	BillingCycleCount  int             `json:"billing_cycle_count"`
	BillingFailures    int             `json:"billing_failure_count"`
	OverrideDate       *time.Time      `json:"one_time_reschedule_date,omitempty"`
	OverrideTimeSlot   *string         `json:"one_time_reschedule_time_slot,omitempty"`
	PlatformContractID string          `json:"platform_contract_id"`
	CreatedAt          time.Time       `json:"created_at"`
}

func newSubscriptionResponse(sub *models.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:                 sub.ID,
		CustomerName:       sub.CustomerName,
		CustomerEmail:      sub.CustomerEmail,
		CustomerPhone:      sub.CustomerPhone,
		Frequency:          sub.Frequency.String(),
		PreferredDayOfWeek: sub.PreferredDayOfWeek,
		PreferredTimeSlot:  sub.PreferredTimeSlot,
		DiscountPercent:    sub.DiscountPercent,
		BillingLeadHours:   sub.BillingLeadHours,
		Status:             sub.Status.String(),
		PausedUntil:        sub.PausedUntil,
		PauseReason:        sub.PauseReason,
		NextPickupDate:     sub.NextPickupDate,
		NextBillingDate:    sub.NextBillingDate,
		BillingCycleCount:  sub.BillingCycleCount,
		BillingFailures:    sub.BillingFailureCount,
		OverrideDate:       sub.OneTimeRescheduleDate,
		OverrideTimeSlot:   sub.OneTimeRescheduleTimeSlot,
		PlatformContractID: sub.PlatformContractID,
		CreatedAt:          sub.CreatedAt,
	}
}

func newSubscriptionListResponse(subs []models.Subscription) []subscriptionResponse {
	out := make([]subscriptionResponse, 0, len(subs))
	for i := range subs {
		out = append(out, newSubscriptionResponse(&subs[i]))
	}
	return out
}

func actorFromRequest(r *http.Request) *outbox.ActorRef {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return nil
	}
	return &outbox.ActorRef{
		Name: userID,
		Role: middleware.RoleFromContext(r.Context()),
	}
}

func requestedBy(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// Create registers a new recurring pickup subscription.
func Create(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "subscription service unavailable"))
			return
		}

		shopID, err := shopcontext.ResolveShopID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		frequency, err := enums.ParseFrequency(payload.Frequency)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid frequency"))
			return
		}

		sub, err := svc.Create(r.Context(), shopID, subsvc.CreateInput{
			CustomerName:       payload.CustomerName,
			CustomerEmail:      payload.CustomerEmail,
			CustomerPhone:      payload.CustomerPhone,
			Frequency:          frequency,
			PreferredDayOfWeek: payload.PreferredDayOfWeek,
			PreferredTimeSlot:  payload.PreferredTimeSlot,
			BillingLeadHours:   payload.BillingLeadHours,
			PlatformContractID: payload.PlatformContractID,
			AdminNotes:         payload.AdminNotes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newSubscriptionResponse(sub))
	}
}

// Get returns one subscription.
func Get(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopID, err := shopcontext.ResolveShopID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		subID, err := shopcontext.ParseUUIDParam(r, "subscriptionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.Get(r.Context(), shopID, subID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubscriptionResponse(sub))
	}
}

// List returns the shop's subscriptions, optionally filtered by status.
func List(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
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

		var status *enums.SubscriptionStatus
		if raw := r.URL.Query().Get("status"); raw != "" {
			parsed, err := enums.ParseSubscriptionStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			status = &parsed
		}

		subs, err := svc.List(r.Context(), shopID, status, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubscriptionListResponse(subs))
	}
}

// Pause suspends billing and pickups, optionally until an auto-resume instant.
func Pause(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopID, err := shopcontext.ResolveShopID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		subID, err := shopcontext.ParseUUIDParam(r, "subscriptionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload pauseRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.Pause(r.Context(), shopID, subID, subsvc.PauseInput{
			Until:  payload.Until,
			Reason: payload.Reason,
			Actor:  actorFromRequest(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubscriptionResponse(sub))
	}
}

// Resume reactivates a paused subscription immediately.
func Resume(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopID, err := shopcontext.ResolveShopID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		subID, err := shopcontext.ParseUUIDParam(r, "subscriptionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.Resume(r.Context(), shopID, subID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubscriptionResponse(sub))
	}
}

// Cancel terminates the subscription and its platform contract.
func Cancel(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopID, err := shopcontext.ResolveShopID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		subID, err := shopcontext.ParseUUIDParam(r, "subscriptionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancelRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.Cancel(r.Context(), shopID, subID, payload.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubscriptionResponse(sub))
	}
}

// SkipNext pushes the next pickup out by one cycle without billing it.
func SkipNext(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopID, err := shopcontext.ResolveShopID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		subID, err := shopcontext.ParseUUIDParam(r, "subscriptionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.SkipNext(r.Context(), shopID, subID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubscriptionResponse(sub))
	}
}

// Reschedule moves the next pickup, one time or permanently.
func Reschedule(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopID, err := shopcontext.ResolveShopID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		subID, err := shopcontext.ParseUUIDParam(r, "subscriptionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload rescheduleRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		newDate, err := time.Parse(dateLayout, payload.NewDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "new_date must be YYYY-MM-DD"))
			return
		}

		sub, err := svc.Reschedule(r.Context(), shopID, subID, subsvc.RescheduleInput{
			NewDate:     newDate,
			NewTimeSlot: payload.NewTimeSlot,
			Permanent:   payload.Permanent,
			Reason:      payload.Reason,
			RequestedBy: requestedBy(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubscriptionResponse(sub))
	}
}

// ClearReschedule drops a pending one-time reschedule and restores the
// cadence-derived pickup and billing dates.
func ClearReschedule(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopID, err := shopcontext.ResolveShopID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		subID, err := shopcontext.ParseUUIDParam(r, "subscriptionID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sub, err := svc.ClearReschedule(r.Context(), shopID, subID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubscriptionResponse(sub))
	}
}

// UpcomingBillings lists subscriptions whose billing lands inside the window.
func UpcomingBillings(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shopID, err := shopcontext.ResolveShopID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		days, err := validators.ParseQueryInt(r, "days", 7, 1, 60)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 100, 1, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		subs, err := svc.UpcomingBillings(r.Context(), shopID, days, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubscriptionListResponse(subs))
	}
}

// FailedBillings lists subscriptions carrying billing failures.
func FailedBillings(svc subsvc.Service, logg *logger.Logger) http.HandlerFunc {
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

		subs, err := svc.FailedBillings(r.Context(), shopID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSubscriptionListResponse(subs))
	}
}
