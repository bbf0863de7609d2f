package billing

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/meridianfarms/pickups-backend/api/controllers/shopcontext"
	"github.com/meridianfarms/pickups-backend/api/responses"
	"github.com/meridianfarms/pickups-backend/api/validators"
	billingsvc "github.com/meridianfarms/pickups-backend/internal/billing"
	"github.com/meridianfarms/pickups-backend/pkg/db/models"
	pkgerrors "github.com/meridianfarms/pickups-backend/pkg/errors"
	"github.com/meridianfarms/pickups-backend/pkg/logger"
)

type attemptResponse struct {
	ID           uuid.UUID `json:"id"`
	BillingCycle int       `json:"billing_cycle"`
	Status       string    `json:"status"`
	PlatformRef  *string   `json:"platform_ref,omitempty"`
	OrderID      *string   `json:"order_id,omitempty"`
	ErrorCode    *string   `json:"error_code,omitempty"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func newAttemptResponses(rows []models.BillingAttemptLog) []attemptResponse {
	out := make([]attemptResponse, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		out = append(out, attemptResponse{
			ID:           row.ID,
			BillingCycle: row.BillingCycle,
			Status:       row.Status.String(),
			PlatformRef:  row.PlatformRef,
			OrderID:      row.OrderID,
			ErrorCode:    row.ErrorCode,
			ErrorMessage: row.ErrorMessage,
			CreatedAt:    row.CreatedAt,
			UpdatedAt:    row.UpdatedAt,
		})
	}
	return out
}

// ManualRetry reactivates a failure-paused subscription and reruns its due
// billing once.
func ManualRetry(svc billingsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

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

		sub, err := svc.ManualRetry(r.Context(), shopID, subID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"subscription_id":       sub.ID,
			"status":                sub.Status.String(),
			"billing_failure_count": sub.BillingFailureCount,
			"last_billing_status":   sub.LastBillingStatus,
			"next_billing_date":     sub.NextBillingDate,
		})
	}
}

// AttemptHistory lists a subscription's billing attempt log, newest cycle first.
func AttemptHistory(svc billingsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

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

		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.AttemptHistory(r.Context(), shopID, subID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newAttemptResponses(rows))
	}
}
