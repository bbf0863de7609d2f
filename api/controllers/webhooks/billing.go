package webhooks

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/meridianfarms/pickups-backend/api/responses"
	"github.com/meridianfarms/pickups-backend/api/validators"
	billingsvc "github.com/meridianfarms/pickups-backend/internal/billing"
	pkgerrors "github.com/meridianfarms/pickups-backend/pkg/errors"
	"github.com/meridianfarms/pickups-backend/pkg/logger"
)

type billingConfirmationRequest struct {
	AttemptRef   string `json:"attempt_ref" validate:"required,max=128"`
	Success      bool   `json:"success"`
	OrderID      string `json:"order_id,omitempty" validate:"max=128"`
	ErrorCode    string `json:"error_code,omitempty" validate:"max=64"`
	ErrorMessage string `json:"error_message,omitempty" validate:"max=1000"`
}

// BillingConfirmation ingests the platform's deferred settlement callback.
// Redeliveries of an already-settled attempt are acknowledged without effect.
func BillingConfirmation(svc billingsvc.Service, sharedToken string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "billing service unavailable"))
			return
		}

		if sharedToken != "" {
			provided := strings.TrimSpace(r.Header.Get("X-Platform-Token"))
			if subtle.ConstantTimeCompare([]byte(provided), []byte(sharedToken)) != 1 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook token"))
				return
			}
		}

		var payload billingConfirmationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		err := svc.ApplyConfirmation(r.Context(), billingsvc.ConfirmationInput{
			AttemptRef:   payload.AttemptRef,
			Success:      payload.Success,
			OrderID:      payload.OrderID,
			ErrorCode:    payload.ErrorCode,
			ErrorMessage: payload.ErrorMessage,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "accepted"})
	}
}
