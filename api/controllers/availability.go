package controllers

import (
	"net/http"
	"time"

	"github.com/meridianfarms/pickups-backend/api/controllers/shopcontext"
	"github.com/meridianfarms/pickups-backend/api/responses"
	"github.com/meridianfarms/pickups-backend/api/validators"
	availabilitysvc "github.com/meridianfarms/pickups-backend/internal/availability"
	pkgerrors "github.com/meridianfarms/pickups-backend/pkg/errors"
	"github.com/meridianfarms/pickups-backend/pkg/logger"
)

const dateLayout = "2006-01-02"

// AvailabilityPreview returns the bookable days and slots ahead of now.
func AvailabilityPreview(svc availabilitysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "availability service unavailable"))
			return
		}

		shopID, err := shopcontext.ResolveShopID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		days, err := svc.Preview(r.Context(), shopID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, days)
	}
}

// AvailabilityCheck answers whether a specific date (and optionally slot) is
// bookable right now.
func AvailabilityCheck(svc availabilitysvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "availability service unavailable"))
			return
		}

		shopID, err := shopcontext.ResolveShopID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rawDate := validators.SanitizeString(r.URL.Query().Get("date"), 10)
		if rawDate == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "date query parameter required"))
			return
		}
		date, err := time.Parse(dateLayout, rawDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "date must be YYYY-MM-DD"))
			return
		}

		slot := validators.SanitizeString(r.URL.Query().Get("slot"), 64)

		var bookable bool
		if slot != "" {
			bookable, err = svc.CheckSlot(r.Context(), shopID, date, slot)
		} else {
			bookable, err = svc.CheckDate(r.Context(), shopID, date)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload := map[string]any{
			"date":     rawDate,
			"bookable": bookable,
		}
		if slot != "" {
			payload["slot"] = slot
		}
		responses.WriteSuccess(w, payload)
	}
}
