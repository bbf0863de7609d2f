package subscriptions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meridianfarms/pickups-backend/pkg/db/models"
	"github.com/meridianfarms/pickups-backend/pkg/enums"
	pkgerrors "github.com/meridianfarms/pickups-backend/pkg/errors"
	"github.com/meridianfarms/pickups-backend/pkg/outbox"
	"github.com/meridianfarms/pickups-backend/pkg/outbox/payloads"
)

// RescheduleInput moves the next pickup to a new date and slot. A permanent
// reschedule also rewrites the subscription's preferred weekday and slot; a
// one-time reschedule applies to the next pickup only.
type RescheduleInput struct {
	NewDate     time.Time
	NewTimeSlot string
	Permanent   bool
	Reason      string
	RequestedBy string
}

func (s *service) Reschedule(ctx context.Context, shopID, subscriptionID uuid.UUID, input RescheduleInput) (*models.Subscription, error) {
	sub, err := s.find(ctx, shopID, subscriptionID)
	if err != nil {
		return nil, err
	}
	if err := s.rejectTerminal(sub); err != nil {
		return nil, err
	}
	if sub.Status != enums.SubscriptionStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only active subscriptions can be rescheduled")
	}
	if input.NewDate.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "new pickup date required")
	}
	if strings.TrimSpace(input.NewTimeSlot) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "new time slot required")
	}

	newDate := s.clk.DateOf(input.NewDate)

	bookable, err := s.availability.CheckSlot(ctx, shopID, newDate, input.NewTimeSlot)
	if err != nil {
		return nil, err
	}
	if !bookable {
		return nil, pkgerrors.New(pkgerrors.CodeSchedulingConflict,
			fmt.Sprintf("slot %q on %s is not bookable", input.NewTimeSlot, newDate.Format("2006-01-02")))
	}

	slotMinutes, err := s.availability.SlotStartMinutes(ctx, shopID, input.NewTimeSlot)
	if err != nil {
		return nil, err
	}

	newBilling, err := s.calc.BillingDate(newDate, slotMinutes, sub.BillingLeadHours)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deriving billing date for reschedule")
	}
	// The charge for the moved pickup must still be in the future; otherwise
	// nothing is mutated and the caller gets a conflict to surface.
	if !newBilling.After(s.clk.Now()) {
		return nil, pkgerrors.New(pkgerrors.CodeSchedulingConflict,
			"new pickup date would place its billing instant in the past")
	}

	if input.Permanent {
		sub.PreferredDayOfWeek = s.clk.DayOfWeek(newDate)
		sub.PreferredTimeSlot = input.NewTimeSlot
		sub.PreferredTimeSlotStartMinutes = slotMinutes
		sub.NextPickupDate = &newDate
		// A permanent change supersedes any pending one-time override.
		sub.ClearOverride()
	} else {
		now := s.clk.Now()
		slot := input.NewTimeSlot
		sub.OneTimeRescheduleDate = &newDate
		sub.OneTimeRescheduleTimeSlot = &slot
		sub.OneTimeRescheduleAt = &now
		if input.Reason != "" {
			reason := input.Reason
			sub.OneTimeRescheduleReason = &reason
		}
		if input.RequestedBy != "" {
			by := input.RequestedBy
			sub.OneTimeRescheduleBy = &by
		}
		sub.NextPickupDate = &newDate
	}
	sub.NextBillingDate = &newBilling

	pending, err := s.pickups.LatestScheduledBySubscription(ctx, sub.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading pending pickup")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.UpdateTx(ctx, tx, sub); err != nil {
			return err
		}
		if pending == nil {
			return nil
		}
		oldDate := pending.PickupDate
		oldSlot := pending.PickupTimeSlot
		pending.PickupDate = newDate
		pending.PickupTimeSlot = input.NewTimeSlot
		appendPickupNote(pending, rescheduleNote(oldDate, oldSlot, newDate, input))
		if err := s.pickups.UpdateTx(ctx, tx, pending); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPickupRescheduled,
			AggregateType: enums.AggregatePickup,
			AggregateID:   pending.ID,
			Version:       1,
			Data: payloads.PickupRescheduledEvent{
				PickupID:       pending.ID,
				SubscriptionID: sub.ID,
				ShopID:         sub.ShopID,
				OldPickupDate:  oldDate,
				NewPickupDate:  newDate,
				NewTimeSlot:    input.NewTimeSlot,
				Permanent:      input.Permanent,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "applying reschedule")
	}
	return sub, nil
}

// ClearReschedule cancels a pending one-time override and restores the
// subscription's cadence-derived pickup and billing dates.
func (s *service) ClearReschedule(ctx context.Context, shopID, subscriptionID uuid.UUID) (*models.Subscription, error) {
	sub, err := s.find(ctx, shopID, subscriptionID)
	if err != nil {
		return nil, err
	}
	if err := s.rejectTerminal(sub); err != nil {
		return nil, err
	}
	if !sub.HasPendingOverride() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no one-time reschedule is pending")
	}

	restoredDate, err := s.calc.NextPickupDateFromToday(sub.PreferredDayOfWeek, sub.Frequency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deriving restored pickup date")
	}
	restoredBilling, err := s.calc.BillingDate(restoredDate, sub.PreferredTimeSlotStartMinutes, sub.BillingLeadHours)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deriving billing date for restored pickup")
	}

	sub.ClearOverride()
	sub.NextPickupDate = &restoredDate
	sub.NextBillingDate = &restoredBilling

	pending, err := s.pickups.LatestScheduledBySubscription(ctx, sub.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading pending pickup")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.UpdateTx(ctx, tx, sub); err != nil {
			return err
		}
		if pending == nil {
			return nil
		}
		oldDate := pending.PickupDate
		oldSlot := pending.PickupTimeSlot
		pending.PickupDate = restoredDate
		pending.PickupTimeSlot = sub.PreferredTimeSlot
		appendPickupNote(pending, fmt.Sprintf("one-time reschedule cleared: %s %s -> %s %s",
			oldDate.Format("2006-01-02"), oldSlot,
			restoredDate.Format("2006-01-02"), sub.PreferredTimeSlot))
		if err := s.pickups.UpdateTx(ctx, tx, pending); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPickupRescheduled,
			AggregateType: enums.AggregatePickup,
			AggregateID:   pending.ID,
			Version:       1,
			Data: payloads.PickupRescheduledEvent{
				PickupID:       pending.ID,
				SubscriptionID: sub.ID,
				ShopID:         sub.ShopID,
				OldPickupDate:  oldDate,
				NewPickupDate:  restoredDate,
				NewTimeSlot:    sub.PreferredTimeSlot,
				Permanent:      false,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clearing reschedule")
	}
	return sub, nil
}

// rescheduleNote renders the audit line appended to a rewritten pickup.
func rescheduleNote(oldDate time.Time, oldSlot string, newDate time.Time, input RescheduleInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "rescheduled %s %s -> %s %s",
		oldDate.Format("2006-01-02"), oldSlot,
		newDate.Format("2006-01-02"), input.NewTimeSlot)
	if input.Reason != "" {
		fmt.Fprintf(&b, " (%s)", input.Reason)
	}
	if input.RequestedBy != "" {
		fmt.Fprintf(&b, " by %s", input.RequestedBy)
	}
	return b.String()
}

func appendPickupNote(p *models.PickupSchedule, note string) {
	if p.Notes == "" {
		p.Notes = note
		return
	}
	p.Notes = p.Notes + "\n" + note
}
