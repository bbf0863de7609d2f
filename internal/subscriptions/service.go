package subscriptions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meridianfarms/pickups-backend/internal/schedule"
	"github.com/meridianfarms/pickups-backend/pkg/clock"
	"github.com/meridianfarms/pickups-backend/pkg/db/models"
	"github.com/meridianfarms/pickups-backend/pkg/enums"
	pkgerrors "github.com/meridianfarms/pickups-backend/pkg/errors"
	"github.com/meridianfarms/pickups-backend/pkg/logger"
	"github.com/meridianfarms/pickups-backend/pkg/outbox"
	"github.com/meridianfarms/pickups-backend/pkg/outbox/payloads"
)

type subscriptionsRepository interface {
	Create(ctx context.Context, sub *models.Subscription) (*models.Subscription, error)
	FindByID(ctx context.Context, shopID, id uuid.UUID) (*models.Subscription, error)
	Update(ctx context.Context, sub *models.Subscription) error
	UpdateTx(ctx context.Context, tx *gorm.DB, sub *models.Subscription) error
	ListByShop(ctx context.Context, shopID uuid.UUID, status *enums.SubscriptionStatus, limit int) ([]models.Subscription, error)
	DueForResume(ctx context.Context, shopID uuid.UUID, now time.Time) ([]models.Subscription, error)
	DueForPickup(ctx context.Context, shopID uuid.UUID, by time.Time) ([]models.Subscription, error)
	UpcomingBillings(ctx context.Context, shopID uuid.UUID, until time.Time, limit int) ([]models.Subscription, error)
	FailedBillings(ctx context.Context, shopID uuid.UUID, limit int) ([]models.Subscription, error)
}

type pickupsStore interface {
	LatestScheduledBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*models.PickupSchedule, error)
	ExistsActiveForDate(ctx context.Context, subscriptionID uuid.UUID, date time.Time) (bool, error)
	CreateTx(ctx context.Context, tx *gorm.DB, pickup *models.PickupSchedule) (*models.PickupSchedule, error)
	UpdateTx(ctx context.Context, tx *gorm.DB, pickup *models.PickupSchedule) error
}

type availabilityChecker interface {
	CheckSlot(ctx context.Context, shopID uuid.UUID, date time.Time, slotLabel string) (bool, error)
	SlotStartMinutes(ctx context.Context, shopID uuid.UUID, slotLabel string) (int, error)
}

type contractCanceller interface {
	CancelContract(ctx context.Context, contractID string) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service owns the subscription lifecycle: creation, the state machine, the
// reschedule flow, and the sweep-facing resume and materialization steps.
type Service interface {
	Create(ctx context.Context, shopID uuid.UUID, input CreateInput) (*models.Subscription, error)
	Get(ctx context.Context, shopID, subscriptionID uuid.UUID) (*models.Subscription, error)
	List(ctx context.Context, shopID uuid.UUID, status *enums.SubscriptionStatus, limit int) ([]models.Subscription, error)

	Pause(ctx context.Context, shopID, subscriptionID uuid.UUID, input PauseInput) (*models.Subscription, error)
	Resume(ctx context.Context, shopID, subscriptionID uuid.UUID) (*models.Subscription, error)
	Cancel(ctx context.Context, shopID, subscriptionID uuid.UUID, reason string) (*models.Subscription, error)
	SkipNext(ctx context.Context, shopID, subscriptionID uuid.UUID) (*models.Subscription, error)
	Reschedule(ctx context.Context, shopID, subscriptionID uuid.UUID, input RescheduleInput) (*models.Subscription, error)
	ClearReschedule(ctx context.Context, shopID, subscriptionID uuid.UUID) (*models.Subscription, error)

	ResumeDue(ctx context.Context, shopID uuid.UUID) (int, error)
	MaterializeDuePickups(ctx context.Context, shopID uuid.UUID) (int, error)

	UpcomingBillings(ctx context.Context, shopID uuid.UUID, days, limit int) ([]models.Subscription, error)
	FailedBillings(ctx context.Context, shopID uuid.UUID, limit int) ([]models.Subscription, error)
}

// CreateInput describes a new recurring pickup order.
type CreateInput struct {
	CustomerName       string
	CustomerEmail      string
	CustomerPhone      string
	Frequency          enums.Frequency
	PreferredDayOfWeek int
	PreferredTimeSlot  string
	BillingLeadHours   int
	PlatformContractID string
	AdminNotes         string
}

// PauseInput carries an optional auto-resume instant and a customer-supplied
// reason.
type PauseInput struct {
	Until  *time.Time
	Reason string
	Actor  *outbox.ActorRef
}

// ServiceParams bundles the service dependencies.
type ServiceParams struct {
	Repo         subscriptionsRepository
	Pickups      pickupsStore
	Availability availabilityChecker
	Platform     contractCanceller
	Tx           txRunner
	Events       eventEmitter
	Calc         *schedule.Calculator
	Clock        *clock.Clock
	Logger       *logger.Logger

	DefaultLeadHours int
}

type service struct {
	repo         subscriptionsRepository
	pickups      pickupsStore
	availability availabilityChecker
	platform     contractCanceller
	tx           txRunner
	events       eventEmitter
	calc         *schedule.Calculator
	clk          *clock.Clock
	logg         *logger.Logger

	defaultLeadHours int
}

// NewService builds the subscription lifecycle service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("subscriptions repository required")
	}
	if params.Pickups == nil {
		return nil, fmt.Errorf("pickups store required")
	}
	if params.Availability == nil {
		return nil, fmt.Errorf("availability checker required")
	}
	if params.Platform == nil {
		return nil, fmt.Errorf("platform client required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Events == nil {
		return nil, fmt.Errorf("event emitter required")
	}
	if params.Calc == nil {
		return nil, fmt.Errorf("schedule calculator required")
	}
	if params.Clock == nil {
		return nil, fmt.Errorf("clock required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DefaultLeadHours <= 0 {
		params.DefaultLeadHours = 24
	}
	return &service{
		repo:             params.Repo,
		pickups:          params.Pickups,
		availability:     params.Availability,
		platform:         params.Platform,
		tx:               params.Tx,
		events:           params.Events,
		calc:             params.Calc,
		clk:              params.Clock,
		logg:             params.Logger,
		defaultLeadHours: params.DefaultLeadHours,
	}, nil
}

func (s *service) Create(ctx context.Context, shopID uuid.UUID, input CreateInput) (*models.Subscription, error) {
	if shopID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop identity missing")
	}
	if strings.TrimSpace(input.CustomerName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer name required")
	}
	if strings.TrimSpace(input.CustomerEmail) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer email required")
	}
	if !input.Frequency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid frequency %q", input.Frequency))
	}
	if input.PreferredDayOfWeek < 0 || input.PreferredDayOfWeek > 6 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "preferred day of week must be 0-6")
	}
	if strings.TrimSpace(input.PlatformContractID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "platform contract id required")
	}

	slotMinutes, err := s.availability.SlotStartMinutes(ctx, shopID, input.PreferredTimeSlot)
	if err != nil {
		return nil, err
	}

	leadHours := input.BillingLeadHours
	if leadHours == 0 {
		leadHours = s.defaultLeadHours
	}
	leadHours = s.calc.ClampLeadHours(leadHours)

	nextPickup, err := s.calc.NextPickupDateFromToday(input.PreferredDayOfWeek, input.Frequency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "deriving first pickup date")
	}
	nextBilling, err := s.calc.BillingDate(nextPickup, slotMinutes, leadHours)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deriving first billing date")
	}

	sub := &models.Subscription{
		ShopID:                        shopID,
		CustomerName:                  input.CustomerName,
		CustomerEmail:                 input.CustomerEmail,
		CustomerPhone:                 input.CustomerPhone,
		Frequency:                     input.Frequency,
		PreferredDayOfWeek:            input.PreferredDayOfWeek,
		PreferredTimeSlot:             input.PreferredTimeSlot,
		PreferredTimeSlotStartMinutes: slotMinutes,
		DiscountPercent:               input.Frequency.DiscountPercent(),
		BillingLeadHours:              leadHours,
		PlatformContractID:            input.PlatformContractID,
		AdminNotes:                    input.AdminNotes,
	}
	sub.Activate(nextPickup, nextBilling)

	if _, err := s.repo.Create(ctx, sub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating subscription")
	}
	return sub, nil
}

func (s *service) Get(ctx context.Context, shopID, subscriptionID uuid.UUID) (*models.Subscription, error) {
	return s.find(ctx, shopID, subscriptionID)
}

func (s *service) List(ctx context.Context, shopID uuid.UUID, status *enums.SubscriptionStatus, limit int) ([]models.Subscription, error) {
	if shopID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop identity missing")
	}
	if status != nil && !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid status filter %q", *status))
	}
	return s.repo.ListByShop(ctx, shopID, status, limit)
}

func (s *service) Pause(ctx context.Context, shopID, subscriptionID uuid.UUID, input PauseInput) (*models.Subscription, error) {
	sub, err := s.find(ctx, shopID, subscriptionID)
	if err != nil {
		return nil, err
	}
	if err := s.rejectTerminal(sub); err != nil {
		return nil, err
	}
	if sub.Status == enums.SubscriptionStatusPaused {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "subscription is already paused")
	}
	if input.Until != nil && !input.Until.After(s.clk.Now()) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pause end must be in the future")
	}

	sub.Status = enums.SubscriptionStatusPaused
	sub.PausedUntil = input.Until
	if input.Reason != "" {
		reason := input.Reason
		sub.PauseReason = &reason
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.UpdateTx(ctx, tx, sub); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSubscriptionPaused,
			AggregateType: enums.AggregateSubscription,
			AggregateID:   sub.ID,
			Actor:         input.Actor,
			Version:       1,
			Data: payloads.SubscriptionPausedEvent{
				SubscriptionID: sub.ID,
				ShopID:         sub.ShopID,
				PausedUntil:    sub.PausedUntil,
				Reason:         input.Reason,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "pausing subscription")
	}
	return sub, nil
}

func (s *service) Resume(ctx context.Context, shopID, subscriptionID uuid.UUID) (*models.Subscription, error) {
	sub, err := s.find(ctx, shopID, subscriptionID)
	if err != nil {
		return nil, err
	}
	if err := s.rejectTerminal(sub); err != nil {
		return nil, err
	}
	if sub.Status != enums.SubscriptionStatusPaused {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "subscription is not paused")
	}
	if err := s.resume(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// resume reactivates a paused subscription: failure count resets, both due
// dates are recomputed from today, and a resumed event goes out.
func (s *service) resume(ctx context.Context, sub *models.Subscription) error {
	nextPickup, err := s.calc.NextPickupDateFromToday(sub.PreferredDayOfWeek, sub.Frequency)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deriving pickup date on resume")
	}
	nextBilling, err := s.calc.BillingDate(nextPickup, sub.PreferredTimeSlotStartMinutes, sub.BillingLeadHours)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deriving billing date on resume")
	}

	sub.Activate(nextPickup, nextBilling)
	sub.BillingFailureCount = 0

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.UpdateTx(ctx, tx, sub); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSubscriptionResumed,
			AggregateType: enums.AggregateSubscription,
			AggregateID:   sub.ID,
			Version:       1,
			Data: payloads.SubscriptionResumedEvent{
				SubscriptionID:  sub.ID,
				ShopID:          sub.ShopID,
				NextPickupDate:  nextPickup,
				NextBillingDate: nextBilling,
			},
		})
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resuming subscription")
	}
	return nil
}

func (s *service) Cancel(ctx context.Context, shopID, subscriptionID uuid.UUID, reason string) (*models.Subscription, error) {
	sub, err := s.find(ctx, shopID, subscriptionID)
	if err != nil {
		return nil, err
	}
	if err := s.rejectTerminal(sub); err != nil {
		return nil, err
	}

	// Contract teardown is best effort: the local row flips regardless, so a
	// degraded platform can never hold a customer in a billable state.
	if err := s.platform.CancelContract(ctx, sub.PlatformContractID); err != nil {
		s.logg.Error(s.logg.WithSubscriptionID(ctx, sub.ID.String()), "platform contract cancel failed", err)
	}

	now := s.clk.Now()
	sub.MarkCancelled()
	sub.ClearOverride()

	pending, err := s.pickups.LatestScheduledBySubscription(ctx, sub.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading pending pickup")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.UpdateTx(ctx, tx, sub); err != nil {
			return err
		}
		if pending != nil {
			pending.PickupStatus = enums.PickupStatusCancelled
			if err := s.pickups.UpdateTx(ctx, tx, pending); err != nil {
				return err
			}
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSubscriptionCanceled,
			AggregateType: enums.AggregateSubscription,
			AggregateID:   sub.ID,
			Version:       1,
			Data: payloads.SubscriptionCanceledEvent{
				SubscriptionID: sub.ID,
				ShopID:         sub.ShopID,
				Reason:         reason,
				CanceledAt:     now,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancelling subscription")
	}
	return sub, nil
}

func (s *service) SkipNext(ctx context.Context, shopID, subscriptionID uuid.UUID) (*models.Subscription, error) {
	sub, err := s.find(ctx, shopID, subscriptionID)
	if err != nil {
		return nil, err
	}
	if err := s.rejectTerminal(sub); err != nil {
		return nil, err
	}
	if sub.Status != enums.SubscriptionStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only active subscriptions can skip a pickup")
	}
	if sub.NextPickupDate == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "subscription has no scheduled pickup to skip")
	}

	// Skipping discards any one-time override along with the skipped date.
	skipped := *sub.NextPickupDate
	nextPickup, err := s.calc.NextPickupDate(skipped, sub.PreferredDayOfWeek, sub.Frequency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "advancing pickup date")
	}
	nextBilling, err := s.calc.BillingDate(nextPickup, sub.PreferredTimeSlotStartMinutes, sub.BillingLeadHours)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "advancing billing date")
	}

	sub.ClearOverride()
	sub.NextPickupDate = &nextPickup
	sub.NextBillingDate = &nextBilling

	pending, err := s.pickups.LatestScheduledBySubscription(ctx, sub.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading pending pickup")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.UpdateTx(ctx, tx, sub); err != nil {
			return err
		}
		if pending != nil {
			oldDate := pending.PickupDate
			pending.PickupDate = nextPickup
			pending.PickupTimeSlot = sub.PreferredTimeSlot
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
					NewPickupDate:  nextPickup,
					NewTimeSlot:    sub.PreferredTimeSlot,
					Permanent:      false,
				},
			})
		}
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "skipping pickup")
	}
	return sub, nil
}

// ResumeDue reactivates every paused subscription in the shop whose pause
// window has elapsed. Returns the number resumed.
func (s *service) ResumeDue(ctx context.Context, shopID uuid.UUID) (int, error) {
	due, err := s.repo.DueForResume(ctx, shopID, s.clk.Now())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing subscriptions due for resume")
	}

	resumed := 0
	for i := range due {
		sub := &due[i]
		if err := s.resume(ctx, sub); err != nil {
			s.logg.Error(s.logg.WithSubscriptionID(ctx, sub.ID.String()), "auto-resume failed", err)
			continue
		}
		resumed++
	}
	return resumed, nil
}

// MaterializeDuePickups creates pickup rows for active subscriptions whose
// next pickup date has arrived and has no row yet. Returns the number created.
func (s *service) MaterializeDuePickups(ctx context.Context, shopID uuid.UUID) (int, error) {
	due, err := s.repo.DueForPickup(ctx, shopID, s.clk.Today())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing subscriptions due for pickup")
	}

	created := 0
	for i := range due {
		sub := &due[i]
		ok, err := s.materializePickup(ctx, sub)
		if err != nil {
			s.logg.Error(s.logg.WithSubscriptionID(ctx, sub.ID.String()), "pickup materialization failed", err)
			continue
		}
		if ok {
			created++
		}
	}
	return created, nil
}

func (s *service) materializePickup(ctx context.Context, sub *models.Subscription) (bool, error) {
	date := *sub.NextPickupDate
	slot := sub.PreferredTimeSlot
	if sub.HasPendingOverride() {
		date = *sub.OneTimeRescheduleDate
		if sub.OneTimeRescheduleTimeSlot != nil {
			slot = *sub.OneTimeRescheduleTimeSlot
		}
	}

	exists, err := s.pickups.ExistsActiveForDate(ctx, sub.ID, date)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	subID := sub.ID
	pickup := &models.PickupSchedule{
		ShopID:         sub.ShopID,
		SubscriptionID: &subID,
		CustomerName:   sub.CustomerName,
		CustomerEmail:  sub.CustomerEmail,
		CustomerPhone:  sub.CustomerPhone,
		PickupDate:     date,
		PickupTimeSlot: slot,
		PickupStatus:   enums.PickupStatusScheduled,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.pickups.CreateTx(ctx, tx, pickup); err != nil {
			return err
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPickupScheduled,
			AggregateType: enums.AggregatePickup,
			AggregateID:   pickup.ID,
			Version:       1,
			Data: payloads.PickupScheduledEvent{
				PickupID:       pickup.ID,
				SubscriptionID: sub.ID,
				ShopID:         sub.ShopID,
				PickupDate:     date,
				PickupTimeSlot: slot,
			},
		})
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *service) UpcomingBillings(ctx context.Context, shopID uuid.UUID, days, limit int) ([]models.Subscription, error) {
	if shopID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop identity missing")
	}
	if days <= 0 {
		days = 7
	}
	until := s.clk.Now().AddDate(0, 0, days)
	return s.repo.UpcomingBillings(ctx, shopID, until, limit)
}

func (s *service) FailedBillings(ctx context.Context, shopID uuid.UUID, limit int) ([]models.Subscription, error) {
	if shopID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop identity missing")
	}
	return s.repo.FailedBillings(ctx, shopID, limit)
}

func (s *service) find(ctx context.Context, shopID, subscriptionID uuid.UUID) (*models.Subscription, error) {
	if shopID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop identity missing")
	}
	if subscriptionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription identity missing")
	}
	sub, err := s.repo.FindByID(ctx, shopID, subscriptionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading subscription")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	return sub, nil
}

func (s *service) rejectTerminal(sub *models.Subscription) error {
	if sub.Status.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "subscription is cancelled")
	}
	return nil
}
