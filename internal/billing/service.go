package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/meridianfarms/pickups-backend/internal/schedule"
	"github.com/meridianfarms/pickups-backend/pkg/clock"
	"github.com/meridianfarms/pickups-backend/pkg/db"
	"github.com/meridianfarms/pickups-backend/pkg/db/models"
	"github.com/meridianfarms/pickups-backend/pkg/enums"
	pkgerrors "github.com/meridianfarms/pickups-backend/pkg/errors"
	"github.com/meridianfarms/pickups-backend/pkg/logger"
	"github.com/meridianfarms/pickups-backend/pkg/outbox"
	"github.com/meridianfarms/pickups-backend/pkg/outbox/payloads"
	"github.com/meridianfarms/pickups-backend/pkg/platform"
)

// attemptUniqueConstraint is the (subscription_id, billing_cycle) unique
// index; hitting it means a concurrent sweep already owns this cycle.
const attemptUniqueConstraint = "ux_billing_attempts_sub_cycle"

// autoPauseReasonPrefix marks failure-driven pauses. ManualRetry only acts on
// subscriptions paused with this prefix.
const autoPauseReasonPrefix = "auto-paused after"

// Pending attempts whose webhook never arrived are polled back from the
// platform once they are this old.
const (
	reconcileStaleAfter = time.Hour
	reconcileBatchSize  = 100
)

// Outcome classifies one processed subscription.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomePending Outcome = "pending"
	OutcomeSkipped Outcome = "skipped"
)

// RunSummary counts one shop's billing pass.
type RunSummary struct {
	Attempted int
	Succeeded int
	Failed    int
	Pending   int
	Skipped   int
}

type attemptsRepository interface {
	Create(ctx context.Context, attempt *models.BillingAttemptLog) error
	FindBySubscriptionAndCycle(ctx context.Context, subscriptionID uuid.UUID, cycle int) (*models.BillingAttemptLog, error)
	FindByPlatformRef(ctx context.Context, platformRef string) (*models.BillingAttemptLog, error)
	Update(ctx context.Context, attempt *models.BillingAttemptLog) error
	UpdateTx(ctx context.Context, tx *gorm.DB, attempt *models.BillingAttemptLog) error
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	ListBySubscription(ctx context.Context, subscriptionID uuid.UUID, limit int) ([]models.BillingAttemptLog, error)
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.BillingAttemptLog, error)
}

type subscriptionsStore interface {
	DueForBilling(ctx context.Context, shopID uuid.UUID, now time.Time, maxFailures int) ([]models.Subscription, error)
	FindByID(ctx context.Context, shopID, id uuid.UUID) (*models.Subscription, error)
	FindAnyByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	Update(ctx context.Context, sub *models.Subscription) error
	UpdateTx(ctx context.Context, tx *gorm.DB, sub *models.Subscription) error
}

type billingProvider interface {
	CreateBillingAttempt(ctx context.Context, req platform.BillingAttemptRequest) (*platform.BillingAttemptResult, error)
	GetBillingAttempt(ctx context.Context, attemptRef string) (*platform.BillingAttemptResult, error)
}

type pickupsStore interface {
	ExistsActiveForDate(ctx context.Context, subscriptionID uuid.UUID, date time.Time) (bool, error)
	CreateTx(ctx context.Context, tx *gorm.DB, pickup *models.PickupSchedule) (*models.PickupSchedule, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ConfirmationInput is the webhook's asynchronous settlement of a previously
// accepted charge.
type ConfirmationInput struct {
	AttemptRef   string
	Success      bool
	OrderID      string
	ErrorCode    string
	ErrorMessage string
}

// Service drives billing: the sweep pass over due subscriptions, webhook
// confirmations, manual retries, and attempt-log retention.
type Service interface {
	ProcessDueBillings(ctx context.Context, shopID uuid.UUID) (RunSummary, error)
	ProcessSingleBilling(ctx context.Context, sub *models.Subscription) (Outcome, error)
	ManualRetry(ctx context.Context, shopID, subscriptionID uuid.UUID) (*models.Subscription, error)
	ApplyConfirmation(ctx context.Context, input ConfirmationInput) error
	ReconcilePendingAttempts(ctx context.Context) (int, error)
	PurgeOldAttempts(ctx context.Context) (int64, error)
	AttemptHistory(ctx context.Context, shopID, subscriptionID uuid.UUID, limit int) ([]models.BillingAttemptLog, error)
}

// ServiceParams bundles the service dependencies.
type ServiceParams struct {
	Attempts      attemptsRepository
	Subscriptions subscriptionsStore
	Pickups       pickupsStore
	Provider      billingProvider
	Tx            txRunner
	Events        eventEmitter
	Calc          *schedule.Calculator
	Clock         *clock.Clock
	Logger        *logger.Logger

	MaxFailures   int
	RetentionDays int
}

type service struct {
	attempts attemptsRepository
	subs     subscriptionsStore
	pickups  pickupsStore
	provider billingProvider
	tx       txRunner
	events   eventEmitter
	calc     *schedule.Calculator
	clk      *clock.Clock
	logg     *logger.Logger

	maxFailures   int
	retentionDays int
}

// NewService builds the billing orchestrator.
func NewService(params ServiceParams) (Service, error) {
	if params.Attempts == nil {
		return nil, fmt.Errorf("attempts repository required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscriptions store required")
	}
	if params.Pickups == nil {
		return nil, fmt.Errorf("pickups store required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("billing provider required")
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
	if params.MaxFailures <= 0 {
		params.MaxFailures = 3
	}
	if params.RetentionDays <= 0 {
		params.RetentionDays = 90
	}
	return &service{
		attempts:      params.Attempts,
		subs:          params.Subscriptions,
		pickups:       params.Pickups,
		provider:      params.Provider,
		tx:            params.Tx,
		events:        params.Events,
		calc:          params.Calc,
		clk:           params.Clock,
		logg:          params.Logger,
		maxFailures:   params.MaxFailures,
		retentionDays: params.RetentionDays,
	}, nil
}

// ProcessDueBillings charges every subscription in the shop whose billing
// instant has arrived. One subscription's failure never blocks the rest; the
// collected errors come back alongside the summary.
func (s *service) ProcessDueBillings(ctx context.Context, shopID uuid.UUID) (RunSummary, error) {
	var summary RunSummary

	due, err := s.subs.DueForBilling(ctx, shopID, s.clk.Now(), s.maxFailures)
	if err != nil {
		return summary, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing subscriptions due for billing")
	}

	var errs error
	for i := range due {
		sub := &due[i]
		outcome, err := s.ProcessSingleBilling(ctx, sub)
		summary.Attempted++
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("subscription %s: %w", sub.ID, err))
			s.logg.Error(s.logg.WithSubscriptionID(ctx, sub.ID.String()), "billing attempt errored", err)
			continue
		}
		switch outcome {
		case OutcomeSuccess:
			summary.Succeeded++
		case OutcomeFailed:
			summary.Failed++
		case OutcomePending:
			summary.Pending++
		case OutcomeSkipped:
			summary.Skipped++
		}
	}
	return summary, errs
}

// ProcessSingleBilling runs one charge cycle for one subscription. The
// attempt row is inserted as pending before the platform is called, so a
// crash between the two leaves an audit trail instead of a silent gap.
func (s *service) ProcessSingleBilling(ctx context.Context, sub *models.Subscription) (Outcome, error) {
	if sub.Status != enums.SubscriptionStatusActive {
		return OutcomeSkipped, nil
	}

	// Cycles are 1-based: a subscription with N settled cycles is charging
	// cycle N+1.
	cycle := sub.BillingCycleCount + 1
	attempt, err := s.attempts.FindBySubscriptionAndCycle(ctx, sub.ID, cycle)
	if err != nil {
		return OutcomeSkipped, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading attempt log")
	}

	switch {
	case attempt == nil:
		attempt = &models.BillingAttemptLog{
			SubscriptionID: sub.ID,
			BillingCycle:   cycle,
			IdempotencyKey: attemptIdempotencyKey(sub.ID, cycle),
			Status:         enums.BillingAttemptStatusPending,
		}
		if err := s.attempts.Create(ctx, attempt); err != nil {
			if db.IsUniqueViolation(err, attemptUniqueConstraint) {
				// A concurrent sweep owns this cycle.
				return OutcomeSkipped, nil
			}
			return OutcomeSkipped, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording attempt")
		}
	case attempt.Status == enums.BillingAttemptStatusSuccess:
		// Cycle already billed; nothing to do.
		return OutcomeSkipped, nil
	case attempt.Status == enums.BillingAttemptStatusPending && attempt.PlatformRef != nil:
		// Accepted earlier, still waiting on the webhook.
		return OutcomePending, nil
	case attempt.Status == enums.BillingAttemptStatusFailed:
		// Retry of a failed cycle reuses the row and its idempotency key.
		attempt.Status = enums.BillingAttemptStatusPending
		attempt.ErrorCode = nil
		attempt.ErrorMessage = nil
		if err := s.attempts.Update(ctx, attempt); err != nil {
			return OutcomeSkipped, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reopening attempt")
		}
	}

	result, err := s.provider.CreateBillingAttempt(ctx, platform.BillingAttemptRequest{
		ContractID:     sub.PlatformContractID,
		IdempotencyKey: attempt.IdempotencyKey,
	})
	if err != nil {
		if failErr := s.settleFailure(ctx, sub, attempt, "platform_error", err.Error()); failErr != nil {
			return OutcomeFailed, failErr
		}
		return OutcomeFailed, nil
	}

	if result.AttemptRef != "" {
		ref := result.AttemptRef
		attempt.PlatformRef = &ref
	}
	if !result.Ready {
		// Accepted but not settled; the webhook finishes this cycle.
		if err := s.attempts.Update(ctx, attempt); err != nil {
			return OutcomePending, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "storing platform ref")
		}
		return OutcomePending, nil
	}

	if result.Success {
		if err := s.settleSuccess(ctx, sub, attempt, result.OrderID); err != nil {
			return OutcomeSuccess, err
		}
		return OutcomeSuccess, nil
	}
	if err := s.settleFailure(ctx, sub, attempt, result.ErrorCode, result.ErrorMessage); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeFailed, nil
}

// settleSuccess marks the attempt settled, materializes the pickup the charge
// paid for, and advances the subscription one cycle: next pickup from the
// cadence anchor, billing from the new pickup, failure count reset, any
// one-time override consumed. A subscription cancelled while the charge was in
// flight only gets the attempt outcome recorded; the terminal row is left
// untouched.
func (s *service) settleSuccess(ctx context.Context, sub *models.Subscription, attempt *models.BillingAttemptLog, orderID string) error {
	attempt.Status = enums.BillingAttemptStatusSuccess
	if orderID != "" {
		id := orderID
		attempt.OrderID = &id
	}

	if sub.Status == enums.SubscriptionStatusCancelled {
		return s.recordAttemptOnly(ctx, sub, attempt, orderID)
	}

	if sub.NextPickupDate == nil {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "active subscription has no pickup date")
	}

	// The occurrence this charge paid for.
	billedDate := *sub.NextPickupDate
	billedSlot := sub.PreferredTimeSlot
	if sub.HasPendingOverride() {
		billedDate = *sub.OneTimeRescheduleDate
		if sub.OneTimeRescheduleTimeSlot != nil {
			billedSlot = *sub.OneTimeRescheduleTimeSlot
		}
	}

	nextPickup, err := s.calc.NextPickupDate(*sub.NextPickupDate, sub.PreferredDayOfWeek, sub.Frequency)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "advancing pickup date")
	}
	nextBilling, err := s.calc.BillingDate(nextPickup, sub.PreferredTimeSlotStartMinutes, sub.BillingLeadHours)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "advancing billing date")
	}

	pickupExists, err := s.pickups.ExistsActiveForDate(ctx, sub.ID, billedDate)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "checking billed pickup")
	}

	now := s.clk.Now()
	sub.NextPickupDate = &nextPickup
	sub.NextBillingDate = &nextBilling
	sub.BillingCycleCount++
	sub.BillingFailureCount = 0
	sub.ClearOverride()
	status := string(enums.BillingAttemptStatusSuccess)
	sub.LastBillingStatus = &status
	sub.LastBillingAttemptAt = &now

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.attempts.UpdateTx(ctx, tx, attempt); err != nil {
			return err
		}
		if err := s.subs.UpdateTx(ctx, tx, sub); err != nil {
			return err
		}
		if !pickupExists {
			subID := sub.ID
			pickup := &models.PickupSchedule{
				ShopID:         sub.ShopID,
				SubscriptionID: &subID,
				CustomerName:   sub.CustomerName,
				CustomerEmail:  sub.CustomerEmail,
				CustomerPhone:  sub.CustomerPhone,
				PickupDate:     billedDate,
				PickupTimeSlot: billedSlot,
				PickupStatus:   enums.PickupStatusScheduled,
			}
			if _, err := s.pickups.CreateTx(ctx, tx, pickup); err != nil {
				return err
			}
			if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPickupScheduled,
				AggregateType: enums.AggregatePickup,
				AggregateID:   pickup.ID,
				Version:       1,
				Data: payloads.PickupScheduledEvent{
					PickupID:       pickup.ID,
					SubscriptionID: sub.ID,
					ShopID:         sub.ShopID,
					PickupDate:     billedDate,
					PickupTimeSlot: billedSlot,
				},
			}); err != nil {
				return err
			}
		}
		return s.emitBillingSucceededTx(ctx, tx, sub, attempt, orderID)
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "settling successful attempt")
	}
	return nil
}

// recordAttemptOnly settles the attempt row for a subscription that reached a
// terminal state while the charge was in flight.
func (s *service) recordAttemptOnly(ctx context.Context, sub *models.Subscription, attempt *models.BillingAttemptLog, orderID string) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.attempts.UpdateTx(ctx, tx, attempt); err != nil {
			return err
		}
		if attempt.Status == enums.BillingAttemptStatusSuccess {
			return s.emitBillingSucceededTx(ctx, tx, sub, attempt, orderID)
		}
		var errorCode string
		if attempt.ErrorCode != nil {
			errorCode = *attempt.ErrorCode
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBillingFailed,
			AggregateType: enums.AggregateBilling,
			AggregateID:   attempt.ID,
			Version:       1,
			Data: payloads.BillingFailedEvent{
				SubscriptionID: sub.ID,
				ShopID:         sub.ShopID,
				BillingCycle:   attempt.BillingCycle,
				FailureCount:   sub.BillingFailureCount,
				ErrorCode:      errorCode,
				AutoPaused:     false,
			},
		})
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording attempt for cancelled subscription")
	}
	return nil
}

func (s *service) emitBillingSucceededTx(ctx context.Context, tx *gorm.DB, sub *models.Subscription, attempt *models.BillingAttemptLog, orderID string) error {
	var platformRef string
	if attempt.PlatformRef != nil {
		platformRef = *attempt.PlatformRef
	}
	return s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventBillingSucceeded,
		AggregateType: enums.AggregateBilling,
		AggregateID:   attempt.ID,
		Version:       1,
		Data: payloads.BillingSucceededEvent{
			SubscriptionID: sub.ID,
			ShopID:         sub.ShopID,
			BillingCycle:   attempt.BillingCycle,
			PlatformRef:    platformRef,
			OrderID:        orderID,
		},
	})
}

// settleFailure marks the attempt failed and bumps the failure count without
// touching the schedule. Hitting the failure ceiling pauses the subscription.
func (s *service) settleFailure(ctx context.Context, sub *models.Subscription, attempt *models.BillingAttemptLog, errorCode, errorMessage string) error {
	now := s.clk.Now()
	attempt.Status = enums.BillingAttemptStatusFailed
	if errorCode != "" {
		code := errorCode
		attempt.ErrorCode = &code
	}
	if errorMessage != "" {
		msg := errorMessage
		attempt.ErrorMessage = &msg
	}

	// A cancelled subscription stays cancelled: the attempt outcome is still
	// recorded, but the failure counter and auto-pause never run.
	if sub.Status == enums.SubscriptionStatusCancelled {
		return s.recordAttemptOnly(ctx, sub, attempt, "")
	}

	sub.BillingFailureCount++
	status := string(enums.BillingAttemptStatusFailed)
	sub.LastBillingStatus = &status
	sub.LastBillingAttemptAt = &now

	autoPaused := sub.BillingFailureCount >= s.maxFailures
	if autoPaused {
		reason := fmt.Sprintf("%s %d failed billing attempts (last error: %s)",
			autoPauseReasonPrefix, sub.BillingFailureCount, errorCode)
		sub.Status = enums.SubscriptionStatusPaused
		sub.PauseReason = &reason
		sub.PausedUntil = nil
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.attempts.UpdateTx(ctx, tx, attempt); err != nil {
			return err
		}
		if err := s.subs.UpdateTx(ctx, tx, sub); err != nil {
			return err
		}
		if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBillingFailed,
			AggregateType: enums.AggregateBilling,
			AggregateID:   attempt.ID,
			Version:       1,
			Data: payloads.BillingFailedEvent{
				SubscriptionID: sub.ID,
				ShopID:         sub.ShopID,
				BillingCycle:   attempt.BillingCycle,
				FailureCount:   sub.BillingFailureCount,
				ErrorCode:      errorCode,
				AutoPaused:     autoPaused,
			},
		}); err != nil {
			return err
		}
		if !autoPaused {
			return nil
		}
		var reason string
		if sub.PauseReason != nil {
			reason = *sub.PauseReason
		}
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSubscriptionPaused,
			AggregateType: enums.AggregateSubscription,
			AggregateID:   sub.ID,
			Actor:         &outbox.ActorRef{Name: "billing-sweep", Role: "system"},
			Version:       1,
			Data: payloads.SubscriptionPausedEvent{
				SubscriptionID: sub.ID,
				ShopID:         sub.ShopID,
				Reason:         reason,
			},
		})
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "settling failed attempt")
	}
	return nil
}

// ManualRetry reactivates a subscription paused by billing failures, resets
// its failure count and runs one charge cycle immediately.
func (s *service) ManualRetry(ctx context.Context, shopID, subscriptionID uuid.UUID) (*models.Subscription, error) {
	if shopID == uuid.Nil || subscriptionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop and subscription identity required")
	}
	sub, err := s.subs.FindByID(ctx, shopID, subscriptionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading subscription")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	if sub.Status != enums.SubscriptionStatusPaused || sub.PauseReason == nil ||
		!hasAutoPauseReason(*sub.PauseReason) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "subscription is not paused by billing failures")
	}

	sub.Status = enums.SubscriptionStatusActive
	sub.BillingFailureCount = 0
	sub.PauseReason = nil
	sub.PausedUntil = nil
	if err := s.subs.Update(ctx, sub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reactivating subscription")
	}

	if _, err := s.ProcessSingleBilling(ctx, sub); err != nil {
		return sub, err
	}
	return sub, nil
}

// ApplyConfirmation settles a previously accepted charge from the webhook.
// Re-delivered confirmations for an already settled attempt are no-ops.
func (s *service) ApplyConfirmation(ctx context.Context, input ConfirmationInput) error {
	if input.AttemptRef == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "attempt reference required")
	}
	attempt, err := s.attempts.FindByPlatformRef(ctx, input.AttemptRef)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading attempt")
	}
	if attempt == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "no attempt matches the confirmation")
	}
	if attempt.Status != enums.BillingAttemptStatusPending {
		return nil
	}

	sub, err := s.subs.FindAnyByID(ctx, attempt.SubscriptionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading subscription")
	}
	if sub == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "subscription for the attempt no longer exists")
	}

	if input.Success {
		return s.settleSuccess(ctx, sub, attempt, input.OrderID)
	}
	return s.settleFailure(ctx, sub, attempt, input.ErrorCode, input.ErrorMessage)
}

// ReconcilePendingAttempts polls the platform for attempts that were accepted
// but whose confirmation webhook never arrived, settling the ones the platform
// has since resolved. Returns the number of attempts settled.
func (s *service) ReconcilePendingAttempts(ctx context.Context) (int, error) {
	olderThan := s.clk.Now().Add(-reconcileStaleAfter)
	stale, err := s.attempts.ListStalePending(ctx, olderThan, reconcileBatchSize)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing stale pending attempts")
	}

	var settled int
	var errs error
	for i := range stale {
		attempt := &stale[i]
		if attempt.PlatformRef == nil {
			continue
		}
		result, err := s.provider.GetBillingAttempt(ctx, *attempt.PlatformRef)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("attempt %s: %w", attempt.ID, err))
			continue
		}
		if !result.Ready {
			// Platform still processing; leave it for the next pass.
			continue
		}

		sub, err := s.subs.FindAnyByID(ctx, attempt.SubscriptionID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("attempt %s: %w", attempt.ID, err))
			continue
		}
		if sub == nil {
			continue
		}

		if result.Success {
			err = s.settleSuccess(ctx, sub, attempt, result.OrderID)
		} else {
			err = s.settleFailure(ctx, sub, attempt, result.ErrorCode, result.ErrorMessage)
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("attempt %s: %w", attempt.ID, err))
			continue
		}
		settled++
	}
	return settled, errs
}

// PurgeOldAttempts deletes settled attempts past the retention window.
func (s *service) PurgeOldAttempts(ctx context.Context) (int64, error) {
	cutoff := s.clk.Now().AddDate(0, 0, -s.retentionDays)
	purged, err := s.attempts.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "purging attempt logs")
	}
	return purged, nil
}

// AttemptHistory returns a subscription's attempt log for the admin surface.
func (s *service) AttemptHistory(ctx context.Context, shopID, subscriptionID uuid.UUID, limit int) ([]models.BillingAttemptLog, error) {
	sub, err := s.subs.FindByID(ctx, shopID, subscriptionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading subscription")
	}
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
	}
	return s.attempts.ListBySubscription(ctx, sub.ID, limit)
}

func attemptIdempotencyKey(subscriptionID uuid.UUID, cycle int) string {
	return fmt.Sprintf("bill-%s-%d", subscriptionID, cycle)
}

func hasAutoPauseReason(reason string) bool {
	return strings.HasPrefix(reason, autoPauseReasonPrefix)
}
