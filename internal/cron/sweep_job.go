package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/meridianfarms/pickups-backend/internal/billing"
	"github.com/meridianfarms/pickups-backend/pkg/db/models"
	"github.com/meridianfarms/pickups-backend/pkg/logger"
	"github.com/meridianfarms/pickups-backend/pkg/metrics"
)

type shopsLister interface {
	ListActive(ctx context.Context) ([]models.Shop, error)
}

type subscriptionSweeper interface {
	ResumeDue(ctx context.Context, shopID uuid.UUID) (int, error)
	MaterializeDuePickups(ctx context.Context, shopID uuid.UUID) (int, error)
}

type billingSweeper interface {
	ProcessDueBillings(ctx context.Context, shopID uuid.UUID) (billing.RunSummary, error)
}

// SweepJobParams configure the per-shop subscription sweep.
type SweepJobParams struct {
	Logger        *logger.Logger
	Shops         shopsLister
	Subscriptions subscriptionSweeper
	Billing       billingSweeper
	Metrics       *metrics.SweepMetrics
}

// NewSweepJob builds the sweep: for every active shop it resumes expired
// pauses, charges due subscriptions, and materializes upcoming pickups. One
// shop's failure never blocks the rest.
func NewSweepJob(params SweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Shops == nil {
		return nil, fmt.Errorf("shops repository required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscriptions service required")
	}
	if params.Billing == nil {
		return nil, fmt.Errorf("billing service required")
	}
	return &sweepJob{
		logg:    params.Logger,
		shops:   params.Shops,
		subs:    params.Subscriptions,
		billing: params.Billing,
		metrics: params.Metrics,
	}, nil
}

type sweepJob struct {
	logg    *logger.Logger
	shops   shopsLister
	subs    subscriptionSweeper
	billing billingSweeper
	metrics *metrics.SweepMetrics
}

func (j *sweepJob) Name() string { return "subscription-sweep" }

func (j *sweepJob) Run(ctx context.Context) error {
	shops, err := j.shops.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("listing shops: %w", err)
	}

	var errs error
	for i := range shops {
		shop := &shops[i]
		j.metrics.IncShopProcessed()
		if err := j.sweepShop(ctx, shop); err != nil {
			j.metrics.IncShopFailed()
			errs = multierr.Append(errs, fmt.Errorf("shop %s: %w", shop.ID, err))
		}
	}
	return errs
}

// sweepShop runs the three steps in order. Resume comes first so freshly
// reactivated subscriptions are picked up by the same billing pass.
func (j *sweepJob) sweepShop(ctx context.Context, shop *models.Shop) error {
	shopCtx := j.logg.WithShopID(ctx, shop.ID.String())

	resumed, err := j.subs.ResumeDue(shopCtx, shop.ID)
	if err != nil {
		j.logg.Error(shopCtx, "resume step failed", err)
		return err
	}
	j.metrics.AddResumed(resumed)

	summary, billErr := j.billing.ProcessDueBillings(shopCtx, shop.ID)
	if billErr != nil {
		// Individual billing errors are already isolated per subscription;
		// the pass continues to materialization.
		j.logg.Error(shopCtx, "billing step reported errors", billErr)
	}
	j.recordBillingOutcomes(summary)

	materialized, err := j.subs.MaterializeDuePickups(shopCtx, shop.ID)
	if err != nil {
		j.logg.Error(shopCtx, "materialization step failed", err)
		return err
	}
	j.metrics.AddMaterialized(materialized)

	summaryCtx := j.logg.WithFields(shopCtx, map[string]any{
		"resumed":        resumed,
		"billed_total":   summary.Attempted,
		"billed_success": summary.Succeeded,
		"billed_failed":  summary.Failed,
		"billed_pending": summary.Pending,
		"billed_skipped": summary.Skipped,
		"materialized":   materialized,
	})
	j.logg.Info(summaryCtx, "shop sweep complete")
	return billErr
}

func (j *sweepJob) recordBillingOutcomes(summary billing.RunSummary) {
	for i := 0; i < summary.Succeeded; i++ {
		j.metrics.IncBillingOutcome(string(billing.OutcomeSuccess))
	}
	for i := 0; i < summary.Failed; i++ {
		j.metrics.IncBillingOutcome(string(billing.OutcomeFailed))
	}
	for i := 0; i < summary.Pending; i++ {
		j.metrics.IncBillingOutcome(string(billing.OutcomePending))
	}
	for i := 0; i < summary.Skipped; i++ {
		j.metrics.IncBillingOutcome(string(billing.OutcomeSkipped))
	}
}
