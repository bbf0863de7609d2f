package cron

import (
	"context"
	"fmt"

	"github.com/meridianfarms/pickups-backend/pkg/logger"
	"github.com/meridianfarms/pickups-backend/pkg/metrics"
)

type attemptMaintainer interface {
	ReconcilePendingAttempts(ctx context.Context) (int, error)
	PurgeOldAttempts(ctx context.Context) (int64, error)
}

// AttemptRetentionJobParams configure billing attempt log maintenance.
type AttemptRetentionJobParams struct {
	Logger  *logger.Logger
	Billing attemptMaintainer
	Metrics *metrics.SweepMetrics
}

// NewAttemptRetentionJob builds the job that reconciles stale pending
// attempts against the platform and trims settled attempt logs past the
// retention window.
func NewAttemptRetentionJob(params AttemptRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Billing == nil {
		return nil, fmt.Errorf("billing service required")
	}
	return &attemptRetentionJob{
		logg:    params.Logger,
		billing: params.Billing,
		metrics: params.Metrics,
	}, nil
}

type attemptRetentionJob struct {
	logg    *logger.Logger
	billing attemptMaintainer
	metrics *metrics.SweepMetrics
}

func (j *attemptRetentionJob) Name() string { return "billing-attempt-retention" }

func (j *attemptRetentionJob) Run(ctx context.Context) error {
	// Reconcile before purging so a settled-by-poll row is never deleted
	// while still pending.
	reconciled, err := j.billing.ReconcilePendingAttempts(ctx)
	if err != nil {
		return fmt.Errorf("attempt reconciliation: %w", err)
	}
	j.metrics.AddAttemptsReconciled(reconciled)

	purged, err := j.billing.PurgeOldAttempts(ctx)
	if err != nil {
		return fmt.Errorf("attempt retention: %w", err)
	}
	j.metrics.AddAttemptsPurged(purged)

	logCtx := j.logg.WithField(ctx, "rows_deleted", purged)
	logCtx = j.logg.WithField(logCtx, "attempts_reconciled", reconciled)
	j.logg.Info(logCtx, "billing attempt maintenance complete")
	return nil
}
