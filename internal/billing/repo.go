package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meridianfarms/pickups-backend/pkg/db/models"
	"github.com/meridianfarms/pickups-backend/pkg/enums"
)

// Repository persists billing attempt logs.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a billing attempt repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// Create inserts an attempt row. Callers rely on the unique constraint on
// (subscription_id, billing_cycle) surfacing as an error here.
func (r *Repository) Create(ctx context.Context, attempt *models.BillingAttemptLog) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

// FindBySubscriptionAndCycle returns the attempt row for one cycle, nil when
// the cycle has never been attempted.
func (r *Repository) FindBySubscriptionAndCycle(ctx context.Context, subscriptionID uuid.UUID, cycle int) (*models.BillingAttemptLog, error) {
	var attempt models.BillingAttemptLog
	err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND billing_cycle = ?", subscriptionID, cycle).
		First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &attempt, nil
}

// FindByPlatformRef resolves a webhook confirmation back to its attempt row.
func (r *Repository) FindByPlatformRef(ctx context.Context, platformRef string) (*models.BillingAttemptLog, error) {
	var attempt models.BillingAttemptLog
	err := r.db.WithContext(ctx).
		Where("platform_ref = ?", platformRef).
		First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &attempt, nil
}

// Update persists the full attempt row.
func (r *Repository) Update(ctx context.Context, attempt *models.BillingAttemptLog) error {
	return r.db.WithContext(ctx).Save(attempt).Error
}

// UpdateTx persists the attempt inside the caller's transaction.
func (r *Repository) UpdateTx(ctx context.Context, tx *gorm.DB, attempt *models.BillingAttemptLog) error {
	return r.WithTx(tx).Update(ctx, attempt)
}

// ListBySubscription returns a subscription's attempt history, newest first.
func (r *Repository) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID, limit int) ([]models.BillingAttemptLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.BillingAttemptLog
	err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("billing_cycle DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ListStalePending returns accepted attempts still awaiting their webhook
// confirmation after olderThan, oldest first. Rows without a platform ref
// never got accepted and are excluded.
func (r *Repository) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.BillingAttemptLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.BillingAttemptLog
	err := r.db.WithContext(ctx).
		Where("status = ? AND platform_ref IS NOT NULL AND updated_at < ?",
			enums.BillingAttemptStatusPending, olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// PurgeOlderThan deletes settled attempt rows created before the cutoff.
// Pending rows are kept regardless of age so late webhook confirmations can
// still land.
func (r *Repository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status <> ? AND created_at < ?", enums.BillingAttemptStatusPending, cutoff).
		Delete(&models.BillingAttemptLog{})
	return result.RowsAffected, result.Error
}
