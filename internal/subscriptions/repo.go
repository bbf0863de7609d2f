package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meridianfarms/pickups-backend/pkg/db/models"
	"github.com/meridianfarms/pickups-backend/pkg/enums"
)

// Repository exposes subscription persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a subscription repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// Create inserts a new subscription row.
func (r *Repository) Create(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	if err := r.db.WithContext(ctx).Create(sub).Error; err != nil {
		return nil, err
	}
	return sub, nil
}

// FindByID returns a shop-scoped subscription, nil when absent.
func (r *Repository) FindByID(ctx context.Context, shopID, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("shop_id = ? AND id = ?", shopID, id).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// FindAnyByID returns a subscription by id regardless of shop, nil when
// absent. Used by webhook handlers that only carry the subscription id.
func (r *Repository) FindAnyByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// Update persists the full subscription row.
func (r *Repository) Update(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Save(sub).Error
}

// UpdateTx persists the subscription inside the caller's transaction.
func (r *Repository) UpdateTx(ctx context.Context, tx *gorm.DB, sub *models.Subscription) error {
	return r.WithTx(tx).Update(ctx, sub)
}

// ListByShop returns shop subscriptions, optionally filtered by status.
func (r *Repository) ListByShop(ctx context.Context, shopID uuid.UUID, status *enums.SubscriptionStatus, limit int) ([]models.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	query := r.db.WithContext(ctx).Where("shop_id = ?", shopID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var rows []models.Subscription
	err := query.Order("created_at DESC").Order("id ASC").Limit(limit).Find(&rows).Error
	return rows, err
}

// DueForResume returns paused subscriptions whose pause window has elapsed.
func (r *Repository) DueForResume(ctx context.Context, shopID uuid.UUID, now time.Time) ([]models.Subscription, error) {
	var rows []models.Subscription
	err := r.db.WithContext(ctx).
		Where("shop_id = ? AND status = ? AND paused_until IS NOT NULL AND paused_until <= ?",
			shopID, enums.SubscriptionStatusPaused, now).
		Order("paused_until ASC").
		Find(&rows).Error
	return rows, err
}

// DueForBilling returns active subscriptions whose billing instant has
// arrived and which have not exhausted their failure allowance.
func (r *Repository) DueForBilling(ctx context.Context, shopID uuid.UUID, now time.Time, maxFailures int) ([]models.Subscription, error) {
	var rows []models.Subscription
	err := r.db.WithContext(ctx).
		Where("shop_id = ? AND status = ? AND next_billing_date IS NOT NULL AND next_billing_date <= ? AND billing_failure_count < ?",
			shopID, enums.SubscriptionStatusActive, now, maxFailures).
		Order("next_billing_date ASC").
		Find(&rows).Error
	return rows, err
}

// DueForPickup returns active subscriptions whose next pickup date falls on
// or before the given date.
func (r *Repository) DueForPickup(ctx context.Context, shopID uuid.UUID, by time.Time) ([]models.Subscription, error) {
	var rows []models.Subscription
	err := r.db.WithContext(ctx).
		Where("shop_id = ? AND status = ? AND next_pickup_date IS NOT NULL AND next_pickup_date <= ?",
			shopID, enums.SubscriptionStatusActive, by).
		Order("next_pickup_date ASC").
		Find(&rows).Error
	return rows, err
}

// UpcomingBillings returns active subscriptions billed between now and the
// given horizon, soonest first.
func (r *Repository) UpcomingBillings(ctx context.Context, shopID uuid.UUID, until time.Time, limit int) ([]models.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.Subscription
	err := r.db.WithContext(ctx).
		Where("shop_id = ? AND status = ? AND next_billing_date IS NOT NULL AND next_billing_date <= ?",
			shopID, enums.SubscriptionStatusActive, until).
		Order("next_billing_date ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// FailedBillings returns subscriptions carrying at least one billing failure,
// most failures first.
func (r *Repository) FailedBillings(ctx context.Context, shopID uuid.UUID, limit int) ([]models.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.Subscription
	err := r.db.WithContext(ctx).
		Where("shop_id = ? AND status <> ? AND billing_failure_count > 0",
			shopID, enums.SubscriptionStatusCancelled).
		Order("billing_failure_count DESC").
		Order("last_billing_attempt_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
