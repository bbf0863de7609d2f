package pickups

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meridianfarms/pickups-backend/pkg/db/models"
	"github.com/meridianfarms/pickups-backend/pkg/enums"
)

// Repository exposes pickup schedule persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a pickup repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

// Create inserts a new pickup row.
func (r *Repository) Create(ctx context.Context, pickup *models.PickupSchedule) (*models.PickupSchedule, error) {
	if err := r.db.WithContext(ctx).Create(pickup).Error; err != nil {
		return nil, err
	}
	return pickup, nil
}

// FindByID returns a shop-scoped pickup.
func (r *Repository) FindByID(ctx context.Context, shopID, id uuid.UUID) (*models.PickupSchedule, error) {
	var pickup models.PickupSchedule
	err := r.db.WithContext(ctx).
		Where("shop_id = ? AND id = ?", shopID, id).
		First(&pickup).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pickup, nil
}

// LatestScheduledBySubscription returns the most recent still-scheduled pickup
// for a subscription, or nil when none is pending.
func (r *Repository) LatestScheduledBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*models.PickupSchedule, error) {
	var pickup models.PickupSchedule
	err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND pickup_status = ?", subscriptionID, enums.PickupStatusScheduled).
		Order("pickup_date DESC").
		First(&pickup).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pickup, nil
}

// ExistsActiveForDate reports whether a non-cancelled pickup already exists
// for the subscription on the given date. Guards the one-pickup-per-cycle
// invariant when sweeps overlap.
func (r *Repository) ExistsActiveForDate(ctx context.Context, subscriptionID uuid.UUID, date time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PickupSchedule{}).
		Where("subscription_id = ? AND pickup_date = ? AND pickup_status <> ?", subscriptionID, date, enums.PickupStatusCancelled).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Update persists the full pickup row.
func (r *Repository) Update(ctx context.Context, pickup *models.PickupSchedule) error {
	return r.db.WithContext(ctx).Save(pickup).Error
}

// CreateTx inserts the pickup inside the caller's transaction.
func (r *Repository) CreateTx(ctx context.Context, tx *gorm.DB, pickup *models.PickupSchedule) (*models.PickupSchedule, error) {
	return r.WithTx(tx).Create(ctx, pickup)
}

// UpdateTx persists the pickup inside the caller's transaction.
func (r *Repository) UpdateTx(ctx context.Context, tx *gorm.DB, pickup *models.PickupSchedule) error {
	return r.WithTx(tx).Update(ctx, pickup)
}

// ListByShop returns shop pickups in a date window, newest date first.
func (r *Repository) ListByShop(ctx context.Context, shopID uuid.UUID, from, to time.Time, limit int) ([]models.PickupSchedule, error) {
	if limit <= 0 {
		limit = 100
	}
	query := r.db.WithContext(ctx).
		Where("shop_id = ?", shopID)
	if !from.IsZero() {
		query = query.Where("pickup_date >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where("pickup_date <= ?", to)
	}

	var rows []models.PickupSchedule
	err := query.Order("pickup_date ASC").Order("id ASC").Limit(limit).Find(&rows).Error
	return rows, err
}
