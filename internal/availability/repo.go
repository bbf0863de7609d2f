package availability

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository loads a shop's availability configuration. The scheduling engine
// only ever reads these tables; writes happen through admin configuration
// flows outside this package.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs an availability repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// SnapshotByShop loads the full configuration snapshot in one pass.
func (r *Repository) SnapshotByShop(ctx context.Context, shopID uuid.UUID) (*Snapshot, error) {
	var snap Snapshot

	err := r.db.WithContext(ctx).
		Where("shop_id = ?", shopID).
		First(&snap.Config).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if err := r.db.WithContext(ctx).
		Where("shop_id = ?", shopID).
		Order("weekday ASC").
		Find(&snap.Overrides).Error; err != nil {
		return nil, err
	}

	if err := r.db.WithContext(ctx).
		Where("shop_id = ?", shopID).
		Order("start_minutes ASC").
		Find(&snap.Slots).Error; err != nil {
		return nil, err
	}

	if err := r.db.WithContext(ctx).
		Where("shop_id = ?", shopID).
		Order("created_at ASC").
		Find(&snap.Blackouts).Error; err != nil {
		return nil, err
	}

	return &snap, nil
}
