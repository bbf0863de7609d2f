package models

import (
	"time"

	"github.com/google/uuid"
)

// Shop is one merchant storefront this backend schedules pickups for.
type Shop struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Domain    string    `gorm:"column:domain;not null;unique"`
	Name      string    `gorm:"column:name;not null"`
	Active    bool      `gorm:"column:active;not null;default:true"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
