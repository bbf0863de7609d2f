package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/meridianfarms/pickups-backend/pkg/enums"
)

// PickupSchedule is one concrete fulfillment instance. Subscription-linked
// rows are created by the sweep's materialization step; one-off rows come from
// admin import tools and carry a nil SubscriptionID.
type PickupSchedule struct {
	ID             uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ShopID         uuid.UUID  `gorm:"column:shop_id;type:uuid;not null;index"`
	SubscriptionID *uuid.UUID `gorm:"column:subscription_id;type:uuid;index"`
	OrderRef       *string    `gorm:"column:order_ref"`

	CustomerName  string `gorm:"column:customer_name;not null"`
	CustomerEmail string `gorm:"column:customer_email;not null"`
	CustomerPhone string `gorm:"column:customer_phone"`

	PickupDate     time.Time          `gorm:"column:pickup_date;not null"`
	PickupTimeSlot string             `gorm:"column:pickup_time_slot;not null"`
	PickupStatus   enums.PickupStatus `gorm:"column:pickup_status;type:pickup_status;not null;default:'scheduled'"`

	Notes            string  `gorm:"column:notes"`
	CalendarEventRef *string `gorm:"column:calendar_event_ref"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
