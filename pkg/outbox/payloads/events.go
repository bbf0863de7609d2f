package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/meridianfarms/pickups-backend/pkg/enums"
)

// PickupScheduledEvent is emitted when the sweep materializes a pickup row.
type PickupScheduledEvent struct {
	PickupID       uuid.UUID `json:"pickup_id"`
	SubscriptionID uuid.UUID `json:"subscription_id"`
	ShopID         uuid.UUID `json:"shop_id"`
	PickupDate     time.Time `json:"pickup_date"`
	PickupTimeSlot string    `json:"pickup_time_slot"`
}

// PickupRescheduledEvent surfaces an in-place rewrite of a scheduled pickup.
type PickupRescheduledEvent struct {
	PickupID       uuid.UUID `json:"pickup_id"`
	SubscriptionID uuid.UUID `json:"subscription_id"`
	ShopID         uuid.UUID `json:"shop_id"`
	OldPickupDate  time.Time `json:"old_pickup_date"`
	NewPickupDate  time.Time `json:"new_pickup_date"`
	NewTimeSlot    string    `json:"new_time_slot"`
	Permanent      bool      `json:"permanent"`
}

// PickupStatusChangedEvent tracks fulfillment status transitions.
type PickupStatusChangedEvent struct {
	PickupID   uuid.UUID          `json:"pickup_id"`
	ShopID     uuid.UUID          `json:"shop_id"`
	FromStatus enums.PickupStatus `json:"from_status"`
	ToStatus   enums.PickupStatus `json:"to_status"`
}

// BillingSucceededEvent is emitted once a charge settles successfully.
type BillingSucceededEvent struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	ShopID         uuid.UUID `json:"shop_id"`
	BillingCycle   int       `json:"billing_cycle"`
	PlatformRef    string    `json:"platform_ref,omitempty"`
	OrderID        string    `json:"order_id,omitempty"`
}

// BillingFailedEvent is emitted when a charge attempt fails.
type BillingFailedEvent struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	ShopID         uuid.UUID `json:"shop_id"`
	BillingCycle   int       `json:"billing_cycle"`
	FailureCount   int       `json:"failure_count"`
	ErrorCode      string    `json:"error_code,omitempty"`
	AutoPaused     bool      `json:"auto_paused"`
}

// SubscriptionPausedEvent covers both manual and failure-driven pauses.
type SubscriptionPausedEvent struct {
	SubscriptionID uuid.UUID  `json:"subscription_id"`
	ShopID         uuid.UUID  `json:"shop_id"`
	PausedUntil    *time.Time `json:"paused_until,omitempty"`
	Reason         string     `json:"reason,omitempty"`
}

// SubscriptionResumedEvent is emitted on manual or sweep-driven resume.
type SubscriptionResumedEvent struct {
	SubscriptionID  uuid.UUID `json:"subscription_id"`
	ShopID          uuid.UUID `json:"shop_id"`
	NextPickupDate  time.Time `json:"next_pickup_date"`
	NextBillingDate time.Time `json:"next_billing_date"`
}

// SubscriptionCanceledEvent marks the terminal transition.
type SubscriptionCanceledEvent struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	ShopID         uuid.UUID `json:"shop_id"`
	Reason         string    `json:"reason,omitempty"`
	CanceledAt     time.Time `json:"canceled_at"`
}
