package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/meridianfarms/pickups-backend/pkg/enums"
)

// BillingAttemptLog is the append-mostly audit and idempotency record for one
// charge attempt. The unique constraint on (subscription_id, billing_cycle)
// is what makes duplicate charges impossible when sweeps overlap.
type BillingAttemptLog struct {
	ID             uuid.UUID                  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SubscriptionID uuid.UUID                  `gorm:"column:subscription_id;type:uuid;not null;uniqueIndex:ux_billing_attempts_sub_cycle"`
	BillingCycle   int                        `gorm:"column:billing_cycle;not null;uniqueIndex:ux_billing_attempts_sub_cycle"`
	IdempotencyKey string                     `gorm:"column:idempotency_key;not null;unique"`
	Status         enums.BillingAttemptStatus `gorm:"column:status;type:billing_attempt_status;not null;default:'pending'"`
	PlatformRef    *string                    `gorm:"column:platform_ref"`
	ErrorCode      *string                    `gorm:"column:error_code"`
	ErrorMessage   *string                    `gorm:"column:error_message"`
	OrderID        *string                    `gorm:"column:order_id"`
	CreatedAt      time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}
