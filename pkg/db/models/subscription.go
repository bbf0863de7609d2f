package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianfarms/pickups-backend/pkg/enums"
)

// Subscription is one customer's standing recurring pickup order.
//
// NextPickupDate and NextBillingDate are both set while the subscription is
// active and both nil once it is cancelled; the state-machine methods in
// internal/subscriptions are the only writers, which keeps the illegal
// combinations out of the table.
type Subscription struct {
	ID     uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ShopID uuid.UUID `gorm:"column:shop_id;type:uuid;not null;index"`

	CustomerName  string `gorm:"column:customer_name;not null"`
	CustomerEmail string `gorm:"column:customer_email;not null"`
	CustomerPhone string `gorm:"column:customer_phone"`

	Frequency                     enums.Frequency `gorm:"column:frequency;type:frequency;not null"`
	PreferredDayOfWeek            int             `gorm:"column:preferred_day_of_week;not null"`
	PreferredTimeSlot             string          `gorm:"column:preferred_time_slot;not null"`
	PreferredTimeSlotStartMinutes int             `gorm:"column:preferred_time_slot_start_minutes;not null"`
	DiscountPercent               decimal.Decimal `gorm:"column:discount_percent;type:numeric(5,2);not null"`
	BillingLeadHours              int             `gorm:"column:billing_lead_hours;not null"`

	Status      enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null;default:'active'"`
	PausedUntil *time.Time               `gorm:"column:paused_until"`
	PauseReason *string                  `gorm:"column:pause_reason"`

	NextPickupDate  *time.Time `gorm:"column:next_pickup_date"`
	NextBillingDate *time.Time `gorm:"column:next_billing_date"`

	BillingCycleCount    int        `gorm:"column:billing_cycle_count;not null;default:0"`
	BillingFailureCount  int        `gorm:"column:billing_failure_count;not null;default:0"`
	LastBillingStatus    *string    `gorm:"column:last_billing_status"`
	LastBillingAttemptAt *time.Time `gorm:"column:last_billing_attempt_at"`

	OneTimeRescheduleDate     *time.Time `gorm:"column:one_time_reschedule_date"`
	OneTimeRescheduleTimeSlot *string    `gorm:"column:one_time_reschedule_time_slot"`
	OneTimeRescheduleReason   *string    `gorm:"column:one_time_reschedule_reason"`
	OneTimeRescheduleBy       *string    `gorm:"column:one_time_reschedule_by"`
	OneTimeRescheduleAt       *time.Time `gorm:"column:one_time_reschedule_at"`

	PlatformContractID string `gorm:"column:platform_contract_id;not null"`
	AdminNotes         string `gorm:"column:admin_notes"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// HasPendingOverride reports whether a one-time reschedule is still in effect.
func (s *Subscription) HasPendingOverride() bool {
	return s.OneTimeRescheduleDate != nil
}

// ClearOverride nulls every one-time reschedule field.
func (s *Subscription) ClearOverride() {
	s.OneTimeRescheduleDate = nil
	s.OneTimeRescheduleTimeSlot = nil
	s.OneTimeRescheduleReason = nil
	s.OneTimeRescheduleBy = nil
	s.OneTimeRescheduleAt = nil
}

// Activate puts the subscription in the active state with both due dates set.
func (s *Subscription) Activate(nextPickup, nextBilling time.Time) {
	s.Status = enums.SubscriptionStatusActive
	s.NextPickupDate = &nextPickup
	s.NextBillingDate = &nextBilling
	s.PausedUntil = nil
	s.PauseReason = nil
}

// MarkCancelled moves to the terminal state and nulls both due dates.
func (s *Subscription) MarkCancelled() {
	s.Status = enums.SubscriptionStatusCancelled
	s.NextPickupDate = nil
	s.NextBillingDate = nil
	s.PausedUntil = nil
}
