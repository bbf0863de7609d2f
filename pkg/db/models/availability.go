package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/meridianfarms/pickups-backend/pkg/enums"
)

// AvailabilityConfig holds a shop's calendar-wide booking rules. Lead times
// are expressed in days; the cutoff decides which of the two applies to a
// request made on a given day.
type AvailabilityConfig struct {
	ID     uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ShopID uuid.UUID `gorm:"column:shop_id;type:uuid;not null;unique"`

	// EnabledWeekdays is a bitmask, bit N set means weekday N (0=Sunday) is open.
	EnabledWeekdays int `gorm:"column:enabled_weekdays;not null;default:62"`

	CutoffMinutes   int  `gorm:"column:cutoff_minutes;not null;default:720"`
	LeadDaysBefore  int  `gorm:"column:lead_days_before;not null;default:1"`
	LeadDaysAfter   int  `gorm:"column:lead_days_after;not null;default:2"`
	CustomLeadByDay bool `gorm:"column:custom_lead_by_day;not null;default:false"`
	MaxBookingDays  int  `gorm:"column:max_booking_days;not null;default:14"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// WeekdayEnabled reports whether the bitmask opens the given weekday (0-6).
func (c *AvailabilityConfig) WeekdayEnabled(weekday int) bool {
	if weekday < 0 || weekday > 6 {
		return false
	}
	return c.EnabledWeekdays&(1<<uint(weekday)) != 0
}

// WeekdayLeadOverride replaces the global lead-time pair for one weekday when
// the config enables custom-by-day rules.
type WeekdayLeadOverride struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ShopID         uuid.UUID `gorm:"column:shop_id;type:uuid;not null;uniqueIndex:ux_lead_overrides_shop_day"`
	Weekday        int       `gorm:"column:weekday;not null;uniqueIndex:ux_lead_overrides_shop_day"`
	LeadDaysBefore int       `gorm:"column:lead_days_before;not null"`
	LeadDaysAfter  int       `gorm:"column:lead_days_after;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TimeSlot is a named pickup window, optionally restricted to one weekday.
type TimeSlot struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ShopID       uuid.UUID `gorm:"column:shop_id;type:uuid;not null;index"`
	Label        string    `gorm:"column:label;not null"`
	StartMinutes int       `gorm:"column:start_minutes;not null"`
	EndMinutes   int       `gorm:"column:end_minutes;not null"`
	// Weekday restricts the slot to one weekday (0-6); nil means every open day.
	Weekday   *int      `gorm:"column:weekday"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Blackout removes availability for a date, a date range, or a recurring
// weekday. A nil StartMinutes/EndMinutes pair blacks out the whole day;
// otherwise only slots overlapping the window are removed.
type Blackout struct {
	ID     uuid.UUID          `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ShopID uuid.UUID          `gorm:"column:shop_id;type:uuid;not null;index"`
	Kind   enums.BlackoutKind `gorm:"column:kind;type:blackout_kind;not null"`

	Date      *time.Time `gorm:"column:date"`
	RangeFrom *time.Time `gorm:"column:range_from"`
	RangeTo   *time.Time `gorm:"column:range_to"`
	Weekday   *int       `gorm:"column:weekday"`

	StartMinutes *int `gorm:"column:start_minutes"`
	EndMinutes   *int `gorm:"column:end_minutes"`

	Reason    string    `gorm:"column:reason"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// WholeDay reports whether the blackout removes the entire day.
func (b *Blackout) WholeDay() bool {
	return b.StartMinutes == nil || b.EndMinutes == nil
}
