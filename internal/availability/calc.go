package availability

import (
	"time"

	"github.com/meridianfarms/pickups-backend/pkg/clock"
	"github.com/meridianfarms/pickups-backend/pkg/db/models"
	"github.com/meridianfarms/pickups-backend/pkg/enums"
)

// scanSlackDays pads the calendar scan: maxBookingDays counts available days,
// not calendar days, so the horizon must absorb closed weekdays and blackouts.
const scanSlackDays = 14

// Snapshot is the full read-only availability configuration for one shop.
type Snapshot struct {
	Config    models.AvailabilityConfig
	Overrides []models.WeekdayLeadOverride
	Slots     []models.TimeSlot
	Blackouts []models.Blackout
}

// DayAvailability lists the bookable slots of a single open day.
type DayAvailability struct {
	Date  time.Time         `json:"date"`
	Slots []models.TimeSlot `json:"slots"`
}

// Calculator answers bookability questions from a configuration snapshot.
// Pure: all time context comes through the injected clock and the explicit
// request instant.
type Calculator struct {
	clk *clock.Clock
}

// NewCalculator builds a calculator on the business clock.
func NewCalculator(clk *clock.Clock) *Calculator {
	return &Calculator{clk: clk}
}

// AvailableDays scans forward from the request instant and returns up to
// maxBookingDays bookable days with their surviving slots.
func (c *Calculator) AvailableDays(snap Snapshot, requestAt time.Time) []DayAvailability {
	maxDays := snap.Config.MaxBookingDays
	if maxDays <= 0 {
		return nil
	}

	today := c.clk.DateOf(requestAt)
	horizon := maxDays*3 + scanSlackDays

	var out []DayAvailability
	for offset := 0; offset <= horizon && len(out) < maxDays; offset++ {
		date := c.clk.AddDays(today, offset)
		slots := c.bookableSlots(snap, requestAt, date)
		if len(slots) == 0 {
			continue
		}
		out = append(out, DayAvailability{Date: date, Slots: slots})
	}
	return out
}

// DateBookable reports whether the candidate date has at least one open slot.
func (c *Calculator) DateBookable(snap Snapshot, requestAt, date time.Time) bool {
	return len(c.bookableSlots(snap, requestAt, date)) > 0
}

// SlotBookable reports whether the named slot is open on the candidate date.
func (c *Calculator) SlotBookable(snap Snapshot, requestAt, date time.Time, slotLabel string) bool {
	for _, slot := range c.bookableSlots(snap, requestAt, date) {
		if slot.Label == slotLabel {
			return true
		}
	}
	return false
}

func (c *Calculator) bookableSlots(snap Snapshot, requestAt, date time.Time) []models.TimeSlot {
	weekday := c.clk.DayOfWeek(date)
	if !snap.Config.WeekdayEnabled(weekday) {
		return nil
	}

	daysAhead := c.daysBetween(c.clk.DateOf(requestAt), c.clk.DateOf(date))
	if daysAhead < 0 {
		return nil
	}
	if daysAhead < c.effectiveLeadDays(snap, requestAt, weekday) {
		return nil
	}

	if c.wholeDayBlackout(snap, date, weekday) {
		return nil
	}

	var open []models.TimeSlot
	for _, slot := range snap.Slots {
		if slot.Weekday != nil && *slot.Weekday != weekday {
			continue
		}
		if c.slotBlackedOut(snap, date, weekday, slot) {
			continue
		}
		open = append(open, slot)
	}
	return open
}

// effectiveLeadDays picks the before/after-cutoff lead for the candidate
// weekday. The cutoff is evaluated against the request's time of day.
func (c *Calculator) effectiveLeadDays(snap Snapshot, requestAt time.Time, weekday int) int {
	before := snap.Config.LeadDaysBefore
	after := snap.Config.LeadDaysAfter
	if snap.Config.CustomLeadByDay {
		for _, ov := range snap.Overrides {
			if ov.Weekday == weekday {
				before = ov.LeadDaysBefore
				after = ov.LeadDaysAfter
				break
			}
		}
	}

	local := requestAt.In(c.clk.Location())
	requestMinutes := local.Hour()*60 + local.Minute()
	if requestMinutes < snap.Config.CutoffMinutes {
		return before
	}
	return after
}

func (c *Calculator) wholeDayBlackout(snap Snapshot, date time.Time, weekday int) bool {
	for _, b := range snap.Blackouts {
		if !b.WholeDay() {
			continue
		}
		if c.blackoutCoversDate(b, date, weekday) {
			return true
		}
	}
	return false
}

func (c *Calculator) slotBlackedOut(snap Snapshot, date time.Time, weekday int, slot models.TimeSlot) bool {
	for _, b := range snap.Blackouts {
		if b.WholeDay() {
			continue
		}
		if !c.blackoutCoversDate(b, date, weekday) {
			continue
		}
		// Half-open interval intersection, not containment.
		if slot.StartMinutes < *b.EndMinutes && *b.StartMinutes < slot.EndMinutes {
			return true
		}
	}
	return false
}

func (c *Calculator) blackoutCoversDate(b models.Blackout, date time.Time, weekday int) bool {
	switch b.Kind {
	case enums.BlackoutKindSingleDate:
		return b.Date != nil && c.clk.SameDate(*b.Date, date)
	case enums.BlackoutKindDateRange:
		if b.RangeFrom == nil || b.RangeTo == nil {
			return false
		}
		from := c.clk.DateOf(*b.RangeFrom)
		to := c.clk.DateOf(*b.RangeTo)
		d := c.clk.DateOf(date)
		return !d.Before(from) && !d.After(to)
	case enums.BlackoutKindRecurringWeekday:
		return b.Weekday != nil && *b.Weekday == weekday
	default:
		return false
	}
}

func (c *Calculator) daysBetween(from, to time.Time) int {
	// Both are business-timezone midnights; round absorbs DST-length days.
	return int(to.Sub(from).Round(24*time.Hour) / (24 * time.Hour))
}
