package schedule

import (
	"fmt"
	"time"

	"github.com/meridianfarms/pickups-backend/pkg/clock"
	"github.com/meridianfarms/pickups-backend/pkg/enums"
)

// Calculator derives pickup and billing dates from a subscription's cadence.
// Every method is a pure function of its inputs plus the injected clock, so
// the whole package tests without a database.
type Calculator struct {
	clk          *clock.Clock
	minLeadHours int
	maxLeadHours int
}

// NewCalculator wires the calculator with the billing lead-hour bounds.
func NewCalculator(clk *clock.Clock, minLeadHours, maxLeadHours int) (*Calculator, error) {
	if clk == nil {
		return nil, fmt.Errorf("clock required")
	}
	if minLeadHours < 1 || maxLeadHours < minLeadHours {
		return nil, fmt.Errorf("invalid lead hour bounds [%d,%d]", minLeadHours, maxLeadHours)
	}
	return &Calculator{
		clk:          clk,
		minLeadHours: minLeadHours,
		maxLeadHours: maxLeadHours,
	}, nil
}

// ClampLeadHours bounds a stored lead-hours value to the configured range.
func (c *Calculator) ClampLeadHours(hours int) int {
	if hours < c.minLeadHours {
		return c.minLeadHours
	}
	if hours > c.maxLeadHours {
		return c.maxLeadHours
	}
	return hours
}

// NextPickupDate advances one full cycle from the current pickup date, then
// shifts forward the minimum number of days needed to land on the preferred
// weekday. The shift never moves backward, so the result is always at least
// one full cycle out.
func (c *Calculator) NextPickupDate(current time.Time, preferredWeekday int, freq enums.Frequency) (time.Time, error) {
	if preferredWeekday < 0 || preferredWeekday > 6 {
		return time.Time{}, fmt.Errorf("invalid preferred weekday %d", preferredWeekday)
	}
	if !freq.IsValid() {
		return time.Time{}, fmt.Errorf("invalid frequency %q", freq)
	}
	cycleDays := freq.CycleDays()

	next := c.clk.AddDays(c.clk.DateOf(current), cycleDays)
	shift := (preferredWeekday - c.clk.DayOfWeek(next) + 7) % 7
	if shift != 0 {
		next = c.clk.AddDays(next, shift)
	}
	return next, nil
}

// NextPickupDateFromToday finds the first occurrence of the preferred weekday
// strictly in the future. Multi-week cadences push the first occurrence out a
// full cycle so the schedule starts on cadence rather than next week.
func (c *Calculator) NextPickupDateFromToday(preferredWeekday int, freq enums.Frequency) (time.Time, error) {
	if preferredWeekday < 0 || preferredWeekday > 6 {
		return time.Time{}, fmt.Errorf("invalid preferred weekday %d", preferredWeekday)
	}
	if !freq.IsValid() {
		return time.Time{}, fmt.Errorf("invalid frequency %q", freq)
	}
	cycleDays := freq.CycleDays()

	today := c.clk.Today()
	daysAhead := (preferredWeekday - c.clk.DayOfWeek(today) + 7) % 7
	if daysAhead == 0 {
		daysAhead = 7
	}
	if cycleDays > 7 && daysAhead < cycleDays {
		daysAhead += cycleDays
	}
	return c.clk.AddDays(today, daysAhead), nil
}

// BillingDate pins the pickup to its slot start time in the business timezone
// and backs off the clamped lead hours. The result is an absolute instant.
func (c *Calculator) BillingDate(pickupDate time.Time, slotStartMinutes, leadHours int) (time.Time, error) {
	if slotStartMinutes < 0 || slotStartMinutes > 1439 {
		return time.Time{}, fmt.Errorf("invalid slot start minutes %d", slotStartMinutes)
	}
	pickupAt := c.clk.WithMinutesOfDay(c.clk.DateOf(pickupDate), slotStartMinutes)
	lead := time.Duration(c.ClampLeadHours(leadHours)) * time.Hour
	return pickupAt.Add(-lead), nil
}
