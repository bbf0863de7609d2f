package clock

import (
	"fmt"
	"time"
)

// DefaultTimezone is the business timezone used when none is configured.
const DefaultTimezone = "America/New_York"

// Clock exposes time and calendar arithmetic pinned to one business timezone.
// All date math goes through time.Date in the business location, so the UTC
// offset is always the one in effect on the target date, not the offset of
// "now". This keeps "4 days from now at 9am" at 9am business time across
// daylight-saving transitions regardless of the host timezone.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// New builds a Clock for the given IANA timezone name.
func New(timezone string) (*Clock, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load business timezone %q: %w", timezone, err)
	}
	return &Clock{loc: loc, now: time.Now}, nil
}

// NewFixed builds a Clock whose Now always returns the provided instant.
// Intended for tests.
func NewFixed(timezone string, at time.Time) (*Clock, error) {
	c, err := New(timezone)
	if err != nil {
		return nil, err
	}
	c.now = func() time.Time { return at }
	return c, nil
}

// Location returns the business timezone location.
func (c *Clock) Location() *time.Location {
	return c.loc
}

// Now returns the current instant expressed in the business timezone.
func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

// Today returns midnight of the current business-timezone day.
func (c *Clock) Today() time.Time {
	return c.DateOf(c.Now())
}

// DateOf normalizes an instant to midnight of its business-timezone day.
func (c *Clock) DateOf(t time.Time) time.Time {
	local := t.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
}

// DayOfWeek returns the weekday of the date in the business timezone,
// 0 (Sunday) through 6 (Saturday).
func (c *Clock) DayOfWeek(t time.Time) int {
	return int(t.In(c.loc).Weekday())
}

// AddDays advances the date by n calendar days in the business timezone,
// preserving the time of day even across DST boundaries.
func (c *Clock) AddDays(t time.Time, n int) time.Time {
	local := t.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day()+n,
		local.Hour(), local.Minute(), local.Second(), local.Nanosecond(), c.loc)
}

// WithTimeOfDay pins the instant to hh:mm on the same business-timezone day.
func (c *Clock) WithTimeOfDay(t time.Time, hour, minute int) time.Time {
	local := t.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, c.loc)
}

// WithMinutesOfDay pins the instant to the given minutes past midnight on the
// same business-timezone day.
func (c *Clock) WithMinutesOfDay(t time.Time, minutes int) time.Time {
	return c.WithTimeOfDay(t, minutes/60, minutes%60)
}

// SameDate reports whether two instants fall on the same business-timezone day.
func (c *Clock) SameDate(a, b time.Time) bool {
	return c.DateOf(a).Equal(c.DateOf(b))
}
