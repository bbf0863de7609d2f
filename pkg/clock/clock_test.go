package clock

import (
	"testing"
	"time"
)

func TestTodayUsesBusinessTimezone(t *testing.T) {
	// 2026-03-08 03:30 UTC is still 2026-03-07 late evening in New York.
	at := time.Date(2026, 3, 8, 3, 30, 0, 0, time.UTC)
	c, err := NewFixed("America/New_York", at)
	if err != nil {
		t.Fatalf("NewFixed: %v", err)
	}
	today := c.Today()
	if today.Year() != 2026 || today.Month() != time.March || today.Day() != 7 {
		t.Fatalf("expected business date 2026-03-07, got %s", today)
	}
	if today.Hour() != 0 || today.Minute() != 0 {
		t.Fatalf("expected midnight, got %s", today)
	}
}

func TestAddDaysAcrossSpringForward(t *testing.T) {
	// US DST starts 2026-03-08; adding days over the boundary must keep the
	// local time of day rather than drifting by the offset change.
	c, err := New("America/New_York")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	start := time.Date(2026, 3, 6, 9, 0, 0, 0, c.Location())
	moved := c.AddDays(start, 4)
	if moved.Hour() != 9 || moved.Minute() != 0 {
		t.Fatalf("expected 09:00 local after DST boundary, got %s", moved)
	}
	if moved.Day() != 10 || moved.Month() != time.March {
		t.Fatalf("expected 2026-03-10, got %s", moved)
	}
	_, startOffset := start.Zone()
	_, movedOffset := moved.Zone()
	if startOffset == movedOffset {
		t.Fatalf("expected offsets to differ across DST boundary")
	}
}

func TestAddDaysAcrossFallBack(t *testing.T) {
	// US DST ends 2026-11-01.
	c, err := New("America/New_York")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	start := time.Date(2026, 10, 30, 14, 30, 0, 0, c.Location())
	moved := c.AddDays(start, 3)
	if moved.Hour() != 14 || moved.Minute() != 30 {
		t.Fatalf("expected 14:30 local after fall back, got %s", moved)
	}
	if moved.Day() != 2 || moved.Month() != time.November {
		t.Fatalf("expected 2026-11-02, got %s", moved)
	}
}

func TestDayOfWeekMatchesBusinessTimezone(t *testing.T) {
	// 2026-08-22 01:00 UTC is Friday 2026-08-21 evening in New York.
	at := time.Date(2026, 8, 22, 1, 0, 0, 0, time.UTC)
	c, err := New("America/New_York")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.DayOfWeek(at); got != 5 {
		t.Fatalf("expected Friday (5), got %d", got)
	}
}

func TestWithTimeOfDay(t *testing.T) {
	c, err := New("America/New_York")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	day := time.Date(2026, 8, 25, 0, 0, 0, 0, c.Location())
	at := c.WithTimeOfDay(day, 9, 30)
	if at.Hour() != 9 || at.Minute() != 30 {
		t.Fatalf("expected 09:30, got %s", at)
	}
	slot := c.WithMinutesOfDay(day, 13*60+15)
	if slot.Hour() != 13 || slot.Minute() != 15 {
		t.Fatalf("expected 13:15, got %s", slot)
	}
}

func TestNewRejectsUnknownTimezone(t *testing.T) {
	if _, err := New("Not/AZone"); err == nil {
		t.Fatalf("expected error for unknown timezone")
	}
}
