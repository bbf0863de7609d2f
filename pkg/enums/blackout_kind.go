package enums

import "fmt"

// BlackoutKind distinguishes how a blackout entry matches dates.
type BlackoutKind string

const (
	BlackoutKindSingleDate       BlackoutKind = "single_date"
	BlackoutKindDateRange        BlackoutKind = "date_range"
	BlackoutKindRecurringWeekday BlackoutKind = "recurring_weekday"
)

var validBlackoutKinds = []BlackoutKind{
	BlackoutKindSingleDate,
	BlackoutKindDateRange,
	BlackoutKindRecurringWeekday,
}

// String implements fmt.Stringer.
func (k BlackoutKind) String() string {
	return string(k)
}

// IsValid reports whether the value is known.
func (k BlackoutKind) IsValid() bool {
	for _, candidate := range validBlackoutKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseBlackoutKind converts raw input into a BlackoutKind.
func ParseBlackoutKind(value string) (BlackoutKind, error) {
	for _, candidate := range validBlackoutKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid blackout kind %q", value)
}
