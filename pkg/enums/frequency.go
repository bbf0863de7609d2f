package enums

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Frequency defines the recurrence cadence of a pickup subscription.
type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyBiweekly  Frequency = "biweekly"
	FrequencyTriweekly Frequency = "triweekly"
)

var validFrequencies = []Frequency{
	FrequencyWeekly,
	FrequencyBiweekly,
	FrequencyTriweekly,
}

var frequencyCycleDays = map[Frequency]int{
	FrequencyWeekly:    7,
	FrequencyBiweekly:  14,
	FrequencyTriweekly: 21,
}

var frequencyDiscountPercent = map[Frequency]decimal.Decimal{
	FrequencyWeekly:    decimal.NewFromInt(15),
	FrequencyBiweekly:  decimal.NewFromInt(10),
	FrequencyTriweekly: decimal.NewFromInt(5),
}

// String implements fmt.Stringer.
func (f Frequency) String() string {
	return string(f)
}

// IsValid reports whether the value is a known Frequency.
func (f Frequency) IsValid() bool {
	for _, candidate := range validFrequencies {
		if candidate == f {
			return true
		}
	}
	return false
}

// CycleDays returns the fixed day increment for one cycle of the frequency.
func (f Frequency) CycleDays() int {
	if days, ok := frequencyCycleDays[f]; ok {
		return days
	}
	return frequencyCycleDays[FrequencyWeekly]
}

// DiscountPercent returns the percentage discount granted for the cadence.
func (f Frequency) DiscountPercent() decimal.Decimal {
	if pct, ok := frequencyDiscountPercent[f]; ok {
		return pct
	}
	return decimal.Zero
}

// ParseFrequency converts raw input into a Frequency.
func ParseFrequency(value string) (Frequency, error) {
	for _, candidate := range validFrequencies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid frequency %q", value)
}
