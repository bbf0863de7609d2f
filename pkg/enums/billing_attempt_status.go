package enums

import "fmt"

// BillingAttemptStatus tracks the outcome of one charge attempt.
type BillingAttemptStatus string

const (
	BillingAttemptStatusPending BillingAttemptStatus = "pending"
	BillingAttemptStatusSuccess BillingAttemptStatus = "success"
	BillingAttemptStatusFailed  BillingAttemptStatus = "failed"
)

var validBillingAttemptStatuses = []BillingAttemptStatus{
	BillingAttemptStatusPending,
	BillingAttemptStatusSuccess,
	BillingAttemptStatusFailed,
}

// String implements fmt.Stringer.
func (s BillingAttemptStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s BillingAttemptStatus) IsValid() bool {
	for _, candidate := range validBillingAttemptStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsSettled reports whether the attempt reached a final outcome.
func (s BillingAttemptStatus) IsSettled() bool {
	return s == BillingAttemptStatusSuccess || s == BillingAttemptStatusFailed
}

// ParseBillingAttemptStatus converts raw input into a BillingAttemptStatus.
func ParseBillingAttemptStatus(value string) (BillingAttemptStatus, error) {
	for _, candidate := range validBillingAttemptStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid billing attempt status %q", value)
}
