package enums

import "fmt"

// PickupStatus is the fulfillment state of one scheduled pickup.
type PickupStatus string

const (
	PickupStatusScheduled PickupStatus = "scheduled"
	PickupStatusReady     PickupStatus = "ready"
	PickupStatusPickedUp  PickupStatus = "picked_up"
	PickupStatusCancelled PickupStatus = "cancelled"
	PickupStatusNoShow    PickupStatus = "no_show"
)

var validPickupStatuses = []PickupStatus{
	PickupStatusScheduled,
	PickupStatusReady,
	PickupStatusPickedUp,
	PickupStatusCancelled,
	PickupStatusNoShow,
}

// pickupTransitions lists the states reachable from each state.
var pickupTransitions = map[PickupStatus][]PickupStatus{
	PickupStatusScheduled: {PickupStatusReady, PickupStatusPickedUp, PickupStatusCancelled, PickupStatusNoShow},
	PickupStatusReady:     {PickupStatusPickedUp, PickupStatusCancelled, PickupStatusNoShow},
}

// String implements fmt.Stringer.
func (s PickupStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s PickupStatus) IsValid() bool {
	for _, candidate := range validPickupStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the pickup can no longer change state.
func (s PickupStatus) IsTerminal() bool {
	return len(pickupTransitions[s]) == 0
}

// CanTransitionTo reports whether moving to the target state is allowed.
func (s PickupStatus) CanTransitionTo(target PickupStatus) bool {
	for _, candidate := range pickupTransitions[s] {
		if candidate == target {
			return true
		}
	}
	return false
}

// ParsePickupStatus converts raw input into a PickupStatus.
func ParsePickupStatus(value string) (PickupStatus, error) {
	for _, candidate := range validPickupStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid pickup status %q", value)
}
