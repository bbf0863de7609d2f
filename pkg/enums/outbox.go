package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateSubscription OutboxAggregateType = "subscription"
	AggregatePickup       OutboxAggregateType = "pickup"
	AggregateBilling      OutboxAggregateType = "billing_attempt"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateSubscription,
	AggregatePickup,
	AggregateBilling,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventPickupScheduled      OutboxEventType = "pickup_scheduled"
	EventPickupRescheduled    OutboxEventType = "pickup_rescheduled"
	EventPickupStatusChanged  OutboxEventType = "pickup_status_changed"
	EventBillingSucceeded     OutboxEventType = "billing_succeeded"
	EventBillingFailed        OutboxEventType = "billing_failed"
	EventSubscriptionPaused   OutboxEventType = "subscription_paused"
	EventSubscriptionResumed  OutboxEventType = "subscription_resumed"
	EventSubscriptionCanceled OutboxEventType = "subscription_cancelled"
)

var validOutboxEventTypes = []OutboxEventType{
	EventPickupScheduled,
	EventPickupRescheduled,
	EventPickupStatusChanged,
	EventBillingSucceeded,
	EventBillingFailed,
	EventSubscriptionPaused,
	EventSubscriptionResumed,
	EventSubscriptionCanceled,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason maps to the outbox_dlq_error_reason_enum in Postgres.
type OutboxDLQErrorReason string

const (
	DLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	DLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

// IsValid reports whether the value matches the canonical reason enum.
func (r OutboxDLQErrorReason) IsValid() bool {
	return r == DLQReasonMaxAttempts || r == DLQReasonNonRetryable
}
