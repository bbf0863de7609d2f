package outbox

import (
	"encoding/json"
	"time"
)

// ActorRef identifies who produced the event. Sweep-originated events carry
// the worker name; admin actions carry the authenticated admin email.
type ActorRef struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
