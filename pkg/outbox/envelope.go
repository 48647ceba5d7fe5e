package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActorRef names the merchant, and optionally the customer, behind an event.
type ActorRef struct {
	MerchantID uuid.UUID  `json:"merchantId"`
	CustomerID *uuid.UUID `json:"customerId,omitempty"`
	Source     string     `json:"source,omitempty"`
}

// PayloadEnvelope wraps every payload written to outbox_events. Consumers key
// idempotency off EventID and branch on Version, so neither field may change
// meaning once events exist in the table.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
