package payloads

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/sourcing-engine/pkg/enums"
)

// NotificationRequestedEvent asks the notifier to email a recipient about an
// aggregate. Subject and body are rendered at enqueue time so the relay needs
// no domain lookups.
type NotificationRequestedEvent struct {
	Kind        enums.NotificationKind `json:"kind"`
	Recipient   string                 `json:"recipient"`
	Subject     string                 `json:"subject"`
	Body        string                 `json:"body"`
	RequestID   *uuid.UUID             `json:"request_id,omitempty"`
	QuoteID     *uuid.UUID             `json:"quote_id,omitempty"`
	Carrier     string                 `json:"carrier,omitempty"`
	TrackingRef string                 `json:"tracking_ref,omitempty"`
}
