package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/sourcing-engine/pkg/db/models"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
	"github.com/angelmondragon/sourcing-engine/pkg/money"
	"github.com/angelmondragon/sourcing-engine/pkg/outbox"
	"github.com/angelmondragon/sourcing-engine/pkg/outbox/payloads"
)

// Composer renders notification payloads at enqueue time.
type Composer struct {
	baseURL string
}

func NewComposer(consoleBaseURL string) *Composer {
	return &Composer{baseURL: strings.TrimRight(consoleBaseURL, "/")}
}

// RequestStatus renders the client email for a request entering status. ok is
// false when the status does not notify or the request has no client email.
func (c *Composer) RequestStatus(req *models.Request, status enums.RequestStatus) (payloads.NotificationRequestedEvent, bool) {
	if req == nil || strings.TrimSpace(req.ClientEmail) == "" {
		return payloads.NotificationRequestedEvent{}, false
	}
	requestID := req.ID
	event := payloads.NotificationRequestedEvent{
		Recipient: req.ClientEmail,
		RequestID: &requestID,
	}
	link := c.link("requests", req.ID)

	switch status {
	case enums.RequestStatusInTransit:
		carrier := deref(req.Carrier)
		tracking := deref(req.TrackingNumber)
		event.Kind = enums.NotificationRequestInTransit
		event.Carrier = carrier
		event.TrackingRef = tracking
		event.Subject = "Your part is on its way"
		var b strings.Builder
		fmt.Fprintf(&b, "Your request %s has shipped.\n", shortID(req.ID))
		if carrier != "" {
			fmt.Fprintf(&b, "Carrier: %s\n", carrier)
		}
		if tracking != "" {
			fmt.Fprintf(&b, "Tracking number: %s\n", tracking)
		}
		fmt.Fprintf(&b, "\nFollow it here: %s\n", link)
		event.Body = b.String()
	case enums.RequestStatusDelivered:
		event.Kind = enums.NotificationRequestDelivered
		event.Subject = "Your part has been delivered"
		event.Body = fmt.Sprintf("Your request %s has been delivered.\n\nDetails: %s\n", shortID(req.ID), link)
	default:
		return payloads.NotificationRequestedEvent{}, false
	}
	return event, true
}

// ClientQuoteSent renders the email announcing a sales quote to the company contact.
func (c *Composer) ClientQuoteSent(quote *models.ClientQuote, recipient string, total money.Amount) (payloads.NotificationRequestedEvent, bool) {
	if quote == nil || strings.TrimSpace(recipient) == "" {
		return payloads.NotificationRequestedEvent{}, false
	}
	quoteID := quote.ID
	var b strings.Builder
	fmt.Fprintf(&b, "Please find quote %s dated %s.\n", quote.QuoteNumber, quote.Date.Format("2006-01-02"))
	fmt.Fprintf(&b, "Total including tax: %s\n", total.Display())
	if quote.ValidUntil != nil {
		fmt.Fprintf(&b, "Valid until: %s\n", quote.ValidUntil.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "\nView it here: %s\n", c.link("quotes", quote.ID))
	return payloads.NotificationRequestedEvent{
		Kind:      enums.NotificationClientQuoteSent,
		Recipient: recipient,
		Subject:   fmt.Sprintf("Quote %s", quote.QuoteNumber),
		Body:      b.String(),
		QuoteID:   &quoteID,
		RequestID: quote.RequestID,
	}, true
}

// Queue stores the notification in the outbox inside tx.
func Queue(ctx context.Context, emitter outbox.Emitter, tx *gorm.DB, aggregate enums.OutboxAggregateType, aggregateID uuid.UUID, actor string, event payloads.NotificationRequestedEvent) error {
	return emitter.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: aggregate,
		AggregateID:   aggregateID,
		Actor:         &outbox.ActorRef{ID: actor},
		Data:          event,
	})
}

// ToMessage turns a queued payload into a deliverable message.
func ToMessage(event payloads.NotificationRequestedEvent) Message {
	return Message{
		To:      []string{event.Recipient},
		Subject: event.Subject,
		Text:    event.Body,
	}
}

func (c *Composer) link(kind string, id uuid.UUID) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, kind, id)
}

func shortID(id uuid.UUID) string {
	return strings.ToUpper(id.String()[:8])
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
