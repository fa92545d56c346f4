package enums

import "fmt"

// NotificationKind selects the template used for an outgoing email.
type NotificationKind string

const (
	NotificationRequestInTransit NotificationKind = "request_in_transit"
	NotificationRequestDelivered NotificationKind = "request_delivered"
	NotificationClientQuoteSent  NotificationKind = "client_quote_sent"
)

var validNotificationKinds = []NotificationKind{
	NotificationRequestInTransit,
	NotificationRequestDelivered,
	NotificationClientQuoteSent,
}

// IsValid reports whether the value is a known NotificationKind.
func (k NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseNotificationKind converts raw input into a NotificationKind.
func ParseNotificationKind(value string) (NotificationKind, error) {
	for _, candidate := range validNotificationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification kind %q", value)
}
