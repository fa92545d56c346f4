package enums

import "fmt"

// ClientQuoteStatus tracks a client-facing sales quote through to invoicing.
type ClientQuoteStatus string

const (
	ClientQuoteStatusDraft    ClientQuoteStatus = "draft"
	ClientQuoteStatusSent     ClientQuoteStatus = "sent"
	ClientQuoteStatusAccepted ClientQuoteStatus = "accepted"
	ClientQuoteStatusRejected ClientQuoteStatus = "rejected"
	ClientQuoteStatusSale     ClientQuoteStatus = "sale"
	ClientQuoteStatusInvoiced ClientQuoteStatus = "invoiced"
)

var validClientQuoteStatuses = []ClientQuoteStatus{
	ClientQuoteStatusDraft,
	ClientQuoteStatusSent,
	ClientQuoteStatusAccepted,
	ClientQuoteStatusRejected,
	ClientQuoteStatusSale,
	ClientQuoteStatusInvoiced,
}

// String implements fmt.Stringer.
func (s ClientQuoteStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ClientQuoteStatus.
func (s ClientQuoteStatus) IsValid() bool {
	for _, candidate := range validClientQuoteStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition exists.
func (s ClientQuoteStatus) IsTerminal() bool {
	return s == ClientQuoteStatusRejected || s == ClientQuoteStatusInvoiced
}

// CountsAsIncome reports whether the quote contributes revenue to summaries.
func (s ClientQuoteStatus) CountsAsIncome() bool {
	return s == ClientQuoteStatusSale || s == ClientQuoteStatusInvoiced
}

// ParseClientQuoteStatus converts raw input into a ClientQuoteStatus.
func ParseClientQuoteStatus(value string) (ClientQuoteStatus, error) {
	for _, candidate := range validClientQuoteStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid client quote status %q", value)
}
