package salesquotes

import (
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/sourcing-engine/pkg/errors"
)

var edges = map[enums.ClientQuoteStatus][]enums.ClientQuoteStatus{
	enums.ClientQuoteStatusDraft:    {enums.ClientQuoteStatusSent},
	enums.ClientQuoteStatusSent:     {enums.ClientQuoteStatusAccepted, enums.ClientQuoteStatusRejected, enums.ClientQuoteStatusSale},
	enums.ClientQuoteStatusAccepted: {enums.ClientQuoteStatusSale},
	enums.ClientQuoteStatusSale:     {enums.ClientQuoteStatusInvoiced},
}

// CheckTransition validates a sales quote status change.
func CheckTransition(from, to enums.ClientQuoteStatus) error {
	if !from.IsValid() || !to.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unknown client quote status %q -> %q", from, to)
	}
	for _, allowed := range edges[from] {
		if allowed == to {
			return nil
		}
	}
	return pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "client quote cannot move from %s to %s", from, to).
		WithDetails(map[string]any{"from": from, "to": to, "allowed": AllowedTransitions(from)})
}

func AllowedTransitions(from enums.ClientQuoteStatus) []enums.ClientQuoteStatus {
	return append([]enums.ClientQuoteStatus(nil), edges[from]...)
}

// Editable reports whether items, rate and validity may still change.
func Editable(status enums.ClientQuoteStatus) bool {
	return status == enums.ClientQuoteStatusDraft
}
