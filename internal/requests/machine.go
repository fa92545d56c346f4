package requests

import (
	"strings"

	"github.com/angelmondragon/sourcing-engine/pkg/db/models"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/sourcing-engine/pkg/errors"
)

// manualEdges are the transitions a manager may request directly. Entering
// problem is handled separately; quote_selected is only reached through
// winner selection and open_for_quotes only through reversing it.
var manualEdges = map[enums.RequestStatus]enums.RequestStatus{
	enums.RequestStatusQuoteSelected: enums.RequestStatusOrdered,
	enums.RequestStatusOrdered:       enums.RequestStatusInProduction,
	enums.RequestStatusInProduction:  enums.RequestStatusInTransit,
	enums.RequestStatusInTransit:     enums.RequestStatusDelivered,
	enums.RequestStatusProblem:       enums.RequestStatusInProduction,
}

// CheckTransition validates a manual move from one status to another.
func CheckTransition(from, to enums.RequestStatus, reason string) error {
	if !to.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unknown request status %q", to)
	}
	switch to {
	case enums.RequestStatusProblem:
		if from == enums.RequestStatusProblem {
			return invalidTransition(from, to, "request is already flagged as a problem")
		}
		if strings.TrimSpace(reason) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "a reason is required to flag a problem")
		}
		return nil
	case enums.RequestStatusQuoteSelected:
		return invalidTransition(from, to, "a quote is selected through winner selection only")
	case enums.RequestStatusOpenForQuotes:
		return invalidTransition(from, to, "reopen a request by reversing its selection")
	}
	if next, ok := manualEdges[from]; ok && next == to {
		return nil
	}
	return invalidTransition(from, to, "")
}

// AllowedTransitions lists the manual moves available from a status.
func AllowedTransitions(from enums.RequestStatus) []enums.RequestStatus {
	var out []enums.RequestStatus
	if next, ok := manualEdges[from]; ok {
		out = append(out, next)
	}
	if from != enums.RequestStatusProblem {
		out = append(out, enums.RequestStatusProblem)
	}
	return out
}

// TrackingEditable reports whether carrier and tracking number may change.
func TrackingEditable(status enums.RequestStatus) bool {
	switch status {
	case enums.RequestStatusOrdered, enums.RequestStatusInProduction,
		enums.RequestStatusInTransit, enums.RequestStatusProblem:
		return true
	}
	return false
}

// CheckResume guards the problem -> in_production exit. Only a request that was
// ordered against exactly one selected quote and never delivered may go back
// into production.
func CheckResume(req *models.Request, selected int64) error {
	details := map[string]any{"request_id": req.ID, "selected_quotes": selected}
	switch {
	case selected != 1:
		return pkgerrors.Newf(pkgerrors.CodeInvalidRequestState, "request has %d selected supplier quotes, production needs exactly one", selected).
			WithDetails(details)
	case req.OrderedAt == nil:
		return pkgerrors.New(pkgerrors.CodeInvalidRequestState, "request was never ordered").
			WithDetails(details)
	case req.DeliveredAt != nil:
		return pkgerrors.New(pkgerrors.CodeInvalidRequestState, "request was already delivered").
			WithDetails(details)
	}
	return nil
}

func invalidTransition(from, to enums.RequestStatus, hint string) error {
	msg := "cannot move request from " + string(from) + " to " + string(to)
	if hint != "" {
		msg += ": " + hint
	}
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, msg).
		WithDetails(map[string]any{"from": from, "to": to, "allowed": AllowedTransitions(from)})
}
