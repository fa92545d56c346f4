package bids

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/sourcing-engine/api/controllers/presenters"
	"github.com/angelmondragon/sourcing-engine/api/middleware"
	"github.com/angelmondragon/sourcing-engine/api/responses"
	"github.com/angelmondragon/sourcing-engine/api/validators"
	internalbids "github.com/angelmondragon/sourcing-engine/internal/bids"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/sourcing-engine/pkg/errors"
	"github.com/angelmondragon/sourcing-engine/pkg/logger"
)

const (
	paramRequestID = "requestID"
	paramQuoteID   = "quoteID"
)

type lineItemPayload struct {
	ComponentID          uuid.UUID       `json:"component_id"`
	UnitPrice            decimal.Decimal `json:"unit_price" validate:"decimal_nonneg"`
	Quantity             int             `json:"quantity" validate:"min=1"`
	LeadTimeDays         *int            `json:"lead_time_days,omitempty" validate:"omitempty,gte=0"`
	SubstitutePartNumber *string         `json:"substitute_part_number,omitempty" validate:"omitempty,max=120"`
}

type submitPayload struct {
	Bidder         string            `json:"bidder,omitempty" validate:"max=200"`
	LineItems      []lineItemPayload `json:"line_items" validate:"required,min=1,dive"`
	ShippingCost   decimal.Decimal   `json:"shipping_cost" validate:"decimal_nonneg"`
	ImportationTax decimal.Decimal   `json:"importation_tax" validate:"decimal_nonneg"`
	Currency       string            `json:"currency" validate:"required,currency"`
	LeadTimeDays   int               `json:"lead_time_days" validate:"gte=0"`
	Note           *string           `json:"note,omitempty" validate:"omitempty,max=1000"`
}

// bidderFor pins suppliers to their own identity; managers may enter a bid on
// behalf of a named supplier.
func bidderFor(r *http.Request, requested string) (string, error) {
	actor := middleware.ActorIDFromContext(r.Context())
	requested = strings.TrimSpace(requested)
	if middleware.RoleFromContext(r.Context()) == enums.ActorRoleSupplier {
		if requested != "" && requested != actor {
			return "", pkgerrors.New(pkgerrors.CodeForbidden, "suppliers can only bid as themselves")
		}
		return actor, nil
	}
	if requested == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "bidder is required")
	}
	return requested, nil
}

// Submit records a supplier bid on an open request.
func Submit(svc internalbids.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bid service unavailable"))
			return
		}
		requestID, err := validators.ParseUUIDParam(r, paramRequestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload submitPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		bidder, err := bidderFor(r, payload.Bidder)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := internalbids.SubmitBidInput{
			RequestID:      requestID,
			Bidder:         bidder,
			ShippingCost:   payload.ShippingCost,
			ImportationTax: payload.ImportationTax,
			Currency:       enums.Currency(strings.ToUpper(strings.TrimSpace(payload.Currency))),
			LeadTimeDays:   payload.LeadTimeDays,
			Note:           payload.Note,
			Actor:          middleware.ActorIDFromContext(r.Context()),
		}
		for _, li := range payload.LineItems {
			input.LineItems = append(input.LineItems, internalbids.LineItemInput{
				ComponentID:          li.ComponentID,
				UnitPrice:            li.UnitPrice,
				Quantity:             li.Quantity,
				LeadTimeDays:         li.LeadTimeDays,
				SubstitutePartNumber: li.SubstitutePartNumber,
			})
		}

		quote, err := svc.SubmitBid(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, presenters.NewSupplierQuote(quote))
	}
}

func List(svc internalbids.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bid service unavailable"))
			return
		}
		requestID, err := validators.ParseUUIDParam(r, paramRequestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quotes, err := svc.ListBids(r.Context(), requestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, presenters.NewSupplierQuotes(quotes))
	}
}

// Compare ranks the bids of a request in one currency. The reporting
// currency is used when none is given.
func Compare(svc internalbids.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bid service unavailable"))
			return
		}
		requestID, err := validators.ParseUUIDParam(r, paramRequestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var currency enums.Currency
		if raw := strings.TrimSpace(r.URL.Query().Get("currency")); raw != "" {
			parsed, err := enums.ParseCurrency(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency"))
				return
			}
			currency = parsed
		}
		comparison, err := svc.Compare(r.Context(), requestID, currency)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, comparison)
	}
}

type selectionPayload struct {
	Request presenters.Request        `json:"request"`
	Quote   *presenters.SupplierQuote `json:"quote,omitempty"`
}

func newSelectionPayload(sel *internalbids.Selection) selectionPayload {
	out := selectionPayload{Request: presenters.NewRequest(sel.Request)}
	if sel.Quote != nil {
		quote := presenters.NewSupplierQuote(sel.Quote)
		out.Quote = &quote
	}
	return out
}

type selectWinnerPayload struct {
	QuoteID uuid.UUID `json:"quote_id"`
}

// SelectWinner marks one pending bid as the winner and moves the request to
// quote_selected.
func SelectWinner(svc internalbids.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bid service unavailable"))
			return
		}
		requestID, err := validators.ParseUUIDParam(r, paramRequestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload selectWinnerPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.QuoteID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "quote_id is required"))
			return
		}

		sel, err := svc.SelectWinner(r.Context(), internalbids.SelectWinnerInput{
			RequestID: requestID,
			QuoteID:   payload.QuoteID,
			Actor:     middleware.ActorIDFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSelectionPayload(sel))
	}
}

type reasonPayload struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// Reject declines a pending bid.
func Reject(svc internalbids.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bid service unavailable"))
			return
		}
		requestID, err := validators.ParseUUIDParam(r, paramRequestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quoteID, err := validators.ParseUUIDParam(r, paramQuoteID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload reasonPayload
		if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := svc.RejectBid(r.Context(), internalbids.RejectBidInput{
			RequestID: requestID,
			QuoteID:   quoteID,
			Actor:     middleware.ActorIDFromContext(r.Context()),
			Reason:    validators.SanitizeString(payload.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, presenters.NewSupplierQuote(quote))
	}
}

// ReverseSelection returns the winner to pending and reopens the request.
func ReverseSelection(svc internalbids.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bid service unavailable"))
			return
		}
		requestID, err := validators.ParseUUIDParam(r, paramRequestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload reasonPayload
		if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sel, err := svc.ReverseSelection(r.Context(), internalbids.ReverseSelectionInput{
			RequestID: requestID,
			Actor:     middleware.ActorIDFromContext(r.Context()),
			Reason:    validators.SanitizeString(payload.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newSelectionPayload(sel))
	}
}

func History(svc internalbids.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "bid service unavailable"))
			return
		}
		quoteID, err := validators.ParseUUIDParam(r, paramQuoteID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entries, err := svc.History(r.Context(), quoteID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, presenters.NewHistory(entries))
	}
}
