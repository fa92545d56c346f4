package bids

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/sourcing-engine/pkg/db/models"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
)

// LineItemInput prices one component of the request.
type LineItemInput struct {
	ComponentID          uuid.UUID
	UnitPrice            decimal.Decimal
	Quantity             int
	LeadTimeDays         *int
	SubstitutePartNumber *string
}

// SubmitBidInput carries a supplier's bid on an open request.
type SubmitBidInput struct {
	RequestID      uuid.UUID
	Bidder         string
	LineItems      []LineItemInput
	ShippingCost   decimal.Decimal
	ImportationTax decimal.Decimal
	Currency       enums.Currency
	LeadTimeDays   int
	Note           *string
	Actor          string
}

type SelectWinnerInput struct {
	RequestID uuid.UUID
	QuoteID   uuid.UUID
	Actor     string
}

type RejectBidInput struct {
	RequestID uuid.UUID
	QuoteID   uuid.UUID
	Actor     string
	Reason    string
}

type ReverseSelectionInput struct {
	RequestID uuid.UUID
	Actor     string
	Reason    string
}

// Selection is the request and quote as they stand after a winner changes.
type Selection struct {
	Request *models.Request
	Quote   *models.SupplierQuote
}
