package salesquotes

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/sourcing-engine/internal/rollup"
	"github.com/angelmondragon/sourcing-engine/pkg/db/models"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type ItemInput struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

type CreateInput struct {
	ClientCompanyID uuid.UUID
	RequestID       *uuid.UUID
	Date            *time.Time
	ValidUntil      *time.Time
	TVARate         decimal.Decimal
	Currency        enums.Currency
	Items           []ItemInput
	Notes           *string
	Actor           string
}

// UpdateInput edits a draft. Nil fields are left untouched. A non-zero
// ExpectedVersion must match the stored version.
type UpdateInput struct {
	QuoteID         uuid.UUID
	ExpectedVersion int
	Items           *[]ItemInput
	TVARate         *decimal.Decimal
	ValidUntil      *time.Time
	Notes           *string
	Actor           string
}

// ActionInput drives a status transition.
type ActionInput struct {
	QuoteID         uuid.UUID
	ExpectedVersion int
	Actor           string
	Note            string
}

type RespondInput struct {
	ActionInput
	Accept bool
}

type ListFilter struct {
	Status          *enums.ClientQuoteStatus
	ClientCompanyID *uuid.UUID
	Limit           int
	Offset          int
}

func (f ListFilter) normalized() ListFilter {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// View is a client quote with its totals derived at read time.
type View struct {
	Quote  *models.ClientQuote
	Totals rollup.SalesTotals
}

func newView(quote *models.ClientQuote) *View {
	return &View{Quote: quote, Totals: rollup.ComputeSalesTotals(quote)}
}
