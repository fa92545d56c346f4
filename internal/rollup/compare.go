package rollup

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/sourcing-engine/pkg/db/models"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
	"github.com/angelmondragon/sourcing-engine/pkg/money"
)

// QuoteComparison summarizes the live bids on one request.
type QuoteComparison struct {
	RequestID     uuid.UUID           `json:"request_id"`
	Bids          int                 `json:"bids"`
	CheapestQuote *uuid.UUID          `json:"cheapest_quote_id,omitempty"`
	Cheapest      money.Amount        `json:"cheapest"`
	Highest       money.Amount        `json:"highest"`
	Spread        money.Amount        `json:"spread"`
	AppliedRates  []money.AppliedRate `json:"applied_rates"`
}

// CompareQuotes ranks non-rejected bids by landed cost in the given currency.
func CompareQuotes(requestID uuid.UUID, quotes []models.SupplierQuote, currency enums.Currency, rates *money.RateTable) (*QuoteComparison, error) {
	conv := newConverter(rates, currency)
	out := &QuoteComparison{
		RequestID: requestID,
		Cheapest:  money.Zero(currency),
		Highest:   money.Zero(currency),
		Spread:    money.Zero(currency),
	}
	for i := range quotes {
		quote := &quotes[i]
		if quote.Status == enums.SupplierQuoteStatusRejected {
			continue
		}
		cost, err := conv.convert(LandedCost(quote))
		if err != nil {
			return nil, err
		}
		if out.Bids == 0 || cost.Value.LessThan(out.Cheapest.Value) {
			id := quote.ID
			out.CheapestQuote = &id
			out.Cheapest = cost
		}
		if out.Bids == 0 || cost.Value.GreaterThan(out.Highest.Value) {
			out.Highest = cost
		}
		out.Bids++
	}
	out.Spread = money.New(out.Highest.Value.Sub(out.Cheapest.Value), currency)
	out.AppliedRates = conv.applied()
	return out, nil
}
