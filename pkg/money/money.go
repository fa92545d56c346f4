// Package money carries currency-tagged exact decimal amounts. Arithmetic never
// rounds; rounding to two places happens only when an amount is displayed.
package money

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/sourcing-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/sourcing-engine/pkg/errors"
)

// DisplayPlaces is the number of fractional digits shown to people.
const DisplayPlaces = 2

var hundred = decimal.NewFromInt(100)

// Column shapes of the persisted numeric fields, as precision and scale.
var (
	PriceColumn    = Column{Precision: 14, Scale: 4}
	QuantityColumn = Column{Precision: 12, Scale: 3}
	RateColumn     = Column{Precision: 6, Scale: 3}
)

// Column describes a fixed-point numeric column.
type Column struct {
	Precision int32
	Scale     int32
}

// Fits reports whether d is stored by the column without rounding or overflow.
func (c Column) Fits(d decimal.Decimal) bool {
	if !d.Equal(d.Truncate(c.Scale)) {
		return false
	}
	limit := decimal.New(1, c.Precision-c.Scale)
	return d.Abs().LessThan(limit)
}

type Amount struct {
	Value    decimal.Decimal
	Currency enums.Currency
}

func New(value decimal.Decimal, currency enums.Currency) Amount {
	return Amount{Value: value, Currency: currency}
}

func Zero(currency enums.Currency) Amount {
	return Amount{Value: decimal.Zero, Currency: currency}
}

// MustParse builds an amount from a decimal literal and panics on malformed input.
func MustParse(value string, currency enums.Currency) Amount {
	return Amount{Value: decimal.RequireFromString(value), Currency: currency}
}

func (a Amount) IsZero() bool {
	return a.Value.IsZero()
}

func (a Amount) IsNegative() bool {
	return a.Value.IsNegative()
}

func (a Amount) Add(other Amount) (Amount, error) {
	if err := a.sameCurrency(other); err != nil {
		return Amount{}, err
	}
	return Amount{Value: a.Value.Add(other.Value), Currency: a.Currency}, nil
}

func (a Amount) Sub(other Amount) (Amount, error) {
	if err := a.sameCurrency(other); err != nil {
		return Amount{}, err
	}
	return Amount{Value: a.Value.Sub(other.Value), Currency: a.Currency}, nil
}

func (a Amount) Mul(factor decimal.Decimal) Amount {
	return Amount{Value: a.Value.Mul(factor), Currency: a.Currency}
}

// ApplyPercent returns a × (1 + pct/100).
func (a Amount) ApplyPercent(pct decimal.Decimal) Amount {
	return a.Mul(decimal.NewFromInt(1).Add(pct.Div(hundred)))
}

// Percent returns a × pct/100.
func (a Amount) Percent(pct decimal.Decimal) Amount {
	return a.Mul(pct.Div(hundred))
}

func (a Amount) Equal(other Amount) bool {
	return a.Currency == other.Currency && a.Value.Equal(other.Value)
}

func (a Amount) Cmp(other Amount) (int, error) {
	if err := a.sameCurrency(other); err != nil {
		return 0, err
	}
	return a.Value.Cmp(other.Value), nil
}

// Rounded returns the value rounded half away from zero to display precision.
func (a Amount) Rounded() decimal.Decimal {
	return a.Value.Round(DisplayPlaces)
}

// Display renders the amount for people, e.g. "1234.50 EUR".
func (a Amount) Display() string {
	return fmt.Sprintf("%s %s", a.Value.StringFixed(DisplayPlaces), a.Currency)
}

func (a Amount) String() string {
	return a.Display()
}

type amountJSON struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// MarshalJSON emits the display-rounded value as a string to avoid float drift.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(amountJSON{Amount: a.Value.StringFixed(DisplayPlaces), Currency: string(a.Currency)})
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var raw amountJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	value, err := decimal.NewFromString(raw.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", raw.Amount, err)
	}
	currency, err := enums.ParseCurrency(raw.Currency)
	if err != nil {
		return err
	}
	*a = Amount{Value: value, Currency: currency}
	return nil
}

func (a Amount) sameCurrency(other Amount) error {
	if a.Currency == other.Currency {
		return nil
	}
	return pkgerrors.Newf(pkgerrors.CodeCurrencyMismatch, "cannot combine %s with %s without a conversion rate", a.Currency, other.Currency).
		WithDetails(map[string]any{"left": a.Currency, "right": other.Currency})
}

// Sum adds amounts that share a currency; an empty slice yields zero in fallback.
func Sum(fallback enums.Currency, amounts ...Amount) (Amount, error) {
	total := Zero(fallback)
	if len(amounts) > 0 {
		total = Zero(amounts[0].Currency)
	}
	for _, amt := range amounts {
		next, err := total.Add(amt)
		if err != nil {
			return Amount{}, err
		}
		total = next
	}
	return total, nil
}
