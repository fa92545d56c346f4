package money

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/sourcing-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/sourcing-engine/pkg/errors"
)

// AppliedRate records a conversion performed while building a summary.
type AppliedRate struct {
	From enums.Currency  `json:"from"`
	To   enums.Currency  `json:"to"`
	Rate decimal.Decimal `json:"rate"`
}

type ratePair struct {
	from enums.Currency
	to   enums.Currency
}

// RateTable holds explicitly recorded conversion rates. Only direct pairs are
// used; inverse rates are never inferred.
type RateTable struct {
	rates map[ratePair]decimal.Decimal
}

func NewRateTable() *RateTable {
	return &RateTable{rates: map[ratePair]decimal.Decimal{}}
}

// ParseRates reads "GBP:EUR=1.17,USD:EUR=0.92".
func ParseRates(raw string) (*RateTable, error) {
	table := NewRateTable()
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pair, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("invalid rate %q: expected FROM:TO=RATE", part)
		}
		fromRaw, toRaw, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("invalid rate pair %q: expected FROM:TO", pair)
		}
		from, err := enums.ParseCurrency(fromRaw)
		if err != nil {
			return nil, err
		}
		to, err := enums.ParseCurrency(toRaw)
		if err != nil {
			return nil, err
		}
		rate, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("invalid rate value %q: %w", value, err)
		}
		if err := table.Set(from, to, rate); err != nil {
			return nil, err
		}
	}
	return table, nil
}

func (t *RateTable) Set(from, to enums.Currency, rate decimal.Decimal) error {
	if !rate.IsPositive() {
		return fmt.Errorf("rate %s->%s must be positive", from, to)
	}
	if t.rates == nil {
		t.rates = map[ratePair]decimal.Decimal{}
	}
	t.rates[ratePair{from: from, to: to}] = rate
	return nil
}

func (t *RateTable) Rate(from, to enums.Currency) (decimal.Decimal, bool) {
	if from == to {
		return decimal.NewFromInt(1), true
	}
	if t == nil {
		return decimal.Decimal{}, false
	}
	rate, ok := t.rates[ratePair{from: from, to: to}]
	return rate, ok
}

// Convert expresses amount in the target currency. A missing rate fails with
// CURRENCY_MISMATCH.
func (t *RateTable) Convert(amount Amount, to enums.Currency) (Amount, *AppliedRate, error) {
	if amount.Currency == to {
		return amount, nil, nil
	}
	rate, ok := t.Rate(amount.Currency, to)
	if !ok {
		return Amount{}, nil, pkgerrors.Newf(pkgerrors.CodeCurrencyMismatch, "no recorded rate from %s to %s", amount.Currency, to).
			WithDetails(map[string]any{"from": amount.Currency, "to": to})
	}
	return Amount{Value: amount.Value.Mul(rate), Currency: to}, &AppliedRate{From: amount.Currency, To: to, Rate: rate}, nil
}

// Pairs lists recorded rates in a stable order.
func (t *RateTable) Pairs() []AppliedRate {
	if t == nil {
		return nil
	}
	out := make([]AppliedRate, 0, len(t.rates))
	for pair, rate := range t.rates {
		out = append(out, AppliedRate{From: pair.from, To: pair.to, Rate: rate})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}
