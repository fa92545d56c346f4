package rollup

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/sourcing-engine/pkg/db/models"
	"github.com/angelmondragon/sourcing-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/sourcing-engine/pkg/errors"
	"github.com/angelmondragon/sourcing-engine/pkg/money"
)

const monthLayout = "2006-01"

// CostRecord pairs a supplier quote with the request it was bought for.
type CostRecord struct {
	Quote   models.SupplierQuote
	Request models.Request
}

// SummaryOptions control currency handling and the reported window. From and
// To bound the effective date, inclusive of From and exclusive of To.
type SummaryOptions struct {
	ReportingCurrency enums.Currency
	Rates             *money.RateTable
	From              *time.Time
	To                *time.Time
}

// MonthSummary is one calendar month (UTC).
type MonthSummary struct {
	Month     string          `json:"month"`
	Revenue   money.Amount    `json:"revenue"`
	Cost      money.Amount    `json:"cost"`
	Margin    money.Amount    `json:"margin"`
	MarginPct decimal.Decimal `json:"margin_pct"`
	Sales     int             `json:"sales"`
	Purchases int             `json:"purchases"`
}

// PeriodSummary groups revenue and cost by month in the reporting currency and
// lists every conversion rate that was applied.
type PeriodSummary struct {
	Currency     enums.Currency      `json:"currency"`
	Months       []MonthSummary      `json:"months"`
	Totals       MonthSummary        `json:"totals"`
	AppliedRates []money.AppliedRate `json:"applied_rates"`
}

// Summarize builds a PeriodSummary. Income counts client quotes in sale or
// invoiced at their subtotal before tax; cost counts selected supplier quotes
// whose request is in a production state at their landed cost. A figure in a
// currency without a recorded rate fails the whole summary with
// CURRENCY_MISMATCH.
func Summarize(income []models.ClientQuote, costs []CostRecord, opts SummaryOptions) (*PeriodSummary, error) {
	currency := opts.ReportingCurrency
	if currency == "" {
		currency = enums.CurrencyEUR
	}
	conv := newConverter(opts.Rates, currency)
	months := map[string]*MonthSummary{}

	bucket := func(at time.Time) *MonthSummary {
		key := at.UTC().Format(monthLayout)
		m, ok := months[key]
		if !ok {
			m = &MonthSummary{Month: key, Revenue: money.Zero(currency), Cost: money.Zero(currency)}
			months[key] = m
		}
		return m
	}

	for i := range income {
		quote := &income[i]
		if !quote.Status.CountsAsIncome() || !opts.inWindow(quote.Date) {
			continue
		}
		amount, err := conv.convert(SalesSubtotal(quote))
		if err != nil {
			return nil, err
		}
		m := bucket(quote.Date)
		m.Revenue.Value = m.Revenue.Value.Add(amount.Value)
		m.Sales++
	}

	for i := range costs {
		record := &costs[i]
		if record.Quote.Status != enums.SupplierQuoteStatusSelected || !record.Request.Status.IsProduction() {
			continue
		}
		at := CostDate(record)
		if !opts.inWindow(at) {
			continue
		}
		amount, err := conv.convert(LandedCost(&record.Quote))
		if err != nil {
			return nil, err
		}
		m := bucket(at)
		m.Cost.Value = m.Cost.Value.Add(amount.Value)
		m.Purchases++
	}

	summary := &PeriodSummary{
		Currency:     currency,
		Months:       make([]MonthSummary, 0, len(months)),
		Totals:       MonthSummary{Month: "total", Revenue: money.Zero(currency), Cost: money.Zero(currency)},
		AppliedRates: conv.applied(),
	}
	for _, m := range months {
		finish(m)
		summary.Months = append(summary.Months, *m)
		summary.Totals.Revenue.Value = summary.Totals.Revenue.Value.Add(m.Revenue.Value)
		summary.Totals.Cost.Value = summary.Totals.Cost.Value.Add(m.Cost.Value)
		summary.Totals.Sales += m.Sales
		summary.Totals.Purchases += m.Purchases
	}
	sort.Slice(summary.Months, func(i, j int) bool {
		return summary.Months[i].Month < summary.Months[j].Month
	})
	finish(&summary.Totals)
	return summary, nil
}

// CostDate is the effective date of a purchase: the request's ordered_at,
// falling back to the quote's selected_at and then its creation time.
func CostDate(record *CostRecord) time.Time {
	if record.Request.OrderedAt != nil {
		return *record.Request.OrderedAt
	}
	if record.Quote.SelectedAt != nil {
		return *record.Quote.SelectedAt
	}
	return record.Quote.CreatedAt
}

// MarginPct is margin / revenue × 100, or zero without revenue.
func MarginPct(revenue, margin decimal.Decimal) decimal.Decimal {
	if revenue.IsZero() {
		return decimal.Zero
	}
	return margin.Div(revenue).Mul(decimal.NewFromInt(100))
}

func finish(m *MonthSummary) {
	m.Margin = money.New(m.Revenue.Value.Sub(m.Cost.Value), m.Revenue.Currency)
	m.MarginPct = MarginPct(m.Revenue.Value, m.Margin.Value).Round(money.DisplayPlaces)
}

func (o SummaryOptions) inWindow(at time.Time) bool {
	if o.From != nil && at.Before(*o.From) {
		return false
	}
	if o.To != nil && !at.Before(*o.To) {
		return false
	}
	return true
}

type converter struct {
	table *money.RateTable
	to    enums.Currency
	used  map[string]money.AppliedRate
}

func newConverter(table *money.RateTable, to enums.Currency) *converter {
	return &converter{table: table, to: to, used: map[string]money.AppliedRate{}}
}

func (c *converter) convert(amount money.Amount) (money.Amount, error) {
	if amount.Currency == "" {
		return money.Amount{}, pkgerrors.New(pkgerrors.CodeCurrencyMismatch, "figure is missing its currency")
	}
	converted, applied, err := c.table.Convert(amount, c.to)
	if err != nil {
		return money.Amount{}, err
	}
	if applied != nil {
		c.used[string(applied.From)+":"+string(applied.To)] = *applied
	}
	return converted, nil
}

func (c *converter) applied() []money.AppliedRate {
	out := make([]money.AppliedRate, 0, len(c.used))
	for _, rate := range c.used {
		out = append(out, rate)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}
