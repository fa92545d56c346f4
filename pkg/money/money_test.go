package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/sourcing-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/sourcing-engine/pkg/errors"
)

func TestAddRequiresSameCurrency(t *testing.T) {
	eur := MustParse("10.10", enums.CurrencyEUR)
	sum, err := eur.Add(MustParse("0.20", enums.CurrencyEUR))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sum.Value.Equal(decimal.RequireFromString("10.30")) {
		t.Fatalf("expected exact 10.30, got %s", sum.Value)
	}

	_, err = eur.Add(MustParse("1", enums.CurrencyGBP))
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeCurrencyMismatch {
		t.Fatalf("expected currency mismatch, got %v", err)
	}
}

func TestApplyPercentIsExact(t *testing.T) {
	subtotal := MustParse("1000", enums.CurrencyEUR)
	total := subtotal.ApplyPercent(decimal.NewFromInt(20))
	if !total.Value.Equal(decimal.NewFromInt(1200)) {
		t.Fatalf("expected 1200, got %s", total.Value)
	}
	tax := subtotal.Percent(decimal.RequireFromString("5.5"))
	if !tax.Value.Equal(decimal.RequireFromString("55")) {
		t.Fatalf("expected 55, got %s", tax.Value)
	}
}

func TestDisplayRoundsOnlyAtPresentation(t *testing.T) {
	third := MustParse("10", enums.CurrencyEUR).Mul(decimal.RequireFromString("0.3333"))
	if third.Value.String() != "3.333" {
		t.Fatalf("internal value must stay exact, got %s", third.Value)
	}
	if third.Display() != "3.33 EUR" {
		t.Fatalf("unexpected display %q", third.Display())
	}

	payload, err := json.Marshal(third)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(payload) != `{"amount":"3.33","currency":"EUR"}` {
		t.Fatalf("unexpected json %s", payload)
	}
}

func TestSum(t *testing.T) {
	total, err := Sum(enums.CurrencyEUR,
		MustParse("800", enums.CurrencyEUR),
		MustParse("120", enums.CurrencyEUR),
		MustParse("80", enums.CurrencyEUR),
	)
	if err != nil {
		t.Fatalf("sum: %v", err)
	}
	if !total.Value.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("expected 1000, got %s", total.Value)
	}

	empty, err := Sum(enums.CurrencyUSD)
	if err != nil || !empty.IsZero() || empty.Currency != enums.CurrencyUSD {
		t.Fatalf("expected zero USD, got %v err %v", empty, err)
	}
}

func TestParseRatesAndConvert(t *testing.T) {
	table, err := ParseRates("GBP:EUR=1.17, usd:eur=0.92")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	converted, applied, err := table.Convert(MustParse("100", enums.CurrencyGBP), enums.CurrencyEUR)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !converted.Value.Equal(decimal.NewFromInt(117)) || converted.Currency != enums.CurrencyEUR {
		t.Fatalf("unexpected conversion %v", converted)
	}
	if applied == nil || !applied.Rate.Equal(decimal.RequireFromString("1.17")) {
		t.Fatalf("expected applied rate to be recorded")
	}

	same, applied, err := table.Convert(MustParse("5", enums.CurrencyEUR), enums.CurrencyEUR)
	if err != nil || applied != nil || !same.Value.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("same-currency conversion should be identity")
	}

	_, _, err = table.Convert(MustParse("5", enums.CurrencyEUR), enums.CurrencyGBP)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeCurrencyMismatch {
		t.Fatalf("inverse rates must not be inferred, got %v", err)
	}

	if len(table.Pairs()) != 2 {
		t.Fatalf("expected two recorded pairs")
	}
}

func TestParseRatesRejectsMalformed(t *testing.T) {
	for _, raw := range []string{"GBP-EUR=1.1", "GBP:EUR", "GBP:EUR=abc", "GBP:EUR=0", "XX:EUR=1"} {
		if _, err := ParseRates(raw); err == nil {
			t.Fatalf("expected %q to fail", raw)
		}
	}
	table, err := ParseRates("")
	if err != nil || len(table.Pairs()) != 0 {
		t.Fatalf("empty input should yield an empty table")
	}
}

func TestColumnFits(t *testing.T) {
	tests := []struct {
		column Column
		value  string
		fits   bool
	}{
		{PriceColumn, "33.335", true},
		{PriceColumn, "0.0001", true},
		{PriceColumn, "0.00005", false},
		{PriceColumn, "9999999999.9999", true},
		{PriceColumn, "10000000000", false},
		{QuantityColumn, "1.5", true},
		{QuantityColumn, "1.2345", false},
		{RateColumn, "5.5", true},
		{RateColumn, "20.0001", false},
		{RateColumn, "-1000", false},
	}
	for _, tt := range tests {
		if got := tt.column.Fits(decimal.RequireFromString(tt.value)); got != tt.fits {
			t.Fatalf("%+v fits %s: expected %v got %v", tt.column, tt.value, tt.fits, got)
		}
	}
}
