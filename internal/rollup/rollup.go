// Package rollup holds the pure money calculations shared by the lifecycle
// services: landed cost of a bid, sales quote totals, and period summaries.
// Nothing here touches the store.
package rollup

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/sourcing-engine/pkg/db/models"
	"github.com/angelmondragon/sourcing-engine/pkg/money"
)

// LineItemsPrice sums unit_price × quantity over a bid's line items.
func LineItemsPrice(quote *models.SupplierQuote) money.Amount {
	total := money.Zero(quote.Currency)
	for _, item := range quote.LineItems {
		total.Value = total.Value.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// LandedCost is price + shipping_cost + importation_tax of a supplier quote.
func LandedCost(quote *models.SupplierQuote) money.Amount {
	value := quote.Price.Add(quote.ShippingCost).Add(quote.ImportationTax)
	return money.New(value, quote.Currency)
}

// FrozenTotal is the total stored at submission.
func FrozenTotal(quote *models.SupplierQuote) money.Amount {
	return money.New(quote.Total, quote.Currency)
}

// SalesTotals are the derived figures of a client quote.
type SalesTotals struct {
	Subtotal money.Amount `json:"subtotal"`
	Tax      money.Amount `json:"tax"`
	Total    money.Amount `json:"total"`
}

// SalesSubtotal is Σ quantity × unit_price.
func SalesSubtotal(quote *models.ClientQuote) money.Amount {
	subtotal := money.Zero(quote.Currency)
	for _, item := range quote.Items {
		subtotal.Value = subtotal.Value.Add(item.Quantity.Mul(item.UnitPrice))
	}
	return subtotal
}

// SalesTax is subtotal × tva_rate / 100.
func SalesTax(quote *models.ClientQuote) money.Amount {
	return SalesSubtotal(quote).Percent(quote.TVARate)
}

// SalesTotal is subtotal × (1 + tva_rate / 100).
func SalesTotal(quote *models.ClientQuote) money.Amount {
	return SalesSubtotal(quote).ApplyPercent(quote.TVARate)
}

func ComputeSalesTotals(quote *models.ClientQuote) SalesTotals {
	subtotal := SalesSubtotal(quote)
	return SalesTotals{
		Subtotal: subtotal,
		Tax:      subtotal.Percent(quote.TVARate),
		Total:    subtotal.ApplyPercent(quote.TVARate),
	}
}
