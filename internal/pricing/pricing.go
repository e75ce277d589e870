// Package pricing computes cart and order totals. All arithmetic is
// fixed-point decimal; floating point would drift on tax rounding.
package pricing

import (
	"github.com/shopspring/decimal"

	"shop-service/internal/models"
)

// TaxRate is the VAT rate applied to every order.
var TaxRate = decimal.NewFromFloat(0.18)

// Totals holds the computed amounts for a set of cart lines
type Totals struct {
	Subtotal   decimal.Decimal
	TaxAmount  decimal.Decimal
	GrandTotal decimal.Decimal
}

// PriceLookup resolves a product id to its unit price. The second
// return value reports whether the product exists; lines whose product
// is gone are skipped, mirroring the cart's lazy pruning.
type PriceLookup func(productID int64) (decimal.Decimal, bool)

// ComputeTotals computes subtotal, tax and grand total for the given
// lines. Tax is rounded half-up to 2 decimal places.
func ComputeTotals(lines []models.CartLine, priceOf PriceLookup) Totals {
	subtotal := decimal.Zero

	for _, line := range lines {
		price, ok := priceOf(line.ProductID)
		if !ok {
			continue
		}
		subtotal = subtotal.Add(price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	// Round rounds half away from zero, which is half-up for the
	// non-negative amounts handled here.
	tax := subtotal.Mul(TaxRate).Round(2)
	grand := subtotal.Add(tax).Round(2)

	return Totals{
		Subtotal:   subtotal,
		TaxAmount:  tax,
		GrandTotal: grand,
	}
}

// LineSubtotal computes the subtotal of a single line
func LineSubtotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity)))
}
