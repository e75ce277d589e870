package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-service/internal/models"
)

func priceTable(prices map[int64]string) PriceLookup {
	return func(productID int64) (decimal.Decimal, bool) {
		s, ok := prices[productID]
		if !ok {
			return decimal.Zero, false
		}
		return decimal.RequireFromString(s), true
	}
}

func TestComputeTotals(t *testing.T) {
	lines := []models.CartLine{
		{ProductID: 1, Quantity: 2},
		{ProductID: 2, Quantity: 1},
	}
	lookup := priceTable(map[int64]string{
		1: "10.00",
		2: "5.50",
	})

	totals := ComputeTotals(lines, lookup)

	assert.True(t, totals.Subtotal.Equal(decimal.RequireFromString("25.50")), "subtotal = %s", totals.Subtotal)
	assert.True(t, totals.TaxAmount.Equal(decimal.RequireFromString("4.59")), "tax = %s", totals.TaxAmount)
	assert.True(t, totals.GrandTotal.Equal(decimal.RequireFromString("30.09")), "grand = %s", totals.GrandTotal)
}

func TestComputeTotalsRoundTax(t *testing.T) {
	// subtotal 100.00 => tax exactly 18.00, grand 118.00
	lines := []models.CartLine{{ProductID: 1, Quantity: 1}}
	totals := ComputeTotals(lines, priceTable(map[int64]string{1: "100.00"}))

	assert.Equal(t, "18", totals.TaxAmount.String())
	assert.Equal(t, "118", totals.GrandTotal.String())
	assert.Equal(t, "18.00", totals.TaxAmount.StringFixed(2))
	assert.Equal(t, "118.00", totals.GrandTotal.StringFixed(2))
}

func TestComputeTotalsRoundsHalfUp(t *testing.T) {
	// 0.25 * 0.18 = 0.045 => must round up to 0.05, not to even (0.04)
	lines := []models.CartLine{{ProductID: 1, Quantity: 1}}
	totals := ComputeTotals(lines, priceTable(map[int64]string{1: "0.25"}))

	assert.Equal(t, "0.05", totals.TaxAmount.StringFixed(2))
	assert.Equal(t, "0.30", totals.GrandTotal.StringFixed(2))
}

func TestComputeTotalsSkipsMissingProducts(t *testing.T) {
	lines := []models.CartLine{
		{ProductID: 1, Quantity: 3},
		{ProductID: 99, Quantity: 5}, // deleted product
	}
	totals := ComputeTotals(lines, priceTable(map[int64]string{1: "100.00"}))

	assert.Equal(t, "300.00", totals.Subtotal.StringFixed(2))
	assert.Equal(t, "54.00", totals.TaxAmount.StringFixed(2))
	assert.Equal(t, "354.00", totals.GrandTotal.StringFixed(2))
}

func TestComputeTotalsEmpty(t *testing.T) {
	totals := ComputeTotals(nil, priceTable(nil))

	assert.True(t, totals.Subtotal.IsZero())
	assert.True(t, totals.TaxAmount.IsZero())
	assert.True(t, totals.GrandTotal.IsZero())
}

func TestComputeTotalsDeterministic(t *testing.T) {
	lines := []models.CartLine{
		{ProductID: 1, Quantity: 7},
		{ProductID: 2, Quantity: 3},
		{ProductID: 3, Quantity: 1},
	}
	lookup := priceTable(map[int64]string{
		1: "19.99",
		2: "3.33",
		3: "1234.56",
	})

	first := ComputeTotals(lines, lookup)
	for i := 0; i < 100; i++ {
		again := ComputeTotals(lines, lookup)
		require.Equal(t, first.Subtotal.String(), again.Subtotal.String())
		require.Equal(t, first.TaxAmount.String(), again.TaxAmount.String())
		require.Equal(t, first.GrandTotal.String(), again.GrandTotal.String())
	}
}

func TestLineSubtotal(t *testing.T) {
	got := LineSubtotal(decimal.RequireFromString("19.99"), 3)
	assert.Equal(t, "59.97", got.StringFixed(2))
}
