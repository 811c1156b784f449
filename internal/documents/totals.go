package documents

import "github.com/shopspring/decimal"

// LineNet returns quantity * unit cost with the kind-specific adjustment
// applied: invoices and credit notes subtract the discount fraction, purchase
// orders add the markup fraction.
func LineNet(item Item, kind Kind) decimal.Decimal {
	base := item.Quantity.Mul(item.UnitCost)
	switch kind {
	case KindPurchaseOrder:
		return base.Mul(decimal.NewFromInt(1).Add(item.Markup))
	default:
		return base.Mul(decimal.NewFromInt(1).Sub(item.Discount))
	}
}

// LineTotal returns the tax-inclusive line amount rounded to two decimal
// places. Rounding happens per line, before summation, to match legacy
// financial rounding.
func LineTotal(item Item, kind Kind, taxRate decimal.Decimal) decimal.Decimal {
	return LineNet(item, kind).Mul(decimal.NewFromInt(1).Add(taxRate)).Round(2)
}

// LineTax returns the tax portion of a line, as the difference between the
// rounded gross and the rounded net so that net + tax always equals the line
// total exactly.
func LineTax(item Item, kind Kind, taxRate decimal.Decimal) decimal.Decimal {
	return LineTotal(item, kind, taxRate).Sub(LineNet(item, kind).Round(2))
}

// Total sums rounded line totals for a document. taxRates maps tax rate id to
// its fraction.
func Total(items []Item, kind Kind, taxRates map[int64]decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(LineTotal(item, kind, taxRates[item.TaxRateID]))
	}
	return sum
}
