package checkout

import "github.com/shopspring/decimal"

const centsPlaces = 2

// PricedLine is a validated line holding the unit price captured once inside
// the transaction.
type PricedLine struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

func (l PricedLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Totals struct {
	Subtotal  decimal.Decimal
	TaxAmount decimal.Decimal
	Total     decimal.Decimal
}

// Price computes subtotal, tax and total. Tax is rounded half-up to cents
// exactly once, from the unrounded product of subtotal and rate.
func Price(lines []PricedLine, taxRate decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.Subtotal())
	}

	// Round is half away from zero, which is half-up for non-negative amounts.
	tax := subtotal.Mul(taxRate).Round(centsPlaces)

	return Totals{
		Subtotal:  subtotal,
		TaxAmount: tax,
		Total:     subtotal.Add(tax),
	}
}
