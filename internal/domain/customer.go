package domain

import "github.com/shopspring/decimal"

type CustomerType string

const (
	CustomerTypeRetail    CustomerType = "retail"
	CustomerTypeWholesale CustomerType = "wholesale"
)

type Customer struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Email       string          `json:"email,omitempty"`
	Phone       string          `json:"phone,omitempty"`
	Address     string          `json:"address,omitempty"`
	TaxID       string          `json:"tax_id,omitempty"`
	Type        CustomerType    `json:"customer_type"`
	CreditLimit decimal.Decimal `json:"credit_limit"`
	Balance     decimal.Decimal `json:"balance"`
}

// AvailableCredit is the headroom left under the credit limit, never negative.
func (c Customer) AvailableCredit() decimal.Decimal {
	available := c.CreditLimit.Sub(c.Balance)
	if available.IsNegative() {
		return decimal.Zero
	}
	return available
}

type CreditBand string

const (
	CreditBandClear     CreditBand = "clear"
	CreditBandAvailable CreditBand = "available"
	CreditBandModerate  CreditBand = "moderate"
	CreditBandNearLimit CreditBand = "near_limit"
	CreditBandBlocked   CreditBand = "blocked"
)

var hundred = decimal.NewFromInt(100)

// Utilization is the balance as a percentage of the limit, capped at 100.
// A zero limit reports 0.
func (c Customer) Utilization() decimal.Decimal {
	if !c.CreditLimit.IsPositive() {
		return decimal.Zero
	}
	pct := c.Balance.Div(c.CreditLimit).Mul(hundred).Round(2)
	if pct.GreaterThan(hundred) {
		return hundred
	}
	if pct.IsNegative() {
		return decimal.Zero
	}
	return pct
}

func (c Customer) CreditBand() CreditBand {
	if !c.Balance.IsPositive() {
		return CreditBandClear
	}
	switch pct := c.Utilization(); {
	case pct.LessThan(decimal.NewFromInt(30)):
		return CreditBandAvailable
	case pct.LessThan(decimal.NewFromInt(80)):
		return CreditBandModerate
	case pct.LessThan(hundred):
		return CreditBandNearLimit
	default:
		return CreditBandBlocked
	}
}
