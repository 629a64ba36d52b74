package checkout

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/posflow/internal/domain"
)

// ZeroLimitPolicy decides what a credit limit of exactly zero means.
type ZeroLimitPolicy string

const (
	// ZeroLimitUnlimited skips the check for a zero limit. This is how the
	// point-of-sale front end has always behaved.
	ZeroLimitUnlimited ZeroLimitPolicy = "unlimited"
	// ZeroLimitDeny treats a zero limit as "no credit allowed".
	ZeroLimitDeny ZeroLimitPolicy = "deny"
)

func ParseZeroLimitPolicy(s string) (ZeroLimitPolicy, error) {
	switch p := ZeroLimitPolicy(s); p {
	case ZeroLimitUnlimited, ZeroLimitDeny:
		return p, nil
	case "":
		return ZeroLimitUnlimited, nil
	default:
		return "", fmt.Errorf("unknown zero credit limit policy %q", s)
	}
}

type CreditPolicy struct {
	ZeroLimit ZeroLimitPolicy
}

// Check approves the order unless it is a credit sale that would push the
// balance over the limit. Existing over-limit balances only block new credit
// sales; other payment methods are never checked.
func (p CreditPolicy) Check(customer domain.Customer, method domain.PaymentMethod, total decimal.Decimal) error {
	if !method.IsCredit() {
		return nil
	}
	if customer.CreditLimit.IsZero() && p.ZeroLimit != ZeroLimitDeny {
		return nil
	}

	if customer.Balance.Add(total).GreaterThan(customer.CreditLimit) {
		return &CreditLimitError{
			CustomerID: customer.ID,
			Limit:      customer.CreditLimit,
			Balance:    customer.Balance,
			Total:      total,
			Available:  customer.AvailableCredit(),
		}
	}

	return nil
}
