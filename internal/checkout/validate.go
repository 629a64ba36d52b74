package checkout

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/posflow/internal/domain"
)

const (
	maxNotesLength = 500

	// Stored as NUMERIC(5,4) and INTEGER.
	taxRatePlaces = 4
	maxQuantity   = math.MaxInt32
)

var maxTaxRate = decimal.NewFromInt(1)

type LineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type PlaceOrderRequest struct {
	CustomerID    string               `json:"customer_id"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	TaxRate       decimal.Decimal      `json:"tax_rate"`
	Notes         string               `json:"notes"`
	Items         []LineRequest        `json:"items"`
}

// ValidateOrder checks shape and referential integrity of a request. Duplicate
// product lines are rejected rather than merged.
func ValidateOrder(req PlaceOrderRequest) error {
	if strings.TrimSpace(req.CustomerID) == "" {
		return invalid("customer_id", "is required")
	}
	if !req.PaymentMethod.Valid() {
		return invalid("payment_method", "unknown method %q", req.PaymentMethod)
	}
	if req.TaxRate.IsNegative() || req.TaxRate.GreaterThan(maxTaxRate) {
		return invalid("tax_rate", "must be between 0 and 1, got %s", req.TaxRate)
	}
	if !req.TaxRate.Equal(req.TaxRate.Truncate(taxRatePlaces)) {
		return invalid("tax_rate", "must have at most %d decimal places, got %s", taxRatePlaces, req.TaxRate)
	}
	if len(req.Notes) > maxNotesLength {
		return invalid("notes", "must be at most %d characters", maxNotesLength)
	}
	if len(req.Items) == 0 {
		return invalid("items", "at least one item is required")
	}

	seen := make(map[string]struct{}, len(req.Items))
	for i, item := range req.Items {
		field := fmt.Sprintf("items[%d]", i)
		if strings.TrimSpace(item.ProductID) == "" {
			return invalid(field+".product_id", "is required")
		}
		if item.Quantity < 1 {
			return invalid(field+".quantity", "must be at least 1, got %d", item.Quantity)
		}
		if item.Quantity > maxQuantity {
			return invalid(field+".quantity", "must be at most %d, got %d", maxQuantity, item.Quantity)
		}
		if _, dup := seen[item.ProductID]; dup {
			return invalid(field+".product_id", "product %s appears more than once", item.ProductID)
		}
		seen[item.ProductID] = struct{}{}
	}

	return nil
}
