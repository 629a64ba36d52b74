package domain

import "github.com/shopspring/decimal"

type ProductStatus string

const (
	ProductStatusActive       ProductStatus = "active"
	ProductStatusDiscontinued ProductStatus = "discontinued"
)

type Product struct {
	ID           string          `json:"id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Stock        int             `json:"stock"`
	ReorderPoint int             `json:"reorder_point"`
	Status       ProductStatus   `json:"status"`
}

type StockStatus string

const (
	StockStatusOut     StockStatus = "out"
	StockStatusLow     StockStatus = "low"
	StockStatusNormal  StockStatus = "normal"
	StockStatusOptimal StockStatus = "optimal"
)

// StockStatus classifies the current stock against the reorder point.
// It is informational and never blocks a sale.
func (p Product) StockStatus() StockStatus {
	switch {
	case p.Stock <= 0:
		return StockStatusOut
	case p.Stock <= p.ReorderPoint:
		return StockStatusLow
	case p.Stock <= p.ReorderPoint*2:
		return StockStatusNormal
	default:
		return StockStatusOptimal
	}
}

func (p Product) NeedsRestock() bool {
	return p.Stock <= p.ReorderPoint
}
