package memstore

import (
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/posflow/internal/domain"
)

// Seed loads the demo catalog and customers. The rows mirror the seed
// migration so both drivers start from the same data.
func Seed(s *Store) {
	for _, p := range []domain.Product{
		{ID: "7d1c2a3e-0001-4a6b-9c1d-000000000001", SKU: "RICE-1KG", Name: "Rice 1kg", UnitCost: dec("3.20"), UnitPrice: dec("4.50"), Stock: 120, ReorderPoint: 20},
		{ID: "7d1c2a3e-0001-4a6b-9c1d-000000000002", SKU: "OIL-1L", Name: "Vegetable oil 1L", UnitCost: dec("6.80"), UnitPrice: dec("9.90"), Stock: 40, ReorderPoint: 10},
		{ID: "7d1c2a3e-0001-4a6b-9c1d-000000000003", SKU: "MILK-400G", Name: "Evaporated milk 400g", UnitCost: dec("2.90"), UnitPrice: dec("3.80"), Stock: 8, ReorderPoint: 12},
		{ID: "7d1c2a3e-0001-4a6b-9c1d-000000000004", SKU: "SUGAR-1KG", Name: "Brown sugar 1kg", UnitCost: dec("2.60"), UnitPrice: dec("3.60"), Stock: 60, ReorderPoint: 15},
		{ID: "7d1c2a3e-0001-4a6b-9c1d-000000000005", SKU: "SOAP-BAR", Name: "Laundry soap bar", UnitCost: dec("2.10"), UnitPrice: dec("3.20"), Stock: 0, ReorderPoint: 10},
		{ID: "7d1c2a3e-0001-4a6b-9c1d-000000000006", SKU: "NOODLE-500G", Name: "Spaghetti 500g", UnitCost: dec("2.40"), UnitPrice: dec("3.30"), Stock: 25, ReorderPoint: 5, Status: domain.ProductStatusDiscontinued},
	} {
		s.PutProduct(p)
	}

	for _, c := range []domain.Customer{
		{ID: "3f9e8b1a-0002-4c5d-8e7f-000000000001", Name: "Walk-in customer", Type: domain.CustomerTypeRetail, CreditLimit: decimal.Zero, Balance: decimal.Zero},
		{ID: "3f9e8b1a-0002-4c5d-8e7f-000000000002", Name: "Bodega Rosa", Phone: "987654321", Type: domain.CustomerTypeWholesale, CreditLimit: dec("500.00"), Balance: dec("120.00")},
		{ID: "3f9e8b1a-0002-4c5d-8e7f-000000000003", Name: "Juan Perez", Email: "juan.perez@example.com", Phone: "912345678", Type: domain.CustomerTypeRetail, CreditLimit: dec("100.00"), Balance: dec("95.00")},
	} {
		s.PutCustomer(c)
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
