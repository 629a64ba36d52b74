package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodYape     PaymentMethod = "yape"
	PaymentMethodPlin     PaymentMethod = "plin"
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodTransfer PaymentMethod = "transfer"
	PaymentMethodCredit   PaymentMethod = "credit"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodYape, PaymentMethodPlin,
		PaymentMethodCard, PaymentMethodTransfer, PaymentMethodCredit:
		return true
	}
	return false
}

// IsCredit reports whether the method defers payment against the customer balance.
func (m PaymentMethod) IsCredit() bool {
	return m == PaymentMethodCredit
}

type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// InitialStatus is the status an invoice is created with: credit sales stay
// pending until settled, everything else is paid at the counter.
func InitialStatus(m PaymentMethod) InvoiceStatus {
	if m.IsCredit() {
		return InvoiceStatusPending
	}
	return InvoiceStatusPaid
}

type InvoiceItem struct {
	ID        string          `json:"id"`
	InvoiceID string          `json:"invoice_id"`
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type Invoice struct {
	ID            string          `json:"id"`
	Number        string          `json:"invoice_number"`
	CustomerID    string          `json:"customer_id"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	Total         decimal.Decimal `json:"total"`
	Status        InvoiceStatus   `json:"status"`
	Notes         string          `json:"notes"`
	CreatedAt     time.Time       `json:"created_at"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
	Items         []InvoiceItem   `json:"items"`
}

// InvoiceFilter narrows invoice listings. Zero values mean "any".
type InvoiceFilter struct {
	Status     InvoiceStatus
	CustomerID string
	Limit      int
}

const DefaultInvoiceListLimit = 100
