package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TopicInvoiceCreated   = "invoice.created"
	TopicInvoiceCancelled = "invoice.cancelled"
)

type InvoiceEventItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// InvoiceEvent is published after an invoice is committed or cancelled.
type InvoiceEvent struct {
	InvoiceID     string             `json:"invoice_id"`
	InvoiceNumber string             `json:"invoice_number"`
	CustomerID    string             `json:"customer_id"`
	CustomerName  string             `json:"customer_name"`
	CustomerPhone string             `json:"customer_phone,omitempty"`
	PaymentMethod PaymentMethod      `json:"payment_method"`
	Total         decimal.Decimal    `json:"total"`
	Status        InvoiceStatus      `json:"status"`
	Items         []InvoiceEventItem `json:"items"`
	Timestamp     time.Time          `json:"timestamp"`
}
