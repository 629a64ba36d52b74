package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/posflow/internal/checkout"
	"github.com/joao-fontenele/posflow/internal/domain"
)

type memTx struct {
	s    *Store
	undo []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) LockProducts(_ context.Context, ids []string) (map[string]domain.Product, error) {
	products := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.s.products[id]; ok {
			products[id] = p
		}
	}
	return products, nil
}

func (t *memTx) DecrementStock(_ context.Context, productID string, qty int) (bool, int, error) {
	p, ok := t.s.products[productID]
	if !ok {
		return false, 0, fmt.Errorf("%w: %s", checkout.ErrProductNotFound, productID)
	}
	if p.Stock < qty {
		return false, p.Stock, nil
	}

	before := p
	p.Stock -= qty
	t.s.products[productID] = p
	t.undo = append(t.undo, func() { t.s.products[productID] = before })

	return true, p.Stock, nil
}

func (t *memTx) IncrementStock(_ context.Context, productID string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("increment quantity must be positive, got %d", qty)
	}
	p, ok := t.s.products[productID]
	if !ok {
		return fmt.Errorf("%w: %s", checkout.ErrProductNotFound, productID)
	}

	before := p
	p.Stock += qty
	t.s.products[productID] = p
	t.undo = append(t.undo, func() { t.s.products[productID] = before })

	return nil
}

func (t *memTx) LockCustomer(_ context.Context, id string) (*domain.Customer, error) {
	c, ok := t.s.customers[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (t *memTx) AdjustBalance(_ context.Context, customerID string, delta decimal.Decimal) error {
	c, ok := t.s.customers[customerID]
	if !ok {
		return fmt.Errorf("%w: %s", checkout.ErrCustomerNotFound, customerID)
	}

	before := c
	c.Balance = c.Balance.Add(delta)
	t.s.customers[customerID] = c
	t.undo = append(t.undo, func() { t.s.customers[customerID] = before })

	return nil
}

func (t *memTx) NextInvoiceNumber(_ context.Context, at time.Time) (string, error) {
	day := at.UTC().Format("20060102")

	before := t.s.sequences[day]
	next := before + 1
	t.s.sequences[day] = next
	t.undo = append(t.undo, func() { t.s.sequences[day] = before })

	return checkout.FormatInvoiceNumber(at, next), nil
}

func (t *memTx) InsertInvoice(_ context.Context, invoice *domain.Invoice) error {
	if invoice.ID == "" {
		invoice.ID = uuid.New().String()
	}
	if _, exists := t.s.invoices[invoice.ID]; exists {
		return fmt.Errorf("invoice %s already exists", invoice.ID)
	}
	for _, other := range t.s.invoices {
		if other.Number == invoice.Number {
			return fmt.Errorf("invoice number %s already used", invoice.Number)
		}
	}

	for i := range invoice.Items {
		if invoice.Items[i].ID == "" {
			invoice.Items[i].ID = uuid.New().String()
		}
		invoice.Items[i].InvoiceID = invoice.ID
	}

	id := invoice.ID
	t.s.invoices[id] = cloneInvoice(invoice)
	t.undo = append(t.undo, func() { delete(t.s.invoices, id) })

	return nil
}

func (t *memTx) LockInvoice(_ context.Context, id string) (*domain.Invoice, error) {
	inv, ok := t.s.invoices[id]
	if !ok {
		return nil, nil
	}
	return cloneInvoice(inv), nil
}

func (t *memTx) MarkCancelled(_ context.Context, id string, at time.Time) error {
	inv, ok := t.s.invoices[id]
	if !ok {
		return fmt.Errorf("%w: %s", checkout.ErrInvoiceNotFound, id)
	}

	before := cloneInvoice(inv)
	updated := cloneInvoice(inv)
	updated.Status = domain.InvoiceStatusCancelled
	updated.CancelledAt = &at
	t.s.invoices[id] = updated
	t.undo = append(t.undo, func() { t.s.invoices[id] = before })

	return nil
}
