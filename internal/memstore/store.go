// Package memstore is an in-process implementation of the checkout store,
// used for local development and tests. A single store-wide lock serializes
// units of work, so every checkout observes the effects of the previous one
// in full.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/posflow/internal/checkout"
	"github.com/joao-fontenele/posflow/internal/domain"
)

type Store struct {
	lock        chan struct{}
	lockTimeout time.Duration

	products  map[string]domain.Product
	customers map[string]domain.Customer
	invoices  map[string]*domain.Invoice
	sequences map[string]int64
}

func New(lockTimeout time.Duration) *Store {
	return &Store{
		lock:        make(chan struct{}, 1),
		lockTimeout: lockTimeout,
		products:    make(map[string]domain.Product),
		customers:   make(map[string]domain.Customer),
		invoices:    make(map[string]*domain.Invoice),
		sequences:   make(map[string]int64),
	}
}

func (s *Store) acquire(ctx context.Context) error {
	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()

	select {
	case s.lock <- struct{}{}:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: lock wait exceeded %s", checkout.ErrBusy, s.lockTimeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", checkout.ErrBusy, ctx.Err())
	}
}

func (s *Store) release() {
	<-s.lock
}

// InTx runs fn under the store lock. Every mutation records an undo step that
// is replayed in reverse when fn fails or panics.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx checkout.Tx) error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	tx := &memTx{s: s}
	committed := false
	defer func() {
		if !committed {
			tx.rollback()
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	committed = true
	return nil
}

// PutProduct inserts or replaces a catalog row. It is the catalog-management
// entry point used for seeding; checkout never calls it.
func (s *Store) PutProduct(p domain.Product) domain.Product {
	s.lock <- struct{}{}
	defer s.release()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = domain.ProductStatusActive
	}
	s.products[p.ID] = p
	return p
}

func (s *Store) PutCustomer(c domain.Customer) domain.Customer {
	s.lock <- struct{}{}
	defer s.release()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Type == "" {
		c.Type = domain.CustomerTypeRetail
	}
	s.customers[c.ID] = c
	return c
}

func (s *Store) ListProducts(ctx context.Context, lowStockOnly bool) ([]domain.Product, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if lowStockOnly && !p.NeedsRestock() {
			continue
		}
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool {
		return products[i].Name < products[j].Name
	})

	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	p, ok := s.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// Restock adds quantity through the same compensating increment used by
// cancellations.
func (s *Store) Restock(ctx context.Context, id string, quantity int) (*domain.Product, error) {
	var restocked *domain.Product
	err := s.InTx(ctx, func(ctx context.Context, tx checkout.Tx) error {
		if err := tx.IncrementStock(ctx, id, quantity); err != nil {
			return err
		}
		p := s.products[id]
		restocked = &p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return restocked, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	c, ok := s.customers[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *Store) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	inv, ok := s.invoices[id]
	if !ok {
		return nil, nil
	}
	return cloneInvoice(inv), nil
}

func (s *Store) ListInvoices(ctx context.Context, filter domain.InvoiceFilter) ([]domain.Invoice, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	limit := filter.Limit
	if limit < 1 {
		limit = domain.DefaultInvoiceListLimit
	}

	invoices := make([]domain.Invoice, 0, len(s.invoices))
	for _, inv := range s.invoices {
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		if filter.CustomerID != "" && inv.CustomerID != filter.CustomerID {
			continue
		}
		invoices = append(invoices, *cloneInvoice(inv))
	}
	sort.Slice(invoices, func(i, j int) bool {
		if invoices[i].CreatedAt.Equal(invoices[j].CreatedAt) {
			return checkout.CompareInvoiceNumbers(invoices[i].Number, invoices[j].Number) > 0
		}
		return invoices[i].CreatedAt.After(invoices[j].CreatedAt)
	})
	if len(invoices) > limit {
		invoices = invoices[:limit]
	}

	return invoices, nil
}

func cloneInvoice(inv *domain.Invoice) *domain.Invoice {
	c := *inv
	c.Items = append([]domain.InvoiceItem(nil), inv.Items...)
	if inv.CancelledAt != nil {
		at := *inv.CancelledAt
		c.CancelledAt = &at
	}
	return &c
}
