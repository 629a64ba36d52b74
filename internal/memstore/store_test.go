package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/posflow/internal/checkout"
	"github.com/joao-fontenele/posflow/internal/domain"
)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := New(50 * time.Millisecond)
	s.PutProduct(domain.Product{ID: "p-1", Name: "Rice", Stock: 5, ReorderPoint: 2, UnitPrice: decimal.NewFromInt(3)})
	s.PutProduct(domain.Product{ID: "p-2", Name: "Beans", Stock: 1, ReorderPoint: 2, UnitPrice: decimal.NewFromInt(2)})
	s.PutCustomer(domain.Customer{ID: "c-1", Name: "Ana", Balance: decimal.NewFromInt(10)})
	return s
}

func TestStore_InTxRollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	assert.PanicsWithValue(t, "scanner crashed", func() {
		_ = s.InTx(ctx, func(ctx context.Context, tx checkout.Tx) error {
			ok, _, err := tx.DecrementStock(ctx, "p-1", 3)
			require.NoError(t, err)
			require.True(t, ok)
			require.NoError(t, tx.AdjustBalance(ctx, "c-1", decimal.NewFromInt(7)))
			panic("scanner crashed")
		})
	})

	p1, err := s.GetProduct(ctx, "p-1")
	require.NoError(t, err, "lock must be released after a panic")
	assert.Equal(t, 5, p1.Stock)

	c1, err := s.GetCustomer(ctx, "c-1")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(10).Equal(c1.Balance))
}

func TestStore_InTxRollsBackEveryWrite(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	at := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	boom := errors.New("boom")

	err := s.InTx(ctx, func(ctx context.Context, tx checkout.Tx) error {
		ok, _, err := tx.DecrementStock(ctx, "p-1", 2)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, tx.IncrementStock(ctx, "p-2", 4))
		require.NoError(t, tx.AdjustBalance(ctx, "c-1", decimal.NewFromInt(5)))

		number, err := tx.NextInvoiceNumber(ctx, at)
		require.NoError(t, err)
		assert.Equal(t, "INV-20250102-001", number)

		require.NoError(t, tx.InsertInvoice(ctx, &domain.Invoice{Number: number, CustomerID: "c-1"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	p1, _ := s.GetProduct(ctx, "p-1")
	p2, _ := s.GetProduct(ctx, "p-2")
	c1, _ := s.GetCustomer(ctx, "c-1")
	assert.Equal(t, 5, p1.Stock)
	assert.Equal(t, 1, p2.Stock)
	assert.True(t, decimal.NewFromInt(10).Equal(c1.Balance))

	invoices, err := s.ListInvoices(ctx, domain.InvoiceFilter{})
	require.NoError(t, err)
	assert.Empty(t, invoices)

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx checkout.Tx) error {
		number, err := tx.NextInvoiceNumber(ctx, at)
		assert.Equal(t, "INV-20250102-001", number)
		return err
	}))
}

func TestStore_DecrementStockNeverGoesNegative(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx checkout.Tx) error {
		ok, available, err := tx.DecrementStock(ctx, "p-2", 2)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 1, available)
		return nil
	}))

	p, _ := s.GetProduct(ctx, "p-2")
	assert.Equal(t, 1, p.Stock)
}

func TestStore_InvoiceNumbersRestartPerDay(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	day1 := time.Date(2025, 1, 2, 23, 59, 0, 0, time.UTC)
	day2 := day1.Add(2 * time.Minute)

	var numbers []string
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx checkout.Tx) error {
		for _, at := range []time.Time{day1, day1, day2} {
			n, err := tx.NextInvoiceNumber(ctx, at)
			require.NoError(t, err)
			numbers = append(numbers, n)
		}
		return nil
	}))

	assert.Equal(t, []string{"INV-20250102-001", "INV-20250102-002", "INV-20250103-001"}, numbers)
}

func TestStore_BusyWhenLockHeld(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.InTx(ctx, func(context.Context, checkout.Tx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	_, err := s.GetProduct(ctx, "p-1")
	assert.ErrorIs(t, err, checkout.ErrBusy)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err = s.InTx(cancelled, func(context.Context, checkout.Tx) error { return nil })
	assert.ErrorIs(t, err, checkout.ErrBusy)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStore_ListInvoices(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	s.PutCustomer(domain.Customer{ID: "c-2"})

	base := time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.InTx(ctx, func(ctx context.Context, tx checkout.Tx) error {
		for i, inv := range []domain.Invoice{
			{Number: "INV-20250102-001", CustomerID: "c-1", Status: domain.InvoiceStatusPaid},
			{Number: "INV-20250102-002", CustomerID: "c-2", Status: domain.InvoiceStatusPending},
			{Number: "INV-20250102-003", CustomerID: "c-1", Status: domain.InvoiceStatusPending},
		} {
			inv.CreatedAt = base.Add(time.Duration(i) * time.Minute)
			if err := tx.InsertInvoice(ctx, &inv); err != nil {
				return err
			}
		}
		return nil
	}))

	all, err := s.ListInvoices(ctx, domain.InvoiceFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "INV-20250102-003", all[0].Number, "newest first")

	pending, err := s.ListInvoices(ctx, domain.InvoiceFilter{Status: domain.InvoiceStatusPending, CustomerID: "c-1"})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "INV-20250102-003", pending[0].Number)

	limited, err := s.ListInvoices(ctx, domain.InvoiceFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestStore_ListProductsLowStock(t *testing.T) {
	s := seeded(t)

	low, err := s.ListProducts(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "p-2", low[0].ID)

	restocked, err := s.Restock(context.Background(), "p-2", 10)
	require.NoError(t, err)
	assert.Equal(t, 11, restocked.Stock)
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	s := New(time.Second)
	Seed(s)

	products, err := s.ListProducts(ctx, false)
	require.NoError(t, err)
	assert.Len(t, products, 6)

	low, err := s.ListProducts(ctx, true)
	require.NoError(t, err)
	var skus []string
	for _, p := range low {
		skus = append(skus, p.SKU)
	}
	assert.ElementsMatch(t, []string{"MILK-400G", "SOAP-BAR"}, skus)

	rosa, err := s.GetCustomer(ctx, "3f9e8b1a-0002-4c5d-8e7f-000000000002")
	require.NoError(t, err)
	require.NotNil(t, rosa)
	assert.Equal(t, "380", rosa.AvailableCredit().String())
}
