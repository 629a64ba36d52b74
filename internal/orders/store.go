package orders

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/joao-fontenele/posflow/internal/checkout"
	"github.com/joao-fontenele/posflow/internal/customers"
	"github.com/joao-fontenele/posflow/internal/database"
	"github.com/joao-fontenele/posflow/internal/inventory"
)

// Store runs checkout units of work as Postgres transactions. Lock waits are
// bounded by lockTimeout and surface as checkout.ErrBusy.
type Store struct {
	db          *sql.DB
	lockTimeout time.Duration
}

func NewStore(db *sql.DB, lockTimeout time.Duration) *Store {
	return &Store{db: db, lockTimeout: lockTimeout}
}

type pgTx struct {
	*inventory.Catalog
	*customers.Ledger
	*InvoiceRepository
}

var _ checkout.Tx = (*pgTx)(nil)

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx checkout.Tx) error) error {
	err := database.WithTx(ctx, s.db, s.lockTimeout, func(tx *sql.Tx) error {
		return fn(ctx, &pgTx{
			Catalog:           inventory.NewCatalog(tx),
			Ledger:            customers.NewLedger(tx),
			InvoiceRepository: NewInvoiceRepository(tx),
		})
	})
	if err != nil && database.IsBusy(err) {
		return fmt.Errorf("%w: %w", checkout.ErrBusy, err)
	}
	return err
}
