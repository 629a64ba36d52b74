package customers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/posflow/internal/checkout"
	"github.com/joao-fontenele/posflow/internal/database"
	"github.com/joao-fontenele/posflow/internal/domain"
)

const customerColumns = `id, name, email, phone, address, tax_id, customer_type, credit_limit, balance`

// Ledger holds customer credit limits and running balances.
type Ledger struct {
	q database.Querier
}

func NewLedger(q database.Querier) *Ledger {
	return &Ledger{q: q}
}

func (l *Ledger) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	return l.scanOne(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
}

// LockCustomer returns the customer row locked until the transaction ends.
func (l *Ledger) LockCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	return l.scanOne(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1 FOR UPDATE`, id)
}

func (l *Ledger) AdjustBalance(ctx context.Context, customerID string, delta decimal.Decimal) error {
	result, err := l.q.ExecContext(ctx, `
		UPDATE customers
		SET balance = balance + $2, updated_at = NOW()
		WHERE id = $1
	`, customerID, delta)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", checkout.ErrCustomerNotFound, customerID)
	}

	return nil
}

func (l *Ledger) scanOne(ctx context.Context, query, id string) (*domain.Customer, error) {
	c := &domain.Customer{}
	var email, phone, address, taxID sql.NullString

	err := l.q.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.Name, &email, &phone, &address, &taxID, &c.Type, &c.CreditLimit, &c.Balance,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	c.Email = email.String
	c.Phone = phone.String
	c.Address = address.String
	c.TaxID = taxID.String

	return c, nil
}
