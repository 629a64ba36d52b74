package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joao-fontenele/posflow/internal/checkout"
	"github.com/joao-fontenele/posflow/internal/database"
	"github.com/joao-fontenele/posflow/internal/domain"
)

const invoiceColumns = `id, invoice_number, customer_id, payment_method, tax_rate, subtotal, tax_amount, total, status, notes, created_at, cancelled_at`

type InvoiceRepository struct {
	q database.Querier
}

func NewInvoiceRepository(q database.Querier) *InvoiceRepository {
	return &InvoiceRepository{q: q}
}

// NextInvoiceNumber bumps the counter row for the invoice's UTC day. The row
// stays locked until the surrounding transaction ends, so numbers are handed
// out in commit order and a rollback returns the number.
func (r *InvoiceRepository) NextInvoiceNumber(ctx context.Context, at time.Time) (string, error) {
	var seq int64
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO invoice_counters (day, last_value)
		VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET last_value = invoice_counters.last_value + 1
		RETURNING last_value
	`, at.UTC().Format("2006-01-02")).Scan(&seq)
	if err != nil {
		return "", err
	}

	return checkout.FormatInvoiceNumber(at, seq), nil
}

func (r *InvoiceRepository) InsertInvoice(ctx context.Context, invoice *domain.Invoice) error {
	if invoice.ID == "" {
		invoice.ID = uuid.New().String()
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO invoices (id, invoice_number, customer_id, payment_method, tax_rate, subtotal, tax_amount, total, status, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, invoice.ID, invoice.Number, invoice.CustomerID, invoice.PaymentMethod, invoice.TaxRate,
		invoice.Subtotal, invoice.TaxAmount, invoice.Total, invoice.Status, invoice.Notes, invoice.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("invoice number %s already assigned: %w", invoice.Number, err)
		}
		return err
	}

	for i := range invoice.Items {
		item := &invoice.Items[i]
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		item.InvoiceID = invoice.ID

		_, err = r.q.ExecContext(ctx, `
			INSERT INTO invoice_items (id, invoice_id, product_id, quantity, unit_price, subtotal)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, item.ID, item.InvoiceID, item.ProductID, item.Quantity, item.UnitPrice, item.Subtotal)
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *InvoiceRepository) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	return r.getInvoice(ctx, id, false)
}

// LockInvoice returns the invoice with its row locked for the rest of the
// transaction.
func (r *InvoiceRepository) LockInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	return r.getInvoice(ctx, id, true)
}

func (r *InvoiceRepository) getInvoice(ctx context.Context, id string, forUpdate bool) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	invoice, err := scanInvoice(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	items, err := r.items(ctx, []string{invoice.ID})
	if err != nil {
		return nil, err
	}
	invoice.Items = items[invoice.ID]
	if invoice.Items == nil {
		invoice.Items = []domain.InvoiceItem{}
	}

	return invoice, nil
}

func (r *InvoiceRepository) MarkCancelled(ctx context.Context, id string, at time.Time) error {
	result, err := r.q.ExecContext(ctx, `
		UPDATE invoices
		SET status = $2, cancelled_at = $3
		WHERE id = $1 AND status <> $2
	`, id, domain.InvoiceStatusCancelled, at)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("invoice %s was not cancellable", id)
	}

	return nil
}

func (r *InvoiceRepository) ListInvoices(ctx context.Context, filter domain.InvoiceFilter) ([]domain.Invoice, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.CustomerID != "" {
		args = append(args, filter.CustomerID)
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", len(args)))
	}

	limit := filter.Limit
	if limit < 1 || limit > domain.DefaultInvoiceListLimit {
		limit = domain.DefaultInvoiceListLimit
	}
	args = append(args, limit)

	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, length(invoice_number) DESC, invoice_number DESC LIMIT $%d`, len(args))

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	invoices := []domain.Invoice{}
	var ids []string
	for rows.Next() {
		invoice, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *invoice)
		ids = append(ids, invoice.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return invoices, nil
	}

	items, err := r.items(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range invoices {
		invoices[i].Items = items[invoices[i].ID]
		if invoices[i].Items == nil {
			invoices[i].Items = []domain.InvoiceItem{}
		}
	}

	return invoices, nil
}

func (r *InvoiceRepository) items(ctx context.Context, invoiceIDs []string) (map[string][]domain.InvoiceItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, invoice_id, product_id, quantity, unit_price, subtotal
		FROM invoice_items
		WHERE invoice_id = ANY($1)
		ORDER BY product_id
	`, pq.Array(invoiceIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := make(map[string][]domain.InvoiceItem, len(invoiceIDs))
	for rows.Next() {
		var item domain.InvoiceItem
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.ProductID, &item.Quantity, &item.UnitPrice, &item.Subtotal); err != nil {
			return nil, err
		}
		items[item.InvoiceID] = append(items[item.InvoiceID], item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*domain.Invoice, error) {
	invoice := &domain.Invoice{}
	var cancelledAt sql.NullTime

	err := row.Scan(&invoice.ID, &invoice.Number, &invoice.CustomerID, &invoice.PaymentMethod, &invoice.TaxRate,
		&invoice.Subtotal, &invoice.TaxAmount, &invoice.Total, &invoice.Status, &invoice.Notes,
		&invoice.CreatedAt, &cancelledAt)
	if err != nil {
		return nil, err
	}

	invoice.CreatedAt = invoice.CreatedAt.UTC()
	if cancelledAt.Valid {
		at := cancelledAt.Time.UTC()
		invoice.CancelledAt = &at
	}

	return invoice, nil
}
