package checkout

import (
	"cmp"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/posflow/internal/domain"
)

// Store runs fn as one atomic unit of work. Either every write made through
// tx becomes visible together, or none does. Implementations return an error
// wrapping ErrBusy when locks cannot be acquired within their bounded wait.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of reads and writes the engine performs inside a unit of work.
// Every stock mutation in the system goes through DecrementStock or
// IncrementStock.
type Tx interface {
	// LockProducts locks and returns the given products keyed by id. Missing
	// ids are simply absent from the result.
	LockProducts(ctx context.Context, ids []string) (map[string]domain.Product, error)

	// DecrementStock subtracts qty only if the current stock covers it. When it
	// does not, ok is false and available holds the current stock.
	DecrementStock(ctx context.Context, productID string, qty int) (ok bool, available int, err error)

	IncrementStock(ctx context.Context, productID string, qty int) error

	// LockCustomer returns nil, nil when the customer does not exist.
	LockCustomer(ctx context.Context, id string) (*domain.Customer, error)
	AdjustBalance(ctx context.Context, customerID string, delta decimal.Decimal) error

	// NextInvoiceNumber atomically reserves the next number; the reservation is
	// undone if the unit of work rolls back.
	NextInvoiceNumber(ctx context.Context, at time.Time) (string, error)

	InsertInvoice(ctx context.Context, invoice *domain.Invoice) error

	// LockInvoice returns the invoice with its items, or nil, nil.
	LockInvoice(ctx context.Context, id string) (*domain.Invoice, error)
	MarkCancelled(ctx context.Context, id string, at time.Time) error
}

// FormatInvoiceNumber renders a daily sequence value as INV-YYYYMMDD-NNN. The
// sequence widens past three digits after the 999th invoice of a day, so
// numbers are ordered with CompareInvoiceNumbers rather than as plain strings.
func FormatInvoiceNumber(day time.Time, seq int64) string {
	return fmt.Sprintf("INV-%s-%03d", day.UTC().Format("20060102"), seq)
}

// CompareInvoiceNumbers orders numbers by day, then by numeric sequence. It
// returns -1, 0 or +1 like cmp.Compare.
func CompareInvoiceNumbers(a, b string) int {
	dayA, seqA := splitInvoiceNumber(a)
	dayB, seqB := splitInvoiceNumber(b)
	if c := strings.Compare(dayA, dayB); c != 0 {
		return c
	}
	if seqA < 0 || seqB < 0 {
		return strings.Compare(a, b)
	}
	return cmp.Compare(seqA, seqB)
}

func splitInvoiceNumber(number string) (string, int64) {
	i := strings.LastIndexByte(number, '-')
	if i < 0 {
		return number, -1
	}
	seq, err := strconv.ParseInt(number[i+1:], 10, 64)
	if err != nil {
		return number, -1
	}
	return number[:i], seq
}
