package checkout

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidOrder is a malformed request. Safe to resubmit once corrected.
	ErrInvalidOrder = errors.New("invalid order")

	ErrProductNotFound  = errors.New("product not found")
	ErrCustomerNotFound = errors.New("customer not found")
	ErrInvoiceNotFound  = errors.New("invoice not found")

	// ErrInsufficientStock and ErrCreditLimitExceeded are business-rule
	// rejections. They are deterministic and never retried by the engine.
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrCreditLimitExceeded = errors.New("credit limit exceeded")

	// ErrBusy means the needed locks could not be acquired in time. The whole
	// operation may be retried with backoff.
	ErrBusy = errors.New("store busy, retry later")

	// ErrStorage is an unexpected storage failure. Not retryable without
	// investigation.
	ErrStorage = errors.New("storage failure")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid order: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidOrder
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

type CreditLimitError struct {
	CustomerID string
	Limit      decimal.Decimal
	Balance    decimal.Decimal
	Total      decimal.Decimal
	// Available is the headroom left under the limit, for display.
	Available decimal.Decimal
}

func (e *CreditLimitError) Error() string {
	return fmt.Sprintf("credit limit exceeded for customer %s: limit %s, balance %s, order total %s, available %s",
		e.CustomerID, e.Limit.StringFixed(2), e.Balance.StringFixed(2), e.Total.StringFixed(2), e.Available.StringFixed(2))
}

func (e *CreditLimitError) Unwrap() error {
	return ErrCreditLimitExceeded
}

// storageError marks an unexpected failure while keeping the cause reachable
// through errors.Is/As.
type storageError struct {
	op  string
	err error
}

func (e *storageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStorage, e.op, e.err)
}

func (e *storageError) Unwrap() []error {
	return []error{ErrStorage, e.err}
}

// classify leaves typed engine errors untouched and turns anything else into a
// storage failure.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		ErrInvalidOrder, ErrProductNotFound, ErrCustomerNotFound, ErrInvoiceNotFound,
		ErrInsufficientStock, ErrCreditLimitExceeded, ErrBusy, ErrStorage,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return &storageError{op: op, err: err}
}

// Code is the stable machine-readable name of an error, used in API bodies
// and metric attributes.
func Code(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidOrder):
		return "invalid_order"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrCustomerNotFound):
		return "customer_not_found"
	case errors.Is(err, ErrInvoiceNotFound):
		return "invoice_not_found"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrCreditLimitExceeded):
		return "credit_limit_exceeded"
	case errors.Is(err, ErrBusy):
		return "busy"
	default:
		return "storage_failure"
	}
}

func StatusCode(err error) int {
	switch Code(err) {
	case "ok":
		return http.StatusOK
	case "invalid_order":
		return http.StatusBadRequest
	case "product_not_found", "customer_not_found", "invoice_not_found":
		return http.StatusNotFound
	case "insufficient_stock", "credit_limit_exceeded":
		return http.StatusConflict
	case "busy":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsRetryable reports whether the caller may retry the whole operation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBusy)
}
