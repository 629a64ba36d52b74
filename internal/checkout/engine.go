package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/posflow/internal/domain"
)

var tracer = otel.Tracer("github.com/joao-fontenele/posflow/checkout")

// EventPublisher receives invoice events after a unit of work has committed.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, event any) error
}

type Receipt struct {
	InvoiceID     string               `json:"invoice_id"`
	InvoiceNumber string               `json:"invoice_number"`
	Subtotal      decimal.Decimal      `json:"subtotal"`
	TaxAmount     decimal.Decimal      `json:"tax_amount"`
	Total         decimal.Decimal      `json:"total"`
	Status        domain.InvoiceStatus `json:"status"`
}

type CancelResult struct {
	InvoiceID        string               `json:"invoice_id"`
	InvoiceNumber    string               `json:"invoice_number"`
	Status           domain.InvoiceStatus `json:"status"`
	AlreadyCancelled bool                 `json:"already_cancelled"`
}

type Engine struct {
	store     Store
	credit    CreditPolicy
	publisher EventPublisher
	logger    *slog.Logger
	metrics   *engineMetrics
	now       func() time.Time
}

type Option func(*Engine)

// WithClock overrides the time source used for invoice timestamps and numbers.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine wires the coordinator. publisher may be nil.
func NewEngine(store Store, credit CreditPolicy, publisher EventPublisher, logger *slog.Logger, opts ...Option) (*Engine, error) {
	metrics, err := newEngineMetrics()
	if err != nil {
		return nil, fmt.Errorf("create checkout metrics: %w", err)
	}

	e := &Engine{
		store:     store,
		credit:    credit,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// PlaceOrder validates, prices and credit-checks the request, then decrements
// stock, numbers the invoice, updates the balance and persists the invoice in
// a single unit of work. The outcome is either fully committed or fully
// rejected.
func (e *Engine) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Receipt, error) {
	start := time.Now()

	ctx, span := tracer.Start(ctx, "checkout.PlaceOrder", trace.WithAttributes(
		attribute.String("customer.id", req.CustomerID),
		attribute.String("payment.method", string(req.PaymentMethod)),
		attribute.Int("order.lines", len(req.Items)),
	))
	defer span.End()

	a := newAttempt()
	receipt, event, err := e.placeOrder(ctx, a, req)
	e.metrics.recordOrder(ctx, err, time.Since(start))
	span.SetAttributes(attribute.String("checkout.state", string(a.state)))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Code(err))
		e.logRejection(ctx, "order rejected", err, "customer_id", req.CustomerID, "state_trail", a.trail)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("invoice.id", receipt.InvoiceID),
		attribute.String("invoice.number", receipt.InvoiceNumber),
	)
	e.logger.InfoContext(ctx, "order committed",
		"invoice_id", receipt.InvoiceID,
		"invoice_number", receipt.InvoiceNumber,
		"customer_id", req.CustomerID,
		"total", receipt.Total.StringFixed(2),
	)
	e.publish(ctx, domain.TopicInvoiceCreated, event)

	return receipt, nil
}

func (e *Engine) placeOrder(ctx context.Context, a *attempt, req PlaceOrderRequest) (*Receipt, *domain.InvoiceEvent, error) {
	if err := ValidateOrder(req); err != nil {
		return nil, nil, a.reject(err)
	}
	if err := a.advance(StateValidated); err != nil {
		return nil, nil, a.reject(classify("advance", err))
	}

	var (
		invoice  *domain.Invoice
		customer *domain.Customer
	)

	err := e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		products, err := tx.LockProducts(ctx, sortedProductIDs(req.Items))
		if err != nil {
			return fmt.Errorf("lock products: %w", err)
		}

		lines := make([]PricedLine, 0, len(req.Items))
		for _, item := range req.Items {
			product, ok := products[item.ProductID]
			if !ok {
				return fmt.Errorf("%w: %s", ErrProductNotFound, item.ProductID)
			}
			if product.Status != domain.ProductStatusActive {
				return invalid("product_id", "product %s is %s", product.ID, product.Status)
			}
			lines = append(lines, PricedLine{
				ProductID: product.ID,
				Quantity:  item.Quantity,
				UnitPrice: product.UnitPrice,
			})
		}

		customer, err = tx.LockCustomer(ctx, req.CustomerID)
		if err != nil {
			return fmt.Errorf("lock customer: %w", err)
		}
		if customer == nil {
			return fmt.Errorf("%w: %s", ErrCustomerNotFound, req.CustomerID)
		}

		totals := Price(lines, req.TaxRate)
		if err := a.advance(StatePriced); err != nil {
			return err
		}

		if err := e.credit.Check(*customer, req.PaymentMethod, totals.Total); err != nil {
			return err
		}
		if err := a.advance(StateCreditChecked); err != nil {
			return err
		}

		for _, line := range lines {
			ok, available, err := tx.DecrementStock(ctx, line.ProductID, line.Quantity)
			if err != nil {
				return fmt.Errorf("decrement stock for %s: %w", line.ProductID, err)
			}
			if !ok {
				return &InsufficientStockError{
					ProductID: line.ProductID,
					Requested: line.Quantity,
					Available: available,
				}
			}
		}
		if err := a.advance(StateStockReserved); err != nil {
			return err
		}

		now := e.now().UTC()
		number, err := tx.NextInvoiceNumber(ctx, now)
		if err != nil {
			return fmt.Errorf("next invoice number: %w", err)
		}

		if req.PaymentMethod.IsCredit() {
			if err := tx.AdjustBalance(ctx, customer.ID, totals.Total); err != nil {
				return fmt.Errorf("adjust balance: %w", err)
			}
		}

		invoice = &domain.Invoice{
			Number:        number,
			CustomerID:    customer.ID,
			PaymentMethod: req.PaymentMethod,
			TaxRate:       req.TaxRate,
			Subtotal:      totals.Subtotal,
			TaxAmount:     totals.TaxAmount,
			Total:         totals.Total,
			Status:        domain.InitialStatus(req.PaymentMethod),
			Notes:         req.Notes,
			CreatedAt:     now,
			Items:         make([]domain.InvoiceItem, 0, len(lines)),
		}
		for _, line := range lines {
			invoice.Items = append(invoice.Items, domain.InvoiceItem{
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				UnitPrice: line.UnitPrice,
				Subtotal:  line.Subtotal(),
			})
		}

		if err := tx.InsertInvoice(ctx, invoice); err != nil {
			return fmt.Errorf("insert invoice: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, nil, a.reject(classify("place order", err))
	}

	if err := a.advance(StateCommitted); err != nil {
		return nil, nil, classify("advance", err)
	}

	receipt := &Receipt{
		InvoiceID:     invoice.ID,
		InvoiceNumber: invoice.Number,
		Subtotal:      invoice.Subtotal,
		TaxAmount:     invoice.TaxAmount,
		Total:         invoice.Total,
		Status:        invoice.Status,
	}

	return receipt, invoiceEvent(invoice, customer), nil
}

// CancelOrder moves a committed invoice to cancelled, restoring every line's
// stock and reversing the balance of a credit sale in one unit of work.
// Cancelling an already cancelled invoice changes nothing.
func (e *Engine) CancelOrder(ctx context.Context, invoiceID string) (*CancelResult, error) {
	ctx, span := tracer.Start(ctx, "checkout.CancelOrder", trace.WithAttributes(
		attribute.String("invoice.id", invoiceID),
	))
	defer span.End()

	result, event, err := e.cancelOrder(ctx, invoiceID)
	e.metrics.recordCancellation(ctx, result, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Code(err))
		e.logRejection(ctx, "cancellation failed", err, "invoice_id", invoiceID)
		return nil, err
	}

	span.SetAttributes(attribute.Bool("invoice.already_cancelled", result.AlreadyCancelled))
	if result.AlreadyCancelled {
		e.logger.InfoContext(ctx, "invoice already cancelled", "invoice_id", result.InvoiceID)
		return result, nil
	}

	e.logger.InfoContext(ctx, "invoice cancelled",
		"invoice_id", result.InvoiceID,
		"invoice_number", result.InvoiceNumber,
	)
	e.publish(ctx, domain.TopicInvoiceCancelled, event)

	return result, nil
}

func (e *Engine) cancelOrder(ctx context.Context, invoiceID string) (*CancelResult, *domain.InvoiceEvent, error) {
	if strings.TrimSpace(invoiceID) == "" {
		return nil, nil, invalid("invoice_id", "is required")
	}

	var (
		result *CancelResult
		event  *domain.InvoiceEvent
	)

	err := e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		invoice, err := tx.LockInvoice(ctx, invoiceID)
		if err != nil {
			return fmt.Errorf("lock invoice: %w", err)
		}
		if invoice == nil {
			return fmt.Errorf("%w: %s", ErrInvoiceNotFound, invoiceID)
		}

		result = &CancelResult{
			InvoiceID:     invoice.ID,
			InvoiceNumber: invoice.Number,
			Status:        domain.InvoiceStatusCancelled,
		}
		if invoice.Status == domain.InvoiceStatusCancelled {
			result.AlreadyCancelled = true
			return nil
		}

		ids := make([]string, 0, len(invoice.Items))
		for _, item := range invoice.Items {
			ids = append(ids, item.ProductID)
		}
		sort.Strings(ids)
		if _, err := tx.LockProducts(ctx, ids); err != nil {
			return fmt.Errorf("lock products: %w", err)
		}

		for _, item := range invoice.Items {
			if err := tx.IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				return fmt.Errorf("restore stock for %s: %w", item.ProductID, err)
			}
		}

		customer, err := tx.LockCustomer(ctx, invoice.CustomerID)
		if err != nil {
			return fmt.Errorf("lock customer: %w", err)
		}
		if customer == nil {
			return fmt.Errorf("%w: %s", ErrCustomerNotFound, invoice.CustomerID)
		}

		if invoice.PaymentMethod.IsCredit() {
			if err := tx.AdjustBalance(ctx, customer.ID, invoice.Total.Neg()); err != nil {
				return fmt.Errorf("reverse balance: %w", err)
			}
		}

		now := e.now().UTC()
		if err := tx.MarkCancelled(ctx, invoice.ID, now); err != nil {
			return fmt.Errorf("mark cancelled: %w", err)
		}

		invoice.Status = domain.InvoiceStatusCancelled
		invoice.CancelledAt = &now
		event = invoiceEvent(invoice, customer)

		return nil
	})
	if err != nil {
		return nil, nil, classify("cancel order", err)
	}

	return result, event, nil
}

func (e *Engine) publish(ctx context.Context, topic string, event *domain.InvoiceEvent) {
	if e.publisher == nil || event == nil {
		return
	}
	if err := e.publisher.Publish(ctx, topic, event.InvoiceID, event); err != nil {
		e.logger.ErrorContext(ctx, "failed to publish invoice event", "error", err, "topic", topic, "invoice_id", event.InvoiceID)
	}
}

func (e *Engine) logRejection(ctx context.Context, msg string, err error, args ...any) {
	args = append(args, "error", err, "code", Code(err))
	switch {
	case errors.Is(err, ErrStorage):
		e.logger.ErrorContext(ctx, msg, args...)
	case errors.Is(err, ErrBusy):
		e.logger.WarnContext(ctx, msg, args...)
	default:
		e.logger.InfoContext(ctx, msg, args...)
	}
}

func sortedProductIDs(items []LineRequest) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	sort.Strings(ids)
	return ids
}

func invoiceEvent(invoice *domain.Invoice, customer *domain.Customer) *domain.InvoiceEvent {
	event := &domain.InvoiceEvent{
		InvoiceID:     invoice.ID,
		InvoiceNumber: invoice.Number,
		CustomerID:    invoice.CustomerID,
		PaymentMethod: invoice.PaymentMethod,
		Total:         invoice.Total,
		Status:        invoice.Status,
		Items:         make([]domain.InvoiceEventItem, 0, len(invoice.Items)),
		Timestamp:     invoice.CreatedAt,
	}
	if invoice.CancelledAt != nil {
		event.Timestamp = *invoice.CancelledAt
	}
	if customer != nil {
		event.CustomerName = customer.Name
		event.CustomerPhone = customer.Phone
	}
	for _, item := range invoice.Items {
		event.Items = append(event.Items, domain.InvoiceEventItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}
	return event
}
