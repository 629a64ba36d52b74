package orders

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/posflow/internal/checkout"
	"github.com/joao-fontenele/posflow/internal/domain"
)

type Engine interface {
	PlaceOrder(ctx context.Context, req checkout.PlaceOrderRequest) (*checkout.Receipt, error)
	CancelOrder(ctx context.Context, invoiceID string) (*checkout.CancelResult, error)
}

type InvoiceReader interface {
	GetInvoice(ctx context.Context, id string) (*domain.Invoice, error)
	ListInvoices(ctx context.Context, filter domain.InvoiceFilter) ([]domain.Invoice, error)
}

type Handler struct {
	engine         Engine
	invoices       InvoiceReader
	defaultTaxRate decimal.Decimal
	logger         *slog.Logger
}

func NewHandler(engine Engine, invoices InvoiceReader, defaultTaxRate decimal.Decimal, logger *slog.Logger) *Handler {
	return &Handler{
		engine:         engine,
		invoices:       invoices,
		defaultTaxRate: defaultTaxRate,
		logger:         logger,
	}
}

type placeOrderRequest struct {
	CustomerID    string                 `json:"customer_id"`
	PaymentMethod domain.PaymentMethod   `json:"payment_method"`
	TaxRate       *decimal.Decimal       `json:"tax_rate"`
	Notes         string                 `json:"notes"`
	Items         []checkout.LineRequest `json:"items"`
}

func (h *Handler) HandlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var body placeOrderRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, map[string]any{
			"error": "invalid request body: " + err.Error(),
			"code":  "invalid_order",
		})
		return
	}

	req := checkout.PlaceOrderRequest{
		CustomerID:    body.CustomerID,
		PaymentMethod: body.PaymentMethod,
		TaxRate:       h.defaultTaxRate,
		Notes:         body.Notes,
		Items:         body.Items,
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.PaymentMethodCash
	}
	if body.TaxRate != nil {
		req.TaxRate = *body.TaxRate
	}

	receipt, err := h.engine.PlaceOrder(r.Context(), req)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, receipt)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	result, err := h.engine.CancelOrder(r.Context(), id)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, map[string]any{"error": "missing invoice id", "code": "invalid_order"})
		return
	}

	invoice, err := h.invoices.GetInvoice(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get invoice", "error", err, "invoice_id", id)
		h.writeFailure(w, err)
		return
	}

	if invoice == nil {
		h.writeError(w, http.StatusNotFound, map[string]any{"error": "invoice not found", "code": "invoice_not_found"})
		return
	}

	h.writeJSON(w, http.StatusOK, invoice)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := domain.InvoiceFilter{
		Status:     domain.InvoiceStatus(query.Get("status")),
		CustomerID: query.Get("customer_id"),
		Limit:      domain.DefaultInvoiceListLimit,
	}

	switch filter.Status {
	case "", domain.InvoiceStatusPending, domain.InvoiceStatusPaid, domain.InvoiceStatusCancelled:
	default:
		h.writeError(w, http.StatusBadRequest, map[string]any{"error": "unknown status " + string(filter.Status), "code": "invalid_order"})
		return
	}

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > domain.DefaultInvoiceListLimit {
			h.writeError(w, http.StatusBadRequest, map[string]any{"error": "limit must be between 1 and 100", "code": "invalid_order"})
			return
		}
		filter.Limit = limit
	}

	invoices, err := h.invoices.ListInvoices(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list invoices", "error", err)
		h.writeFailure(w, err)
		return
	}

	h.logger.Info("invoices listed", "count", len(invoices))
	h.writeJSON(w, http.StatusOK, invoices)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeFailure renders an engine error with its code and any typed detail.
// Storage failures are logged by the engine and hidden from clients.
func (h *Handler) writeFailure(w http.ResponseWriter, err error) {
	status := checkout.StatusCode(err)
	body := map[string]any{
		"error": err.Error(),
		"code":  checkout.Code(err),
	}

	var (
		verr *checkout.ValidationError
		serr *checkout.InsufficientStockError
		cerr *checkout.CreditLimitError
	)
	switch {
	case errors.As(err, &verr):
		body["field"] = verr.Field
	case errors.As(err, &serr):
		body["product_id"] = serr.ProductID
		body["requested"] = serr.Requested
		body["available"] = serr.Available
	case errors.As(err, &cerr):
		body["customer_id"] = cerr.CustomerID
		body["credit_limit"] = cerr.Limit
		body["balance"] = cerr.Balance
		body["total"] = cerr.Total
		body["available"] = cerr.Available
	}

	if checkout.IsRetryable(err) {
		w.Header().Set("Retry-After", "1")
	}
	if status == http.StatusInternalServerError {
		body["error"] = "internal server error"
	}

	h.writeError(w, status, body)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, body map[string]any) {
	h.writeJSON(w, status, body)
}
