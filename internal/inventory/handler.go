package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/posflow/internal/checkout"
	"github.com/joao-fontenele/posflow/internal/domain"
)

// Store is implemented by Repository and by the in-memory store.
type Store interface {
	ListProducts(ctx context.Context, lowStockOnly bool) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	Restock(ctx context.Context, id string, quantity int) (*domain.Product, error)
}

type Handler struct {
	store  Store
	logger *slog.Logger
}

func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger,
	}
}

type productView struct {
	domain.Product
	StockStatus domain.StockStatus `json:"stock_status"`
}

func viewOf(p domain.Product) productView {
	return productView{Product: p, StockStatus: p.StockStatus()}
}

func (h *Handler) HandleListProducts(w http.ResponseWriter, r *http.Request) {
	lowStockOnly := r.URL.Query().Get("low_stock") == "true"

	products, err := h.store.ListProducts(r.Context(), lowStockOnly)
	if err != nil {
		h.logger.Error("failed to list products", "error", err)
		h.writeFailure(w, err)
		return
	}

	views := make([]productView, 0, len(products))
	for _, p := range products {
		views = append(views, viewOf(p))
	}

	h.logger.Info("products listed", "count", len(views), "low_stock", lowStockOnly)
	h.writeJSON(w, http.StatusOK, views)
}

func (h *Handler) HandleGetProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_order", "missing product id")
		return
	}

	product, err := h.store.GetProduct(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get product", "error", err, "product_id", id)
		h.writeFailure(w, err)
		return
	}

	if product == nil {
		h.writeError(w, http.StatusNotFound, "product_not_found", "product not found")
		return
	}

	h.writeJSON(w, http.StatusOK, viewOf(*product))
}

type restockRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) HandleRestock(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_order", "missing product id")
		return
	}

	var req restockRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_order", "invalid request body")
		return
	}
	if req.Quantity < 1 {
		h.writeError(w, http.StatusBadRequest, "invalid_order", "quantity must be at least 1")
		return
	}

	product, err := h.store.Restock(r.Context(), id, req.Quantity)
	if err != nil {
		if !errors.Is(err, checkout.ErrProductNotFound) {
			h.logger.Error("failed to restock product", "error", err, "product_id", id, "quantity", req.Quantity)
		}
		h.writeFailure(w, err)
		return
	}

	h.logger.Info("product restocked", "product_id", id, "quantity", req.Quantity, "stock", product.Stock)
	h.writeJSON(w, http.StatusOK, viewOf(*product))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, map[string]string{"error": message, "code": code})
}

func (h *Handler) writeFailure(w http.ResponseWriter, err error) {
	status := checkout.StatusCode(err)
	if checkout.IsRetryable(err) {
		w.Header().Set("Retry-After", "1")
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	h.writeError(w, status, checkout.Code(err), message)
}
