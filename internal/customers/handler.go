package customers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/posflow/internal/domain"
)

type Reader interface {
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
}

type Handler struct {
	reader Reader
	logger *slog.Logger
}

func NewHandler(reader Reader, logger *slog.Logger) *Handler {
	return &Handler{
		reader: reader,
		logger: logger,
	}
}

type creditResponse struct {
	CustomerID  string            `json:"customer_id"`
	Name        string            `json:"name"`
	CreditLimit decimal.Decimal   `json:"credit_limit"`
	Balance     decimal.Decimal   `json:"balance"`
	Available   decimal.Decimal   `json:"available"`
	Utilization decimal.Decimal   `json:"utilization"`
	Band        domain.CreditBand `json:"band"`
}

func (h *Handler) HandleCredit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing customer id")
		return
	}

	customer, err := h.reader.GetCustomer(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get customer", "error", err, "customer_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if customer == nil {
		h.writeError(w, http.StatusNotFound, "customer not found")
		return
	}

	h.writeJSON(w, http.StatusOK, creditResponse{
		CustomerID:  customer.ID,
		Name:        customer.Name,
		CreditLimit: customer.CreditLimit,
		Balance:     customer.Balance,
		Available:   customer.AvailableCredit(),
		Utilization: customer.Utilization(),
		Band:        customer.CreditBand(),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
