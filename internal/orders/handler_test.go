package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/posflow/internal/checkout"
	"github.com/joao-fontenele/posflow/internal/domain"
	"github.com/joao-fontenele/posflow/internal/memstore"
)

func newTestServer(t *testing.T) (*http.ServeMux, *memstore.Store) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New(time.Second)
	store.PutProduct(domain.Product{ID: "p-rice", SKU: "RICE-1KG", Name: "Rice 1kg", UnitPrice: decimal.RequireFromString("5.00"), Stock: 10, ReorderPoint: 2})
	store.PutProduct(domain.Product{ID: "p-oil", SKU: "OIL-1L", Name: "Oil 1L", UnitPrice: decimal.RequireFromString("12.50"), Stock: 2, ReorderPoint: 1})
	store.PutCustomer(domain.Customer{ID: "c-walkin", Name: "Walk-in"})
	store.PutCustomer(domain.Customer{ID: "c-credit", Name: "Bodega Rosa", CreditLimit: decimal.NewFromInt(100), Balance: decimal.NewFromInt(80)})

	engine, err := checkout.NewEngine(store, checkout.CreditPolicy{ZeroLimit: checkout.ZeroLimitUnlimited}, nil, logger)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	handler := NewHandler(engine, store, decimal.RequireFromString("0.16"), logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /invoices", handler.HandleList)
	mux.HandleFunc("POST /invoices", handler.HandlePlaceOrder)
	mux.HandleFunc("GET /invoices/{id}", handler.HandleGet)
	mux.HandleFunc("POST /invoices/{id}/cancel", handler.HandleCancel)

	return mux, store
}

func post(mux *http.ServeMux, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}

func TestHandler_HandlePlaceOrder(t *testing.T) {
	t.Run("creates invoice with defaults", func(t *testing.T) {
		mux, store := newTestServer(t)

		rec := post(mux, "/invoices", `{"customer_id":"c-walkin","items":[{"product_id":"p-rice","quantity":2}]}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}

		var receipt checkout.Receipt
		if err := json.NewDecoder(rec.Body).Decode(&receipt); err != nil {
			t.Fatalf("failed to decode receipt: %v", err)
		}
		if !strings.HasPrefix(receipt.InvoiceNumber, "INV-") {
			t.Errorf("unexpected invoice number %q", receipt.InvoiceNumber)
		}
		if receipt.Total.StringFixed(2) != "11.60" {
			t.Errorf("expected total 11.60 with default tax, got %s", receipt.Total)
		}
		if receipt.Status != domain.InvoiceStatusPaid {
			t.Errorf("expected paid status for default cash method, got %s", receipt.Status)
		}

		p, _ := store.GetProduct(context.Background(), "p-rice")
		if p.Stock != 8 {
			t.Errorf("expected stock 8, got %d", p.Stock)
		}
	})

	t.Run("explicit zero tax rate is honoured", func(t *testing.T) {
		mux, _ := newTestServer(t)

		rec := post(mux, "/invoices", `{"customer_id":"c-walkin","tax_rate":"0","items":[{"product_id":"p-rice","quantity":1}]}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}
		if body := decodeBody(t, rec); body["total"] != "5" {
			t.Errorf("expected total 5, got %v", body["total"])
		}
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		mux, _ := newTestServer(t)

		rec := post(mux, "/invoices", `{"customer_id":"c-walkin","discount":10,"items":[{"product_id":"p-rice","quantity":1}]}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})

	t.Run("reports validation field", func(t *testing.T) {
		mux, _ := newTestServer(t)

		rec := post(mux, "/invoices", `{"customer_id":"c-walkin","items":[{"product_id":"p-rice","quantity":0}]}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rec.Code)
		}
		body := decodeBody(t, rec)
		if body["code"] != "invalid_order" || body["field"] != "items[0].quantity" {
			t.Errorf("unexpected body: %v", body)
		}
	})

	t.Run("reports insufficient stock with detail", func(t *testing.T) {
		mux, store := newTestServer(t)

		rec := post(mux, "/invoices", `{"customer_id":"c-walkin","items":[{"product_id":"p-rice","quantity":1},{"product_id":"p-oil","quantity":5}]}`)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected status 409, got %d", rec.Code)
		}
		body := decodeBody(t, rec)
		if body["code"] != "insufficient_stock" || body["product_id"] != "p-oil" || body["available"] != float64(2) {
			t.Errorf("unexpected body: %v", body)
		}

		p, _ := store.GetProduct(context.Background(), "p-rice")
		if p.Stock != 10 {
			t.Errorf("expected rice stock untouched at 10, got %d", p.Stock)
		}
	})

	t.Run("reports credit limit", func(t *testing.T) {
		mux, _ := newTestServer(t)

		rec := post(mux, "/invoices", `{"customer_id":"c-credit","payment_method":"credit","tax_rate":"0","items":[{"product_id":"p-oil","quantity":2}]}`)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected status 409, got %d", rec.Code)
		}
		body := decodeBody(t, rec)
		if body["code"] != "credit_limit_exceeded" || body["available"] != "20" {
			t.Errorf("unexpected body: %v", body)
		}
	})

	t.Run("returns 404 for unknown customer", func(t *testing.T) {
		mux, _ := newTestServer(t)

		rec := post(mux, "/invoices", `{"customer_id":"nobody","items":[{"product_id":"p-rice","quantity":1}]}`)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})
}

type busyEngine struct{}

func (busyEngine) PlaceOrder(context.Context, checkout.PlaceOrderRequest) (*checkout.Receipt, error) {
	return nil, fmt.Errorf("lock products: %w", checkout.ErrBusy)
}

func (busyEngine) CancelOrder(context.Context, string) (*checkout.CancelResult, error) {
	return nil, fmt.Errorf("lock invoice: %w", checkout.ErrBusy)
}

func TestHandler_BusyResponses(t *testing.T) {
	handler := NewHandler(busyEngine{}, memstore.New(time.Second), decimal.Zero, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/invoices", strings.NewReader(`{"customer_id":"c","items":[{"product_id":"p","quantity":1}]}`))
	handler.HandlePlaceOrder(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestHandler_HandleCancel(t *testing.T) {
	mux, store := newTestServer(t)

	rec := post(mux, "/invoices", `{"customer_id":"c-walkin","items":[{"product_id":"p-rice","quantity":3}]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}
	id := decodeBody(t, rec)["invoice_id"].(string)

	rec = post(mux, "/invoices/"+id+"/cancel", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["already_cancelled"] != false || body["status"] != "cancelled" {
		t.Errorf("unexpected body: %v", body)
	}

	rec = post(mux, "/invoices/"+id+"/cancel", "")
	if body := decodeBody(t, rec); body["already_cancelled"] != true {
		t.Errorf("expected idempotent cancel, got %v", body)
	}

	p, _ := store.GetProduct(context.Background(), "p-rice")
	if p.Stock != 10 {
		t.Errorf("expected stock restored to 10, got %d", p.Stock)
	}

	rec = post(mux, "/invoices/missing/cancel", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}

func TestHandler_HandleGetAndList(t *testing.T) {
	mux, _ := newTestServer(t)

	var ids []string
	for _, body := range []string{
		`{"customer_id":"c-walkin","items":[{"product_id":"p-rice","quantity":1}]}`,
		`{"customer_id":"c-credit","payment_method":"credit","tax_rate":"0","items":[{"product_id":"p-rice","quantity":1}]}`,
	} {
		rec := post(mux, "/invoices", body)
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
		}
		ids = append(ids, decodeBody(t, rec)["invoice_id"].(string))
	}

	t.Run("get returns items", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoices/"+ids[0], nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}
		var invoice domain.Invoice
		if err := json.NewDecoder(rec.Body).Decode(&invoice); err != nil {
			t.Fatalf("failed to decode invoice: %v", err)
		}
		if len(invoice.Items) != 1 || invoice.Items[0].ProductID != "p-rice" {
			t.Errorf("unexpected items: %+v", invoice.Items)
		}
	})

	t.Run("get unknown returns 404", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoices/missing", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
	})

	t.Run("list filters by status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoices?status=pending", nil))

		var invoices []domain.Invoice
		if err := json.NewDecoder(rec.Body).Decode(&invoices); err != nil {
			t.Fatalf("failed to decode invoices: %v", err)
		}
		if len(invoices) != 1 || invoices[0].ID != ids[1] {
			t.Errorf("expected only the credit invoice, got %+v", invoices)
		}
	})

	t.Run("list rejects unknown status", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoices?status=refunded", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rec.Code)
		}
	})
}
