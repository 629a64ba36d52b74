//go:build integration

package test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/posflow/internal/checkout"
	"github.com/joao-fontenele/posflow/internal/customers"
	"github.com/joao-fontenele/posflow/internal/domain"
	"github.com/joao-fontenele/posflow/internal/inventory"
	"github.com/joao-fontenele/posflow/internal/messaging"
	"github.com/joao-fontenele/posflow/internal/notify"
	"github.com/joao-fontenele/posflow/internal/orders"
	"github.com/joao-fontenele/posflow/internal/worker"
)

// Seed rows from migrations/000002.
const (
	walkInID = "3f9e8b1a-0002-4c5d-8e7f-000000000001"
	rosaID   = "3f9e8b1a-0002-4c5d-8e7f-000000000002"
	juanID   = "3f9e8b1a-0002-4c5d-8e7f-000000000003"

	riceID  = "7d1c2a3e-0001-4a6b-9c1d-000000000001"
	oilID   = "7d1c2a3e-0001-4a6b-9c1d-000000000002"
	milkID  = "7d1c2a3e-0001-4a6b-9c1d-000000000003"
	sugarID = "7d1c2a3e-0001-4a6b-9c1d-000000000004"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(t *testing.T, db *sql.DB, lockTimeout time.Duration, publisher checkout.EventPublisher) *checkout.Engine {
	t.Helper()
	engine, err := checkout.NewEngine(orders.NewStore(db, lockTimeout), checkout.CreditPolicy{}, publisher, discardLogger())
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return engine
}

func stockOf(ctx context.Context, t *testing.T, db *sql.DB, productID string) int {
	t.Helper()
	p, err := inventory.NewCatalog(db).GetProduct(ctx, productID)
	if err != nil || p == nil {
		t.Fatalf("failed to read product %s: %v", productID, err)
	}
	return p.Stock
}

func balanceOf(ctx context.Context, t *testing.T, db *sql.DB, customerID string) decimal.Decimal {
	t.Helper()
	c, err := customers.NewLedger(db).GetCustomer(ctx, customerID)
	if err != nil || c == nil {
		t.Fatalf("failed to read customer %s: %v", customerID, err)
	}
	return c.Balance
}

func TestPlaceOrderCommitsEveryEffect(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db := startPostgres(ctx, t)

	engine := newEngine(t, db, 2*time.Second, nil)

	receipt, err := engine.PlaceOrder(ctx, checkout.PlaceOrderRequest{
		CustomerID:    rosaID,
		PaymentMethod: domain.PaymentMethodCredit,
		TaxRate:       decimal.RequireFromString("0.16"),
		Items: []checkout.LineRequest{
			{ProductID: riceID, Quantity: 2},
			{ProductID: oilID, Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("place order failed: %v", err)
	}

	if !strings.HasPrefix(receipt.InvoiceNumber, "INV-") || !strings.HasSuffix(receipt.InvoiceNumber, "-001") {
		t.Fatalf("unexpected invoice number %s", receipt.InvoiceNumber)
	}
	if !receipt.Total.Equal(decimal.RequireFromString("21.92")) {
		t.Fatalf("expected total 21.92, got %s", receipt.Total)
	}
	if receipt.Status != domain.InvoiceStatusPending {
		t.Fatalf("expected pending status for a credit sale, got %s", receipt.Status)
	}

	if got := stockOf(ctx, t, db, riceID); got != 118 {
		t.Fatalf("expected rice stock 118, got %d", got)
	}
	if got := stockOf(ctx, t, db, oilID); got != 39 {
		t.Fatalf("expected oil stock 39, got %d", got)
	}
	if got := balanceOf(ctx, t, db, rosaID); !got.Equal(decimal.RequireFromString("141.92")) {
		t.Fatalf("expected balance 141.92, got %s", got)
	}

	invoice, err := orders.NewInvoiceRepository(db).GetInvoice(ctx, receipt.InvoiceID)
	if err != nil || invoice == nil {
		t.Fatalf("failed to read invoice: %v", err)
	}
	if len(invoice.Items) != 2 {
		t.Fatalf("expected 2 invoice items, got %d", len(invoice.Items))
	}
	for _, item := range invoice.Items {
		if item.ProductID == riceID && !item.UnitPrice.Equal(decimal.RequireFromString("4.50")) {
			t.Fatalf("expected captured rice price 4.50, got %s", item.UnitPrice)
		}
	}
}

func TestConcurrentCheckoutNeverOversells(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db := startPostgres(ctx, t)

	if _, err := db.ExecContext(ctx, `UPDATE products SET stock = 10 WHERE id = $1`, sugarID); err != nil {
		t.Fatalf("failed to set stock: %v", err)
	}

	engine := newEngine(t, db, 5*time.Second, nil)

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		numbers      = map[string]bool{}
		insufficient int
		unexpected   []error
	)

	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			receipt, err := engine.PlaceOrder(ctx, checkout.PlaceOrderRequest{
				CustomerID:    walkInID,
				PaymentMethod: domain.PaymentMethodCash,
				Items:         []checkout.LineRequest{{ProductID: sugarID, Quantity: 1}},
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				numbers[receipt.InvoiceNumber] = true
			case errors.Is(err, checkout.ErrInsufficientStock):
				insufficient++
			default:
				unexpected = append(unexpected, err)
			}
		}()
	}
	wg.Wait()

	if len(unexpected) > 0 {
		t.Fatalf("unexpected errors: %v", unexpected)
	}
	if len(numbers) != 10 {
		t.Fatalf("expected 10 distinct invoice numbers, got %d", len(numbers))
	}
	if insufficient != 10 {
		t.Fatalf("expected 10 insufficient stock rejections, got %d", insufficient)
	}
	if got := stockOf(ctx, t, db, sugarID); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}

	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM invoices`).Scan(&count); err != nil {
		t.Fatalf("failed to count invoices: %v", err)
	}
	if count != 10 {
		t.Fatalf("expected 10 invoices, got %d", count)
	}
}

func TestCreditLimitRejectionLeavesNoTrace(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db := startPostgres(ctx, t)

	engine := newEngine(t, db, 2*time.Second, nil)

	_, err := engine.PlaceOrder(ctx, checkout.PlaceOrderRequest{
		CustomerID:    juanID,
		PaymentMethod: domain.PaymentMethodCredit,
		TaxRate:       decimal.Zero,
		Items:         []checkout.LineRequest{{ProductID: oilID, Quantity: 1}},
	})

	var creditErr *checkout.CreditLimitError
	if !errors.As(err, &creditErr) {
		t.Fatalf("expected credit limit error, got %v", err)
	}
	if !creditErr.Available.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected available 5, got %s", creditErr.Available)
	}

	if got := stockOf(ctx, t, db, oilID); got != 40 {
		t.Fatalf("expected oil stock untouched at 40, got %d", got)
	}
	if got := balanceOf(ctx, t, db, juanID); !got.Equal(decimal.NewFromInt(95)) {
		t.Fatalf("expected balance untouched at 95, got %s", got)
	}

	// The rejected attempt must not consume an invoice number.
	receipt, err := engine.PlaceOrder(ctx, checkout.PlaceOrderRequest{
		CustomerID:    juanID,
		PaymentMethod: domain.PaymentMethodCash,
		Items:         []checkout.LineRequest{{ProductID: oilID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("cash order failed: %v", err)
	}
	if !strings.HasSuffix(receipt.InvoiceNumber, "-001") {
		t.Fatalf("expected first number of the day, got %s", receipt.InvoiceNumber)
	}
}

func TestCancelRestoresStockOnce(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db := startPostgres(ctx, t)

	engine := newEngine(t, db, 2*time.Second, nil)

	receipt, err := engine.PlaceOrder(ctx, checkout.PlaceOrderRequest{
		CustomerID:    rosaID,
		PaymentMethod: domain.PaymentMethodCredit,
		TaxRate:       decimal.Zero,
		Items:         []checkout.LineRequest{{ProductID: milkID, Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("place order failed: %v", err)
	}
	if got := stockOf(ctx, t, db, milkID); got != 5 {
		t.Fatalf("expected milk stock 5, got %d", got)
	}

	var wg sync.WaitGroup
	results := make([]*checkout.CancelResult, 5)
	errs := make([]error, 5)
	for i := range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = engine.CancelOrder(ctx, receipt.InvoiceID)
		}()
	}
	wg.Wait()

	transitions := 0
	for i := range 5 {
		if errs[i] != nil {
			t.Fatalf("cancel %d failed: %v", i, errs[i])
		}
		if !results[i].AlreadyCancelled {
			transitions++
		}
	}
	if transitions != 1 {
		t.Fatalf("expected exactly one cancellation transition, got %d", transitions)
	}

	if got := stockOf(ctx, t, db, milkID); got != 8 {
		t.Fatalf("expected milk stock restored to 8, got %d", got)
	}
	if got := balanceOf(ctx, t, db, rosaID); !got.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("expected balance reversed to 120, got %s", got)
	}

	invoice, err := orders.NewInvoiceRepository(db).GetInvoice(ctx, receipt.InvoiceID)
	if err != nil {
		t.Fatalf("failed to read invoice: %v", err)
	}
	if invoice.Status != domain.InvoiceStatusCancelled || invoice.CancelledAt == nil {
		t.Fatalf("expected cancelled invoice with timestamp, got %s", invoice.Status)
	}

	if _, err := engine.CancelOrder(ctx, "no-such-invoice"); !errors.Is(err, checkout.ErrInvoiceNotFound) {
		t.Fatalf("expected invoice not found, got %v", err)
	}
}

func TestLockTimeoutReportsBusy(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db := startPostgres(ctx, t)

	holder, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("failed to begin holder tx: %v", err)
	}
	defer func() { _ = holder.Rollback() }()

	if _, err := holder.ExecContext(ctx, `SELECT id FROM products WHERE id = $1 FOR UPDATE`, riceID); err != nil {
		t.Fatalf("failed to lock product: %v", err)
	}

	engine := newEngine(t, db, 200*time.Millisecond, nil)

	_, err = engine.PlaceOrder(ctx, checkout.PlaceOrderRequest{
		CustomerID:    walkInID,
		PaymentMethod: domain.PaymentMethodCash,
		Items:         []checkout.LineRequest{{ProductID: riceID, Quantity: 1}},
	})
	if !errors.Is(err, checkout.ErrBusy) {
		t.Fatalf("expected busy, got %v", err)
	}

	repo := inventory.NewRepository(db, 200*time.Millisecond)
	if _, err := repo.Restock(ctx, riceID, 5); !errors.Is(err, checkout.ErrBusy) {
		t.Fatalf("expected busy restock, got %v", err)
	}

	_ = holder.Rollback()

	product, err := repo.Restock(ctx, riceID, 5)
	if err != nil {
		t.Fatalf("restock after release failed: %v", err)
	}
	if product.Stock != 125 {
		t.Fatalf("expected stock 125, got %d", product.Stock)
	}
}

func TestHTTPHandlersOverPostgres(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db := startPostgres(ctx, t)

	logger := discardLogger()
	handler := orders.NewHandler(newEngine(t, db, 2*time.Second, nil), orders.NewInvoiceRepository(db), decimal.RequireFromString("0.18"), logger)
	customerHandler := customers.NewHandler(customers.NewLedger(db), logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /invoices", handler.HandlePlaceOrder)
	mux.HandleFunc("GET /invoices", handler.HandleList)
	mux.HandleFunc("GET /customers/{id}/credit", customerHandler.HandleCredit)
	server := httptest.NewServer(mux)
	defer server.Close()

	body := `{"customer_id":"` + juanID + `","payment_method":"credit","items":[{"product_id":"` + riceID + `","quantity":2}]}`
	resp, err := http.Post(server.URL+"/invoices", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	var failure map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&failure); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if failure["code"] != "credit_limit_exceeded" {
		t.Fatalf("expected credit_limit_exceeded, got %v", failure["code"])
	}

	creditResp, err := http.Get(server.URL + "/customers/" + juanID + "/credit")
	if err != nil {
		t.Fatalf("credit request failed: %v", err)
	}
	defer func() { _ = creditResp.Body.Close() }()

	var credit map[string]any
	if err := json.NewDecoder(creditResp.Body).Decode(&credit); err != nil {
		t.Fatalf("failed to decode credit: %v", err)
	}
	if credit["band"] != string(domain.CreditBandBlocked) && credit["band"] != string(domain.CreditBandNearLimit) {
		t.Fatalf("unexpected band %v", credit["band"])
	}
}

func TestKafkaConnection(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	brokers := startKafka(ctx, t)

	if len(brokers) == 0 {
		t.Fatal("expected at least one broker")
	}

	t.Logf("kafka brokers: %v", brokers)
}

type notifyCapture struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (c *notifyCapture) handler(w http.ResponseWriter, r *http.Request) {
	var msg notify.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, `{"status":"sent"}`)
}

func (c *notifyCapture) snapshot() []notify.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]notify.Message, len(c.messages))
	copy(result, c.messages)
	return result
}

func TestReceiptFlowThroughKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	db := startPostgres(ctx, t)

	brokers := startKafka(ctx, t)

	logger := discardLogger()

	producer := messaging.NewProducer(brokers)
	defer func() { _ = producer.Close() }()

	engine := newEngine(t, db, 2*time.Second, producer)

	inventoryHandler := inventory.NewHandler(inventory.NewRepository(db, 2*time.Second), logger)
	inventoryMux := http.NewServeMux()
	inventoryMux.HandleFunc("GET /products/{id}", inventoryHandler.HandleGetProduct)
	inventoryServer := httptest.NewServer(inventoryMux)
	defer inventoryServer.Close()

	capture := &notifyCapture{}
	notifyMux := http.NewServeMux()
	notifyMux.HandleFunc("POST /send", capture.handler)
	notifyServer := httptest.NewServer(notifyMux)
	defer notifyServer.Close()

	receipt, err := engine.PlaceOrder(ctx, checkout.PlaceOrderRequest{
		CustomerID:    rosaID,
		PaymentMethod: domain.PaymentMethodCash,
		Items:         []checkout.LineRequest{{ProductID: milkID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("place order failed: %v", err)
	}

	notifier := worker.NewReceiptNotifier(notifyServer.URL, inventoryServer.URL, "Mini ERP", "51", &http.Client{Timeout: 10 * time.Second}, logger)
	consumer := messaging.NewConsumer(brokers, []string{domain.TopicInvoiceCreated}, "receipt-worker-test", messaging.WithStartOffset(kafka.FirstOffset))
	defer func() { _ = consumer.Close() }()

	consumeCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		_ = consumer.Consume(consumeCtx, messaging.Handler(worker.WithRetry(notifier.Handle, 10*time.Second, logger)))
	}()

	deadline := time.After(90 * time.Second)
	for {
		messages := capture.snapshot()
		if len(messages) >= 2 {
			if messages[0].Channel != notify.ChannelWhatsApp || !strings.Contains(messages[0].Body, receipt.InvoiceNumber) {
				t.Fatalf("unexpected receipt: %+v", messages[0])
			}
			if messages[1].Channel != notify.ChannelAlert || messages[1].Subject != "Low stock: MILK-400G" {
				t.Fatalf("unexpected alert: %+v", messages[1])
			}
			return
		}

		select {
		case <-deadline:
			t.Fatalf("timed out waiting for notifications, got %d", len(messages))
		case <-time.After(500 * time.Millisecond):
		}
	}
}
