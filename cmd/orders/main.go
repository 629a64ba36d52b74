package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/joao-fontenele/posflow/internal/checkout"
	"github.com/joao-fontenele/posflow/internal/config"
	"github.com/joao-fontenele/posflow/internal/customers"
	"github.com/joao-fontenele/posflow/internal/inventory"
	"github.com/joao-fontenele/posflow/internal/memstore"
	"github.com/joao-fontenele/posflow/internal/messaging"
	"github.com/joao-fontenele/posflow/internal/orders"
	"github.com/joao-fontenele/posflow/internal/telemetry"
)

const serviceVersion = "0.1.0"

func main() {
	ctx := context.Background()

	cfg, err := config.Load("8081")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := cfg.Logger()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "orders", serviceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("orders", serviceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	var (
		store     checkout.Store
		invoices  orders.InvoiceReader
		ledger    customers.Reader
		products  inventory.Store
		publisher checkout.EventPublisher
	)

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		mem := memstore.New(cfg.LockTimeout)
		memstore.Seed(mem)
		store, invoices, ledger, products = mem, mem, mem, mem
		logger.Warn("using in-memory store, data is lost on restart")

	default:
		if err := cfg.Require("POSTGRES_URL"); err != nil {
			logger.Error("invalid configuration", "error", err)
			os.Exit(1)
		}

		db, err := telemetry.OpenDB(ctx, cfg.PostgresURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()

		store = orders.NewStore(db, cfg.LockTimeout)
		invoices = orders.NewInvoiceRepository(db)
		ledger = customers.NewLedger(db)
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer := messaging.NewProducer(cfg.KafkaBrokers)
		defer func() { _ = producer.Close() }()
		publisher = producer
	} else {
		logger.Info("KAFKA_BROKERS not set, invoice events are not published")
	}

	engine, err := checkout.NewEngine(store, checkout.CreditPolicy{ZeroLimit: cfg.CreditZeroLimit}, publisher, logger)
	if err != nil {
		logger.Error("failed to create checkout engine", "error", err)
		os.Exit(1)
	}

	handler := orders.NewHandler(engine, invoices, cfg.DefaultTaxRate, logger)
	customerHandler := customers.NewHandler(ledger, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /invoices", telemetry.WithHTTPRoute(handler.HandlePlaceOrder))
	mux.HandleFunc("GET /invoices", telemetry.WithHTTPRoute(handler.HandleList))
	mux.HandleFunc("GET /invoices/{id}", telemetry.WithHTTPRoute(handler.HandleGet))
	mux.HandleFunc("POST /invoices/{id}/cancel", telemetry.WithHTTPRoute(handler.HandleCancel))
	mux.HandleFunc("GET /customers/{id}/credit", telemetry.WithHTTPRoute(customerHandler.HandleCredit))
	mux.HandleFunc("GET /healthz", handler.HandleHealth)
	mux.Handle("GET /metrics", metricsHandler)

	// The in-memory catalog lives in this process, so it is served here.
	if products != nil {
		productHandler := inventory.NewHandler(products, logger)
		mux.HandleFunc("GET /products", telemetry.WithHTTPRoute(productHandler.HandleListProducts))
		mux.HandleFunc("GET /products/{id}", telemetry.WithHTTPRoute(productHandler.HandleGetProduct))
		mux.HandleFunc("POST /products/{id}/restock", telemetry.WithHTTPRoute(productHandler.HandleRestock))
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      telemetry.NewHTTPHandler(mux, "orders"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting orders service", "port", cfg.Port, "store", cfg.StoreDriver, "lock_timeout", cfg.LockTimeout)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
