package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joao-fontenele/posflow/internal/config"
	"github.com/joao-fontenele/posflow/internal/gateway"
	"github.com/joao-fontenele/posflow/internal/telemetry"
)

const serviceVersion = "0.1.0"

func main() {
	ctx := context.Background()

	cfg, err := config.Load("8080")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := cfg.Logger()

	if err := cfg.Require("ORDERS_SERVICE_URL", "INVENTORY_SERVICE_URL"); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "gateway", serviceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("gateway", serviceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	httpClient := telemetry.NewHTTPClient(10 * time.Second)

	ordersProxy := gateway.NewServiceProxy(cfg.OrdersServiceURL, httpClient)
	inventoryProxy := gateway.NewServiceProxy(cfg.InventoryServiceURL, httpClient)
	handler := gateway.NewHandler(ordersProxy, inventoryProxy, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /invoices", telemetry.WithHTTPRoute(handler.HandleInvoices))
	mux.HandleFunc("GET /invoices", telemetry.WithHTTPRoute(handler.HandleInvoices))
	mux.HandleFunc("GET /invoices/{id}", telemetry.WithHTTPRoute(handler.HandleInvoices))
	mux.HandleFunc("POST /invoices/{id}/cancel", telemetry.WithHTTPRoute(handler.HandleInvoices))
	mux.HandleFunc("GET /customers/{id}/credit", telemetry.WithHTTPRoute(handler.HandleCustomers))
	mux.HandleFunc("GET /products", telemetry.WithHTTPRoute(handler.HandleProducts))
	mux.HandleFunc("GET /products/{id}", telemetry.WithHTTPRoute(handler.HandleProducts))
	mux.HandleFunc("POST /products/{id}/restock", telemetry.WithHTTPRoute(handler.HandleProducts))
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      telemetry.NewHTTPHandler(mux, "gateway"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting gateway service", "port", cfg.Port)
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
