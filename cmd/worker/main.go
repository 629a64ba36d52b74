package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joao-fontenele/posflow/internal/config"
	"github.com/joao-fontenele/posflow/internal/domain"
	"github.com/joao-fontenele/posflow/internal/messaging"
	"github.com/joao-fontenele/posflow/internal/telemetry"
	"github.com/joao-fontenele/posflow/internal/worker"
)

const serviceVersion = "0.1.0"

func main() {
	cfg, err := config.Load("")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := cfg.Logger()

	if err := cfg.Require("KAFKA_BROKERS", "NOTIFY_SERVICE_URL", "INVENTORY_SERVICE_URL"); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "worker", serviceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	topics := []string{domain.TopicInvoiceCreated, domain.TopicInvoiceCancelled}
	consumer := messaging.NewConsumer(cfg.KafkaBrokers, topics, "receipt-worker")
	defer func() { _ = consumer.Close() }()

	notifier := worker.NewReceiptNotifier(
		cfg.NotifyServiceURL,
		cfg.InventoryServiceURL,
		cfg.CompanyName,
		cfg.CountryCode,
		telemetry.NewHTTPClient(10*time.Second),
		logger,
	)
	handle := worker.WithRetry(notifier.Handle, 30*time.Second, logger)

	logger.Info("starting receipt worker", "brokers", cfg.KafkaBrokers, "topics", topics)

	if err := consumer.Consume(ctx, messaging.Handler(handle)); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			logger.Info("consumer stopped")
			return
		}
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
}
