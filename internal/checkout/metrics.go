package checkout

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type engineMetrics struct {
	orders        metric.Int64Counter
	cancellations metric.Int64Counter
	duration      metric.Float64Histogram
}

func newEngineMetrics() (*engineMetrics, error) {
	meter := otel.Meter("github.com/joao-fontenele/posflow/checkout")

	orders, err := meter.Int64Counter("checkout.orders",
		metric.WithDescription("Checkout attempts by outcome"),
	)
	if err != nil {
		return nil, err
	}

	cancellations, err := meter.Int64Counter("checkout.cancellations",
		metric.WithDescription("Cancellation requests by outcome"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("checkout.duration",
		metric.WithDescription("Duration of checkout attempts"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &engineMetrics{
		orders:        orders,
		cancellations: cancellations,
		duration:      duration,
	}, nil
}

func (m *engineMetrics) recordOrder(ctx context.Context, err error, elapsed time.Duration) {
	outcome := metric.WithAttributes(attribute.String("outcome", Code(err)))
	m.orders.Add(ctx, 1, outcome)
	m.duration.Record(ctx, elapsed.Seconds(), outcome)
}

func (m *engineMetrics) recordCancellation(ctx context.Context, result *CancelResult, err error) {
	outcome := Code(err)
	if result != nil && result.AlreadyCancelled {
		outcome = "already_cancelled"
	}
	m.cancellations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
