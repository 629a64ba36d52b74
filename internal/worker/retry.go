package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var errUndeliverable = errors.New("undeliverable event")

// HandleFunc matches the consumer callback signature.
type HandleFunc func(ctx context.Context, topic string, payload []byte) error

// WithRetry retries a failing handler with exponential backoff for up to
// maxElapsed. Undeliverable events are logged and dropped so the offset
// still advances; transient errors that outlive the budget are returned.
func WithRetry(handle HandleFunc, maxElapsed time.Duration, logger *slog.Logger) HandleFunc {
	return func(ctx context.Context, topic string, payload []byte) error {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = 200 * time.Millisecond
		b.MaxElapsedTime = maxElapsed

		err := backoff.RetryNotify(
			func() error { return handle(ctx, topic, payload) },
			backoff.WithContext(b, ctx),
			func(err error, wait time.Duration) {
				logger.WarnContext(ctx, "event handling failed, retrying", "topic", topic, "error", err, "wait", wait)
			},
		)

		if errors.Is(err, errUndeliverable) {
			logger.ErrorContext(ctx, "dropping event", "topic", topic, "error", err)
			return nil
		}
		return err
	}
}
