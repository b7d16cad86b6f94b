package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// withRetry runs fn up to maxAttempts times with linear backoff between
// attempts (delay = baseDelay * attempt number). Any error counts as
// retryable; the sleep honors context cancellation. After the last attempt
// the final error is returned wrapped with the attempt count.
func withRetry(ctx context.Context, logger *slog.Logger, name string,
	maxAttempts int, baseDelay time.Duration, fn func() error) error {

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		logger.Warn("Transcription attempt failed",
			slog.String("engine", name),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxAttempts),
			slog.String("error", lastErr.Error()),
		)

		if attempt < maxAttempts {
			delay := baseDelay * time.Duration(attempt)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("transcription failed after %d attempts: %w", maxAttempts, lastErr)
}
