package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	busyRetries   = 3
	busyBaseDelay = 50 * time.Millisecond
)

// isConflict reports SQLite concurrency errors that warrant a retry.
func isConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// withRetry runs fn, retrying SQLITE_BUSY failures with exponential backoff (50ms, 100ms).
func withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for i := 0; i < busyRetries; i++ {
		err = fn()
		if err == nil || !isConflict(err) {
			return err
		}
		if i == busyRetries-1 {
			break
		}
		delay := busyBaseDelay * time.Duration(1<<i)
		slog.Debug("SQLite busy, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, busyRetries, err)
}
