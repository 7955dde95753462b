package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/neonspire/docqa/internal/store"
)

const ttlWorkerInterval = time.Minute

// CleanupCallback is called for each session removed by the TTL worker.
type CleanupCallback func(sessionID string)

// StartTTLWorker runs a background goroutine that periodically deletes sessions
// idle for longer than ttl.
func StartTTLWorker(ctx context.Context, repo store.Repository, ttl time.Duration, onCleanup CleanupCallback) {
	interval := min(ttlWorkerInterval, ttl)
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("TTL worker started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				CleanupExpiredSessions(ctx, repo, ttl, onCleanup)
			case <-ctx.Done():
				slog.Info("TTL worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// CleanupExpiredSessions performs one sweep and returns the number of sessions removed.
func CleanupExpiredSessions(ctx context.Context, repo store.Repository, ttl time.Duration, onCleanup CleanupCallback) int {
	expired, err := repo.DeleteExpiredSessions(ctx, ttl)
	if err != nil {
		slog.Error("TTL worker failed to delete expired sessions", "error", err)
		return 0
	}
	if len(expired) == 0 {
		return 0
	}

	for _, sessionID := range expired {
		slog.Info("TTL worker removed session", "session_id", sessionID)
		if onCleanup != nil {
			onCleanup(sessionID)
		}
	}
	slog.Info("TTL worker cleanup completed", "cleaned", len(expired))
	return len(expired)
}
