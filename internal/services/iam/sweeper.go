package iam

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often RunSweeper removes expired credentials.
const DefaultSweepInterval = 5 * time.Minute

// RunSweeper deletes expired tokens and sessions immediately and then every
// interval until ctx is cancelled. It blocks; run it in a goroutine.
func RunSweeper(ctx context.Context, svc Service, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	Sweep(ctx, svc, logger)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			Sweep(ctx, svc, logger)
		case <-ctx.Done():
			logger.Info("stopping expiry sweeper")
			return
		}
	}
}

// Sweep runs one expiry pass and logs the outcome.
func Sweep(ctx context.Context, svc Service, logger *slog.Logger) {
	tokens, sessions, err := svc.SweepExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error("expiry sweep failed", "error", err)
		}
		return
	}
	if tokens > 0 || sessions > 0 {
		logger.Info("expired credentials removed", "tokens", tokens, "sessions", sessions)
	}
}
