package notification

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically purges expired notifications until its context is cancelled.
type Sweeper struct {
	svc      Service
	interval time.Duration
	log      *slog.Logger
}

func NewSweeper(svc Service, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{svc: svc, interval: interval, log: logger}
}

// Run blocks, sweeping once per interval. A failed sweep is logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	purged, err := s.svc.SweepExpired(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "expiry sweep failed", "err", err)
		return
	}
	if purged > 0 {
		s.log.InfoContext(ctx, "expired notifications purged", "count", purged)
	}
}
