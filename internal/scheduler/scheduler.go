package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"crm_syncer/internal/domain"
)

// ErrAllTenantsUnauthorized is returned by a single run when no tenant could authenticate.
var ErrAllTenantsUnauthorized = errors.New("all tenants failed authentication")

// Syncer defines the interface for sync operations.
type Syncer interface {
	Sync(ctx context.Context) (*domain.RunStats, error)
}

type Scheduler struct {
	syncer     Syncer
	interval   time.Duration
	runTimeout time.Duration
	logger     *slog.Logger
}

// NewScheduler creates a scheduler. An interval of 0 runs a single sync.
func NewScheduler(syncer Syncer, interval, runTimeout time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		syncer:     syncer,
		interval:   interval,
		runTimeout: runTimeout,
		logger:     logger.With("component", "scheduler"),
	}
}

// Start runs a sync immediately. In single-run mode it returns that run's
// outcome; otherwise it keeps syncing on the interval until ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Info("running single sync")
		return s.runSync(ctx)
	}

	s.logger.Info("scheduler started", "interval", s.interval)

	_ = s.runSync(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			_ = s.runSync(ctx)
		}
	}
}

func (s *Scheduler) runSync(ctx context.Context) error {
	syncCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	stats, err := s.syncer.Sync(syncCtx)
	if err != nil {
		s.logger.Error("sync failed", "error", err)
		return err
	}

	failed := 0
	for _, t := range stats.Tenants {
		if t.Err != nil {
			failed++
		}
	}
	s.logger.Info("sync run finished",
		"tenants", len(stats.Tenants),
		"failed", failed,
		"duration", stats.Duration,
	)

	if n := len(stats.Tenants); n > 0 && stats.AuthFailures() == n {
		s.logger.Error("no tenant could authenticate", "tenants", n)
		return ErrAllTenantsUnauthorized
	}
	return nil
}
