// Package scheduler triggers the sheet sync on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"reviewdash/api/internal/logging"
	"reviewdash/api/internal/syncer"
)

type Syncer interface {
	Sync(ctx context.Context, trigger string) (syncer.Report, error)
}

type Scheduler struct {
	syncer     Syncer
	interval   time.Duration
	runOnStart bool
	logger     *zap.Logger
}

func New(s Syncer, interval time.Duration, runOnStart bool, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		syncer:     s,
		interval:   interval,
		runOnStart: runOnStart,
		logger:     logging.OrNop(logger),
	}
}

// Run blocks until ctx is cancelled. A non-positive interval disables
// periodic syncs but still honours runOnStart.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.runOnStart {
		s.syncOnce(ctx)
	}
	if s.interval <= 0 {
		s.logger.Info("periodic sync disabled")
		<-ctx.Done()
		return nil
	}

	s.logger.Info("periodic sync scheduled", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.syncOnce(ctx)
		}
	}
}

func (s *Scheduler) syncOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	_, err := s.syncer.Sync(ctx, syncer.TriggerScheduled)
	switch {
	case err == nil:
	case errors.Is(err, syncer.ErrSyncInProgress):
		s.logger.Info("scheduled sync skipped, another sync is running")
	case ctx.Err() != nil:
		s.logger.Info("scheduled sync interrupted by shutdown")
	default:
		// The orchestrator already logged the failure with its run id.
		s.logger.Debug("scheduled sync failed", zap.Error(err))
	}
}
