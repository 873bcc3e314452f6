package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper enforces persisted deadlines: overdue tests are stopped and expired sessions
// cleared, independent of which instance armed them.
type Sweeper struct {
	lifecycle *LifecycleController
	sessions  *SessionRegistry
	resync    PresenceResyncer
	interval  time.Duration
	logger    *zap.Logger
}

func NewSweeper(lifecycle *LifecycleController, sessions *SessionRegistry, interval time.Duration, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{lifecycle: lifecycle, sessions: sessions, interval: interval, logger: logger}
}

// ResyncPresence makes every sweep also reconcile the presence relay with its snapshot.
func (s *Sweeper) ResyncPresence(r PresenceResyncer) *Sweeper {
	s.resync = r
	return s
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs one pass. Failures are logged and retried on the next tick.
func (s *Sweeper) Sweep(ctx context.Context) {
	if s.lifecycle != nil {
		if n, err := s.lifecycle.ExpireOverdue(ctx); err != nil {
			s.logger.Warn("expire overdue tests", zap.Error(err))
		} else if n > 0 {
			s.logger.Info("overdue tests stopped", zap.Int("count", n))
		}
	}
	if s.sessions != nil {
		if _, err := s.sessions.SweepExpired(ctx); err != nil {
			s.logger.Warn("sweep expired sessions", zap.Error(err))
		}
	}
	if s.resync != nil {
		if err := s.resync.Resync(ctx); err != nil {
			s.logger.Warn("resync presence", zap.Error(err))
		}
	}
}
