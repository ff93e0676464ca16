package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/repository"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/telemetry"
)

// Sweeper periodically deletes expired anonymous owners. With the Mongo
// store it backs up the TTL monitor; with the memory store it is the only
// collector.
type Sweeper struct {
	repo     repository.SessionRepository
	interval time.Duration
	metrics  *telemetry.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewSweeper(repo repository.SessionRepository, interval time.Duration, metrics *telemetry.Metrics, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		repo:     repo,
		interval: interval,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("session sweeper started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("session sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpiredAnonymous(ctx, s.now())
	if err != nil {
		return 0, err
	}
	s.metrics.RecordSessionsSwept(ctx, n)
	if n > 0 {
		s.logger.Info("expired anonymous sessions removed", zap.Int64("count", n))
	}
	return n, nil
}
