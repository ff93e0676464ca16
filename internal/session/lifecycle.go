// Package session manages anonymous owners: issuing their tokens, resolving
// them while they are live, sliding their expiry and sweeping expired ones.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/domain"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/repository"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/telemetry"
)

const DefaultTTL = 7 * 24 * time.Hour

type Lifecycle struct {
	repo    repository.SessionRepository
	ttl     time.Duration
	metrics *telemetry.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewLifecycle(repo repository.SessionRepository, ttl time.Duration, metrics *telemetry.Metrics, logger *zap.Logger) *Lifecycle {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lifecycle{
		repo:    repo,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (l *Lifecycle) WithClock(now func() time.Time) *Lifecycle {
	l.now = now
	return l
}

func (l *Lifecycle) TTL() time.Duration {
	return l.ttl
}

// Start issues a fresh token and persists an empty anonymous owner for it.
func (l *Lifecycle) Start(ctx context.Context) (domain.Owner, error) {
	owner := domain.AnonymousOwner(uuid.NewString())
	expiresAt := l.now().Add(l.ttl)

	if err := l.repo.CreateAnonymous(ctx, owner, expiresAt); err != nil {
		return domain.Owner{}, fmt.Errorf("start anonymous session: %w", err)
	}
	l.metrics.RecordSessionCreated(ctx)
	l.logger.Debug("anonymous session started",
		zap.Stringer("owner", owner),
		zap.Time("expires_at", expiresAt))
	return owner, nil
}

// Lookup resolves token to a live anonymous owner. Malformed, unknown and
// expired tokens all report false; only store failures are errors.
func (l *Lifecycle) Lookup(ctx context.Context, token string) (domain.Owner, bool, error) {
	if _, err := uuid.Parse(token); err != nil {
		return domain.Owner{}, false, nil
	}
	owner := domain.AnonymousOwner(token)

	state, err := l.repo.GetState(ctx, owner)
	if errors.Is(err, repository.ErrOwnerNotFound) {
		return domain.Owner{}, false, nil
	}
	if err != nil {
		return domain.Owner{}, false, fmt.Errorf("lookup anonymous session: %w", err)
	}
	if state.Expired(l.now()) {
		return domain.Owner{}, false, nil
	}

	if _, err := l.Touch(ctx, state); err != nil {
		l.logger.Warn("failed to extend anonymous session",
			zap.Stringer("owner", owner),
			zap.Error(err))
	}
	return owner, true, nil
}

// Touch slides the expiry of an anonymous state forward once less than half of
// the window remains, so active visitors keep their cart without a write on
// every request. It reports whether the expiry moved.
func (l *Lifecycle) Touch(ctx context.Context, state *domain.ShoppingState) (bool, error) {
	if state.Kind != domain.OwnerAnonymous || state.ExpiresAt == nil {
		return false, nil
	}
	now := l.now()
	if state.ExpiresAt.Sub(now) >= l.ttl/2 {
		return false, nil
	}
	if err := l.repo.TouchAnonymous(ctx, state.Owner(), now.Add(l.ttl)); err != nil {
		return false, fmt.Errorf("extend anonymous session: %w", err)
	}
	return true, nil
}
