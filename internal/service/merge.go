package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/cache"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/domain"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/logger"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/repository"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/telemetry"
)

const (
	mergeTimeout = 30 * time.Second
	// maxMergeRounds bounds how often Merge re-reads an anonymous owner that
	// keeps changing under it.
	maxMergeRounds = 3
)

// FailureReporter publishes merges that could not complete so they can be
// retried later.
type FailureReporter interface {
	ReportMergeFailure(ctx context.Context, failure domain.MergeFailure) error
}

// MergeCoordinator folds an anonymous owner's cart and wishlist into an
// account when the visitor authenticates.
type MergeCoordinator struct {
	repo     repository.StateRepository
	cache    cache.StateCache
	reporter FailureReporter
	metrics  *telemetry.Metrics
	logger   *zap.Logger
	now      func() time.Time

	wg sync.WaitGroup
}

func NewMergeCoordinator(
	repo repository.StateRepository,
	c cache.StateCache,
	reporter FailureReporter,
	metrics *telemetry.Metrics,
	log *zap.Logger,
) *MergeCoordinator {
	if c == nil {
		c = cache.NopCache{}
	}
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &MergeCoordinator{
		repo:     repo,
		cache:    c,
		reporter: reporter,
		metrics:  metrics,
		logger:   log,
		now:      time.Now,
	}
}

// Merge folds the anonymous owner for token into account, then deletes the
// anonymous owner. A missing or expired anonymous owner is a no-op. The
// anonymous owner is deleted only at the version that was folded in; a write
// that lands in between is folded in by another round. Retrying after a
// partial failure never counts lines twice: the account remembers what each
// guest version already contributed.
func (m *MergeCoordinator) Merge(ctx context.Context, account domain.Owner, token string) (telemetry.MergeResult, error) {
	if account.Kind != domain.OwnerAccount || account.IsZero() {
		return telemetry.MergeFailed, fmt.Errorf("%w: merge target must be an account, got %s", domain.ErrValidation, account)
	}
	if token == "" {
		return telemetry.MergeNoop, nil
	}
	anon := domain.AnonymousOwner(token)
	log := logger.FromContext(ctx, m.logger).With(
		zap.Stringer("account", account),
		zap.Stringer("anonymous", anon))

	result := telemetry.MergeNoop
	for round := 0; round < maxMergeRounds; round++ {
		guest, err := m.repo.GetState(ctx, anon)
		if errors.Is(err, repository.ErrOwnerNotFound) {
			log.Debug("nothing to merge")
			return result, nil
		}
		if err != nil {
			return telemetry.MergeFailed, fmt.Errorf("%w: load anonymous state: %v", domain.ErrMergeFailed, err)
		}
		if guest.Kind != domain.OwnerAnonymous || guest.Expired(m.now()) {
			log.Debug("anonymous state expired, nothing to merge")
			return result, nil
		}

		applied, err := m.repo.MergeInto(ctx, account, guest)
		if err != nil {
			return telemetry.MergeFailed, fmt.Errorf("%w: apply to account: %v", domain.ErrMergeFailed, err)
		}
		if applied {
			result = telemetry.MergeApplied
			m.invalidate(ctx, account)
			log.Info("anonymous state merged",
				zap.Int64("guest_version", guest.Version),
				zap.Int("cart_lines", len(guest.Cart)),
				zap.Int("wishlist_lines", len(guest.Wishlist)))
		}

		deleted, err := m.repo.DeleteStateAtVersion(ctx, anon, guest.Version)
		if err != nil {
			return telemetry.MergeFailed, fmt.Errorf("%w: delete anonymous state: %v", domain.ErrMergeFailed, err)
		}
		if deleted {
			m.invalidate(ctx, anon)
			if !applied {
				log.Info("anonymous state already merged, removed leftover")
			}
			return result, nil
		}
		log.Debug("anonymous state changed during merge", zap.Int64("guest_version", guest.Version))
	}

	return telemetry.MergeFailed, fmt.Errorf("%w: anonymous state kept changing", domain.ErrMergeFailed)
}

// Dispatch runs Merge in the background so the caller's authentication
// response never waits on it or fails because of it. Failures are logged,
// counted and reported. The task keeps ctx's values but not its deadline.
func (m *MergeCoordinator) Dispatch(ctx context.Context, account domain.Owner, token string) {
	if token == "" {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mergeTimeout)
		defer cancel()
		_ = m.Run(ctx, account, token, 1)
	}()
}

// Run performs one merge attempt and handles its outcome. attempt numbers the
// try for the failure report.
func (m *MergeCoordinator) Run(ctx context.Context, account domain.Owner, token string, attempt int) error {
	result, err := m.Merge(ctx, account, token)
	m.metrics.RecordMerge(ctx, result)
	if err == nil {
		return nil
	}

	log := logger.FromContext(ctx, m.logger)
	log.Error("merge failed",
		zap.Stringer("account", account),
		zap.Stringer("anonymous", domain.AnonymousOwner(token)),
		zap.Int("attempt", attempt),
		zap.Error(err))

	if m.reporter == nil || !errors.Is(err, domain.ErrMergeFailed) {
		return err
	}
	failure := domain.MergeFailure{
		AccountID:      account.ID,
		AnonymousToken: token,
		Attempt:        attempt,
		Error:          err.Error(),
		OccurredAt:     m.now(),
	}
	if rerr := m.reporter.ReportMergeFailure(ctx, failure); rerr != nil {
		log.Error("failed to report merge failure", zap.Error(rerr))
	}
	return err
}

// Wait blocks until dispatched merges finish or ctx is done.
func (m *MergeCoordinator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MergeCoordinator) invalidate(ctx context.Context, owner domain.Owner) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
	defer cancel()
	if err := m.cache.Delete(ctx, owner); err != nil {
		logger.FromContext(ctx, m.logger).Warn("cache invalidate failed",
			zap.Stringer("owner", owner), zap.Error(err))
	}
}
