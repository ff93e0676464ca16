package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/cache"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/domain"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/logger"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/repository"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/telemetry"
)

type WishlistService struct {
	repo    repository.StateRepository
	state   *stateLoader
	catalog ExistenceChecker
	metrics *telemetry.Metrics
	logger  *zap.Logger
}

func NewWishlistService(
	repo repository.StateRepository,
	c cache.StateCache,
	catalog ExistenceChecker,
	metrics *telemetry.Metrics,
	log *zap.Logger,
) *WishlistService {
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WishlistService{
		repo:    repo,
		state:   newStateLoader(repo, c, log),
		catalog: catalog,
		metrics: metrics,
		logger:  log,
	}
}

// GetWishlist prunes like CartService.GetCart.
func (s *WishlistService) GetWishlist(ctx context.Context, owner domain.Owner) ([]domain.WishlistLine, error) {
	state, err := s.state.load(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("get wishlist: %w", err)
	}
	if len(state.Wishlist) == 0 {
		return []domain.WishlistLine{}, nil
	}

	log := logger.FromContext(ctx, s.logger)
	existing, err := s.catalog.Existing(ctx, domain.WishlistRefs(state.Wishlist))
	if err != nil {
		log.Warn("catalog unavailable, serving wishlist unpruned", zap.Stringer("owner", owner), zap.Error(err))
		return append([]domain.WishlistLine{}, state.Wishlist...), nil
	}

	kept, stale := domain.SplitWishlist(state.Wishlist, existing)
	if len(stale) == 0 {
		return kept, nil
	}

	if err := s.repo.PruneWishlist(ctx, owner, stale); err != nil {
		log.Warn("failed to prune wishlist", zap.Stringer("owner", owner), zap.Error(err))
		return kept, nil
	}
	s.state.invalidate(ctx, owner)
	s.metrics.RecordPruned(ctx, "wishlist", len(stale))
	log.Info("pruned stale wishlist lines", zap.Stringer("owner", owner), zap.Int("count", len(stale)))

	return kept, nil
}

// AddItem reports whether ref was newly added. Adding a present item is a
// successful no-op.
func (s *WishlistService) AddItem(ctx context.Context, owner domain.Owner, ref domain.ItemRef) (bool, error) {
	if err := ref.Validate(); err != nil {
		return false, err
	}
	ok, err := s.catalog.Exists(ctx, ref)
	if err != nil {
		return false, fmt.Errorf("check catalog: %w", err)
	}
	if !ok {
		return false, fmt.Errorf("%w: %s", domain.ErrItemNotFound, ref)
	}

	added, err := s.repo.AddWishlistLine(ctx, owner, ref)
	if err != nil {
		logger.FromContext(ctx, s.logger).Error("repo add wishlist line failed",
			zap.Stringer("owner", owner), zap.Stringer("item", ref), zap.Error(err))
		return false, fmt.Errorf("add wishlist item: %w", err)
	}

	if added {
		s.state.invalidate(ctx, owner)
	}
	return added, nil
}

func (s *WishlistService) RemoveItem(ctx context.Context, owner domain.Owner, ref domain.ItemRef) error {
	if err := ref.Validate(); err != nil {
		return err
	}

	err := s.repo.RemoveWishlistLine(ctx, owner, ref)
	if errors.Is(err, repository.ErrLineNotFound) {
		return fmt.Errorf("%w: %s", domain.ErrItemNotInWishlist, ref)
	}
	if err != nil {
		logger.FromContext(ctx, s.logger).Error("repo remove wishlist line failed",
			zap.Stringer("owner", owner), zap.Stringer("item", ref), zap.Error(err))
		return fmt.Errorf("remove wishlist item: %w", err)
	}

	s.state.invalidate(ctx, owner)
	return nil
}

func (s *WishlistService) ClearWishlist(ctx context.Context, owner domain.Owner) error {
	if err := s.repo.ClearWishlist(ctx, owner); err != nil {
		logger.FromContext(ctx, s.logger).Error("repo clear wishlist failed",
			zap.Stringer("owner", owner), zap.Error(err))
		return fmt.Errorf("clear wishlist: %w", err)
	}

	s.state.invalidate(ctx, owner)
	return nil
}
