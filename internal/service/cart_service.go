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

type CartService struct {
	repo    repository.StateRepository
	state   *stateLoader
	catalog ExistenceChecker
	metrics *telemetry.Metrics
	logger  *zap.Logger
}

func NewCartService(
	repo repository.StateRepository,
	c cache.StateCache,
	catalog ExistenceChecker,
	metrics *telemetry.Metrics,
	log *zap.Logger,
) *CartService {
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CartService{
		repo:    repo,
		state:   newStateLoader(repo, c, log),
		catalog: catalog,
		metrics: metrics,
		logger:  log,
	}
}

// GetCart returns the owner's lines minus those whose catalog item is gone.
// Stale lines are pulled from the store as a side effect. If the catalog
// cannot be reached the lines are returned unpruned.
func (s *CartService) GetCart(ctx context.Context, owner domain.Owner) ([]domain.CartLine, error) {
	state, err := s.state.load(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if len(state.Cart) == 0 {
		return []domain.CartLine{}, nil
	}

	log := logger.FromContext(ctx, s.logger)
	existing, err := s.catalog.Existing(ctx, domain.CartRefs(state.Cart))
	if err != nil {
		log.Warn("catalog unavailable, serving cart unpruned", zap.Stringer("owner", owner), zap.Error(err))
		return append([]domain.CartLine{}, state.Cart...), nil
	}

	kept, stale := domain.SplitCart(state.Cart, existing)
	if len(stale) == 0 {
		return kept, nil
	}

	if err := s.repo.PruneCart(ctx, owner, stale); err != nil {
		log.Warn("failed to prune cart", zap.Stringer("owner", owner), zap.Error(err))
		return kept, nil
	}
	s.state.invalidate(ctx, owner)
	s.metrics.RecordPruned(ctx, "cart", len(stale))
	log.Info("pruned stale cart lines", zap.Stringer("owner", owner), zap.Int("count", len(stale)))

	return kept, nil
}

// AddItem adds quantity of ref, incrementing an existing line.
func (s *CartService) AddItem(ctx context.Context, owner domain.Owner, ref domain.ItemRef, quantity int) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if quantity < 1 || quantity > domain.MaxLineQuantity {
		return fmt.Errorf("%w: quantity must be between 1 and %d, got %d", domain.ErrInvalidQuantity, domain.MaxLineQuantity, quantity)
	}
	if err := s.ensureExists(ctx, ref); err != nil {
		return err
	}

	err := s.repo.AddCartLine(ctx, owner, ref, quantity)
	if errors.Is(err, domain.ErrQuantityLimit) {
		return err
	}
	if err != nil {
		logger.FromContext(ctx, s.logger).Error("repo add cart line failed",
			zap.Stringer("owner", owner), zap.Stringer("item", ref), zap.Error(err))
		return fmt.Errorf("add cart item: %w", err)
	}

	s.state.invalidate(ctx, owner)
	return nil
}

// SetQuantity overwrites a line's quantity. Zero removes the line.
func (s *CartService) SetQuantity(ctx context.Context, owner domain.Owner, ref domain.ItemRef, quantity int) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if quantity < 0 || quantity > domain.MaxLineQuantity {
		return fmt.Errorf("%w: quantity must be between 0 and %d, got %d", domain.ErrInvalidQuantity, domain.MaxLineQuantity, quantity)
	}
	if quantity == 0 {
		return s.RemoveItem(ctx, owner, ref)
	}

	err := s.repo.SetCartQuantity(ctx, owner, ref, quantity)
	if errors.Is(err, repository.ErrLineNotFound) {
		return fmt.Errorf("%w: %s", domain.ErrItemNotInCart, ref)
	}
	if err != nil {
		logger.FromContext(ctx, s.logger).Error("repo set cart quantity failed",
			zap.Stringer("owner", owner), zap.Stringer("item", ref), zap.Error(err))
		return fmt.Errorf("set cart quantity: %w", err)
	}

	s.state.invalidate(ctx, owner)
	return nil
}

func (s *CartService) RemoveItem(ctx context.Context, owner domain.Owner, ref domain.ItemRef) error {
	if err := ref.Validate(); err != nil {
		return err
	}

	err := s.repo.RemoveCartLine(ctx, owner, ref)
	if errors.Is(err, repository.ErrLineNotFound) {
		return fmt.Errorf("%w: %s", domain.ErrItemNotInCart, ref)
	}
	if err != nil {
		logger.FromContext(ctx, s.logger).Error("repo remove cart line failed",
			zap.Stringer("owner", owner), zap.Stringer("item", ref), zap.Error(err))
		return fmt.Errorf("remove cart item: %w", err)
	}

	s.state.invalidate(ctx, owner)
	return nil
}

// ClearCart empties the cart. An already empty or absent cart is not an error.
func (s *CartService) ClearCart(ctx context.Context, owner domain.Owner) error {
	if err := s.repo.ClearCart(ctx, owner); err != nil {
		logger.FromContext(ctx, s.logger).Error("repo clear cart failed",
			zap.Stringer("owner", owner), zap.Error(err))
		return fmt.Errorf("clear cart: %w", err)
	}

	s.state.invalidate(ctx, owner)
	return nil
}

func (s *CartService) ensureExists(ctx context.Context, ref domain.ItemRef) error {
	ok, err := s.catalog.Exists(ctx, ref)
	if err != nil {
		return fmt.Errorf("check catalog: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrItemNotFound, ref)
	}
	return nil
}
