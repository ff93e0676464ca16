package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/cache"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/domain"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/logger"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/repository"
)

// ExistenceChecker is implemented by catalog.Checker.
type ExistenceChecker interface {
	Existing(ctx context.Context, refs []domain.ItemRef) (map[domain.ItemRef]struct{}, error)
	Exists(ctx context.Context, ref domain.ItemRef) (bool, error)
}

const (
	cacheOpTimeout = time.Second
	loadTimeout    = 5 * time.Second
)

// stateLoader reads owner documents through the cache. Each service builds
// its own loader, so concurrent loads collapse per service; the cart and
// wishlist services still share cache entries when given the same cache.
type stateLoader struct {
	repo   repository.StateRepository
	cache  cache.StateCache
	logger *zap.Logger
	sfg    singleflight.Group // Prevents cache stampede
}

func newStateLoader(repo repository.StateRepository, c cache.StateCache, log *zap.Logger) *stateLoader {
	if c == nil {
		c = cache.NopCache{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &stateLoader{repo: repo, cache: c, logger: log}
}

// load returns the owner's state, or an empty one when nothing is stored.
// The result may be shared between concurrent callers and must not be mutated.
// A caller giving up only abandons its own wait; the shared load keeps going
// for the others, bounded by loadTimeout.
func (l *stateLoader) load(ctx context.Context, owner domain.Owner) (*domain.ShoppingState, error) {
	log := logger.FromContext(ctx, l.logger)

	ch := l.sfg.DoChan(owner.Key(), func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		state, err := l.cache.Get(ctx, owner)
		if err == nil {
			return state, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Warn("cache get failed", zap.Stringer("owner", owner), zap.Error(err))
		}

		state, err = l.repo.GetState(ctx, owner)
		if errors.Is(err, repository.ErrOwnerNotFound) {
			return domain.NewShoppingState(owner, time.Now()), nil
		}
		if err != nil {
			return nil, err
		}

		setCtx, cancelSet := context.WithTimeout(ctx, cacheOpTimeout)
		defer cancelSet()
		if err := l.cache.Set(setCtx, owner, state); err != nil {
			log.Warn("cache set failed", zap.Stringer("owner", owner), zap.Error(err))
		}
		return state, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.ShoppingState), nil
	}
}

func (l *stateLoader) invalidate(ctx context.Context, owner domain.Owner) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
	defer cancel()
	if err := l.cache.Delete(ctx, owner); err != nil {
		logger.FromContext(ctx, l.logger).Warn("cache invalidate failed",
			zap.Stringer("owner", owner), zap.Error(err))
	}
}
