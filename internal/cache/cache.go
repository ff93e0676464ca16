package cache

import (
	"context"
	"errors"

	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/domain"
)

// StateCache is a read-through cache of owner documents keyed by owner.
type StateCache interface {
	Get(ctx context.Context, owner domain.Owner) (*domain.ShoppingState, error)
	Set(ctx context.Context, owner domain.Owner, state *domain.ShoppingState) error
	Delete(ctx context.Context, owner domain.Owner) error
}

var ErrCacheMiss = errors.New("cache miss")

// NopCache always misses. It stands in when Redis is disabled.
type NopCache struct{}

func (NopCache) Get(context.Context, domain.Owner) (*domain.ShoppingState, error) {
	return nil, ErrCacheMiss
}

func (NopCache) Set(context.Context, domain.Owner, *domain.ShoppingState) error { return nil }

func (NopCache) Delete(context.Context, domain.Owner) error { return nil }
