package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/domain"
)

// BreakerCatalog stops calling a failing catalog for a cool-down period and
// fails fast with gobreaker.ErrOpenState instead.
type BreakerCatalog struct {
	next Catalog
	cb   *gobreaker.CircuitBreaker[map[string]struct{}]
}

func NewBreakerCatalog(next Catalog, maxFailures uint32, timeout time.Duration, log *zap.Logger) *BreakerCatalog {
	if maxFailures == 0 {
		maxFailures = 5
	}
	if log == nil {
		log = zap.NewNop()
	}
	settings := gobreaker.Settings{
		Name:        "catalog",
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		// a cancelled caller says nothing about catalog health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	return &BreakerCatalog{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[map[string]struct{}](settings),
	}
}

func (b *BreakerCatalog) ExistsBatch(ctx context.Context, kind domain.ItemKind, ids []string) (map[string]struct{}, error) {
	return b.cb.Execute(func() (map[string]struct{}, error) {
		return b.next.ExistsBatch(ctx, kind, ids)
	})
}

func (b *BreakerCatalog) State() gobreaker.State {
	return b.cb.State()
}
