package catalog

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/domain"
)

// Catalog answers existence queries against one catalog backend.
type Catalog interface {
	// ExistsBatch returns the subset of ids that exist for kind.
	ExistsBatch(ctx context.Context, kind domain.ItemKind, ids []string) (map[string]struct{}, error)
}

// Checker resolves which item references still point at live catalog
// entries. It issues at most one query per kind.
type Checker struct {
	catalog Catalog
}

func NewChecker(c Catalog) *Checker {
	return &Checker{catalog: c}
}

// Existing returns the refs that still resolve. Duplicates are collapsed.
func (c *Checker) Existing(ctx context.Context, refs []domain.ItemRef) (map[domain.ItemRef]struct{}, error) {
	out := make(map[domain.ItemRef]struct{}, len(refs))
	if len(refs) == 0 {
		return out, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for kind, ids := range domain.PartitionByKind(refs) {
		g.Go(func() error {
			found, err := c.catalog.ExistsBatch(gctx, kind, ids)
			if err != nil {
				return fmt.Errorf("catalog lookup for %s: %w", kind, err)
			}
			mu.Lock()
			defer mu.Unlock()
			for id := range found {
				out[domain.ItemRef{Kind: kind, ID: id}] = struct{}{}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Exists is the single-ref form used on the add paths.
func (c *Checker) Exists(ctx context.Context, ref domain.ItemRef) (bool, error) {
	found, err := c.catalog.ExistsBatch(ctx, ref.Kind, []string{ref.ID})
	if err != nil {
		return false, fmt.Errorf("catalog lookup for %s: %w", ref, err)
	}
	_, ok := found[ref.ID]
	return ok, nil
}
