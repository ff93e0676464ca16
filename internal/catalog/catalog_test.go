package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/domain"
)

type fakeCatalog struct {
	mu    sync.Mutex
	items map[domain.ItemKind]map[string]struct{}
	calls map[domain.ItemKind]int
	err   error
}

func newFakeCatalog(refs ...domain.ItemRef) *fakeCatalog {
	f := &fakeCatalog{
		items: make(map[domain.ItemKind]map[string]struct{}),
		calls: make(map[domain.ItemKind]int),
	}
	for _, r := range refs {
		if f.items[r.Kind] == nil {
			f.items[r.Kind] = make(map[string]struct{})
		}
		f.items[r.Kind][r.ID] = struct{}{}
	}
	return f
}

func (f *fakeCatalog) ExistsBatch(_ context.Context, kind domain.ItemKind, ids []string) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[kind]++
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]struct{})
	for _, id := range ids {
		if _, ok := f.items[kind][id]; ok {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

func TestChecker_Existing_OneCallPerKind(t *testing.T) {
	p1 := domain.ItemRef{Kind: domain.KindProduct, ID: "p1"}
	p2 := domain.ItemRef{Kind: domain.KindProduct, ID: "p2"}
	c1 := domain.ItemRef{Kind: domain.KindCollection, ID: "c1"}
	ghost := domain.ItemRef{Kind: domain.KindCollection, ID: "p1"}

	cat := newFakeCatalog(p1, p2, c1)
	checker := NewChecker(cat)

	got, err := checker.Existing(context.Background(), []domain.ItemRef{p1, p2, p1, c1, ghost})
	require.NoError(t, err)

	assert.Len(t, got, 3)
	assert.Contains(t, got, p1)
	assert.Contains(t, got, c1)
	assert.NotContains(t, got, ghost, "existence is per kind")
	assert.Equal(t, 1, cat.calls[domain.KindProduct])
	assert.Equal(t, 1, cat.calls[domain.KindCollection])
}

func TestChecker_Existing_Empty(t *testing.T) {
	cat := newFakeCatalog()
	got, err := NewChecker(cat).Existing(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, cat.calls)
}

func TestChecker_Existing_PropagatesError(t *testing.T) {
	cat := newFakeCatalog()
	cat.err = errors.New("catalog down")

	_, err := NewChecker(cat).Existing(context.Background(), []domain.ItemRef{{Kind: domain.KindProduct, ID: "p1"}})
	assert.ErrorIs(t, err, cat.err)
}

func TestChecker_Exists(t *testing.T) {
	p1 := domain.ItemRef{Kind: domain.KindProduct, ID: "p1"}
	checker := NewChecker(newFakeCatalog(p1))

	ok, err := checker.Exists(context.Background(), p1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = checker.Exists(context.Background(), domain.ItemRef{Kind: domain.KindCollection, ID: "p1"})
	require.NoError(t, err)
	assert.False(t, ok)
}
