package service

import (
	"context"
	"sync"
	"time"

	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/cache"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/domain"
	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/repository"
)

var (
	chair  = domain.ItemRef{Kind: domain.KindProduct, ID: "chair-lund"}
	table  = domain.ItemRef{Kind: domain.KindProduct, ID: "table-bergen"}
	nordic = domain.ItemRef{Kind: domain.KindCollection, ID: "nordic-living"}
)

type fakeChecker struct {
	mu    sync.Mutex
	items map[domain.ItemRef]struct{}
	err   error
}

func newFakeChecker(refs ...domain.ItemRef) *fakeChecker {
	f := &fakeChecker{items: make(map[domain.ItemRef]struct{})}
	for _, r := range refs {
		f.items[r] = struct{}{}
	}
	return f
}

func (f *fakeChecker) remove(ref domain.ItemRef) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, ref)
}

func (f *fakeChecker) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeChecker) Existing(_ context.Context, refs []domain.ItemRef) (map[domain.ItemRef]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[domain.ItemRef]struct{})
	for _, r := range refs {
		if _, ok := f.items[r]; ok {
			out[r] = struct{}{}
		}
	}
	return out, nil
}

func (f *fakeChecker) Exists(ctx context.Context, ref domain.ItemRef) (bool, error) {
	found, err := f.Existing(ctx, []domain.ItemRef{ref})
	if err != nil {
		return false, err
	}
	_, ok := found[ref]
	return ok, nil
}

type mockCache struct {
	m       sync.RWMutex
	states  map[string]*domain.ShoppingState
	deletes int
}

func newMockCache() *mockCache {
	return &mockCache{states: make(map[string]*domain.ShoppingState)}
}

func (m *mockCache) Get(_ context.Context, owner domain.Owner) (*domain.ShoppingState, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	st, ok := m.states[owner.Key()]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return st, nil
}

func (m *mockCache) Set(_ context.Context, owner domain.Owner, st *domain.ShoppingState) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.states[owner.Key()] = st
	return nil
}

func (m *mockCache) Delete(_ context.Context, owner domain.Owner) error {
	m.m.Lock()
	defer m.m.Unlock()
	delete(m.states, owner.Key())
	m.deletes++
	return nil
}

func (m *mockCache) has(owner domain.Owner) bool {
	m.m.RLock()
	defer m.m.RUnlock()
	_, ok := m.states[owner.Key()]
	return ok
}

// faultyRepo wraps a real store and fails selected calls.
type faultyRepo struct {
	*repository.MemoryRepository
	mu          sync.Mutex
	deleteErr   error
	mergeErr    error
	getStateErr error
	pruneErr    error
	// afterMerge runs once a MergeInto call has been applied to the store.
	afterMerge func()
	// beforeGet runs at the start of every GetState call; an error fails it.
	beforeGet func(ctx context.Context) error
}

func newFaultyRepo() *faultyRepo {
	return &faultyRepo{MemoryRepository: repository.NewMemoryRepository(time.Hour)}
}

func (f *faultyRepo) set(fn func(*faultyRepo)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *faultyRepo) GetState(ctx context.Context, owner domain.Owner) (*domain.ShoppingState, error) {
	f.mu.Lock()
	err, before := f.getStateErr, f.beforeGet
	f.mu.Unlock()
	if err == nil && before != nil {
		err = before(ctx)
	}
	if err != nil {
		return nil, err
	}
	return f.MemoryRepository.GetState(ctx, owner)
}

func (f *faultyRepo) DeleteStateAtVersion(ctx context.Context, owner domain.Owner, version int64) (bool, error) {
	f.mu.Lock()
	err := f.deleteErr
	f.mu.Unlock()
	if err != nil {
		return false, err
	}
	return f.MemoryRepository.DeleteStateAtVersion(ctx, owner, version)
}

func (f *faultyRepo) MergeInto(ctx context.Context, target domain.Owner, guest *domain.ShoppingState) (bool, error) {
	f.mu.Lock()
	err, after := f.mergeErr, f.afterMerge
	f.afterMerge = nil
	f.mu.Unlock()
	if err != nil {
		return false, err
	}
	applied, err := f.MemoryRepository.MergeInto(ctx, target, guest)
	if err == nil && after != nil {
		after()
	}
	return applied, err
}

func (f *faultyRepo) PruneCart(ctx context.Context, owner domain.Owner, stale []domain.ItemRef) error {
	f.mu.Lock()
	err := f.pruneErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.MemoryRepository.PruneCart(ctx, owner, stale)
}
