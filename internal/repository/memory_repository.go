package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/domain"
)

// MemoryRepository implements Repository with in-memory storage. Each method
// holds the lock for its whole read-modify-write, which gives it the same
// per-document atomicity as the Mongo updates.
type MemoryRepository struct {
	mu           sync.RWMutex
	states       map[string]*domain.ShoppingState // owner key -> state
	anonymousTTL time.Duration
	now          func() time.Time
}

func NewMemoryRepository(anonymousTTL time.Duration) *MemoryRepository {
	return &MemoryRepository{
		states:       make(map[string]*domain.ShoppingState),
		anonymousTTL: anonymousTTL,
		now:          time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (s *MemoryRepository) WithClock(now func() time.Time) *MemoryRepository {
	s.now = now
	return s
}

func cloneState(st *domain.ShoppingState) *domain.ShoppingState {
	c := *st
	c.Cart = append([]domain.CartLine{}, st.Cart...)
	c.Wishlist = append([]domain.WishlistLine{}, st.Wishlist...)
	c.MergedSessions = append([]domain.MergedSession(nil), st.MergedSessions...)
	if st.ExpiresAt != nil {
		exp := *st.ExpiresAt
		c.ExpiresAt = &exp
	}
	return &c
}

// stateFor returns the live document, creating it like an upsert would.
// Caller must hold the write lock.
func (s *MemoryRepository) stateFor(owner domain.Owner, now time.Time) *domain.ShoppingState {
	st, ok := s.states[owner.Key()]
	if ok {
		return st
	}
	st = domain.NewShoppingState(owner, now)
	if owner.Anonymous() {
		exp := now.Add(s.anonymousTTL)
		st.ExpiresAt = &exp
	}
	s.states[owner.Key()] = st
	return st
}

func touched(st *domain.ShoppingState, now time.Time) {
	st.Version++
	st.UpdatedAt = now
}

func (s *MemoryRepository) GetState(_ context.Context, owner domain.Owner) (*domain.ShoppingState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[owner.Key()]
	if !ok {
		return nil, ErrOwnerNotFound
	}
	return cloneState(st), nil
}

func (s *MemoryRepository) AddCartLine(_ context.Context, owner domain.Owner, ref domain.ItemRef, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	st := s.stateFor(owner, now)
	set := domain.NewCartSet(st.Cart)
	if err := set.Add(ref, quantity, now); err != nil {
		return err
	}
	st.Cart = set.Lines()
	touched(st, now)
	return nil
}

func (s *MemoryRepository) SetCartQuantity(_ context.Context, owner domain.Owner, ref domain.ItemRef, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[owner.Key()]
	if !ok {
		return ErrLineNotFound
	}
	set := domain.NewCartSet(st.Cart)
	if !set.Set(ref, quantity) {
		return ErrLineNotFound
	}
	st.Cart = set.Lines()
	touched(st, s.now())
	return nil
}

func (s *MemoryRepository) RemoveCartLine(_ context.Context, owner domain.Owner, ref domain.ItemRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[owner.Key()]
	if !ok {
		return ErrLineNotFound
	}
	set := domain.NewCartSet(st.Cart)
	if !set.Remove(ref) {
		return ErrLineNotFound
	}
	st.Cart = set.Lines()
	touched(st, s.now())
	return nil
}

func (s *MemoryRepository) ClearCart(_ context.Context, owner domain.Owner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.states[owner.Key()]; ok {
		st.Cart = []domain.CartLine{}
		touched(st, s.now())
	}
	return nil
}

func (s *MemoryRepository) PruneCart(_ context.Context, owner domain.Owner, stale []domain.ItemRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[owner.Key()]
	if !ok || len(stale) == 0 {
		return nil
	}
	set := domain.NewCartSet(st.Cart)
	for _, ref := range stale {
		set.Remove(ref)
	}
	st.Cart = set.Lines()
	touched(st, s.now())
	return nil
}

func (s *MemoryRepository) AddWishlistLine(_ context.Context, owner domain.Owner, ref domain.ItemRef) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	st := s.stateFor(owner, now)
	set := domain.NewWishlistSet(st.Wishlist)
	if !set.Add(ref, now) {
		return false, nil
	}
	st.Wishlist = set.Lines()
	touched(st, now)
	return true, nil
}

func (s *MemoryRepository) RemoveWishlistLine(_ context.Context, owner domain.Owner, ref domain.ItemRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[owner.Key()]
	if !ok {
		return ErrLineNotFound
	}
	set := domain.NewWishlistSet(st.Wishlist)
	if !set.Remove(ref) {
		return ErrLineNotFound
	}
	st.Wishlist = set.Lines()
	touched(st, s.now())
	return nil
}

func (s *MemoryRepository) ClearWishlist(_ context.Context, owner domain.Owner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.states[owner.Key()]; ok {
		st.Wishlist = []domain.WishlistLine{}
		touched(st, s.now())
	}
	return nil
}

func (s *MemoryRepository) PruneWishlist(_ context.Context, owner domain.Owner, stale []domain.ItemRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[owner.Key()]
	if !ok || len(stale) == 0 {
		return nil
	}
	set := domain.NewWishlistSet(st.Wishlist)
	for _, ref := range stale {
		set.Remove(ref)
	}
	st.Wishlist = set.Lines()
	touched(st, s.now())
	return nil
}

func (s *MemoryRepository) MergeInto(_ context.Context, target domain.Owner, guest *domain.ShoppingState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	st := s.stateFor(target, now)
	if !st.FoldGuest(guest) {
		return false, nil
	}
	touched(st, now)
	return true, nil
}

func (s *MemoryRepository) DeleteStateAtVersion(_ context.Context, owner domain.Owner, version int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[owner.Key()]
	if !ok || st.Version != version {
		return false, nil
	}
	delete(s.states, owner.Key())
	return true, nil
}

func (s *MemoryRepository) CreateAnonymous(_ context.Context, owner domain.Owner, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.states[owner.Key()]; ok {
		return fmt.Errorf("failed to create anonymous state: %s already exists", owner)
	}
	st := domain.NewShoppingState(owner, s.now())
	st.ExpiresAt = &expiresAt
	s.states[owner.Key()] = st
	return nil
}

func (s *MemoryRepository) TouchAnonymous(_ context.Context, owner domain.Owner, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[owner.Key()]
	if !ok || !owner.Anonymous() {
		return ErrOwnerNotFound
	}
	st.ExpiresAt = &expiresAt
	return nil
}

// DeleteExpiredAnonymous finds and removes anonymous states past their expiry.
func (s *MemoryRepository) DeleteExpiredAnonymous(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key, st := range s.states {
		if st.Kind == domain.OwnerAnonymous && st.Expired(now) {
			delete(s.states, key)
			n++
		}
	}
	return n, nil
}
