package repository

import (
	"context"
	"errors"
	"time"

	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/domain"
)

var (
	ErrOwnerNotFound          = errors.New("owner state not found")
	ErrLineNotFound           = errors.New("line not found")
	ErrConcurrentModification = errors.New("owner state changed concurrently")
)

const (
	// maxMergedSessions bounds the merged_sessions history kept per account.
	maxMergedSessions = domain.MaxMergedSessions
	// maxAttempts bounds the retry loops of upserts and compare-and-swap merges.
	maxAttempts = 5
)

// StateRepository persists one ShoppingState document per owner. Every
// mutating method is a single atomic update of that document, so callers never
// fetch-then-overwrite.
type StateRepository interface {
	GetState(ctx context.Context, owner domain.Owner) (*domain.ShoppingState, error)

	AddCartLine(ctx context.Context, owner domain.Owner, ref domain.ItemRef, quantity int) error
	SetCartQuantity(ctx context.Context, owner domain.Owner, ref domain.ItemRef, quantity int) error
	RemoveCartLine(ctx context.Context, owner domain.Owner, ref domain.ItemRef) error
	ClearCart(ctx context.Context, owner domain.Owner) error
	PruneCart(ctx context.Context, owner domain.Owner, stale []domain.ItemRef) error

	// AddWishlistLine reports whether the line was inserted; an already
	// present ref is not an error.
	AddWishlistLine(ctx context.Context, owner domain.Owner, ref domain.ItemRef) (bool, error)
	RemoveWishlistLine(ctx context.Context, owner domain.Owner, ref domain.ItemRef) error
	ClearWishlist(ctx context.Context, owner domain.Owner) error
	PruneWishlist(ctx context.Context, owner domain.Owner, stale []domain.ItemRef) error

	// MergeInto folds the guest state into target and records the guest
	// version as merged, in one compare-and-swap. Only what that guest has not
	// contributed before is added; it returns false without writing when the
	// guest version was already merged into target.
	MergeInto(ctx context.Context, target domain.Owner, guest *domain.ShoppingState) (bool, error)

	// DeleteStateAtVersion removes the document only while it is still at
	// version. It reports false when the document changed or is gone.
	DeleteStateAtVersion(ctx context.Context, owner domain.Owner, version int64) (bool, error)
}

// SessionRepository is the anonymous-identity slice of the store.
type SessionRepository interface {
	GetState(ctx context.Context, owner domain.Owner) (*domain.ShoppingState, error)
	CreateAnonymous(ctx context.Context, owner domain.Owner, expiresAt time.Time) error
	TouchAnonymous(ctx context.Context, owner domain.Owner, expiresAt time.Time) error
	DeleteExpiredAnonymous(ctx context.Context, now time.Time) (int64, error)
}

// Repository is implemented by every backing store.
type Repository interface {
	StateRepository
	SessionRepository
}
