package domain

import (
	"errors"
	"fmt"
)

// Error categories. Every concrete error below wraps exactly one of them, so
// callers can branch on errors.Is(err, ErrValidation) without listing sentinels.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrOwnerResolution = errors.New("owner could not be resolved")
	ErrMergeFailed     = errors.New("merge failed")
	ErrAuthInvalid     = errors.New("authentication credential invalid")
)

var (
	ErrInvalidItemRef    = fmt.Errorf("%w: invalid item reference", ErrValidation)
	ErrInvalidQuantity   = fmt.Errorf("%w: invalid quantity", ErrValidation)
	ErrQuantityLimit     = fmt.Errorf("%w: line would exceed %d units", ErrInvalidQuantity, MaxLineQuantity)
	ErrItemNotFound      = fmt.Errorf("%w: item does not exist in catalog", ErrNotFound)
	ErrItemNotInCart     = fmt.Errorf("%w: item not in cart", ErrNotFound)
	ErrItemNotInWishlist = fmt.Errorf("%w: item not in wishlist", ErrNotFound)
)
