package http

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/domain"
)

type WishlistStore interface {
	GetWishlist(ctx context.Context, owner domain.Owner) ([]domain.WishlistLine, error)
	AddItem(ctx context.Context, owner domain.Owner, ref domain.ItemRef) (bool, error)
	RemoveItem(ctx context.Context, owner domain.Owner, ref domain.ItemRef) error
	ClearWishlist(ctx context.Context, owner domain.Owner) error
}

type WishlistHandler struct {
	wishlists WishlistStore
	timeout   time.Duration
	logger    *zap.Logger
}

func NewWishlistHandler(wishlists WishlistStore, timeout time.Duration, logger *zap.Logger) *WishlistHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WishlistHandler{
		wishlists: wishlists,
		timeout:   timeout,
		logger:    logger,
	}
}

type AddWishlistItemRequestDTO struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

type WishlistResponse struct {
	Owner OwnerDTO              `json:"owner"`
	Items []domain.WishlistLine `json:"items"`
	Count int                   `json:"count"`
}

func (h *WishlistHandler) GetWishlist(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := ownerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing owner")
		return
	}
	h.respondWishlist(ctx, w, r, owner, http.StatusOK)
}

// AddItem answers 201 when the item was added and 200 when it was already
// on the wishlist.
func (h *WishlistHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := ownerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing owner")
		return
	}

	var req AddWishlistItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	ref, err := domain.NewItemRef(req.Kind, req.ID)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	added, err := h.wishlists.AddItem(ctx, owner, ref)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	h.respondWishlist(ctx, w, r, owner, status)
}

func (h *WishlistHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := ownerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing owner")
		return
	}
	ref, err := itemRefFromPath(r)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	if err := h.wishlists.RemoveItem(ctx, owner, ref); err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	h.respondWishlist(ctx, w, r, owner, http.StatusOK)
}

func (h *WishlistHandler) ClearWishlist(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := ownerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing owner")
		return
	}

	if err := h.wishlists.ClearWishlist(ctx, owner); err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *WishlistHandler) respondWishlist(ctx context.Context, w http.ResponseWriter, r *http.Request, owner domain.Owner, status int) {
	lines, err := h.wishlists.GetWishlist(ctx, owner)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	if lines == nil {
		lines = []domain.WishlistLine{}
	}
	respondJSON(w, status, WishlistResponse{
		Owner: OwnerDTO{Kind: owner.Kind},
		Items: lines,
		Count: len(lines),
	})
}
