package http

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/domain"
)

type CartStore interface {
	GetCart(ctx context.Context, owner domain.Owner) ([]domain.CartLine, error)
	AddItem(ctx context.Context, owner domain.Owner, ref domain.ItemRef, quantity int) error
	SetQuantity(ctx context.Context, owner domain.Owner, ref domain.ItemRef, quantity int) error
	RemoveItem(ctx context.Context, owner domain.Owner, ref domain.ItemRef) error
	ClearCart(ctx context.Context, owner domain.Owner) error
}

type CartHandler struct {
	carts   CartStore
	timeout time.Duration
	logger  *zap.Logger
}

func NewCartHandler(carts CartStore, timeout time.Duration, logger *zap.Logger) *CartHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
		logger:  logger,
	}
}

type AddCartItemRequestDTO struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
	// Quantity defaults to 1 when omitted.
	Quantity *int `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity *int `json:"quantity"`
}

type CartResponse struct {
	Owner         OwnerDTO          `json:"owner"`
	Items         []domain.CartLine `json:"items"`
	Count         int               `json:"count"`
	TotalQuantity int               `json:"total_quantity"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := ownerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing owner")
		return
	}
	h.respondCart(ctx, w, r, owner, http.StatusOK)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := ownerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing owner")
		return
	}

	var req AddCartItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	ref, err := domain.NewItemRef(req.Kind, req.ID)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	if err := h.carts.AddItem(ctx, owner, ref, quantity); err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	h.respondCart(ctx, w, r, owner, http.StatusCreated)
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
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

	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity is required")
		return
	}

	if err := h.carts.SetQuantity(ctx, owner, ref, *req.Quantity); err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	h.respondCart(ctx, w, r, owner, http.StatusOK)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
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

	if err := h.carts.RemoveItem(ctx, owner, ref); err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	h.respondCart(ctx, w, r, owner, http.StatusOK)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := ownerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing owner")
		return
	}

	if err := h.carts.ClearCart(ctx, owner); err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) respondCart(ctx context.Context, w http.ResponseWriter, r *http.Request, owner domain.Owner, status int) {
	lines, err := h.carts.GetCart(ctx, owner)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}
	if lines == nil {
		lines = []domain.CartLine{}
	}
	respondJSON(w, status, CartResponse{
		Owner:         OwnerDTO{Kind: owner.Kind},
		Items:         lines,
		Count:         len(lines),
		TotalQuantity: domain.TotalQuantity(lines),
	})
}
