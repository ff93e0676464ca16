package http

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/domain"
)

type MergeDispatcher interface {
	Dispatch(ctx context.Context, account domain.Owner, token string)
}

// SessionHandler serves the authentication boundary hook. The storefront
// calls it right after login or registration with the fresh bearer token and
// the visitor's anonymous token.
type SessionHandler struct {
	resolver  OwnerResolver
	merges    MergeDispatcher
	transport SessionTransport
	logger    *zap.Logger
}

func NewSessionHandler(resolver OwnerResolver, merges MergeDispatcher, transport SessionTransport, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{
		resolver:  resolver,
		merges:    merges,
		transport: transport,
		logger:    logger,
	}
}

type MergeResponse struct {
	Owner     OwnerDTO `json:"owner"`
	Scheduled bool     `json:"merge_scheduled"`
}

// Merge schedules the anonymous state to be folded into the account and
// answers 202 without waiting. The anonymous cookie is dropped either way.
func (h *SessionHandler) Merge(w http.ResponseWriter, r *http.Request) {
	bearer := bearerToken(r)
	if bearer == "" {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
		return
	}
	account, err := h.resolver.Account(bearer)
	if err != nil {
		handleError(w, r, h.logger, err)
		return
	}

	token := h.transport.token(r)
	if token != "" {
		h.merges.Dispatch(r.Context(), account, token)
		h.transport.clear(w)
	}

	respondJSON(w, http.StatusAccepted, MergeResponse{
		Owner:     OwnerDTO{Kind: account.Kind},
		Scheduled: token != "",
	})
}
