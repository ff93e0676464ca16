package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/thegr8khalee/em-furniture-and-interior-sub001/internal/domain"
)

// decodeJSON writes the error response itself and reports whether the
// handler may continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
			return false
		}
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

func itemRefFromPath(r *http.Request) (domain.ItemRef, error) {
	return domain.NewItemRef(chi.URLParam(r, "kind"), chi.URLParam(r, "id"))
}

type OwnerDTO struct {
	Kind domain.OwnerKind `json:"kind"`
}
