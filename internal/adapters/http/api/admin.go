package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/ekpsearch/internal/domain/search"
)

// AdminDependencies defines the interface for index maintenance.
type AdminDependencies interface {
	Rebuild(ctx context.Context) (search.Stats, error)
}

// AdminHandler handles maintenance requests.
type AdminHandler struct {
	deps AdminDependencies
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps AdminDependencies) *AdminHandler {
	return &AdminHandler{deps: deps}
}

// HandleReindex handles POST /admin/reindex requests. The corpus is reloaded
// from the store and the index republished before the response is written.
func (h *AdminHandler) HandleReindex(w http.ResponseWriter, r *http.Request) {
	const op = "api.reindex"
	st, err := h.deps.Rebuild(r.Context())
	switch {
	case errors.Is(err, search.ErrEmptyCorpus):
		writeError(w, r, http.StatusUnprocessableEntity, "empty_corpus", WrapKind(op, ErrBadRequest, err))
		return
	case errors.Is(err, search.ErrStoreUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
		return
	case err != nil:
		writeError(w, r, http.StatusInternalServerError, "internal_error", WrapKind(op, ErrUnavailable, err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}
