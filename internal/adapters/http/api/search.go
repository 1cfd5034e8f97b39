package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/ekpsearch/internal/domain/model"
	"github.com/okian/ekpsearch/internal/domain/search"
)

const noMatchMessage = "no events found matching the keywords"

// SearchDependencies defines the interface for keyword search.
type SearchDependencies interface {
	Search(ctx context.Context, query string, k int) (search.Result, error)
}

// SearchHandler handles keyword search requests.
type SearchHandler struct {
	deps     SearchDependencies
	defaultK int
	maxK     int
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(deps SearchDependencies, defaultK, maxK int) *SearchHandler {
	return &SearchHandler{deps: deps, defaultK: defaultK, maxK: maxK}
}

// event is one search hit as returned to clients.
type event struct {
	model.CompetitionRecord
	Distance float64 `json:"distance"`
}

type searchResponse struct {
	Query   string  `json:"query"`
	Events  []event `json:"events"`
	Message string  `json:"message,omitempty"`
}

// HandleSearch handles GET /search?keywords=a,b&k=N requests.
func (h *SearchHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	const op = "api.search"
	q := r.URL.Query()

	k := h.defaultK
	if raw := q.Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, "invalid_k", NewKind(op, ErrBadRequest))
			return
		}
		k = min(n, h.maxK)
	}

	res, err := h.deps.Search(r.Context(), q.Get("keywords"), k)
	switch {
	case errors.Is(err, search.ErrEmptyQuery):
		writeError(w, r, http.StatusBadRequest, "no_keywords", WrapKind(op, ErrBadRequest, err))
		return
	case errors.Is(err, search.ErrInvalidArgument):
		writeError(w, r, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, r, http.StatusGatewayTimeout, "timeout", WrapKind(op, ErrTimeout, err))
		return
	case errors.Is(err, search.ErrEngineNotReady), errors.Is(err, search.ErrStoreUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
		return
	case err != nil:
		writeError(w, r, http.StatusInternalServerError, "internal_error", WrapKind(op, ErrUnavailable, err))
		return
	}

	out := searchResponse{Query: res.Normalized, Events: make([]event, 0, len(res.Hits))}
	for _, hit := range res.Hits {
		out.Events = append(out.Events, event{CompetitionRecord: hit.Record, Distance: hit.Distance})
	}
	if len(out.Events) == 0 {
		out.Message = noMatchMessage
	}
	writeJSON(w, http.StatusOK, out)
}
