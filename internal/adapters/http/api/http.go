// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"

	service "github.com/okian/ekpsearch/internal/app"
	"github.com/okian/ekpsearch/internal/domain/model"
	"github.com/okian/ekpsearch/internal/domain/search"
	"github.com/okian/ekpsearch/pkg/logger"
)

// Dependencies is everything the handlers call on the service.
type Dependencies interface {
	Search(ctx context.Context, query string, k int) (search.Result, error)
	Rebuild(ctx context.Context) (search.Stats, error)
	Ready() bool

	// Submit queues records for ingestion.
	Submit(ctx context.Context, recs []model.CompetitionRecord) (service.SubmitResult, error)

	Record(ctx context.Context, ekp string) (model.CompetitionRecord, error)
	SportNames(ctx context.Context) ([]string, error)

	GetStats(ctx context.Context) service.Stats
}

const (
	defaultK       = 5
	defaultMaxK    = 100
	defaultMaxBody = 4 << 20
)

// Option configures a Server.
type Option func(*Server)

// WithSearchLimits sets the k used when a query omits it and the cap applied
// to larger values.
func WithSearchLimits(defK, maxK int) Option {
	return func(s *Server) {
		if maxK > 0 {
			s.maxK = maxK
		}
		if defK > 0 {
			s.defaultK = min(defK, s.maxK)
		}
	}
}

// WithRateLimit limits /search per client. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		s.rps, s.burst = rps, burst
	}
}

// WithMaxBodyBytes bounds ingest request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps     Dependencies
	defaultK int
	maxK     int
	maxBody  int64
	rps      float64
	burst    int
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:     deps,
		defaultK: defaultK,
		maxK:     defaultMaxK,
		maxBody:  defaultMaxBody,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}
	health := NewHealthHandler(s.deps)
	stats := NewStatsHandler(s.deps)
	searchH := NewSearchHandler(s.deps, s.defaultK, s.maxK)
	ingest := NewCompetitionsHandler(s.deps, s.maxBody)
	admin := NewAdminHandler(s.deps)

	limited := searchH.HandleSearch
	if s.rps > 0 {
		limited = NewClientLimiter(s.rps, s.burst).Middleware(limited)
	}

	mux.HandleFunc("GET /healthz", MetricsMiddleware(health.HandleMetrics, "healthz"))
	mux.HandleFunc("GET /metrics", MetricsMiddleware(health.HandleMetrics, "metrics"))
	mux.HandleFunc("GET /readyz", MetricsMiddleware(health.HandleReady, "readyz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(stats.HandleStats, "stats"))
	mux.HandleFunc("GET /search", MetricsMiddleware(limited, "search"))
	mux.HandleFunc("POST /competitions", MetricsMiddleware(ingest.HandlePost, "competitions"))
	mux.HandleFunc("GET /competitions/{ekp}", MetricsMiddleware(ingest.HandleGet, "competition"))
	mux.HandleFunc("GET /sport-names", MetricsMiddleware(ingest.HandleSportNames, "sport_names"))
	mux.HandleFunc("POST /admin/reindex", MetricsMiddleware(admin.HandleReindex, "reindex"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with code and a message. Server-side failures only carry
// the status text; their detail goes to the log.
func writeError(w http.ResponseWriter, r *http.Request, status int, code string, err error) {
	msg := http.StatusText(status)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Named("api").Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.Int("status", status),
			logger.Error(err),
		)
	case err != nil:
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
