// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/minkalla/valyze/internal/domain/model"
	"github.com/minkalla/valyze/pkg/logger"
)

const (
	defaultHistoryLimit  = 20
	defaultMaxQueryLimit = 100
	maxRequestBodyBytes  = 1 << 20
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Valuate runs one valuation attempt for a validated record.
	Valuate(ctx context.Context, in model.InputRecord) (model.ValuationResult, error)

	// ModelInfo describes the configured model.
	ModelInfo() model.ModelInfo

	// History returns provenance records for a data id, newest first.
	History(ctx context.Context, dataID string, limit int) ([]model.Provenance, error)
}

// Option configures a Server.
type Option func(*Server)

// WithExposeErrorDetail controls whether model diagnostics appear in 500 bodies.
func WithExposeErrorDetail(expose bool) Option {
	return func(s *Server) {
		s.exposeErrorDetail = expose
	}
}

// WithMaxQueryLimit caps the provenance history limit parameter.
func WithMaxQueryLimit(limit int) Option {
	return func(s *Server) {
		if limit > 0 {
			s.maxQueryLimit = limit
		}
	}
}

// WithLogger sets the logger used by handlers.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	valuationHandler *ValuationHandler

	exposeErrorDetail bool
	maxQueryLimit     int
	logger            logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		exposeErrorDetail: true,
		maxQueryLimit:     defaultMaxQueryLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}

	s.healthHandler = NewHealthHandler(s.logger)
	s.statsHandler = NewStatsHandler(statsProvider)
	s.valuationHandler = NewValuationHandler(deps, s.logger, s.exposeErrorDetail, s.maxQueryLimit)
	return s
}

// Register attaches all HTTP routes to mux. Method patterns make ServeMux
// answer other methods with 405.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", MetricsMiddleware(s.healthHandler.HandleRoot, "root"))
	mux.HandleFunc("GET /health", MetricsMiddleware(s.healthHandler.HandleHealth, "health"))
	mux.HandleFunc("GET /metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("POST /valyze/data", MetricsMiddleware(s.valuationHandler.HandleValuate, "valyze_data"))
	mux.HandleFunc("GET /valyze/model", MetricsMiddleware(s.valuationHandler.HandleModel, "valyze_model"))
	mux.HandleFunc("GET /valyze/provenance/{data_id}", MetricsMiddleware(s.valuationHandler.HandleProvenance, "valyze_provenance"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// detailResponse is the 500 body of POST /valyze/data.
type detailResponse struct {
	Detail string `json:"detail"`
}

// validationResponse is the 422 body of POST /valyze/data.
type validationResponse struct {
	Detail []FieldError `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
