// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"

	service "github.com/okian/seasonal/internal/app"
	"github.com/okian/seasonal/internal/domain/types"
	"github.com/okian/seasonal/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	AnalyzeParallel(ctx context.Context, img image.Image, method string) (types.AnalysisResponse, error)
	AnalyzeHybrid(ctx context.Context, img image.Image, judge string) (types.AnalysisResponse, error)
	Submit(ctx context.Context, sub service.Submission, idempotencyKey string) (types.SubmitResponse, error)
	Analysis(ctx context.Context, id string) (types.AnalysisRecord, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	metricsHandler  http.Handler
	statsHandler    *StatsHandler
	analyzeHandler  *AnalyzeHandler
	analysesHandler *AnalysesHandler
}

// Option configures a Server.
type Option func(*options)

type options struct {
	limits ImageLimits
	logger logger.Logger
}

// WithImageLimits sets the upload limits. Non-positive fields keep defaults.
func WithImageLimits(l ImageLimits) Option {
	return func(o *options) {
		if l.MaxBytes > 0 {
			o.limits.MaxBytes = l.MaxBytes
		}
		if l.MinDimension > 0 {
			o.limits.MinDimension = l.MinDimension
		}
		if l.MaxDimension > 0 {
			o.limits.MaxDimension = l.MaxDimension
		}
	}
}

// WithLogger sets the logger used for server-side failures.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	o := options{limits: DefaultImageLimits()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("api")
	}

	return &Server{
		healthHandler:   NewHealthHandler(),
		metricsHandler:  NewMetricsHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		analyzeHandler:  NewAnalyzeHandler(deps, o.limits, o.logger),
		analysesHandler: NewAnalysesHandler(deps, o.limits, o.logger),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("/metrics", s.metricsHandler)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/api/analyze/color", MetricsMiddleware(s.analyzeHandler.HandleParallel, "analyze_parallel"))
	mux.HandleFunc("/api/analyze/color/hybrid", MetricsMiddleware(s.analyzeHandler.HandleHybrid, "analyze_hybrid"))
	mux.HandleFunc("/api/analyses", MetricsMiddleware(s.analysesHandler.HandleSubmit, "analyses_submit"))
	mux.HandleFunc("/api/analyses/", MetricsMiddleware(s.analysesHandler.HandleGet, "analyses_get"))
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err with the status its kind maps to. Server-side
// failures are logged; client mistakes are not.
func writeError(w http.ResponseWriter, r *http.Request, l logger.Logger, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		l.Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.Int("status", status),
			logger.Error(err),
		)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

// decodeBody reads a JSON document of at most limit bytes into v.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ErrImageTooLarge
		}
		return err
	}
	return nil
}
