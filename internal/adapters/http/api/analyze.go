package api

import (
	"net/http"

	"github.com/okian/seasonal/pkg/logger"
)

// parallelRequest is the body of POST /api/analyze/color.
type parallelRequest struct {
	Image  string `json:"image"`
	Method string `json:"method"`
}

// hybridRequest is the body of POST /api/analyze/color/hybrid.
type hybridRequest struct {
	Image string `json:"image"`
	Judge string `json:"judge"`
}

// AnalyzeHandler serves the synchronous analysis endpoints.
type AnalyzeHandler struct {
	deps   Dependencies
	limits ImageLimits
	logger logger.Logger
}

// NewAnalyzeHandler creates a new analyze handler.
func NewAnalyzeHandler(deps Dependencies, limits ImageLimits, l logger.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{deps: deps, limits: limits, logger: l}
}

// HandleParallel handles POST /api/analyze/color requests.
func (h *AnalyzeHandler) HandleParallel(w http.ResponseWriter, r *http.Request) {
	const op = "api.analyze_parallel"

	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req parallelRequest
	if err := decodeBody(w, r, h.limits.maxBodyBytes(), &req); err != nil {
		writeError(w, r, h.logger, WrapKind(op, ErrBadRequest, err))
		return
	}
	img, _, err := DecodeImage(req.Image, h.limits)
	if err != nil {
		writeError(w, r, h.logger, WrapKind(op, ErrInvalidImage, err))
		return
	}

	resp, err := h.deps.AnalyzeParallel(r.Context(), img, req.Method)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleHybrid handles POST /api/analyze/color/hybrid requests.
func (h *AnalyzeHandler) HandleHybrid(w http.ResponseWriter, r *http.Request) {
	const op = "api.analyze_hybrid"

	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req hybridRequest
	if err := decodeBody(w, r, h.limits.maxBodyBytes(), &req); err != nil {
		writeError(w, r, h.logger, WrapKind(op, ErrBadRequest, err))
		return
	}
	img, _, err := DecodeImage(req.Image, h.limits)
	if err != nil {
		writeError(w, r, h.logger, WrapKind(op, ErrInvalidImage, err))
		return
	}

	resp, err := h.deps.AnalyzeHybrid(r.Context(), img, req.Judge)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
