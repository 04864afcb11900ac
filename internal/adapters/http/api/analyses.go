package api

import (
	"errors"
	"net/http"
	"strings"

	service "github.com/okian/seasonal/internal/app"
	"github.com/okian/seasonal/internal/domain/model"
	"github.com/okian/seasonal/pkg/logger"
)

// IdempotencyHeader carries the client's idempotency key.
const IdempotencyHeader = "Idempotency-Key"

// submitRequest is the body of POST /api/analyses.
type submitRequest struct {
	Mode   string `json:"mode"`
	Image  string `json:"image"`
	Method string `json:"method"`
	Judge  string `json:"judge"`
}

// AnalysesHandler serves asynchronous analyses.
type AnalysesHandler struct {
	deps   Dependencies
	limits ImageLimits
	logger logger.Logger
}

// NewAnalysesHandler creates a new analyses handler.
func NewAnalysesHandler(deps Dependencies, limits ImageLimits, l logger.Logger) *AnalysesHandler {
	return &AnalysesHandler{deps: deps, limits: limits, logger: l}
}

// HandleSubmit handles POST /api/analyses requests.
func (h *AnalysesHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_analysis"

	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req submitRequest
	if err := decodeBody(w, r, h.limits.maxBodyBytes(), &req); err != nil {
		writeError(w, r, h.logger, WrapKind(op, ErrBadRequest, err))
		return
	}
	mode := model.Mode(strings.ToLower(strings.TrimSpace(req.Mode)))
	if mode == "" {
		mode = model.ModeParallel
	}
	img, _, err := DecodeImage(req.Image, h.limits)
	if err != nil {
		writeError(w, r, h.logger, WrapKind(op, ErrInvalidImage, err))
		return
	}

	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	ack, err := h.deps.Submit(r.Context(), service.Submission{
		Mode:   mode,
		Method: req.Method,
		Judge:  req.Judge,
		Image:  img,
	}, key)
	if err != nil {
		if errors.Is(err, service.ErrBackpressure) {
			w.Header().Set("Retry-After", "1")
		}
		writeError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Location", "/api/analyses/"+ack.ID)
	status := http.StatusAccepted
	if ack.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, ack)
}

// HandleGet handles GET /api/analyses/{id} requests.
func (h *AnalysesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_analysis"

	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/analyses/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, h.logger, NewKind(op, ErrBadRequest))
		return
	}

	rec, err := h.deps.Analysis(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
