package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	repository "github.com/okian/seasonal/internal/adapters/repository"
	service "github.com/okian/seasonal/internal/app"
	"github.com/okian/seasonal/internal/domain/aggregate"
	"github.com/okian/seasonal/internal/ensemble"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest    = errors.New("bad request")
	ErrInvalidImage  = errors.New("invalid image")
	ErrImageTooLarge = errors.New("image too large")
)

// KindError tags an error with the operation that produced it and a
// sentinel kind that drives the HTTP status.
type KindError struct {
	Op   string
	Kind error
	Err  error
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	if errors.Is(e.Err, e.Kind) {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *KindError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// WrapKind attributes err to op under kind.
func WrapKind(op string, kind, err error) error {
	return &KindError{Op: op, Kind: kind, Err: err}
}

// NewKind reports kind for op with no further cause.
func NewKind(op string, kind error) error {
	return &KindError{Op: op, Kind: kind}
}

// statusFor maps an error to its HTTP status and machine-readable code.
// The first matching kind wins.
func statusFor(err error) (int, string) {
	table := []struct {
		kind   error
		status int
		code   string
	}{
		{ErrImageTooLarge, http.StatusRequestEntityTooLarge, "image_too_large"},
		{ErrInvalidImage, http.StatusBadRequest, "invalid_image"},
		{ensemble.ErrInvalidImage, http.StatusBadRequest, "invalid_image"},
		{aggregate.ErrUnknownMethod, http.StatusBadRequest, "unknown_method"},
		{ensemble.ErrUnknownProvider, http.StatusBadRequest, "unknown_provider"},
		{ensemble.ErrNoMembers, http.StatusBadRequest, "no_panel"},
		{service.ErrInvalidMode, http.StatusBadRequest, "invalid_mode"},
		{ErrBadRequest, http.StatusBadRequest, "bad_request"},
		{repository.ErrNotFound, http.StatusNotFound, "not_found"},
		{service.ErrBackpressure, http.StatusTooManyRequests, "backpressure"},
		{ensemble.ErrAllProvidersFailed, http.StatusBadGateway, "all_providers_failed"},
		{ensemble.ErrJudgeFailure, http.StatusBadGateway, "judge_failure"},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{service.ErrNotStarted, http.StatusServiceUnavailable, "unavailable"},
		{service.ErrStopped, http.StatusServiceUnavailable, "unavailable"},
	}
	for _, t := range table {
		if errors.Is(err, t.kind) {
			return t.status, t.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}
