package client

import (
	"errors"
	"fmt"
)

// Sentinel kinds for client errors.
var (
	ErrBackpressure = errors.New("server queue is full")
	ErrNotFound     = errors.New("analysis not found")
	ErrAnalysis     = errors.New("analysis failed")
)

// StatusError is a non-success response from the server.
type StatusError struct {
	Status int
	Code   string
	Msg    string
}

func (e *StatusError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Msg)
	}
	return fmt.Sprintf("server returned %d (%s): %s", e.Status, e.Code, e.Msg)
}

// Is maps well-known codes onto the package sentinels.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrBackpressure:
		return e.Code == "backpressure"
	case ErrNotFound:
		return e.Code == "not_found"
	}
	return false
}
