package service

import "errors"

// Sentinel kinds returned by the Service.
var (
	ErrNotStarted   = errors.New("service not started")
	ErrBackpressure = errors.New("analysis queue is full")
	ErrStopped      = errors.New("service is shutting down")
	ErrInvalidMode  = errors.New("invalid analysis mode")
)
