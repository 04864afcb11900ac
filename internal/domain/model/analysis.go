// Package model contains domain models passed between layers.
package model

import (
	"image"
	"time"

	"github.com/okian/seasonal/internal/domain/verdict"
)

// Mode selects how an analysis combines provider verdicts.
type Mode string

// Supported analysis modes.
const (
	ModeParallel Mode = "parallel"
	ModeHybrid   Mode = "hybrid"
)

// Status tracks an asynchronous analysis through its lifecycle.
type Status string

// Analysis lifecycle states.
const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Job is a unit of asynchronous work flowing through the queue.
type Job struct {
	ID     string      // analysis id handed back to the client
	Mode   Mode        // parallel or hybrid
	Method string      // aggregation method, parallel only
	Judge  string      // judge provider, hybrid only
	Image  image.Image // decoded upload
	TS     time.Time   // submission time
}

// ProviderOutcome summarizes one provider's contribution to an analysis.
type ProviderOutcome struct {
	Provider string
	OK       bool
	Error    string
}

// Analysis is the stored record of an asynchronous analysis.
type Analysis struct {
	ID          string
	Mode        Mode
	Method      string
	Judge       string
	Status      Status
	Verdict     *verdict.Verdict
	Providers   []ProviderOutcome
	Error       string
	SubmittedAt time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// Report is what a finished analysis hands back to the store.
type Report struct {
	Verdict   verdict.Verdict
	Providers []ProviderOutcome
}
