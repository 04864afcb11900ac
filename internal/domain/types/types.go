// Package types contains common types used across the application
package types

import (
	"time"

	"github.com/okian/seasonal/internal/domain/model"
	"github.com/okian/seasonal/internal/domain/verdict"
)

// ProviderStatus reports whether a panel member produced a usable verdict.
type ProviderStatus struct {
	Provider string `json:"provider"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
}

// AnalysisResponse is returned by the synchronous analysis endpoints.
// The final verdict fields sit at the top level of the document.
type AnalysisResponse struct {
	verdict.Verdict
	Mode      string           `json:"mode"`
	Method    string           `json:"method,omitempty"`
	Judge     string           `json:"judge,omitempty"`
	Providers []ProviderStatus `json:"providers"`
}

// SubmitResponse acknowledges an asynchronous analysis.
type SubmitResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// AnalysisRecord is the polling view of an asynchronous analysis.
type AnalysisRecord struct {
	ID          string           `json:"id"`
	Status      string           `json:"status"`
	Mode        string           `json:"mode"`
	Method      string           `json:"method,omitempty"`
	Judge       string           `json:"judge,omitempty"`
	Result      *verdict.Verdict `json:"result,omitempty"`
	Providers   []ProviderStatus `json:"providers,omitempty"`
	Error       string           `json:"error,omitempty"`
	SubmittedAt time.Time        `json:"submitted_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// Statuses converts provider outcomes to their wire form.
func Statuses(outcomes []model.ProviderOutcome) []ProviderStatus {
	out := make([]ProviderStatus, 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, ProviderStatus{Provider: o.Provider, OK: o.OK, Error: o.Error})
	}
	return out
}

// FromAnalysis builds the polling view of a stored record.
func FromAnalysis(a *model.Analysis) AnalysisRecord {
	rec := AnalysisRecord{
		ID:          a.ID,
		Status:      string(a.Status),
		Mode:        string(a.Mode),
		Method:      a.Method,
		Judge:       a.Judge,
		Result:      a.Verdict,
		Error:       a.Error,
		SubmittedAt: a.SubmittedAt,
	}
	if len(a.Providers) > 0 {
		rec.Providers = Statuses(a.Providers)
	}
	if !a.CompletedAt.IsZero() {
		done := a.CompletedAt
		rec.CompletedAt = &done
	}
	return rec
}
