// Package repository stores asynchronous analysis records for polling.
package repository

import (
	"context"
	"time"

	"github.com/okian/seasonal/internal/domain/model"
)

// Store provides read/write access to analysis records.
type Store interface {
	// Create inserts a queued record. It returns ErrDuplicateID when the id
	// is already present.
	Create(ctx context.Context, a *model.Analysis) error

	// Get returns a copy of the record. It returns ErrNotFound if the id is
	// unknown or was evicted.
	Get(ctx context.Context, id string) (model.Analysis, error)

	// Delete drops a record, typically one whose job could not be queued.
	Delete(ctx context.Context, id string)

	// MarkRunning moves a queued record to running.
	MarkRunning(ctx context.Context, id string, at time.Time) error

	// Complete moves a record to succeeded, or failed when cause is non-nil.
	Complete(ctx context.Context, id string, rep model.Report, cause error, at time.Time) error

	// Count returns the number of records held.
	Count(ctx context.Context) int
}
