package repository

import (
	"container/list"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/okian/seasonal/internal/domain/model"
	"github.com/okian/seasonal/pkg/metrics"
)

const defaultCapacity = 10_000

// MemoryStore is a bounded, insertion-ordered in-memory Store.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[string]*list.Element
	order    *list.List // front is oldest
	capacity int
}

// NewMemoryStore creates a MemoryStore with configuration options.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		byID:     make(map[string]*list.Element),
		order:    list.New(),
		capacity: defaultCapacity,
	}
	for _, opt := range opts {
		opt(s)
	}
	metrics.UpdateStoredAnalyses(0)
	return s
}

// Create inserts a new record, evicting the oldest one when at capacity.
func (s *MemoryStore) Create(_ context.Context, a *model.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[a.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, a.ID)
	}
	for s.order.Len() >= s.capacity {
		oldest := s.order.Front()
		rec, _ := s.order.Remove(oldest).(*model.Analysis)
		delete(s.byID, rec.ID)
	}

	rec := clone(a)
	s.byID[rec.ID] = s.order.PushBack(&rec)
	metrics.UpdateStoredAnalyses(s.order.Len())
	return nil
}

// Get returns a copy of the record for id.
func (s *MemoryStore) Get(_ context.Context, id string) (model.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	el, ok := s.byID[id]
	if !ok {
		return model.Analysis{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec, _ := el.Value.(*model.Analysis)
	return clone(rec), nil
}

// Delete removes the record for id if present.
func (s *MemoryStore) Delete(_ context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.byID[id]; ok {
		s.order.Remove(el)
		delete(s.byID, id)
		metrics.UpdateStoredAnalyses(s.order.Len())
	}
}

// MarkRunning moves a queued record to running.
func (s *MemoryStore) MarkRunning(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(rec *model.Analysis) error {
		if rec.Status != model.StatusQueued {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, model.StatusRunning)
		}
		rec.Status = model.StatusRunning
		rec.StartedAt = at
		return nil
	})
}

// Complete records the outcome of a queued or running analysis.
func (s *MemoryStore) Complete(_ context.Context, id string, rep model.Report, cause error, at time.Time) error {
	return s.update(id, func(rec *model.Analysis) error {
		if rec.Status.Terminal() {
			return fmt.Errorf("%w: %s is already %s", ErrInvalidTransition, id, rec.Status)
		}
		rec.Providers = slices.Clone(rep.Providers)
		rec.CompletedAt = at
		if cause != nil {
			rec.Status = model.StatusFailed
			rec.Error = cause.Error()
			rec.Verdict = nil
			return nil
		}
		v := rep.Verdict
		rec.Status = model.StatusSucceeded
		rec.Verdict = &v
		return nil
	})
}

// Count returns the number of records held.
func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.order.Len()
}

func (s *MemoryStore) update(id string, fn func(*model.Analysis) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec, _ := el.Value.(*model.Analysis)
	return fn(rec)
}

func clone(a *model.Analysis) model.Analysis {
	c := *a
	c.Providers = slices.Clone(a.Providers)
	if a.Verdict != nil {
		v := *a.Verdict
		c.Verdict = &v
	}
	return c
}
