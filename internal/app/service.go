// Package service provides the core business service that implements
// the dependencies required by the HTTP API and the CLI.
package service

import (
	"context"
	"image"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	jobqueue "github.com/okian/seasonal/internal/adapters/mq/queue"
	workerpool "github.com/okian/seasonal/internal/adapters/mq/worker"
	repository "github.com/okian/seasonal/internal/adapters/repository"
	"github.com/okian/seasonal/internal/domain/aggregate"
	"github.com/okian/seasonal/internal/domain/dedupe"
	"github.com/okian/seasonal/internal/ensemble"
	"github.com/okian/seasonal/pkg/logger"
)

// Ensemble is the analysis engine the service drives.
type Ensemble interface {
	Parallel(ctx context.Context, img image.Image, m aggregate.Method) (ensemble.Outcome, error)
	Hybrid(ctx context.Context, img image.Image, judge string) (ensemble.Outcome, error)
	Members() []string
}

// Service implements the API dependencies for the color analysis system.
type Service struct {
	mu       sync.RWMutex
	submitMu sync.Mutex

	// Core components
	ensemble Ensemble
	store    repository.Store
	deduper  dedupe.Deduper
	queue    *jobqueue.InMemoryQueue
	pool     *workerpool.Pool

	// Configuration
	workerCount     int
	queueSize       int
	dedupeSize      int
	storeSize       int
	defaultMethod   aggregate.Method
	defaultJudge    string
	analysisTimeout time.Duration
	newID           func() string

	// State
	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of analysis workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of pending asynchronous analyses.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the idempotency-key cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithStoreSize bounds the number of analysis records kept for polling.
func WithStoreSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.storeSize = size
		}
	}
}

// WithDefaultMethod sets the aggregation used when a request names none.
func WithDefaultMethod(m aggregate.Method) Option {
	return func(s *Service) {
		if _, err := aggregate.ParseMethod(string(m)); err == nil {
			s.defaultMethod = m
		}
	}
}

// WithDefaultJudge sets the judge used when a hybrid request names none.
func WithDefaultJudge(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.defaultJudge = name
		}
	}
}

// WithAnalysisTimeout caps one end-to-end analysis.
func WithAnalysisTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.analysisTimeout = d
		}
	}
}

// WithIDGenerator replaces the analysis id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service around e with default configuration.
func New(e Ensemble, opts ...Option) *Service {
	s := &Service{
		ensemble:        e,
		workerCount:     runtime.NumCPU(),
		queueSize:       1_024,
		dedupeSize:      10_000,
		storeSize:       10_000,
		defaultMethod:   aggregate.MethodVoting,
		defaultJudge:    "claude",
		analysisTimeout: 2 * time.Minute,
		newID:           uuid.NewString,
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	return s
}

// Start initializes and starts the asynchronous analysis components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting analysis service...")

	s.store = repository.NewMemoryStore(repository.WithCapacity(s.storeSize))
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = jobqueue.NewInMemoryQueue(jobqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s, s.store,
		workerpool.WithJobTimeout(s.analysisTimeout),
		workerpool.WithLogger(s.logger.Named("worker")),
	)
	s.pool.Start(ctx)
	s.started = true

	s.logger.Info(ctx, "analysis service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("storeSize", s.storeSize),
		logger.Any("providers", s.ensemble.Members()),
	)
	return nil
}

// Stop stops accepting asynchronous analyses and waits for queued ones to
// finish until ctx expires.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping analysis service...")

	err := s.pool.Shutdown(ctx)
	s.started = false

	if err != nil {
		s.logger.Warn(ctx, "analysis service stopped with pending work", logger.Error(err))
		return err
	}
	s.logger.Info(ctx, "analysis service stopped")
	return nil
}

// Providers returns the configured provider names in dispatch order.
func (s *Service) Providers() []string {
	return s.ensemble.Members()
}

// Methods returns the supported aggregation methods.
func (s *Service) Methods() []aggregate.Method {
	return aggregate.Methods()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":       s.started,
		"workerCount":   s.workerCount,
		"queueSize":     s.queueSize,
		"dedupeSize":    s.dedupeSize,
		"storeSize":     s.storeSize,
		"providers":     s.ensemble.Members(),
		"defaultMethod": string(s.defaultMethod),
		"defaultJudge":  s.defaultJudge,
	}

	if s.started {
		ctx := context.Background()
		stats["queueLength"] = s.queue.Len(ctx)
		stats["activeWorkers"] = s.pool.Active()
		stats["storedAnalyses"] = s.store.Count(ctx)
		stats["idempotencyKeys"] = s.deduper.Size()
	}
	return stats
}
