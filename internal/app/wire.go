package service

import (
	"fmt"
	"time"

	"github.com/okian/seasonal/internal/adapters/provider"
	"github.com/okian/seasonal/internal/config"
	"github.com/okian/seasonal/internal/domain/aggregate"
	"github.com/okian/seasonal/internal/ensemble"
	"github.com/okian/seasonal/internal/prompts"
	"github.com/okian/seasonal/pkg/logger"
)

// NewEnsemble assembles the orchestrator for cfg over already built
// providers, applying the prompt catalog and consensus tuning.
func NewEnsemble(cfg *config.Config, providers map[string]provider.Provider, l logger.Logger) (*ensemble.Orchestrator, error) {
	catalog, err := prompts.Load(cfg.PromptsFile)
	if err != nil {
		return nil, err
	}
	agg := aggregate.New(
		aggregate.WithConsensusThreshold(cfg.ConsensusThreshold),
		aggregate.WithLowConsensusPenalty(cfg.LowConsensusPenalty),
	)
	return ensemble.New(
		Members(providers, l.Named("provider")),
		ensemble.WithPrompts(catalog),
		ensemble.WithAggregator(agg),
	)
}

// Options translates cfg into service options.
func Options(cfg *config.Config, l logger.Logger) []Option {
	opts := []Option{
		WithLogger(l),
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.QueueSize),
		WithDedupeSize(cfg.DedupeSize),
		WithStoreSize(cfg.StoreSize),
		WithDefaultJudge(cfg.DefaultJudge),
		WithAnalysisTimeout(time.Duration(cfg.AnalysisTimeoutSeconds) * time.Second),
	}
	if m, err := aggregate.ParseMethod(cfg.DefaultMethod); err == nil {
		opts = append(opts, WithDefaultMethod(m))
	}
	return opts
}

// FromConfig builds the vendor clients named in cfg and returns an
// unstarted Service over them.
func FromConfig(cfg *config.Config, l logger.Logger) (*Service, error) {
	if l == nil {
		l = logger.Get()
	}
	providers, err := provider.Build(cfg.Providers())
	if err != nil {
		return nil, fmt.Errorf("build providers: %w", err)
	}
	e, err := NewEnsemble(cfg, providers, l)
	if err != nil {
		return nil, fmt.Errorf("build ensemble: %w", err)
	}
	return New(e, Options(cfg, l.Named("service"))...), nil
}
