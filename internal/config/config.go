// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - New returns a Config populated with defaults.
//   - Load layers a YAML file and environment variables on top of New.
//   - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"runtime"

	"github.com/okian/seasonal/internal/adapters/provider"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn warning error"`

	// LogFormat selects text or json log lines.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory queue of asynchronous analyses.
	QueueSize int `koanf:"queue_size" validate:"gt=0"`

	// WorkerCount sets the number of analysis workers.
	WorkerCount int `koanf:"worker_count" validate:"gt=0"`

	// DedupeSize bounds the idempotency-key cache.
	DedupeSize int `koanf:"dedupe_size" validate:"gt=0"`

	// StoreSize bounds the number of analysis records kept for polling.
	StoreSize int `koanf:"store_size" validate:"gt=0"`

	// DefaultMethod is used when a parallel request names no method.
	DefaultMethod string `koanf:"default_method" validate:"oneof=voting weighted_average consensus"`

	// DefaultJudge is used when a hybrid request names no judge.
	DefaultJudge string `koanf:"default_judge" validate:"oneof=gemini openai claude"`

	// ConsensusThreshold and LowConsensusPenalty tune the consensus method.
	ConsensusThreshold  float64 `koanf:"consensus_threshold" validate:"gt=0,lte=1"`
	LowConsensusPenalty float64 `koanf:"low_consensus_penalty" validate:"gte=0,lte=1"`

	// PromptsFile optionally overrides the embedded prompt catalog.
	PromptsFile string `koanf:"prompts_file"`

	// Image limits applied to uploads before they reach any provider.
	MaxImageBytes     int `koanf:"max_image_bytes" validate:"gt=0"`
	MinImageDimension int `koanf:"min_image_dimension" validate:"gt=0"`
	MaxImageDimension int `koanf:"max_image_dimension" validate:"gtefield=MinImageDimension"`

	// AnalysisTimeoutSeconds caps one end-to-end analysis.
	AnalysisTimeoutSeconds int `koanf:"analysis_timeout_seconds" validate:"gt=0"`

	// Vendor connection settings.
	Gemini provider.Config `koanf:"gemini"`
	OpenAI provider.Config `koanf:"openai"`
	Claude provider.Config `koanf:"claude"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9080",
		QueueSize:              1_024,
		WorkerCount:            runtime.NumCPU(),
		DedupeSize:             10_000,
		StoreSize:              10_000,
		DefaultMethod:          "voting",
		DefaultJudge:           provider.Claude,
		ConsensusThreshold:     0.67,
		LowConsensusPenalty:    0.7,
		MaxImageBytes:          10 << 20,
		MinImageDimension:      100,
		MaxImageDimension:      4096,
		AnalysisTimeoutSeconds: 120,
	}
}

// Providers returns the vendor settings keyed by provider name.
func (c *Config) Providers() map[string]provider.Config {
	return map[string]provider.Config{
		provider.Gemini: c.Gemini,
		provider.OpenAI: c.OpenAI,
		provider.Claude: c.Claude,
	}
}
