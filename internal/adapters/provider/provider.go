// Package provider binds the external vision-language model vendors used to
// classify personal-color seasons. Each adapter turns a Request into the
// vendor's HTTP/JSON call and returns the model's raw text.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Provider identities in dispatch order.
const (
	Gemini = "gemini"
	OpenAI = "openai"
	Claude = "claude"
)

const (
	defaultTimeoutSeconds   = 60
	defaultMaxTokens        = 1024
	defaultTemperature      = 0.3
	defaultJudgeTemperature = 0.2
)

// Provider classifies an image (or adjudicates a text summary) and returns
// the model's raw response text. Implementations must be safe for
// concurrent use.
type Provider interface {
	Classify(ctx context.Context, req Request) (string, error)
}

// Image is an encoded image ready to send to a vendor.
type Image struct {
	Data     []byte
	MIMEType string
}

// Request carries the prompts and an optional image. A nil Image means a
// text-only call, as used by the judge.
type Request struct {
	Image  *Image
	System string
	Task   string
}

// Config holds per-vendor connection settings.
type Config struct {
	APIKey         string   `koanf:"api_key"`
	Endpoint       string   `koanf:"endpoint"`
	Model          string   `koanf:"model"`
	TimeoutSeconds int      `koanf:"timeout_seconds"`
	// Temperature is the sampling temperature for image calls. Nil selects
	// the default; zero is a valid setting.
	Temperature    *float64 `koanf:"temperature" validate:"omitempty,gte=0,lte=2"`
	MaxTokens      int      `koanf:"max_tokens"`
}

func (c Config) withDefaults(endpoint, model string) Config {
	if c.Endpoint == "" {
		c.Endpoint = endpoint
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = defaultTimeoutSeconds
	}
	if c.Temperature == nil {
		t := defaultTemperature
		c.Temperature = &t
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	return c
}

func (c Config) timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// temperatureFor lowers the sampling temperature for text-only judge calls.
func (c Config) temperatureFor(req Request) float64 {
	if req.Image == nil {
		return defaultJudgeTemperature
	}
	if c.Temperature == nil {
		return defaultTemperature
	}
	return *c.Temperature
}

// Names returns the provider identities in dispatch order.
func Names() []string {
	return []string{Gemini, OpenAI, Claude}
}

// IsKnown reports whether name is a provider identity.
func IsKnown(name string) bool {
	for _, n := range Names() {
		if n == name {
			return true
		}
	}
	return false
}

// New constructs the adapter for name.
func New(name string, cfg Config) (Provider, error) {
	switch name {
	case Gemini:
		return NewGemini(cfg)
	case OpenAI:
		return NewOpenAI(cfg)
	case Claude:
		return NewClaude(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfiguration, name)
	}
}

// Build constructs every provider in Names() from configs. It reports all
// configuration problems at once.
func Build(configs map[string]Config) (map[string]Provider, error) {
	out := make(map[string]Provider, len(configs))
	var errs []error
	for _, name := range Names() {
		p, err := New(name, configs[name])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[name] = p
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
