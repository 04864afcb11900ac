package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment conventions.
const (
	EnvPrefix     = "SEASONAL_"
	EnvConfigFile = "SEASONAL_CONFIG"
)

// vendorKeyEnv lists the conventional vendor variables consulted when no
// key is configured under the SEASONAL_ prefix.
var vendorKeyEnv = map[string]string{ //nolint:gochecknoglobals // static lookup
	"gemini": "GEMINI_API_KEY",
	"openai": "OPENAI_API_KEY",
	"claude": "ANTHROPIC_API_KEY",
}

var validate = validator.New() //nolint:gochecknoglobals // shared validator

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if SEASONAL_CONFIG is set
//  3. env (prefix SEASONAL_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	// SEASONAL_QUEUE_SIZE -> queue_size, SEASONAL_GEMINI_API_KEY -> gemini.api_key.
	envProvider := env.Provider(EnvPrefix, ".", envKey)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	applyVendorKeys(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field ranges and enumerations.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	for name := range vendorKeyEnv {
		if rest, ok := strings.CutPrefix(s, name+"_"); ok {
			return name + "." + rest
		}
	}
	return s
}

func applyVendorKeys(c *Config) {
	targets := map[string]*string{
		"gemini": &c.Gemini.APIKey,
		"openai": &c.OpenAI.APIKey,
		"claude": &c.Claude.APIKey,
	}
	for name, key := range targets {
		if *key == "" {
			*key = os.Getenv(vendorKeyEnv[name])
		}
	}
}
