package service

import (
	"context"
	"errors"
	"time"

	"github.com/okian/seasonal/internal/adapters/provider"
	"github.com/okian/seasonal/internal/ensemble"
	"github.com/okian/seasonal/pkg/logger"
	"github.com/okian/seasonal/pkg/metrics"
)

// instrumented records latency and outcome of every vendor call.
type instrumented struct {
	name   string
	next   provider.Provider
	logger logger.Logger
}

func (p *instrumented) Classify(ctx context.Context, req provider.Request) (string, error) {
	start := time.Now()
	text, err := p.next.Classify(ctx, req)
	elapsed := time.Since(start)

	outcome := CallOutcome(err)
	metrics.RecordProviderCall(p.name, outcome, float64(elapsed.Milliseconds()))
	p.logger.Debug(ctx, "provider call",
		logger.String("provider", p.name),
		logger.String("outcome", outcome),
		logger.Bool("judge", req.Image == nil),
		logger.Duration("elapsed", elapsed),
	)
	return text, err
}

// Instrument wraps p so that its calls are measured under name.
func Instrument(name string, p provider.Provider, l logger.Logger) provider.Provider {
	if l == nil {
		l = logger.Get().Named("provider")
	}
	return &instrumented{name: name, next: p, logger: l}
}

// Members lists the built providers in canonical dispatch order, each
// wrapped with instrumentation.
func Members(providers map[string]provider.Provider, l logger.Logger) []ensemble.Member {
	members := make([]ensemble.Member, 0, len(providers))
	for _, name := range provider.Names() {
		p, ok := providers[name]
		if !ok {
			continue
		}
		members = append(members, ensemble.Member{Name: name, Provider: Instrument(name, p, l)})
	}
	return members
}

// CallOutcome maps a vendor call error to a metrics label.
func CallOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, provider.ErrTimeout):
		return "timeout"
	case errors.Is(err, provider.ErrRateLimitExceeded):
		return "rate_limited"
	case errors.Is(err, provider.ErrAuthentication):
		return "auth"
	case errors.Is(err, provider.ErrModelUnavailable):
		return "unavailable"
	case errors.Is(err, provider.ErrContentRejected):
		return "rejected"
	case errors.Is(err, provider.ErrEmptyResponse):
		return "empty"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}
