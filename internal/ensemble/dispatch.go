package ensemble

import (
	"context"
	"fmt"

	"github.com/okian/seasonal/internal/adapters/provider"
	"github.com/okian/seasonal/internal/domain/verdict"
	"github.com/okian/seasonal/internal/prompts"
	"golang.org/x/sync/errgroup"
)

// Member is a named provider taking part in an ensemble.
type Member struct {
	Name     string
	Provider provider.Provider
}

// Result is the outcome of one provider call: a verdict when Err is nil,
// otherwise the failure reason.
type Result struct {
	Provider string
	Verdict  verdict.Verdict
	Err      error
}

// OK reports whether the call produced a verdict.
func (r Result) OK() bool { return r.Err == nil }

// Successes returns the verdicts of successful results in order.
func Successes(results []Result) []verdict.Verdict {
	out := make([]verdict.Verdict, 0, len(results))
	for _, r := range results {
		if r.OK() {
			out = append(out, r.Verdict)
		}
	}
	return out
}

// Failures returns the failed results in order.
func Failures(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// DispatchAll classifies img with every member concurrently and waits for
// all of them. A failing or panicking member only affects its own entry;
// results are in member order whatever the completion order.
func DispatchAll(ctx context.Context, img *provider.Image, members []Member, p *prompts.Catalog) []Result {
	results := make([]Result, len(members))
	req := provider.Request{Image: img, System: p.System, Task: p.Task}

	// Tasks never return an error, so no sibling is cancelled.
	var g errgroup.Group
	for i, m := range members {
		g.Go(func() error {
			results[i] = classify(ctx, m, req)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func classify(ctx context.Context, m Member, req provider.Request) (r Result) {
	r.Provider = m.Name
	defer func() {
		if rec := recover(); rec != nil {
			r.Err = &provider.Error{Provider: m.Name, Err: fmt.Errorf("%w: %v", ErrProviderPanic, rec)}
		}
	}()

	raw, err := m.Provider.Classify(ctx, req)
	if err != nil {
		r.Err = err
		return r
	}
	v, err := verdict.Normalize(raw)
	if err != nil {
		r.Err = &provider.Error{Provider: m.Name, Err: err}
		return r
	}
	r.Verdict = v
	return r
}
