// Package ensemble runs several vision-language providers over one image and
// reduces their verdicts to a single personal-color classification, either by
// local aggregation or by handing them to a judge provider.
//
// The package performs no logging and no I/O of its own; everything external
// happens through the injected providers.
package ensemble

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/okian/seasonal/internal/adapters/provider"
	"github.com/okian/seasonal/internal/domain/aggregate"
	"github.com/okian/seasonal/internal/domain/verdict"
	"github.com/okian/seasonal/internal/prompts"
)

const pngMIMEType = "image/png"

// Aggregator reduces verdicts with a method.
type Aggregator interface {
	Aggregate(vs []verdict.Verdict, m aggregate.Method) (verdict.Verdict, error)
}

// Outcome is the final verdict together with every provider result that
// fed it. Judge is empty for parallel runs.
type Outcome struct {
	Verdict verdict.Verdict
	Results []Result
	Judge   string
}

// Orchestrator exposes the parallel-aggregate and hybrid-judge pipelines.
// It is immutable after New and safe for concurrent use.
type Orchestrator struct {
	members    []Member
	prompts    *prompts.Catalog
	aggregator Aggregator
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPrompts sets the prompt catalog. Nil keeps the embedded defaults.
func WithPrompts(p *prompts.Catalog) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.prompts = p
		}
	}
}

// WithAggregator replaces the default aggregator.
func WithAggregator(a Aggregator) Option {
	return func(o *Orchestrator) {
		if a != nil {
			o.aggregator = a
		}
	}
}

// New creates an Orchestrator over members, which are dispatched in the
// given order.
func New(members []Member, opts ...Option) (*Orchestrator, error) {
	if len(members) == 0 {
		return nil, ErrNoMembers
	}
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if m.Name == "" || m.Provider == nil {
			return nil, fmt.Errorf("%w: name and provider are required", ErrInvalidMember)
		}
		if _, dup := seen[m.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate member %q", ErrInvalidMember, m.Name)
		}
		seen[m.Name] = struct{}{}
	}

	o := &Orchestrator{
		members:    append([]Member(nil), members...),
		prompts:    prompts.Default(),
		aggregator: aggregate.New(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Members returns the member names in dispatch order.
func (o *Orchestrator) Members() []string {
	names := make([]string, 0, len(o.members))
	for _, m := range o.members {
		names = append(names, m.Name)
	}
	return names
}

// AnalyzeParallel classifies img with every member and aggregates the
// successful verdicts with m.
func (o *Orchestrator) AnalyzeParallel(ctx context.Context, img image.Image, m aggregate.Method) (verdict.Verdict, error) {
	out, err := o.Parallel(ctx, img, m)
	if err != nil {
		return verdict.Verdict{}, err
	}
	return out.Verdict, nil
}

// AnalyzeHybrid classifies img with every member except judgeName and lets
// the judge adjudicate the successful verdicts.
func (o *Orchestrator) AnalyzeHybrid(ctx context.Context, img image.Image, judgeName string) (verdict.Verdict, error) {
	out, err := o.Hybrid(ctx, img, judgeName)
	if err != nil {
		return verdict.Verdict{}, err
	}
	return out.Verdict, nil
}

// Parallel is AnalyzeParallel returning the per-provider results as well.
func (o *Orchestrator) Parallel(ctx context.Context, img image.Image, m aggregate.Method) (Outcome, error) {
	if _, err := aggregate.ParseMethod(string(m)); err != nil {
		return Outcome{}, err
	}
	encoded, err := EncodeImage(img)
	if err != nil {
		return Outcome{}, err
	}

	results := DispatchAll(ctx, encoded, o.members, o.prompts)
	vs := Successes(results)
	if len(vs) == 0 {
		return Outcome{Results: results}, &AllProvidersFailedError{Failures: results}
	}

	v, err := o.aggregator.Aggregate(vs, m)
	if err != nil {
		return Outcome{Results: results}, err
	}
	return Outcome{Verdict: v, Results: results}, nil
}

// Hybrid is AnalyzeHybrid returning the per-provider results as well.
func (o *Orchestrator) Hybrid(ctx context.Context, img image.Image, judgeName string) (Outcome, error) {
	judge, panel, err := o.split(judgeName)
	if err != nil {
		return Outcome{}, err
	}
	encoded, err := EncodeImage(img)
	if err != nil {
		return Outcome{}, err
	}

	results := DispatchAll(ctx, encoded, panel, o.prompts)
	vs := Successes(results)
	if len(vs) == 0 {
		return Outcome{Results: results, Judge: judge.Name}, &AllProvidersFailedError{Failures: results}
	}

	v, err := Judge(ctx, vs, judge, o.prompts)
	if err != nil {
		return Outcome{Results: results, Judge: judge.Name}, err
	}
	return Outcome{Verdict: v, Results: results, Judge: judge.Name}, nil
}

// split returns the judge member and the remaining members in order.
func (o *Orchestrator) split(judgeName string) (Member, []Member, error) {
	var judge Member
	found := false
	panel := make([]Member, 0, len(o.members))
	for _, m := range o.members {
		if m.Name == judgeName {
			judge, found = m, true
			continue
		}
		panel = append(panel, m)
	}
	if !found {
		return Member{}, nil, fmt.Errorf("%w: %q", ErrUnknownProvider, judgeName)
	}
	if len(panel) == 0 {
		return Member{}, nil, fmt.Errorf("%w: hybrid mode needs a member besides the judge", ErrNoMembers)
	}
	return judge, panel, nil
}

// EncodeImage encodes img once as PNG for every provider call.
func EncodeImage(img image.Image) (*provider.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidImage)
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: empty bounds", ErrInvalidImage)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return &provider.Image{Data: buf.Bytes(), MIMEType: pngMIMEType}, nil
}
