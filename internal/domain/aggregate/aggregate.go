// Package aggregate combines verdicts from several providers into one.
//
// Every function here is pure: the output depends only on the verdict list
// and the configured threshold/penalty. Input order is dispatch order and is
// used only to break ties (first-encountered value wins).
package aggregate

import (
	"fmt"
	"math"
	"strings"

	"github.com/okian/seasonal/internal/domain/verdict"
)

// Method selects an aggregation strategy.
type Method string

// Supported aggregation methods.
const (
	MethodVoting          Method = "voting"
	MethodWeightedAverage Method = "weighted_average"
	MethodConsensus       Method = "consensus"
)

// Defaults for the consensus gate.
const (
	DefaultConsensusThreshold  = 0.67
	DefaultLowConsensusPenalty = 0.7

	reasoningSamples = 2
)

// Methods lists the supported methods in documentation order.
func Methods() []Method {
	return []Method{MethodVoting, MethodWeightedAverage, MethodConsensus}
}

// ParseMethod validates a method name.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.TrimSpace(strings.ToLower(s)))
	switch m {
	case MethodVoting, MethodWeightedAverage, MethodConsensus:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
}

// String returns the method name.
func (m Method) String() string { return string(m) }

// Aggregator dispatches to a method using its consensus settings.
type Aggregator struct {
	threshold float64
	penalty   float64
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithConsensusThreshold sets the minimum label agreement for the consensus
// method to trust a plain vote. Values outside (0, 1] are ignored.
func WithConsensusThreshold(threshold float64) Option {
	return func(a *Aggregator) {
		if threshold > 0 && threshold <= 1 {
			a.threshold = threshold
		}
	}
}

// WithLowConsensusPenalty sets the confidence multiplier applied when the
// consensus gate is not met. Values outside [0, 1] are ignored.
func WithLowConsensusPenalty(penalty float64) Option {
	return func(a *Aggregator) {
		if penalty >= 0 && penalty <= 1 {
			a.penalty = penalty
		}
	}
}

// New creates an Aggregator with default consensus settings.
func New(opts ...Option) *Aggregator {
	a := &Aggregator{
		threshold: DefaultConsensusThreshold,
		penalty:   DefaultLowConsensusPenalty,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Threshold returns the configured consensus threshold.
func (a *Aggregator) Threshold() float64 { return a.threshold }

// Penalty returns the configured low-consensus penalty.
func (a *Aggregator) Penalty() float64 { return a.penalty }

// Aggregate combines vs with the given method.
func (a *Aggregator) Aggregate(vs []verdict.Verdict, m Method) (verdict.Verdict, error) {
	if len(vs) == 0 {
		return verdict.Verdict{}, ErrNoVerdicts
	}
	switch m {
	case MethodVoting:
		return Voting(vs), nil
	case MethodWeightedAverage:
		return WeightedAverage(vs), nil
	case MethodConsensus:
		return Consensus(vs, a.threshold, a.penalty), nil
	default:
		return verdict.Verdict{}, fmt.Errorf("%w: %q", ErrUnknownMethod, m)
	}
}

// Voting picks the most frequent value of each categorical field
// independently. Confidence is the mean input confidence scaled by the share
// of verdicts agreeing on the winning label; disagreement on the other fields
// does not affect it.
func Voting(vs []verdict.Verdict) verdict.Verdict {
	if len(vs) == 1 {
		return vs[0]
	}
	var labels, undertones, seasons, subtypes tally
	total := 0.0
	for _, v := range vs {
		labels.add(v.Label, 1)
		undertones.add(v.Undertone, 1)
		seasons.add(v.Season, 1)
		subtypes.add(v.Subtype, 1)
		total += v.Confidence
	}

	n := float64(len(vs))
	label, votes := labels.winner()
	undertone, _ := undertones.winner()
	season, _ := seasons.winner()
	subtype, _ := subtypes.winner()

	mean := total / n
	ratio := votes / n

	return verdict.Verdict{
		Label:      label,
		Confidence: mean * ratio,
		Undertone:  undertone,
		Season:     season,
		Subtype:    subtype,
		Reasoning: fmt.Sprintf("Ensemble result from %d models. Consensus: %d/%d models agree on '%s'. Individual analyses: %s",
			len(vs), int(votes), len(vs), label, sampleReasoning(vs)),
	}
}

// WeightedAverage weights each verdict's vote by its share of the total
// confidence. Confidence is the self-weighted mean confidence scaled by the
// winning label's weight share. A zero total confidence falls back to Voting.
func WeightedAverage(vs []verdict.Verdict) verdict.Verdict {
	if len(vs) == 1 {
		return vs[0]
	}
	total := 0.0
	for _, v := range vs {
		total += v.Confidence
	}
	if total == 0 {
		return Voting(vs)
	}

	var labels, undertones, seasons, subtypes tally
	selfWeighted := 0.0
	for _, v := range vs {
		w := v.Confidence / total
		labels.add(v.Label, w)
		undertones.add(v.Undertone, w)
		seasons.add(v.Season, w)
		subtypes.add(v.Subtype, w)
		selfWeighted += v.Confidence * v.Confidence / total
	}

	label, share := labels.winner()
	undertone, _ := undertones.winner()
	season, _ := seasons.winner()
	subtype, _ := subtypes.winner()

	return verdict.Verdict{
		Label:      label,
		Confidence: selfWeighted * share,
		Undertone:  undertone,
		Season:     season,
		Subtype:    subtype,
		Reasoning: fmt.Sprintf("Ensemble result (weighted by confidence) from %d models. Primary consensus: %s weighted agreement on '%s'. Analyses: %s",
			len(vs), percent(share), label, sampleReasoning(vs)),
	}
}

// Consensus trusts a plain vote only when enough verdicts agree on the label.
// Below the threshold it reports the weighted result with confidence scaled
// by penalty and a low-consensus marker ahead of the reasoning.
func Consensus(vs []verdict.Verdict, threshold, penalty float64) verdict.Verdict {
	if len(vs) == 1 {
		return vs[0]
	}
	ratio := LabelAgreement(vs)
	if ConsensusReached(ratio, threshold) {
		return Voting(vs)
	}
	out := WeightedAverage(vs)
	out.Confidence *= penalty
	out.Reasoning = fmt.Sprintf("Low consensus (%s). ", percent(ratio)) + out.Reasoning
	return out
}

// LabelAgreement returns the fraction of verdicts that share the most common
// label. It is 0 for an empty list.
func LabelAgreement(vs []verdict.Verdict) float64 {
	if len(vs) == 0 {
		return 0
	}
	var labels tally
	for _, v := range vs {
		labels.add(v.Label, 1)
	}
	_, votes := labels.winner()
	return votes / float64(len(vs))
}

// ConsensusReached compares ratio and threshold at two-decimal precision, so
// two of three verdicts (0.666…) meet the default 0.67 threshold.
func ConsensusReached(ratio, threshold float64) bool {
	return math.Round(ratio*100) >= math.Round(threshold*100)
}

func sampleReasoning(vs []verdict.Verdict) string {
	n := min(len(vs), reasoningSamples)
	parts := make([]string, 0, n)
	for _, v := range vs[:n] {
		parts = append(parts, v.Reasoning)
	}
	return strings.Join(parts, "; ")
}

func percent(share float64) string {
	return fmt.Sprintf("%.1f%%", share*100)
}

// tally accumulates weights per value, remembering first-seen order so that
// ties resolve deterministically.
type tally struct {
	order  []string
	weight map[string]float64
}

func (t *tally) add(value string, w float64) {
	if t.weight == nil {
		t.weight = make(map[string]float64)
	}
	if _, ok := t.weight[value]; !ok {
		t.order = append(t.order, value)
	}
	t.weight[value] += w
}

// winner returns the heaviest value; the earliest value wins a tie.
func (t *tally) winner() (string, float64) {
	if len(t.order) == 0 {
		return "", 0
	}
	best := t.order[0]
	for _, value := range t.order[1:] {
		if t.weight[value] > t.weight[best] {
			best = value
		}
	}
	return best, t.weight[best]
}
