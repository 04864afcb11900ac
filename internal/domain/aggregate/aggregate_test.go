package aggregate_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/okian/seasonal/internal/domain/aggregate"
	"github.com/okian/seasonal/internal/domain/verdict"
	. "github.com/smartystreets/goconvey/convey"
)

func v(label string, confidence float64) verdict.Verdict {
	return verdict.Verdict{
		Label:      label,
		Confidence: confidence,
		Undertone:  "warm",
		Season:     verdict.SeasonOf(label),
		Subtype:    "deep",
		Reasoning:  "analysis of " + label,
	}
}

func TestParseMethod(t *testing.T) {
	Convey("Given method names", t, func() {
		Convey("Then supported names parse", func() {
			for _, m := range aggregate.Methods() {
				got, err := aggregate.ParseMethod(m.String())
				So(err, ShouldBeNil)
				So(got, ShouldEqual, m)
			}
		})

		Convey("Then case and surrounding space are ignored", func() {
			got, err := aggregate.ParseMethod("  Weighted_Average ")
			So(err, ShouldBeNil)
			So(got, ShouldEqual, aggregate.MethodWeightedAverage)
		})

		Convey("Then unknown names are rejected", func() {
			_, err := aggregate.ParseMethod("median")
			So(errors.Is(err, aggregate.ErrUnknownMethod), ShouldBeTrue)
		})
	})
}

func TestVoting(t *testing.T) {
	Convey("Given three verdicts where two agree", t, func() {
		vs := []verdict.Verdict{v("Deep Autumn", 0.9), v("Cool Winter", 0.8), v("Deep Autumn", 0.7)}

		Convey("When they are aggregated by voting", func() {
			out := aggregate.Voting(vs)

			Convey("Then the majority label wins", func() {
				So(out.Label, ShouldEqual, "Deep Autumn")
			})

			Convey("Then confidence is the mean scaled by agreement", func() {
				So(out.Confidence, ShouldAlmostEqual, 0.8*2.0/3.0, 1e-9)
			})

			Convey("Then the reasoning describes the vote", func() {
				So(out.Reasoning, ShouldStartWith, "Ensemble result from 3 models. Consensus: 2/3 models agree on 'Deep Autumn'.")
				So(out.Reasoning, ShouldEndWith, "Individual analyses: analysis of Deep Autumn; analysis of Cool Winter")
			})
		})
	})

	Convey("Given fields that disagree independently", t, func() {
		a := v("Deep Autumn", 0.5)
		b := v("Deep Autumn", 0.5)
		c := v("Soft Summer", 0.5)
		a.Undertone, b.Undertone, c.Undertone = "cool", "neutral", "neutral"
		a.Subtype, b.Subtype, c.Subtype = "soft", "soft", "light"

		out := aggregate.Voting([]verdict.Verdict{a, b, c})

		Convey("Then each field takes its own majority", func() {
			So(out.Label, ShouldEqual, "Deep Autumn")
			So(out.Undertone, ShouldEqual, "neutral")
			So(out.Subtype, ShouldEqual, "soft")
		})
	})

	Convey("Given a tie between labels", t, func() {
		vs := []verdict.Verdict{v("Bright Spring", 0.4), v("Cool Summer", 0.9)}

		Convey("Then the first-encountered label wins", func() {
			So(aggregate.Voting(vs).Label, ShouldEqual, "Bright Spring")
		})
	})

	Convey("Given a single verdict", t, func() {
		only := v("Light Summer", 0.66)

		Convey("Then it is returned unchanged", func() {
			So(aggregate.Voting([]verdict.Verdict{only}), ShouldResemble, only)
		})
	})
}

func TestWeightedAverage(t *testing.T) {
	Convey("Given one confident and one unsure verdict", t, func() {
		vs := []verdict.Verdict{v("Deep Autumn", 0.9), v("Cool Winter", 0.1)}

		Convey("When they are aggregated by weighted average", func() {
			out := aggregate.WeightedAverage(vs)

			Convey("Then the confident label wins", func() {
				So(out.Label, ShouldEqual, "Deep Autumn")
			})

			Convey("Then confidence is self-weighted and scaled by the winner's share", func() {
				So(out.Confidence, ShouldAlmostEqual, 0.738, 1e-9)
			})

			Convey("Then the reasoning reports the weighted agreement", func() {
				So(out.Reasoning, ShouldContainSubstring, "Primary consensus: 90.0% weighted agreement on 'Deep Autumn'")
				So(out.Reasoning, ShouldStartWith, "Ensemble result (weighted by confidence) from 2 models.")
			})
		})
	})

	Convey("Given a confident minority", t, func() {
		vs := []verdict.Verdict{v("Soft Summer", 0.2), v("Soft Summer", 0.2), v("Deep Winter", 0.95)}

		Convey("Then weight outvotes headcount", func() {
			So(aggregate.WeightedAverage(vs).Label, ShouldEqual, "Deep Winter")
			So(aggregate.Voting(vs).Label, ShouldEqual, "Soft Summer")
		})
	})

	Convey("Given verdicts that all report zero confidence", t, func() {
		vs := []verdict.Verdict{v("Light Spring", 0), v("Warm Spring", 0), v("Light Spring", 0)}

		Convey("Then the result equals voting", func() {
			So(aggregate.WeightedAverage(vs), ShouldResemble, aggregate.Voting(vs))
		})
	})
}

func TestConsensus(t *testing.T) {
	Convey("Given the default consensus settings", t, func() {
		agg := aggregate.New()

		Convey("When two of three verdicts agree", func() {
			vs := []verdict.Verdict{v("Deep Autumn", 0.9), v("Cool Winter", 0.8), v("Deep Autumn", 0.7)}
			out, err := agg.Aggregate(vs, aggregate.MethodConsensus)

			Convey("Then the plain vote is trusted", func() {
				So(err, ShouldBeNil)
				So(out, ShouldResemble, aggregate.Voting(vs))
			})
		})

		Convey("When every verdict disagrees", func() {
			vs := []verdict.Verdict{v("Deep Autumn", 0.9), v("Cool Winter", 0.6), v("Light Spring", 0.3)}
			out, err := agg.Aggregate(vs, aggregate.MethodConsensus)
			weighted := aggregate.WeightedAverage(vs)

			Convey("Then the weighted result is penalised", func() {
				So(err, ShouldBeNil)
				So(out.Label, ShouldEqual, weighted.Label)
				So(out.Confidence, ShouldAlmostEqual, weighted.Confidence*0.7, 1e-9)
			})

			Convey("Then the reasoning is marked as low consensus", func() {
				So(out.Reasoning, ShouldStartWith, "Low consensus (33.3%). ")
				So(strings.TrimPrefix(out.Reasoning, "Low consensus (33.3%). "), ShouldEqual, weighted.Reasoning)
			})
		})
	})

	Convey("Given a stricter threshold and custom penalty", t, func() {
		agg := aggregate.New(aggregate.WithConsensusThreshold(0.9), aggregate.WithLowConsensusPenalty(0.5))
		vs := []verdict.Verdict{v("Deep Autumn", 0.9), v("Cool Winter", 0.8), v("Deep Autumn", 0.7)}

		Convey("Then two of three no longer counts as consensus", func() {
			out, err := agg.Aggregate(vs, aggregate.MethodConsensus)
			So(err, ShouldBeNil)
			So(out.Confidence, ShouldAlmostEqual, aggregate.WeightedAverage(vs).Confidence*0.5, 1e-9)
			So(out.Reasoning, ShouldStartWith, "Low consensus (66.7%). ")
		})
	})

	Convey("Given out-of-range option values", t, func() {
		agg := aggregate.New(aggregate.WithConsensusThreshold(0), aggregate.WithLowConsensusPenalty(1.5))

		Convey("Then the defaults are kept", func() {
			So(agg.Threshold(), ShouldEqual, aggregate.DefaultConsensusThreshold)
			So(agg.Penalty(), ShouldEqual, aggregate.DefaultLowConsensusPenalty)
		})
	})
}

func TestConsensusReached(t *testing.T) {
	Convey("Given agreement ratios", t, func() {
		Convey("Then two of three meets 0.67", func() {
			So(aggregate.ConsensusReached(2.0/3.0, 0.67), ShouldBeTrue)
		})
		Convey("Then one of two misses 0.67", func() {
			So(aggregate.ConsensusReached(0.5, 0.67), ShouldBeFalse)
		})
		Convey("Then unanimity always meets the threshold", func() {
			So(aggregate.ConsensusReached(1, 1), ShouldBeTrue)
		})
	})
}

func TestAggregator(t *testing.T) {
	Convey("Given an aggregator", t, func() {
		agg := aggregate.New()

		Convey("When there are no verdicts", func() {
			_, err := agg.Aggregate(nil, aggregate.MethodVoting)

			Convey("Then ErrNoVerdicts is returned", func() {
				So(errors.Is(err, aggregate.ErrNoVerdicts), ShouldBeTrue)
			})
		})

		Convey("When the method is unknown", func() {
			_, err := agg.Aggregate([]verdict.Verdict{v("Deep Autumn", 0.5)}, aggregate.Method("median"))

			Convey("Then ErrUnknownMethod is returned", func() {
				So(errors.Is(err, aggregate.ErrUnknownMethod), ShouldBeTrue)
			})
		})

		Convey("When a single verdict is aggregated with any method", func() {
			only := v("Cool Winter", 0.42)

			Convey("Then it comes back unchanged", func() {
				for _, m := range aggregate.Methods() {
					out, err := agg.Aggregate([]verdict.Verdict{only}, m)
					So(err, ShouldBeNil)
					So(out, ShouldResemble, only)
				}
			})
		})

		Convey("When the same list is aggregated twice", func() {
			vs := []verdict.Verdict{v("Soft Autumn", 0.55), v("Deep Autumn", 0.61), v("Soft Autumn", 0.4)}

			Convey("Then the results are identical", func() {
				for _, m := range aggregate.Methods() {
					first, err1 := agg.Aggregate(vs, m)
					second, err2 := agg.Aggregate(vs, m)
					So(err1, ShouldBeNil)
					So(err2, ShouldBeNil)
					So(first, ShouldResemble, second)
				}
			})
		})

		Convey("When verdicts are aggregated", func() {
			vs := []verdict.Verdict{v("Deep Autumn", 0.9), v("Cool Winter", 0.8), v("Light Spring", 0.2)}

			Convey("Then confidence stays within the unit interval", func() {
				for _, m := range aggregate.Methods() {
					out, err := agg.Aggregate(vs, m)
					So(err, ShouldBeNil)
					So(out.Confidence, ShouldBeBetweenOrEqual, 0.0, 1.0)
				}
			})
		})
	})
}

func TestLabelAgreement(t *testing.T) {
	Convey("Given verdict lists", t, func() {
		Convey("Then an empty list has zero agreement", func() {
			So(aggregate.LabelAgreement(nil), ShouldEqual, 0.0)
		})
		Convey("Then unanimous verdicts agree fully", func() {
			So(aggregate.LabelAgreement([]verdict.Verdict{v("Deep Autumn", 0.1), v("Deep Autumn", 0.2)}), ShouldEqual, 1.0)
		})
	})
}
