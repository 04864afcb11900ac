package ensemble_test

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/seasonal/internal/adapters/provider"
	"github.com/okian/seasonal/internal/domain/aggregate"
	"github.com/okian/seasonal/internal/domain/verdict"
	"github.com/okian/seasonal/internal/ensemble"
	"github.com/okian/seasonal/internal/prompts"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeProvider answers with fn and records every request it receives.
type fakeProvider struct {
	mu   sync.Mutex
	reqs []provider.Request
	fn   func(ctx context.Context, req provider.Request) (string, error)
}

func (f *fakeProvider) Classify(ctx context.Context, req provider.Request) (string, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	return f.fn(ctx, req)
}

func (f *fakeProvider) requests() []provider.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]provider.Request(nil), f.reqs...)
}

func answering(label string, confidence float64) *fakeProvider {
	return &fakeProvider{fn: func(context.Context, provider.Request) (string, error) {
		return fmt.Sprintf(`{"personal_color_type":%q,"confidence":%g,"undertone":"warm","season":%q,"subtype":"deep","reasoning":"saw %s"}`,
			label, confidence, verdict.SeasonOf(label), label), nil
	}}
}

func failing(err error) *fakeProvider {
	return &fakeProvider{fn: func(context.Context, provider.Request) (string, error) { return "", err }}
}

func replying(raw string) *fakeProvider {
	return &fakeProvider{fn: func(context.Context, provider.Request) (string, error) { return raw, nil }}
}

// spyAggregator counts calls before delegating to the real aggregator.
type spyAggregator struct {
	calls atomic.Int32
	inner *aggregate.Aggregator
}

func (s *spyAggregator) Aggregate(vs []verdict.Verdict, m aggregate.Method) (verdict.Verdict, error) {
	s.calls.Add(1)
	return s.inner.Aggregate(vs, m)
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 150, B: 120, A: 255})
		}
	}
	return img
}

func members(gemini, openai, claude provider.Provider) []ensemble.Member {
	return []ensemble.Member{
		{Name: provider.Gemini, Provider: gemini},
		{Name: provider.OpenAI, Provider: openai},
		{Name: provider.Claude, Provider: claude},
	}
}

func TestDispatchAll(t *testing.T) {
	Convey("Given members that finish in reverse order", t, func() {
		delayed := func(label string, d time.Duration) *fakeProvider {
			base := answering(label, 0.5)
			return &fakeProvider{fn: func(ctx context.Context, req provider.Request) (string, error) {
				time.Sleep(d)
				return base.fn(ctx, req)
			}}
		}
		ms := members(delayed("Deep Autumn", 60*time.Millisecond), delayed("Cool Winter", 30*time.Millisecond), delayed("Light Spring", 0))

		Convey("When they are dispatched", func() {
			results := ensemble.DispatchAll(context.Background(), &provider.Image{Data: []byte("x"), MIMEType: "image/png"}, ms, prompts.Default())

			Convey("Then results follow member order", func() {
				So(len(results), ShouldEqual, 3)
				So(results[0].Provider, ShouldEqual, provider.Gemini)
				So(results[0].Verdict.Label, ShouldEqual, "Deep Autumn")
				So(results[1].Verdict.Label, ShouldEqual, "Cool Winter")
				So(results[2].Verdict.Label, ShouldEqual, "Light Spring")
			})
		})
	})

	Convey("Given one member that panics and one that returns prose", t, func() {
		panicking := &fakeProvider{fn: func(context.Context, provider.Request) (string, error) { panic("boom") }}
		ms := members(panicking, replying("I believe this is Deep Autumn."), answering("Soft Summer", 0.7))

		Convey("When they are dispatched", func() {
			results := ensemble.DispatchAll(context.Background(), nil, ms, prompts.Default())

			Convey("Then each failure stays in its own slot", func() {
				So(errors.Is(results[0].Err, ensemble.ErrProviderPanic), ShouldBeTrue)
				So(errors.Is(results[1].Err, verdict.ErrMalformedVerdict), ShouldBeTrue)
				So(results[2].OK(), ShouldBeTrue)
			})

			Convey("Then failures carry the provider name", func() {
				var perr *provider.Error
				So(errors.As(results[1].Err, &perr), ShouldBeTrue)
				So(perr.Provider, ShouldEqual, provider.OpenAI)
			})

			Convey("Then only the success is kept", func() {
				So(ensemble.Successes(results), ShouldHaveLength, 1)
				So(ensemble.Failures(results), ShouldHaveLength, 2)
			})
		})
	})

	Convey("Given a fast failure and a slow success", t, func() {
		slow := &fakeProvider{fn: func(ctx context.Context, _ provider.Request) (string, error) {
			select {
			case <-time.After(40 * time.Millisecond):
				return `{"personal_color_type":"Warm Autumn","confidence":0.6}`, nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}}
		ms := []ensemble.Member{{Name: "fast", Provider: failing(provider.ErrRateLimitExceeded)}, {Name: "slow", Provider: slow}}

		Convey("Then the failure does not cancel its sibling", func() {
			results := ensemble.DispatchAll(context.Background(), nil, ms, prompts.Default())
			So(results[0].OK(), ShouldBeFalse)
			So(results[1].OK(), ShouldBeTrue)
			So(results[1].Verdict.Label, ShouldEqual, "Warm Autumn")
		})
	})
}

func TestAnalyzeParallel(t *testing.T) {
	Convey("Given an orchestrator with a spy aggregator", t, func() {
		spy := &spyAggregator{inner: aggregate.New()}

		Convey("When two providers agree and one fails", func() {
			g, o, c := answering("Deep Autumn", 0.9), failing(provider.ErrTimeout), answering("Deep Autumn", 0.7)
			orch, err := ensemble.New(members(g, o, c), ensemble.WithAggregator(spy))
			So(err, ShouldBeNil)

			out, err := orch.Parallel(context.Background(), testImage(), aggregate.MethodVoting)

			Convey("Then the surviving verdicts are aggregated", func() {
				So(err, ShouldBeNil)
				So(out.Verdict.Label, ShouldEqual, "Deep Autumn")
				So(out.Verdict.Confidence, ShouldAlmostEqual, 0.8, 1e-9)
				So(out.Verdict.Reasoning, ShouldContainSubstring, "2/2 models agree")
				So(spy.calls.Load(), ShouldEqual, int32(1))
			})

			Convey("Then every provider saw the same PNG image and prompts", func() {
				for _, p := range []*fakeProvider{g, o, c} {
					reqs := p.requests()
					So(reqs, ShouldHaveLength, 1)
					So(reqs[0].Image, ShouldNotBeNil)
					So(reqs[0].Image.MIMEType, ShouldEqual, "image/png")
					So(string(reqs[0].Image.Data[:4]), ShouldEqual, "\x89PNG")
					So(reqs[0].System, ShouldEqual, prompts.Default().System)
					So(reqs[0].Task, ShouldEqual, prompts.Default().Task)
				}
			})

			Convey("Then the failure is reported in the outcome", func() {
				So(out.Results[1].OK(), ShouldBeFalse)
				So(errors.Is(out.Results[1].Err, provider.ErrTimeout), ShouldBeTrue)
			})
		})

		Convey("When every provider fails", func() {
			orch, _ := ensemble.New(members(
				failing(provider.ErrAuthentication),
				replying("not json"),
				failing(provider.ErrModelUnavailable),
			), ensemble.WithAggregator(spy))

			_, err := orch.AnalyzeParallel(context.Background(), testImage(), aggregate.MethodConsensus)

			Convey("Then ErrAllProvidersFailed is returned without aggregating", func() {
				So(errors.Is(err, ensemble.ErrAllProvidersFailed), ShouldBeTrue)
				So(spy.calls.Load(), ShouldEqual, int32(0))
			})

			Convey("Then every failure is available to the caller", func() {
				var all *ensemble.AllProvidersFailedError
				So(errors.As(err, &all), ShouldBeTrue)
				So(all.Failures, ShouldHaveLength, 3)
				So(errors.Is(err, provider.ErrAuthentication), ShouldBeTrue)
				So(errors.Is(err, verdict.ErrMalformedVerdict), ShouldBeTrue)
			})
		})

		Convey("When the method is unknown", func() {
			g := answering("Deep Autumn", 0.9)
			orch, _ := ensemble.New(members(g, answering("Deep Autumn", 0.9), answering("Deep Autumn", 0.9)))

			_, err := orch.AnalyzeParallel(context.Background(), testImage(), aggregate.Method("median"))

			Convey("Then nothing is dispatched", func() {
				So(errors.Is(err, aggregate.ErrUnknownMethod), ShouldBeTrue)
				So(g.requests(), ShouldBeEmpty)
			})
		})

		Convey("When the image is nil", func() {
			orch, _ := ensemble.New(members(answering("A", 1), answering("A", 1), answering("A", 1)))
			_, err := orch.AnalyzeParallel(context.Background(), nil, aggregate.MethodVoting)
			So(errors.Is(err, ensemble.ErrInvalidImage), ShouldBeTrue)
		})
	})
}

func TestAnalyzeHybrid(t *testing.T) {
	Convey("Given three providers with claude as judge", t, func() {
		g, o := answering("Deep Autumn", 0.8), answering("Soft Autumn", 0.6)
		judge := replying(`{"personal_color_type":"Soft Autumn","confidence":0.75,"undertone":"Warm","season":"Autumn","subtype":"soft","reasoning":"minority reasoning is stronger"}`)
		orch, err := ensemble.New(members(g, o, judge))
		So(err, ShouldBeNil)

		Convey("When a hybrid analysis runs", func() {
			out, err := orch.Hybrid(context.Background(), testImage(), provider.Claude)

			Convey("Then the judge's verdict is returned normalised", func() {
				So(err, ShouldBeNil)
				So(out.Verdict.Label, ShouldEqual, "Soft Autumn")
				So(out.Verdict.Undertone, ShouldEqual, "warm")
				So(out.Judge, ShouldEqual, provider.Claude)
			})

			Convey("Then only the two other providers classify the image", func() {
				So(out.Results, ShouldHaveLength, 2)
				So(out.Results[0].Provider, ShouldEqual, provider.Gemini)
				So(out.Results[1].Provider, ShouldEqual, provider.OpenAI)
			})

			Convey("Then the judge gets a text-only adjudication prompt", func() {
				reqs := judge.requests()
				So(reqs, ShouldHaveLength, 1)
				So(reqs[0].Image, ShouldBeNil)
				So(reqs[0].Task, ShouldContainSubstring, `"model": "Model 1"`)
				So(reqs[0].Task, ShouldContainSubstring, `"model": "Model 2"`)
				So(reqs[0].Task, ShouldContainSubstring, `"personal_color_type": "Deep Autumn"`)
				So(reqs[0].Task, ShouldNotContainSubstring, provider.Gemini)
			})
		})

		Convey("When gemini is the judge", func() {
			_, err := orch.AnalyzeHybrid(context.Background(), testImage(), provider.Gemini)

			Convey("Then openai and claude form the panel", func() {
				So(err, ShouldBeNil)
				So(len(g.requests()), ShouldEqual, 1)
				So(g.requests()[0].Image, ShouldBeNil)
				So(len(judge.requests()), ShouldEqual, 1)
				So(judge.requests()[0].Image, ShouldNotBeNil)
			})
		})

		Convey("When the judge is unknown", func() {
			_, err := orch.AnalyzeHybrid(context.Background(), testImage(), "mistral")

			Convey("Then ErrUnknownProvider is returned before dispatch", func() {
				So(errors.Is(err, ensemble.ErrUnknownProvider), ShouldBeTrue)
				So(g.requests(), ShouldBeEmpty)
			})
		})
	})

	Convey("Given a hybrid panel where one provider fails", t, func() {
		judge := replying(`{"personal_color_type":"Deep Autumn","confidence":0.7}`)
		orch, _ := ensemble.New(members(answering("Deep Autumn", 0.8), failing(provider.ErrRateLimitExceeded), judge))

		Convey("Then the judge still rules on the single verdict", func() {
			v, err := orch.AnalyzeHybrid(context.Background(), testImage(), provider.Claude)
			So(err, ShouldBeNil)
			So(v.Label, ShouldEqual, "Deep Autumn")
			So(judge.requests()[0].Task, ShouldContainSubstring, `"model": "Model 1"`)
			So(judge.requests()[0].Task, ShouldNotContainSubstring, `"model": "Model 2"`)
		})
	})

	Convey("Given a hybrid panel where both providers fail", t, func() {
		judge := replying(`{"personal_color_type":"Deep Autumn","confidence":0.7}`)
		orch, _ := ensemble.New(members(failing(provider.ErrTimeout), failing(provider.ErrTimeout), judge))

		Convey("Then ErrAllProvidersFailed is returned and the judge is not called", func() {
			_, err := orch.AnalyzeHybrid(context.Background(), testImage(), provider.Claude)
			So(errors.Is(err, ensemble.ErrAllProvidersFailed), ShouldBeTrue)
			So(judge.requests(), ShouldBeEmpty)
		})
	})

	Convey("Given a judge that fails", t, func() {
		spy := &spyAggregator{inner: aggregate.New()}

		Convey("When the judge call errors", func() {
			orch, _ := ensemble.New(members(answering("Deep Autumn", 0.8), answering("Deep Autumn", 0.9), failing(provider.ErrModelUnavailable)), ensemble.WithAggregator(spy))
			_, err := orch.AnalyzeHybrid(context.Background(), testImage(), provider.Claude)

			Convey("Then ErrJudgeFailure is returned with no aggregation fallback", func() {
				So(errors.Is(err, ensemble.ErrJudgeFailure), ShouldBeTrue)
				So(errors.Is(err, provider.ErrModelUnavailable), ShouldBeTrue)
				So(spy.calls.Load(), ShouldEqual, int32(0))

				var jerr *ensemble.JudgeError
				So(errors.As(err, &jerr), ShouldBeTrue)
				So(jerr.Judge, ShouldEqual, provider.Claude)
			})
		})

		Convey("When the judge replies with malformed output", func() {
			orch, _ := ensemble.New(members(answering("Deep Autumn", 0.8), answering("Deep Autumn", 0.9), replying(`{"confidence":0.9}`)))
			_, err := orch.AnalyzeHybrid(context.Background(), testImage(), provider.Claude)

			Convey("Then the malformed reply is a judge failure", func() {
				So(errors.Is(err, ensemble.ErrJudgeFailure), ShouldBeTrue)
				So(errors.Is(err, verdict.ErrMalformedVerdict), ShouldBeTrue)
			})
		})
	})
}

func TestSummarize(t *testing.T) {
	Convey("Given verdicts for the judge", t, func() {
		out, err := ensemble.Summarize([]verdict.Verdict{
			{Label: "Deep Autumn", Confidence: 0.8, Undertone: "warm", Season: "autumn", Subtype: "deep", Reasoning: "golden"},
		})

		Convey("Then they are rendered as an indented JSON array in field order", func() {
			So(err, ShouldBeNil)
			So(out, ShouldEqual, strings.Join([]string{
				"[",
				"  {",
				`    "model": "Model 1",`,
				`    "personal_color_type": "Deep Autumn",`,
				`    "confidence": 0.8,`,
				`    "undertone": "warm",`,
				`    "season": "autumn",`,
				`    "subtype": "deep",`,
				`    "reasoning": "golden"`,
				"  }",
				"]",
			}, "\n"))
		})
	})
}

func TestNew(t *testing.T) {
	Convey("Given member lists", t, func() {
		Convey("Then an empty list is rejected", func() {
			_, err := ensemble.New(nil)
			So(errors.Is(err, ensemble.ErrNoMembers), ShouldBeTrue)
		})

		Convey("Then duplicate names are rejected", func() {
			p := answering("Deep Autumn", 0.5)
			_, err := ensemble.New([]ensemble.Member{{Name: "a", Provider: p}, {Name: "a", Provider: p}})
			So(errors.Is(err, ensemble.ErrInvalidMember), ShouldBeTrue)
		})

		Convey("Then a nil provider is rejected", func() {
			_, err := ensemble.New([]ensemble.Member{{Name: "a"}})
			So(errors.Is(err, ensemble.ErrInvalidMember), ShouldBeTrue)
		})

		Convey("Then a sole member cannot run hybrid mode", func() {
			orch, err := ensemble.New([]ensemble.Member{{Name: "a", Provider: answering("Deep Autumn", 0.5)}})
			So(err, ShouldBeNil)
			So(orch.Members(), ShouldResemble, []string{"a"})
			_, err = orch.AnalyzeHybrid(context.Background(), testImage(), "a")
			So(errors.Is(err, ensemble.ErrNoMembers), ShouldBeTrue)
		})
	})
}
