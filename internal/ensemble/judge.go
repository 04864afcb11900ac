package ensemble

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/okian/seasonal/internal/adapters/provider"
	"github.com/okian/seasonal/internal/domain/verdict"
	"github.com/okian/seasonal/internal/prompts"
)

// summaryEntry is one anonymised verdict as shown to the judge.
type summaryEntry struct {
	Model      string  `json:"model"`
	Label      string  `json:"personal_color_type"`
	Confidence float64 `json:"confidence"`
	Undertone  string  `json:"undertone"`
	Season     string  `json:"season"`
	Subtype    string  `json:"subtype"`
	Reasoning  string  `json:"reasoning"`
}

// Summarize renders verdicts as the indented JSON array embedded in the
// judge prompt. Providers are anonymised as "Model 1", "Model 2", ...
func Summarize(vs []verdict.Verdict) (string, error) {
	entries := make([]summaryEntry, 0, len(vs))
	for i, v := range vs {
		entries = append(entries, summaryEntry{
			Model:      fmt.Sprintf("Model %d", i+1),
			Label:      v.Label,
			Confidence: v.Confidence,
			Undertone:  v.Undertone,
			Season:     v.Season,
			Subtype:    v.Subtype,
			Reasoning:  v.Reasoning,
		})
	}
	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Judge asks the judge member to adjudicate vs and returns its verdict.
// No image is sent. Any failure is a *JudgeError; there is no fallback.
func Judge(ctx context.Context, vs []verdict.Verdict, judge Member, p *prompts.Catalog) (out verdict.Verdict, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, err = verdict.Verdict{}, &JudgeError{Judge: judge.Name, Err: fmt.Errorf("%w: %v", ErrProviderPanic, rec)}
		}
	}()

	summary, err := Summarize(vs)
	if err != nil {
		return verdict.Verdict{}, &JudgeError{Judge: judge.Name, Err: err}
	}
	task, err := p.JudgePrompt(summary)
	if err != nil {
		return verdict.Verdict{}, &JudgeError{Judge: judge.Name, Err: err}
	}

	raw, err := judge.Provider.Classify(ctx, provider.Request{Task: task})
	if err != nil {
		return verdict.Verdict{}, &JudgeError{Judge: judge.Name, Err: err}
	}
	v, err := verdict.Normalize(raw)
	if err != nil {
		return verdict.Verdict{}, &JudgeError{Judge: judge.Name, Err: err}
	}
	return v, nil
}
