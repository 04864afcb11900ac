package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	jobqueue "github.com/okian/seasonal/internal/adapters/mq/queue"
	"github.com/okian/seasonal/internal/domain/aggregate"
	"github.com/okian/seasonal/internal/domain/model"
	"github.com/okian/seasonal/internal/domain/types"
	"github.com/okian/seasonal/internal/ensemble"
	"github.com/okian/seasonal/pkg/logger"
	"github.com/okian/seasonal/pkg/metrics"
)

// Submission describes an asynchronous analysis request.
type Submission struct {
	Mode   model.Mode
	Method string
	Judge  string
	Image  image.Image
}

// AnalyzeParallel classifies img with every provider and aggregates the
// verdicts with method, or the default method when method is empty.
func (s *Service) AnalyzeParallel(ctx context.Context, img image.Image, method string) (types.AnalysisResponse, error) {
	m, err := s.method(method)
	if err != nil {
		return types.AnalysisResponse{}, err
	}
	out, err := s.run(ctx, model.ModeParallel, m, "", img)
	if err != nil {
		return types.AnalysisResponse{}, err
	}
	return types.AnalysisResponse{
		Verdict:   out.Verdict,
		Mode:      string(model.ModeParallel),
		Method:    m.String(),
		Providers: types.Statuses(outcomes(out.Results)),
	}, nil
}

// AnalyzeHybrid classifies img with every provider except judge and lets the
// judge adjudicate. An empty judge selects the default judge.
func (s *Service) AnalyzeHybrid(ctx context.Context, img image.Image, judge string) (types.AnalysisResponse, error) {
	judge = s.judge(judge)
	out, err := s.run(ctx, model.ModeHybrid, "", judge, img)
	if err != nil {
		return types.AnalysisResponse{}, err
	}
	return types.AnalysisResponse{
		Verdict:   out.Verdict,
		Mode:      string(model.ModeHybrid),
		Judge:     judge,
		Providers: types.Statuses(outcomes(out.Results)),
	}, nil
}

// Analyze runs a queued job. It satisfies the worker pool's Analyzer.
func (s *Service) Analyze(ctx context.Context, j model.Job) (model.Report, error) { //nolint:gocritic // hugeParam: Job is passed by value through the queue
	var m aggregate.Method
	if j.Mode == model.ModeParallel {
		parsed, err := s.method(j.Method)
		if err != nil {
			return model.Report{}, err
		}
		m = parsed
	}
	out, err := s.run(ctx, j.Mode, m, j.Judge, j.Image)
	return model.Report{Verdict: out.Verdict, Providers: outcomes(out.Results)}, err
}

// Submit queues an analysis and returns its id. A repeated idempotencyKey
// returns the id of the analysis it first produced.
func (s *Service) Submit(ctx context.Context, sub Submission, idempotencyKey string) (types.SubmitResponse, error) { //nolint:gocritic // hugeParam: Submission is a request value
	job, err := s.job(sub)
	if err != nil {
		return types.SubmitResponse{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return types.SubmitResponse{}, ErrNotStarted
	}

	if idempotencyKey != "" {
		s.submitMu.Lock()
		defer s.submitMu.Unlock()
		if existing, seen := s.deduper.SeenAndRecord(ctx, idempotencyKey, job.ID); seen {
			rec, err := s.store.Get(ctx, existing)
			if err == nil {
				metrics.RecordDuplicateSubmission()
				s.logger.Debug(ctx, "duplicate submission",
					logger.String("idempotency_key", idempotencyKey),
					logger.String("analysis_id", existing),
				)
				return types.SubmitResponse{ID: existing, Status: string(rec.Status), Duplicate: true}, nil
			}
			// The record was evicted; bind the key to a fresh analysis.
			s.deduper.Unrecord(ctx, idempotencyKey)
			s.deduper.SeenAndRecord(ctx, idempotencyKey, job.ID)
		}
	}

	rec := &model.Analysis{
		ID:          job.ID,
		Mode:        job.Mode,
		Method:      job.Method,
		Judge:       job.Judge,
		Status:      model.StatusQueued,
		SubmittedAt: job.TS,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		s.forget(ctx, idempotencyKey)
		return types.SubmitResponse{}, fmt.Errorf("record analysis: %w", err)
	}

	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.store.Delete(ctx, job.ID)
		s.forget(ctx, idempotencyKey)
		switch {
		case errors.Is(err, jobqueue.ErrFull):
			return types.SubmitResponse{}, ErrBackpressure
		case errors.Is(err, jobqueue.ErrClosed):
			return types.SubmitResponse{}, ErrStopped
		default:
			return types.SubmitResponse{}, err
		}
	}

	s.logger.Debug(ctx, "analysis queued",
		logger.String("analysis_id", job.ID),
		logger.String("mode", string(job.Mode)),
	)
	return types.SubmitResponse{ID: job.ID, Status: string(model.StatusQueued)}, nil
}

// Analysis returns the polling view of an asynchronous analysis.
func (s *Service) Analysis(ctx context.Context, id string) (types.AnalysisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return types.AnalysisRecord{}, ErrNotStarted
	}

	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return types.AnalysisRecord{}, err
	}
	return types.FromAnalysis(&rec), nil
}

func (s *Service) job(sub Submission) (model.Job, error) { //nolint:gocritic // hugeParam: Submission is a request value
	j := model.Job{ID: s.newID(), Mode: sub.Mode, Image: sub.Image, TS: time.Now()}
	switch sub.Mode {
	case model.ModeParallel:
		m, err := s.method(sub.Method)
		if err != nil {
			return model.Job{}, err
		}
		j.Method = m.String()
	case model.ModeHybrid:
		j.Judge = s.judge(sub.Judge)
		if !s.isMember(j.Judge) {
			return model.Job{}, fmt.Errorf("%w: %q", ensemble.ErrUnknownProvider, j.Judge)
		}
	default:
		return model.Job{}, fmt.Errorf("%w: %q", ErrInvalidMode, sub.Mode)
	}
	if sub.Image == nil || sub.Image.Bounds().Empty() {
		return model.Job{}, fmt.Errorf("%w: missing or empty image", ensemble.ErrInvalidImage)
	}
	return j, nil
}

// run executes one analysis and records its log line and metrics.
func (s *Service) run(ctx context.Context, mode model.Mode, m aggregate.Method, judge string, img image.Image) (ensemble.Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, s.analysisTimeout)
	defer cancel()

	start := time.Now()
	var (
		out ensemble.Outcome
		err error
	)
	if mode == model.ModeHybrid {
		out, err = s.ensemble.Hybrid(ctx, img, judge)
	} else {
		out, err = s.ensemble.Parallel(ctx, img, m)
	}
	s.observe(ctx, mode, m, judge, out, err, time.Since(start))
	return out, err
}

func (s *Service) observe(ctx context.Context, mode model.Mode, m aggregate.Method, judge string, out ensemble.Outcome, err error, elapsed time.Duration) { //nolint:gocritic // hugeParam: Outcome is read once
	methodLabel := m.String()
	if mode == model.ModeHybrid {
		methodLabel = "judge"
	}
	ms := float64(elapsed.Milliseconds())
	metrics.RecordAnalysis(string(mode), methodLabel, outcomeLabel(err), ms)

	log := s.logger
	failed := ensemble.Failures(out.Results)
	for _, f := range failed {
		log.Debug(ctx, "provider failed",
			logger.String("provider", f.Provider),
			logger.Error(f.Err),
		)
	}

	if err != nil {
		var je *ensemble.JudgeError
		if errors.As(err, &je) {
			metrics.RecordJudgeFailure(je.Judge)
		}
		log.Warn(ctx, "analysis failed",
			logger.String("mode", string(mode)),
			logger.String("method", methodLabel),
			logger.String("judge", judge),
			logger.Int("failed_providers", len(failed)),
			logger.Duration("elapsed", elapsed),
			logger.Error(err),
		)
		return
	}

	metrics.RecordVerdictConfidence(string(mode), out.Verdict.Confidence)
	if mode == model.ModeParallel {
		metrics.RecordConsensusRatio(aggregate.LabelAgreement(ensemble.Successes(out.Results)))
	}
	log.Info(ctx, "analysis completed",
		logger.String("mode", string(mode)),
		logger.String("method", methodLabel),
		logger.String("judge", judge),
		logger.String("label", out.Verdict.Label),
		logger.Float64("confidence", out.Verdict.Confidence),
		logger.Int("succeeded", len(out.Results)-len(failed)),
		logger.Int("providers", len(out.Results)),
		logger.Duration("elapsed", elapsed),
	)
}

func (s *Service) method(name string) (aggregate.Method, error) {
	if strings.TrimSpace(name) == "" {
		return s.defaultMethod, nil
	}
	return aggregate.ParseMethod(name)
}

func (s *Service) judge(name string) string {
	if name = strings.ToLower(strings.TrimSpace(name)); name == "" {
		return s.defaultJudge
	}
	return name
}

func (s *Service) isMember(name string) bool {
	for _, m := range s.ensemble.Members() {
		if m == name {
			return true
		}
	}
	return false
}

func (s *Service) forget(ctx context.Context, key string) {
	if key != "" {
		s.deduper.Unrecord(ctx, key)
	}
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ensemble.ErrAllProvidersFailed):
		return "all_failed"
	case errors.Is(err, ensemble.ErrJudgeFailure):
		return "judge_failed"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "invalid"
	}
}

func outcomes(results []ensemble.Result) []model.ProviderOutcome {
	out := make([]model.ProviderOutcome, 0, len(results))
	for _, r := range results {
		o := model.ProviderOutcome{Provider: r.Provider, OK: r.OK()}
		if r.Err != nil {
			o.Error = r.Err.Error()
		}
		out = append(out, o)
	}
	return out
}
