package ensemble

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error kinds that cross the orchestrator boundary.
var (
	ErrAllProvidersFailed = errors.New("all providers failed")
	ErrJudgeFailure       = errors.New("judge failed")
	ErrUnknownProvider    = errors.New("unknown provider")
	ErrNoMembers          = errors.New("ensemble has no members")
	ErrInvalidMember      = errors.New("invalid ensemble member")
	ErrInvalidImage       = errors.New("invalid image")
	ErrProviderPanic      = errors.New("provider panicked")
)

// AllProvidersFailedError lists every provider failure of one dispatch.
type AllProvidersFailedError struct {
	Failures []Result
}

func (e *AllProvidersFailedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, r := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", r.Provider, r.Err))
	}
	return fmt.Sprintf("%v: %s", ErrAllProvidersFailed, strings.Join(parts, "; "))
}

func (e *AllProvidersFailedError) Is(target error) bool { return target == ErrAllProvidersFailed }

// Unwrap exposes the individual provider errors.
func (e *AllProvidersFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, r := range e.Failures {
		errs = append(errs, r.Err)
	}
	return errs
}

// JudgeError reports a failed adjudication call or an unusable judge reply.
type JudgeError struct {
	Judge string
	Err   error
}

func (e *JudgeError) Error() string {
	return fmt.Sprintf("%v (%s): %v", ErrJudgeFailure, e.Judge, e.Err)
}

func (e *JudgeError) Is(target error) bool { return target == ErrJudgeFailure }

func (e *JudgeError) Unwrap() error { return e.Err }
