package provider

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for vendor calls.
var (
	ErrInvalidConfiguration = errors.New("invalid provider configuration")
	ErrAPICallFailed        = errors.New("provider API call failed")
	ErrAuthentication       = errors.New("provider rejected credentials")
	ErrRateLimitExceeded    = errors.New("provider rate limit exceeded")
	ErrModelUnavailable     = errors.New("provider model temporarily unavailable")
	ErrContentRejected      = errors.New("provider refused the content")
	ErrTimeout              = errors.New("provider call timed out")
	ErrEmptyResponse        = errors.New("provider returned no text")
)

// Error attributes a call failure to a provider.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(name string, kind error, detail string) error {
	if detail == "" {
		return &Error{Provider: name, Err: kind}
	}
	return &Error{Provider: name, Err: fmt.Errorf("%w: %s", kind, detail)}
}
