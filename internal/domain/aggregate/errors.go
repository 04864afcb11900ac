package aggregate

import "errors"

// Sentinel error kinds for this package.
var (
	ErrNoVerdicts    = errors.New("no verdicts to aggregate")
	ErrUnknownMethod = errors.New("unknown aggregation method")
)
