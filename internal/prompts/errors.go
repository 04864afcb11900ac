package prompts

import "errors"

// ErrInvalidCatalog reports a prompt catalog that cannot be used.
var ErrInvalidCatalog = errors.New("invalid prompt catalog")
