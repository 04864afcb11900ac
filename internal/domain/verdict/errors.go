package verdict

import "errors"

// ErrMalformedVerdict reports provider output that is not a usable verdict:
// not JSON after fence stripping, or lacking personal_color_type/confidence.
var ErrMalformedVerdict = errors.New("malformed verdict")
