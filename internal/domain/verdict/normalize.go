package verdict

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	jsonFence = "```json"
	fence     = "```"
)

// validate is shared; validator caches struct metadata and is safe for concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled()) //nolint:gochecknoglobals // shared validator

// rawVerdict mirrors the JSON shape providers are asked to emit. Pointers
// distinguish absent/null fields from zero values.
type rawVerdict struct {
	Label      *string `json:"personal_color_type" validate:"required,min=1"`
	Confidence *score  `json:"confidence" validate:"required,gte=0,lte=1"`
	Undertone  *string `json:"undertone"`
	Season     *string `json:"season"`
	Subtype    *string `json:"subtype"`
	Reasoning  *string `json:"reasoning"`
}

// score is a confidence that some providers emit as a quoted number.
type score float64

func (s *score) UnmarshalJSON(b []byte) error {
	var text string
	if err := json.Unmarshal(b, &text); err != nil {
		var f float64
		if err := json.Unmarshal(b, &f); err != nil {
			return fmt.Errorf("confidence must be a number: %s", b)
		}
		*s = score(f)
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return fmt.Errorf("confidence must be a number: %q", text)
	}
	*s = score(f)
	return nil
}

// StripFences removes a leading ```json or ``` delimiter and a trailing ```
// delimiter that some providers wrap around JSON output.
func StripFences(raw string) string {
	text := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(text, jsonFence):
		text = text[len(jsonFence):]
	case strings.HasPrefix(text, fence):
		text = text[len(fence):]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), fence)
	return strings.TrimSpace(text)
}

// Normalize parses raw provider text into a Verdict. Unparseable text, a
// missing label or a missing/out-of-range confidence yield ErrMalformedVerdict;
// a confidence given as a numeric string is accepted. Absent optional fields
// are filled with their defaults.
func Normalize(raw string) (Verdict, error) {
	text := StripFences(raw)
	if text == "" {
		return Verdict{}, fmt.Errorf("%w: empty response", ErrMalformedVerdict)
	}

	var rv rawVerdict
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	if err := dec.Decode(&rv); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
	}
	if dec.More() {
		return Verdict{}, fmt.Errorf("%w: trailing data after JSON object", ErrMalformedVerdict)
	}
	if err := validate.Struct(rv); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
	}

	label := strings.TrimSpace(*rv.Label)
	if label == "" {
		return Verdict{}, fmt.Errorf("%w: blank personal_color_type", ErrMalformedVerdict)
	}

	return Verdict{
		Label:      label,
		Confidence: float64(*rv.Confidence),
		Undertone:  strings.ToLower(orDefault(rv.Undertone, UndertoneUnknown)),
		Season:     strings.ToLower(orDefault(rv.Season, SeasonUnknown)),
		Subtype:    orDefault(rv.Subtype, Unknown),
		Reasoning:  orDefault(rv.Reasoning, DefaultReasoning),
	}, nil
}

func orDefault(v *string, def string) string {
	if v == nil {
		return def
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return def
	}
	return s
}
