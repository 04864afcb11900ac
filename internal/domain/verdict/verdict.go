// Package verdict defines the canonical personal-color classification record
// and the normalizer that turns raw provider text into it.
package verdict

// Default values substituted for optional fields that a provider omitted.
const (
	Unknown          = "unknown"
	DefaultReasoning = ""
)

// Season values.
const (
	SeasonSpring  = "spring"
	SeasonSummer  = "summer"
	SeasonAutumn  = "autumn"
	SeasonWinter  = "winter"
	SeasonUnknown = Unknown
)

// Undertone values.
const (
	UndertoneWarm    = "warm"
	UndertoneCool    = "cool"
	UndertoneUnknown = Unknown
)

// canonicalLabels is the twelve-season taxonomy the prompts ask for.
var canonicalLabels = map[string]string{ //nolint:gochecknoglobals // read-only lookup table
	"Light Spring":  SeasonSpring,
	"Warm Spring":   SeasonSpring,
	"Bright Spring": SeasonSpring,
	"Light Summer":  SeasonSummer,
	"Cool Summer":   SeasonSummer,
	"Soft Summer":   SeasonSummer,
	"Soft Autumn":   SeasonAutumn,
	"Warm Autumn":   SeasonAutumn,
	"Deep Autumn":   SeasonAutumn,
	"Deep Winter":   SeasonWinter,
	"Cool Winter":   SeasonWinter,
	"Bright Winter": SeasonWinter,
}

// Verdict is a fully-defaulted classification result. Every field is always
// populated after normalization.
type Verdict struct {
	Label      string  `json:"personal_color_type"`
	Confidence float64 `json:"confidence"`
	Undertone  string  `json:"undertone"`
	Season     string  `json:"season"`
	Subtype    string  `json:"subtype"`
	Reasoning  string  `json:"reasoning"`
}

// IsCanonicalLabel reports whether the label belongs to the twelve-season set.
// Unrecognized labels are still accepted into verdicts; this only flags them.
func IsCanonicalLabel(label string) bool {
	_, ok := canonicalLabels[label]
	return ok
}

// CanonicalLabels returns the twelve-season labels in a stable order.
func CanonicalLabels() []string {
	return []string{
		"Light Spring", "Warm Spring", "Bright Spring",
		"Light Summer", "Cool Summer", "Soft Summer",
		"Soft Autumn", "Warm Autumn", "Deep Autumn",
		"Deep Winter", "Cool Winter", "Bright Winter",
	}
}

// SeasonOf returns the season family of a canonical label, or unknown.
func SeasonOf(label string) string {
	if s, ok := canonicalLabels[label]; ok {
		return s
	}
	return SeasonUnknown
}

// IsKnownSeason reports whether s is one of the four seasons.
func IsKnownSeason(s string) bool {
	switch s {
	case SeasonSpring, SeasonSummer, SeasonAutumn, SeasonWinter:
		return true
	default:
		return false
	}
}
