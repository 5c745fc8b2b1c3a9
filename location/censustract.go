package location

import "regexp"

var (
	tractCanonical = regexp.MustCompile(`^\d{9}\.\d{2}$`)
	tractLegacy    = regexp.MustCompile(`^\d{11}$`)
	tractCurrent   = regexp.MustCompile(`^\d{15}$`)
)

// NormalizeCensusTract canonicalizes a census tract to "9digits.2digits".
// Accepted inputs: the canonical form itself, the 11-digit legacy form
// (9-digit prefix plus 2-digit suffix, no dot), or the 15-digit current
// form (the legacy digits followed by a 4-digit block suffix, which is
// dropped). Empty input stays empty. Anything else is a ValidationError.
func NormalizeCensusTract(tract string) (string, error) {
	switch {
	case tract == "":
		return "", nil
	case tractCanonical.MatchString(tract):
		return tract, nil
	case tractLegacy.MatchString(tract):
		return tract[:9] + "." + tract[9:], nil
	case tractCurrent.MatchString(tract):
		return tract[:9] + "." + tract[9:11], nil
	default:
		return "", &ValidationError{Field: "censustract", Reason: "must be in nnnnnnnnn.nn format"}
	}
}
