// Package validate checks user-supplied query inputs before any
// provider call is made.
package validate

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

const (
	// MinQuestionLen and MaxQuestionLen bound the trimmed question text.
	MinQuestionLen = 3
	MaxQuestionLen = 2000

	// MinTopK and MaxTopK bound the per-tool retrieval depth.
	MinTopK = 1
	MaxTopK = 100

	// DefaultTopK applies when the request leaves top_k unset.
	DefaultTopK = 5
)

var zipPattern = regexp.MustCompile(`^\d{5}$`)

// stateCodes is the set of two-letter USPS state and district codes.
var stateCodes = map[string]bool{
	"AL": true, "AK": true, "AZ": true, "AR": true, "CA": true,
	"CO": true, "CT": true, "DE": true, "DC": true, "FL": true,
	"GA": true, "HI": true, "ID": true, "IL": true, "IN": true,
	"IA": true, "KS": true, "KY": true, "LA": true, "ME": true,
	"MD": true, "MA": true, "MI": true, "MN": true, "MS": true,
	"MO": true, "MT": true, "NE": true, "NV": true, "NH": true,
	"NJ": true, "NM": true, "NY": true, "NC": true, "ND": true,
	"OH": true, "OK": true, "OR": true, "PA": true, "RI": true,
	"SC": true, "SD": true, "TN": true, "TX": true, "UT": true,
	"VT": true, "VA": true, "WA": true, "WV": true, "WI": true,
	"WY": true,
}

// Question trims the question text and checks its length. It returns the
// trimmed text.
func Question(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < MinQuestionLen {
		return "", eris.Errorf("validate: question must be at least %d characters", MinQuestionLen)
	}
	if len(trimmed) > MaxQuestionLen {
		return "", eris.Errorf("validate: question must be at most %d characters", MaxQuestionLen)
	}
	return trimmed, nil
}

// ZipCode checks for a five-digit US ZIP code. Empty is allowed and
// simply means no zip filter is applied.
func ZipCode(zip string) error {
	if zip == "" {
		return nil
	}
	if !zipPattern.MatchString(zip) {
		return eris.Errorf("validate: zip_code %q must be exactly 5 digits", zip)
	}
	return nil
}

// TopK checks the retrieval depth. Zero is allowed and means DefaultTopK.
func TopK(topK int) error {
	if topK == 0 {
		return nil
	}
	if topK < MinTopK || topK > MaxTopK {
		return eris.Errorf("validate: top_k %d must be between %d and %d", topK, MinTopK, MaxTopK)
	}
	return nil
}

// IsStateCode reports whether s is a two-letter USPS state code.
// Matching is case-insensitive.
func IsStateCode(s string) bool {
	return stateCodes[strings.ToUpper(strings.TrimSpace(s))]
}

// NormalizeState upper-cases a state code, returning "" when it is not a
// recognized code.
func NormalizeState(s string) string {
	up := strings.ToUpper(strings.TrimSpace(s))
	if stateCodes[up] {
		return up
	}
	return ""
}
