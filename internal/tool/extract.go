package tool

import (
	"regexp"
	"strconv"
	"strings"
)

// Question-text extraction patterns shared by the computation tools.
var (
	zipRe       = regexp.MustCompile(`\b\d{5}\b`)
	cityStateRe = regexp.MustCompile(`([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*),\s*([A-Z]{2})\b`)
	coordsRe    = regexp.MustCompile(`(-?\d+\.?\d*),\s*(-?\d+\.?\d*)`)
	capacityRe  = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*kw\b`)
)

// extractLocation pulls a geocodable location out of the sub-question:
// zip code first, then "City, ST", then bare coordinates. It falls back
// to the request's location filters when the text names nothing.
func extractLocation(text string, filters map[string]string) string {
	if m := zipRe.FindString(text); m != "" {
		return m
	}
	if m := cityStateRe.FindString(text); m != "" {
		return m
	}
	if m := coordsRe.FindString(text); m != "" {
		return m
	}
	if zip := filters["zip_code"]; zip != "" {
		return zip
	}
	if state := filters["state"]; state != "" {
		return state
	}
	return ""
}

// extractCapacityKW pulls an explicit system size ("10kW system", "7.5 kw")
// out of the text, or 0 when none is named.
func extractCapacityKW(text string) float64 {
	m := capacityRe.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	kw, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return kw
}

// Keyword sets for property and ownership classification. Residential
// signals win over commercial ones so "my home business" stays
// residential, matching how rate policy treats mixed phrasing.
var (
	residentialKeywords = []string{"my home", "my house", "residential", "homeowner", "apartment", "condo"}
	commercialKeywords  = []string{"business", "commercial", "company", "corporation", "warehouse", "office", "retail", "store", "factory"}
	leaseKeywords       = []string{"lease", "leasing", "leased", "rent", "renting", "rented", "ppa", "power purchase agreement", "third-party", "third party", "30% itc"}
	purchaseKeywords    = []string{"purchase", "purchasing", "buy", "buying", "0% itc", "zero itc"}
)

// classifyProperty infers the property class from the question text.
func classifyProperty(text string) string {
	lower := strings.ToLower(text)
	if containsAny(lower, residentialKeywords) {
		return "residential"
	}
	if strings.Contains(lower, "industrial") {
		return "industrial"
	}
	if containsAny(lower, commercialKeywords) {
		return "commercial"
	}
	return "residential"
}

// classifyOwnership infers a pinned ownership branch, or "" when the
// question does not commit to one.
func classifyOwnership(text string) string {
	lower := strings.ToLower(text)
	if containsAny(lower, leaseKeywords) {
		return "lease"
	}
	if containsAny(lower, purchaseKeywords) {
		return "purchase"
	}
	return ""
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
