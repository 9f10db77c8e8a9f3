package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/voltquery/voltquery/internal/llm"
	"github.com/voltquery/voltquery/internal/model"
	"github.com/voltquery/voltquery/internal/validate"
)

const locationSystem = `Extract location information from a question about energy infrastructure.

Look for zip codes (5 digits), city names, and state names or abbreviations.

Respond with ONLY a JSON object in this exact format:
{"zip_code": "12345" or null, "city": "CityName" or null, "state": "XX" or null, "location_type": "zip_code" or "city_state" or "state" or null}

If no location is found, return: {"zip_code": null, "city": null, "state": null, "location_type": null}`

// Locator detects the location a question is about, using the completion
// model with a regex fallback.
type Locator struct {
	completer llm.Completer
}

// NewLocator builds a location detector.
func NewLocator(completer llm.Completer) *Locator {
	return &Locator{completer: completer}
}

var (
	locZipRe   = regexp.MustCompile(`\b(\d{5})\b`)
	locWordsRe = regexp.MustCompile(`\b([A-Za-z]{2})\b`)
)

// Detect returns the detected location, or nil when the question names
// none. It never fails; extraction errors degrade to the regex fallback.
func (l *Locator) Detect(ctx context.Context, question string) *model.DetectedLocation {
	out, err := l.completer.Complete(ctx, llm.Request{
		System: locationSystem,
		Prompt: fmt.Sprintf("Question: %q", question),
	})
	if err != nil {
		zap.L().Debug("location extraction completion failed, using regex fallback", zap.Error(err))
		return fallbackLocation(question)
	}

	var loc struct {
		ZipCode      *string `json:"zip_code"`
		City         *string `json:"city"`
		State        *string `json:"state"`
		LocationType *string `json:"location_type"`
	}
	if err := json.Unmarshal([]byte(llm.CleanJSON(out)), &loc); err != nil {
		return fallbackLocation(question)
	}
	if loc.LocationType == nil || *loc.LocationType == "" {
		return nil
	}

	detected := &model.DetectedLocation{Type: *loc.LocationType}
	if loc.ZipCode != nil && validate.ZipCode(*loc.ZipCode) == nil {
		detected.ZipCode = *loc.ZipCode
	}
	if loc.City != nil {
		detected.City = strings.TrimSpace(*loc.City)
	}
	if loc.State != nil {
		detected.State = validate.NormalizeState(*loc.State)
	}
	if detected.ZipCode == "" && detected.City == "" && detected.State == "" {
		return nil
	}
	return detected
}

// fallbackLocation extracts what the regexes can: a zip code first, then
// a standalone state code.
func fallbackLocation(question string) *model.DetectedLocation {
	if m := locZipRe.FindStringSubmatch(question); m != nil {
		return &model.DetectedLocation{Type: "zip_code", ZipCode: m[1]}
	}
	for _, m := range locWordsRe.FindAllStringSubmatch(question, -1) {
		// Only treat an upper-cased pair like "CO" as a state; lowercase
		// two-letter words ("in", "to") are prose.
		if m[1] == strings.ToUpper(m[1]) && validate.IsStateCode(m[1]) {
			return &model.DetectedLocation{Type: "state", State: m[1]}
		}
	}
	return nil
}

// Filters converts a detected location into retrieval metadata filters.
func Filters(loc *model.DetectedLocation) map[string]string {
	filters := make(map[string]string, 2)
	if loc == nil {
		return filters
	}
	if loc.ZipCode != "" {
		filters["zip_code"] = loc.ZipCode
	}
	if loc.State != "" {
		filters["state"] = loc.State
	}
	return filters
}

// LocationHint renders the location for prompts, or "".
func LocationHint(loc *model.DetectedLocation) string {
	if loc == nil {
		return ""
	}
	switch {
	case loc.ZipCode != "":
		return "zip code " + loc.ZipCode
	case loc.City != "" && loc.State != "":
		return loc.City + ", " + loc.State
	case loc.City != "":
		return loc.City
	case loc.State != "":
		return loc.State
	default:
		return ""
	}
}
