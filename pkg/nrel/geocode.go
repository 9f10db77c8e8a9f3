package nrel

import (
	"context"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// nominatimResult is one Nominatim search hit.
type nominatimResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

func (c *httpClient) GeocodeZip(ctx context.Context, zipCode string) (float64, float64, error) {
	params := url.Values{
		"postalcode": {zipCode},
		"country":    {"US"},
		"format":     {"json"},
		"limit":      {"1"},
	}

	var results []nominatimResult
	if err := c.getJSON(ctx, c.geocodeBaseURL, params, &results); err != nil {
		return 0, 0, eris.Wrapf(err, "nrel: geocode zip %s", zipCode)
	}
	return parseNominatim(results, zipCode)
}

func (c *httpClient) GeocodeLocation(ctx context.Context, location string) (float64, float64, error) {
	location = strings.Join(strings.Fields(location), " ")

	// Already a coordinate pair.
	if lat, lon, ok := parseLatLon(location); ok {
		return lat, lon, nil
	}

	// Bare 5-digit zip codes resolve through the postalcode path, which
	// Nominatim matches far more reliably than free text.
	if isBareZip(location) {
		return c.GeocodeZip(ctx, location)
	}

	// "City, ST" resolves via structured parameters first.
	if city, state, ok := splitCityState(location); ok {
		params := url.Values{
			"city":    {city},
			"state":   {state},
			"country": {"US"},
			"format":  {"json"},
			"limit":   {"1"},
		}
		var results []nominatimResult
		if err := c.getJSON(ctx, c.geocodeBaseURL, params, &results); err == nil && len(results) > 0 {
			return parseNominatim(results, location)
		}
	}

	// Free-text fallback, with and without a USA suffix.
	var lastErr error
	for _, query := range []string{location, location + ", USA"} {
		params := url.Values{
			"q":       {query},
			"country": {"US"},
			"format":  {"json"},
			"limit":   {"1"},
		}
		var results []nominatimResult
		if err := c.getJSON(ctx, c.geocodeBaseURL, params, &results); err != nil {
			lastErr = err
			continue
		}
		if len(results) == 0 {
			lastErr = eris.Errorf("nrel: no geocode results for %q", query)
			continue
		}
		return parseNominatim(results, location)
	}
	return 0, 0, eris.Wrapf(lastErr, "nrel: geocode location %q", location)
}

func parseNominatim(results []nominatimResult, location string) (float64, float64, error) {
	if len(results) == 0 {
		return 0, 0, eris.Errorf("nrel: no geocode results for %q", location)
	}
	lat, latErr := strconv.ParseFloat(results[0].Lat, 64)
	lon, lonErr := strconv.ParseFloat(results[0].Lon, 64)
	if latErr != nil || lonErr != nil {
		return 0, 0, eris.Errorf("nrel: malformed geocode result for %q", location)
	}
	return lat, lon, nil
}

// parseLatLon recognizes "lat,lon" strings within valid coordinate
// bounds.
func parseLatLon(s string) (float64, float64, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, latErr := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lon, lonErr := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if latErr != nil || lonErr != nil {
		return 0, 0, false
	}
	if math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		return 0, 0, false
	}
	return lat, lon, true
}

func isBareZip(s string) bool {
	if len(s) != 5 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// splitCityState parses "City, ST" where ST is a two-letter code.
func splitCityState(s string) (city, state string, ok bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return "", "", false
	}
	city = strings.TrimSpace(parts[0])
	state = strings.TrimSpace(parts[1])
	if city == "" || len(state) != 2 {
		return "", "", false
	}
	return city, state, true
}
