package nrel

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

// ratesResponse is the utility-rates v3 envelope.
type ratesResponse struct {
	Outputs UtilityRates `json:"outputs"`
}

func (c *httpClient) UtilityRates(ctx context.Context, lat, lon float64, sector string) (*UtilityRates, error) {
	latStr, lonStr := formatCoord(lat, lon)
	params := url.Values{
		"api_key": {c.apiKey},
		"lat":     {latStr},
		"lon":     {lonStr},
		"format":  {"json"},
	}
	if sector != "" {
		params.Set("sector", strings.ToLower(sector))
	}

	var resp ratesResponse
	if err := c.getJSON(ctx, c.ratesBaseURL, params, &resp); err != nil {
		return nil, eris.Wrap(err, "nrel: utility rates")
	}
	return &resp.Outputs, nil
}
