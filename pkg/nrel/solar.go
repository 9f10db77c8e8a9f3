package nrel

import (
	"context"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
)

// pvwattsResponse is the PVWatts v8 envelope.
type pvwattsResponse struct {
	Outputs SolarEstimate `json:"outputs"`
	Errors  []string      `json:"errors"`
}

func (c *httpClient) SolarEstimate(ctx context.Context, req SolarRequest) (*SolarEstimate, error) {
	req = req.withDefaults()

	latStr, lonStr := formatCoord(req.Lat, req.Lon)
	params := url.Values{
		"api_key":         {c.apiKey},
		"lat":             {latStr},
		"lon":             {lonStr},
		"system_capacity": {formatFloat(req.SystemCapacityKW)},
		"azimuth":         {formatFloat(req.Azimuth)},
		"tilt":            {formatFloat(req.Tilt)},
		"array_type":      {strconv.Itoa(req.ArrayType)},
		"module_type":     {strconv.Itoa(req.ModuleType)},
		"losses":          {formatFloat(req.LossesPct)},
		"format":          {"json"},
	}

	var resp pvwattsResponse
	if err := c.getJSON(ctx, c.pvwattsBaseURL, params, &resp); err != nil {
		return nil, eris.Wrap(err, "nrel: pvwatts estimate")
	}
	if len(resp.Errors) > 0 {
		return nil, eris.Errorf("nrel: pvwatts rejected request: %s", resp.Errors[0])
	}
	return &resp.Outputs, nil
}
