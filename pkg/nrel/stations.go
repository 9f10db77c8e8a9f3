package nrel

import (
	"context"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
)

// stationsResponse is the AFDC nearest-stations envelope.
type stationsResponse struct {
	FuelStations []Station `json:"fuel_stations"`
}

func (c *httpClient) StationsNear(ctx context.Context, lat, lon float64, limit int) ([]Station, error) {
	if limit <= 0 {
		limit = 50
	}
	latStr, lonStr := formatCoord(lat, lon)
	params := url.Values{
		"api_key":   {c.apiKey},
		"latitude":  {latStr},
		"longitude": {lonStr},
		"fuel_type": {"ELEC"},
		"limit":     {strconv.Itoa(limit)},
		"format":    {"json"},
	}

	var resp stationsResponse
	if err := c.getJSON(ctx, c.stationsBaseURL+"/nearest.json", params, &resp); err != nil {
		return nil, eris.Wrap(err, "nrel: nearest stations")
	}
	return resp.FuelStations, nil
}
