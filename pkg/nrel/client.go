// Package nrel provides a client for the NREL developer APIs used by the
// domain tools: the alternative-fuel station directory, the utility-rates
// endpoint, and PVWatts v8 solar estimates. Zip and free-form location
// geocoding goes through Nominatim.
package nrel

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/voltquery/voltquery/internal/resilience"
)

// Client defines the NREL and geocoding operations used by the tools.
type Client interface {
	// GeocodeZip resolves a 5-digit zip code to coordinates.
	GeocodeZip(ctx context.Context, zipCode string) (lat, lon float64, err error)

	// GeocodeLocation resolves a free-form location ("Denver, CO",
	// "80202", "39.73,-104.99") to coordinates.
	GeocodeLocation(ctx context.Context, location string) (lat, lon float64, err error)

	// StationsNear lists EV charging stations closest to a point.
	StationsNear(ctx context.Context, lat, lon float64, limit int) ([]Station, error)

	// UtilityRates fetches average electricity rates at a point.
	UtilityRates(ctx context.Context, lat, lon float64, sector string) (*UtilityRates, error)

	// SolarEstimate runs PVWatts for the given system parameters.
	SolarEstimate(ctx context.Context, req SolarRequest) (*SolarEstimate, error)
}

// Station is one EV charging station from the AFDC directory.
type Station struct {
	StationName      string   `json:"station_name"`
	StreetAddress    string   `json:"street_address"`
	City             string   `json:"city"`
	State            string   `json:"state"`
	Zip              string   `json:"zip"`
	StatusCode       string   `json:"status_code"`
	EVNetwork        string   `json:"ev_network"`
	EVConnectorTypes []string `json:"ev_connector_types"`
	EVDCFastCount    int      `json:"ev_dc_fast_num"`
	EVLevel2Count    int      `json:"ev_level2_evse_num"`
	AccessDaysTime   string   `json:"access_days_time"`
	DistanceMiles    float64  `json:"distance"`
}

// UtilityRates is the average-rate answer for one point.
type UtilityRates struct {
	UtilityName     string  `json:"utility_name"`
	CompanyID       string  `json:"company_id"`
	ResidentialRate float64 `json:"residential"`
	CommercialRate  float64 `json:"commercial"`
	IndustrialRate  float64 `json:"industrial"`
}

// SolarRequest holds PVWatts system parameters. Zero-valued geometry
// fields take PVWatts-conventional defaults.
type SolarRequest struct {
	Lat              float64
	Lon              float64
	SystemCapacityKW float64 // default 5.0
	Azimuth          float64 // default 180 (south-facing)
	Tilt             float64 // default 20
	ArrayType        int     // default 1 (fixed roof mount)
	ModuleType       int     // default 0 (standard)
	LossesPct        float64 // default 14
}

func (r SolarRequest) withDefaults() SolarRequest {
	if r.SystemCapacityKW <= 0 {
		r.SystemCapacityKW = 5.0
	}
	if r.Azimuth == 0 {
		r.Azimuth = 180.0
	}
	if r.Tilt == 0 {
		r.Tilt = 20.0
	}
	if r.ArrayType == 0 {
		r.ArrayType = 1
	}
	if r.LossesPct == 0 {
		r.LossesPct = 14.0
	}
	return r
}

// SolarEstimate is the PVWatts production estimate.
type SolarEstimate struct {
	ACAnnualKWH    float64   `json:"ac_annual"`
	ACMonthlyKWH   []float64 `json:"ac_monthly"`
	SolradAnnual   float64   `json:"solrad_annual"`
	SolradMonthly  []float64 `json:"solrad_monthly"`
	CapacityFactor float64   `json:"capacity_factor"`
}

// Option configures the NREL client.
type Option func(*httpClient)

// WithStationsBaseURL sets a custom stations base URL (for testing).
func WithStationsBaseURL(u string) Option {
	return func(c *httpClient) { c.stationsBaseURL = u }
}

// WithRatesBaseURL sets a custom utility-rates base URL (for testing).
func WithRatesBaseURL(u string) Option {
	return func(c *httpClient) { c.ratesBaseURL = u }
}

// WithPVWattsBaseURL sets a custom PVWatts base URL (for testing).
func WithPVWattsBaseURL(u string) Option {
	return func(c *httpClient) { c.pvwattsBaseURL = u }
}

// WithGeocodeBaseURL sets a custom Nominatim base URL (for testing).
func WithGeocodeBaseURL(u string) Option {
	return func(c *httpClient) { c.geocodeBaseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit overrides the requests-per-second limit applied to every
// call.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

type httpClient struct {
	apiKey          string
	stationsBaseURL string
	ratesBaseURL    string
	pvwattsBaseURL  string
	geocodeBaseURL  string
	http            *http.Client
	limiter         *rate.Limiter
}

// NewClient creates a new NREL client with the given API key.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:          apiKey,
		stationsBaseURL: "https://developer.nrel.gov/api/alt-fuel-stations/v1",
		ratesBaseURL:    "https://developer.nrel.gov/api/utility_rates/v3.json",
		pvwattsBaseURL:  "https://developer.nrel.gov/api/pvwatts/v8.json",
		geocodeBaseURL:  "https://nominatim.openstreetmap.org/search",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(5), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// getJSON performs a rate-limited GET and decodes the body into out.
// Provider-side failures are tagged for the retry layer.
func (c *httpClient) getJSON(ctx context.Context, rawURL string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "nrel: rate limit wait")
	}

	reqURL := rawURL
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return eris.Wrap(err, "nrel: create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "voltquery/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "nrel: request failed"), 0)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "nrel: read response body")
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return resilience.NewRateLimitedError(
			eris.Errorf("nrel: status 429: %s", truncate(body)),
			retryAfter(resp.Header),
		)
	}
	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return resilience.NewTransientError(
			eris.Errorf("nrel: status %d: %s", resp.StatusCode, truncate(body)),
			resp.StatusCode,
		)
	}
	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("nrel: unexpected status %d: %s", resp.StatusCode, truncate(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "nrel: unmarshal response")
	}
	return nil
}

// retryAfter parses a Retry-After header given in seconds. Absent or
// unparseable headers yield zero, letting the retry layer pick its own
// backoff.
func retryAfter(h http.Header) time.Duration {
	raw := h.Get("Retry-After")
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func truncate(body []byte) string {
	const max = 500
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatCoord(lat, lon float64) (string, string) {
	return formatFloat(lat), formatFloat(lon)
}
