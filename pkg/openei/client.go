// Package openei provides a client for the OpenEI Utility Rate Database
// (URDB). It backs the utility tool's live fallback when the document
// index has no rate coverage for a location. OpenEI uses its own API key,
// separate from the NREL key.
package openei

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

// Client defines the URDB lookup operations.
type Client interface {
	// RatesByZip fetches rate plans for a 5-digit zip code.
	RatesByZip(ctx context.Context, zipCode, sector string, limit int) ([]RatePlan, error)

	// RatesByCoordinates fetches rate plans near a point.
	RatesByCoordinates(ctx context.Context, lat, lon float64, sector string, limit int) ([]RatePlan, error)
}

// RatePlan is one published utility tariff.
type RatePlan struct {
	// Label is the URDB record identifier, used to pin a tariff in
	// downstream solver requests.
	Label string `json:"label"`

	Name        string `json:"name"`
	Utility     string `json:"utility"`
	Sector      string `json:"sector"`
	Description string `json:"description"`
	StartDate   int64  `json:"startdate"`
	EndDate     int64  `json:"enddate"`

	// EnergyRateStructure is periods × tiers of energy pricing.
	EnergyRateStructure [][]RateTier `json:"energyratestructure"`

	FixedChargeFirstMeter float64 `json:"fixedchargefirstmeter"`
	FixedChargeUnits      string  `json:"fixedchargeunits"`
}

// RateTier is one tier within a rate period.
type RateTier struct {
	Rate       float64  `json:"rate"`
	Adjustment float64  `json:"adj"`
	Max        *float64 `json:"max,omitempty"`
	Unit       string   `json:"unit,omitempty"`
}

// AverageEnergyRate flattens the rate structure into a single mean
// $/kWh figure across all periods and tiers, adjustments included.
// Returns 0 when the plan publishes no energy rates.
func (p RatePlan) AverageEnergyRate() float64 {
	var sum float64
	var n int
	for _, period := range p.EnergyRateStructure {
		for _, tier := range period {
			sum += tier.Rate + tier.Adjustment
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Option configures the OpenEI client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit overrides the requests-per-second limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new URDB client with the given OpenEI API key.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.openei.org/utility_rates",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(2), 4),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) RatesByZip(ctx context.Context, zipCode, sector string, limit int) ([]RatePlan, error) {
	params := c.baseParams(sector, limit)
	params.Set("zipcode", zipCode)
	plans, err := c.fetch(ctx, params)
	if err != nil {
		return nil, eris.Wrapf(err, "openei: rates for zip %s", zipCode)
	}
	return plans, nil
}

func (c *httpClient) RatesByCoordinates(ctx context.Context, lat, lon float64, sector string, limit int) ([]RatePlan, error) {
	params := c.baseParams(sector, limit)
	params.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	plans, err := c.fetch(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "openei: rates by coordinates")
	}
	return plans, nil
}

func (c *httpClient) baseParams(sector string, limit int) url.Values {
	if limit <= 0 {
		limit = 100
	}
	params := url.Values{
		"api_key": {c.apiKey},
		"version": {"7"},
		"format":  {"json"},
		"detail":  {"full"},
		"limit":   {strconv.Itoa(limit)},
	}
	if sector != "" {
		params.Set("sector", sector)
	}
	return params
}

// urdbResponse is the URDB envelope. Older API versions used "rates"
// instead of "items".
type urdbResponse struct {
	Items []RatePlan `json:"items"`
	Rates []RatePlan `json:"rates"`
}

func (c *httpClient) fetch(ctx context.Context, params url.Values) ([]RatePlan, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "request failed"), 0)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "read response body")
	}

	if resilience.IsTransientHTTPStatus(resp.StatusCode) {
		return nil, resilience.NewTransientError(
			eris.Errorf("status %d", resp.StatusCode), resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("unexpected status %d", resp.StatusCode)
	}

	var result urdbResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "unmarshal response")
	}
	if len(result.Items) > 0 {
		return result.Items, nil
	}
	return result.Rates, nil
}
