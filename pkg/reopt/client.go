// Package reopt provides a client for the NREL REopt v3 optimization
// API. A job is submitted, assigned a run UUID, and polled until the
// solver reports a terminal status. Polling adapts its interval to the
// job status, response growth, and the remaining rate-limit budget.
package reopt

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/voltquery/voltquery/internal/resilience"
)

const (
	initialPollInterval = 3 * time.Second
	minPollInterval     = 3 * time.Second
	maxPollInterval     = 30 * time.Second
	defaultMaxPolls     = 120
)

// Client defines the REopt solver operations.
type Client interface {
	// Submit posts a job and returns its run UUID.
	Submit(ctx context.Context, job Job) (string, error)

	// Poll waits for the run to reach a terminal status and returns the
	// extracted results.
	Poll(ctx context.Context, runUUID string) (*Results, error)

	// Optimize submits a job and polls it to completion.
	Optimize(ctx context.Context, job Job) (*Results, error)
}

// Job describes one optimization run. Policy decisions (ITC fraction,
// analysis horizon, ownership structure) are made by the caller; this
// package only carries them to the solver.
type Job struct {
	Lat float64
	Lon float64

	// LoadProfile is "residential", "commercial", or "industrial".
	LoadProfile string

	// URDBLabel selects the electric tariff. Required by the v3 API.
	URDBLabel string

	// AdditionalLoadKW adds peak load on top of the profile baseline
	// (EV chargers, new equipment).
	AdditionalLoadKW float64

	// AnalysisYears is the financial horizon.
	AnalysisYears int

	// FederalITCFraction is the investment tax credit applied to the
	// system cost (0.0 to 1.0).
	FederalITCFraction float64

	// ThirdPartyOwnership models a lease/PPA arrangement.
	ThirdPartyOwnership bool
}

// Results holds the extracted solver outputs.
type Results struct {
	RunUUID string

	// NPV is nil when the solver reported none. Zero is a valid result
	// meaning no system is cost-optimal.
	NPV *float64

	PVSizeKW   float64
	StorageKW  float64
	StorageKWH float64
}

// Option configures the REopt client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithMaxPolls caps the number of poll attempts.
func WithMaxPolls(n int) Option {
	return func(c *httpClient) { c.maxPolls = n }
}

// WithRateLimit overrides the requests-per-second limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

type httpClient struct {
	apiKey   string
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	maxPolls int

	// sleep is replaced in tests to avoid real waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a new REopt client with the given NREL API key.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://developer.nrel.gov/api/reopt/v3",
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter:  rate.NewLimiter(rate.Limit(1), 2),
		maxPolls: defaultMaxPolls,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *httpClient) Optimize(ctx context.Context, job Job) (*Results, error) {
	runUUID, err := c.Submit(ctx, job)
	if err != nil {
		return nil, err
	}
	results, err := c.Poll(ctx, runUUID)
	if err != nil {
		return nil, err
	}
	results.RunUUID = runUUID
	return results, nil
}

func (c *httpClient) Submit(ctx context.Context, job Job) (string, error) {
	if job.URDBLabel == "" {
		return "", eris.New("reopt: urdb label is required")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "reopt: rate limit wait")
	}

	payload, err := json.Marshal(buildPayload(job))
	if err != nil {
		return "", eris.Wrap(err, "reopt: marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/job?api_key="+c.apiKey+"&format=json", bytes.NewReader(payload))
	if err != nil {
		return "", eris.Wrap(err, "reopt: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", resilience.NewTransientError(eris.Wrap(err, "reopt: submit job"), 0)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "reopt: read response body")
	}

	if remaining, ok := rateRemaining(resp.Header); ok && remaining < 10 {
		zap.L().Warn("reopt rate limit low", zap.Int("remaining", remaining))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", resilience.NewRateLimitedError(
			eris.New("reopt: rate limit exceeded, limits reset hourly"),
			retryAfter(resp.Header),
		)
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return "", eris.Errorf("reopt: job rejected with status %d: %s", resp.StatusCode, truncate(body))
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return "", resilience.NewTransientError(
			eris.Errorf("reopt: status %d", resp.StatusCode), resp.StatusCode)
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return "", eris.Errorf("reopt: unexpected status %d: %s", resp.StatusCode, truncate(body))
	}

	var result struct {
		RunUUID string `json:"run_uuid"`
		RunID   string `json:"run_id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", eris.Wrap(err, "reopt: unmarshal response")
	}
	runUUID := result.RunUUID
	if runUUID == "" {
		runUUID = result.RunID
	}
	if runUUID == "" {
		return "", eris.Errorf("reopt: no run_uuid in response: %s", truncate(body))
	}

	zap.L().Info("reopt job submitted", zap.String("run_uuid", runUUID))
	return runUUID, nil
}

func rateRemaining(h http.Header) (int, bool) {
	raw := h.Get("X-RateLimit-Remaining")
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func retryAfter(h http.Header) time.Duration {
	secs, err := strconv.Atoi(h.Get("Retry-After"))
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
