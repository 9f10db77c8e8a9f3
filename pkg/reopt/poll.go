package reopt

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/voltquery/voltquery/internal/resilience"
)

// pollState carries the adaptive-interval inputs across attempts.
type pollState struct {
	prevSize       int
	unchangedCount int
}

func (c *httpClient) Poll(ctx context.Context, runUUID string) (*Results, error) {
	// Jobs need a moment to initialize before the first poll.
	if err := c.sleep(ctx, 2*time.Second); err != nil {
		return nil, eris.Wrap(err, "reopt: poll cancelled")
	}

	var state pollState
	for attempt := 0; attempt < c.maxPolls; attempt++ {
		body, headers, statusCode, err := c.pollOnce(ctx, runUUID)
		if err != nil {
			return nil, err
		}

		switch {
		case statusCode == http.StatusTooManyRequests:
			return nil, resilience.NewRateLimitedError(
				eris.Errorf("reopt: rate limit exceeded polling %s", runUUID),
				retryAfter(headers),
			)
		case statusCode == http.StatusNotFound:
			// The run may not be registered yet. Back off and retry.
			if err := c.sleep(ctx, exponentialWait(attempt)); err != nil {
				return nil, eris.Wrap(err, "reopt: poll cancelled")
			}
			continue
		case statusCode != http.StatusOK:
			return nil, eris.Errorf("reopt: poll returned status %d: %s", statusCode, truncate(body))
		}

		var envelope struct {
			Status    string          `json:"status"`
			JobStatus string          `json:"job_status"`
			Messages  json.RawMessage `json:"messages"`
			Outputs   json.RawMessage `json:"outputs"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, eris.Wrap(err, "reopt: unmarshal poll response")
		}
		status := envelope.Status
		if status == "" {
			status = envelope.JobStatus
		}

		switch normalizeStatus(status) {
		case "complete":
			zap.L().Info("reopt job complete",
				zap.String("run_uuid", runUUID),
				zap.Int("polls", attempt+1),
			)
			return extractResults(envelope.Outputs)
		case "failed":
			return nil, eris.Errorf("reopt: job %s failed: %s", runUUID, truncate(envelope.Messages))
		}

		wait := adaptiveWait(attempt, status, len(body), &state, headers)
		zap.L().Debug("reopt job pending",
			zap.String("run_uuid", runUUID),
			zap.String("status", status),
			zap.Duration("wait", wait),
		)
		if err := c.sleep(ctx, wait); err != nil {
			return nil, eris.Wrap(err, "reopt: poll cancelled")
		}
	}

	return nil, eris.Errorf("reopt: job %s timed out after %d polls", runUUID, c.maxPolls)
}

func (c *httpClient) pollOnce(ctx context.Context, runUUID string) ([]byte, http.Header, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, 0, eris.Wrap(err, "reopt: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/job/"+runUUID+"/results?api_key="+c.apiKey, nil)
	if err != nil {
		return nil, nil, 0, eris.Wrap(err, "reopt: create poll request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, 0, resilience.NewTransientError(eris.Wrap(err, "reopt: poll request"), 0)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, 0, eris.Wrap(err, "reopt: read poll body")
	}
	return body, resp.Header, resp.StatusCode, nil
}

func normalizeStatus(status string) string {
	switch strings.ToLower(strings.TrimSuffix(status, "...")) {
	case "complete", "optimal":
		return "complete"
	case "failed", "error":
		return "failed"
	default:
		return "pending"
	}
}

// exponentialWait doubles every three attempts, capped at four doublings
// and maxPollInterval.
func exponentialWait(attempt int) time.Duration {
	doublings := attempt / 3
	if doublings > 4 {
		doublings = 4
	}
	wait := initialPollInterval * (1 << doublings)
	if wait > maxPollInterval {
		wait = maxPollInterval
	}
	if wait < minPollInterval {
		wait = minPollInterval
	}
	return wait
}

// adaptiveWait stretches the exponential base when the response body has
// stopped changing or the rate-limit budget is running low, and shrinks
// it when the body grows sharply (the solver is likely finishing).
func adaptiveWait(attempt int, status string, size int, state *pollState, headers http.Header) time.Duration {
	wait := exponentialWait(attempt)

	if strings.HasPrefix(strings.ToLower(status), "optimizing") && wait < 8*time.Second {
		wait = 8 * time.Second
	}

	if state.prevSize > 0 {
		switch {
		case size == state.prevSize:
			state.unchangedCount++
			multiplier := 1.0 + float64(state.unchangedCount)*0.5
			wait = time.Duration(float64(wait) * multiplier)
			if wait > maxPollInterval {
				wait = maxPollInterval
			}
		case size > state.prevSize*2:
			state.unchangedCount = 0
			wait = time.Duration(float64(wait) * 0.7)
			if wait < minPollInterval {
				wait = minPollInterval
			}
		default:
			state.unchangedCount = 0
		}
	}
	state.prevSize = size

	if remaining, ok := rateRemaining(headers); ok {
		switch {
		case remaining < 5:
			wait *= 2
		case remaining < 20:
			wait = time.Duration(float64(wait) * 1.5)
		}
		if wait > maxPollInterval {
			wait = maxPollInterval
		}
	}

	if wait < minPollInterval {
		wait = minPollInterval
	}
	return wait
}

// extractResults pulls NPV and system sizes out of the outputs document.
// The v3 API reports a flat layout; older responses nest everything under
// Scenario.Site.
func extractResults(outputs json.RawMessage) (*Results, error) {
	if len(outputs) == 0 {
		return nil, eris.New("reopt: complete job carried no outputs")
	}

	var flat struct {
		Financial struct {
			NPV         *float64 `json:"npv"`
			OfftakerNPV *float64 `json:"offtaker_npv"`
			OwnerNPV    *float64 `json:"owner_npv"`
		} `json:"Financial"`
		PV struct {
			SizeKW *float64 `json:"size_kw"`
		} `json:"PV"`
		ElectricStorage struct {
			SizeKW  *float64 `json:"size_kw"`
			SizeKWH *float64 `json:"size_kwh"`
		} `json:"ElectricStorage"`
		Scenario struct {
			Site struct {
				PV struct {
					SizeKW *float64 `json:"size_kw"`
				} `json:"PV"`
				Storage struct {
					SizeKW  *float64 `json:"size_kw"`
					SizeKWH *float64 `json:"size_kwh"`
				} `json:"Storage"`
			} `json:"Site"`
		} `json:"Scenario"`
	}
	if err := json.Unmarshal(outputs, &flat); err != nil {
		return nil, eris.Wrap(err, "reopt: unmarshal outputs")
	}

	res := &Results{}

	// Zero NPV is meaningful (no system is optimal), so preserve the
	// pointer straight through.
	switch {
	case flat.Financial.NPV != nil:
		res.NPV = flat.Financial.NPV
	case flat.Financial.OfftakerNPV != nil:
		res.NPV = flat.Financial.OfftakerNPV
	case flat.Financial.OwnerNPV != nil:
		res.NPV = flat.Financial.OwnerNPV
	}

	switch {
	case flat.PV.SizeKW != nil:
		res.PVSizeKW = *flat.PV.SizeKW
	case flat.Scenario.Site.PV.SizeKW != nil:
		res.PVSizeKW = *flat.Scenario.Site.PV.SizeKW
	}

	switch {
	case flat.ElectricStorage.SizeKW != nil:
		res.StorageKW = *flat.ElectricStorage.SizeKW
	case flat.Scenario.Site.Storage.SizeKW != nil:
		res.StorageKW = *flat.Scenario.Site.Storage.SizeKW
	}
	switch {
	case flat.ElectricStorage.SizeKWH != nil:
		res.StorageKWH = *flat.ElectricStorage.SizeKWH
	case flat.Scenario.Site.Storage.SizeKWH != nil:
		res.StorageKWH = *flat.Scenario.Site.Storage.SizeKWH
	}

	return res, nil
}
