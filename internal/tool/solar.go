package tool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voltquery/voltquery/internal/model"
	"github.com/voltquery/voltquery/internal/resilience"
	"github.com/voltquery/voltquery/pkg/nrel"
)

const solarDescription = "SOLAR DOMAIN: questions about solar energy production, panel output, solar " +
	"generation, and estimating solar system performance for a location. System capacity defaults to " +
	"5 kW and can be named in the question (e.g. '10kW system'). Location can be a zip code, 'City, ST', " +
	"or coordinates."

var monthNames = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// SolarTool estimates production with PVWatts. Estimates are cached per
// site and capacity, and provider calls run under the retry and circuit
// breaker primitives.
type SolarTool struct {
	nrel     nrel.Client
	geocoder *Geocoder
	cache    *resilience.Cache[*nrel.SolarEstimate]
	guard    Guard

	defaultCapacityKW float64
}

// NewSolarTool builds the solar production tool.
func NewSolarTool(client nrel.Client, geocoder *Geocoder, cache *resilience.Cache[*nrel.SolarEstimate], guard Guard) *SolarTool {
	return &SolarTool{
		nrel:              client,
		geocoder:          geocoder,
		cache:             cache,
		guard:             guard,
		defaultCapacityKW: 5.0,
	}
}

func (t *SolarTool) Name() string        { return NameSolar }
func (t *SolarTool) Description() string { return solarDescription }

func (t *SolarTool) Answer(ctx context.Context, sub model.SubQuestion, q Query) model.ToolResult {
	start := time.Now()

	location := extractLocation(sub.Text, q.Filters)
	if location == "" {
		return model.FailedResult(sub, "no location found in the question; include a zip code, city and state, or coordinates", time.Since(start))
	}

	capacity := extractCapacityKW(sub.Text)
	if capacity <= 0 {
		capacity = t.defaultCapacityKW
	}

	coords, err := t.geocoder.Locate(ctx, location)
	if err != nil {
		return model.FailedResult(sub, fmt.Sprintf("could not geocode %q: %v", location, err), time.Since(start))
	}

	estimate, err := t.estimate(ctx, coords.Lat, coords.Lon, capacity)
	if err != nil {
		reason := fmt.Sprintf("solar estimate failed: %v", err)
		if resilience.IsCircuitOpen(err) {
			reason = "solar estimate unavailable: provider circuit breaker is open"
		}
		return model.FailedResult(sub, reason, time.Since(start))
	}

	content := formatSolarEstimate(location, capacity, estimate)
	zap.L().Debug("solar estimate produced",
		zap.String("location", location),
		zap.Float64("capacity_kw", capacity),
		zap.Float64("ac_annual_kwh", estimate.ACAnnualKWH),
	)

	return model.ToolResult{
		SubQuestion: sub,
		ToolName:    NameSolar,
		Answer:      content,
		Sources: []model.SourceDocument{{
			Content: content,
			Metadata: map[string]string{
				"domain":   "solar",
				"source":   "pvwatts",
				"location": location,
			},
			Score: 1.0,
		}},
		Success: true,
		Latency: time.Since(start),
	}
}

func (t *SolarTool) estimate(ctx context.Context, lat, lon, capacityKW float64) (*nrel.SolarEstimate, error) {
	key := fmt.Sprintf("solar:%.4f:%.4f:%.1f", lat, lon, capacityKW)
	return t.cache.GetOrFetch(ctx, key, func(ctx context.Context) (*nrel.SolarEstimate, error) {
		return guarded(ctx, t.guard, func(ctx context.Context) (*nrel.SolarEstimate, error) {
			return t.nrel.SolarEstimate(ctx, nrel.SolarRequest{
				Lat:              lat,
				Lon:              lon,
				SystemCapacityKW: capacityKW,
			})
		})
	})
}

func formatSolarEstimate(location string, capacityKW float64, est *nrel.SolarEstimate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Solar production estimate for %s:\n", location)
	fmt.Fprintf(&b, "System Capacity: %g kW\n", capacityKW)
	fmt.Fprintf(&b, "Annual AC Energy Production: %.0f kWh/year\n", est.ACAnnualKWH)
	if len(est.ACMonthlyKWH) == 12 {
		fmt.Fprintf(&b, "Average Monthly Production: %.1f kWh/month\n", est.ACAnnualKWH/12)
		for i, kwh := range est.ACMonthlyKWH {
			fmt.Fprintf(&b, "  %s: %.1f kWh\n", monthNames[i], kwh)
		}
	}
	if est.SolradAnnual > 0 {
		fmt.Fprintf(&b, "Annual Solar Radiation: %.2f kWh/m2/day\n", est.SolradAnnual)
	}
	if est.CapacityFactor > 0 {
		fmt.Fprintf(&b, "Capacity Factor: %.1f%%", est.CapacityFactor)
	}
	return strings.TrimRight(b.String(), "\n")
}
