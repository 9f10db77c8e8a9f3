package tool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voltquery/voltquery/internal/finance"
	"github.com/voltquery/voltquery/internal/model"
	"github.com/voltquery/voltquery/internal/resilience"
	"github.com/voltquery/voltquery/pkg/openei"
)

const optimizationDescription = "OPTIMIZATION DOMAIN: questions about investment analysis, ROI, optimal " +
	"solar and storage system sizing, net present value (NPV), payback, and economic analysis of renewable " +
	"energy systems. Runs a full techno-economic optimization with policy-aware incentive rates and a " +
	"25-year analysis period. Location can be a zip code, 'City, ST', or coordinates."

// ScenarioComparer runs the financial scenario engine. *finance.Engine
// satisfies it.
type ScenarioComparer interface {
	Compare(ctx context.Context, req finance.Request) (*model.ScenarioComparison, error)
}

// OptimizerTool answers investment questions by resolving the site, its
// electric tariff, and the policy branches, then delegating to the
// scenario engine.
type OptimizerTool struct {
	comparer ScenarioComparer
	geocoder *Geocoder
	urdb     openei.Client
	guard    Guard

	// labelCache memoizes tariff label lookups per location.
	labelCache *resilience.Cache[string]
}

// NewOptimizerTool builds the optimization tool. guard covers the URDB
// tariff lookups; the solver run carries its own breaker inside the
// scenario engine.
func NewOptimizerTool(comparer ScenarioComparer, geocoder *Geocoder, urdb openei.Client, guard Guard, labelCache *resilience.Cache[string]) *OptimizerTool {
	return &OptimizerTool{
		comparer:   comparer,
		geocoder:   geocoder,
		urdb:       urdb,
		guard:      guard,
		labelCache: labelCache,
	}
}

func (t *OptimizerTool) Name() string        { return NameOptimization }
func (t *OptimizerTool) Description() string { return optimizationDescription }

func (t *OptimizerTool) Answer(ctx context.Context, sub model.SubQuestion, q Query) model.ToolResult {
	start := time.Now()

	location := extractLocation(sub.Text, q.Filters)
	if location == "" {
		return model.FailedResult(sub, "no location found in the question; include a zip code, city and state, or coordinates", time.Since(start))
	}

	coords, err := t.geocoder.Locate(ctx, location)
	if err != nil {
		return model.FailedResult(sub, fmt.Sprintf("could not geocode %q: %v", location, err), time.Since(start))
	}

	label, err := t.tariffLabel(ctx, location, coords.Lat, coords.Lon, q.Filters["zip_code"])
	if err != nil {
		reason := fmt.Sprintf("no electric tariff found for %q: %v", location, err)
		if resilience.IsCircuitOpen(err) {
			reason = "tariff lookup dependency unavailable: circuit breaker is open"
		}
		return model.FailedResult(sub, reason, time.Since(start))
	}

	property := classifyProperty(sub.Text)
	ownership := sub.Scenario
	if ownership == "" {
		ownership = classifyOwnership(sub.Text)
	}

	cmp, err := t.comparer.Compare(ctx, finance.Request{
		Lat:          coords.Lat,
		Lon:          coords.Lon,
		PropertyType: property,
		Ownership:    ownership,
		URDBLabel:    label,
	})
	if err != nil {
		reason := fmt.Sprintf("optimization failed: %v", err)
		if resilience.IsCircuitOpen(err) {
			reason = "optimization unavailable: provider circuit breaker is open"
		}
		return model.FailedResult(sub, reason, time.Since(start))
	}

	zap.L().Info("optimization complete",
		zap.String("location", location),
		zap.String("property", property),
		zap.String("ownership", ownership),
	)

	content := formatComparison(location, cmp)
	return model.ToolResult{
		SubQuestion: sub,
		ToolName:    NameOptimization,
		Answer:      content,
		Sources: []model.SourceDocument{{
			Content: content,
			Metadata: map[string]string{
				"domain":   "optimization",
				"source":   "reopt",
				"location": location,
			},
			Score: 1.0,
		}},
		Success:    true,
		Latency:    time.Since(start),
		Comparison: cmp,
	}
}

// tariffLabel resolves the URDB tariff identifier for the site, by zip
// when one is known and by coordinates otherwise.
func (t *OptimizerTool) tariffLabel(ctx context.Context, location string, lat, lon float64, zipHint string) (string, error) {
	zip := zipRe.FindString(location)
	if zip == "" {
		zip = zipHint
	}

	key := "urdb:" + location
	return t.labelCache.GetOrFetch(ctx, key, func(ctx context.Context) (string, error) {
		plans, err := guarded(ctx, t.guard, func(ctx context.Context) ([]openei.RatePlan, error) {
			if zip != "" {
				return t.urdb.RatesByZip(ctx, zip, "", urdbFetchLimit)
			}
			return t.urdb.RatesByCoordinates(ctx, lat, lon, "", urdbFetchLimit)
		})
		if err != nil {
			return "", err
		}
		for _, plan := range plans {
			if plan.Label != "" {
				return plan.Label, nil
			}
		}
		return "", fmt.Errorf("no rate plans with a label returned")
	})
}

func formatComparison(location string, cmp *model.ScenarioComparison) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Financial optimization for %s:\n", location)
	if cmp.Purchase != nil {
		b.WriteString(formatScenario(cmp.Purchase))
	}
	if cmp.Lease != nil {
		b.WriteString(formatScenario(cmp.Lease))
	}
	if cmp.NPVDelta != nil {
		fmt.Fprintf(&b, "NPV difference (lease minus purchase): $%.0f\n", *cmp.NPVDelta)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatScenario(s *model.Scenario) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s scenario (%.0f%% incentive, %d-year horizon):\n", s.Name, s.IncentiveRate*100, s.AnalysisHorizonYears)
	if s.NetPresentValue != nil {
		fmt.Fprintf(&b, "  Net Present Value: $%.0f\n", *s.NetPresentValue)
	}
	if s.RecommendedCapacityKW > 0 {
		fmt.Fprintf(&b, "  Recommended PV size: %.1f kW\n", s.RecommendedCapacityKW)
	}
	if s.StorageKWH > 0 {
		fmt.Fprintf(&b, "  Recommended storage: %.1f kW / %.1f kWh\n", s.StorageKW, s.StorageKWH)
	}
	if s.PolicyNotice != "" {
		fmt.Fprintf(&b, "  %s\n", s.PolicyNotice)
	}
	if s.PolicyWarning != "" {
		fmt.Fprintf(&b, "  %s\n", s.PolicyWarning)
	}
	return b.String()
}
