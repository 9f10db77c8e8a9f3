package tool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voltquery/voltquery/internal/llm"
	"github.com/voltquery/voltquery/internal/model"
	"github.com/voltquery/voltquery/internal/resilience"
	"github.com/voltquery/voltquery/internal/vectorstore"
	"github.com/voltquery/voltquery/pkg/nrel"
	"github.com/voltquery/voltquery/pkg/openei"
)

const utilityDescription = "UTILITY DOMAIN: questions about electricity rates, utility costs, price per kWh, " +
	"utility providers, time-of-use and off-peak rates, charging costs, and charging at specific times " +
	"(e.g. 'charging at 11 PM'). Questions about charging COSTS are utility questions, not station-location " +
	"questions. Do not use for finding charging stations."

// urdbFetchLimit is how many plans one live URDB lookup requests. The
// cache stores the full fetch and callers trim to their top-k.
const urdbFetchLimit = 10

// UtilityDeps are the live-data providers behind the utility tool's
// fallback chain: URDB tariffs first, NREL average rates when URDB has
// no plans for the area. URDB may be nil to disable the fallback.
type UtilityDeps struct {
	URDB       openei.Client
	Averages   nrel.Client
	RatesCache *resilience.Cache[[]openei.RatePlan]
	URDBGuard  Guard
	NRELGuard  Guard
}

// utilityTool answers rate questions from the vector index and falls back
// to live lookups when the index has nothing for the location.
type utilityTool struct {
	retrievalTool
	deps UtilityDeps
}

// NewUtilityTool builds the utility-rate tool.
func NewUtilityTool(search vectorstore.Searcher, completer llm.Completer, deps UtilityDeps, opts RetrievalOptions) Tool {
	return &utilityTool{
		retrievalTool: retrievalTool{
			name:        NameUtility,
			description: utilityDescription,
			domain:      "utility",
			search:      search,
			completer:   completer,
			opts:        opts,
		},
		deps: deps,
	}
}

func (t *utilityTool) Answer(ctx context.Context, sub model.SubQuestion, q Query) model.ToolResult {
	start := time.Now()

	docs, err := t.retrieve(ctx, sub.Text, q)
	if err != nil {
		return model.FailedResult(sub, fmt.Sprintf("retrieval failed: %v", err), time.Since(start))
	}

	if len(docs) == 0 && t.deps.URDB != nil {
		if zip := q.Filters["zip_code"]; zip != "" {
			live, liveErr := t.liveRates(ctx, zip, q.topK())
			if liveErr != nil {
				zap.L().Warn("live urdb lookup failed",
					zap.String("zip_code", zip),
					zap.Error(liveErr),
				)
				reason := fmt.Sprintf("no indexed rates and the live tariff lookup failed: %v", liveErr)
				if resilience.IsCircuitOpen(liveErr) {
					reason = "utility rates dependency unavailable: circuit breaker is open"
				}
				return model.FailedResult(sub, reason, time.Since(start))
			}
			docs = live
		}
	}

	return model.ToolResult{
		SubQuestion: sub,
		ToolName:    t.name,
		Answer:      digest(docs),
		Sources:     docs,
		Success:     true,
		Latency:     time.Since(start),
	}
}

// liveRates fetches current tariffs from URDB and shapes them as
// documents so the synthesizer treats them like indexed evidence. When
// URDB knows no plans for the zip, the NREL average-rate service fills
// in as a coarser second fallback.
func (t *utilityTool) liveRates(ctx context.Context, zipCode string, topK int) ([]model.SourceDocument, error) {
	plans, err := t.deps.RatesCache.GetOrFetch(ctx, "rates:"+zipCode, func(ctx context.Context) ([]openei.RatePlan, error) {
		return guarded(ctx, t.deps.URDBGuard, func(ctx context.Context) ([]openei.RatePlan, error) {
			return t.deps.URDB.RatesByZip(ctx, zipCode, "", urdbFetchLimit)
		})
	})
	if err != nil {
		return nil, err
	}

	if len(plans) == 0 && t.deps.Averages != nil {
		return t.averageRates(ctx, zipCode)
	}

	docs := make([]model.SourceDocument, 0, len(plans))
	for _, plan := range plans {
		docs = append(docs, model.SourceDocument{
			Content: formatRatePlan(plan, zipCode),
			Metadata: map[string]string{
				"domain":   "utility",
				"source":   "urdb",
				"zip_code": zipCode,
				"utility":  plan.Utility,
			},
			Score: 1.0,
		})
		if len(docs) == topK {
			break
		}
	}
	return docs, nil
}

// averageRates is best effort: a failure degrades to no documents rather
// than a failed result, since URDB itself was healthy.
func (t *utilityTool) averageRates(ctx context.Context, zipCode string) ([]model.SourceDocument, error) {
	rates, err := guarded(ctx, t.deps.NRELGuard, func(ctx context.Context) (*nrel.UtilityRates, error) {
		lat, lon, geoErr := t.deps.Averages.GeocodeZip(ctx, zipCode)
		if geoErr != nil {
			return nil, geoErr
		}
		return t.deps.Averages.UtilityRates(ctx, lat, lon, "")
	})
	if err != nil {
		zap.L().Warn("average rate lookup failed",
			zap.String("zip_code", zipCode),
			zap.Error(err),
		)
		return nil, nil
	}

	return []model.SourceDocument{{
		Content: formatAverageRates(rates, zipCode),
		Metadata: map[string]string{
			"domain":   "utility",
			"source":   "nrel_rates",
			"zip_code": zipCode,
			"utility":  rates.UtilityName,
		},
		Score: 1.0,
	}}, nil
}

func formatRatePlan(plan openei.RatePlan, zipCode string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Utility rate plan for zip %s: %s (%s)", zipCode, plan.Name, plan.Utility)
	if plan.Sector != "" {
		fmt.Fprintf(&b, ", sector %s", plan.Sector)
	}
	if avg := plan.AverageEnergyRate(); avg > 0 {
		fmt.Fprintf(&b, ". Average energy rate: $%.4f/kWh", avg)
	}
	if plan.FixedChargeFirstMeter > 0 {
		fmt.Fprintf(&b, ". Fixed charge: $%.2f %s", plan.FixedChargeFirstMeter, plan.FixedChargeUnits)
	}
	return b.String()
}

func formatAverageRates(rates *nrel.UtilityRates, zipCode string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Average electricity rates for zip %s (%s)", zipCode, rates.UtilityName)
	if rates.ResidentialRate > 0 {
		fmt.Fprintf(&b, ". Residential: $%.4f/kWh", rates.ResidentialRate)
	}
	if rates.CommercialRate > 0 {
		fmt.Fprintf(&b, ". Commercial: $%.4f/kWh", rates.CommercialRate)
	}
	if rates.IndustrialRate > 0 {
		fmt.Fprintf(&b, ". Industrial: $%.4f/kWh", rates.IndustrialRate)
	}
	return b.String()
}
