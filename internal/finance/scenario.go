package finance

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/voltquery/voltquery/internal/model"
	"github.com/voltquery/voltquery/internal/resilience"
	"github.com/voltquery/voltquery/pkg/reopt"
)

// Request describes one site to run the scenario engine against.
type Request struct {
	Lat float64
	Lon float64

	// PropertyType is "residential", "commercial", or "industrial".
	// Empty defaults to residential.
	PropertyType string

	// Ownership pins a single branch ("purchase" or "lease"). Empty on a
	// residential request runs both branches and compares them.
	Ownership string

	// URDBLabel selects the electric tariff for the solver.
	URDBLabel string

	// AdditionalLoadKW adds peak load (EV chargers, new equipment).
	AdditionalLoadKW float64

	// ConstructionStart feeds the commercial cutoff rule. Zero means
	// construction starts now.
	ConstructionStart time.Time
}

// Engine runs the numeric solver under the policy rules and assembles
// comparable scenarios. Solver runs go through the shared retry policy
// and a dedicated circuit breaker, so a struggling optimizer backend
// fails fast instead of stacking long-polling runs.
type Engine struct {
	solver  reopt.Client
	policy  Policy
	breaker *resilience.Breaker
	retry   resilience.RetryConfig

	nowFunc func() time.Time
}

// NewEngine creates a scenario engine backed by the given solver.
func NewEngine(solver reopt.Client, policy Policy, breaker *resilience.Breaker, retry resilience.RetryConfig) *Engine {
	return &Engine{
		solver:  solver,
		policy:  policy,
		breaker: breaker,
		retry:   retry,
		nowFunc: time.Now,
	}
}

// Compare runs the scenario branches for a request.
//
// A residential request with no pinned ownership runs purchase and lease
// concurrently and reports both with their NPV delta. A pinned request
// runs its single branch. Commercial and industrial requests run a single
// purchase scenario, carrying the construction-deadline warning while the
// cutoff is still ahead.
func (e *Engine) Compare(ctx context.Context, req Request) (*model.ScenarioComparison, error) {
	property := normalizeProperty(req.PropertyType)
	if property == "" {
		property = PropertyResidential
	}
	ownership := normalizeOwnership(req.Ownership)

	if property == PropertyCommercial || property == PropertyIndustrial {
		scenario, err := e.runScenario(ctx, req, property, OwnershipPurchase, "Commercial")
		if err != nil {
			return nil, err
		}
		return &model.ScenarioComparison{Purchase: scenario}, nil
	}

	if ownership != "" {
		name := "Purchase"
		if ownership == OwnershipLease {
			name = "Lease"
		}
		scenario, err := e.runScenario(ctx, req, property, ownership, name)
		if err != nil {
			return nil, err
		}
		cmp := &model.ScenarioComparison{}
		if ownership == OwnershipLease {
			cmp.Lease = scenario
		} else {
			cmp.Purchase = scenario
		}
		return cmp, nil
	}

	// Branch runs share no mutable state, so the solver calls can
	// overlap on the provider's side.
	var purchase, lease *model.Scenario
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		s, err := e.runScenario(groupCtx, req, property, OwnershipPurchase, "Purchase")
		if err != nil {
			return eris.Wrap(err, "finance: purchase scenario")
		}
		purchase = s
		return nil
	})
	group.Go(func() error {
		s, err := e.runScenario(groupCtx, req, property, OwnershipLease, "Lease")
		if err != nil {
			return eris.Wrap(err, "finance: lease scenario")
		}
		lease = s
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	cmp := &model.ScenarioComparison{Purchase: purchase, Lease: lease}
	if purchase.NetPresentValue != nil && lease.NetPresentValue != nil {
		delta := *lease.NetPresentValue - *purchase.NetPresentValue
		cmp.NPVDelta = &delta
	}
	return cmp, nil
}

func (e *Engine) runScenario(ctx context.Context, req Request, property, ownership, name string) (*model.Scenario, error) {
	now := e.nowFunc()
	rate := e.policy.IncentiveRate(property, ownership, req.ConstructionStart, now)
	horizon := e.policy.ForcedHorizonYears

	job := reopt.Job{
		Lat:                 req.Lat,
		Lon:                 req.Lon,
		LoadProfile:         property,
		URDBLabel:           req.URDBLabel,
		AdditionalLoadKW:    req.AdditionalLoadKW,
		AnalysisYears:       horizon,
		FederalITCFraction:  rate,
		ThirdPartyOwnership: ownership == OwnershipLease,
	}
	results, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) (*reopt.Results, error) {
		return resilience.ExecuteVal(ctx, e.breaker, func(ctx context.Context) (*reopt.Results, error) {
			return e.solver.Optimize(ctx, job)
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "finance: %s scenario solver run", ownership)
	}

	zap.L().Info("scenario solved",
		zap.String("name", name),
		zap.String("property", property),
		zap.Float64("incentive_rate", rate),
		zap.String("run_uuid", results.RunUUID),
	)

	return &model.Scenario{
		Name:                  name,
		OwnershipType:         ownership,
		IncentiveRate:         rate,
		AnalysisHorizonYears:  horizon,
		NetPresentValue:       results.NPV,
		RecommendedCapacityKW: results.PVSizeKW,
		StorageKW:             results.StorageKW,
		StorageKWH:            results.StorageKWH,
		PolicyNotice:          e.policy.Notice(property, ownership),
		PolicyWarning:         e.policy.Warning(property, now),
	}, nil
}
