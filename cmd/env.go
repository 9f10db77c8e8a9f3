package main

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/voltquery/voltquery/internal/config"
	"github.com/voltquery/voltquery/internal/engine"
	"github.com/voltquery/voltquery/internal/finance"
	"github.com/voltquery/voltquery/internal/llm"
	"github.com/voltquery/voltquery/internal/resilience"
	"github.com/voltquery/voltquery/internal/tool"
	"github.com/voltquery/voltquery/internal/vectorstore"
	"github.com/voltquery/voltquery/pkg/jina"
	"github.com/voltquery/voltquery/pkg/nrel"
	"github.com/voltquery/voltquery/pkg/openei"
	"github.com/voltquery/voltquery/pkg/reopt"
)

// appEnv bundles the wired engine and the shared state worth reporting
// at shutdown.
type appEnv struct {
	Engine   *engine.Engine
	Breakers *resilience.BreakerSet
}

// buildEnv wires every provider client, the five tools, and the engine
// from the loaded configuration.
func buildEnv(c *config.Config) (*appEnv, error) {
	completer := llm.NewClient(c.Anthropic.Key, c.Anthropic.Model,
		llm.WithMaxTokens(int64(c.Anthropic.MaxTokens)))

	embedder := jina.NewClient(c.Jina.Key,
		jina.WithBaseURL(c.Jina.BaseURL),
		jina.WithModel(c.Jina.Model),
	)

	store, err := vectorstore.NewStore(c.Qdrant.Host, c.Qdrant.Port, c.Qdrant.Collection, embedder)
	if err != nil {
		return nil, eris.Wrap(err, "cmd: connect vector store")
	}

	nrelClient := nrel.NewClient(c.NREL.Key,
		nrel.WithRateLimit(c.NREL.RateLimitRPS, c.NREL.RateLimitBurst))
	urdbClient := openei.NewClient(c.OpenEI.Key, openei.WithBaseURL(c.OpenEI.BaseURL))
	solver := reopt.NewClient(c.REopt.Key,
		reopt.WithBaseURL(c.REopt.BaseURL),
		reopt.WithMaxPolls(c.REopt.MaxPolls),
	)

	retryCfg := resilience.FromRetryConfig(
		c.Retry.MaxAttempts, c.Retry.InitialBackoffMs, c.Retry.MaxBackoffMs,
		c.Retry.Multiplier, c.Retry.JitterFraction,
	)
	breakerCfg := resilience.FromBreakerConfig(
		c.Breaker.FailureThreshold, c.Breaker.CoolDownSecs, c.Breaker.SuccessThreshold,
	)
	breakers := resilience.NewBreakerSet(breakerCfg)

	// The optimizer backend long-polls, so its breaker cools down far
	// longer than the snappy lookup providers.
	reoptBreakerCfg := breakerCfg
	reoptBreakerCfg.CoolDown = 300 * time.Second

	policy := finance.DefaultPolicy()
	if c.Finance.ResidentialHorizonYears > 0 {
		policy.ResidentialHorizonYears = c.Finance.ResidentialHorizonYears
		policy.ForcedHorizonYears = c.Finance.ResidentialHorizonYears
	}
	if c.Finance.CommercialHorizonYears > 0 {
		policy.CommercialHorizonYears = c.Finance.CommercialHorizonYears
	}
	scenarios := finance.NewEngine(solver, policy, breakers.Get("reopt", &reoptBreakerCfg), retryCfg)

	retrievalOpts := tool.RetrievalOptions{
		Rerank:              c.Engine.Rerank,
		CandidateMultiplier: c.Engine.CandidateMultiplier,
	}

	solarCache := resilience.NewCache[*nrel.SolarEstimate](time.Duration(c.Cache.SolarTTLHours) * time.Hour)
	labelCache := resilience.NewCache[string](time.Duration(c.Cache.RatesTTLHours) * time.Hour)
	ratesCache := resilience.NewCache[[]openei.RatePlan](time.Duration(c.Cache.RatesTTLHours) * time.Hour)
	geocodeCache := resilience.NewCache[tool.Coordinates](time.Duration(c.Cache.GeocodeTTLDays) * 24 * time.Hour)

	nrelGuard := tool.Guard{Breaker: breakers.Get("nrel", nil), Retry: retryCfg}
	urdbGuard := tool.Guard{Breaker: breakers.Get("urdb", nil), Retry: retryCfg}
	geocoder := tool.NewGeocoder(nrelClient, geocodeCache,
		tool.Guard{Breaker: breakers.Get("geocode", nil), Retry: retryCfg})

	registry := tool.NewRegistry(
		tool.NewTransportationTool(store, completer, nrelClient, geocoder, nrelGuard, retrievalOpts),
		tool.NewUtilityTool(store, completer, tool.UtilityDeps{
			URDB:       urdbClient,
			Averages:   nrelClient,
			RatesCache: ratesCache,
			URDBGuard:  urdbGuard,
			NRELGuard:  nrelGuard,
		}, retrievalOpts),
		tool.NewSolarTool(nrelClient, geocoder, solarCache,
			tool.Guard{Breaker: breakers.Get("pvwatts", nil), Retry: retryCfg}),
		tool.NewBuildingsTool(store, completer, retrievalOpts),
		tool.NewOptimizerTool(scenarios, geocoder, urdbClient, urdbGuard, labelCache),
	)

	aliases, err := engine.LoadAliases(c.Engine.AliasFile)
	if err != nil {
		return nil, err
	}

	eng := engine.New(engine.Config{
		Completer:      completer,
		Registry:       registry,
		Aliases:        aliases,
		DispatchBudget: time.Duration(c.Engine.DispatchBudgetSecs) * time.Second,
	})

	zap.L().Info("engine wired",
		zap.Strings("tools", registry.Names()),
		zap.String("collection", c.Qdrant.Collection),
		zap.Bool("rerank", c.Engine.Rerank),
	)
	return &appEnv{Engine: eng, Breakers: breakers}, nil
}

// logBreakerStates reports circuit states, called at shutdown.
func (e *appEnv) logBreakerStates() {
	for name, state := range e.Breakers.States() {
		zap.L().Info("circuit state", zap.String("breaker", name), zap.String("state", state.String()))
	}
}
