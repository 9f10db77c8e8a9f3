package engine

import (
	"strings"

	"go.uber.org/zap"

	"github.com/voltquery/voltquery/internal/tool"
)

// Resolver repairs tool names emitted by the decomposer. It is total:
// Resolve always returns a registered identifier.
type Resolver struct {
	registry *tool.Registry
	aliases  map[string]string
	fallback string

	// normalized maps each registered name's normalized form back to the
	// identifier, for case/punctuation-insensitive matching.
	normalized map[string]string
}

// NewResolver builds a resolver over the registry. aliases may be nil to
// use the built-in table.
func NewResolver(registry *tool.Registry, aliases map[string]string) *Resolver {
	if aliases == nil {
		aliases = defaultAliases
	}
	normalized := make(map[string]string, len(registry.Names()))
	for _, name := range registry.SortedNames() {
		normalized[normalizeToolName(name)] = name
	}
	return &Resolver{
		registry:   registry,
		aliases:    aliases,
		fallback:   tool.FallbackName,
		normalized: normalized,
	}
}

// Resolve maps a decomposer-emitted tool name to a registered identifier.
// subText is the sub-question text, used for content heuristics when the
// name itself cannot be repaired.
func (r *Resolver) Resolve(name, subText string) string {
	if _, ok := r.registry.Get(name); ok {
		return name
	}

	norm := normalizeToolName(name)
	if resolved, ok := r.normalized[norm]; ok {
		return resolved
	}

	if target, ok := r.aliases[norm]; ok {
		if _, registered := r.registry.Get(target); registered {
			return target
		}
	}

	// Prefix and substring against registered names, alphabetical for
	// determinism.
	if norm != "" {
		for _, registered := range r.registry.SortedNames() {
			regNorm := normalizeToolName(registered)
			if strings.HasPrefix(regNorm, norm) || strings.HasPrefix(norm, regNorm) ||
				strings.Contains(regNorm, norm) || strings.Contains(norm, regNorm) {
				return registered
			}
		}
	}

	resolved := r.byContent(subText)
	zap.L().Debug("tool name resolved by content",
		zap.String("emitted", name),
		zap.String("resolved", resolved),
	)
	return resolved
}

// Content keyword sets, checked in precedence order. Cost and rate
// language wins over station language so "charging costs at 11 PM" goes
// to the utility tool, not the station directory.
var (
	utilityKeywords = []string{
		"electricity", "utility", "rate", "cost", "kwh", "price", "bill",
		"time-of-use", "off-peak", "peak rate", "charging cost", "charging at",
		"savings", "compare", "monthly", "annual",
	}
	stationKeywords = []string{
		"charging station", "charging stations", "where to charge", "where can i charge",
		"charger location", "charging location", "nearest charging", "find charging",
		"dc fast", "level 2", "station near",
	}
	chargingCostKeywords = []string{"cost", "savings", "rate", "price", "bill", "at 11", "at 12", "time"}
	optimizationKeywords = []string{
		"investment", "sizing", "roi", "optimal size", "optimal system", "npv",
		"net present value", "financial analysis", "economic analysis", "optimal design",
		"cost-benefit", "payback", "optimize", "optimization", "optimal solar",
		"optimal storage", "optimal energy system",
	}
	solarKeywords = []string{
		"solar", "solar panel", "solar energy", "solar production", "solar generation",
		"solar savings", "solar offset", "solar payback", "photovoltaic", "pv system",
	}
	buildingKeywords = []string{
		"building code", "energy code", "iecc", "ashrae", "building standard",
		"efficiency requirement", "code compliance", "building performance",
		"energy efficiency standard", "building energy code", "building codes",
		"energy standards", "building efficiency", "lower bill", "reduce bill",
		"lower electricity", "reduce electricity", "energy efficiency measure",
		"energy retrofit", "improve efficiency", "reduce consumption",
	}
)

func (r *Resolver) byContent(subText string) string {
	lower := strings.ToLower(subText)
	switch {
	case containsAny(lower, utilityKeywords):
		return r.registered(tool.NameUtility)
	case containsAny(lower, stationKeywords):
		return r.registered(tool.NameTransportation)
	case strings.Contains(lower, "charging"):
		if containsAny(lower, chargingCostKeywords) {
			return r.registered(tool.NameUtility)
		}
		return r.registered(tool.NameTransportation)
	case containsAny(lower, optimizationKeywords):
		return r.registered(tool.NameOptimization)
	case containsAny(lower, solarKeywords):
		return r.registered(tool.NameSolar)
	case containsAny(lower, buildingKeywords):
		return r.registered(tool.NameBuildings)
	default:
		return r.fallback
	}
}

// registered guards heuristic picks against a registry missing a tool.
func (r *Resolver) registered(name string) string {
	if _, ok := r.registry.Get(name); ok {
		return name
	}
	return r.fallback
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// normalizeToolName lowercases and collapses punctuation to single
// spaces so "Transportation-Tool" and "transportation_tool" compare
// equal.
func normalizeToolName(name string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
