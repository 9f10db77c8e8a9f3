// Package tool implements the domain tools behind the query engine:
// vector-retrieval tools for the transportation, utility, and buildings
// domains, a PVWatts-backed solar estimator, and the REopt-backed
// financial optimizer. All tools share one contract: Answer always
// returns a ToolResult, with expected provider failures carried in the
// result rather than an error.
package tool

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/voltquery/voltquery/internal/model"
	"github.com/voltquery/voltquery/internal/validate"
)

// Registered tool identifiers.
const (
	NameTransportation = "transportation_tool"
	NameUtility        = "utility_tool"
	NameSolar          = "solar_production_tool"
	NameBuildings      = "buildings_tool"
	NameOptimization   = "optimization_tool"
)

// FallbackName is the general-purpose tool assigned when decomposition
// or name resolution cannot pick anything better.
const FallbackName = NameTransportation

// Query carries the per-request knobs into a tool invocation.
type Query struct {
	// Filters are location metadata filters (zip_code, state) applied to
	// vector retrieval and used as location hints by computation tools.
	Filters map[string]string

	// TopK bounds retrieval size. Zero means the default.
	TopK int
}

func (q Query) topK() int {
	if q.TopK <= 0 || validate.TopK(q.TopK) != nil {
		return validate.DefaultTopK
	}
	return q.TopK
}

// Tool is one domain capability addressable by the dispatcher.
type Tool interface {
	Name() string
	Description() string

	// Answer resolves one sub-question. Expected provider failures come
	// back as a failed ToolResult, never as a panic or error.
	Answer(ctx context.Context, sub model.SubQuestion, q Query) model.ToolResult
}

// Registry holds the active tool set keyed by identifier.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry builds a registry from the given tools. Later duplicates
// of a name replace earlier ones.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if _, seen := r.tools[t.Name()]; !seen {
			r.order = append(r.order, t.Name())
		}
		r.tools[t.Name()] = t
	}
	return r
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered identifiers in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// SortedNames returns the registered identifiers alphabetically, for
// deterministic matching in the resolver.
func (r *Registry) SortedNames() []string {
	names := r.Names()
	sort.Strings(names)
	return names
}

// Catalog renders the tool set as a prompt fragment: one "- name:
// description" line per tool in registration order.
func (r *Registry) Catalog() string {
	var b strings.Builder
	for _, name := range r.order {
		fmt.Fprintf(&b, "- %s: %s\n", name, r.tools[name].Description())
	}
	return b.String()
}
