package tool

import (
	"github.com/voltquery/voltquery/internal/llm"
	"github.com/voltquery/voltquery/internal/vectorstore"
)

const buildingsDescription = "BUILDINGS DOMAIN: questions about building energy codes (IECC, ASHRAE), " +
	"efficiency standards, code compliance, building performance, energy retrofits, and lowering " +
	"electricity bills through efficiency improvements."

// NewBuildingsTool answers building-code and efficiency questions from
// documents tagged domain=buildings.
func NewBuildingsTool(search vectorstore.Searcher, completer llm.Completer, opts RetrievalOptions) Tool {
	return &retrievalTool{
		name:        NameBuildings,
		description: buildingsDescription,
		domain:      "buildings",
		search:      search,
		completer:   completer,
		opts:        opts,
	}
}
