// Package model defines the core types exchanged between the query
// orchestration stages: questions, sub-questions, tool results, retrieved
// documents, financial scenarios, and the final answer.
package model

import "time"

// Question is one incoming user request.
type Question struct {
	Text    string `json:"question"`
	ZipCode string `json:"zip_code,omitempty"`
	TopK    int    `json:"top_k,omitempty"`
}

// SubQuestion is one decomposed unit of work, routed to a single tool.
type SubQuestion struct {
	Text     string `json:"sub_question"`
	ToolName string `json:"tool_name"`

	// Index is the position in the decomposition order. The dispatcher
	// returns results in this order regardless of completion order.
	Index int `json:"-"`

	// Scenario pins an optimizer branch ("purchase" or "lease") when the
	// decomposer emitted a dual-scenario pair. Empty otherwise.
	Scenario string `json:"-"`
}

// SourceDocument is a piece of retrieved evidence. Immutable once returned.
type SourceDocument struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Score    float64           `json:"score"`
}

// Domain returns the document's domain tag, or "" if untagged.
func (d SourceDocument) Domain() string {
	return d.Metadata["domain"]
}

// ToolResult is the outcome of one sub-question. One is always produced,
// even when the tool's provider failed — Success carries the distinction.
type ToolResult struct {
	SubQuestion SubQuestion      `json:"-"`
	ToolName    string           `json:"tool_name"`
	Answer      string           `json:"answer"`
	Sources     []SourceDocument `json:"sources,omitempty"`
	Success     bool             `json:"success"`
	Error       string           `json:"error,omitempty"`
	Latency     time.Duration    `json:"-"`

	// Comparison is set only by the optimizer tool when scenario branching
	// produced comparable purchase/lease outcomes.
	Comparison *ScenarioComparison `json:"scenario_comparison,omitempty"`
}

// FailedResult builds a ToolResult describing an expected failure.
func FailedResult(sub SubQuestion, reason string, latency time.Duration) ToolResult {
	return ToolResult{
		SubQuestion: sub,
		ToolName:    sub.ToolName,
		Success:     false,
		Error:       reason,
		Latency:     latency,
	}
}

// Scenario is one incentive/ownership case produced by the financial
// scenario engine.
type Scenario struct {
	Name                  string   `json:"name"`
	OwnershipType         string   `json:"ownership_type"`
	IncentiveRate         float64  `json:"incentive_rate"`
	AnalysisHorizonYears  int      `json:"analysis_horizon_years"`
	NetPresentValue       *float64 `json:"net_present_value"`
	RecommendedCapacityKW float64  `json:"recommended_capacity_kw,omitempty"`
	StorageKW             float64  `json:"storage_kw,omitempty"`
	StorageKWH            float64  `json:"storage_kwh,omitempty"`
	PolicyNotice          string   `json:"policy_notice,omitempty"`
	PolicyWarning         string   `json:"policy_warning,omitempty"`
}

// ScenarioComparison pairs a purchase and a lease scenario for the same
// site so the synthesizer can state both present values.
type ScenarioComparison struct {
	Purchase *Scenario `json:"purchase,omitempty"`
	Lease    *Scenario `json:"lease,omitempty"`
	NPVDelta *float64  `json:"npv_delta,omitempty"`
}

// DetectedLocation describes where the question was determined to be about
// when the caller did not supply a zip code hint.
type DetectedLocation struct {
	Type    string `json:"type,omitempty"` // "zip_code", "city_state", "state"
	ZipCode string `json:"zip_code,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
}

// FinalAnswer is the terminal payload of a successful query.
type FinalAnswer struct {
	Question           string              `json:"question"`
	Answer             string              `json:"answer"`
	Sources            []SourceDocument    `json:"sources"`
	NumSources         int                 `json:"num_sources"`
	ToolsUsed          []string            `json:"tools_used"`
	DetectedLocation   *DetectedLocation   `json:"detected_location,omitempty"`
	ScenarioComparison *ScenarioComparison `json:"scenario_comparison,omitempty"`
}
