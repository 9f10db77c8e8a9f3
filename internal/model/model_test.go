package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFailedResult(t *testing.T) {
	sub := SubQuestion{Text: "rates?", ToolName: "utility_tool", Index: 2}

	res := FailedResult(sub, "provider unavailable", 150*time.Millisecond)

	assert.Equal(t, sub, res.SubQuestion)
	assert.Equal(t, "utility_tool", res.ToolName)
	assert.False(t, res.Success)
	assert.Equal(t, "provider unavailable", res.Error)
	assert.Equal(t, 150*time.Millisecond, res.Latency)
	assert.Empty(t, res.Answer)
}

func TestSourceDocumentDomain(t *testing.T) {
	doc := SourceDocument{Metadata: map[string]string{"domain": "utility"}}
	assert.Equal(t, "utility", doc.Domain())
	assert.Empty(t, SourceDocument{}.Domain())
}

func TestEventConstructors(t *testing.T) {
	ev := StatusEvent(StageAnalyzing, "Analyzing your question")
	assert.Equal(t, EventStatus, ev.Type)
	assert.Equal(t, StageAnalyzing, ev.Stage)

	ev = ToolEvent("solar_production_tool")
	assert.Equal(t, EventTool, ev.Type)
	assert.Equal(t, "solar_production_tool", ev.ToolName)

	answer := &FinalAnswer{Answer: "done"}
	ev = DoneEvent(answer)
	assert.Equal(t, EventDone, ev.Type)
	assert.Same(t, answer, ev.Answer)

	ev = ErrorEvent("boom")
	assert.Equal(t, EventError, ev.Type)
	assert.Equal(t, "boom", ev.Message)
}

func TestEventJSONOmitsType(t *testing.T) {
	data, err := json.Marshal(StatusEvent(StageSearching, "Dispatching 2 sub-questions"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"stage":"searching","message":"Dispatching 2 sub-questions"}`, string(data))
}

func TestToolResultJSONHidesInternalFields(t *testing.T) {
	res := ToolResult{
		SubQuestion: SubQuestion{Text: "hidden", Index: 4},
		ToolName:    "solar_production_tool",
		Answer:      "14250 kWh/year",
		Success:     true,
		Latency:     time.Second,
	}

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.NotContains(t, string(data), "Latency")
	assert.Contains(t, string(data), `"tool_name":"solar_production_tool"`)
}
