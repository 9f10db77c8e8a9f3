package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltquery/voltquery/internal/model"
	"github.com/voltquery/voltquery/internal/tool"
)

func TestDecompose_ItemsEnvelope(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{
		`{"items": [
			{"sub_question": "Where are the nearest charging stations?", "tool_name": "transportation_tool"},
			{"sub_question": "What is the electricity cost per kWh?", "tool_name": "utility_tool"}
		]}`,
	}}
	d := NewDecomposer(completer, fullRegistry())

	subs := d.Decompose(context.Background(), "Where can I charge and what does it cost?", "zip code 80202")

	require.Len(t, subs, 2)
	assert.Equal(t, "Where are the nearest charging stations?", subs[0].Text)
	assert.Equal(t, tool.NameTransportation, subs[0].ToolName)
	assert.Equal(t, 0, subs[0].Index)
	assert.Equal(t, tool.NameUtility, subs[1].ToolName)
	assert.Equal(t, 1, subs[1].Index)

	require.Len(t, completer.requests, 1)
	assert.Contains(t, completer.requests[0].Prompt, "Where can I charge and what does it cost?")
	assert.Contains(t, completer.requests[0].Prompt, "transportation_tool")
	assert.Contains(t, completer.requests[0].Prompt, "zip code 80202")
	assert.Contains(t, completer.requests[0].System, "TAX CREDIT CONTEXT")
}

func TestDecompose_FencedWithTrailingComma(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{
		"```json\n{\"items\": [{\"sub_question\": \"What are current rates?\", \"tool_name\": \"utility_tool\"},]}\n```",
	}}
	d := NewDecomposer(completer, fullRegistry())

	subs := d.Decompose(context.Background(), "rates?", "")

	require.Len(t, subs, 1)
	assert.Equal(t, tool.NameUtility, subs[0].ToolName)
}

func TestDecompose_BareArray(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{
		`[{"sub_question": "What is solar potential here?", "tool_name": "solar_production_tool"}]`,
	}}
	d := NewDecomposer(completer, fullRegistry())

	subs := d.Decompose(context.Background(), "solar?", "")

	require.Len(t, subs, 1)
	assert.Equal(t, tool.NameSolar, subs[0].ToolName)
}

func TestDecompose_TruncatedOutputRecovered(t *testing.T) {
	// Response cut off mid-way through the second item.
	out := `{"items": [
		{"sub_question": "What are current electricity rates?", "tool_name": "utility_tool"},
		{"sub_question": "What are building ener`
	completer := &scriptedCompleter{responses: []string{out}}
	d := NewDecomposer(completer, fullRegistry())

	subs := d.Decompose(context.Background(), "lower my bill", "")

	require.Len(t, subs, 1)
	assert.Equal(t, "What are current electricity rates?", subs[0].Text)
	assert.Equal(t, tool.NameUtility, subs[0].ToolName)
}

func TestDecompose_CompletionErrorFallsBack(t *testing.T) {
	completer := &scriptedCompleter{errs: []error{errors.New("api down")}}
	d := NewDecomposer(completer, fullRegistry())

	subs := d.Decompose(context.Background(), "Where can I charge?", "")

	require.Len(t, subs, 1)
	assert.Equal(t, "Where can I charge?", subs[0].Text)
	assert.Equal(t, tool.FallbackName, subs[0].ToolName)
	assert.Equal(t, 0, subs[0].Index)
}

func TestDecompose_GarbageOutputFallsBack(t *testing.T) {
	for _, out := range []string{
		"I cannot answer that.",
		`{"items": []}`,
		`{"items": [{"sub_question": "", "tool_name": "utility_tool"}]}`,
		"",
	} {
		completer := &scriptedCompleter{responses: []string{out}}
		d := NewDecomposer(completer, fullRegistry())

		subs := d.Decompose(context.Background(), "anything", "")

		require.Len(t, subs, 1, "output %q", out)
		assert.Equal(t, tool.FallbackName, subs[0].ToolName)
	}
}

func TestParseSubQuestions_SingleObject(t *testing.T) {
	subs := parseSubQuestions(`{"sub_question": "What is the rate?", "tool_name": "utility_tool"}`)
	require.Len(t, subs, 1)
	assert.Equal(t, "What is the rate?", subs[0].Text)
}

func TestParseSubQuestions_ProseAroundArray(t *testing.T) {
	out := `Here are the sub-questions:
{"items": [{"sub_question": "Find stations", "tool_name": "transportation_tool"}]}
Let me know if you need more.`
	subs := parseSubQuestions(out)
	require.Len(t, subs, 1)
	assert.Equal(t, tool.NameTransportation, subs[0].ToolName)
}

func TestTagScenarios(t *testing.T) {
	subs := []model.SubQuestion{
		{Text: "Optimal NPV with purchase financing (0% ITC)?", ToolName: tool.NameOptimization},
		{Text: "Optimal NPV with lease financing (30% ITC)?", ToolName: tool.NameOptimization},
		{Text: "What does purchase mean?", ToolName: tool.NameBuildings},
		{Text: "Just the optimal system", ToolName: tool.NameOptimization},
	}

	TagScenarios(subs)

	assert.Equal(t, "purchase", subs[0].Scenario)
	assert.Equal(t, "lease", subs[1].Scenario)
	assert.Empty(t, subs[2].Scenario, "non-optimizer subs stay untagged")
	assert.Empty(t, subs[3].Scenario)
}
