package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltquery/voltquery/internal/model"
	"github.com/voltquery/voltquery/internal/tool"
)

func TestDispatcher_ResultsInIndexOrder(t *testing.T) {
	// The slow tool finishes last but must come back first.
	slow := &stubTool{name: tool.NameUtility, answer: func(ctx context.Context, sub model.SubQuestion, q tool.Query) model.ToolResult {
		time.Sleep(20 * time.Millisecond)
		return model.ToolResult{SubQuestion: sub, ToolName: tool.NameUtility, Answer: "rates", Success: true}
	}}
	fast := &stubTool{name: tool.NameSolar}
	d := NewDispatcher(tool.NewRegistry(slow, fast), 0)

	subs := []model.SubQuestion{
		{Text: "rates?", ToolName: tool.NameUtility, Index: 0},
		{Text: "solar?", ToolName: tool.NameSolar, Index: 1},
	}

	results := d.Run(context.Background(), subs, tool.Query{}, nil)

	require.Len(t, results, 2)
	assert.Equal(t, tool.NameUtility, results[0].ToolName)
	assert.Equal(t, tool.NameSolar, results[1].ToolName)
}

func TestDispatcher_FailureIsolated(t *testing.T) {
	failing := &stubTool{name: tool.NameUtility, answer: func(ctx context.Context, sub model.SubQuestion, q tool.Query) model.ToolResult {
		return model.FailedResult(sub, "provider unavailable", time.Millisecond)
	}}
	healthy := &stubTool{name: tool.NameSolar}
	d := NewDispatcher(tool.NewRegistry(failing, healthy), 0)

	results := d.Run(context.Background(), []model.SubQuestion{
		{Text: "rates?", ToolName: tool.NameUtility, Index: 0},
		{Text: "solar?", ToolName: tool.NameSolar, Index: 1},
	}, tool.Query{}, nil)

	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.Equal(t, "provider unavailable", results[0].Error)
	assert.True(t, results[1].Success)
}

func TestDispatcher_PanicRecovered(t *testing.T) {
	panicking := &stubTool{name: tool.NameBuildings, answer: func(ctx context.Context, sub model.SubQuestion, q tool.Query) model.ToolResult {
		panic("nil map write")
	}}
	healthy := &stubTool{name: tool.NameSolar}
	d := NewDispatcher(tool.NewRegistry(panicking, healthy), 0)

	results := d.Run(context.Background(), []model.SubQuestion{
		{Text: "codes?", ToolName: tool.NameBuildings, Index: 0},
		{Text: "solar?", ToolName: tool.NameSolar, Index: 1},
	}, tool.Query{}, nil)

	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "internal tool failure: nil map write")
	assert.True(t, results[1].Success)
}

func TestDispatcher_UnknownToolFails(t *testing.T) {
	d := NewDispatcher(tool.NewRegistry(&stubTool{name: tool.NameSolar}), 0)

	results := d.Run(context.Background(), []model.SubQuestion{
		{Text: "anything", ToolName: "ghost_tool", Index: 0},
	}, tool.Query{}, nil)

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, `no tool registered as "ghost_tool"`)
}

func TestDispatcher_BudgetRewritesTimeout(t *testing.T) {
	blocking := &stubTool{name: tool.NameUtility, answer: func(ctx context.Context, sub model.SubQuestion, q tool.Query) model.ToolResult {
		<-ctx.Done()
		return model.FailedResult(sub, "request aborted: context deadline exceeded", 0)
	}}
	d := NewDispatcher(tool.NewRegistry(blocking), 10*time.Millisecond)

	results := d.Run(context.Background(), []model.SubQuestion{
		{Text: "rates?", ToolName: tool.NameUtility, Index: 0},
	}, tool.Query{}, nil)

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, "tool timed out after 10ms", results[0].Error)
}

func TestDispatcher_OnToolStartCalledPerSub(t *testing.T) {
	starts := make(chan string, 4)
	d := NewDispatcher(fullRegistry(), 0)

	subs := []model.SubQuestion{
		{Text: "a", ToolName: tool.NameOptimization, Index: 0, Scenario: "purchase"},
		{Text: "b", ToolName: tool.NameOptimization, Index: 1, Scenario: "lease"},
	}
	d.Run(context.Background(), subs, tool.Query{}, func(name string) { starts <- name })

	close(starts)
	var started []string
	for name := range starts {
		started = append(started, name)
	}
	assert.Equal(t, []string{tool.NameOptimization, tool.NameOptimization}, started)
}

func TestDispatcher_QueryPassedThrough(t *testing.T) {
	var got tool.Query
	capture := &stubTool{name: tool.NameTransportation, answer: func(ctx context.Context, sub model.SubQuestion, q tool.Query) model.ToolResult {
		got = q
		return model.ToolResult{SubQuestion: sub, ToolName: tool.NameTransportation, Answer: "ok", Success: true}
	}}
	d := NewDispatcher(tool.NewRegistry(capture), 0)

	q := tool.Query{Filters: map[string]string{"zip_code": "80202"}, TopK: 3}
	d.Run(context.Background(), []model.SubQuestion{{Text: "a", ToolName: tool.NameTransportation}}, q, nil)

	assert.Equal(t, "80202", got.Filters["zip_code"])
	assert.Equal(t, 3, got.TopK)
}
