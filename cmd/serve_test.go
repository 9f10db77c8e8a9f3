package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltquery/voltquery/internal/engine"
	"github.com/voltquery/voltquery/internal/llm"
	"github.com/voltquery/voltquery/internal/model"
	"github.com/voltquery/voltquery/internal/resilience"
	"github.com/voltquery/voltquery/internal/tool"
)

// cannedCompleter returns scripted responses in call order.
type cannedCompleter struct {
	responses []string
	calls     int
}

func (c *cannedCompleter) next() string {
	i := c.calls
	c.calls++
	if i < len(c.responses) {
		return c.responses[i]
	}
	return ""
}

func (c *cannedCompleter) Complete(ctx context.Context, req llm.Request) (string, error) {
	return c.next(), nil
}

func (c *cannedCompleter) CompleteStream(ctx context.Context, req llm.Request, onDelta func(string) error) (string, error) {
	out := c.next()
	if onDelta != nil {
		if err := onDelta(out); err != nil {
			return "", err
		}
	}
	return out, nil
}

type staticTool struct {
	name   string
	answer string
}

func (s *staticTool) Name() string        { return s.name }
func (s *staticTool) Description() string { return s.name }

func (s *staticTool) Answer(ctx context.Context, sub model.SubQuestion, q tool.Query) model.ToolResult {
	return model.ToolResult{
		SubQuestion: sub,
		ToolName:    s.name,
		Answer:      s.answer,
		Sources:     []model.SourceDocument{{Content: "doc", Score: 0.9}},
		Success:     true,
		Latency:     time.Millisecond,
	}
}

func testEnv() *appEnv {
	completer := &cannedCompleter{responses: []string{
		`{"zip_code": "80202", "city": null, "state": null, "location_type": "zip_code"}`,
		`{"items": [{"sub_question": "Where are the nearest charging stations?", "tool_name": "transportation_tool"}]}`,
		"Three stations are within 2 miles of 80202.",
	}}
	registry := tool.NewRegistry(&staticTool{name: tool.NameTransportation, answer: "station list"})
	eng := engine.New(engine.Config{Completer: completer, Registry: registry})
	return &appEnv{
		Engine:   eng,
		Breakers: resilience.NewBreakerSet(resilience.BreakerConfig{}),
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newRouter(testEnv(), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestQueryStreamEndpoint(t *testing.T) {
	router := newRouter(testEnv(), nil)

	body := strings.NewReader(`{"question": "Where can I charge near 80202?"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/query/stream", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	out := rec.Body.String()
	assert.Contains(t, out, "event: status\n")
	assert.Contains(t, out, `"stage":"analyzing"`)
	assert.Contains(t, out, "event: tool\n")
	assert.Contains(t, out, `"tool_name":"transportation_tool"`)
	assert.Contains(t, out, "event: chunk\n")
	assert.Contains(t, out, "event: done\n")
	assert.Contains(t, out, "Three stations are within 2 miles of 80202.")

	// The done frame carries the full answer payload.
	assert.Contains(t, out, `"tools_used":["transportation_tool"]`)
	assert.Equal(t, 1, strings.Count(out, "event: done\n"))
	assert.Zero(t, strings.Count(out, "event: error\n"))
}

func TestQueryStreamInvalidBody(t *testing.T) {
	router := newRouter(testEnv(), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/query/stream", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryStreamValidationError(t *testing.T) {
	router := newRouter(testEnv(), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/query/stream", strings.NewReader(`{"question": ""}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// Validation failures surface on the stream, not as HTTP errors.
	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, "event: error\n")
	assert.Zero(t, strings.Count(out, "event: done\n"))
}

func TestWriteSSEFraming(t *testing.T) {
	rec := httptest.NewRecorder()

	err := writeSSE(rec, rec, model.StatusEvent(model.StageAnalyzing, "Analyzing your question"))
	require.NoError(t, err)

	assert.Equal(t,
		"event: status\ndata: {\"stage\":\"analyzing\",\"message\":\"Analyzing your question\"}\n\n",
		rec.Body.String())
	assert.True(t, rec.Flushed)
}
