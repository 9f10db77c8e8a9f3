// Package engine implements the query orchestration pipeline: location
// detection, decomposition, tool-name resolution, concurrent dispatch,
// and answer synthesis, surfaced as an ordered event stream.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/voltquery/voltquery/internal/llm"
	"github.com/voltquery/voltquery/internal/model"
	"github.com/voltquery/voltquery/internal/tool"
	"github.com/voltquery/voltquery/internal/validate"
)

// Engine runs queries end to end.
type Engine struct {
	locator     *Locator
	decomposer  *Decomposer
	resolver    *Resolver
	dispatcher  *Dispatcher
	synthesizer *Synthesizer
}

// Config wires the engine's collaborators.
type Config struct {
	Completer llm.Completer
	Registry  *tool.Registry

	// Aliases extends the resolver's alias table. Nil uses the defaults.
	Aliases map[string]string

	// DispatchBudget bounds each tool call.
	DispatchBudget time.Duration
}

// New builds the engine.
func New(cfg Config) *Engine {
	return &Engine{
		locator:     NewLocator(cfg.Completer),
		decomposer:  NewDecomposer(cfg.Completer, cfg.Registry),
		resolver:    NewResolver(cfg.Registry, cfg.Aliases),
		dispatcher:  NewDispatcher(cfg.Registry, cfg.DispatchBudget),
		synthesizer: NewSynthesizer(cfg.Completer),
	}
}

// EmitFunc receives ordered stream events. Returning an error aborts the
// query; the engine emits no further events after that.
type EmitFunc func(event model.Event) error

// QueryStream runs one question through the pipeline, emitting staged
// events. Exactly one done or error event terminates the stream; the
// returned error mirrors the error event (nil on done).
func (e *Engine) QueryStream(ctx context.Context, q model.Question, emit EmitFunc) error {
	requestID := uuid.NewString()
	logger := zap.L().With(zap.String("request_id", requestID))
	start := time.Now()

	fail := func(err error) error {
		logger.Warn("query failed", zap.Error(err))
		_ = emit(model.ErrorEvent(err.Error()))
		return err
	}

	question, err := validate.Question(q.Text)
	if err != nil {
		return fail(err)
	}
	if q.ZipCode != "" {
		if err := validate.ZipCode(q.ZipCode); err != nil {
			return fail(err)
		}
	}
	if err := validate.TopK(q.TopK); err != nil {
		return fail(err)
	}

	logger.Info("query started", zap.String("question", snippetStr(question, 200)))

	if err := emit(model.StatusEvent(model.StageAnalyzing, "Analyzing your question")); err != nil {
		return err
	}

	location := e.locator.Detect(ctx, question)
	if location == nil && q.ZipCode != "" {
		location = &model.DetectedLocation{Type: "zip_code", ZipCode: q.ZipCode}
	}
	filters := Filters(location)
	if q.ZipCode != "" && filters["zip_code"] == "" {
		filters["zip_code"] = q.ZipCode
	}

	subs := e.decomposer.Decompose(ctx, question, LocationHint(location))
	for i := range subs {
		subs[i].ToolName = e.resolver.Resolve(subs[i].ToolName, subs[i].Text)
	}
	TagScenarios(subs)

	if err := ctx.Err(); err != nil {
		return fail(eris.Wrap(err, "engine: query cancelled"))
	}
	if err := emit(model.StatusEvent(model.StageSearching, fmt.Sprintf("Dispatching %d sub-questions", len(subs)))); err != nil {
		return err
	}

	// Tool events surface from concurrent goroutines; serialize them.
	var emitMu sync.Mutex
	emitLocked := func(event model.Event) error {
		emitMu.Lock()
		defer emitMu.Unlock()
		return emit(event)
	}
	results := e.dispatcher.Run(ctx, subs, tool.Query{Filters: filters, TopK: q.TopK},
		func(toolName string) {
			_ = emitLocked(model.ToolEvent(toolName))
		})

	if err := ctx.Err(); err != nil {
		return fail(eris.Wrap(err, "engine: query cancelled"))
	}
	if err := emitLocked(model.StatusEvent(model.StageRetrieving, "Collecting results")); err != nil {
		return err
	}
	if err := emitLocked(model.StatusEvent(model.StageGenerating, "Generating answer")); err != nil {
		return err
	}

	answer, err := e.synthesizer.Synthesize(ctx, question, results, func(delta string) error {
		return emitLocked(model.Event{Type: model.EventChunk, Text: delta})
	})
	if err != nil {
		return fail(eris.Wrap(err, "engine: synthesize answer"))
	}
	answer.DetectedLocation = location

	if err := emitLocked(model.StatusEvent(model.StageFinalizing, "Finalizing")); err != nil {
		return err
	}

	logger.Info("query complete",
		zap.Int("sub_questions", len(subs)),
		zap.Int("sources", answer.NumSources),
		zap.Strings("tools_used", answer.ToolsUsed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return emitLocked(model.DoneEvent(answer))
}

// Query runs one question without streaming and returns the final
// answer. Used by the CLI.
func (e *Engine) Query(ctx context.Context, q model.Question) (*model.FinalAnswer, error) {
	var answer *model.FinalAnswer
	err := e.QueryStream(ctx, q, func(event model.Event) error {
		if event.Type == model.EventDone {
			answer = event.Answer
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if answer == nil {
		return nil, eris.New("engine: stream ended without an answer")
	}
	return answer, nil
}
