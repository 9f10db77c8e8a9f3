package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/voltquery/voltquery/internal/model"
	"github.com/voltquery/voltquery/internal/tool"
)

// Dispatcher fans sub-questions out to their tools concurrently. One
// ToolResult comes back per sub-question, in the original index order,
// regardless of individual failures.
type Dispatcher struct {
	registry *tool.Registry

	// budget bounds each individual tool call.
	budget time.Duration
}

// NewDispatcher builds a dispatcher with a per-call time budget.
func NewDispatcher(registry *tool.Registry, budget time.Duration) *Dispatcher {
	return &Dispatcher{registry: registry, budget: budget}
}

// Run executes every sub-question concurrently. Sub-question tool names
// must already be resolved; an unknown name is reported as a failed
// result rather than a panic. onToolStart, when non-nil, is called as
// each tool begins; it must be safe for concurrent use.
func (d *Dispatcher) Run(ctx context.Context, subs []model.SubQuestion, q tool.Query, onToolStart func(toolName string)) []model.ToolResult {
	results := make([]model.ToolResult, len(subs))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, sub := range subs {
		group.Go(func() error {
			results[i] = d.runOne(groupCtx, sub, q, onToolStart)
			return nil
		})
	}
	// Goroutines never return errors; failures live in the results.
	_ = group.Wait()

	// Completion order is unordered; hand back decomposition order.
	sort.SliceStable(results, func(a, b int) bool {
		return results[a].SubQuestion.Index < results[b].SubQuestion.Index
	})
	return results
}

func (d *Dispatcher) runOne(ctx context.Context, sub model.SubQuestion, q tool.Query, onToolStart func(string)) (result model.ToolResult) {
	start := time.Now()

	// A panicking tool must not take down its siblings.
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("tool panicked",
				zap.String("tool", sub.ToolName),
				zap.Any("panic", r),
			)
			result = model.FailedResult(sub, fmt.Sprintf("internal tool failure: %v", r), time.Since(start))
		}
	}()

	t, ok := d.registry.Get(sub.ToolName)
	if !ok {
		return model.FailedResult(sub, fmt.Sprintf("no tool registered as %q", sub.ToolName), time.Since(start))
	}

	if onToolStart != nil {
		onToolStart(sub.ToolName)
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if d.budget > 0 {
		callCtx, cancel = context.WithTimeout(ctx, d.budget)
		defer cancel()
	}

	result = t.Answer(callCtx, sub, q)
	if !result.Success && callCtx.Err() == context.DeadlineExceeded {
		result.Error = fmt.Sprintf("tool timed out after %s", d.budget)
	}

	zap.L().Debug("tool finished",
		zap.String("tool", sub.ToolName),
		zap.Int("index", sub.Index),
		zap.Bool("success", result.Success),
		zap.Duration("latency", result.Latency),
	)
	return result
}
