package engine

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/voltquery/voltquery/internal/llm"
	"github.com/voltquery/voltquery/internal/model"
)

const synthesizeSystem = `You are an energy infrastructure assistant. Write one clear answer to the user's question from the evidence blocks provided.

RULES:
- Use only the evidence provided. Cite concrete numbers from it.
- When a purchase scenario and a lease scenario are both present, state both net present values and explain that they differ because the purchase credit expired for residential systems while leased systems keep the full credit through the financing party.
- Never mention internal tools, providers, or failures.
- Be complete but not padded. Finish every sentence.`

const apologyAnswer = "I'm sorry, but I couldn't retrieve any data to answer your question right now. The data sources I rely on are currently unavailable. Please try again in a few minutes."

// Synthesizer combines tool results into one final answer.
type Synthesizer struct {
	completer llm.Completer
}

// NewSynthesizer builds a synthesizer over the completion model.
func NewSynthesizer(completer llm.Completer) *Synthesizer {
	return &Synthesizer{completer: completer}
}

// Synthesize builds the final answer. onDelta, when non-nil, receives
// answer text as it streams. Every tool failing produces an apology
// answer, not an error; only a completion failure is an error.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, results []model.ToolResult, onDelta func(string) error) (*model.FinalAnswer, error) {
	succeeded := make([]model.ToolResult, 0, len(results))
	for _, res := range results {
		if res.Success {
			succeeded = append(succeeded, res)
		}
	}

	answer := &model.FinalAnswer{
		Question:           question,
		Sources:            aggregateSources(succeeded),
		ToolsUsed:          toolsUsed(succeeded),
		ScenarioComparison: firstComparison(succeeded),
	}
	answer.NumSources = len(answer.Sources)

	if len(succeeded) == 0 {
		zap.L().Warn("all tools failed", zap.Int("attempted", len(results)))
		answer.Answer = apologyAnswer
		if onDelta != nil {
			if err := onDelta(apologyAnswer); err != nil {
				return nil, err
			}
		}
		return answer, nil
	}

	prompt := buildSynthesisPrompt(question, succeeded, answer.ScenarioComparison)

	var text string
	var err error
	if onDelta != nil {
		text, err = s.completer.CompleteStream(ctx, llm.Request{System: synthesizeSystem, Prompt: prompt}, onDelta)
	} else {
		text, err = s.completer.Complete(ctx, llm.Request{System: synthesizeSystem, Prompt: prompt})
	}
	if err != nil {
		return nil, err
	}

	answer.Answer = strings.TrimSpace(text)
	return answer, nil
}

func buildSynthesisPrompt(question string, succeeded []model.ToolResult, cmp *model.ScenarioComparison) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	for i, res := range succeeded {
		fmt.Fprintf(&b, "Evidence block %d (answering %q):\n%s\n\n", i+1, res.SubQuestion.Text, res.Answer)
	}
	if cmp != nil && cmp.Purchase != nil && cmp.Lease != nil {
		b.WriteString("The purchase and lease scenarios above must both be stated with their NPVs, and the policy reason for the difference explained.\n")
	}
	b.WriteString("Write the final answer.")
	return b.String()
}

func aggregateSources(results []model.ToolResult) []model.SourceDocument {
	var sources []model.SourceDocument
	for _, res := range results {
		sources = append(sources, res.Sources...)
	}
	if sources == nil {
		sources = []model.SourceDocument{}
	}
	return sources
}

// toolsUsed lists the distinct successful tools in result order.
func toolsUsed(results []model.ToolResult) []string {
	seen := make(map[string]bool, len(results))
	used := make([]string, 0, len(results))
	for _, res := range results {
		if !seen[res.ToolName] {
			seen[res.ToolName] = true
			used = append(used, res.ToolName)
		}
	}
	return used
}

// firstComparison surfaces the scenario comparison when an optimizer
// result carried one. Dual-branch dispatch produces two results pointing
// at respective single-branch comparisons; merge them.
func firstComparison(results []model.ToolResult) *model.ScenarioComparison {
	var merged *model.ScenarioComparison
	for _, res := range results {
		cmp := res.Comparison
		if cmp == nil {
			continue
		}
		if merged == nil {
			merged = &model.ScenarioComparison{}
		}
		if cmp.Purchase != nil && merged.Purchase == nil {
			merged.Purchase = cmp.Purchase
		}
		if cmp.Lease != nil && merged.Lease == nil {
			merged.Lease = cmp.Lease
		}
		if cmp.NPVDelta != nil && merged.NPVDelta == nil {
			merged.NPVDelta = cmp.NPVDelta
		}
	}
	if merged != nil && merged.NPVDelta == nil &&
		merged.Purchase != nil && merged.Lease != nil &&
		merged.Purchase.NetPresentValue != nil && merged.Lease.NetPresentValue != nil {
		delta := *merged.Lease.NetPresentValue - *merged.Purchase.NetPresentValue
		merged.NPVDelta = &delta
	}
	return merged
}
