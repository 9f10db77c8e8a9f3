package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/voltquery/voltquery/internal/llm"
	"github.com/voltquery/voltquery/internal/model"
	"github.com/voltquery/voltquery/internal/tool"
)

const decomposeSystem = `Given a user question and tools, output relevant sub-questions in JSON format.

RULES:
1. Create NEW sub-questions based on the user's question
2. Do NOT copy tool descriptions
3. Output format: {"items": [{"sub_question": "...", "tool_name": "..."}]}
4. IMPORTANT: If the year is 2026 and the question involves residential solar financing,
   explicitly compare the 0% purchase credit vs the 30% lease credit for homeowners.

TAX CREDIT CONTEXT (2026 OBBBA):
- Residential Purchase: 0% federal tax credit (expired in 2025)
- Residential Lease: 30% federal tax credit (still eligible)
- Commercial: 30% if construction starts before July 4, 2026

EXAMPLES:

Q: "What are the nearest DC fast charging stations and electricity cost?"
A: {"items": [{"sub_question": "Where are the nearest DC fast charging stations?", "tool_name": "transportation_tool"}, {"sub_question": "What is the electricity cost per kWh?", "tool_name": "utility_tool"}]}

Q: "What's the ROI for solar in zip 80202 in 2026?"
A: {"items": [
    {"sub_question": "What is optimal solar/storage size and NPV for zip 80202 with purchase financing (0% ITC)?", "tool_name": "optimization_tool"},
    {"sub_question": "What is optimal solar/storage size and NPV for zip 80202 with lease financing (30% ITC)?", "tool_name": "optimization_tool"}
]}

Q: "How do I lower my electricity bill?"
A: {"items": [
    {"sub_question": "What are current electricity rates?", "tool_name": "utility_tool"},
    {"sub_question": "What are building energy efficiency standards and measures to reduce energy consumption?", "tool_name": "buildings_tool"},
    {"sub_question": "What is solar production potential to offset electricity costs?", "tool_name": "solar_production_tool"}
]}

CRITICAL RULE FOR 2026 SOLAR ROI QUESTIONS:
- If the question asks about ROI, NPV, payback, or buying/leasing solar for a home in 2026,
  generate exactly TWO optimization_tool sub-questions: one mentioning "purchase" and "0% ITC",
  one mentioning "lease" and "30% ITC".

Respond with ONLY the JSON object.`

// Decomposer turns one question into sub-questions via the completion
// model, tolerating malformed output.
type Decomposer struct {
	completer llm.Completer
	catalog   string
	fallback  string
}

// NewDecomposer builds a decomposer advertising the registry's catalog.
func NewDecomposer(completer llm.Completer, registry *tool.Registry) *Decomposer {
	return &Decomposer{
		completer: completer,
		catalog:   registry.Catalog(),
		fallback:  tool.FallbackName,
	}
}

// Decompose produces the ordered sub-question list for a question. It
// never fails: irrecoverable model output degrades to a single
// sub-question carrying the whole question to the fallback tool.
func (d *Decomposer) Decompose(ctx context.Context, question, locationHint string) []model.SubQuestion {
	prompt := fmt.Sprintf("<Tools>\n%s</Tools>\n\n<User Question>\n%s\n", d.catalog, question)
	if locationHint != "" {
		prompt += fmt.Sprintf("\n(Location context: %s)\n", locationHint)
	}

	out, err := d.completer.Complete(ctx, llm.Request{
		System: decomposeSystem,
		Prompt: prompt,
	})
	if err != nil {
		zap.L().Warn("decomposition completion failed, using fallback", zap.Error(err))
		return d.fallbackSubQuestions(question)
	}

	subs := parseSubQuestions(out)
	if len(subs) == 0 {
		zap.L().Warn("decomposition output unparseable, using fallback",
			zap.String("output", snippetStr(out, 300)),
		)
		return d.fallbackSubQuestions(question)
	}

	for i := range subs {
		subs[i].Index = i
	}
	return subs
}

func (d *Decomposer) fallbackSubQuestions(question string) []model.SubQuestion {
	return []model.SubQuestion{{Text: question, ToolName: d.fallback, Index: 0}}
}

type subQuestionItem struct {
	SubQuestion string `json:"sub_question"`
	ToolName    string `json:"tool_name"`
}

type itemsEnvelope struct {
	Items []subQuestionItem `json:"items"`
}

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// parseSubQuestions extracts sub-questions from model output, repairing
// progressively: fence strip, trailing-comma fix, balanced-array
// extraction, then truncated-prefix recovery. Returns nil when nothing
// valid survives.
func parseSubQuestions(out string) []model.SubQuestion {
	cleaned := llm.CleanJSON(out)

	candidates := []string{
		cleaned,
		trailingCommaRe.ReplaceAllString(cleaned, "$1"),
	}
	if arr := balancedArray(cleaned); arr != "" {
		candidates = append(candidates, arr, trailingCommaRe.ReplaceAllString(arr, "$1"))
	}
	if prefix := recoverTruncated(cleaned); prefix != "" {
		candidates = append(candidates, prefix)
	}

	for _, candidate := range candidates {
		if subs := decodeSubQuestions(candidate); len(subs) > 0 {
			return subs
		}
	}
	return nil
}

// decodeSubQuestions tries the three shapes the model produces: an items
// envelope, a bare array, and a single object.
func decodeSubQuestions(s string) []model.SubQuestion {
	var envelope itemsEnvelope
	if err := json.Unmarshal([]byte(s), &envelope); err == nil && len(envelope.Items) > 0 {
		return itemsToSubQuestions(envelope.Items)
	}

	var items []subQuestionItem
	if err := json.Unmarshal([]byte(s), &items); err == nil && len(items) > 0 {
		return itemsToSubQuestions(items)
	}

	var single subQuestionItem
	if err := json.Unmarshal([]byte(s), &single); err == nil {
		return itemsToSubQuestions([]subQuestionItem{single})
	}
	return nil
}

func itemsToSubQuestions(items []subQuestionItem) []model.SubQuestion {
	subs := make([]model.SubQuestion, 0, len(items))
	for _, item := range items {
		text := strings.TrimSpace(item.SubQuestion)
		name := strings.TrimSpace(item.ToolName)
		if text == "" || name == "" {
			continue
		}
		subs = append(subs, model.SubQuestion{Text: text, ToolName: name})
	}
	return subs
}

// balancedArray returns the first bracket-balanced array in s, honoring
// string literals, or "" when none closes.
func balancedArray(s string) string {
	start := strings.IndexByte(s, '[')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '[':
			depth++
		case c == ']':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// recoverTruncated salvages a cut-off items envelope or array by dropping
// the incomplete trailing object and re-closing the brackets.
func recoverTruncated(s string) string {
	last := strings.LastIndexByte(s, '}')
	if last < 0 {
		return ""
	}
	prefix := strings.TrimRight(s[:last+1], ", \n\t")

	switch {
	case strings.HasPrefix(prefix, "{") && strings.Contains(prefix, "["):
		// Items envelope: close the array and the envelope.
		if strings.HasSuffix(prefix, "}") && !strings.HasSuffix(prefix, "]}") {
			return prefix + "]}"
		}
	case strings.HasPrefix(prefix, "["):
		if !strings.HasSuffix(prefix, "]") {
			return prefix + "]"
		}
	}
	return ""
}

// TagScenarios pins the optimizer branch on sub-questions that the
// decomposer split into explicit purchase/lease pairs.
func TagScenarios(subs []model.SubQuestion) {
	for i := range subs {
		if subs[i].ToolName != tool.NameOptimization {
			continue
		}
		lower := strings.ToLower(subs[i].Text)
		switch {
		case strings.Contains(lower, "purchase") || strings.Contains(lower, "0% itc"):
			subs[i].Scenario = "purchase"
		case strings.Contains(lower, "lease") || strings.Contains(lower, "30% itc"):
			subs[i].Scenario = "lease"
		}
	}
}

func snippetStr(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
