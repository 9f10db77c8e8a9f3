package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voltquery/voltquery/internal/llm"
	"github.com/voltquery/voltquery/internal/model"
	"github.com/voltquery/voltquery/internal/vectorstore"
)

// RetrievalOptions tune the shared retrieval path.
type RetrievalOptions struct {
	// Rerank asks the completion model to pick the most relevant subset
	// of an over-fetched candidate list.
	Rerank bool

	// CandidateMultiplier scales top-k when reranking, so the reranker
	// has something to discard. Minimum 2 when reranking is on.
	CandidateMultiplier int
}

func (o RetrievalOptions) multiplier() int {
	if o.CandidateMultiplier < 2 {
		return 2
	}
	return o.CandidateMultiplier
}

// retrievalTool answers sub-questions from the vector index, scoped to a
// single domain tag. The transportation, utility, and buildings tools are
// instances of it.
type retrievalTool struct {
	name        string
	description string
	domain      string

	search    vectorstore.Searcher
	completer llm.Completer
	opts      RetrievalOptions
}

func (t *retrievalTool) Name() string        { return t.name }
func (t *retrievalTool) Description() string { return t.description }

func (t *retrievalTool) Answer(ctx context.Context, sub model.SubQuestion, q Query) model.ToolResult {
	start := time.Now()

	docs, err := t.retrieve(ctx, sub.Text, q)
	if err != nil {
		zap.L().Warn("retrieval failed",
			zap.String("tool", t.name),
			zap.Error(err),
		)
		return model.FailedResult(sub, fmt.Sprintf("retrieval failed: %v", err), time.Since(start))
	}

	return model.ToolResult{
		SubQuestion: sub,
		ToolName:    t.name,
		Answer:      digest(docs),
		Sources:     docs,
		Success:     true,
		Latency:     time.Since(start),
	}
}

// retrieve runs the domain-filtered vector search, over-fetching and
// reranking when configured.
func (t *retrievalTool) retrieve(ctx context.Context, query string, q Query) ([]model.SourceDocument, error) {
	topK := q.topK()
	fetchK := topK
	if t.opts.Rerank {
		fetchK = topK * t.opts.multiplier()
	}

	filters := map[string]string{"domain": t.domain}
	for k, v := range q.Filters {
		filters[k] = v
	}

	docs, err := t.search.Search(ctx, query, filters, fetchK)
	if err != nil {
		return nil, err
	}
	if !t.opts.Rerank || len(docs) <= topK {
		if len(docs) > topK {
			docs = docs[:topK]
		}
		return docs, nil
	}

	reranked, err := t.rerank(ctx, query, docs, topK)
	if err != nil {
		// Rerank is best effort; fall back to similarity order.
		zap.L().Debug("rerank failed, keeping similarity order",
			zap.String("tool", t.name),
			zap.Error(err),
		)
		return docs[:topK], nil
	}
	return reranked, nil
}

// rerank asks the completion model for the indices of the most relevant
// documents, best first.
func (t *retrievalTool) rerank(ctx context.Context, query string, docs []model.SourceDocument, topK int) ([]model.SourceDocument, error) {
	var b strings.Builder
	for i, doc := range docs {
		fmt.Fprintf(&b, "[%d] %s\n", i, snippet(doc.Content, 300))
	}

	out, err := t.completer.Complete(ctx, llm.Request{
		System: "You rank retrieved documents by relevance to a question. Respond with a JSON array of document indices, most relevant first. No other text.",
		Prompt: fmt.Sprintf("Question: %s\n\nDocuments:\n%sReturn the %d most relevant indices.", query, b.String(), topK),
	})
	if err != nil {
		return nil, err
	}

	var indices []int
	if err := json.Unmarshal([]byte(llm.CleanJSON(out)), &indices); err != nil {
		return nil, err
	}

	picked := make([]model.SourceDocument, 0, topK)
	seen := make(map[int]bool, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(docs) || seen[idx] {
			continue
		}
		seen[idx] = true
		picked = append(picked, docs[idx])
		if len(picked) == topK {
			break
		}
	}
	if len(picked) == 0 {
		return nil, fmt.Errorf("reranker picked no valid indices from %q", out)
	}
	return picked, nil
}

// digest joins retrieved content into the tool's raw answer. The final
// answer synthesis happens downstream; this text exists so a tool result
// is readable on its own.
func digest(docs []model.SourceDocument) string {
	if len(docs) == 0 {
		return "No matching documents found."
	}
	parts := make([]string, len(docs))
	for i, doc := range docs {
		parts[i] = snippet(doc.Content, 600)
	}
	return strings.Join(parts, "\n\n")
}

func snippet(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
