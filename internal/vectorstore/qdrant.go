// Package vectorstore queries the pre-built document index in Qdrant.
// The index is populated out of band; this package only reads it.
package vectorstore

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/voltquery/voltquery/internal/model"
	"github.com/voltquery/voltquery/pkg/jina"
)

// Searcher is the retrieval surface tools depend on.
type Searcher interface {
	// Search embeds the query and returns up to topK documents matching
	// the exact-match payload filters, most similar first.
	Search(ctx context.Context, query string, filters map[string]string, topK int) ([]model.SourceDocument, error)
}

// Store implements Searcher against a Qdrant collection.
type Store struct {
	client     *qdrant.Client
	embedder   jina.Client
	collection string
}

// NewStore connects to Qdrant and wraps the named collection.
func NewStore(host string, port int, collection string, embedder jina.Client) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, eris.Wrap(err, "vectorstore: connect qdrant")
	}
	return &Store{
		client:     client,
		embedder:   embedder,
		collection: collection,
	}, nil
}

// NewStoreWithClient wraps an existing Qdrant client (for testing).
func NewStoreWithClient(client *qdrant.Client, collection string, embedder jina.Client) *Store {
	return &Store{
		client:     client,
		embedder:   embedder,
		collection: collection,
	}
}

func (s *Store) Search(ctx context.Context, query string, filters map[string]string, topK int) ([]model.SourceDocument, error) {
	if topK <= 0 {
		return nil, eris.Errorf("vectorstore: topK must be positive, got %d", topK)
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, eris.Wrap(err, "vectorstore: embed query")
	}
	vector := vectors[0]

	var must []*qdrant.Condition
	for key, value := range filters {
		if value == "" {
			continue
		}
		must = append(must, qdrant.NewMatch(key, value))
	}

	req := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(must) > 0 {
		req.Filter = &qdrant.Filter{Must: must}
	}

	points, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "vectorstore: query collection")
	}

	docs := make([]model.SourceDocument, 0, len(points))
	for _, pt := range points {
		docs = append(docs, fromScoredPoint(pt))
	}

	zap.L().Debug("vector search",
		zap.String("collection", s.collection),
		zap.Int("top_k", topK),
		zap.Int("hits", len(docs)),
	)
	return docs, nil
}

// fromScoredPoint flattens a Qdrant point into a SourceDocument. The
// "content" payload field carries the document text; everything else
// becomes metadata.
func fromScoredPoint(pt *qdrant.ScoredPoint) model.SourceDocument {
	doc := model.SourceDocument{
		Metadata: make(map[string]string, len(pt.Payload)),
		Score:    float64(pt.Score),
	}
	for key, value := range pt.Payload {
		text := payloadString(value)
		if key == "content" {
			doc.Content = text
			continue
		}
		doc.Metadata[key] = text
	}
	return doc
}

func payloadString(v *qdrant.Value) string {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return fmt.Sprintf("%d", kind.IntegerValue)
	case *qdrant.Value_DoubleValue:
		return fmt.Sprintf("%g", kind.DoubleValue)
	case *qdrant.Value_BoolValue:
		return fmt.Sprintf("%t", kind.BoolValue)
	default:
		return v.String()
	}
}
