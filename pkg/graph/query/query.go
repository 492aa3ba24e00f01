// Package query reconciles a logical search across the vector, graph, and
// relational stores. The three store searches fan out concurrently so query
// latency is bounded by the slowest store, not their sum; results are merged
// with first-writer-wins deduplication.
package query

import (
	"context"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/graphweave/graphweave/pkg/graph"
	"github.com/graphweave/graphweave/pkg/graph/metrics"
	"github.com/graphweave/graphweave/pkg/graph/storage"
)

const defaultLimit = 10

var (
	ErrVectorStoreRequired     = errors.New("vector store is required")
	ErrGraphStoreRequired      = errors.New("graph store is required")
	ErrRelationalStoreRequired = errors.New("relational store is required")
	ErrEmbedderRequired        = errors.New("embedder is required")
)

// Embedder is the slice of the extraction client the engine needs: turning
// query text into a vector.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) (graph.Embedding, error)
}

// Request describes one combined search.
type Request struct {
	QueryText  string
	EntityType graph.EntityType
	Filters    map[string]string
	Limit      int
}

// Engine fans a combined search out to the three stores and merges the
// results. Store adapters and the embedder are injected at construction.
type Engine struct {
	vectors    storage.VectorStore
	graphs     storage.GraphStore
	relational storage.RelationalStore
	embedder   Embedder
	logger     *logrus.Logger
}

// NewEngine builds a query engine over the given stores.
func NewEngine(vectors storage.VectorStore, graphs storage.GraphStore, relational storage.RelationalStore, embedder Embedder) (*Engine, error) {
	if vectors == nil {
		return nil, ErrVectorStoreRequired
	}
	if graphs == nil {
		return nil, ErrGraphStoreRequired
	}
	if relational == nil {
		return nil, ErrRelationalStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &Engine{
		vectors:    vectors,
		graphs:     graphs,
		relational: relational,
		embedder:   embedder,
		logger:     logger,
	}, nil
}

// CombinedSearch embeds the query text, searches all three stores
// concurrently, and merges the results. Semantic relevance is the primary
// signal, structured filters secondary corroboration, and graph-derived
// references a fallback expansion: semantic hits come first, then
// relational, then documents reachable only through graph entities. A
// document found by more than one store appears exactly once, at the
// position of its first discovery.
//
// A failing store contributes zero results; only a failing query embedding
// fails the whole search, since without it there is nothing to search by.
func (e *Engine) CombinedSearch(ctx context.Context, req Request) ([]graph.Document, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	embedding, err := e.embedder.GenerateEmbedding(ctx, req.QueryText)
	if err != nil {
		return nil, errors.Wrap(err, "failed to embed query")
	}

	var (
		wg            sync.WaitGroup
		semanticDocs  []graph.Document
		relationalOut []graph.Document
		graphHits     []storage.GraphHit
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		semanticDocs = e.searchSemantic(ctx, embedding.Vector, limit)
	}()
	go func() {
		defer wg.Done()
		relationalOut = e.searchStructured(ctx, req.Filters, limit)
	}()
	go func() {
		defer wg.Done()
		graphHits = e.searchGraph(ctx, req.EntityType, limit)
	}()
	wg.Wait()

	seen := mapset.NewSet[uuid.UUID]()
	combined := make([]graph.Document, 0, limit)

	for _, doc := range append(semanticDocs, relationalOut...) {
		if seen.Add(doc.ID) {
			combined = append(combined, doc)
		}
	}

	for _, hit := range graphHits {
		if hit.DocumentID == uuid.Nil || seen.Contains(hit.DocumentID) {
			continue
		}
		doc, err := e.relational.GetDocument(ctx, hit.DocumentID)
		if err != nil {
			e.logger.WithError(err).WithField("document_id", hit.DocumentID).Warn("Graph hit references unknown document")
			continue
		}
		seen.Add(doc.ID)
		combined = append(combined, doc)
	}

	if len(combined) > limit {
		combined = combined[:limit]
	}
	return combined, nil
}

// searchSemantic runs the vector similarity search and resolves each hit to
// its document through the relational store, preserving score order.
func (e *Engine) searchSemantic(ctx context.Context, vector []float32, limit int) []graph.Document {
	timer := prometheus.NewTimer(metrics.SearchFanout.WithLabelValues("vector"))
	defer timer.ObserveDuration()

	hits, err := e.vectors.Search(ctx, vector, limit)
	if err != nil {
		metrics.SearchStoreFailures.WithLabelValues("vector").Inc()
		e.logger.WithError(err).Warn("Vector search failed, contributing zero results")
		return nil
	}

	docs := make([]graph.Document, 0, len(hits))
	for _, hit := range hits {
		doc, err := e.relational.GetDocument(ctx, hit.DocumentID)
		if err != nil {
			e.logger.WithError(err).WithField("document_id", hit.DocumentID).Warn("Vector hit references unknown document")
			continue
		}
		docs = append(docs, doc)
	}
	return docs
}

func (e *Engine) searchStructured(ctx context.Context, filters map[string]string, limit int) []graph.Document {
	timer := prometheus.NewTimer(metrics.SearchFanout.WithLabelValues("relational"))
	defer timer.ObserveDuration()

	if len(filters) == 0 {
		return nil
	}

	docs, err := e.relational.Search(ctx, filters, limit)
	if err != nil {
		metrics.SearchStoreFailures.WithLabelValues("relational").Inc()
		e.logger.WithError(err).Warn("Relational search failed, contributing zero results")
		return nil
	}
	return docs
}

func (e *Engine) searchGraph(ctx context.Context, entityType graph.EntityType, limit int) []storage.GraphHit {
	timer := prometheus.NewTimer(metrics.SearchFanout.WithLabelValues("graph"))
	defer timer.ObserveDuration()

	hits, err := e.graphs.Search(ctx, storage.GraphFilter{EntityType: entityType, Limit: limit})
	if err != nil {
		metrics.SearchStoreFailures.WithLabelValues("graph").Inc()
		e.logger.WithError(err).Warn("Graph search failed, contributing zero results")
		return nil
	}
	return hits
}
