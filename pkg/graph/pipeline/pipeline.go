// Package pipeline sequences per-document ingestion: text extraction,
// knowledge-graph extraction, embedding generation, and persistence across
// the three stores. Stages run strictly in order within one run; different
// documents run in parallel on a worker pool, and one document's failure
// never touches another's run.
package pipeline

import (
	"context"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/graphweave/graphweave/pkg/graph"
	"github.com/graphweave/graphweave/pkg/graph/extraction"
	"github.com/graphweave/graphweave/pkg/graph/metrics"
	"github.com/graphweave/graphweave/pkg/graph/processors"
	"github.com/graphweave/graphweave/pkg/graph/storage"
)

const (
	statusProcessed = "processed"
	statusIngested  = "ingested"
)

// Orchestrator owns the run-state machine. It receives its collaborators
// via the constructor; it is the only mutator of run records.
type Orchestrator struct {
	extractor  graph.Extractor
	vectors    storage.VectorStore
	graphs     storage.GraphStore
	relational storage.RelationalStore

	pool    *ants.Pool
	wg      sync.WaitGroup
	mutex   sync.RWMutex
	runs    map[uuid.UUID]*graph.PipelineRun
	chunker func(string) ([]string, error)
	logger  *logrus.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithPoolSize sets the worker pool size. Default is runtime.NumCPU()/2
// with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(o *Orchestrator) error {
		if size < 1 {
			size = 1
		}
		if o.pool != nil {
			o.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		o.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger. Default is a JSON-formatted logrus
// logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(o *Orchestrator) error {
		if logger != nil {
			o.logger = logger
		}
		return nil
	}
}

// WithChunker overrides the token chunker used by the embedding stage.
func WithChunker(chunker func(string) ([]string, error)) Option {
	return func(o *Orchestrator) error {
		if chunker != nil {
			o.chunker = chunker
		}
		return nil
	}
}

// NewOrchestrator builds an orchestrator over the given extraction client
// and store adapters.
func NewOrchestrator(
	extractor graph.Extractor,
	vectors storage.VectorStore,
	graphs storage.GraphStore,
	relational storage.RelationalStore,
	opts ...Option,
) (*Orchestrator, error) {
	if extractor == nil {
		return nil, ErrExtractorRequired
	}
	if vectors == nil {
		return nil, ErrVectorStoreRequired
	}
	if graphs == nil {
		return nil, ErrGraphStoreRequired
	}
	if relational == nil {
		return nil, ErrRelationalStoreRequired
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		extractor:  extractor,
		vectors:    vectors,
		graphs:     graphs,
		relational: relational,
		pool:       pool,
		runs:       make(map[uuid.UUID]*graph.PipelineRun),
		chunker:    extraction.SplitIntoChunks,
		logger:     logger,
	}

	for _, opt := range opts {
		if optErr := opt(o); optErr != nil {
			o.Release()
			return nil, optErr
		}
	}

	return o, nil
}

// Submit registers a new run for the document at sourcePath and queues it
// on the worker pool. The returned run id can be polled with GetStatus.
func (o *Orchestrator) Submit(ctx context.Context, sourcePath string) (uuid.UUID, error) {
	run := &graph.PipelineRun{
		RunID:      uuid.New(),
		DocumentID: uuid.New(),
		SourcePath: sourcePath,
		State:      graph.RunStatePending,
		CreatedAt:  time.Now().UTC(),
	}

	o.mutex.Lock()
	o.runs[run.RunID] = run
	o.mutex.Unlock()
	metrics.QueueLength.Inc()

	o.wg.Add(1)
	err := o.pool.Submit(func() {
		defer o.wg.Done()
		o.execute(run.RunID)
	})
	if err != nil {
		o.wg.Done()
		metrics.QueueLength.Dec()
		o.mutex.Lock()
		delete(o.runs, run.RunID)
		o.mutex.Unlock()
		return uuid.Nil, err
	}

	return run.RunID, nil
}

// GetStatus returns a copy of the run record. The copy is safe to retain;
// the orchestrator keeps mutating its own record until the run is terminal.
func (o *Orchestrator) GetStatus(runID uuid.UUID) (*graph.PipelineRun, error) {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	run, exists := o.runs[runID]
	if !exists {
		return nil, graph.ErrRunNotFound
	}

	snapshot := *run
	snapshot.StageErrors = append([]graph.StageError(nil), run.StageErrors...)
	return &snapshot, nil
}

// Wait blocks until every submitted run has reached a terminal state.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Release shuts down the worker pool. The orchestrator must not be used
// afterwards.
func (o *Orchestrator) Release() {
	if o.pool != nil {
		o.pool.Release()
	}
}

// execute drives one run through the four stages. A run abandoned by its
// caller still continues to a terminal state, so a background context is
// used rather than a caller-scoped one.
func (o *Orchestrator) execute(runID uuid.UUID) {
	ctx := context.Background()
	run := o.mustRun(runID)

	logger := o.logger.WithFields(logrus.Fields{
		"run_id": run.RunID,
		"doc_id": run.DocumentID,
	})
	logger.Info("Pipeline run started")
	o.setState(runID, graph.RunStateRunning)

	// Stage 1: text extraction. Unreadable or empty source is fatal.
	text, err := o.extractText(ctx, run.SourcePath)
	if err != nil {
		o.appendStageError(runID, graph.StageError{
			Stage:   graph.StageTextExtraction,
			Message: err.Error(),
		})
		o.finish(runID, graph.RunStateFailed)
		logger.WithError(err).Error("Pipeline run failed at text extraction")
		return
	}

	doc := graph.Document{
		ID:         run.DocumentID,
		RawText:    text,
		SourcePath: run.SourcePath,
		Status:     statusProcessed,
	}

	// Stage 2: knowledge-graph extraction. Degrades to empty sets.
	entities, relationships := o.extractKnowledge(ctx, runID, logger, text)

	// Stage 3: embedding generation. Degrades to zero embeddings.
	embeddings := o.generateEmbeddings(ctx, runID, logger, doc)

	// Stage 4: persistence. Three independent writes, no rollback.
	o.persist(ctx, runID, logger, doc, entities, relationships, embeddings)

	final := graph.RunStateCompleted
	if len(o.mustRun(runID).StageErrors) > 0 {
		final = graph.RunStatePartial
	}
	o.finish(runID, final)
	logger.WithField("state", final).Info("Pipeline run finished")
}

func (o *Orchestrator) extractText(ctx context.Context, sourcePath string) (string, error) {
	timer := prometheus.NewTimer(metrics.StageDuration.WithLabelValues(string(graph.StageTextExtraction)))
	defer timer.ObserveDuration()

	reader, err := processors.ForPath(sourcePath)
	if err != nil {
		return "", err
	}

	content, err := os.ReadFile(sourcePath)
	if err != nil {
		return "", err
	}

	text, err := reader.Extract(ctx, content)
	if err != nil {
		return "", err
	}
	if len(text) == 0 {
		return "", graph.ErrInvalidInput
	}
	return text, nil
}

// extractKnowledge runs entity and relationship extraction. A stage that
// errors, or that yields nothing at all (the model returned unparsable
// text), records a StageError and lets downstream stages proceed with what
// is available.
func (o *Orchestrator) extractKnowledge(ctx context.Context, runID uuid.UUID, logger *logrus.Entry, text string) ([]graph.Entity, []graph.Relationship) {
	timer := prometheus.NewTimer(metrics.StageDuration.WithLabelValues(string(graph.StageKnowledgeGraph)))
	defer timer.ObserveDuration()

	entities, entErr := o.extractor.ExtractEntities(ctx, text)
	relationships, relErr := o.extractor.ExtractRelationships(ctx, text)

	if entErr != nil {
		o.appendStageError(runID, graph.StageError{
			Stage:       graph.StageKnowledgeGraph,
			Message:     entErr.Error(),
			RetriesUsed: retriesUsed(entErr),
		})
		logger.WithError(entErr).Warn("Entity extraction failed")
	}
	if relErr != nil {
		o.appendStageError(runID, graph.StageError{
			Stage:       graph.StageKnowledgeGraph,
			Message:     relErr.Error(),
			RetriesUsed: retriesUsed(relErr),
		})
		logger.WithError(relErr).Warn("Relationship extraction failed")
	}
	if entErr == nil && relErr == nil && len(entities) == 0 && len(relationships) == 0 {
		o.appendStageError(runID, graph.StageError{
			Stage:   graph.StageKnowledgeGraph,
			Message: "knowledge graph extraction returned no results",
		})
		logger.Warn("Knowledge graph extraction returned no results")
	}

	return entities, relationships
}

// generateEmbeddings produces the document-level embedding plus one per
// token chunk. Chunk embeddings are best effort; a failed document-level
// embedding records a StageError.
func (o *Orchestrator) generateEmbeddings(ctx context.Context, runID uuid.UUID, logger *logrus.Entry, doc graph.Document) []graph.Embedding {
	timer := prometheus.NewTimer(metrics.StageDuration.WithLabelValues(string(graph.StageEmbedding)))
	defer timer.ObserveDuration()

	var embeddings []graph.Embedding

	docEmbedding, err := o.extractor.GenerateEmbedding(ctx, doc.RawText)
	if err != nil {
		o.appendStageError(runID, graph.StageError{
			Stage:       graph.StageEmbedding,
			Message:     err.Error(),
			RetriesUsed: retriesUsed(err),
		})
		logger.WithError(err).Warn("Document embedding failed")
	} else {
		docEmbedding.OwnerID = doc.ID
		embeddings = append(embeddings, docEmbedding)
	}

	chunks, err := o.chunker(doc.RawText)
	if err != nil {
		logger.WithError(err).Warn("Chunking failed, skipping chunk embeddings")
		return embeddings
	}
	if len(chunks) <= 1 {
		// The document-level embedding already covers a single chunk.
		return embeddings
	}

	chunkEmbeddings, _ := o.extractor.GenerateEmbeddingsBatch(ctx, chunks)
	for i, embedding := range chunkEmbeddings {
		if embedding.IsZero() {
			continue
		}
		embedding.OwnerID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(doc.SourcePath+"#"+strconv.Itoa(i)))
		embeddings = append(embeddings, embedding)
	}

	return embeddings
}

// persist writes the document, its knowledge, and its embeddings to the
// three stores. Each write failure is recorded and the remaining writes
// still run; nothing is rolled back.
func (o *Orchestrator) persist(ctx context.Context, runID uuid.UUID, logger *logrus.Entry, doc graph.Document, entities []graph.Entity, relationships []graph.Relationship, embeddings []graph.Embedding) {
	timer := prometheus.NewTimer(metrics.StageDuration.WithLabelValues(string(graph.StagePersistence)))
	defer timer.ObserveDuration()

	relationalOK := true
	if err := o.relational.PutDocument(ctx, doc); err != nil {
		relationalOK = false
		o.appendStageError(runID, graph.StageError{
			Stage:   graph.StagePersistence,
			Message: err.Error(),
		})
		logger.WithError(err).Error("Relational write failed")
	}

	if len(entities) > 0 || len(relationships) > 0 {
		if err := o.graphs.PutKnowledge(ctx, doc.ID, entities, relationships); err != nil {
			o.appendStageError(runID, graph.StageError{
				Stage:   graph.StagePersistence,
				Message: err.Error(),
			})
			logger.WithError(err).Error("Graph write failed")
		}
	}

	for _, embedding := range embeddings {
		err := o.vectors.PutEmbedding(ctx, doc.ID, embedding, map[string]any{
			"source_path": doc.SourcePath,
		})
		if err != nil {
			o.appendStageError(runID, graph.StageError{
				Stage:   graph.StagePersistence,
				Message: err.Error(),
			})
			logger.WithError(err).Error("Vector write failed")
			break
		}
	}

	if relationalOK {
		if err := o.relational.UpdateStatus(ctx, doc.ID, statusIngested); err != nil {
			logger.WithError(err).Warn("Status update failed")
		}
	}
}

func (o *Orchestrator) mustRun(runID uuid.UUID) *graph.PipelineRun {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return o.runs[runID]
}

func (o *Orchestrator) setState(runID uuid.UUID, state graph.RunState) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	if run, exists := o.runs[runID]; exists && !run.State.Terminal() {
		run.State = state
	}
}

func (o *Orchestrator) appendStageError(runID uuid.UUID, stageErr graph.StageError) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	if run, exists := o.runs[runID]; exists {
		run.StageErrors = append(run.StageErrors, stageErr)
	}
	metrics.StageErrors.WithLabelValues(string(stageErr.Stage)).Inc()
}

func (o *Orchestrator) finish(runID uuid.UUID, state graph.RunState) {
	o.mutex.Lock()
	if run, exists := o.runs[runID]; exists && !run.State.Terminal() {
		run.State = state
		run.FinishedAt = time.Now().UTC()
	}
	o.mutex.Unlock()

	metrics.QueueLength.Dec()
	metrics.RunsTotal.WithLabelValues(string(state)).Inc()
}

func retriesUsed(err error) int {
	var te *graph.TransientError
	if errors.As(err, &te) && te.Attempts > 0 {
		return te.Attempts - 1
	}
	return 0
}
