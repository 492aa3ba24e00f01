package graph

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EntityType classifies an extracted entity.
type EntityType string

const (
	EntityTypePerson       EntityType = "PERSON"
	EntityTypeOrganization EntityType = "ORGANIZATION"
	EntityTypeGeo          EntityType = "GEO"
	EntityTypeEvent        EntityType = "EVENT"
	EntityTypeConcept      EntityType = "CONCEPT"
)

// KnownEntityTypes lists the entity types the extraction prompt asks for.
var KnownEntityTypes = []EntityType{
	EntityTypePerson,
	EntityTypeOrganization,
	EntityTypeGeo,
	EntityTypeEvent,
	EntityTypeConcept,
}

// Document is the unit of ingestion. RawText and SourcePath are immutable
// after the text-extraction stage; only Status is mutated afterwards.
type Document struct {
	ID         uuid.UUID `json:"id"`
	RawText    string    `json:"raw_text"`
	SourcePath string    `json:"source_path"`
	Status     string    `json:"status"`
}

// Entity represents a node extracted from a document. Name is always
// upper-case; the extraction client coerces it before the entity is handed
// to storage.
type Entity struct {
	Name        string     `json:"name"`
	Type        EntityType `json:"type"`
	Description string     `json:"description"`
}

// Relationship is a directed edge between two entities by name.
// Strength must be an integer in [1,10]; out-of-range values are a
// validation failure, never clamped.
type Relationship struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	Description string `json:"relationship"`
	Strength    int    `json:"relationship_strength"`
}

// Embedding is a dense vector owned by a document or one of its chunks.
type Embedding struct {
	OwnerID uuid.UUID `json:"owner_id"`
	Vector  []float32 `json:"vector"`
	Dim     int       `json:"dim"`
}

// IsZero reports whether the embedding carries no vector, which is how a
// failed item in a batch is represented.
func (e Embedding) IsZero() bool {
	return len(e.Vector) == 0
}

// RunState tracks a pipeline run through its lifecycle.
type RunState string

const (
	RunStatePending   RunState = "PENDING"
	RunStateRunning   RunState = "RUNNING"
	RunStatePartial   RunState = "PARTIAL"
	RunStateCompleted RunState = "COMPLETED"
	RunStateFailed    RunState = "FAILED"
)

// Terminal reports whether the state admits no further transitions.
func (s RunState) Terminal() bool {
	return s == RunStatePartial || s == RunStateCompleted || s == RunStateFailed
}

// Stage names one ordered step of a pipeline run.
type Stage string

const (
	StageTextExtraction Stage = "text_extraction"
	StageKnowledgeGraph Stage = "knowledge_graph"
	StageEmbedding      Stage = "embedding"
	StagePersistence    Stage = "persistence"
)

// StageError records a single stage failure. The list on a PipelineRun is
// append-only and owned exclusively by the orchestrator.
type StageError struct {
	Stage       Stage  `json:"stage"`
	Message     string `json:"message"`
	RetriesUsed int    `json:"retries_used"`
}

// PipelineRun is the per-document run record. It is created at submission
// and mutated only by the orchestrator until it reaches a terminal state.
type PipelineRun struct {
	RunID       uuid.UUID    `json:"run_id"`
	DocumentID  uuid.UUID    `json:"document_id"`
	SourcePath  string       `json:"source_path"`
	State       RunState     `json:"state"`
	StageErrors []StageError `json:"stage_errors,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	FinishedAt  time.Time    `json:"finished_at,omitempty"`
}

// Extractor is the narrow surface of the extraction client consumed by the
// orchestrator and the query engine. Implementations call a remote language
// model and own their retry policy.
type Extractor interface {
	ExtractEntities(ctx context.Context, text string) ([]Entity, error)
	ExtractRelationships(ctx context.Context, text string) ([]Relationship, error)
	GenerateEmbedding(ctx context.Context, text string) (Embedding, error)
	GenerateEmbeddingsBatch(ctx context.Context, texts []string) ([]Embedding, error)
}
