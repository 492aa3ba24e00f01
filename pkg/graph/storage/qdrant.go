package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/qdrant/go-client/qdrant"

	"github.com/graphweave/graphweave/pkg/graph"
)

// QdrantConfig carries the connection settings for a Qdrant deployment.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dim        int
}

// QdrantVectorStore implements VectorStore on a Qdrant collection with
// cosine distance. Point ids are embedding owner UUIDs, so writes are
// idempotent upserts.
type QdrantVectorStore struct {
	client     *qdrant.Client
	collection string
}

var _ VectorStore = (*QdrantVectorStore)(nil)

// NewQdrantVectorStore connects to Qdrant and creates the collection if it
// does not exist yet.
func NewQdrantVectorStore(ctx context.Context, cfg QdrantConfig) (*QdrantVectorStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to Qdrant")
	}

	s := &QdrantVectorStore{client: client, collection: cfg.Collection}

	info, err := client.GetCollectionInfo(ctx, cfg.Collection)
	if err != nil || info == nil {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: cfg.Collection,
			VectorsConfig: &qdrant.VectorsConfig{
				Config: &qdrant.VectorsConfig_Params{
					Params: &qdrant.VectorParams{
						Size:     uint64(cfg.Dim),
						Distance: qdrant.Distance_Cosine,
					},
				},
			},
		})
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create collection %s", cfg.Collection)
		}
	}

	return s, nil
}

func (s *QdrantVectorStore) PutEmbedding(ctx context.Context, documentID uuid.UUID, embedding graph.Embedding, payload map[string]any) error {
	values := map[string]any{
		"document_id": documentID.String(),
	}
	for key, value := range payload {
		values[key] = value
	}

	waitUpsert := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &waitUpsert,
		Points: []*qdrant.PointStruct{
			{
				Id:      qdrant.NewIDUUID(embedding.OwnerID.String()),
				Vectors: qdrant.NewVectors(embedding.Vector...),
				Payload: qdrant.NewValueMap(values),
			},
		},
	})
	if err != nil {
		return &graph.StoreWriteError{Store: "vector", Err: err}
	}
	return nil
}

func (s *QdrantVectorStore) Search(ctx context.Context, vector []float32, limit int) ([]VectorHit, error) {
	queryLimit := uint64(limit)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &queryLimit,
		WithPayload: &qdrant.WithPayloadSelector{
			SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to search in Qdrant")
	}

	hits := make([]VectorHit, 0, len(points))
	for _, point := range points {
		docID, err := uuid.Parse(point.Payload["document_id"].GetStringValue())
		if err != nil {
			continue
		}
		hits = append(hits, VectorHit{DocumentID: docID, Score: point.Score})
	}
	return hits, nil
}
