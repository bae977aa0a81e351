package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/familyassistant/core/internal/store"
)

// QdrantConfig configures the Qdrant-backed VectorStore.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

// QdrantStore implements VectorStore against a Qdrant collection, mirroring
// every chunk store.DocumentStore.InsertWithEmbeddings already persisted in
// Postgres so HybridSearch's vector half can be served from Qdrant instead
// of a brute-force scan.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
}

func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		cfg.Collection = "documents"
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client for %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	return &QdrantStore{client: client, collection: cfg.Collection}, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context, dim int) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("check collection existence: %w", err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("create collection: %w", err)
	}
	return nil
}

// pointID turns a (documentID, chunkIndex) pair into a stable Qdrant point
// id. documentID is already a store.NewID() uuid; chunk_index is carried
// separately in the payload for Delete/Search to filter on, so the point id
// itself only needs to be unique per chunk.
func pointID(documentID string, chunkIndex int) string {
	return fmt.Sprintf("%s-%d", documentID, chunkIndex)
}

func (s *QdrantStore) Upsert(ctx context.Context, documentID string, chunkIndex int, vector []float32, payload map[string]any) error {
	if err := s.ensureCollection(ctx, len(vector)); err != nil {
		return err
	}

	qpayload := make(map[string]*qdrant.Value, len(payload)+2)
	for k, v := range payload {
		val, err := qdrant.NewValue(v)
		if err != nil {
			return fmt.Errorf("convert payload value %q: %w", k, err)
		}
		qpayload[k] = val
	}
	qpayload["document_id"], _ = qdrant.NewValue(documentID)
	qpayload["chunk_index"], _ = qdrant.NewValue(int64(chunkIndex))

	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(pointID(documentID, chunkIndex)),
		Vectors: qdrant.NewVectors(vector...),
		Payload: qpayload,
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("upsert point: %w", err)
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, vector []float32, limit int) ([]store.SearchHit, error) {
	pointsClient := s.client.GetPointsClient()
	result, err := pointsClient.Search(ctx, &qdrant.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("search points: %w", err)
	}

	hits := make([]store.SearchHit, 0, len(result.Result))
	for _, p := range result.Result {
		var documentID string
		var chunkIndex int
		if p.Payload != nil {
			if v, ok := p.Payload["document_id"]; ok {
				documentID = v.GetStringValue()
			}
			if v, ok := p.Payload["chunk_index"]; ok {
				chunkIndex = int(v.GetIntegerValue())
			}
		}
		hits = append(hits, store.SearchHit{
			DocumentID: documentID,
			ChunkIndex: chunkIndex,
			Score:      float64(p.Score),
		})
	}
	return hits, nil
}

func (s *QdrantStore) Delete(ctx context.Context, documentID string) error {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: "document_id",
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keyword{Keyword: documentID},
						},
					},
				},
			},
		},
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: filter},
		},
	})
	if err != nil {
		return fmt.Errorf("delete by document_id: %w", err)
	}
	return nil
}

func (s *QdrantStore) Close() error {
	return s.client.Close()
}

var _ VectorStore = (*QdrantStore)(nil)
