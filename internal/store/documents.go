package store

import (
	"context"
	"time"
)

// Document is a row in the documents table (§3.5).
type Document struct {
	DocumentID string         `json:"document_id"`
	Title      string         `json:"title"`
	SourceType string         `json:"source_type"`
	SourceID   string         `json:"source_id"`
	SourceURI  string         `json:"source_uri,omitempty"`
	FilePath   string         `json:"file_path,omitempty"`
	DocMetadata map[string]any `json:"doc_metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Embedding is a row in document_embeddings (§3.5).
type Embedding struct {
	ID             int64         `json:"id"`
	DocumentID     string        `json:"document_id"`
	ChunkIndex     int           `json:"chunk_index"`
	EmbeddingType  EmbeddingType `json:"embedding_type"`
	EmbeddingModel string        `json:"embedding_model"`
	Vector         []float32     `json:"vector"`
	Content        string        `json:"content"`
}

// SearchHit is one result of a hybrid search, with the reciprocal-rank-fused
// score combining vector and keyword rank.
type SearchHit struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}

// DocumentStore persists documents and their embeddings, and performs the
// §3.5 hybrid (vector + keyword) search with reciprocal-rank fusion.
type DocumentStore interface {
	// InsertWithEmbeddings writes doc and its embeddings in one transaction,
	// as the final step of the §4.8 ingestion pipeline.
	InsertWithEmbeddings(ctx context.Context, doc *Document, embeddings []Embedding) error

	Get(ctx context.Context, documentID string) (*Document, error)

	// HybridSearch fuses a keyword search (tsvector) and a vector search
	// (delegated to an ingest.VectorStore by the caller — this method
	// performs the keyword half and RRF-merges with externally supplied
	// vector hits) using reciprocal rank fusion with the given constant k.
	HybridSearch(ctx context.Context, query string, vectorHits []SearchHit, k int, limit int) ([]SearchHit, error)
}
