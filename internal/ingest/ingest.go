// Package ingest implements the §4.8 document ingestion pipeline: a
// chain of processors that turn a document's raw inputs into
// IndexableContent items, an embedding step, and a final transactional
// write via store.DocumentStore.InsertWithEmbeddings. Grounded on
// internal/tools/web_fetch.go for the fetch-then-convert shape
// (generalized here into a processor interface rather than a single
// tool's Execute method) and internal/store/documents.go for the
// persisted shape the pipeline must produce.
package ingest

import (
	"context"
	"fmt"

	"github.com/familyassistant/core/internal/store"
)

// IndexableContent is one unit of content a processor emits: ready to be
// chunked, embedded, and written as an Embedding row alongside its parent
// Document.
type IndexableContent struct {
	Content         string
	EmbeddingType   store.EmbeddingType
	SourceProcessor string
	MimeType        string
	Ref             string // optional: a URL, file path, or other pointer the content came from
	Metadata        map[string]any
}

// Processor turns a document's raw input into zero or more
// IndexableContent items. Implementations are synchronous — the pipeline
// runs entirely within the indexing task, per §4.8's "pipeline is
// synchronous within the indexing task" contract.
type Processor interface {
	Name() string
	Process(ctx context.Context, in ProcessorInput) ([]IndexableContent, error)
}

// ProcessorInput carries whatever a processor needs: extracted URLs for
// the fetch processor, raw text for a chunking processor, etc. Processors
// that don't need a field simply ignore it.
type ProcessorInput struct {
	Text string
	URLs []string
}

// EmbeddingGenerator produces a vector for a chunk of text, implemented
// by whichever provider adapter exposes embeddings (§6.4's
// embedding_generator injectable).
type EmbeddingGenerator interface {
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// VectorStore is the external index a hybrid search query's vector half
// is delegated to (store.DocumentStore.HybridSearch accepts externally
// supplied vector hits rather than owning vector search itself).
type VectorStore interface {
	Upsert(ctx context.Context, documentID string, chunkIndex int, vector []float32, payload map[string]any) error
	Search(ctx context.Context, vector []float32, limit int) ([]store.SearchHit, error)
	Delete(ctx context.Context, documentID string) error
}

// Pipeline runs a fixed processor chain, embeds the resulting chunks, and
// writes the document and its embeddings in one transaction.
type Pipeline struct {
	processors []Processor
	embeddings EmbeddingGenerator
	model      string
	docs       store.DocumentStore
	vectors    VectorStore // optional: nil disables vector-store mirroring
}

func NewPipeline(processors []Processor, embeddings EmbeddingGenerator, model string, docs store.DocumentStore, vectors VectorStore) *Pipeline {
	return &Pipeline{processors: processors, embeddings: embeddings, model: model, docs: docs, vectors: vectors}
}

// Run executes every processor against in, embeds each resulting chunk,
// and persists doc plus its embeddings. doc.DocumentID must already be
// set by the caller (store.NewID()).
func (p *Pipeline) Run(ctx context.Context, doc *store.Document, in ProcessorInput) error {
	var items []IndexableContent
	for _, proc := range p.processors {
		out, err := proc.Process(ctx, in)
		if err != nil {
			return fmt.Errorf("processor %q: %w", proc.Name(), err)
		}
		items = append(items, out...)
	}

	if len(items) == 0 {
		return p.docs.InsertWithEmbeddings(ctx, doc, nil)
	}

	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Content
	}
	vectors, err := p.embeddings.Embed(ctx, p.model, texts)
	if err != nil {
		return fmt.Errorf("embed %d chunks: %w", len(items), err)
	}
	if len(vectors) != len(items) {
		return fmt.Errorf("embedding generator returned %d vectors for %d chunks", len(vectors), len(items))
	}

	rows := make([]store.Embedding, len(items))
	for i, it := range items {
		rows[i] = store.Embedding{
			DocumentID:     doc.DocumentID,
			ChunkIndex:     i,
			EmbeddingType:  it.EmbeddingType,
			EmbeddingModel: p.model,
			Vector:         vectors[i],
			Content:        it.Content,
		}
	}

	if err := p.docs.InsertWithEmbeddings(ctx, doc, rows); err != nil {
		return fmt.Errorf("insert document with embeddings: %w", err)
	}

	if p.vectors != nil {
		for i, row := range rows {
			payload := map[string]any{"document_id": doc.DocumentID, "embedding_type": string(row.EmbeddingType)}
			if err := p.vectors.Upsert(ctx, doc.DocumentID, i, row.Vector, payload); err != nil {
				return fmt.Errorf("vector store upsert chunk %d: %w", i, err)
			}
		}
	}

	return nil
}
