package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/familyassistant/core/internal/store"
)

type fakeEmbedder struct {
	dim    int
	calls  int
	lastIn []string
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	f.calls++
	f.lastIn = texts
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
	}
	return out, nil
}

type fakeDocStore struct {
	inserted    *store.Document
	embeddings  []store.Embedding
	insertErr   error
	insertCalls int
}

func (f *fakeDocStore) InsertWithEmbeddings(ctx context.Context, doc *store.Document, embeddings []store.Embedding) error {
	f.insertCalls++
	f.inserted = doc
	f.embeddings = embeddings
	return f.insertErr
}

func (f *fakeDocStore) Get(ctx context.Context, documentID string) (*store.Document, error) {
	return f.inserted, nil
}

func (f *fakeDocStore) HybridSearch(ctx context.Context, query string, vectorHits []store.SearchHit, k int, limit int) ([]store.SearchHit, error) {
	return nil, nil
}

type fakeProcessor struct {
	name  string
	items []IndexableContent
	err   error
}

func (p *fakeProcessor) Name() string { return p.name }

func (p *fakeProcessor) Process(ctx context.Context, in ProcessorInput) ([]IndexableContent, error) {
	return p.items, p.err
}

type fakeVectorStore struct {
	upserts []string
	err     error
}

func (f *fakeVectorStore) Upsert(ctx context.Context, documentID string, chunkIndex int, vector []float32, payload map[string]any) error {
	f.upserts = append(f.upserts, documentID)
	return f.err
}

func (f *fakeVectorStore) Search(ctx context.Context, vector []float32, limit int) ([]store.SearchHit, error) {
	return nil, nil
}

func (f *fakeVectorStore) Delete(ctx context.Context, documentID string) error { return nil }

func TestPipeline_Run_NoItems(t *testing.T) {
	docs := &fakeDocStore{}
	p := NewPipeline([]Processor{&fakeProcessor{name: "empty"}}, &fakeEmbedder{}, "test-model", docs, nil)

	doc := &store.Document{DocumentID: "doc-1"}
	if err := p.Run(context.Background(), doc, ProcessorInput{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if docs.insertCalls != 1 {
		t.Fatalf("expected 1 insert call, got %d", docs.insertCalls)
	}
	if docs.embeddings != nil {
		t.Errorf("expected nil embeddings when the processor chain yields no items, got %v", docs.embeddings)
	}
}

func TestPipeline_Run_EmbedsAndInserts(t *testing.T) {
	docs := &fakeDocStore{}
	embedder := &fakeEmbedder{dim: 4}
	proc := &fakeProcessor{name: "text", items: []IndexableContent{
		{Content: "chunk one", EmbeddingType: store.EmbeddingContentChunk},
		{Content: "chunk two", EmbeddingType: store.EmbeddingContentChunk},
	}}
	p := NewPipeline([]Processor{proc}, embedder, "test-model", docs, nil)

	doc := &store.Document{DocumentID: "doc-2"}
	if err := p.Run(context.Background(), doc, ProcessorInput{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if embedder.calls != 1 {
		t.Fatalf("expected 1 embed call, got %d", embedder.calls)
	}
	if len(embedder.lastIn) != 2 {
		t.Fatalf("expected 2 texts embedded, got %d", len(embedder.lastIn))
	}
	if len(docs.embeddings) != 2 {
		t.Fatalf("expected 2 embedding rows, got %d", len(docs.embeddings))
	}
	if docs.embeddings[0].ChunkIndex != 0 || docs.embeddings[1].ChunkIndex != 1 {
		t.Errorf("chunk indices not sequential: %+v", docs.embeddings)
	}
	if docs.embeddings[0].DocumentID != "doc-2" {
		t.Errorf("embedding row missing document id: %+v", docs.embeddings[0])
	}
}

func TestPipeline_Run_MirrorsToVectorStore(t *testing.T) {
	docs := &fakeDocStore{}
	vectors := &fakeVectorStore{}
	proc := &fakeProcessor{name: "text", items: []IndexableContent{{Content: "a chunk"}}}
	p := NewPipeline([]Processor{proc}, &fakeEmbedder{dim: 2}, "test-model", docs, vectors)

	doc := &store.Document{DocumentID: "doc-3"}
	if err := p.Run(context.Background(), doc, ProcessorInput{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(vectors.upserts) != 1 || vectors.upserts[0] != "doc-3" {
		t.Errorf("expected vector store upsert for doc-3, got %v", vectors.upserts)
	}
}

func TestPipeline_Run_ProcessorError(t *testing.T) {
	docs := &fakeDocStore{}
	boom := errors.New("boom")
	proc := &fakeProcessor{name: "broken", err: boom}
	p := NewPipeline([]Processor{proc}, &fakeEmbedder{}, "test-model", docs, nil)

	err := p.Run(context.Background(), &store.Document{DocumentID: "doc-4"}, ProcessorInput{})
	if err == nil {
		t.Fatal("expected error from failing processor")
	}
	if docs.insertCalls != 0 {
		t.Errorf("expected no insert when a processor fails, got %d calls", docs.insertCalls)
	}
}

func TestPipeline_Run_EmbeddingError(t *testing.T) {
	docs := &fakeDocStore{}
	proc := &fakeProcessor{name: "text", items: []IndexableContent{{Content: "x"}}}
	p := NewPipeline([]Processor{proc}, &fakeEmbedder{err: errors.New("embed down")}, "test-model", docs, nil)

	err := p.Run(context.Background(), &store.Document{DocumentID: "doc-5"}, ProcessorInput{})
	if err == nil {
		t.Fatal("expected error when embedding fails")
	}
}

func TestTextProcessor(t *testing.T) {
	p := NewTextProcessor()
	items, err := p.Process(context.Background(), ProcessorInput{Text: "hello world"})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(items) != 1 || items[0].Content != "hello world" {
		t.Fatalf("unexpected items: %+v", items)
	}

	empty, err := p.Process(context.Background(), ProcessorInput{})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no items for empty text, got %v", empty)
	}
}
