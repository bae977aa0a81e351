package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/familyassistant/core/internal/store"
	"github.com/familyassistant/core/internal/tools"
)

// FetchProcessor turns extracted URLs into fetched content: text/markdown
// results are inlined directly as IndexableContent, matching §4.8's
// "text/markdown inlined" contract. Binary content (a non-text Content-
// Type) is out of scope for FetchForIndexing's markdown-extraction path —
// callers needing the "written to a temp file and referenced by path"
// half of §4.8's contract should route binary URLs to a separate
// processor; this one is for page-content indexing, the common case.
type FetchProcessor struct {
	fetcher *tools.WebFetchTool
}

func NewFetchProcessor(fetcher *tools.WebFetchTool) *FetchProcessor {
	return &FetchProcessor{fetcher: fetcher}
}

func (p *FetchProcessor) Name() string { return "fetch" }

func (p *FetchProcessor) Process(ctx context.Context, in ProcessorInput) ([]IndexableContent, error) {
	var items []IndexableContent
	for _, u := range in.URLs {
		content, err := p.fetcher.FetchForIndexing(ctx, u)
		if err != nil {
			slog.Warn("ingest: fetch processor failed for url", "url", u, "error", err)
			continue
		}
		items = append(items, IndexableContent{
			Content:         content,
			EmbeddingType:   store.EmbeddingContentChunk,
			SourceProcessor: p.Name(),
			MimeType:        "text/markdown",
			Ref:             u,
		})
	}
	if len(items) == 0 && len(in.URLs) > 0 {
		return nil, fmt.Errorf("all %d urls failed to fetch", len(in.URLs))
	}
	return items, nil
}

// TextProcessor passes raw pre-extracted text straight through as a
// single content_chunk item — the trivial case where a document's
// content arrives already as text (e.g. a user-pasted note) rather than
// needing extraction.
type TextProcessor struct{}

func NewTextProcessor() *TextProcessor { return &TextProcessor{} }

func (p *TextProcessor) Name() string { return "text" }

func (p *TextProcessor) Process(ctx context.Context, in ProcessorInput) ([]IndexableContent, error) {
	if in.Text == "" {
		return nil, nil
	}
	return []IndexableContent{{
		Content:         in.Text,
		EmbeddingType:   store.EmbeddingContentChunk,
		SourceProcessor: p.Name(),
		MimeType:        "text/plain",
	}}, nil
}
