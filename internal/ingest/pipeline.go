// Package ingest turns uploaded PDFs into indexed, retrievable chunks and
// tears them back down on delete.
package ingest

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"pdfchat/internal/chunker"
	"pdfchat/internal/contextutil"
	"pdfchat/internal/storage"
	"pdfchat/internal/vecindex"
)

const errNoExtractableText = "no extractable text"

// PageExtractor pulls per-page plain text out of a stored PDF file.
type PageExtractor interface {
	ExtractPages(path string) (map[int]string, error)
}

// Embedder converts chunk texts into vectors, all or nothing.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex is the slice of the index store the pipeline needs.
type VectorIndex interface {
	Add(ctx context.Context, userID int64, entries []vecindex.Entry) ([]int, error)
	Rebuild(ctx context.Context, userID int64, remaining []vecindex.ChunkText, embedder vecindex.Embedder) (map[string]int, error)
}

// Pipeline drives a document through extract, chunk, embed and index.
// Any failure parks the document in the failed status with a cause; a
// failed document holds no chunks visible to retrieval.
type Pipeline struct {
	docs      storage.DocumentStore
	chunks    storage.ChunkStore
	extractor PageExtractor
	chunker   *chunker.Chunker
	embedder  Embedder
	index     VectorIndex
}

func NewPipeline(
	docs storage.DocumentStore,
	chunks storage.ChunkStore,
	extractor PageExtractor,
	ch *chunker.Chunker,
	embedder Embedder,
	index VectorIndex,
) *Pipeline {
	return &Pipeline{
		docs:      docs,
		chunks:    chunks,
		extractor: extractor,
		chunker:   ch,
		embedder:  embedder,
		index:     index,
	}
}

// Process runs the full ingestion for one pending document.
func (p *Pipeline) Process(ctx context.Context, documentID int64) error {
	logger := contextutil.LoggerFromContext(ctx).With("document_id", documentID)

	doc, err := p.docs.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("loading document %d: %w", documentID, err)
	}

	if err := p.docs.SetStatus(ctx, doc.ID, storage.StatusProcessing); err != nil {
		return fmt.Errorf("marking document %d processing: %w", doc.ID, err)
	}

	pages, err := p.extractor.ExtractPages(doc.FilePath)
	if err != nil {
		return p.fail(ctx, doc.ID, fmt.Errorf("extracting text: %w", err))
	}

	drafts := p.chunker.Split(pages)
	if len(drafts) == 0 {
		return p.fail(ctx, doc.ID, fmt.Errorf("%s", errNoExtractableText))
	}

	records := make([]*storage.ChunkRecord, len(drafts))
	texts := make([]string, len(drafts))
	for i, d := range drafts {
		records[i] = &storage.ChunkRecord{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			UserID:     doc.UserID,
			ChunkIndex: d.Index,
			PageNumber: d.PageNumber,
			StartChar:  d.StartChar,
			EndChar:    d.EndChar,
			TokenCount: d.TokenEstimate,
			Text:       d.Text,
		}
		texts[i] = d.Text
	}
	if err := p.chunks.InsertBatch(ctx, records); err != nil {
		return p.fail(ctx, doc.ID, fmt.Errorf("storing chunks: %w", err))
	}

	vectors, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return p.fail(ctx, doc.ID, fmt.Errorf("embedding chunks: %w", err))
	}

	entries := make([]vecindex.Entry, len(records))
	for i, rec := range records {
		entries[i] = vecindex.Entry{ChunkID: rec.ID, Vector: vectors[i]}
	}
	slots, err := p.index.Add(ctx, doc.UserID, entries)
	if err != nil {
		return p.fail(ctx, doc.ID, fmt.Errorf("indexing vectors: %w", err))
	}

	assignments := make([]storage.SlotAssignment, len(records))
	for i, rec := range records {
		assignments[i] = storage.SlotAssignment{ChunkID: rec.ID, Slot: slots[i]}
	}
	if err := p.chunks.SetIndexSlots(ctx, assignments); err != nil {
		return p.fail(ctx, doc.ID, fmt.Errorf("recording index slots: %w", err))
	}

	if err := p.docs.MarkCompleted(ctx, doc.ID, len(pages), len(records)); err != nil {
		return fmt.Errorf("marking document %d completed: %w", doc.ID, err)
	}

	logger.Info("document ingested", "pages", len(pages), "chunks", len(records))
	return nil
}

// fail parks the document in the failed status with the error as cause and
// returns the original error for the caller's log.
func (p *Pipeline) fail(ctx context.Context, documentID int64, cause error) error {
	if err := p.docs.MarkFailed(ctx, documentID, cause.Error()); err != nil {
		contextutil.LoggerFromContext(ctx).Error(
			"failed to record ingestion failure",
			"document_id", documentID, "error", err,
		)
	}
	return fmt.Errorf("ingesting document %d: %w", documentID, cause)
}

// DeleteDocument removes a document, its chunks and its vectors. The
// owning user's index is rebuilt from the surviving chunks; when none
// survive the index file is dropped entirely.
func (p *Pipeline) DeleteDocument(ctx context.Context, documentID, userID int64) error {
	doc, err := p.docs.GetByIDForUser(ctx, documentID, userID)
	if err != nil {
		return fmt.Errorf("loading document %d: %w", documentID, err)
	}

	remaining, err := p.chunks.ListByUserExcludingDocument(ctx, userID, documentID)
	if err != nil {
		return fmt.Errorf("listing surviving chunks: %w", err)
	}

	texts := make([]vecindex.ChunkText, len(remaining))
	for i, c := range remaining {
		texts[i] = vecindex.ChunkText{ChunkID: c.ID, Text: c.Text}
	}
	slots, err := p.index.Rebuild(ctx, userID, texts, p.embedder)
	if err != nil {
		return fmt.Errorf("rebuilding index for user %d: %w", userID, err)
	}

	if len(remaining) > 0 {
		assignments := make([]storage.SlotAssignment, 0, len(remaining))
		for _, c := range remaining {
			slot, ok := slots[c.ID]
			if !ok {
				return fmt.Errorf("rebuild returned no slot for chunk %s", c.ID)
			}
			assignments = append(assignments, storage.SlotAssignment{ChunkID: c.ID, Slot: slot})
		}
		if err := p.chunks.SetIndexSlots(ctx, assignments); err != nil {
			return fmt.Errorf("recording rebuilt slots: %w", err)
		}
	}

	if err := p.docs.Delete(ctx, documentID, userID); err != nil {
		return fmt.Errorf("deleting document %d: %w", documentID, err)
	}

	if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
		contextutil.LoggerFromContext(ctx).Warn(
			"failed to remove stored file",
			"document_id", documentID, "path", doc.FilePath, "error", err,
		)
	}
	return nil
}
