package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pdfchat/internal/chunker"
	"pdfchat/internal/storage"
	"pdfchat/internal/vecindex"
)

type fakeDocStore struct {
	storage.DocumentStore

	doc        *storage.Document
	statuses   []string
	failCause  string
	completed  bool
	pageCount  int
	chunkCount int
	deleted    bool
}

func (f *fakeDocStore) GetByID(_ context.Context, id int64) (*storage.Document, error) {
	if f.doc == nil || f.doc.ID != id {
		return nil, storage.ErrNotFound
	}
	return f.doc, nil
}

func (f *fakeDocStore) GetByIDForUser(_ context.Context, id, userID int64) (*storage.Document, error) {
	if f.doc == nil || f.doc.ID != id || f.doc.UserID != userID {
		return nil, storage.ErrNotFound
	}
	return f.doc, nil
}

func (f *fakeDocStore) SetStatus(_ context.Context, _ int64, status string) error {
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeDocStore) MarkFailed(_ context.Context, _ int64, cause string) error {
	f.statuses = append(f.statuses, storage.StatusFailed)
	f.failCause = cause
	return nil
}

func (f *fakeDocStore) MarkCompleted(_ context.Context, _ int64, pageCount, totalChunks int) error {
	f.statuses = append(f.statuses, storage.StatusCompleted)
	f.completed = true
	f.pageCount = pageCount
	f.chunkCount = totalChunks
	return nil
}

func (f *fakeDocStore) Delete(_ context.Context, _, _ int64) error {
	f.deleted = true
	return nil
}

type fakeChunkStore struct {
	storage.ChunkStore

	inserted    []*storage.ChunkRecord
	surviving   []*storage.ChunkRecord
	assignments []storage.SlotAssignment
}

func (f *fakeChunkStore) InsertBatch(_ context.Context, chunks []*storage.ChunkRecord) error {
	f.inserted = append(f.inserted, chunks...)
	return nil
}

func (f *fakeChunkStore) ListByUserExcludingDocument(_ context.Context, _, _ int64) ([]*storage.ChunkRecord, error) {
	return f.surviving, nil
}

func (f *fakeChunkStore) SetIndexSlots(_ context.Context, assignments []storage.SlotAssignment) error {
	f.assignments = append(f.assignments, assignments...)
	return nil
}

type fakeExtractor struct {
	pages map[int]string
	err   error
}

func (f *fakeExtractor) ExtractPages(string) (map[int]string, error) {
	return f.pages, f.err
}

type countingEmbedder struct {
	dim   int
	calls int
	err   error
}

func (f *countingEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dim)
		out[i][0] = float32(i)
	}
	return out, nil
}

type fakeIndex struct {
	added      []vecindex.Entry
	rebuilt    []vecindex.ChunkText
	rebuildErr error
}

func (f *fakeIndex) Add(_ context.Context, _ int64, entries []vecindex.Entry) ([]int, error) {
	first := len(f.added)
	f.added = append(f.added, entries...)
	slots := make([]int, len(entries))
	for i := range entries {
		slots[i] = first + i
	}
	return slots, nil
}

func (f *fakeIndex) Rebuild(ctx context.Context, _ int64, remaining []vecindex.ChunkText, embedder vecindex.Embedder) (map[string]int, error) {
	if f.rebuildErr != nil {
		return nil, f.rebuildErr
	}
	f.rebuilt = remaining
	slots := make(map[string]int, len(remaining))
	for i, c := range remaining {
		slots[c.ChunkID] = i
	}
	return slots, nil
}

func newTestPipeline(docs *fakeDocStore, chunks *fakeChunkStore, ex *fakeExtractor, emb *countingEmbedder, idx *fakeIndex) *Pipeline {
	return NewPipeline(docs, chunks, ex, chunker.New(800, 100), emb, idx)
}

func TestProcess_Success(t *testing.T) {
	docs := &fakeDocStore{doc: &storage.Document{ID: 1, UserID: 7, FilePath: "doc.pdf"}}
	chunks := &fakeChunkStore{}
	ex := &fakeExtractor{pages: map[int]string{
		1: strings.Repeat("First page sentence. ", 60),
		2: strings.Repeat("Second page sentence. ", 60),
	}}
	emb := &countingEmbedder{dim: 4}
	idx := &fakeIndex{}

	p := newTestPipeline(docs, chunks, ex, emb, idx)
	if err := p.Process(context.Background(), 1); err != nil {
		t.Fatalf("Process() unexpected error: %v", err)
	}

	if !docs.completed {
		t.Error("document not marked completed")
	}
	if docs.statuses[0] != storage.StatusProcessing {
		t.Errorf("first transition = %q, want processing", docs.statuses[0])
	}
	if docs.pageCount != 2 {
		t.Errorf("page count = %d, want 2", docs.pageCount)
	}
	if len(chunks.inserted) == 0 {
		t.Fatal("no chunks inserted")
	}
	if docs.chunkCount != len(chunks.inserted) {
		t.Errorf("completion chunk count = %d, want %d", docs.chunkCount, len(chunks.inserted))
	}
	if len(idx.added) != len(chunks.inserted) {
		t.Errorf("indexed %d vectors for %d chunks", len(idx.added), len(chunks.inserted))
	}
	if len(chunks.assignments) != len(chunks.inserted) {
		t.Errorf("recorded %d slot assignments for %d chunks", len(chunks.assignments), len(chunks.inserted))
	}
	for i, rec := range chunks.inserted {
		if rec.ID == "" {
			t.Errorf("chunk %d has no id", i)
		}
		if rec.UserID != 7 {
			t.Errorf("chunk %d owner = %d, want 7", i, rec.UserID)
		}
	}
}

func TestProcess_NoExtractableText(t *testing.T) {
	docs := &fakeDocStore{doc: &storage.Document{ID: 1, UserID: 7, FilePath: "doc.pdf"}}
	chunks := &fakeChunkStore{}
	ex := &fakeExtractor{pages: map[int]string{1: "   ", 2: ""}}
	emb := &countingEmbedder{dim: 4}
	idx := &fakeIndex{}

	p := newTestPipeline(docs, chunks, ex, emb, idx)
	if err := p.Process(context.Background(), 1); err == nil {
		t.Fatal("Process() expected error for empty document, got nil")
	}

	if got := docs.statuses[len(docs.statuses)-1]; got != storage.StatusFailed {
		t.Errorf("final status = %q, want failed", got)
	}
	if !strings.Contains(docs.failCause, "no extractable text") {
		t.Errorf("failure cause = %q, want mention of no extractable text", docs.failCause)
	}
	if emb.calls != 0 {
		t.Errorf("embedder called %d times for an empty document, want 0", emb.calls)
	}
	if len(idx.added) != 0 {
		t.Error("vectors indexed for an empty document")
	}
}

func TestProcess_EmbeddingFailure(t *testing.T) {
	docs := &fakeDocStore{doc: &storage.Document{ID: 1, UserID: 7, FilePath: "doc.pdf"}}
	chunks := &fakeChunkStore{}
	ex := &fakeExtractor{pages: map[int]string{1: strings.Repeat("Some sentence here. ", 50)}}
	emb := &countingEmbedder{dim: 4, err: errors.New("embedding service down")}
	idx := &fakeIndex{}

	p := newTestPipeline(docs, chunks, ex, emb, idx)
	if err := p.Process(context.Background(), 1); err == nil {
		t.Fatal("Process() expected error when embedding fails, got nil")
	}

	if got := docs.statuses[len(docs.statuses)-1]; got != storage.StatusFailed {
		t.Errorf("final status = %q, want failed", got)
	}
	if len(idx.added) != 0 {
		t.Error("vectors indexed despite embedding failure")
	}
}

func TestProcess_ExtractionFailure(t *testing.T) {
	docs := &fakeDocStore{doc: &storage.Document{ID: 1, UserID: 7, FilePath: "doc.pdf"}}
	ex := &fakeExtractor{err: errors.New("not a pdf")}
	emb := &countingEmbedder{dim: 4}

	p := newTestPipeline(docs, &fakeChunkStore{}, ex, emb, &fakeIndex{})
	if err := p.Process(context.Background(), 1); err == nil {
		t.Fatal("Process() expected error when extraction fails, got nil")
	}
	if docs.failCause == "" {
		t.Error("failure cause not recorded")
	}
	if emb.calls != 0 {
		t.Error("embedder called despite extraction failure")
	}
}

func TestDeleteDocument_RebuildsIndexAndRemovesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stored.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatal(err)
	}

	docs := &fakeDocStore{doc: &storage.Document{ID: 1, UserID: 7, FilePath: path}}
	chunks := &fakeChunkStore{surviving: []*storage.ChunkRecord{
		{ID: "other-a", Text: "survivor one"},
		{ID: "other-b", Text: "survivor two"},
	}}
	idx := &fakeIndex{}

	p := newTestPipeline(docs, chunks, &fakeExtractor{}, &countingEmbedder{dim: 4}, idx)
	if err := p.DeleteDocument(context.Background(), 1, 7); err != nil {
		t.Fatalf("DeleteDocument() unexpected error: %v", err)
	}

	if !docs.deleted {
		t.Error("document row not deleted")
	}
	if len(idx.rebuilt) != 2 {
		t.Errorf("rebuild saw %d surviving chunks, want 2", len(idx.rebuilt))
	}
	if len(chunks.assignments) != 2 {
		t.Errorf("recorded %d rebuilt slots, want 2", len(chunks.assignments))
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("stored file not removed")
	}
}

func TestDeleteDocument_RebuildFailureKeepsRow(t *testing.T) {
	docs := &fakeDocStore{doc: &storage.Document{ID: 1, UserID: 7, FilePath: "missing.pdf"}}
	chunks := &fakeChunkStore{surviving: []*storage.ChunkRecord{{ID: "a", Text: "t"}}}
	idx := &fakeIndex{rebuildErr: errors.New("embedding service down")}

	p := newTestPipeline(docs, chunks, &fakeExtractor{}, &countingEmbedder{dim: 4}, idx)
	if err := p.DeleteDocument(context.Background(), 1, 7); err == nil {
		t.Fatal("DeleteDocument() expected error when rebuild fails, got nil")
	}
	if docs.deleted {
		t.Error("document row deleted despite rebuild failure")
	}
}

func TestDeleteDocument_WrongUser(t *testing.T) {
	docs := &fakeDocStore{doc: &storage.Document{ID: 1, UserID: 7, FilePath: "x.pdf"}}

	p := newTestPipeline(docs, &fakeChunkStore{}, &fakeExtractor{}, &countingEmbedder{dim: 4}, &fakeIndex{})
	err := p.DeleteDocument(context.Background(), 1, 99)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("DeleteDocument() error = %v, want ErrNotFound for foreign document", err)
	}
}
