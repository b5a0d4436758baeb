package rag

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"pdfchat/internal/contextutil"
	"pdfchat/internal/storage"
)

const (
	// DefaultTopK is the number of chunks retrieved per question when the
	// caller does not ask for a specific count.
	DefaultTopK = 5

	summaryChunkCap = 20
	mindMapChunkCap = 15
)

// QueryEmbedder embeds a single question for retrieval.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Searcher returns the ids of the k chunks nearest to the query vector,
// restricted to the given user's index.
type Searcher interface {
	Search(ctx context.Context, userID int64, query []float32, k int) ([]string, error)
}

// AskParams carries one question together with its optional retrieval
// controls. Only Question is required.
type AskParams struct {
	Question string
	// SessionID ties the exchange to a chat session. Zero means no
	// session: the answer is returned but never recorded.
	SessionID int64
	// DocumentIDs restricts retrieval to these documents. When empty,
	// the session's stored scope applies, if any.
	DocumentIDs []int64
	// TopK overrides the engine's retrieval depth when positive.
	TopK int
}

// scoredChunk pairs a hydrated chunk with its retrieval rank and the
// filename of its document, for context assembly.
type scoredChunk struct {
	rank     int
	filename string
	chunk    *storage.ChunkRecord
}

// Engine orchestrates retrieval-augmented answers over a user's documents.
type Engine struct {
	embedder QueryEmbedder
	searcher Searcher
	gen      Generator
	chunks   storage.ChunkStore
	docs     storage.DocumentStore
	chats    storage.ChatStore
	topK     int
}

func NewEngine(
	embedder QueryEmbedder,
	searcher Searcher,
	gen Generator,
	chunks storage.ChunkStore,
	docs storage.DocumentStore,
	chats storage.ChatStore,
	topK int,
) *Engine {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Engine{
		embedder: embedder,
		searcher: searcher,
		gen:      gen,
		chunks:   chunks,
		docs:     docs,
		chats:    chats,
		topK:     topK,
	}
}

// Ask answers a question using only the asking user's chunks. Retrieval
// is narrowed to the requested documents, or to the session's stored scope
// when the request names none. The exchange is appended to the session
// transcript only when a session applies and generation succeeded; the
// no-hit and degraded answers are returned without being recorded.
func (e *Engine) Ask(ctx context.Context, userID int64, p AskParams) (*Answer, error) {
	question := strings.TrimSpace(p.Question)
	if question == "" {
		return nil, fmt.Errorf("question is empty")
	}

	var session *storage.ChatSession
	if p.SessionID != 0 {
		var err error
		session, err = e.chats.GetSessionForUser(ctx, p.SessionID, userID)
		if err != nil {
			return nil, fmt.Errorf("loading session %d: %w", p.SessionID, err)
		}
	}

	docScope := p.DocumentIDs
	if len(docScope) == 0 && session != nil {
		docScope = session.DocumentIDs
	}
	topK := p.TopK
	if topK <= 0 {
		topK = e.topK
	}

	retrieved, err := e.retrieve(ctx, userID, question, docScope, topK)
	if err != nil {
		return nil, err
	}
	if len(retrieved) == 0 {
		return &Answer{Text: noInfoAnswer, Sources: []Source{}}, nil
	}

	prompt := fmt.Sprintf(answerPromptFormat, buildContext(retrieved), question)
	text, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		// Retrieval worked; degrade the text rather than fail the ask.
		contextutil.LoggerFromContext(ctx).Error("generation failed",
			"session_id", p.SessionID, "error", err)
		return &Answer{Text: degradedAnswer, Sources: []Source{}}, nil
	}

	answer := &Answer{Text: text, Sources: make([]Source, 0, len(retrieved))}
	for _, sc := range retrieved {
		answer.Sources = append(answer.Sources, Source{
			Rank:       sc.rank,
			ChunkID:    sc.chunk.ID,
			DocumentID: sc.chunk.DocumentID,
			Filename:   sc.filename,
			Page:       sc.chunk.PageNumber,
		})
	}

	if session != nil {
		if err := e.appendExchange(ctx, session, userID, question, answer); err != nil {
			return nil, err
		}
	}
	return answer, nil
}

// retrieve embeds the question, searches the user's index and hydrates the
// hits in retrieval order, applying the document scope.
func (e *Engine) retrieve(ctx context.Context, userID int64, question string, docScope []int64, topK int) ([]scoredChunk, error) {
	vec, err := e.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	ids, err := e.searcher.Search(ctx, userID, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	hydrated, err := e.chunks.ListByIDsForUser(ctx, ids, userID)
	if err != nil {
		return nil, fmt.Errorf("loading chunks: %w", err)
	}
	byID := make(map[string]*storage.ChunkRecord, len(hydrated))
	for _, c := range hydrated {
		byID[c.ID] = c
	}

	filenames := make(map[int64]string)
	var out []scoredChunk
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			// Index ahead of the database; skip the stale hit.
			continue
		}
		if len(docScope) > 0 && !slices.Contains(docScope, c.DocumentID) {
			continue
		}
		name, err := e.filename(ctx, filenames, c.DocumentID, userID)
		if err != nil {
			return nil, err
		}
		out = append(out, scoredChunk{rank: len(out) + 1, filename: name, chunk: c})
	}
	return out, nil
}

func (e *Engine) filename(ctx context.Context, cache map[int64]string, documentID, userID int64) (string, error) {
	if name, ok := cache[documentID]; ok {
		return name, nil
	}
	doc, err := e.docs.GetByIDForUser(ctx, documentID, userID)
	if err != nil {
		return "", fmt.Errorf("loading document %d: %w", documentID, err)
	}
	cache[documentID] = doc.OriginalFilename
	return doc.OriginalFilename, nil
}

func (e *Engine) appendExchange(ctx context.Context, session *storage.ChatSession, userID int64, question string, answer *Answer) error {
	chunkIDs := make([]string, len(answer.Sources))
	for i, s := range answer.Sources {
		chunkIDs[i] = s.ChunkID
	}

	if _, err := e.chats.InsertMessage(ctx, &storage.Message{
		SessionID: session.ID,
		UserID:    userID,
		Role:      "user",
		Content:   question,
	}); err != nil {
		return fmt.Errorf("recording question: %w", err)
	}
	if _, err := e.chats.InsertMessage(ctx, &storage.Message{
		SessionID: session.ID,
		UserID:    userID,
		Role:      "assistant",
		Content:   answer.Text,
		ChunkIDs:  chunkIDs,
	}); err != nil {
		return fmt.Errorf("recording answer: %w", err)
	}
	if err := e.chats.TouchSession(ctx, session.ID); err != nil {
		return fmt.Errorf("touching session %d: %w", session.ID, err)
	}
	return nil
}

// Summary generates a summary of one document from its leading chunks in
// document order. A document with no chunks yields ErrNotFound.
func (e *Engine) Summary(ctx context.Context, userID, documentID int64) (string, error) {
	doc, chunks, err := e.documentChunks(ctx, userID, documentID, summaryChunkCap)
	if err != nil {
		return "", err
	}

	prompt := fmt.Sprintf(summaryPromptFormat, doc.OriginalFilename, joinChunkText(chunks))
	text, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generating summary for document %d: %w", documentID, err)
	}
	return strings.TrimSpace(text), nil
}

// MindMap generates a JSON mind map of one document from its leading
// chunks in document order. A document with no chunks yields ErrNotFound.
func (e *Engine) MindMap(ctx context.Context, userID, documentID int64) (string, error) {
	doc, chunks, err := e.documentChunks(ctx, userID, documentID, mindMapChunkCap)
	if err != nil {
		return "", err
	}

	prompt := fmt.Sprintf(mindMapPromptFormat, doc.OriginalFilename, joinChunkText(chunks))
	text, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generating mind map for document %d: %w", documentID, err)
	}
	return stripCodeFence(text), nil
}

func (e *Engine) documentChunks(ctx context.Context, userID, documentID int64, limit int) (*storage.Document, []*storage.ChunkRecord, error) {
	doc, err := e.docs.GetByIDForUser(ctx, documentID, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading document %d: %w", documentID, err)
	}

	chunks, err := e.chunks.ListByDocument(ctx, documentID, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading chunks for document %d: %w", documentID, err)
	}
	if len(chunks) == 0 {
		return nil, nil, fmt.Errorf("document %d has no indexed text: %w", documentID, storage.ErrNotFound)
	}
	if len(chunks) > limit {
		chunks = chunks[:limit]
	}
	return doc, chunks, nil
}

func joinChunkText(chunks []*storage.ChunkRecord) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Text
	}
	return strings.Join(parts, "\n")
}
