package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"pdfchat/internal/contextutil"
	"pdfchat/internal/llm"
	"pdfchat/internal/rag"
	"pdfchat/internal/storage"
)

// Answerer is the slice of the retrieval engine the chat handler needs.
type Answerer interface {
	Ask(ctx context.Context, userID int64, p rag.AskParams) (*rag.Answer, error)
	Summary(ctx context.Context, userID, documentID int64) (string, error)
	MindMap(ctx context.Context, userID, documentID int64) (string, error)
}

// ChatHandler handles chat sessions and question answering.
type ChatHandler struct {
	chats  storage.ChatStore
	docs   storage.DocumentStore
	engine Answerer
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(chats storage.ChatStore, docs storage.DocumentStore, engine Answerer) *ChatHandler {
	return &ChatHandler{chats: chats, docs: docs, engine: engine}
}

// CreateSessionRequest represents the session creation payload. An empty
// document list scopes the session to all of the user's documents.
type CreateSessionRequest struct {
	Title       string  `json:"title"`
	DocumentIDs []int64 `json:"document_ids,omitempty"`
}

// SessionResponse is the public view of a chat session.
type SessionResponse struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	DocumentIDs  []int64   `json:"document_ids,omitempty"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func sessionResponse(s *storage.ChatSession) SessionResponse {
	return SessionResponse{
		ID:           s.ID,
		Title:        s.Title,
		DocumentIDs:  s.DocumentIDs,
		MessageCount: s.MessageCount,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

// MessageResponse is one transcript entry.
type MessageResponse struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	ChunkIDs  []string  `json:"chunk_ids,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AskRequest represents the question payload. Everything except the
// question is optional: a session id ties the exchange to a transcript,
// document ids narrow retrieval and top_k overrides the retrieval depth.
type AskRequest struct {
	Question    string  `json:"question"`
	SessionID   int64   `json:"session_id,omitempty"`
	DocumentIDs []int64 `json:"document_ids,omitempty"`
	TopK        int     `json:"top_k,omitempty"`
}

// CreateSession opens a new chat session, optionally scoped to documents.
func (h *ChatHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)
	userID, ok := contextutil.UserIDFromContext(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Scoped sessions may only reference the caller's own documents.
	for _, docID := range req.DocumentIDs {
		if _, err := h.docs.GetByIDForUser(ctx, docID, userID); err != nil {
			writeStorageError(w, r, err, "Document not found")
			return
		}
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "New chat"
	}

	session := &storage.ChatSession{
		UserID:      userID,
		Title:       title,
		DocumentIDs: req.DocumentIDs,
		IsActive:    true,
	}
	id, err := h.chats.InsertSession(ctx, session)
	if err != nil {
		logger.ErrorContext(ctx, "failed to create session", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	session.ID = id

	writeJSON(w, http.StatusCreated, sessionResponse(session))
}

// ListSessions returns the caller's sessions, most recently active first.
func (h *ChatHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := contextutil.UserIDFromContext(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	sessions, err := h.chats.ListSessions(ctx, userID)
	if err != nil {
		writeStorageError(w, r, err, "Session not found")
		return
	}

	out := make([]SessionResponse, len(sessions))
	for i, s := range sessions {
		out[i] = sessionResponse(s)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetSession returns one session together with its transcript.
func (h *ChatHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := contextutil.UserIDFromContext(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	id, err := sessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session id")
		return
	}

	session, err := h.chats.GetSessionForUser(ctx, id, userID)
	if err != nil {
		writeStorageError(w, r, err, "Session not found")
		return
	}

	messages, err := h.chats.ListMessages(ctx, id)
	if err != nil {
		writeStorageError(w, r, err, "Session not found")
		return
	}

	msgs := make([]MessageResponse, len(messages))
	for i, m := range messages {
		msgs[i] = MessageResponse{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			ChunkIDs:  m.ChunkIDs,
			CreatedAt: m.CreatedAt,
		}
	}

	writeJSON(w, http.StatusOK, struct {
		SessionResponse
		Messages []MessageResponse `json:"messages"`
	}{sessionResponse(session), msgs})
}

// DeleteSession removes a session and its transcript.
func (h *ChatHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := contextutil.UserIDFromContext(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	id, err := sessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session id")
		return
	}

	if err := h.chats.DeleteSession(ctx, id, userID); err != nil {
		writeStorageError(w, r, err, "Session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Ask answers a one-off question from the caller's documents. The body
// may name a session, a document filter and a retrieval depth; without a
// session the answer is returned but not recorded.
func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	h.answer(w, r, req)
}

// AskSession answers a question inside the session named in the URL.
func (h *ChatHandler) AskSession(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session id")
		return
	}

	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.SessionID = id
	h.answer(w, r, req)
}

func (h *ChatHandler) answer(w http.ResponseWriter, r *http.Request, req AskRequest) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)
	userID, ok := contextutil.UserIDFromContext(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "Question is required")
		return
	}

	// A document filter may only name the caller's own documents.
	for _, docID := range req.DocumentIDs {
		if _, err := h.docs.GetByIDForUser(ctx, docID, userID); err != nil {
			writeStorageError(w, r, err, "Document not found")
			return
		}
	}

	answer, err := h.engine.Ask(ctx, userID, rag.AskParams{
		Question:    req.Question,
		SessionID:   req.SessionID,
		DocumentIDs: req.DocumentIDs,
		TopK:        req.TopK,
	})
	if err != nil {
		h.writeEngineError(w, r, err, "Session not found")
		return
	}

	logger.InfoContext(ctx, "question answered",
		"session_id", req.SessionID, "sources", len(answer.Sources))
	writeJSON(w, http.StatusOK, answer)
}

// Summary returns a generated summary of one document.
func (h *ChatHandler) Summary(w http.ResponseWriter, r *http.Request) {
	h.generateForDocument(w, r, h.engine.Summary, "summary")
}

// MindMap returns a generated JSON mind map of one document.
func (h *ChatHandler) MindMap(w http.ResponseWriter, r *http.Request) {
	h.generateForDocument(w, r, h.engine.MindMap, "mind_map")
}

func (h *ChatHandler) generateForDocument(w http.ResponseWriter, r *http.Request, generate func(context.Context, int64, int64) (string, error), field string) {
	ctx := r.Context()
	userID, ok := contextutil.UserIDFromContext(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	id, err := documentID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid document id")
		return
	}

	text, err := generate(ctx, userID, id)
	if err != nil {
		h.writeEngineError(w, r, err, "Document not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{field: text})
}

// writeEngineError maps retrieval engine errors onto HTTP status codes.
// Missing rows are the caller's fault, upstream model failures are a bad
// gateway, everything else is internal.
func (h *ChatHandler) writeEngineError(w http.ResponseWriter, r *http.Request, err error, notFoundMsg string) {
	ctx := r.Context()
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, notFoundMsg)
	case errors.Is(err, llm.ErrEmbedding), errors.Is(err, llm.ErrGeneration):
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "model service error", "error", err)
		writeError(w, http.StatusBadGateway, "External service error")
	default:
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "engine error", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func sessionID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
}
