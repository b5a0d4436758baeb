package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"pdfchat/internal/contextutil"
	"pdfchat/internal/ingest"
	"pdfchat/internal/storage"
)

// maxUploadBytes caps PDF uploads at 10 MB.
const maxUploadBytes = 10 << 20

// DocumentDeleter tears down a document, its chunks and its vectors.
type DocumentDeleter interface {
	DeleteDocument(ctx context.Context, documentID, userID int64) error
}

// IngestQueue accepts documents for background processing.
type IngestQueue interface {
	Submit(documentID int64) error
}

// DocumentHandler handles document upload and lifecycle requests.
type DocumentHandler struct {
	docs      storage.DocumentStore
	chunks    storage.ChunkStore
	deleter   DocumentDeleter
	queue     IngestQueue
	uploadDir string
}

// NewDocumentHandler creates a new DocumentHandler.
func NewDocumentHandler(docs storage.DocumentStore, chunks storage.ChunkStore, deleter DocumentDeleter, queue IngestQueue, uploadDir string) *DocumentHandler {
	return &DocumentHandler{
		docs:      docs,
		chunks:    chunks,
		deleter:   deleter,
		queue:     queue,
		uploadDir: uploadDir,
	}
}

// DocumentResponse is the public view of a document.
type DocumentResponse struct {
	ID          int64     `json:"id"`
	Filename    string    `json:"filename"`
	FileSize    int64     `json:"file_size"`
	Status      string    `json:"status"`
	PageCount   int       `json:"page_count"`
	TotalChunks int       `json:"total_chunks"`
	Error       string    `json:"error,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

func documentResponse(d *storage.Document) DocumentResponse {
	return DocumentResponse{
		ID:          d.ID,
		Filename:    d.OriginalFilename,
		FileSize:    d.FileSize,
		Status:      d.Status,
		PageCount:   d.PageCount,
		TotalChunks: d.TotalChunks,
		Error:       d.Error,
		UploadedAt:  d.UploadedAt,
	}
}

// ChunkResponse is the public view of one chunk of a document.
type ChunkResponse struct {
	ID         string `json:"id"`
	ChunkIndex int    `json:"chunk_index"`
	PageNumber int    `json:"page_number"`
	StartChar  int    `json:"start_char"`
	EndChar    int    `json:"end_char"`
	TokenCount int    `json:"token_count"`
	Text       string `json:"text"`
}

// Upload accepts a PDF, stores it and queues it for ingestion. The
// response reports the pending document; processing happens in the
// background and is observable through the status endpoint.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)
	userID, ok := contextutil.UserIDFromContext(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "File exceeds the 10 MB upload limit")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing file field")
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		writeError(w, http.StatusBadRequest, "Only PDF files are accepted")
		return
	}

	storedName := uuid.NewString() + ".pdf"
	storedPath := filepath.Join(h.uploadDir, storedName)
	size, err := h.saveUpload(file, storedPath)
	if err != nil {
		logger.ErrorContext(ctx, "failed to store upload", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to store file")
		return
	}

	doc := &storage.Document{
		UserID:           userID,
		Filename:         storedName,
		OriginalFilename: header.Filename,
		FilePath:         storedPath,
		FileSize:         size,
		Status:           storage.StatusPending,
	}
	id, err := h.docs.Insert(ctx, doc)
	if err != nil {
		logger.ErrorContext(ctx, "failed to create document", "error", err)
		_ = os.Remove(storedPath)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	doc.ID = id

	if err := h.queue.Submit(id); err != nil {
		logger.WarnContext(ctx, "ingestion queue rejected document", "document_id", id, "error", err)
		if errors.Is(err, ingest.ErrQueueFull) {
			// Roll the upload back; the client should retry later.
			_ = h.docs.Delete(ctx, id, userID)
			_ = os.Remove(storedPath)
			writeError(w, http.StatusServiceUnavailable, "Server is busy, try again later")
			return
		}
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	logger.InfoContext(ctx, "document uploaded", "document_id", id, "size", size)
	writeJSON(w, http.StatusAccepted, documentResponse(doc))
}

func (h *DocumentHandler) saveUpload(src io.Reader, path string) (int64, error) {
	dst, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", path, err)
	}
	defer dst.Close()

	size, err := io.Copy(dst, src)
	if err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("writing %s: %w", path, err)
	}
	return size, nil
}

// List returns the caller's documents, newest first.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := contextutil.UserIDFromContext(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	docs, err := h.docs.ListByUser(ctx, userID)
	if err != nil {
		writeStorageError(w, r, err, "Document not found")
		return
	}

	out := make([]DocumentResponse, len(docs))
	for i, d := range docs {
		out[i] = documentResponse(d)
	}
	writeJSON(w, http.StatusOK, out)
}

// Get returns one document with its current processing status.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	doc, err := h.docs.GetByIDForUser(ctx, id, userID)
	if err != nil {
		writeStorageError(w, r, err, "Document not found")
		return
	}
	writeJSON(w, http.StatusOK, documentResponse(doc))
}

// Chunks returns a document's chunks in position order.
func (h *DocumentHandler) Chunks(w http.ResponseWriter, r *http.Request) {
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

	if _, err := h.docs.GetByIDForUser(ctx, id, userID); err != nil {
		writeStorageError(w, r, err, "Document not found")
		return
	}

	chunks, err := h.chunks.ListByDocument(ctx, id, userID)
	if err != nil {
		writeStorageError(w, r, err, "Document not found")
		return
	}

	out := make([]ChunkResponse, len(chunks))
	for i, c := range chunks {
		out[i] = ChunkResponse{
			ID:         c.ID,
			ChunkIndex: c.ChunkIndex,
			PageNumber: c.PageNumber,
			StartChar:  c.StartChar,
			EndChar:    c.EndChar,
			TokenCount: c.TokenCount,
			Text:       c.Text,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// Chunk returns one chunk by id, including its index slot when assigned.
func (h *DocumentHandler) Chunk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := contextutil.UserIDFromContext(ctx)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	chunkID := chi.URLParam(r, "chunkID")
	if chunkID == "" {
		writeError(w, http.StatusBadRequest, "Invalid chunk id")
		return
	}

	chunk, err := h.chunks.GetByIDForUser(ctx, chunkID, userID)
	if err != nil {
		writeStorageError(w, r, err, "Chunk not found")
		return
	}

	writeJSON(w, http.StatusOK, ChunkResponse{
		ID:         chunk.ID,
		ChunkIndex: chunk.ChunkIndex,
		PageNumber: chunk.PageNumber,
		StartChar:  chunk.StartChar,
		EndChar:    chunk.EndChar,
		TokenCount: chunk.TokenCount,
		Text:       chunk.Text,
	})
}

// Delete removes a document together with its chunks and vectors.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)
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

	if err := h.deleter.DeleteDocument(ctx, id, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Document not found")
			return
		}
		logger.ErrorContext(ctx, "failed to delete document", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete document")
		return
	}

	logger.InfoContext(ctx, "document deleted", "document_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func documentID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "documentID"), 10, 64)
}
