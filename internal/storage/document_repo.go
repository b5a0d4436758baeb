package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// DocumentStore defines the interface for document metadata operations.
type DocumentStore interface {
	// Insert creates a document row and returns its id.
	Insert(ctx context.Context, doc *Document) (int64, error)
	// GetByID gets a document by id regardless of owner. Used by the
	// ingestion pipeline, which is keyed by document id alone.
	GetByID(ctx context.Context, id int64) (*Document, error)
	// GetByIDForUser gets a document owned by the given user.
	GetByIDForUser(ctx context.Context, id, userID int64) (*Document, error)
	// ListByUser returns all documents of a user, newest upload first.
	ListByUser(ctx context.Context, userID int64) ([]*Document, error)
	// SetStatus transitions a document's processing status.
	SetStatus(ctx context.Context, id int64, status string) error
	// MarkFailed sets the failed status together with the error cause.
	MarkFailed(ctx context.Context, id int64, cause string) error
	// MarkCompleted sets the completed status and the final counts.
	MarkCompleted(ctx context.Context, id int64, pageCount, totalChunks int) error
	// Delete removes a document owned by the given user. Chunk rows cascade.
	Delete(ctx context.Context, id, userID int64) error
}

// DocumentRepo provides methods for document operations.
// It implements the DocumentStore interface.
type DocumentRepo struct {
	db *sql.DB
}

// NewDocumentRepo creates a new DocumentRepo.
func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// Insert creates a document row and returns its id.
func (r *DocumentRepo) Insert(ctx context.Context, doc *Document) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (user_id, filename, original_filename, file_path, file_size, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		doc.UserID, doc.Filename, doc.OriginalFilename, doc.FilePath, doc.FileSize, doc.Status,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert document: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get document id: %w", err)
	}
	return id, nil
}

const documentColumns = `id, user_id, filename, original_filename, file_path, file_size, status, page_count, total_chunks, error, uploaded_at`

func scanDocument(row interface{ Scan(...any) error }) (*Document, error) {
	var doc Document
	err := row.Scan(
		&doc.ID, &doc.UserID, &doc.Filename, &doc.OriginalFilename, &doc.FilePath,
		&doc.FileSize, &doc.Status, &doc.PageCount, &doc.TotalChunks, &doc.Error, &doc.UploadedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	return &doc, nil
}

// GetByID gets a document by id regardless of owner.
func (r *DocumentRepo) GetByID(ctx context.Context, id int64) (*Document, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// GetByIDForUser gets a document owned by the given user.
func (r *DocumentRepo) GetByIDForUser(ctx context.Context, id, userID int64) (*Document, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ? AND user_id = ?`, id, userID)
	return scanDocument(row)
}

// ListByUser returns all documents of a user, newest upload first.
func (r *DocumentRepo) ListByUser(ctx context.Context, userID int64) ([]*Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE user_id = ? ORDER BY uploaded_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return docs, nil
}

// SetStatus transitions a document's processing status.
func (r *DocumentRepo) SetStatus(ctx context.Context, id int64, status string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE documents SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailed sets the failed status together with the error cause.
func (r *DocumentRepo) MarkFailed(ctx context.Context, id int64, cause string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, error = ? WHERE id = ?`, StatusFailed, cause, id)
	if err != nil {
		return fmt.Errorf("failed to mark document failed: %w", err)
	}
	return nil
}

// MarkCompleted sets the completed status and the final counts.
func (r *DocumentRepo) MarkCompleted(ctx context.Context, id int64, pageCount, totalChunks int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, page_count = ?, total_chunks = ?, error = '' WHERE id = ?`,
		StatusCompleted, pageCount, totalChunks, id)
	if err != nil {
		return fmt.Errorf("failed to mark document completed: %w", err)
	}
	return nil
}

// Delete removes a document owned by the given user. Chunk rows cascade.
func (r *DocumentRepo) Delete(ctx context.Context, id, userID int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM documents WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
