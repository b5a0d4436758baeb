package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ChunkStore defines the interface for chunk storage operations.
type ChunkStore interface {
	// InsertBatch inserts chunks in a single transaction.
	// Every chunk must have its ID (UUID) set before calling.
	InsertBatch(ctx context.Context, chunks []*ChunkRecord) error
	// GetByIDForUser gets a chunk by id, restricted to the owning user.
	// Returns ErrNotFound if it does not exist or belongs to someone else.
	GetByIDForUser(ctx context.Context, id string, userID int64) (*ChunkRecord, error)
	// ListByIDsForUser returns the chunks among ids owned by the user.
	// Order of the result is not defined; callers needing the original
	// order must restore it themselves.
	ListByIDsForUser(ctx context.Context, ids []string, userID int64) ([]*ChunkRecord, error)
	// ListByDocument returns a document's chunks ordered by chunk_index.
	ListByDocument(ctx context.Context, documentID, userID int64) ([]*ChunkRecord, error)
	// ListByUserExcludingDocument returns all of a user's chunks except
	// those of the given document, in stable (document, position) order.
	// Used to gather the surviving chunks for an index rebuild.
	ListByUserExcludingDocument(ctx context.Context, userID, documentID int64) ([]*ChunkRecord, error)
	// SetIndexSlots records the index slot assigned to each chunk's vector.
	SetIndexSlots(ctx context.Context, assignments []SlotAssignment) error
}

// ChunkRepo provides methods for chunk operations.
// It implements the ChunkStore interface.
type ChunkRepo struct {
	db *sql.DB
}

// NewChunkRepo creates a new ChunkRepo.
func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// InsertBatch inserts chunks in a single transaction.
func (r *ChunkRepo) InsertBatch(ctx context.Context, chunks []*ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, document_id, user_id, chunk_index, page_number, start_char, end_char, token_count, text)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.DocumentID, c.UserID, c.ChunkIndex, c.PageNumber,
			c.StartChar, c.EndChar, c.TokenCount, c.Text,
		); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk batch: %w", err)
	}
	return nil
}

const chunkColumns = `id, document_id, user_id, chunk_index, page_number, start_char, end_char, token_count, text, index_slot, created_at`

func scanChunk(row interface{ Scan(...any) error }) (*ChunkRecord, error) {
	var c ChunkRecord
	err := row.Scan(
		&c.ID, &c.DocumentID, &c.UserID, &c.ChunkIndex, &c.PageNumber,
		&c.StartChar, &c.EndChar, &c.TokenCount, &c.Text, &c.IndexSlot, &c.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan chunk: %w", err)
	}
	return &c, nil
}

// GetByIDForUser gets a chunk by id, restricted to the owning user.
func (r *ChunkRepo) GetByIDForUser(ctx context.Context, id string, userID int64) (*ChunkRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id = ? AND user_id = ?`, id, userID)
	return scanChunk(row)
}

// ListByIDsForUser returns the chunks among ids owned by the user.
func (r *ChunkRepo) ListByIDsForUser(ctx context.Context, ids []string, userID int64) ([]*ChunkRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, userID)

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id IN (`+placeholders+`) AND user_id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks by ids: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	return collectChunks(rows)
}

// ListByDocument returns a document's chunks ordered by chunk_index.
func (r *ChunkRepo) ListByDocument(ctx context.Context, documentID, userID int64) ([]*ChunkRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE document_id = ? AND user_id = ? ORDER BY chunk_index`,
		documentID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks by document: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	return collectChunks(rows)
}

// ListByUserExcludingDocument returns all of a user's chunks except those of
// the given document, in stable (document, position) order.
func (r *ChunkRepo) ListByUserExcludingDocument(ctx context.Context, userID, documentID int64) ([]*ChunkRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE user_id = ? AND document_id != ? ORDER BY document_id, chunk_index`,
		userID, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query remaining chunks: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	return collectChunks(rows)
}

// SetIndexSlots records the index slot assigned to each chunk's vector.
func (r *ChunkRepo) SetIndexSlots(ctx context.Context, assignments []SlotAssignment) error {
	if len(assignments) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `UPDATE chunks SET index_slot = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare slot update: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, a := range assignments {
		if _, err := stmt.ExecContext(ctx, a.Slot, a.ChunkID); err != nil {
			return fmt.Errorf("failed to set index slot for chunk %s: %w", a.ChunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit slot updates: %w", err)
	}
	return nil
}

func collectChunks(rows *sql.Rows) ([]*ChunkRecord, error) {
	var chunks []*ChunkRecord
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return chunks, nil
}
