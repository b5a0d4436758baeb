package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// ChatStore defines the interface for chat session and message persistence.
// The retrieval core only appends messages; it never reads them back to make
// retrieval decisions.
type ChatStore interface {
	// InsertSession creates a chat session and returns its id.
	InsertSession(ctx context.Context, session *ChatSession) (int64, error)
	// GetSessionForUser gets a session owned by the given user.
	GetSessionForUser(ctx context.Context, id, userID int64) (*ChatSession, error)
	// ListSessions returns a user's active sessions, most recently updated
	// first, with message counts populated.
	ListSessions(ctx context.Context, userID int64) ([]*ChatSession, error)
	// DeleteSession removes a session owned by the given user. Messages cascade.
	DeleteSession(ctx context.Context, id, userID int64) error
	// TouchSession bumps the session's updated_at timestamp.
	TouchSession(ctx context.Context, id int64) error
	// InsertMessage appends a message to a session's transcript.
	InsertMessage(ctx context.Context, msg *Message) (int64, error)
	// ListMessages returns a session's messages in chronological order.
	ListMessages(ctx context.Context, sessionID int64) ([]*Message, error)
}

// ChatRepo provides methods for chat session and message operations.
// It implements the ChatStore interface.
type ChatRepo struct {
	db *sql.DB
}

// NewChatRepo creates a new ChatRepo.
func NewChatRepo(db *sql.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// InsertSession creates a chat session and returns its id.
func (r *ChatRepo) InsertSession(ctx context.Context, session *ChatSession) (int64, error) {
	docIDs, err := json.Marshal(session.DocumentIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal document ids: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (user_id, title, document_ids) VALUES (?, ?, ?)`,
		session.UserID, session.Title, string(docIDs),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get session id: %w", err)
	}
	return id, nil
}

// GetSessionForUser gets a session owned by the given user.
func (r *ChatRepo) GetSessionForUser(ctx context.Context, id, userID int64) (*ChatSession, error) {
	var s ChatSession
	var docIDs string
	var isActive int
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, document_ids, is_active, created_at, updated_at
		 FROM chat_sessions WHERE id = ? AND user_id = ?`, id, userID,
	).Scan(&s.ID, &s.UserID, &s.Title, &docIDs, &isActive, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	s.IsActive = isActive != 0
	if err := json.Unmarshal([]byte(docIDs), &s.DocumentIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document ids: %w", err)
	}
	return &s, nil
}

// ListSessions returns a user's active sessions, most recently updated first.
func (r *ChatRepo) ListSessions(ctx context.Context, userID int64) ([]*ChatSession, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.id, s.user_id, s.title, s.document_ids, s.is_active, s.created_at, s.updated_at,
		        (SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id) AS message_count
		 FROM chat_sessions s
		 WHERE s.user_id = ? AND s.is_active = 1
		 ORDER BY s.updated_at DESC, s.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var sessions []*ChatSession
	for rows.Next() {
		var s ChatSession
		var docIDs string
		var isActive int
		if err := rows.Scan(&s.ID, &s.UserID, &s.Title, &docIDs, &isActive,
			&s.CreatedAt, &s.UpdatedAt, &s.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.IsActive = isActive != 0
		if err := json.Unmarshal([]byte(docIDs), &s.DocumentIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document ids: %w", err)
		}
		sessions = append(sessions, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return sessions, nil
}

// DeleteSession removes a session owned by the given user.
func (r *ChatRepo) DeleteSession(ctx context.Context, id, userID int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM chat_sessions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchSession bumps the session's updated_at timestamp.
func (r *ChatRepo) TouchSession(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chat_sessions SET updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// InsertMessage appends a message to a session's transcript.
func (r *ChatRepo) InsertMessage(ctx context.Context, msg *Message) (int64, error) {
	chunkIDs, err := json.Marshal(msg.ChunkIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal chunk ids: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, user_id, role, content, chunk_ids) VALUES (?, ?, ?, ?, ?)`,
		msg.SessionID, msg.UserID, msg.Role, msg.Content, string(chunkIDs),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get message id: %w", err)
	}
	return id, nil
}

// ListMessages returns a session's messages in chronological order.
func (r *ChatRepo) ListMessages(ctx context.Context, sessionID int64) ([]*Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, user_id, role, content, chunk_ids, created_at
		 FROM messages WHERE session_id = ? ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var messages []*Message
	for rows.Next() {
		var m Message
		var chunkIDs string
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &m.Role, &m.Content, &chunkIDs, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if err := json.Unmarshal([]byte(chunkIDs), &m.ChunkIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chunk ids: %w", err)
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return messages, nil
}
