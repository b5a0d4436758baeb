package storage

import (
	"database/sql"
	"time"
)

// Document processing statuses. A document starts as pending, moves to
// processing when ingestion picks it up, and ends as completed or failed.
// Both end states are terminal.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// User represents a registered account.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	FullName     string
	CreatedAt    time.Time
}

// Document represents an uploaded PDF file and its processing lifecycle.
type Document struct {
	ID               int64
	UserID           int64
	Filename         string // stored filename (UUID-based)
	OriginalFilename string // filename as uploaded
	FilePath         string
	FileSize         int64
	Status           string
	PageCount        int
	TotalChunks      int
	Error            string // populated when Status is failed
	UploadedAt       time.Time
}

// ChunkRecord represents one retrievable slice of a document's text.
// Rows are immutable after insert except for IndexSlot, which is assigned
// when the chunk's vector enters the owning user's index.
type ChunkRecord struct {
	ID         string // UUID
	DocumentID int64
	UserID     int64
	ChunkIndex int // 0-based position within the document
	PageNumber int // 1-based source page
	StartChar  int // rune offset into the document's concatenated text
	EndChar    int
	TokenCount int
	Text       string
	IndexSlot  sql.NullInt64
	CreatedAt  time.Time
}

// ChatSession groups the messages of one conversation.
type ChatSession struct {
	ID          int64
	UserID      int64
	Title       string
	DocumentIDs []int64
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	// MessageCount is populated by list queries; it is not a column.
	MessageCount int
}

// Message is a single transcript entry within a chat session. Assistant
// messages carry the ordered chunk ids used to produce the answer.
type Message struct {
	ID        int64
	SessionID int64
	UserID    int64
	Role      string // "user" or "assistant"
	Content   string
	ChunkIDs  []string
	CreatedAt time.Time
}

// SlotAssignment records the index slot given to a chunk's vector.
type SlotAssignment struct {
	ChunkID string
	Slot    int
}
