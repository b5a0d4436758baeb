package storage

import (
	"context"
	"errors"
	"testing"
)

func TestChatRepo_SessionLifecycle(t *testing.T) {
	db := testDB(t)
	repo := NewChatRepo(db)
	ctx := context.Background()
	userID := seedUser(t, db, "alice")
	docID := seedDocument(t, db, userID, "report")

	id, err := repo.InsertSession(ctx, &ChatSession{
		UserID:      userID,
		Title:       "Quarterly report",
		DocumentIDs: []int64{docID},
		IsActive:    true,
	})
	if err != nil {
		t.Fatalf("InsertSession() error = %v", err)
	}

	session, err := repo.GetSessionForUser(ctx, id, userID)
	if err != nil {
		t.Fatalf("GetSessionForUser() error = %v", err)
	}
	if session.Title != "Quarterly report" {
		t.Errorf("session title = %q", session.Title)
	}
	if len(session.DocumentIDs) != 1 || session.DocumentIDs[0] != docID {
		t.Errorf("session document ids = %v, want [%d]", session.DocumentIDs, docID)
	}

	if err := repo.DeleteSession(ctx, id, userID); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if _, err := repo.GetSessionForUser(ctx, id, userID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSessionForUser() after delete error = %v, want ErrNotFound", err)
	}
}

func TestChatRepo_ListSessionsCountsMessages(t *testing.T) {
	db := testDB(t)
	repo := NewChatRepo(db)
	ctx := context.Background()
	userID := seedUser(t, db, "alice")

	id, err := repo.InsertSession(ctx, &ChatSession{UserID: userID, Title: "chat", IsActive: true})
	if err != nil {
		t.Fatalf("InsertSession() error = %v", err)
	}

	for _, m := range []*Message{
		{SessionID: id, UserID: userID, Role: "user", Content: "question"},
		{SessionID: id, UserID: userID, Role: "assistant", Content: "answer", ChunkIDs: []string{"c1", "c2"}},
	} {
		if _, err := repo.InsertMessage(ctx, m); err != nil {
			t.Fatalf("InsertMessage() error = %v", err)
		}
	}

	sessions, err := repo.ListSessions(ctx, userID)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("ListSessions() returned %d sessions, want 1", len(sessions))
	}
	if sessions[0].MessageCount != 2 {
		t.Errorf("MessageCount = %d, want 2", sessions[0].MessageCount)
	}
}

func TestChatRepo_MessagesRoundTrip(t *testing.T) {
	db := testDB(t)
	repo := NewChatRepo(db)
	ctx := context.Background()
	userID := seedUser(t, db, "alice")

	id, err := repo.InsertSession(ctx, &ChatSession{UserID: userID, Title: "chat", IsActive: true})
	if err != nil {
		t.Fatalf("InsertSession() error = %v", err)
	}

	if _, err := repo.InsertMessage(ctx, &Message{
		SessionID: id, UserID: userID, Role: "assistant", Content: "answer",
		ChunkIDs: []string{"c2", "c1"},
	}); err != nil {
		t.Fatalf("InsertMessage() error = %v", err)
	}

	messages, err := repo.ListMessages(ctx, id)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("ListMessages() returned %d messages, want 1", len(messages))
	}
	got := messages[0]
	if got.Role != "assistant" || got.Content != "answer" {
		t.Errorf("message = %+v", got)
	}
	// Retrieval rank order must survive the round trip.
	if len(got.ChunkIDs) != 2 || got.ChunkIDs[0] != "c2" || got.ChunkIDs[1] != "c1" {
		t.Errorf("message chunk ids = %v, want [c2 c1]", got.ChunkIDs)
	}
}

func TestChatRepo_UserIsolation(t *testing.T) {
	db := testDB(t)
	repo := NewChatRepo(db)
	ctx := context.Background()
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	id, err := repo.InsertSession(ctx, &ChatSession{UserID: alice, Title: "private", IsActive: true})
	if err != nil {
		t.Fatalf("InsertSession() error = %v", err)
	}

	if _, err := repo.GetSessionForUser(ctx, id, bob); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSessionForUser() for non-owner error = %v, want ErrNotFound", err)
	}
	if err := repo.DeleteSession(ctx, id, bob); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteSession() for non-owner error = %v, want ErrNotFound", err)
	}
}

func TestChatRepo_DeleteSessionCascadesMessages(t *testing.T) {
	db := testDB(t)
	repo := NewChatRepo(db)
	ctx := context.Background()
	userID := seedUser(t, db, "alice")

	id, err := repo.InsertSession(ctx, &ChatSession{UserID: userID, Title: "chat", IsActive: true})
	if err != nil {
		t.Fatalf("InsertSession() error = %v", err)
	}
	if _, err := repo.InsertMessage(ctx, &Message{SessionID: id, UserID: userID, Role: "user", Content: "q"}); err != nil {
		t.Fatalf("InsertMessage() error = %v", err)
	}

	if err := repo.DeleteSession(ctx, id, userID); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}

	messages, err := repo.ListMessages(ctx, id)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("messages survived session delete: %d left", len(messages))
	}
}
