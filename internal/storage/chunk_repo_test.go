package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func insertChunks(t *testing.T, repo *ChunkRepo, docID, userID int64, n int) []string {
	t.Helper()
	chunks := make([]*ChunkRecord, n)
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("doc%d-chunk-%d", docID, i)
		chunks[i] = &ChunkRecord{
			ID:         id,
			DocumentID: docID,
			UserID:     userID,
			ChunkIndex: i,
			PageNumber: i + 1,
			StartChar:  i * 100,
			EndChar:    (i + 1) * 100,
			TokenCount: 25,
			Text:       fmt.Sprintf("chunk %d text", i),
		}
		ids[i] = id
	}
	if err := repo.InsertBatch(context.Background(), chunks); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}
	return ids
}

func TestChunkRepo_InsertAndGet(t *testing.T) {
	db := testDB(t)
	repo := NewChunkRepo(db)
	ctx := context.Background()
	userID := seedUser(t, db, "alice")
	docID := seedDocument(t, db, userID, "report")

	ids := insertChunks(t, repo, docID, userID, 3)

	chunk, err := repo.GetByIDForUser(ctx, ids[1], userID)
	if err != nil {
		t.Fatalf("GetByIDForUser() error = %v", err)
	}
	if chunk.ChunkIndex != 1 || chunk.PageNumber != 2 {
		t.Errorf("chunk = %+v", chunk)
	}
	if chunk.IndexSlot.Valid {
		t.Error("fresh chunk already has an index slot")
	}
}

func TestChunkRepo_ListByIDsForUser_FiltersOwner(t *testing.T) {
	db := testDB(t)
	repo := NewChunkRepo(db)
	ctx := context.Background()
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	aliceDoc := seedDocument(t, db, alice, "alice-doc")
	bobDoc := seedDocument(t, db, bob, "bob-doc")

	aliceIDs := insertChunks(t, repo, aliceDoc, alice, 2)
	bobIDs := insertChunks(t, repo, bobDoc, bob, 2)

	// Ask for everything as alice: bob's chunks must not come back.
	all := append(append([]string{}, aliceIDs...), bobIDs...)
	got, err := repo.ListByIDsForUser(ctx, all, alice)
	if err != nil {
		t.Fatalf("ListByIDsForUser() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListByIDsForUser() returned %d chunks, want 2", len(got))
	}
	for _, c := range got {
		if c.UserID != alice {
			t.Errorf("leaked chunk %s owned by user %d", c.ID, c.UserID)
		}
	}
}

func TestChunkRepo_ListByDocumentOrder(t *testing.T) {
	db := testDB(t)
	repo := NewChunkRepo(db)
	ctx := context.Background()
	userID := seedUser(t, db, "alice")
	docID := seedDocument(t, db, userID, "report")

	insertChunks(t, repo, docID, userID, 5)

	chunks, err := repo.ListByDocument(ctx, docID, userID)
	if err != nil {
		t.Fatalf("ListByDocument() error = %v", err)
	}
	if len(chunks) != 5 {
		t.Fatalf("ListByDocument() returned %d chunks, want 5", len(chunks))
	}
	for i, c := range chunks {
		if c.ChunkIndex != i {
			t.Errorf("chunks[%d].ChunkIndex = %d, want position order", i, c.ChunkIndex)
		}
	}
}

func TestChunkRepo_ListByUserExcludingDocument(t *testing.T) {
	db := testDB(t)
	repo := NewChunkRepo(db)
	ctx := context.Background()
	userID := seedUser(t, db, "alice")
	keepDoc := seedDocument(t, db, userID, "keep")
	dropDoc := seedDocument(t, db, userID, "drop")

	insertChunks(t, repo, keepDoc, userID, 3)
	insertChunks(t, repo, dropDoc, userID, 2)

	remaining, err := repo.ListByUserExcludingDocument(ctx, userID, dropDoc)
	if err != nil {
		t.Fatalf("ListByUserExcludingDocument() error = %v", err)
	}
	if len(remaining) != 3 {
		t.Fatalf("remaining = %d chunks, want 3", len(remaining))
	}
	for i, c := range remaining {
		if c.DocumentID != keepDoc {
			t.Errorf("remaining[%d] belongs to document %d, want %d", i, c.DocumentID, keepDoc)
		}
		if c.ChunkIndex != i {
			t.Errorf("remaining[%d].ChunkIndex = %d, want stable position order", i, c.ChunkIndex)
		}
	}
}

func TestChunkRepo_SetIndexSlots(t *testing.T) {
	db := testDB(t)
	repo := NewChunkRepo(db)
	ctx := context.Background()
	userID := seedUser(t, db, "alice")
	docID := seedDocument(t, db, userID, "report")

	ids := insertChunks(t, repo, docID, userID, 2)

	err := repo.SetIndexSlots(ctx, []SlotAssignment{
		{ChunkID: ids[0], Slot: 10},
		{ChunkID: ids[1], Slot: 11},
	})
	if err != nil {
		t.Fatalf("SetIndexSlots() error = %v", err)
	}

	chunk, err := repo.GetByIDForUser(ctx, ids[1], userID)
	if err != nil {
		t.Fatalf("GetByIDForUser() error = %v", err)
	}
	if !chunk.IndexSlot.Valid || chunk.IndexSlot.Int64 != 11 {
		t.Errorf("chunk.IndexSlot = %+v, want 11", chunk.IndexSlot)
	}
}

func TestChunkRepo_GetMissing(t *testing.T) {
	db := testDB(t)
	repo := NewChunkRepo(db)
	userID := seedUser(t, db, "alice")

	if _, err := repo.GetByIDForUser(context.Background(), "nope", userID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByIDForUser() error = %v, want ErrNotFound", err)
	}
}
