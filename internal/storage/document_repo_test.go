package storage

import (
	"context"
	"errors"
	"testing"
)

func TestDocumentRepo_Lifecycle(t *testing.T) {
	db := testDB(t)
	repo := NewDocumentRepo(db)
	ctx := context.Background()
	userID := seedUser(t, db, "alice")

	id := seedDocument(t, db, userID, "report")

	doc, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if doc.Status != StatusPending {
		t.Errorf("new document status = %q, want pending", doc.Status)
	}

	if err := repo.SetStatus(ctx, id, StatusProcessing); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	if err := repo.MarkCompleted(ctx, id, 12, 48); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}

	doc, err = repo.GetByIDForUser(ctx, id, userID)
	if err != nil {
		t.Fatalf("GetByIDForUser() error = %v", err)
	}
	if doc.Status != StatusCompleted || doc.PageCount != 12 || doc.TotalChunks != 48 {
		t.Errorf("completed document = %+v", doc)
	}
}

func TestDocumentRepo_MarkFailed(t *testing.T) {
	db := testDB(t)
	repo := NewDocumentRepo(db)
	ctx := context.Background()
	userID := seedUser(t, db, "alice")
	id := seedDocument(t, db, userID, "empty")

	if err := repo.MarkFailed(ctx, id, "no extractable text"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	doc, err := repo.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if doc.Status != StatusFailed || doc.Error != "no extractable text" {
		t.Errorf("failed document = status %q error %q", doc.Status, doc.Error)
	}
}

func TestDocumentRepo_UserIsolation(t *testing.T) {
	db := testDB(t)
	repo := NewDocumentRepo(db)
	ctx := context.Background()
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	id := seedDocument(t, db, alice, "private")

	if _, err := repo.GetByIDForUser(ctx, id, bob); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByIDForUser() for non-owner error = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(ctx, id, bob); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() for non-owner error = %v, want ErrNotFound", err)
	}

	docs, err := repo.ListByUser(ctx, bob)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("ListByUser() for bob returned %d documents, want 0", len(docs))
	}
}

func TestDocumentRepo_DeleteCascadesChunks(t *testing.T) {
	db := testDB(t)
	docRepo := NewDocumentRepo(db)
	chunkRepo := NewChunkRepo(db)
	ctx := context.Background()
	userID := seedUser(t, db, "alice")
	id := seedDocument(t, db, userID, "doomed")

	err := chunkRepo.InsertBatch(ctx, []*ChunkRecord{
		{ID: "chunk-1", DocumentID: id, UserID: userID, ChunkIndex: 0, PageNumber: 1, Text: "text"},
	})
	if err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	if err := docRepo.Delete(ctx, id, userID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := chunkRepo.GetByIDForUser(ctx, "chunk-1", userID); !errors.Is(err, ErrNotFound) {
		t.Errorf("chunk survived document delete, error = %v", err)
	}
}

func TestDocumentRepo_GetMissing(t *testing.T) {
	db := testDB(t)
	repo := NewDocumentRepo(db)

	if _, err := repo.GetByID(context.Background(), 12345); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}
