package storage

import (
	"context"
	"database/sql"
	"testing"
)

// testDB opens a migrated database in a temp directory.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := New(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

// seedUser inserts an account and returns its id.
func seedUser(t *testing.T, db *sql.DB, username string) int64 {
	t.Helper()
	id, err := NewUserRepo(db).Insert(context.Background(), &User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
	})
	if err != nil {
		t.Fatalf("seeding user %s: %v", username, err)
	}
	return id
}

// seedDocument inserts a pending document and returns its id.
func seedDocument(t *testing.T, db *sql.DB, userID int64, name string) int64 {
	t.Helper()
	id, err := NewDocumentRepo(db).Insert(context.Background(), &Document{
		UserID:           userID,
		Filename:         name + ".stored.pdf",
		OriginalFilename: name + ".pdf",
		FilePath:         "/tmp/" + name + ".pdf",
		FileSize:         100,
		Status:           StatusPending,
	})
	if err != nil {
		t.Fatalf("seeding document %s: %v", name, err)
	}
	return id
}

func TestMigrate_Idempotent(t *testing.T) {
	db := testDB(t)
	if err := Migrate(db); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}
