package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

// TestMigrationsOrdered verifies migrations are applied in ascending numeric order.
func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

// TestIndexesExist verifies that the passage indexes are created by the migration.
func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_passages_doc_id", "idx_passages_category"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

// TestPassagesTableExists verifies the passages table round-trips a row and
// rejects unknown categories.
func TestPassagesTableExists(t *testing.T) {
	s := openTestStore(t)

	_, err := s.DB().Exec(`INSERT INTO passages (id, doc_id, source, category, start_line, text, embedding, created_at)
		VALUES ('p1', 'book', 'The Open Door', 'primary', 40, 'hello world', X'00000000', '2025-01-01T00:00:00Z')`)
	if err != nil {
		t.Fatalf("INSERT into passages: %v", err)
	}

	var id, docID, source, category, text string
	var startLine int
	err = s.db.QueryRow(`SELECT id, doc_id, source, category, start_line, text FROM passages WHERE id = 'p1'`).
		Scan(&id, &docID, &source, &category, &startLine, &text)
	if err != nil {
		t.Fatalf("SELECT from passages: %v", err)
	}
	if id != "p1" || docID != "book" || source != "The Open Door" || category != "primary" || startLine != 40 || text != "hello world" {
		t.Errorf("round-trip mismatch: id=%q doc_id=%q source=%q category=%q start_line=%d text=%q", id, docID, source, category, startLine, text)
	}

	_, err = s.DB().Exec(`INSERT INTO passages (id, doc_id, source, category, text, embedding, created_at)
		VALUES ('p2', 'book', 'x', 'tertiary', 't', X'', '2025-01-01T00:00:00Z')`)
	if err == nil {
		t.Error("expected CHECK constraint failure for unknown category")
	}
}

func TestIndexedDocumentRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.GetIndexedDocument(ctx, "book")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetIndexedDocument before save: got %v, want ErrNotFound", err)
	}

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := s.SaveIndexedDocument(ctx, IndexedDocument{
		DocID: "book", ContentHash: "abc", PassageCount: 12, EmbedModel: "nomic-embed-text", IndexedAt: at,
	}); err != nil {
		t.Fatalf("SaveIndexedDocument: %v", err)
	}

	got, err := s.GetIndexedDocument(ctx, "book")
	if err != nil {
		t.Fatalf("GetIndexedDocument: %v", err)
	}
	want := IndexedDocument{DocID: "book", ContentHash: "abc", PassageCount: 12, EmbedModel: "nomic-embed-text", IndexedAt: at}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}

	// Upsert replaces the hash and count.
	if err := s.SaveIndexedDocument(ctx, IndexedDocument{DocID: "book", ContentHash: "def", PassageCount: 3, IndexedAt: at}); err != nil {
		t.Fatalf("SaveIndexedDocument (update): %v", err)
	}
	got, _ = s.GetIndexedDocument(ctx, "book")
	if got.ContentHash != "def" || got.PassageCount != 3 {
		t.Errorf("after upsert got %+v", got)
	}
}

func TestListAndDeleteIndexedDocuments(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"workbook", "book"} {
		if err := s.SaveIndexedDocument(ctx, IndexedDocument{DocID: id, ContentHash: id + "-hash"}); err != nil {
			t.Fatalf("SaveIndexedDocument(%s): %v", id, err)
		}
	}

	docs, err := s.ListIndexedDocuments(ctx)
	if err != nil {
		t.Fatalf("ListIndexedDocuments: %v", err)
	}
	if len(docs) != 2 || docs[0].DocID != "book" || docs[1].DocID != "workbook" {
		t.Fatalf("unexpected list: %+v", docs)
	}
	if docs[0].IndexedAt.IsZero() {
		t.Error("IndexedAt should default to now")
	}

	if err := s.DeleteIndexedDocument(ctx, "book"); err != nil {
		t.Fatalf("DeleteIndexedDocument: %v", err)
	}
	if err := s.DeleteIndexedDocument(ctx, "book"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: got %v, want ErrNotFound", err)
	}
}
