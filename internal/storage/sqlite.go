package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the SQLite database holding corpus passages and index state.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "sage.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// DB exposes the underlying handle for stores that share the database,
// such as the passage vector store.
func (s *Store) DB() *sql.DB {
	return s.db
}

// --- Indexed documents ---

// GetIndexedDocument returns the index record for docID or ErrNotFound.
func (s *Store) GetIndexedDocument(ctx context.Context, docID string) (IndexedDocument, error) {
	var d IndexedDocument
	var indexedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT doc_id, content_hash, passage_count, embed_model, indexed_at
		FROM indexed_documents WHERE doc_id = ?`, docID,
	).Scan(&d.DocID, &d.ContentHash, &d.PassageCount, &d.EmbedModel, &indexedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return IndexedDocument{}, ErrNotFound
	}
	if err != nil {
		return IndexedDocument{}, err
	}
	t, err := time.Parse(time.RFC3339, indexedAt)
	if err != nil {
		return IndexedDocument{}, fmt.Errorf("parsing indexed_at: %w", err)
	}
	d.IndexedAt = t
	return d, nil
}

// SaveIndexedDocument inserts or replaces the index record for a document.
func (s *Store) SaveIndexedDocument(ctx context.Context, d IndexedDocument) error {
	indexedAt := d.IndexedAt
	if indexedAt.IsZero() {
		indexedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO indexed_documents (doc_id, content_hash, passage_count, embed_model, indexed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			content_hash = excluded.content_hash,
			passage_count = excluded.passage_count,
			embed_model = excluded.embed_model,
			indexed_at = excluded.indexed_at`,
		d.DocID, d.ContentHash, d.PassageCount, d.EmbedModel, indexedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// DeleteIndexedDocument removes the index record for docID.
func (s *Store) DeleteIndexedDocument(ctx context.Context, docID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM indexed_documents WHERE doc_id = ?`, docID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListIndexedDocuments returns every index record ordered by document id.
func (s *Store) ListIndexedDocuments(ctx context.Context) ([]IndexedDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, content_hash, passage_count, embed_model, indexed_at
		FROM indexed_documents ORDER BY doc_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IndexedDocument
	for rows.Next() {
		var d IndexedDocument
		var indexedAt string
		if err := rows.Scan(&d.DocID, &d.ContentHash, &d.PassageCount, &d.EmbedModel, &indexedAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, indexedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing indexed_at for %s: %w", d.DocID, err)
		}
		d.IndexedAt = t
		out = append(out, d)
	}
	return out, rows.Err()
}
