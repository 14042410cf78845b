package library

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/pietrondo/tutor-rag/internal/retrieval"
)

// AnnotationStore is a retrieval.AnnotationSource backed by a local SQLite
// database. It is safe for concurrent use.
type AnnotationStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultAnnotationsDBPath returns the default path for the annotations
// database. It resolves to ~/.tutor-rag/annotations.db, creating the
// directory if needed.
func DefaultAnnotationsDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("library: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".tutor-rag")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("library: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "annotations.db"), nil
}

// OpenAnnotations opens (or creates) an AnnotationStore at the given path and
// runs the schema migration. Use ":memory:" for an in-memory database in tests.
func OpenAnnotations(path string) (*AnnotationStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("library: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &AnnotationStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *AnnotationStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS annotations (
    id            TEXT    PRIMARY KEY,
    user_id       TEXT    NOT NULL,
    course_id     TEXT    NOT NULL,
    book_id       TEXT    NOT NULL DEFAULT '',
    page          INTEGER NOT NULL DEFAULT 0,
    selected_text TEXT    NOT NULL,
    content       TEXT    NOT NULL,
    tags          TEXT    NOT NULL DEFAULT '',  -- comma-separated labels
    shareable     INTEGER NOT NULL DEFAULT 0,
    created_at    INTEGER NOT NULL              -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_annotations_user_course
    ON annotations (user_id, course_id, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("library: migrate: %w", err)
	}
	return nil
}

// Add persists an annotation. A missing ID is filled in with a new UUID, and
// a zero CreatedAt with the current time. The stored annotation is returned.
func (s *AnnotationStore) Add(ctx context.Context, a retrieval.Annotation) (retrieval.Annotation, error) {
	if a.UserID == "" || a.CourseID == "" {
		return retrieval.Annotation{}, fmt.Errorf("library: annotation requires user_id and course_id")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	const q = `
INSERT INTO annotations (id, user_id, course_id, book_id, page, selected_text, content, tags, shareable, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		a.ID, a.UserID, a.CourseID, a.BookID, a.Page,
		a.SelectedText, a.Content, joinTags(a.Tags), boolToInt(a.Shareable), a.CreatedAt.Unix(),
	)
	if err != nil {
		return retrieval.Annotation{}, fmt.Errorf("library: add annotation: %w", err)
	}
	return a, nil
}

// ListShareable returns the user's shareable annotations in the scope's
// course, oldest-first. Book filtering is left to the engine so book-scoped
// retrievals can still decide what a course-wide note means.
func (s *AnnotationStore) ListShareable(ctx context.Context, userID string, scope retrieval.Scope) ([]retrieval.Annotation, error) {
	const q = `
SELECT id, user_id, course_id, book_id, page, selected_text, content, tags, shareable, created_at
FROM   annotations
WHERE  user_id = ? AND course_id = ? AND shareable = 1
ORDER  BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, userID, scope.CourseID)
	if err != nil {
		return nil, fmt.Errorf("library: list annotations: %w", err)
	}
	defer rows.Close()

	var out []retrieval.Annotation
	for rows.Next() {
		var a retrieval.Annotation
		var tags string
		var shareable int
		var ts int64
		if err := rows.Scan(&a.ID, &a.UserID, &a.CourseID, &a.BookID, &a.Page,
			&a.SelectedText, &a.Content, &tags, &shareable, &ts); err != nil {
			return nil, fmt.Errorf("library: list annotations scan: %w", err)
		}
		a.Tags = splitTags(tags)
		a.Shareable = shareable != 0
		a.CreatedAt = time.Unix(ts, 0)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("library: list annotations rows: %w", err)
	}
	return out, nil
}

// Close releases the database connection pool.
func (s *AnnotationStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("library: close: %w", err)
	}
	return nil
}

func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
