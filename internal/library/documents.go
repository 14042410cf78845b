// Package library provides the storage collaborators of the retrieval
// engine: a filesystem-backed document store holding extracted course
// material, and a SQLite-backed store for personal annotations.
//
// Materials are laid out as <root>/<courseID>/<bookID>/*.txt, with
// course-wide files allowed directly under <root>/<courseID>.
package library

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pietrondo/tutor-rag/internal/retrieval"
)

// fileDocument implements retrieval.Document for a file on disk. Metadata is
// captured at listing time; the text itself is read lazily so signatures can
// be computed without touching file contents.
type fileDocument struct {
	path    string
	name    string
	modTime time.Time
	size    int64
}

func (d *fileDocument) Path() string       { return d.path }
func (d *fileDocument) Name() string       { return d.name }
func (d *fileDocument) ModTime() time.Time { return d.modTime }
func (d *fileDocument) Size() int64        { return d.size }

// Text reads the document's extracted text from disk.
func (d *fileDocument) Text() (string, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return "", fmt.Errorf("library: read %s: %w", d.path, err)
	}
	return string(data), nil
}

// Store is a filesystem-backed retrieval.DocumentSource.
type Store struct {
	// root is the materials root directory.
	root string
}

// NewStore returns a document store rooted at the given materials directory.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// ListDocuments returns every .txt material file in the scope, sorted by
// path. A book-level scope lists only that book's directory; a course-level
// scope lists the whole course tree. A missing directory is an empty scope,
// not an error.
func (s *Store) ListDocuments(ctx context.Context, scope retrieval.Scope) ([]retrieval.Document, error) {
	dir := filepath.Join(s.root, scope.CourseID)
	if scope.BookID != "" {
		dir = filepath.Join(dir, scope.BookID)
	}

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("library: stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("library: %s is not a directory", dir)
	}

	var docs []retrieval.Document
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".txt") {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		docs = append(docs, &fileDocument{
			path:    path,
			name:    d.Name(),
			modTime: fi.ModTime(),
			size:    fi.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("library: walk %s: %w", dir, err)
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Path() < docs[j].Path() })
	return docs, nil
}
