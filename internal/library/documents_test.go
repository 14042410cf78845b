package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pietrondo/tutor-rag/internal/retrieval"
)

// writeMaterial creates a material file under root at the given relative path.
func writeMaterial(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func Test_Documents_BookScopeListsOnlyBook(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeMaterial(t, root, "calc-101/stewart/ch01.txt", "limits")
	writeMaterial(t, root, "calc-101/stewart/ch02.txt", "derivatives")
	writeMaterial(t, root, "calc-101/spivak/ch01.txt", "construction of the reals")

	s := NewStore(root)
	docs, err := s.ListDocuments(context.Background(), retrieval.Scope{CourseID: "calc-101", BookID: "stewart"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("want 2 documents, got %d", len(docs))
	}
	// Sorted by path.
	if docs[0].Name() != "ch01.txt" || docs[1].Name() != "ch02.txt" {
		t.Errorf("unexpected order: %s, %s", docs[0].Name(), docs[1].Name())
	}
}

func Test_Documents_CourseScopeListsAllBooks(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeMaterial(t, root, "calc-101/stewart/ch01.txt", "limits")
	writeMaterial(t, root, "calc-101/spivak/ch01.txt", "reals")
	writeMaterial(t, root, "calc-101/syllabus.txt", "course outline")
	writeMaterial(t, root, "bio-201/campbell/ch01.txt", "cells")

	s := NewStore(root)
	docs, err := s.ListDocuments(context.Background(), retrieval.Scope{CourseID: "calc-101"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("want 3 documents, got %d", len(docs))
	}
}

func Test_Documents_NonTxtIgnored(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeMaterial(t, root, "calc-101/stewart/ch01.txt", "limits")
	writeMaterial(t, root, "calc-101/stewart/ch01.pdf", "%PDF-1.7")
	writeMaterial(t, root, "calc-101/stewart/notes.md", "# notes")

	s := NewStore(root)
	docs, err := s.ListDocuments(context.Background(), retrieval.Scope{CourseID: "calc-101", BookID: "stewart"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 1 || docs[0].Name() != "ch01.txt" {
		t.Errorf("want only ch01.txt, got %d documents", len(docs))
	}
}

func Test_Documents_MissingScopeIsEmpty(t *testing.T) {
	t.Parallel()
	s := NewStore(t.TempDir())

	docs, err := s.ListDocuments(context.Background(), retrieval.Scope{CourseID: "nope"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("want empty listing, got %d documents", len(docs))
	}
}

func Test_Documents_LazyTextAndMetadata(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeMaterial(t, root, "calc-101/stewart/ch01.txt", "A limit describes behavior near a point.")

	s := NewStore(root)
	docs, err := s.ListDocuments(context.Background(), retrieval.Scope{CourseID: "calc-101", BookID: "stewart"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("want 1 document, got %d", len(docs))
	}

	d := docs[0]
	if d.Size() != int64(len("A limit describes behavior near a point.")) {
		t.Errorf("size = %d", d.Size())
	}
	text, err := d.Text()
	if err != nil {
		t.Fatalf("text: %v", err)
	}
	if text != "A limit describes behavior near a point." {
		t.Errorf("text round-trip mismatch: %q", text)
	}

	// A document whose file vanished reports the read error to the caller.
	if err := os.Remove(d.Path()); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := d.Text(); err == nil {
		t.Error("expected read error after file removal, got nil")
	}
}
