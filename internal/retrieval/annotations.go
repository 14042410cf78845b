package retrieval

import (
	"fmt"
	"strings"
)

// MaxMergedAnnotations bounds how many personal notes are prepended to one
// retrieval result.
const MaxMergedAnnotations = 8

// MergeAnnotations prepends a user's shared personal notes to a retrieval
// result as high-priority synthetic passages. Notes always rank above
// retrieved document passages (relevance 1.0).
//
// Only annotations that are marked shareable and match the base scope
// qualify: book-specific notes surface only for that book, and course-wide
// notes surface only for course-wide queries.
//
// MergeAnnotations is a pure function — base is never mutated, because it
// may be a shared cached object.
func MergeAnnotations(base RetrievalContext, annotations []Annotation) RetrievalContext {
	out := base.Clone()

	var passages []string
	var refs []SourceRef
	for _, a := range annotations {
		if !annotationInScope(a, base.Scope) {
			continue
		}
		passages = append(passages, formatAnnotation(a))
		refs = append(refs, SourceRef{
			Source:         fmt.Sprintf("personal note (page %d)", a.Page),
			ChunkIndex:     0,
			RelevanceScore: 1.0,
			CourseID:       a.CourseID,
			BookID:         a.BookID,
			Type:           SourceTypeAnnotation,
		})
		if len(passages) == MaxMergedAnnotations {
			break
		}
	}
	if len(passages) == 0 {
		return out
	}

	noteText := strings.Join(passages, "\n\n")
	if out.Text == "" {
		out.Text = noteText
	} else {
		out.Text = noteText + "\n\n" + out.Text
	}
	out.Sources = append(refs, out.Sources...)

	return out
}

// annotationInScope reports whether the annotation qualifies for the scope:
// it must be shareable, belong to the same course, and match the book
// scoping rule.
func annotationInScope(a Annotation, scope Scope) bool {
	if !a.Shareable || a.CourseID != scope.CourseID {
		return false
	}
	if a.BookID != "" {
		return a.BookID == scope.BookID
	}
	return scope.BookID == ""
}

// formatAnnotation renders one note as a synthetic passage.
func formatAnnotation(a Annotation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Page %d: %s / Note: %s", a.Page, a.SelectedText, a.Content)
	if len(a.Tags) > 0 {
		fmt.Fprintf(&b, " / Tags: %s", strings.Join(a.Tags, ", "))
	}
	return b.String()
}
