package retrieval

import (
	"strings"
	"testing"
)

func shareableNote(course, book string, page int) Annotation {
	return Annotation{
		ID:           "note-1",
		UserID:       "student-7",
		CourseID:     course,
		BookID:       book,
		Page:         page,
		SelectedText: "the chain rule",
		Content:      "remember: outer derivative times inner derivative",
		Tags:         []string{"exam", "calculus"},
		Shareable:    true,
	}
}

func Test_MergeAnnotations_PrependsAheadOfDocuments(t *testing.T) {
	t.Parallel()
	base := sampleContext("course-1", "book-9")
	notes := []Annotation{shareableNote("course-1", "book-9", 42)}

	merged := MergeAnnotations(base, notes)

	if !strings.HasPrefix(merged.Text, "Page 42: the chain rule / Note: remember: outer derivative times inner derivative / Tags: exam, calculus") {
		t.Errorf("note passage not prepended, text starts with %q", merged.Text[:min(60, len(merged.Text))])
	}
	if !strings.Contains(merged.Text, base.Text) {
		t.Errorf("base text lost during merge")
	}

	if len(merged.Sources) != len(base.Sources)+1 {
		t.Fatalf("want %d sources, got %d", len(base.Sources)+1, len(merged.Sources))
	}
	first := merged.Sources[0]
	if first.Type != SourceTypeAnnotation {
		t.Errorf("first source type = %q, want %q", first.Type, SourceTypeAnnotation)
	}
	if first.RelevanceScore != 1.0 {
		t.Errorf("annotation relevance = %v, want 1.0", first.RelevanceScore)
	}
	if merged.Sources[1].Type != SourceTypeDocument {
		t.Errorf("document sources must follow annotation sources")
	}
}

// MergeAnnotations must never mutate its base — the base may be a shared
// cached object.
func Test_MergeAnnotations_PureFunction(t *testing.T) {
	t.Parallel()
	base := sampleContext("course-1", "")
	originalText := base.Text
	originalSource := base.Sources[0].Source

	_ = MergeAnnotations(base, []Annotation{shareableNote("course-1", "", 3)})

	if base.Text != originalText {
		t.Errorf("base text was mutated")
	}
	if len(base.Sources) != 1 || base.Sources[0].Source != originalSource {
		t.Errorf("base sources were mutated")
	}
}

// Re-reading the cache after merging a cached result must return the
// original, unmerged entry.
func Test_MergeAnnotations_CachedBaseUnchanged(t *testing.T) {
	t.Parallel()
	qc := NewQueryCache(0, nil)
	key := QueryKey("q", Scope{CourseID: "course-1"}, 5, "lexical")
	qc.Put(key, sampleContext("course-1", ""))

	cached, _ := qc.Get(key)
	_ = MergeAnnotations(cached, []Annotation{shareableNote("course-1", "", 3)})

	again, _ := qc.Get(key)
	if again.Text != sampleContext("course-1", "").Text {
		t.Errorf("cached entry text changed after merge")
	}
	if len(again.Sources) != 1 || again.Sources[0].Type != SourceTypeDocument {
		t.Errorf("cached entry sources changed after merge")
	}
}

func Test_MergeAnnotations_ScopeFiltering(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name      string
		baseScope Scope
		note      Annotation
		merged    bool
	}{
		{
			name:      "book note for matching book",
			baseScope: Scope{CourseID: "c1", BookID: "b1"},
			note:      shareableNote("c1", "b1", 1),
			merged:    true,
		},
		{
			name:      "book note for different book",
			baseScope: Scope{CourseID: "c1", BookID: "b2"},
			note:      shareableNote("c1", "b1", 1),
			merged:    false,
		},
		{
			name:      "course-wide note for unscoped query",
			baseScope: Scope{CourseID: "c1"},
			note:      shareableNote("c1", "", 1),
			merged:    true,
		},
		{
			name:      "course-wide note for book-scoped query",
			baseScope: Scope{CourseID: "c1", BookID: "b1"},
			note:      shareableNote("c1", "", 1),
			merged:    false,
		},
		{
			name:      "different course",
			baseScope: Scope{CourseID: "c1"},
			note:      shareableNote("c2", "", 1),
			merged:    false,
		},
		{
			name:      "not shareable",
			baseScope: Scope{CourseID: "c1"},
			note: func() Annotation {
				a := shareableNote("c1", "", 1)
				a.Shareable = false
				return a
			}(),
			merged: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			base := sampleContext(tc.baseScope.CourseID, tc.baseScope.BookID)
			merged := MergeAnnotations(base, []Annotation{tc.note})

			gotMerged := len(merged.Sources) > len(base.Sources)
			if gotMerged != tc.merged {
				t.Errorf("merged = %v, want %v", gotMerged, tc.merged)
			}
		})
	}
}

func Test_MergeAnnotations_BoundedCount(t *testing.T) {
	t.Parallel()
	base := sampleContext("c1", "")
	notes := make([]Annotation, 0, MaxMergedAnnotations+4)
	for i := 0; i < MaxMergedAnnotations+4; i++ {
		notes = append(notes, shareableNote("c1", "", i+1))
	}

	merged := MergeAnnotations(base, notes)
	annotationRefs := 0
	for _, s := range merged.Sources {
		if s.Type == SourceTypeAnnotation {
			annotationRefs++
		}
	}
	if annotationRefs != MaxMergedAnnotations {
		t.Errorf("merged %d annotations, want cap of %d", annotationRefs, MaxMergedAnnotations)
	}
}

func Test_MergeAnnotations_FormatsWithoutTags(t *testing.T) {
	t.Parallel()
	note := shareableNote("c1", "", 7)
	note.Tags = nil

	merged := MergeAnnotations(sampleContext("c1", ""), []Annotation{note})
	if strings.Contains(merged.Text, "Tags:") {
		t.Errorf("tagless note must omit the Tags segment")
	}
}

func Test_MergeAnnotations_EmptyBase(t *testing.T) {
	t.Parallel()
	base := RetrievalContext{Scope: Scope{CourseID: "c1"}, Message: MessageNoMaterials}
	merged := MergeAnnotations(base, []Annotation{shareableNote("c1", "", 2)})

	if merged.Text == "" {
		t.Errorf("note should populate the empty base text")
	}
	if strings.HasSuffix(merged.Text, "\n\n") || strings.HasPrefix(merged.Text, "\n\n") {
		t.Errorf("empty base left stray separators: %q", merged.Text)
	}
}
