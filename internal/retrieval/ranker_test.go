package retrieval

import (
	"testing"
)

// chunkSet builds a ChunkSet with sequential indices from the given texts.
func chunkSet(texts ...string) *ChunkSet {
	set := &ChunkSet{}
	for i, text := range texts {
		set.Chunks = append(set.Chunks, Chunk{
			Text:       text,
			Index:      i,
			SourceName: "calculus.txt",
		})
	}
	return set
}

func Test_Lexical_ScoresByTokenOverlap(t *testing.T) {
	t.Parallel()
	set := chunkSet(
		"gradient descent minimizes the loss function step by step",
		"the fundamental theorem of algebra concerns polynomial roots",
		"stochastic gradient descent uses one sample per update",
	)

	results := Lexical("gradient descent", set, 3)
	if len(results) != 3 {
		t.Fatalf("want 3 results, got %d", len(results))
	}
	if results[0].Chunk.Index == 1 {
		t.Errorf("the unrelated chunk ranked first")
	}
	if results[2].Chunk.Index != 1 {
		t.Errorf("the unrelated chunk should rank last, got index %d", results[2].Chunk.Index)
	}
	if results[0].Score < results[1].Score || results[1].Score < results[2].Score {
		t.Errorf("scores not in descending order: %v, %v, %v",
			results[0].Score, results[1].Score, results[2].Score)
	}
}

// Rank must return the same ordered result on every run, including stable
// tie-breaking by ascending chunk index.
func Test_Lexical_Deterministic(t *testing.T) {
	t.Parallel()
	// Two identical chunks tie exactly; the lower index must come first.
	set := chunkSet(
		"the chain rule composes derivatives",
		"matrix multiplication is associative",
		"the chain rule composes derivatives",
		"eigenvalues characterize linear maps",
		"derivatives measure change",
	)

	first := Lexical("chain rule derivatives", set, 3)
	for run := 0; run < 10; run++ {
		again := Lexical("chain rule derivatives", set, 3)
		if len(again) != len(first) {
			t.Fatalf("run %d: length changed: %d vs %d", run, len(again), len(first))
		}
		for i := range first {
			if again[i].Chunk.Index != first[i].Chunk.Index || again[i].Score != first[i].Score {
				t.Fatalf("run %d: result %d differs", run, i)
			}
		}
	}

	if first[0].Chunk.Index != 0 || first[1].Chunk.Index != 2 {
		t.Errorf("tied chunks not ordered by ascending index: got %d, %d",
			first[0].Chunk.Index, first[1].Chunk.Index)
	}
}

// Chunk indices restart per document, so tied chunks from different
// documents must fall back to the source path for a total order.
func Test_Lexical_TieBreakAcrossDocuments(t *testing.T) {
	t.Parallel()
	set := &ChunkSet{}
	for _, path := range []string{"materials/b.txt", "materials/a.txt"} {
		for i := 0; i < 2; i++ {
			set.Chunks = append(set.Chunks, Chunk{
				Text:       "the chain rule composes derivatives",
				Index:      i,
				SourceName: path,
				SourcePath: path,
			})
		}
	}

	results := Lexical("chain rule", set, 4)
	if len(results) != 4 {
		t.Fatalf("want 4 results, got %d", len(results))
	}
	wantPaths := []string{"materials/a.txt", "materials/a.txt", "materials/b.txt", "materials/b.txt"}
	wantIndices := []int{0, 1, 0, 1}
	for i := range results {
		if results[i].Chunk.SourcePath != wantPaths[i] || results[i].Chunk.Index != wantIndices[i] {
			t.Errorf("position %d: got %s#%d, want %s#%d", i,
				results[i].Chunk.SourcePath, results[i].Chunk.Index, wantPaths[i], wantIndices[i])
		}
	}
}

func Test_Lexical_EmptySet(t *testing.T) {
	t.Parallel()
	if got := Lexical("anything", &ChunkSet{}, 5); len(got) != 0 {
		t.Errorf("want empty result for empty set, got %d", len(got))
	}
	if got := Lexical("anything", nil, 5); got != nil {
		t.Errorf("want nil for nil set, got %v", got)
	}
}

func Test_Lexical_NoTokenOverlap(t *testing.T) {
	t.Parallel()
	set := chunkSet("completely unrelated material")
	results := Lexical("quantum chromodynamics", set, 1)
	if len(results) != 1 {
		t.Fatalf("want 1 result, got %d", len(results))
	}
	if results[0].Score != 0 {
		t.Errorf("disjoint vocabularies should score 0, got %v", results[0].Score)
	}
}

func Test_Lexical_UnicodeTokens(t *testing.T) {
	t.Parallel()
	set := chunkSet(
		"η παράγωγος μετρά τον ρυθμό μεταβολής",
		"completely irrelevant text in english",
	)
	results := Lexical("παράγωγος", set, 2)
	if results[0].Chunk.Index != 0 {
		t.Errorf("Greek query should match the Greek chunk first")
	}
	if results[0].Score <= 0 {
		t.Errorf("want positive score for matching Greek token, got %v", results[0].Score)
	}
}

func Test_Embedding_RanksByCosine(t *testing.T) {
	t.Parallel()
	set := chunkSet("a", "b", "c")
	set.Embeddings = [][]float32{
		{1, 0, 0},
		{0.6, 0.8, 0},
		{0, 1, 0},
	}

	results := Embedding([]float32{0, 1, 0}, set, 3)
	if len(results) != 3 {
		t.Fatalf("want 3 results, got %d", len(results))
	}
	wantOrder := []int{2, 1, 0}
	for i, want := range wantOrder {
		if results[i].Chunk.Index != want {
			t.Errorf("position %d: got chunk %d, want %d", i, results[i].Chunk.Index, want)
		}
	}
	if results[0].Score < 0.999 {
		t.Errorf("identical vectors should score ~1.0, got %v", results[0].Score)
	}
}

func Test_Embedding_TieBreakByIndex(t *testing.T) {
	t.Parallel()
	set := chunkSet("a", "b", "c")
	set.Embeddings = [][]float32{
		{0, 1},
		{1, 0},
		{0, 1},
	}

	results := Embedding([]float32{0, 1}, set, 2)
	if results[0].Chunk.Index != 0 || results[1].Chunk.Index != 2 {
		t.Errorf("tied embeddings not ordered by ascending index: got %d, %d",
			results[0].Chunk.Index, results[1].Chunk.Index)
	}
}

// A set without embeddings must never be scored by the embedding strategy —
// the two strategies are selected by the caller, never mixed.
func Test_Embedding_RefusesSetWithoutEmbeddings(t *testing.T) {
	t.Parallel()
	set := chunkSet("a", "b")
	if got := Embedding([]float32{1, 0}, set, 2); got != nil {
		t.Errorf("want nil for set without embeddings, got %d results", len(got))
	}
}

func Test_Embedding_ZeroAndMismatchedVectors(t *testing.T) {
	t.Parallel()
	set := chunkSet("a", "b")
	set.Embeddings = [][]float32{
		{0, 0, 0}, // zero vector
		{1, 0},    // dimension mismatch with the query
	}

	results := Embedding([]float32{1, 0, 0}, set, 2)
	for _, r := range results {
		if r.Score != 0 {
			t.Errorf("chunk %d: degenerate vector should score 0, got %v", r.Chunk.Index, r.Score)
		}
	}
}

func Test_TopK_TruncatesAndKeepsAllWhenSmall(t *testing.T) {
	t.Parallel()
	set := chunkSet(
		"gradient one", "gradient two", "gradient three",
		"gradient four", "gradient five",
	)

	if got := Lexical("gradient", set, 3); len(got) != 3 {
		t.Errorf("k=3 over 5 chunks: want 3 results, got %d", len(got))
	}
	if got := Lexical("gradient", set, 10); len(got) != 5 {
		t.Errorf("k=10 over 5 chunks: want 5 results, got %d", len(got))
	}
	if got := Lexical("gradient", set, 0); len(got) != 5 {
		t.Errorf("k=0 means no truncation: want 5 results, got %d", len(got))
	}
}
