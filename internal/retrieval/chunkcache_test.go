package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func scopeDocs(n int) []Document {
	docs := make([]Document, 0, n)
	for i := 0; i < n; i++ {
		docs = append(docs, newFakeDoc(
			fmt.Sprintf("materials/doc-%d.txt", i),
			fmt.Sprintf("Document %d explains the chain rule in detail. ", i),
			baseTime,
		))
	}
	return docs
}

func totalReads(docs []Document) int64 {
	var n int64
	for _, d := range docs {
		n += d.(*fakeDoc).reads.Load()
	}
	return n
}

// GetOrBuild twice with an unchanged document set performs exactly one
// rebuild; the second call is a pure cache hit.
func Test_ChunkCache_SecondCallIsPureHit(t *testing.T) {
	t.Parallel()
	cache := NewChunkCache(nil, ChunkCacheConfig{}, nil, nil)
	scope := Scope{CourseID: "course-1"}
	docs := scopeDocs(3)

	first, err := cache.GetOrBuild(context.Background(), scope, docs)
	if err != nil {
		t.Fatalf("first GetOrBuild: %v", err)
	}
	if got := totalReads(docs); got != 3 {
		t.Fatalf("first build read %d documents, want 3", got)
	}

	second, err := cache.GetOrBuild(context.Background(), scope, docs)
	if err != nil {
		t.Fatalf("second GetOrBuild: %v", err)
	}
	if got := totalReads(docs); got != 3 {
		t.Errorf("cache hit re-read documents: %d total reads, want 3", got)
	}
	if first != second {
		t.Errorf("cache hit returned a different ChunkSet pointer")
	}
}

func Test_ChunkCache_RebuildOnDocumentChange(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		mutate func(docs []Document) []Document
	}{
		{"mtime changed", func(docs []Document) []Document {
			docs[0].(*fakeDoc).mtime = baseTime.Add(time.Hour)
			return docs
		}},
		{"size changed", func(docs []Document) []Document {
			docs[0].(*fakeDoc).size += 10
			return docs
		}},
		{"document added", func(docs []Document) []Document {
			return append(docs, newFakeDoc("materials/new.txt", "Fresh content.", baseTime))
		}},
		{"document removed", func(docs []Document) []Document {
			return docs[:len(docs)-1]
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cache := NewChunkCache(nil, ChunkCacheConfig{}, nil, nil)
			scope := Scope{CourseID: "course-1"}
			docs := scopeDocs(2)

			if _, err := cache.GetOrBuild(context.Background(), scope, docs); err != nil {
				t.Fatalf("initial build: %v", err)
			}

			changed := tc.mutate(docs)
			before := totalReads(changed)
			if _, err := cache.GetOrBuild(context.Background(), scope, changed); err != nil {
				t.Fatalf("rebuild: %v", err)
			}
			if totalReads(changed) <= before {
				t.Errorf("%s did not force a rebuild", tc.name)
			}
		})
	}
}

func Test_ChunkCache_LRUEviction(t *testing.T) {
	t.Parallel()
	cache := NewChunkCache(nil, ChunkCacheConfig{MaxScopes: 2}, nil, nil)

	for i := 0; i < 3; i++ {
		scope := Scope{CourseID: fmt.Sprintf("course-%d", i)}
		if _, err := cache.GetOrBuild(context.Background(), scope, scopeDocs(1)); err != nil {
			t.Fatalf("build scope %d: %v", i, err)
		}
		// Distinct UpdatedAt ordering.
		time.Sleep(2 * time.Millisecond)
	}

	if got := cache.Len(); got != 2 {
		t.Errorf("cache holds %d scopes, want 2", got)
	}

	// The first scope was evicted: querying it again rebuilds.
	docs := scopeDocs(1)
	if _, err := cache.GetOrBuild(context.Background(), Scope{CourseID: "course-0"}, docs); err != nil {
		t.Fatalf("rebuild of evicted scope: %v", err)
	}
	if got := totalReads(docs); got != 1 {
		t.Errorf("evicted scope should rebuild, got %d reads", got)
	}
}

// Build mutexes share their entry's lifecycle: eviction and invalidation
// must release them, or a long-lived process touching many scopes leaks one
// mutex per scope key forever.
func Test_ChunkCache_BuildMutexesPruned(t *testing.T) {
	t.Parallel()
	cache := NewChunkCache(nil, ChunkCacheConfig{MaxScopes: 2}, nil, nil)

	for i := 0; i < 5; i++ {
		scope := Scope{CourseID: fmt.Sprintf("course-%d", i)}
		if _, err := cache.GetOrBuild(context.Background(), scope, scopeDocs(1)); err != nil {
			t.Fatalf("build scope %d: %v", i, err)
		}
		// Distinct UpdatedAt ordering.
		time.Sleep(2 * time.Millisecond)
	}

	cache.mu.Lock()
	held := len(cache.builds)
	cache.mu.Unlock()
	if held > 2 {
		t.Errorf("builds map holds %d mutexes, want at most 2", held)
	}

	cache.Invalidate(Scope{CourseID: "course-4"})
	cache.mu.Lock()
	defer cache.mu.Unlock()
	if _, ok := cache.builds[Scope{CourseID: "course-4"}.Key()]; ok {
		t.Errorf("invalidation left the scope's build mutex behind")
	}
}

func Test_ChunkCache_EmbedsWhenEncoderAvailable(t *testing.T) {
	t.Parallel()
	enc := &fakeEncoder{}
	cache := NewChunkCache(enc, ChunkCacheConfig{}, nil, nil)

	set, err := cache.GetOrBuild(context.Background(), Scope{CourseID: "c"}, scopeDocs(2))
	if err != nil {
		t.Fatalf("GetOrBuild: %v", err)
	}
	if !set.HasEmbeddings() {
		t.Fatalf("want embeddings, got fallback mode")
	}
	if len(set.Embeddings) != len(set.Chunks) {
		t.Errorf("embeddings not parallel to chunks: %d vs %d", len(set.Embeddings), len(set.Chunks))
	}
	if got := enc.calls.Load(); got != 1 {
		t.Errorf("want a single batched encode call, got %d", got)
	}
}

// An embed failure degrades the scope to lexical fallback mode; GetOrBuild
// still succeeds and the set is cached without embeddings.
func Test_ChunkCache_EmbedFailureFallsBack(t *testing.T) {
	t.Parallel()
	enc := &fakeEncoder{fail: errors.New("model unreachable")}
	cache := NewChunkCache(enc, ChunkCacheConfig{}, nil, nil)
	scope := Scope{CourseID: "c"}
	docs := scopeDocs(2)

	set, err := cache.GetOrBuild(context.Background(), scope, docs)
	if err != nil {
		t.Fatalf("GetOrBuild: %v", err)
	}
	if set.HasEmbeddings() {
		t.Errorf("embed failure should store the set without embeddings")
	}
	if len(set.Chunks) == 0 {
		t.Errorf("fallback set should still carry chunks")
	}

	// The degraded set is cached — no rebuild on the next call.
	if _, err := cache.GetOrBuild(context.Background(), scope, docs); err != nil {
		t.Fatalf("second GetOrBuild: %v", err)
	}
	if got := enc.calls.Load(); got != 1 {
		t.Errorf("degraded set should be cached, got %d encode calls", got)
	}
}

func Test_ChunkCache_SkipsUnreadableDocuments(t *testing.T) {
	t.Parallel()
	cache := NewChunkCache(nil, ChunkCacheConfig{}, nil, nil)
	good := newFakeDoc("ok.txt", "Readable content about derivatives.", baseTime)
	bad := newFakeDoc("gone.txt", "", baseTime)
	bad.err = errReadFailed

	set, err := cache.GetOrBuild(context.Background(), Scope{CourseID: "c"}, []Document{good, bad})
	if err != nil {
		t.Fatalf("GetOrBuild: %v", err)
	}
	if len(set.Chunks) != 1 {
		t.Fatalf("want 1 chunk from the readable document, got %d", len(set.Chunks))
	}
	if set.Chunks[0].SourcePath != "ok.txt" {
		t.Errorf("chunk came from %q, want ok.txt", set.Chunks[0].SourcePath)
	}
}

func Test_ChunkCache_ChunkBudget(t *testing.T) {
	t.Parallel()
	cache := NewChunkCache(nil, ChunkCacheConfig{MaxChunksPerScope: 3, TargetSize: 50, OverlapRatio: 0.2}, nil, nil)

	long := strings.Repeat("Sentences for chunking purposes. ", 40)
	docs := []Document{
		newFakeDoc("a.txt", long, baseTime),
		newFakeDoc("b.txt", long, baseTime),
	}

	set, err := cache.GetOrBuild(context.Background(), Scope{CourseID: "c"}, docs)
	if err != nil {
		t.Fatalf("GetOrBuild: %v", err)
	}
	if len(set.Chunks) != 3 {
		t.Errorf("chunk budget not enforced: got %d chunks, want 3", len(set.Chunks))
	}
}

// Concurrent misses on the same scope trigger at most one rebuild; the rest
// wait and read the freshly built entry.
func Test_ChunkCache_ConcurrentMissesSingleRebuild(t *testing.T) {
	t.Parallel()
	enc := &fakeEncoder{delay: 20 * time.Millisecond}
	cache := NewChunkCache(enc, ChunkCacheConfig{}, nil, nil)
	scope := Scope{CourseID: "busy-course"}
	docs := scopeDocs(2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.GetOrBuild(context.Background(), scope, docs); err != nil {
				t.Errorf("GetOrBuild: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := enc.calls.Load(); got != 1 {
		t.Errorf("concurrent misses caused %d rebuilds, want 1", got)
	}
}

func Test_ChunkCache_CancellationWritesNothing(t *testing.T) {
	t.Parallel()
	cache := NewChunkCache(nil, ChunkCacheConfig{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cache.GetOrBuild(ctx, Scope{CourseID: "c"}, scopeDocs(1))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if got := cache.Len(); got != 0 {
		t.Errorf("cancelled build wrote %d entries, want 0", got)
	}
}

func Test_ChunkCache_InvalidateScope(t *testing.T) {
	t.Parallel()
	cache := NewChunkCache(nil, ChunkCacheConfig{}, nil, nil)

	scopes := []Scope{
		{CourseID: "course-1"},
		{CourseID: "course-1", BookID: "book-9"},
		{CourseID: "course-2"},
	}
	for _, s := range scopes {
		if _, err := cache.GetOrBuild(context.Background(), s, scopeDocs(1)); err != nil {
			t.Fatalf("build %s: %v", s, err)
		}
	}

	cache.Invalidate(Scope{CourseID: "course-1"})
	if got := cache.Len(); got != 1 {
		t.Errorf("course invalidation left %d entries, want 1 (course-2)", got)
	}
}
