package retrieval

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// fakeDoc is an in-memory Document with a read counter, used to verify how
// many times the chunk cache actually touched source text.
type fakeDoc struct {
	path  string
	name  string
	text  string
	mtime time.Time
	size  int64
	err   error
	reads *atomic.Int64
}

func newFakeDoc(path, text string, mtime time.Time) *fakeDoc {
	return &fakeDoc{
		path:  path,
		name:  path,
		text:  text,
		mtime: mtime,
		size:  int64(len(text)),
		reads: &atomic.Int64{},
	}
}

func (d *fakeDoc) Path() string       { return d.path }
func (d *fakeDoc) Name() string       { return d.name }
func (d *fakeDoc) ModTime() time.Time { return d.mtime }
func (d *fakeDoc) Size() int64        { return d.size }

func (d *fakeDoc) Text() (string, error) {
	d.reads.Add(1)
	if d.err != nil {
		return "", d.err
	}
	return d.text, nil
}

// fakeEncoder counts Encode calls and either fails or returns one vector per
// input derived from text length, so distinct texts get distinct embeddings.
type fakeEncoder struct {
	calls atomic.Int64
	fail  error
	delay time.Duration
	// vectors, when set, overrides the derived output for single-text calls.
	vectors map[string][]float32
}

func (e *fakeEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.fail != nil {
		return nil, e.fail
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := e.vectors[t]; ok {
			out[i] = v
			continue
		}
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

// fakeDocSource serves a fixed document slice per scope key.
type fakeDocSource struct {
	docs map[string][]Document
	err  error
}

func (s *fakeDocSource) ListDocuments(_ context.Context, scope Scope) ([]Document, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.docs[scope.Key()], nil
}

// fakeIndex is a scripted PrimaryIndex.
type fakeIndex struct {
	hits    []IndexHit
	err     error
	queries atomic.Int64
}

func (f *fakeIndex) Query(_ context.Context, _ []float32, _ Scope, _ int) ([]IndexHit, error) {
	f.queries.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

func (f *fakeIndex) Upsert(context.Context, []Chunk, [][]float32) error { return nil }

func (f *fakeIndex) DeleteScope(context.Context, Scope) error { return nil }

func (f *fakeIndex) Close() error { return nil }

// fakeAnnotations serves a fixed annotation slice for any user.
type fakeAnnotations struct {
	notes []Annotation
	err   error
}

func (f *fakeAnnotations) ListShareable(_ context.Context, _ string, _ Scope) ([]Annotation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.notes, nil
}

// errReadFailed is a reusable document read error.
var errReadFailed = fmt.Errorf("read failed: file vanished")
