package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xxxsen/ragsearch/internal/embedding"
	"github.com/xxxsen/ragsearch/internal/model"
	appErr "github.com/xxxsen/ragsearch/internal/pkg/errors"
	"github.com/xxxsen/ragsearch/internal/source"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	dim   int
	calls int
	err   error
}

func (f *fakeEmbedder) vector(text string) []float32 {
	v := make([]float32, f.dim)
	v[len(text)%f.dim] = 1
	return v
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vector(text), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) (*embedding.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := embedding.NewBatch(len(texts))
	for i, text := range texts {
		if f.err != nil {
			out.Vectors[i] = embedding.ZeroVector(f.dim)
			out.Failures[i] = f.err
			continue
		}
		out.Vectors[i] = f.vector(text)
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int    { return f.dim }
func (f *fakeEmbedder) ModelName() string { return "fake-embed" }

type searchCall struct {
	text   string
	limit  int
	weight float64
}

type fakeSearcher struct {
	semantic []searchCall
	hybrid   []searchCall
	err      error
}

func (f *fakeSearcher) MatchChunks(ctx context.Context, vec []float32, limit int) ([]model.SearchResult, error) {
	f.semantic = append(f.semantic, searchCall{limit: limit})
	if f.err != nil {
		return nil, f.err
	}
	return []model.SearchResult{{ChunkID: "c1", DocumentID: "d1", Content: "chunk", Similarity: 0.9}}, nil
}

func (f *fakeSearcher) HybridSearch(ctx context.Context, vec []float32, text string, limit int, weight float64) ([]model.HybridResult, error) {
	f.hybrid = append(f.hybrid, searchCall{text: text, limit: limit, weight: weight})
	if f.err != nil {
		return nil, f.err
	}
	return nil, nil
}

type fakeSource struct {
	files   map[string]string
	readErr map[string]error
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) List(ctx context.Context) ([]source.File, error) {
	paths := make([]string, 0, len(f.files))
	for p := range f.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	out := make([]source.File, 0, len(paths))
	for _, p := range paths {
		out = append(out, source.File{Path: p, Size: int64(len(f.files[p]))})
	}
	return out, nil
}

func (f *fakeSource) Read(ctx context.Context, path string) ([]byte, error) {
	if err := f.readErr[path]; err != nil {
		return nil, err
	}
	content, ok := f.files[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, appErr.ErrNotFound)
	}
	return []byte(content), nil
}

type storedDocument struct {
	doc    *model.Document
	chunks []*model.Chunk
}

type fakeStore struct {
	docs    map[string]storedDocument
	saves   int
	cleaned int
	saveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string]storedDocument{}}
}

func (f *fakeStore) Save(ctx context.Context, doc *model.Document, chunks []*model.Chunk) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	f.saves++
	doc.ID = fmt.Sprintf("doc-%d", f.saves)
	f.docs[doc.Source] = storedDocument{doc: doc, chunks: chunks}
	return doc.ID, nil
}

func (f *fakeStore) FindBySource(ctx context.Context, src string) (*model.Document, error) {
	d, ok := f.docs[src]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return d.doc, nil
}

func (f *fakeStore) DeleteAll(ctx context.Context) (int64, error) {
	n := int64(len(f.docs))
	f.docs = map[string]storedDocument{}
	f.cleaned++
	return n, nil
}
