package embedcache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xxxsen/ragsearch/internal/embedding"
	"github.com/xxxsen/ragsearch/internal/model"
)

type countingEmbedder struct {
	mu    sync.Mutex
	texts []string
	fail  map[string]bool
}

func (c *countingEmbedder) vector(text string) []float32 {
	return []float32{float32(len(text)), 1}
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	if c.fail[text] {
		return nil, errors.New("provider down")
	}
	return c.vector(text), nil
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) (*embedding.Batch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := embedding.NewBatch(len(texts))
	for i, text := range texts {
		c.texts = append(c.texts, text)
		if c.fail[text] {
			out.Vectors[i] = embedding.ZeroVector(2)
			out.Failures[i] = errors.New("provider down")
			continue
		}
		out.Vectors[i] = c.vector(text)
	}
	return out, nil
}

func (c *countingEmbedder) Dimension() int    { return 2 }
func (c *countingEmbedder) ModelName() string { return "m" }

type memStore struct {
	mu    sync.Mutex
	items map[string][]float32
	err   error
}

func (m *memStore) GetMany(ctx context.Context, modelName string, hashes []string) (map[string][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := map[string][]float32{}
	for _, h := range hashes {
		if v, ok := m.items[h]; ok {
			out[h] = v
		}
	}
	return out, nil
}

func (m *memStore) SaveMany(ctx context.Context, items []*model.EmbeddingCache) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for _, item := range items {
		m.items[item.ContentHash] = item.Embedding
	}
	return nil
}

func TestLRUHitBypassesProvider(t *testing.T) {
	inner := &countingEmbedder{}
	e := WrapLRU(inner, 10, 0)
	ctx := context.Background()

	v1, err := e.Embed(ctx, "hello")
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "hello")
	require.NoError(t, err)
	require.Equal(t, v1, v2)
	require.Equal(t, []string{"hello"}, inner.texts)

	batch, err := e.EmbedBatch(ctx, []string{"hello", "world"})
	require.NoError(t, err)
	require.Equal(t, []string{"hello", "world"}, inner.texts)
	require.Equal(t, []float32{5, 1}, batch.Vectors[0])
	require.Equal(t, []float32{5, 1}, batch.Vectors[1])
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	inner := &countingEmbedder{}
	e := WrapLRU(inner, 2, 0)
	ctx := context.Background()
	for _, text := range []string{"a", "b", "a", "c", "b"} {
		_, err := e.Embed(ctx, text)
		require.NoError(t, err)
	}
	// b was evicted by c because a was used more recently
	require.Equal(t, []string{"a", "b", "c", "b"}, inner.texts)
	require.Equal(t, 2, e.(*lruEmbedder).Len())
}

func TestLRUDoesNotCacheFailures(t *testing.T) {
	inner := &countingEmbedder{fail: map[string]bool{"bad": true}}
	e := WrapLRU(inner, 10, 0)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		batch, err := e.EmbedBatch(ctx, []string{"bad"})
		require.NoError(t, err)
		require.Contains(t, batch.Failures, 0)
	}
	require.Equal(t, []string{"bad", "bad"}, inner.texts)
}

func TestLRUConcurrentAccess(t *testing.T) {
	inner := &countingEmbedder{}
	// smaller than the text set so lookups race with evictions
	e := WrapLRU(inner, 8, 0)
	texts := make([]string, 32)
	for i := range texts {
		texts[i] = strings.Repeat("x", i+1)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for round := 0; round < 50; round++ {
				part := make([]string, 0, 4)
				for k := 0; k < 4; k++ {
					part = append(part, texts[(g*7+round*3+k)%len(texts)])
				}
				batch, err := e.EmbedBatch(context.Background(), part)
				if err != nil {
					errs <- err
					return
				}
				for i, text := range part {
					want := []float32{float32(len(text)), 1}
					if got := batch.Vectors[i]; len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
						errs <- fmt.Errorf("text %q: got %v want %v", text, got, want)
						return
					}
					// callers own the returned vectors
					batch.Vectors[i][0] = -1
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.LessOrEqual(t, e.(*lruEmbedder).Len(), 8)
	for _, text := range texts {
		v, err := e.Embed(context.Background(), text)
		require.NoError(t, err)
		require.Equal(t, []float32{float32(len(text)), 1}, v)
	}
}

func TestCacheKeyIncludesModel(t *testing.T) {
	require.NotEqual(t, contentHash("a", "text"), contentHash("b", "text"))
	require.Equal(t, contentHash("", "text"), contentHash("unknown", "text"))
}

func TestDBCacheRoundTrip(t *testing.T) {
	store := &memStore{items: map[string][]float32{}}
	inner := &countingEmbedder{fail: map[string]bool{"bad": true}}
	e := WrapDB(inner, store)
	ctx := context.Background()

	batch, err := e.EmbedBatch(ctx, []string{"one", "bad", "three"})
	require.NoError(t, err)
	require.Contains(t, batch.Failures, 1)
	require.Len(t, store.items, 2)

	batch, err = e.EmbedBatch(ctx, []string{"three", "one", "bad"})
	require.NoError(t, err)
	require.Equal(t, []float32{5, 1}, batch.Vectors[0])
	require.Equal(t, []float32{3, 1}, batch.Vectors[1])
	require.Contains(t, batch.Failures, 2)
	require.Equal(t, []string{"one", "bad", "three", "bad"}, inner.texts)
}

func TestDBCacheStoreErrorFallsThrough(t *testing.T) {
	store := &memStore{items: map[string][]float32{}, err: errors.New("db down")}
	inner := &countingEmbedder{}
	e := WrapDB(inner, store)
	v, err := e.Embed(context.Background(), "text")
	require.NoError(t, err)
	require.Equal(t, []float32{4, 1}, v)
}

func TestLayeredCache(t *testing.T) {
	store := &memStore{items: map[string][]float32{}}
	inner := &countingEmbedder{}
	e := WrapLRU(WrapDB(inner, store), 10, 0)
	ctx := context.Background()
	_, err := e.EmbedBatch(ctx, []string{"x"})
	require.NoError(t, err)

	fresh := WrapLRU(WrapDB(inner, store), 10, 0)
	_, err = fresh.EmbedBatch(ctx, []string{"x"})
	require.NoError(t, err)
	require.Equal(t, []string{"x"}, inner.texts)
	require.Equal(t, "m", fresh.ModelName())
	require.Equal(t, 2, fresh.Dimension())
}
