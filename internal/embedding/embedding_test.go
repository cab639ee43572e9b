package embedding

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
	"github.com/xxxsen/ragsearch/internal/ai"
	"github.com/xxxsen/ragsearch/internal/model"
	pkgerrors "github.com/xxxsen/ragsearch/internal/pkg/errors"
)

type fakeProvider struct {
	mu    sync.Mutex
	dim   int
	calls [][]string
	fail  func(call int, texts []string) error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), texts...))
	n := len(f.calls)
	f.mu.Unlock()
	if f.fail != nil {
		if err := f.fail(n, texts); err != nil {
			return nil, err
		}
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		v := make([]float32, f.dim)
		v[0] = float32(len(text))
		v[1] = 1
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func statusErr(code int) error {
	return &ai.ProviderError{Provider: "fake", StatusCode: code, Err: errors.New(http.StatusText(code))}
}

func newTestGenerator(t *testing.T, p *fakeProvider, mutate ...func(*Config)) *Generator {
	t.Helper()
	cfg := Config{
		Model:      "test-model",
		Dimension:  p.dim,
		BatchSize:  100,
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	g, err := NewGenerator(p, cfg)
	require.NoError(t, err)
	return g
}

func TestNewGeneratorResolvesModel(t *testing.T) {
	p := &fakeProvider{dim: 4}
	g, err := NewGenerator(p, Config{Model: "text-embedding-3-large"})
	require.NoError(t, err)
	require.Equal(t, 3072, g.Dimension())
	require.Equal(t, "text-embedding-3-large", g.ModelName())

	_, err = NewGenerator(p, Config{Model: "custom"})
	require.ErrorIs(t, err, pkgerrors.ErrInvalidConfig)
	_, err = NewGenerator(nil, Config{Model: "text-embedding-3-small"})
	require.ErrorIs(t, err, pkgerrors.ErrInvalidConfig)
}

func TestBatchFallbackSubstitutesZeroVector(t *testing.T) {
	p := &fakeProvider{dim: 4, fail: func(call int, texts []string) error {
		if call == 1 || call == 3 {
			return statusErr(http.StatusBadRequest)
		}
		return nil
	}}
	g := newTestGenerator(t, p)
	batch, err := g.EmbedBatch(context.Background(), []string{"one", "two!", "three"})
	require.NoError(t, err)
	require.Len(t, batch.Vectors, 3)
	require.Equal(t, 4, p.callCount())

	require.Equal(t, []float32{3, 1, 0, 0}, batch.Vectors[0])
	require.Equal(t, []float32{0, 0, 0, 0}, batch.Vectors[1])
	require.Equal(t, []float32{5, 1, 0, 0}, batch.Vectors[2])
	require.Len(t, batch.Failures, 1)
	require.Contains(t, batch.Failures, 1)
}

func TestTransientErrorsAreRetried(t *testing.T) {
	p := &fakeProvider{dim: 4, fail: func(call int, texts []string) error {
		if call <= 2 {
			return statusErr(http.StatusTooManyRequests)
		}
		return nil
	}}
	g := newTestGenerator(t, p)
	v, err := g.Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, float32(5), v[0])
	require.Equal(t, 3, p.callCount())
}

func TestRetriesExhausted(t *testing.T) {
	p := &fakeProvider{dim: 4, fail: func(int, []string) error { return statusErr(http.StatusServiceUnavailable) }}
	g := newTestGenerator(t, p)
	_, err := g.Embed(context.Background(), "hello")
	require.Error(t, err)
	require.Equal(t, 3, p.callCount())
	var pe *ai.ProviderError
	require.True(t, errors.As(err, &pe))
	require.Equal(t, http.StatusServiceUnavailable, pe.StatusCode)
}

func TestPermanentErrorNotRetried(t *testing.T) {
	p := &fakeProvider{dim: 4, fail: func(int, []string) error { return statusErr(http.StatusUnauthorized) }}
	g := newTestGenerator(t, p)
	_, err := g.Embed(context.Background(), "hello")
	require.Error(t, err)
	require.Equal(t, 1, p.callCount())
}

func TestDimensionMismatchIsError(t *testing.T) {
	p := &fakeProvider{dim: 3}
	g := newTestGenerator(t, p, func(c *Config) { c.Dimension = 4 })
	_, err := g.Embed(context.Background(), "hello")
	require.Error(t, err)
	require.Equal(t, 1, p.callCount())

	batch, err := g.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, batch.Failures, 2)
	for _, v := range batch.Vectors {
		require.Len(t, v, 4)
	}
}

func TestCancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := &fakeProvider{dim: 4, fail: func(int, []string) error {
		cancel()
		return statusErr(http.StatusTooManyRequests)
	}}
	g := newTestGenerator(t, p, func(c *Config) { c.BaseDelay = time.Hour })

	start := time.Now()
	_, err := g.Embed(ctx, "hello")
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), time.Minute)

	batch, err := g.EmbedBatch(ctx, []string{"a"})
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, batch)
}

func TestTruncation(t *testing.T) {
	p := &fakeProvider{dim: 4}
	g := newTestGenerator(t, p, func(c *Config) { c.MaxTokens = 5 })
	_, err := g.Embed(context.Background(), strings.Repeat("x", 100))
	require.NoError(t, err)
	require.Len(t, p.calls[0][0], 20)

	_, err = g.Embed(context.Background(), "a"+strings.Repeat("é", 30))
	require.NoError(t, err)
	sent := p.calls[1][0]
	require.True(t, utf8.ValidString(sent))
	require.Equal(t, 19, len(sent))
}

func TestBatchSizeAndOrder(t *testing.T) {
	p := &fakeProvider{dim: 4}
	g := newTestGenerator(t, p, func(c *Config) { c.BatchSize = 2 })
	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	batch, err := g.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Equal(t, 3, p.callCount())
	require.Len(t, p.calls[2], 1)
	for i, v := range batch.Vectors {
		require.Equal(t, float32(len(texts[i])), v[0])
	}
}

func TestBlankTextsShortCircuit(t *testing.T) {
	p := &fakeProvider{dim: 4}
	g := newTestGenerator(t, p)
	batch, err := g.EmbedBatch(context.Background(), []string{"", "abc", "  "})
	require.NoError(t, err)
	require.Equal(t, 1, p.callCount())
	require.Equal(t, []string{"abc"}, p.calls[0])
	require.Equal(t, ZeroVector(4), batch.Vectors[0])
	require.Equal(t, ZeroVector(4), batch.Vectors[2])
	require.Empty(t, batch.Failures)
}

func TestEmbedChunks(t *testing.T) {
	p := &fakeProvider{dim: 4, fail: func(call int, texts []string) error {
		for _, text := range texts {
			if text == "bad" {
				return statusErr(http.StatusBadRequest)
			}
		}
		return nil
	}}
	g := newTestGenerator(t, p)
	chunks := []*model.Chunk{
		{Content: "good", Index: 0},
		{Content: "bad", Index: 1, Metadata: map[string]interface{}{"k": "v"}},
		{Content: "fine", Index: 2},
	}
	var progress [][2]int
	err := EmbedChunks(context.Background(), g, chunks, 2, func(done, total int) {
		progress = append(progress, [2]int{done, total})
	})
	require.NoError(t, err)
	require.Equal(t, [][2]int{{2, 3}, {3, 3}}, progress)
	for _, ch := range chunks {
		require.True(t, ch.Embedded())
		require.Len(t, ch.Embedding, 4)
		require.Equal(t, "test-model", ch.Metadata["embedding_model"])
		require.NotEmpty(t, ch.Metadata["embedding_generated_at"])
	}
	require.NotContains(t, chunks[0].Metadata, "embedding_error")
	require.Contains(t, chunks[1].Metadata, "embedding_error")
	require.Equal(t, "v", chunks[1].Metadata["k"])
	require.Equal(t, ZeroVector(4), chunks[1].Embedding)
}
