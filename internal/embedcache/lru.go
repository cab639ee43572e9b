package embedcache

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/ragsearch/internal/embedding"
	"github.com/xxxsen/ragsearch/internal/metrics"
	"go.uber.org/zap"
)

// WrapLRU keeps up to size vectors in memory, evicting the least recently
// used. A ttl of zero keeps entries until they are evicted.
func WrapLRU(e embedding.Embedder, size int, ttl time.Duration) embedding.Embedder {
	if e == nil || size <= 0 {
		return e
	}
	return &lruEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type lruEmbedder struct {
	next  embedding.Embedder
	cache *expirable.LRU[string, []float32]
}

func (l *lruEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := contentHash(l.next.ModelName(), text)
	if cached, ok := l.cache.Get(key); ok {
		metrics.EmbeddingCache.WithLabelValues("lru", "hit").Inc()
		return cloneEmbedding(cached), nil
	}
	metrics.EmbeddingCache.WithLabelValues("lru", "miss").Inc()
	res, err := l.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) != "" {
		l.cache.Add(key, cloneEmbedding(res))
	}
	return res, nil
}

func (l *lruEmbedder) EmbedBatch(ctx context.Context, texts []string) (*embedding.Batch, error) {
	out := embedding.NewBatch(len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		keys[i] = contentHash(l.next.ModelName(), text)
		if cached, ok := l.cache.Get(keys[i]); ok {
			out.Vectors[i] = cloneEmbedding(cached)
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	hits := len(texts) - len(missIdx)
	metrics.EmbeddingCache.WithLabelValues("lru", "hit").Add(float64(hits))
	metrics.EmbeddingCache.WithLabelValues("lru", "miss").Add(float64(len(missIdx)))
	logutil.GetLogger(ctx).Debug("embedding lru lookup", zap.Int("hits", hits), zap.Int("misses", len(missIdx)))
	if len(missIdx) == 0 {
		return out, nil
	}
	res, err := l.next.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out.Vectors[i] = res.Vectors[j]
		if ferr, ok := res.Failures[j]; ok {
			out.Failures[i] = ferr
			continue
		}
		if strings.TrimSpace(texts[i]) != "" {
			l.cache.Add(keys[i], cloneEmbedding(res.Vectors[j]))
		}
	}
	return out, nil
}

func (l *lruEmbedder) Dimension() int {
	return l.next.Dimension()
}

func (l *lruEmbedder) ModelName() string {
	return l.next.ModelName()
}

func (l *lruEmbedder) Len() int {
	return l.cache.Len()
}
