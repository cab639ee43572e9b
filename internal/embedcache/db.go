package embedcache

import (
	"context"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/ragsearch/internal/embedding"
	"github.com/xxxsen/ragsearch/internal/metrics"
	"github.com/xxxsen/ragsearch/internal/model"
	"go.uber.org/zap"
)

// Store persists vectors by model and content hash.
type Store interface {
	GetMany(ctx context.Context, modelName string, hashes []string) (map[string][]float32, error)
	SaveMany(ctx context.Context, items []*model.EmbeddingCache) error
}

// WrapDB consults store before the wrapped embedder and saves new vectors.
// Store failures are logged and the call proceeds uncached.
func WrapDB(e embedding.Embedder, store Store) embedding.Embedder {
	if e == nil || store == nil {
		return e
	}
	return &dbEmbedder{next: e, store: store}
}

type dbEmbedder struct {
	next  embedding.Embedder
	store Store
}

func (d *dbEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	batch, err := d.lookup(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if batch.Vectors[0] != nil {
		return batch.Vectors[0], nil
	}
	res, err := d.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	d.save(ctx, []string{text}, [][]float32{res})
	return res, nil
}

func (d *dbEmbedder) EmbedBatch(ctx context.Context, texts []string) (*embedding.Batch, error) {
	out, err := d.lookup(ctx, texts)
	if err != nil {
		return nil, err
	}
	var missIdx []int
	var missTexts []string
	for i, v := range out.Vectors {
		if v == nil {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, texts[i])
		}
	}
	if len(missIdx) == 0 {
		return out, nil
	}
	res, err := d.next.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	saveTexts := make([]string, 0, len(missIdx))
	saveVecs := make([][]float32, 0, len(missIdx))
	for j, i := range missIdx {
		out.Vectors[i] = res.Vectors[j]
		if ferr, ok := res.Failures[j]; ok {
			out.Failures[i] = ferr
			continue
		}
		saveTexts = append(saveTexts, texts[i])
		saveVecs = append(saveVecs, res.Vectors[j])
	}
	d.save(ctx, saveTexts, saveVecs)
	return out, nil
}

// lookup fills the vectors found in the store and leaves misses nil.
func (d *dbEmbedder) lookup(ctx context.Context, texts []string) (*embedding.Batch, error) {
	out := embedding.NewBatch(len(texts))
	hashes := make([]string, len(texts))
	for i, text := range texts {
		hashes[i] = contentHash(d.next.ModelName(), text)
	}
	found, err := d.store.GetMany(ctx, d.next.ModelName(), hashes)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logutil.GetLogger(ctx).Warn("read embedding cache failed", zap.Error(err))
		return out, nil
	}
	hits := 0
	for i, h := range hashes {
		if v, ok := found[h]; ok && len(v) == d.next.Dimension() {
			out.Vectors[i] = v
			hits++
		}
	}
	metrics.EmbeddingCache.WithLabelValues("db", "hit").Add(float64(hits))
	metrics.EmbeddingCache.WithLabelValues("db", "miss").Add(float64(len(texts) - hits))
	return out, nil
}

func (d *dbEmbedder) save(ctx context.Context, texts []string, vecs [][]float32) {
	now := time.Now().Unix()
	items := make([]*model.EmbeddingCache, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		items = append(items, &model.EmbeddingCache{
			ModelName:   d.next.ModelName(),
			ContentHash: contentHash(d.next.ModelName(), text),
			Embedding:   vecs[i],
			Ctime:       now,
		})
	}
	if len(items) == 0 {
		return
	}
	if err := d.store.SaveMany(ctx, items); err != nil {
		logutil.GetLogger(ctx).Warn("failed to cache embedding", zap.Int("count", len(items)), zap.Error(err))
	}
}

func (d *dbEmbedder) Dimension() int {
	return d.next.Dimension()
}

func (d *dbEmbedder) ModelName() string {
	return d.next.ModelName()
}
