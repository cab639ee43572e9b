package embedding

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sethvargo/go-retry"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/ragsearch/internal/ai"
	"github.com/xxxsen/ragsearch/internal/pkg/errors"
	"go.uber.org/zap"
)

// Embedder turns text into fixed-length vectors.
type Embedder interface {
	// Embed returns the vector of one text or the error left after retries.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch returns one vector per text. Texts that could not be
	// embedded get a zero vector and an entry in Batch.Failures; only
	// cancellation fails the whole call.
	EmbedBatch(ctx context.Context, texts []string) (*Batch, error)
	Dimension() int
	ModelName() string
}

type Batch struct {
	Vectors  [][]float32
	Failures map[int]error
}

func NewBatch(n int) *Batch {
	return &Batch{Vectors: make([][]float32, n), Failures: map[int]error{}}
}

type ModelInfo struct {
	Dimension int
	MaxTokens int
}

var knownModels = map[string]ModelInfo{
	"text-embedding-3-small": {Dimension: 1536, MaxTokens: 8191},
	"text-embedding-3-large": {Dimension: 3072, MaxTokens: 8191},
	"text-embedding-ada-002": {Dimension: 1536, MaxTokens: 8191},
}

const defaultMaxTokens = 8191

type Config struct {
	Model     string
	Dimension int
	MaxTokens int
	BatchSize int
	// MaxRetries is the number of attempts per provider call.
	MaxRetries      int
	BaseDelay       time.Duration
	IndividualDelay time.Duration
}

type Generator struct {
	provider ai.IEmbedProvider
	cfg      Config
}

func NewGenerator(provider ai.IEmbedProvider, cfg Config) (*Generator, error) {
	if provider == nil {
		return nil, fmt.Errorf("embed provider is required: %w", errors.ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("embedding model is required: %w", errors.ErrInvalidConfig)
	}
	info, known := knownModels[cfg.Model]
	if cfg.Dimension == 0 {
		if !known {
			return nil, fmt.Errorf("dimension required for unknown model %s: %w", cfg.Model, errors.ErrInvalidConfig)
		}
		cfg.Dimension = info.Dimension
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = defaultMaxTokens
		if known {
			cfg.MaxTokens = info.MaxTokens
		}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.Dimension < 0 || cfg.MaxTokens < 0 {
		return nil, fmt.Errorf("negative embedding limits: %w", errors.ErrInvalidConfig)
	}
	return &Generator{provider: provider, cfg: cfg}, nil
}

func (g *Generator) Dimension() int {
	return g.cfg.Dimension
}

func (g *Generator) ModelName() string {
	return g.cfg.Model
}

func (g *Generator) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return ZeroVector(g.cfg.Dimension), nil
	}
	vecs, err := g.call(ctx, []string{g.truncate(text)})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (g *Generator) EmbedBatch(ctx context.Context, texts []string) (*Batch, error) {
	out := NewBatch(len(texts))
	pending := make([]int, 0, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			out.Vectors[i] = ZeroVector(g.cfg.Dimension)
			continue
		}
		pending = append(pending, i)
	}
	logger := logutil.GetLogger(ctx)
	for start := 0; start < len(pending); start += g.cfg.BatchSize {
		idxs := pending[start:min(start+g.cfg.BatchSize, len(pending))]
		inputs := make([]string, 0, len(idxs))
		for _, i := range idxs {
			inputs = append(inputs, g.truncate(texts[i]))
		}
		vecs, err := g.call(ctx, inputs)
		if err == nil {
			for j, i := range idxs {
				out.Vectors[i] = vecs[j]
			}
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Warn("batch embedding failed, embedding texts one by one",
			zap.Int("batch_size", len(idxs)),
			zap.Error(err),
		)
		if err := g.embedSequential(ctx, texts, idxs, out); err != nil {
			return nil, err
		}
	}
	if len(out.Failures) > 0 {
		logger.Warn("embedding finished with fallback vectors",
			zap.Int("total", len(texts)),
			zap.Int("failed", len(out.Failures)),
		)
	}
	return out, nil
}

func (g *Generator) embedSequential(ctx context.Context, texts []string, idxs []int, out *Batch) error {
	for n, i := range idxs {
		if n > 0 && g.cfg.IndividualDelay > 0 {
			if err := sleep(ctx, g.cfg.IndividualDelay); err != nil {
				return err
			}
		}
		vecs, err := g.call(ctx, []string{g.truncate(texts[i])})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			logutil.GetLogger(ctx).Error("embedding text failed, using zero vector", zap.Int("index", i), zap.Error(err))
			out.Vectors[i] = ZeroVector(g.cfg.Dimension)
			out.Failures[i] = err
			continue
		}
		out.Vectors[i] = vecs[0]
	}
	return nil
}

// call sends one request, retrying transient failures with exponential
// backoff. The backoff wait ends early when ctx is done.
func (g *Generator) call(ctx context.Context, inputs []string) ([][]float32, error) {
	var vecs [][]float32
	backoff := retry.WithMaxRetries(uint64(g.cfg.MaxRetries-1), retry.NewExponential(g.cfg.BaseDelay))
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		res, err := g.provider.Embed(ctx, g.cfg.Model, inputs)
		if err != nil {
			if ai.IsRetryable(err) {
				logutil.GetLogger(ctx).Debug("embedding call failed, retrying",
					zap.Int("attempt", attempt),
					zap.Error(err),
				)
				return retry.RetryableError(err)
			}
			return err
		}
		if err := g.checkVectors(res, len(inputs)); err != nil {
			return err
		}
		vecs = res
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("embed with %s after %d attempt(s): %w", g.provider.Name(), attempt, err)
	}
	return vecs, nil
}

func (g *Generator) checkVectors(vecs [][]float32, want int) error {
	if len(vecs) != want {
		return fmt.Errorf("provider returned %d vectors for %d inputs", len(vecs), want)
	}
	for i, v := range vecs {
		if len(v) != g.cfg.Dimension {
			return fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), g.cfg.Dimension)
		}
	}
	return nil
}

// truncate cuts text to MaxTokens*4 bytes without splitting a rune.
func (g *Generator) truncate(text string) string {
	limit := g.cfg.MaxTokens * 4
	if limit <= 0 || len(text) <= limit {
		return text
	}
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit]
}

func ZeroVector(dim int) []float32 {
	return make([]float32, dim)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
