package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragsearch/internal/embedding"
	"github.com/xxxsen/ragsearch/internal/metrics"
	"github.com/xxxsen/ragsearch/internal/model"
	appErr "github.com/xxxsen/ragsearch/internal/pkg/errors"
)

// ChunkSearcher runs the store's ranking procedures.
type ChunkSearcher interface {
	MatchChunks(ctx context.Context, embedding []float32, limit int) ([]model.SearchResult, error)
	HybridSearch(ctx context.Context, embedding []float32, text string, limit int, textWeight float64) ([]model.HybridResult, error)
}

type SearchConfig struct {
	DefaultMatchCount int
	MaxMatchCount     int
	DefaultTextWeight float64
}

type SearchService struct {
	store      ChunkSearcher
	embedder   embedding.Embedder
	classifier QueryClassifier
	cfg        SearchConfig
}

func NewSearchService(store ChunkSearcher, embedder embedding.Embedder, classifier QueryClassifier, cfg SearchConfig) *SearchService {
	if classifier == nil {
		classifier = NewKeywordClassifier()
	}
	if cfg.MaxMatchCount <= 0 {
		cfg.MaxMatchCount = 50
	}
	if cfg.DefaultMatchCount <= 0 {
		cfg.DefaultMatchCount = 10
	}
	cfg.DefaultMatchCount = min(cfg.DefaultMatchCount, cfg.MaxMatchCount)
	cfg.DefaultTextWeight = clampWeight(cfg.DefaultTextWeight)
	return &SearchService{store: store, embedder: embedder, classifier: classifier, cfg: cfg}
}

type searchOptions struct {
	matchCount int
	textWeight *float64
}

type SearchOption func(*searchOptions)

// WithMatchCount requests n results. Zero keeps the session or configured
// default; values are clamped to [1, MaxMatchCount].
func WithMatchCount(n int) SearchOption {
	return func(o *searchOptions) {
		o.matchCount = n
	}
}

// WithTextWeight sets the lexical share of the hybrid score, clamped to [0,1].
func WithTextWeight(w float64) SearchOption {
	return func(o *searchOptions) {
		o.textWeight = &w
	}
}

func applyOptions(opts []SearchOption) searchOptions {
	var o searchOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (s *SearchService) matchCount(sess *Session, o searchOptions) int {
	n := o.matchCount
	if n == 0 && sess != nil {
		n = sess.Preferences().ResultCount
	}
	if n == 0 {
		n = s.cfg.DefaultMatchCount
	}
	return min(max(n, 1), s.cfg.MaxMatchCount)
}

func (s *SearchService) textWeight(sess *Session, o searchOptions) float64 {
	if o.textWeight != nil {
		return clampWeight(*o.textWeight)
	}
	if sess != nil {
		if w := sess.Preferences().TextWeight; w != nil {
			return clampWeight(*w)
		}
	}
	return s.cfg.DefaultTextWeight
}

func clampWeight(w float64) float64 {
	return min(max(w, 0), 1)
}

func (s *SearchService) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty query: %w", appErr.ErrInvalid)
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return vec, nil
}

// SemanticSearch ranks chunks by vector similarity to the query.
func (s *SearchService) SemanticSearch(ctx context.Context, sess *Session, query string, opts ...SearchOption) ([]model.SearchResult, error) {
	return s.semantic(ctx, query, s.matchCount(sess, applyOptions(opts)))
}

func (s *SearchService) semantic(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	start := time.Now()
	vec, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	res, err := s.store.MatchChunks(ctx, vec, limit)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	metrics.ObserveSearch(string(model.StrategySemantic), start)
	logutil.GetLogger(ctx).Debug("semantic search done",
		zap.Int("limit", limit),
		zap.Int("results", len(res)),
		zap.Duration("cost", time.Since(start)),
	)
	if res == nil {
		res = []model.SearchResult{}
	}
	return res, nil
}

// HybridSearch blends vector and full-text similarity in the store.
func (s *SearchService) HybridSearch(ctx context.Context, sess *Session, query string, opts ...SearchOption) ([]model.HybridResult, error) {
	o := applyOptions(opts)
	return s.hybrid(ctx, query, s.matchCount(sess, o), s.textWeight(sess, o))
}

func (s *SearchService) hybrid(ctx context.Context, query string, limit int, weight float64) ([]model.HybridResult, error) {
	start := time.Now()
	vec, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	res, err := s.store.HybridSearch(ctx, vec, query, limit, weight)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}
	metrics.ObserveSearch(string(model.StrategyHybrid), start)
	logutil.GetLogger(ctx).Debug("hybrid search done",
		zap.Int("limit", limit),
		zap.Float64("text_weight", weight),
		zap.Int("results", len(res)),
		zap.Duration("cost", time.Since(start)),
	)
	if res == nil {
		res = []model.HybridResult{}
	}
	return res, nil
}

// AutoSearch picks a strategy for the query and runs it. A search_type
// preference on the session overrides the classifier. Only AutoSearch adds
// the query to the session history, before searching.
func (s *SearchService) AutoSearch(ctx context.Context, sess *Session, query string, opts ...SearchOption) (*model.AutoSearchResult, error) {
	var prefs Preferences
	if sess != nil {
		sess.RecordQuery(query)
		prefs = sess.Preferences()
	}
	o := applyOptions(opts)
	limit := s.matchCount(sess, o)

	var decision Classification
	if prefs.SearchType.Valid() {
		decision = Classification{Strategy: prefs.SearchType, Reason: "User preference"}
	} else {
		decision = s.classifier.Classify(query)
	}
	logutil.GetLogger(ctx).Info("auto search routed",
		zap.String("strategy", string(decision.Strategy)),
		zap.String("intent", string(decision.Intent)),
		zap.String("reason", decision.Reason),
	)
	metrics.AutoSearchRoutes.WithLabelValues(string(decision.Strategy)).Inc()

	out := &model.AutoSearchResult{Strategy: decision.Strategy, Reason: decision.Reason}
	if decision.Strategy == model.StrategySemantic {
		res, err := s.semantic(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		out.SemanticResults = res
		return out, nil
	}
	out.Strategy = model.StrategyHybrid
	weight := s.textWeight(sess, o)
	if decision.TextWeight != nil {
		weight = clampWeight(*decision.TextWeight)
	}
	out.TextWeight = &weight
	res, err := s.hybrid(ctx, query, limit, weight)
	if err != nil {
		return nil, err
	}
	out.HybridResults = res
	return out, nil
}
