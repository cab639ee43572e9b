package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragsearch/internal/ai"
	"github.com/xxxsen/ragsearch/internal/chunker"
	"github.com/xxxsen/ragsearch/internal/config"
	"github.com/xxxsen/ragsearch/internal/embedcache"
	"github.com/xxxsen/ragsearch/internal/embedding"
	"github.com/xxxsen/ragsearch/internal/repo"
	"github.com/xxxsen/ragsearch/internal/service"
	"github.com/xxxsen/ragsearch/internal/source"
	"github.com/xxxsen/ragsearch/internal/tokens"
)

type app struct {
	cfg       *config.Config
	db        *sql.DB
	sessions  *service.SessionStore
	search    *service.SearchService
	ingest    *service.IngestService
	src       source.Source
	cacheRepo *repo.EmbeddingCacheRepo
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", path))
	return cfg, nil
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := repo.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	a := &app{cfg: cfg, db: db}
	if err := repo.ApplyMigrations(ctx, db); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire() error {
	cfg := a.cfg
	embedder, err := a.buildEmbedder()
	if err != nil {
		return err
	}
	ch, err := a.buildChunker()
	if err != nil {
		return err
	}
	if cfg.Source.Type != "" {
		a.src, err = source.New(cfg.Source.Type, cfg.Source.Data)
		if err != nil {
			return fmt.Errorf("init source: %w", err)
		}
	}

	a.sessions = service.NewSessionStore(cfg.Session.MaxSessions, time.Duration(cfg.Session.IdleTTL)*time.Second)
	a.search = service.NewSearchService(repo.NewSearchRepo(a.db), embedder, service.NewKeywordClassifier(), service.SearchConfig{
		DefaultMatchCount: cfg.Search.DefaultMatchCount,
		MaxMatchCount:     cfg.Search.MaxMatchCount,
		DefaultTextWeight: *cfg.Search.DefaultTextWeight,
	})
	a.ingest = service.NewIngestService(ch, embedder, repo.NewDocumentRepo(a.db), cfg.Embedding.BatchSize)
	return nil
}

// buildEmbedder stacks the in-memory cache over the persistent cache over
// the provider-backed generator.
func (a *app) buildEmbedder() (embedding.Embedder, error) {
	em := a.cfg.Embedding
	pc, _ := a.cfg.FindProvider(em.Provider)
	provider, err := ai.NewEmbedProvider(pc.Type, pc.Data)
	if err != nil {
		return nil, fmt.Errorf("init embedding provider %s: %w", pc.Name, err)
	}
	gen, err := embedding.NewGenerator(provider, embedding.Config{
		Model:           em.Model,
		Dimension:       em.Dimension,
		MaxTokens:       em.MaxTokens,
		BatchSize:       em.BatchSize,
		MaxRetries:      em.MaxRetries,
		BaseDelay:       time.Duration(em.RetryDelayMs) * time.Millisecond,
		IndividualDelay: time.Duration(em.IndividualDelay) * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}
	var e embedding.Embedder = gen
	a.cacheRepo = repo.NewEmbeddingCacheRepo(a.db)
	if em.EnableDBCache {
		e = embedcache.WrapDB(e, a.cacheRepo)
	}
	e = embedcache.WrapLRU(e, em.LRUCacheSize, time.Duration(em.LRUCacheTTL)*time.Second)
	logutil.GetLogger(context.Background()).Info("embedder ready",
		zap.String("provider", pc.Name),
		zap.String("model", gen.ModelName()),
		zap.Int("dimension", gen.Dimension()),
		zap.Bool("db_cache", em.EnableDBCache),
		zap.Int("lru_size", em.LRUCacheSize),
	)
	return e, nil
}

func (a *app) buildChunker() (*chunker.Chunker, error) {
	cc := a.cfg.Chunking
	cfg := chunker.Config{
		ChunkSize:            cc.ChunkSize,
		ChunkOverlap:         cc.ChunkOverlap,
		MaxChunkSize:         cc.MaxChunkSize,
		MinChunkSize:         cc.MinChunkSize,
		UseSemanticSplitting: cc.SemanticEnabled(),
		PreserveStructure:    cc.StructurePreserved(),
	}
	counter, err := tokens.New(cc.Tokenizer)
	if err != nil {
		return nil, fmt.Errorf("init tokenizer: %w", err)
	}
	opts := []chunker.Option{chunker.WithTokenCounter(counter)}

	entries := make([]ai.GeneratorEntry, 0, len(cc.Generators))
	for _, name := range cc.Generators {
		pc, _ := a.cfg.FindProvider(name)
		p, err := ai.NewProvider(pc.Type, pc.Data)
		if err != nil {
			return nil, fmt.Errorf("init generator %s: %w", name, err)
		}
		model := pc.Model
		if model == "" {
			model = cc.Model
		}
		entries = append(entries, ai.GeneratorEntry{Name: name, Generator: ai.NewGenerator(p, model)})
	}
	if gen := ai.NewGroupGenerator(entries); gen != nil && cfg.UseSemanticSplitting {
		opts = append(opts, chunker.WithSplitter(chunker.NewLLMSplitter(gen, cfg, time.Duration(cc.LLMTimeout)*time.Second)))
	}
	return chunker.New(cfg, opts...)
}
