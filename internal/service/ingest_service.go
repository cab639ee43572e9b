package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragsearch/internal/chunker"
	"github.com/xxxsen/ragsearch/internal/embedding"
	"github.com/xxxsen/ragsearch/internal/metrics"
	"github.com/xxxsen/ragsearch/internal/model"
	appErr "github.com/xxxsen/ragsearch/internal/pkg/errors"
	"github.com/xxxsen/ragsearch/internal/source"
)

// DocumentStore persists ingested documents.
type DocumentStore interface {
	Save(ctx context.Context, doc *model.Document, chunks []*model.Chunk) (string, error)
	FindBySource(ctx context.Context, source string) (*model.Document, error)
	DeleteAll(ctx context.Context) (int64, error)
}

type IngestService struct {
	chunker   *chunker.Chunker
	embedder  embedding.Embedder
	store     DocumentStore
	batchSize int
}

func NewIngestService(c *chunker.Chunker, embedder embedding.Embedder, store DocumentStore, batchSize int) *IngestService {
	return &IngestService{chunker: c, embedder: embedder, store: store, batchSize: batchSize}
}

type IngestOptions struct {
	// Clean removes every stored document before ingesting.
	Clean bool
	// Force re-ingests documents whose content did not change.
	Force    bool
	Progress func(done, total int, res *model.IngestionResult)
}

// Clean removes every stored document and its chunks.
func (s *IngestService) Clean(ctx context.Context) error {
	n, err := s.store.DeleteAll(ctx)
	if err != nil {
		return fmt.Errorf("clean documents: %w", err)
	}
	logutil.GetLogger(ctx).Info("removed existing documents", zap.Int64("count", n))
	return nil
}

// IngestAll ingests every file of src. A failing document is recorded in
// its result and the run continues; only listing errors and cancellation
// stop the run.
func (s *IngestService) IngestAll(ctx context.Context, src source.Source, opts IngestOptions) ([]*model.IngestionResult, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("run_id", uuid.NewString()), zap.String("source", src.Name()))
	start := time.Now()

	if opts.Clean {
		if err := s.Clean(ctx); err != nil {
			return nil, err
		}
	}
	files, err := src.List(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("start ingestion", zap.Int("files", len(files)))

	results := make([]*model.IngestionResult, 0, len(files))
	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := s.IngestFile(ctx, src, file, opts.Force)
		results = append(results, res)
		if opts.Progress != nil {
			opts.Progress(i+1, len(files), res)
		}
	}

	var chunks, failed, skipped int
	for _, res := range results {
		chunks += res.ChunksCreated
		switch {
		case res.Failed():
			failed++
		case res.Skipped:
			skipped++
		}
	}
	logger.Info("ingestion finished",
		zap.Int("documents", len(results)),
		zap.Int("chunks", chunks),
		zap.Int("failed", failed),
		zap.Int("skipped", skipped),
		zap.Duration("cost", time.Since(start)),
	)
	return results, nil
}

// IngestFile reads, chunks, embeds and stores one file. Errors are
// reported in the result.
func (s *IngestService) IngestFile(ctx context.Context, src source.Source, file source.File, force bool) *model.IngestionResult {
	start := time.Now()
	res := &model.IngestionResult{Source: file.Path}
	finish := func(outcome string, err error) *model.IngestionResult {
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
			logutil.GetLogger(ctx).Error("ingest document failed", zap.String("path", file.Path), zap.Error(err))
		}
		res.ProcessingTimeMs = float64(time.Since(start).Microseconds()) / 1000
		metrics.DocumentsIngested.WithLabelValues(outcome).Inc()
		return res
	}

	data, err := src.Read(ctx, file.Path)
	if err != nil {
		return finish("failed", fmt.Errorf("read: %w", err))
	}
	content, err := source.Decode(data)
	if err != nil {
		return finish("failed", err)
	}
	return s.ingest(ctx, res, file, content, force, finish)
}

// IngestText ingests content that did not come from a Source.
func (s *IngestService) IngestText(ctx context.Context, path, content string, force bool) *model.IngestionResult {
	start := time.Now()
	res := &model.IngestionResult{Source: path}
	finish := func(outcome string, err error) *model.IngestionResult {
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
		}
		res.ProcessingTimeMs = float64(time.Since(start).Microseconds()) / 1000
		metrics.DocumentsIngested.WithLabelValues(outcome).Inc()
		return res
	}
	return s.ingest(ctx, res, source.File{Path: path, Size: int64(len(content))}, content, force, finish)
}

func (s *IngestService) ingest(ctx context.Context, res *model.IngestionResult, file source.File, content string, force bool,
	finish func(string, error) *model.IngestionResult) *model.IngestionResult {
	logger := logutil.GetLogger(ctx).With(zap.String("path", file.Path))
	hash := contentHash(content)

	if !force {
		prev, err := s.store.FindBySource(ctx, file.Path)
		switch {
		case err == nil && prev.ContentHash == hash:
			res.DocumentID = prev.ID
			res.Title = prev.Title
			res.Skipped = true
			logger.Debug("document unchanged, skipped")
			return finish("skipped", nil)
		case err != nil && !errors.Is(err, appErr.ErrNotFound):
			return finish("failed", fmt.Errorf("lookup previous version: %w", err))
		}
	}

	doc := parseDocument(content, file, time.Now())
	res.Title = doc.Title
	chunks := s.chunker.ChunkDocument(ctx, doc.Body, doc.Title, file.Path, doc.Metadata)
	if len(chunks) == 0 {
		return finish("failed", fmt.Errorf("no chunks created"))
	}
	method, _ := chunks[0].Metadata["chunk_method"].(string)
	logger.Info("document chunked", zap.Int("chunks", len(chunks)), zap.String("method", method))

	if err := embedding.EmbedChunks(ctx, s.embedder, chunks, s.batchSize, nil); err != nil {
		return finish("failed", fmt.Errorf("embed chunks: %w", err))
	}
	for _, ch := range chunks {
		if _, ok := ch.Metadata["embedding_error"]; ok {
			metrics.EmbeddingFailures.Inc()
		}
	}

	id, err := s.store.Save(ctx, &model.Document{
		Title:       doc.Title,
		Source:      file.Path,
		Content:     content,
		ContentHash: hash,
		Metadata:    doc.Metadata,
	}, chunks)
	if err != nil {
		return finish("failed", fmt.Errorf("save document: %w", err))
	}
	res.DocumentID = id
	res.ChunksCreated = len(chunks)
	metrics.ChunksCreated.WithLabelValues(method).Add(float64(len(chunks)))
	logger.Info("document saved", zap.String("document_id", id), zap.Int("chunks", len(chunks)))
	return finish("saved", nil)
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
