package embedding

import (
	"context"
	"time"

	"github.com/xxxsen/ragsearch/internal/model"
)

// ProgressFunc is called after each batch with the number of chunks done.
type ProgressFunc func(done, total int)

// EmbedChunks attaches a vector to every chunk in index order. Chunks whose
// text could not be embedded keep a zero vector and carry the reason in
// their metadata.
func EmbedChunks(ctx context.Context, e Embedder, chunks []*model.Chunk, batchSize int, progress ProgressFunc) error {
	if len(chunks) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = len(chunks)
	}
	for start := 0; start < len(chunks); start += batchSize {
		part := chunks[start:min(start+batchSize, len(chunks))]
		texts := make([]string, 0, len(part))
		for _, ch := range part {
			texts = append(texts, ch.Content)
		}
		batch, err := e.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		now := time.Now().UTC().Format(time.RFC3339)
		for i, ch := range part {
			ch.Embedding = batch.Vectors[i]
			if ch.Metadata == nil {
				ch.Metadata = map[string]interface{}{}
			}
			ch.Metadata["embedding_model"] = e.ModelName()
			ch.Metadata["embedding_generated_at"] = now
			if ferr, ok := batch.Failures[i]; ok {
				ch.Metadata["embedding_error"] = ferr.Error()
			}
		}
		if progress != nil {
			progress(start+len(part), len(chunks))
		}
	}
	return nil
}
