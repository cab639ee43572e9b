package job

import (
	"context"
	"fmt"

	"github.com/xxxsen/ragsearch/internal/service"
	"github.com/xxxsen/ragsearch/internal/source"
)

// IngestJob re-ingests the configured source; unchanged documents are
// skipped.
type IngestJob struct {
	ingest *service.IngestService
	src    source.Source
}

func NewIngestJob(ingest *service.IngestService, src source.Source) *IngestJob {
	return &IngestJob{ingest: ingest, src: src}
}

func (j *IngestJob) Name() string {
	return "source_ingest"
}

func (j *IngestJob) Run(ctx context.Context) error {
	if j.ingest == nil || j.src == nil {
		return nil
	}
	results, err := j.ingest.IngestAll(ctx, j.src, service.IngestOptions{})
	if err != nil {
		return err
	}
	failed := 0
	for _, res := range results {
		if res.Failed() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(results))
	}
	return nil
}
