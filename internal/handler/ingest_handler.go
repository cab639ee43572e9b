package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ragsearch/internal/model"
	"github.com/xxxsen/ragsearch/internal/pkg/errcode"
	"github.com/xxxsen/ragsearch/internal/pkg/response"
	"github.com/xxxsen/ragsearch/internal/service"
	"github.com/xxxsen/ragsearch/internal/source"
)

type IngestHandler struct {
	ingest  *service.IngestService
	src     source.Source
	maxBody int64
}

// NewIngestHandler serves ingestion requests. src may be nil, in which case
// only inline documents are accepted.
func NewIngestHandler(ingest *service.IngestService, src source.Source, maxBody int64) *IngestHandler {
	if maxBody <= 0 {
		maxBody = defaultMaxIngestBody
	}
	return &IngestHandler{ingest: ingest, src: src, maxBody: maxBody}
}

type inlineDocument struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type ingestRequest struct {
	Clean     bool             `json:"clean"`
	Force     bool             `json:"force"`
	Documents []inlineDocument `json:"documents"`
}

type ingestSummary struct {
	Documents int                      `json:"documents"`
	Chunks    int                      `json:"chunks"`
	Skipped   int                      `json:"skipped"`
	Failed    int                      `json:"failed"`
	Results   []*model.IngestionResult `json:"results"`
}

func summarize(results []*model.IngestionResult) ingestSummary {
	out := ingestSummary{Documents: len(results), Results: results}
	for _, res := range results {
		out.Chunks += res.ChunksCreated
		switch {
		case res.Failed():
			out.Failed++
		case res.Skipped:
			out.Skipped++
		}
	}
	return out
}

// Ingest indexes the inline documents of the request, or the configured
// source when none are given. clean empties the store first in both cases.
func (h *IngestHandler) Ingest(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, errcode.ErrInvalid, "request body exceeds "+formatUploadLimit(h.maxBody))
			return
		}
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	ctx := c.Request.Context()

	if len(req.Documents) > 0 {
		results := make([]*model.IngestionResult, 0, len(req.Documents))
		for _, doc := range req.Documents {
			if strings.TrimSpace(doc.Path) == "" {
				response.Error(c, errcode.ErrInvalid, "document path required")
				return
			}
		}
		if req.Clean {
			if err := h.ingest.Clean(ctx); err != nil {
				handleError(c, errcode.ErrIngestFailed, err)
				return
			}
		}
		for _, doc := range req.Documents {
			results = append(results, h.ingest.IngestText(ctx, doc.Path, doc.Content, req.Force))
		}
		response.Success(c, summarize(results))
		return
	}

	if h.src == nil {
		response.Error(c, errcode.ErrInvalid, "no document source configured")
		return
	}
	results, err := h.ingest.IngestAll(ctx, h.src, service.IngestOptions{Clean: req.Clean, Force: req.Force})
	if err != nil {
		handleError(c, errcode.ErrIngestFailed, err)
		return
	}
	response.Success(c, summarize(results))
}
