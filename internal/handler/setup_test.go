package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/xxxsen/common/webapi"

	"github.com/xxxsen/ragsearch/internal/chunker"
	"github.com/xxxsen/ragsearch/internal/embedding"
	"github.com/xxxsen/ragsearch/internal/handler"
	"github.com/xxxsen/ragsearch/internal/middleware"
	"github.com/xxxsen/ragsearch/internal/model"
	appErr "github.com/xxxsen/ragsearch/internal/pkg/errors"
	"github.com/xxxsen/ragsearch/internal/service"
	"github.com/xxxsen/ragsearch/internal/source"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (stubEmbedder) EmbedBatch(ctx context.Context, texts []string) (*embedding.Batch, error) {
	out := embedding.NewBatch(len(texts))
	for i := range texts {
		out.Vectors[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (stubEmbedder) Dimension() int    { return 3 }
func (stubEmbedder) ModelName() string { return "stub" }

type stubSearcher struct {
	lastLimit  int
	lastWeight float64
}

func (s *stubSearcher) MatchChunks(ctx context.Context, vec []float32, limit int) ([]model.SearchResult, error) {
	s.lastLimit = limit
	return []model.SearchResult{{ChunkID: "c1", DocumentID: "d1", Content: "pgvector stores embeddings", Similarity: 0.82}}, nil
}

func (s *stubSearcher) HybridSearch(ctx context.Context, vec []float32, text string, limit int, weight float64) ([]model.HybridResult, error) {
	s.lastLimit = limit
	s.lastWeight = weight
	return []model.HybridResult{{ChunkID: "c2", DocumentID: "d1", Content: "MAX_RETRIES defaults to 3", CombinedScore: 0.7}}, nil
}

type memoryStore struct {
	docs map[string]*model.Document
}

func (m *memoryStore) Save(ctx context.Context, doc *model.Document, chunks []*model.Chunk) (string, error) {
	doc.ID = fmt.Sprintf("doc-%d", len(m.docs)+1)
	m.docs[doc.Source] = doc
	return doc.ID, nil
}

func (m *memoryStore) FindBySource(ctx context.Context, src string) (*model.Document, error) {
	if d, ok := m.docs[src]; ok {
		return d, nil
	}
	return nil, appErr.ErrNotFound
}

func (m *memoryStore) DeleteAll(ctx context.Context) (int64, error) {
	n := len(m.docs)
	m.docs = map[string]*model.Document{}
	return int64(n), nil
}

type testEnv struct {
	router   http.Handler
	searcher *stubSearcher
	store    *memoryStore
}

func setupRouter(t *testing.T, src source.Source) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	searcher := &stubSearcher{}
	store := &memoryStore{docs: map[string]*model.Document{}}
	sessions := service.NewSessionStore(16, 0)
	search := service.NewSearchService(searcher, stubEmbedder{}, nil, service.SearchConfig{
		DefaultMatchCount: 10,
		MaxMatchCount:     50,
		DefaultTextWeight: 0.3,
	})
	c, err := chunker.New(chunker.DefaultConfig())
	require.NoError(t, err)
	ingest := service.NewIngestService(c, stubEmbedder{}, store, 16)

	deps := handler.RouterDeps{
		Search:  handler.NewSearchHandler(search, sessions),
		Session: handler.NewSessionHandler(sessions),
		Ingest:  handler.NewIngestHandler(ingest, src, 0),
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		"",
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(nil),
		),
	)
	require.NoError(t, err)
	return &testEnv{router: engine, searcher: searcher, store: store}
}

type apiResult struct {
	Code int                    `json:"code"`
	Msg  string                 `json:"message"`
	Data map[string]interface{} `json:"data"`
}

func (e *testEnv) do(t *testing.T, method, path, session string, body interface{}) (*httptest.ResponseRecorder, apiResult) {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.Header.Set(middleware.SessionHeader, session)
	}
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	var result apiResult
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	return resp, result
}
