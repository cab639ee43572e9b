package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ragsearch/internal/model"
	"github.com/xxxsen/ragsearch/internal/pkg/errcode"
	"github.com/xxxsen/ragsearch/internal/pkg/response"
	"github.com/xxxsen/ragsearch/internal/service"
)

type SearchHandler struct {
	search   *service.SearchService
	sessions *service.SessionStore
}

func NewSearchHandler(search *service.SearchService, sessions *service.SessionStore) *SearchHandler {
	return &SearchHandler{search: search, sessions: sessions}
}

type searchRequest struct {
	Query      string   `json:"query"`
	MatchCount int      `json:"match_count"`
	TextWeight *float64 `json:"text_weight"`
}

func (r searchRequest) options() []service.SearchOption {
	opts := []service.SearchOption{service.WithMatchCount(r.MatchCount)}
	if r.TextWeight != nil {
		opts = append(opts, service.WithTextWeight(*r.TextWeight))
	}
	return opts
}

func bindSearch(c *gin.Context) (searchRequest, bool) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return req, false
	}
	if strings.TrimSpace(req.Query) == "" {
		response.Error(c, errcode.ErrInvalid, "query required")
		return req, false
	}
	return req, true
}

func (h *SearchHandler) Semantic(c *gin.Context) {
	req, ok := bindSearch(c)
	if !ok {
		return
	}
	sess := sessionFor(c, h.sessions)
	results, err := h.search.SemanticSearch(c.Request.Context(), sess, req.Query, req.options()...)
	if err != nil {
		handleError(c, errcode.ErrSearchFailed, err)
		return
	}
	response.Success(c, gin.H{
		"session_id": sess.ID,
		"strategy":   "semantic",
		"results":    results,
		"count":      len(results),
	})
}

func (h *SearchHandler) Hybrid(c *gin.Context) {
	req, ok := bindSearch(c)
	if !ok {
		return
	}
	sess := sessionFor(c, h.sessions)
	results, err := h.search.HybridSearch(c.Request.Context(), sess, req.Query, req.options()...)
	if err != nil {
		handleError(c, errcode.ErrSearchFailed, err)
		return
	}
	response.Success(c, gin.H{
		"session_id": sess.ID,
		"strategy":   "hybrid",
		"results":    results,
		"count":      len(results),
	})
}

func (h *SearchHandler) Auto(c *gin.Context) {
	req, ok := bindSearch(c)
	if !ok {
		return
	}
	sess := sessionFor(c, h.sessions)
	res, err := h.search.AutoSearch(c.Request.Context(), sess, req.Query, req.options()...)
	if err != nil {
		handleError(c, errcode.ErrSearchFailed, err)
		return
	}
	response.Success(c, gin.H{
		"session_id":  sess.ID,
		"strategy":    res.Strategy,
		"reason":      res.Reason,
		"text_weight": res.TextWeight,
		"results":     autoResults(res),
		"count":       res.Len(),
	})
}

func autoResults(res *model.AutoSearchResult) interface{} {
	if res.Strategy == model.StrategySemantic {
		return res.SemanticResults
	}
	return res.HybridResults
}
