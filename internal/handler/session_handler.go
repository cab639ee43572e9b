package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ragsearch/internal/pkg/errcode"
	"github.com/xxxsen/ragsearch/internal/pkg/response"
	"github.com/xxxsen/ragsearch/internal/service"
)

type SessionHandler struct {
	sessions *service.SessionStore
}

func NewSessionHandler(sessions *service.SessionStore) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// preferenceRequest sets one preference; an empty value clears it.
type preferenceRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (h *SessionHandler) Get(c *gin.Context) {
	sess := sessionFor(c, h.sessions)
	response.Success(c, sess.Snapshot())
}

func (h *SessionHandler) SetPreference(c *gin.Context) {
	var req preferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Key == "" {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	sess := sessionFor(c, h.sessions)
	if err := sess.SetPreference(req.Key, req.Value); err != nil {
		handleError(c, errcode.ErrInvalid, err)
		return
	}
	response.Success(c, sess.Snapshot())
}
