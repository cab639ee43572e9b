package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragsearch/internal/ai"
	"github.com/xxxsen/ragsearch/internal/middleware"
	"github.com/xxxsen/ragsearch/internal/pkg/errcode"
	appErr "github.com/xxxsen/ragsearch/internal/pkg/errors"
	"github.com/xxxsen/ragsearch/internal/pkg/response"
	"github.com/xxxsen/ragsearch/internal/service"
)

// sessionFor resolves the caller's session from the session header and
// echoes the id back so clients can keep it.
func sessionFor(c *gin.Context, sessions *service.SessionStore) *service.Session {
	sess, created := sessions.Get(c.GetHeader(middleware.SessionHeader))
	if created {
		logutil.GetLogger(c.Request.Context()).Debug("session created", zap.String("session_id", sess.ID))
	}
	c.Writer.Header().Set(middleware.SessionHeader, sess.ID)
	return sess
}

func handleError(c *gin.Context, code int, err error) {
	if err == nil {
		return
	}
	requestID, _ := c.Get(middleware.ContextRequestIDKey)
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.Any("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	switch {
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, err.Error())
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, ai.ErrUnavailable):
		response.Error(c, errcode.ErrAIUnavailable, "embedding provider not configured")
	default:
		response.Error(c, code, "internal error")
	}
}
