package api

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/wfunc/survivor-indexer/internal/errors"
	"github.com/wfunc/survivor-indexer/internal/logger"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// RequestID 为每个请求分配标识，客户端已提供时沿用
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// RequestLogger 记录请求日志
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path += "?" + raw
		}

		c.Next()

		logger.LogRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start),
			c.ClientIP(), c.GetString(requestIDKey))
	}
}

// Recovery 捕获panic并返回500
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.LogPanic(rec, debug.Stack())
				appErr := errors.New(errors.ErrUnknown)
				appErr.Stack = nil
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					errors.NewErrorResponse(appErr, c.GetString(requestIDKey)))
			}
		}()
		c.Next()
	}
}
