package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"notifydecision/pkg/auth"
	"notifydecision/pkg/logger"
	"notifydecision/pkg/metrics"
	"notifydecision/pkg/trace"
)

const identityKey = "identity"

// TraceMiddleware 为每个请求注入 trace_id，并回写到响应头
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := trace.FromHeaders(c.GetHeader(trace.HeaderName), c.GetHeader("X-Request-ID"))
		c.Request = c.Request.WithContext(trace.WithContext(c.Request.Context(), traceID))
		c.Header(trace.HeaderName, traceID)
		c.Next()
	}
}

// MetricsMiddleware 记录请求耗时并输出访问日志
func MetricsMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		duration := time.Since(start)
		metrics.RecordHTTPRequestDuration(c.Request.Method, path, strconv.Itoa(status), duration)

		logger.WithTrace(c.Request.Context(), log).Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("took", duration),
		)
	}
}

func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.ExtractToken(c.Request)
		if token == "" {
			respondError(c, http.StatusUnauthorized, "Unauthorized")
			return
		}

		id, err := auth.ParseToken(token, jwtSecret)
		if err != nil {
			respondError(c, http.StatusUnauthorized, "Invalid token")
			return
		}

		// store identity in context so handlers can use it
		c.Set(identityKey, id)
		c.Set("user_id", id.UserID)

		c.Next()
	}
}

// RequirePermission 中间件：要求调用方具有指定权限
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := identityFrom(c)
		if !ok {
			respondError(c, http.StatusUnauthorized, "Unauthorized")
			return
		}
		if err := auth.CheckPermission(id, permission); err != nil {
			respondError(c, http.StatusForbidden, err.Error())
			return
		}
		c.Next()
	}
}

// SameUserMiddleware 要求路径中的用户与 token 中的用户一致
func SameUserMiddleware(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := identityFrom(c)
		if !ok {
			respondError(c, http.StatusUnauthorized, "Unauthorized")
			return
		}

		err := auth.ValidateUserID(id, c.Param(param))
		var mismatch *auth.UserIDMismatchError
		if errors.As(err, &mismatch) {
			respondError(c, http.StatusForbidden, "Forbidden")
			return
		}
		c.Next()
	}
}

func identityFrom(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}
