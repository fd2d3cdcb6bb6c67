package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"notifydecision/pkg/auth"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	notificationHandler *NotificationHandler,
	preferencesHandler *PreferencesHandler,
	store Pinger,
	jwtSecret string,
	logger *zap.Logger,
) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), MetricsMiddleware(logger))

	// Health endpoints (放在最前面)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "store_not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.POST("/notifications", notificationHandler.Decide)

	// Protected
	prefs := api.Group("/user-preferences/:userId")
	prefs.Use(AuthMiddleware(jwtSecret), SameUserMiddleware("userId"))
	{
		prefs.GET("", RequirePermission(auth.PermissionReadPreferences), preferencesHandler.Get)
		prefs.POST("", RequirePermission(auth.PermissionWritePreferences), preferencesHandler.Set)
		prefs.PUT("", RequirePermission(auth.PermissionWritePreferences), preferencesHandler.Update)
	}

	r.NoRoute(func(c *gin.Context) {
		respondError(c, http.StatusNotFound, "Not found")
	})

	return &Router{Engine: r}
}
