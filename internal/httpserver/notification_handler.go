package httpserver

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"notifydecision/internal/model"
)

type Decider interface {
	Decide(ctx context.Context, ev model.Event) (model.Verdict, error)
}

type NotificationHandler struct {
	decider Decider
	logger  *zap.Logger
}

func NewNotificationHandler(decider Decider, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{decider: decider, logger: logger}
}

// Decide handles POST /api/v1/notifications and answers with the bare verdict.
func (h *NotificationHandler) Decide(c *gin.Context) {
	var ev model.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}

	verdict, err := h.decider.Decide(c.Request.Context(), ev)
	if err != nil {
		respondServiceError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, verdict)
}
