package scheduler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"mailwave/internal/logger"
	"mailwave/pkg/middleware"
)

type Handler struct {
	scheduler *Scheduler
	secret    string
	logger    logger.Logger
}

// NewHandler serves the external trigger. An empty secret disables the
// bearer check.
func NewHandler(s *Scheduler, secret string, log logger.Logger) *Handler {
	return &Handler{scheduler: s, secret: secret, logger: log}
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	jobs := router.Group("/internal/jobs", middleware.BearerAuth(h.secret))
	{
		jobs.POST("/dispatch", h.Trigger)
		jobs.GET("/dispatch", h.Trigger)
	}
}

// Trigger godoc
// @Summary      Run one scheduler tick
// @Description  Dispatches up to 5 due campaigns and 2 due A/B tests.
// @Tags         jobs
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  TickResult
// @Failure      401  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]interface{}
// @Router       /internal/jobs/dispatch [post]
func (h *Handler) Trigger(c *gin.Context) {
	// The tick is not bound to the caller's connection.
	result, err := h.scheduler.Trigger(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		h.logger.ErrorwCtx(c.Request.Context(), "Triggered scheduler tick failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
