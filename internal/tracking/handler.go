package tracking

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"mailwave/internal/broker"
	"mailwave/internal/constants"
	"mailwave/internal/logger"
	"mailwave/pkg/errors"
	"mailwave/pkg/middleware"
	"mailwave/pkg/models"
)

var transparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

type Handler struct {
	manager       *Manager
	producer      broker.Producer
	topic         string
	webhookSecret string
	logger        logger.Logger
}

type HandlerOption func(*Handler)

// WithWebhookSecret requires the transport webhook to present secret as a
// bearer token.
func WithWebhookSecret(secret string) HandlerOption {
	return func(h *Handler) { h.webhookSecret = secret }
}

// NewHandler serves the tracking endpoints. Without a producer, webhook
// events are applied synchronously.
func NewHandler(manager *Manager, producer broker.Producer, topic string, log logger.Logger, opts ...HandlerOption) *Handler {
	if topic == "" {
		topic = constants.TopicDeliveryEvents
	}
	h := &Handler{manager: manager, producer: producer, topic: topic, logger: log}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	track := router.Group("/track")
	{
		track.GET("/open/:id", h.Open)
		track.GET("/open/:id/:contactId", h.LegacyOpen)
		track.GET("/click/:id", h.Click)
	}
	router.POST("/webhooks/transport", middleware.BearerAuth(h.webhookSecret), h.Webhook)
}

// Open godoc
// @Summary      Open tracking pixel
// @Tags         tracking
// @Produce      image/gif
// @Param        id   path      string  true  "Tracking ID"
// @Success      200
// @Router       /track/open/{id} [get]
func (h *Handler) Open(c *gin.Context) {
	if err := h.manager.RecordOpen(c.Request.Context(), c.Param("id")); err != nil {
		h.logger.ErrorwCtx(c.Request.Context(), "Failed to record open", "error", err)
	}
	writePixel(c)
}

// LegacyOpen godoc
// @Summary      Open tracking pixel addressed by campaign and contact
// @Tags         tracking
// @Produce      image/gif
// @Param        id         path  string  true  "Campaign ID"
// @Param        contactId  path  string  true  "Contact ID"
// @Success      200
// @Router       /track/open/{id}/{contactId} [get]
func (h *Handler) LegacyOpen(c *gin.Context) {
	if err := h.manager.RecordLegacyOpen(c.Request.Context(), c.Param("id"), c.Param("contactId")); err != nil {
		h.logger.ErrorwCtx(c.Request.Context(), "Failed to record open", "error", err)
	}
	writePixel(c)
}

func writePixel(c *gin.Context) {
	c.Header("Cache-Control", "no-store, no-cache, must-revalidate, private")
	c.Data(http.StatusOK, "image/gif", transparentGIF)
}

// Click godoc
// @Summary      Click redirect
// @Tags         tracking
// @Param        id   path   string  true  "Tracking ID"
// @Param        url  query  string  true  "Destination URL"
// @Success      302
// @Failure      400  {object}  map[string]interface{}
// @Router       /track/click/{id} [get]
func (h *Handler) Click(c *gin.Context) {
	target := c.Query("url")
	if !redirectable(target) {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(
			errors.ErrValidation.WithDetail("message", "url must be an absolute http or https URL"),
		))
		return
	}

	if err := h.manager.RecordClick(c.Request.Context(), c.Param("id"), target); err != nil {
		h.logger.ErrorwCtx(c.Request.Context(), "Failed to record click", "error", err)
	}
	c.Redirect(http.StatusFound, target)
}

func redirectable(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// Webhook godoc
// @Summary      Transport delivery callback
// @Tags         tracking
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        event  body      models.DeliveryEvent  true  "Delivery event"
// @Success      202    {object}  map[string]string
// @Failure      400    {object}  map[string]interface{}
// @Failure      401    {object}  map[string]interface{}
// @Router       /webhooks/transport [post]
func (h *Handler) Webhook(c *gin.Context) {
	ctx := c.Request.Context()

	var ev models.DeliveryEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}
	if err := ev.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	if h.producer == nil {
		if err := h.manager.ApplyDeliveryEvent(ctx, ev); err != nil {
			h.logger.ErrorwCtx(ctx, "Failed to apply delivery event", "error", err)
			c.JSON(errors.ToHTTPStatus(err), errors.ToErrorResponse(err))
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "applied"})
		return
	}

	env, err := models.NewEnvelope(uuid.New().String(), models.EventDelivery, constants.EventSourceTracking, ev)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errors.ToErrorResponse(errors.ErrInternal.WithCause(err)))
		return
	}
	if err := h.producer.Publish(ctx, h.topic, env); err != nil {
		h.logger.ErrorwCtx(ctx, "Failed to publish delivery event", "error", err)
		c.JSON(http.StatusServiceUnavailable, errors.ToErrorResponse(errors.ErrServiceUnavailable.WithCause(err)))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "id": env.ID})
}
