package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mailwave/internal/dispatch"
	"mailwave/pkg/errors"
)

const defaultStuckAge = time.Hour

// GetCampaign godoc
// @Summary      Get a campaign
// @Tags         campaigns
// @Produce      json
// @Param        id   path      string  true  "Campaign ID"
// @Success      200  {object}  models.Campaign
// @Failure      404  {object}  map[string]interface{}
// @Router       /campaigns/{id} [get]
func (h *Handler) GetCampaign(c *gin.Context) {
	campaign, err := h.campaigns.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

// SendCampaign godoc
// @Summary      Send a draft or scheduled campaign now
// @Tags         campaigns
// @Produce      json
// @Param        id   path      string  true  "Campaign ID"
// @Success      200  {object}  dispatch.Result
// @Failure      404  {object}  map[string]interface{}
// @Failure      409  {object}  map[string]interface{}
// @Router       /campaigns/{id}/send [post]
func (h *Handler) SendCampaign(c *gin.Context) {
	h.runDispatch(c, h.campaigns.SendNow)
}

// ResumeCampaign godoc
// @Summary      Resume a paused campaign
// @Tags         campaigns
// @Produce      json
// @Param        id   path      string  true  "Campaign ID"
// @Success      200  {object}  dispatch.Result
// @Failure      409  {object}  map[string]interface{}
// @Router       /campaigns/{id}/resume [post]
func (h *Handler) ResumeCampaign(c *gin.Context) {
	h.runDispatch(c, h.campaigns.Resume)
}

// runDispatch detaches the send from the request so a dropped client does
// not interrupt it.
func (h *Handler) runDispatch(c *gin.Context, run func(context.Context, string) (*dispatch.Result, error)) {
	result, err := run(context.WithoutCancel(c.Request.Context()), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ScheduleCampaign godoc
// @Summary      Schedule a draft or paused campaign
// @Tags         campaigns
// @Accept       json
// @Produce      json
// @Param        id        path      string           true  "Campaign ID"
// @Param        schedule  body      ScheduleRequest  true  "Send time"
// @Success      200       {object}  models.Campaign
// @Failure      409       {object}  map[string]interface{}
// @Router       /campaigns/{id}/schedule [post]
func (h *Handler) ScheduleCampaign(c *gin.Context) {
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	campaign, err := h.campaigns.Schedule(c.Request.Context(), c.Param("id"), req.ScheduledAt)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

// PauseCampaign godoc
// @Summary      Pause a scheduled or processing campaign
// @Tags         campaigns
// @Produce      json
// @Param        id   path      string  true  "Campaign ID"
// @Success      200  {object}  models.Campaign
// @Failure      409  {object}  map[string]interface{}
// @Router       /campaigns/{id}/pause [post]
func (h *Handler) PauseCampaign(c *gin.Context) {
	campaign, err := h.campaigns.Pause(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, campaign)
}

// CloneCampaign godoc
// @Summary      Copy a campaign into a new draft
// @Tags         campaigns
// @Accept       json
// @Produce      json
// @Param        id     path      string        false  "Campaign ID"
// @Param        clone  body      CloneRequest  false  "Name of the copy"
// @Success      201    {object}  models.Campaign
// @Failure      404    {object}  map[string]interface{}
// @Router       /campaigns/{id}/clone [post]
func (h *Handler) CloneCampaign(c *gin.Context) {
	var req CloneRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, err)
			return
		}
	}

	campaign, err := h.campaigns.Clone(c.Request.Context(), c.Param("id"), req.Name)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, campaign)
}

// CampaignAnalytics godoc
// @Summary      Campaign delivery and engagement analytics
// @Tags         campaigns
// @Produce      json
// @Param        id   path      string  true  "Campaign ID"
// @Success      200  {object}  dispatch.Analytics
// @Failure      404  {object}  map[string]interface{}
// @Router       /campaigns/{id}/analytics [get]
func (h *Handler) CampaignAnalytics(c *gin.Context) {
	analytics, err := h.campaigns.Analytics(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, analytics)
}

// ListStuckCampaigns godoc
// @Summary      Campaigns left in processing
// @Description  Lists campaigns that have been processing longer than older_than (default 1h).
// @Tags         campaigns
// @Produce      json
// @Param        older_than  query     string  false  "Go duration, e.g. 30m"
// @Success      200         {array}   models.Campaign
// @Router       /campaigns/stuck [get]
func (h *Handler) ListStuckCampaigns(c *gin.Context) {
	olderThan := defaultStuckAge
	if raw := c.Query("older_than"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			h.HandleError(c, errors.ErrValidation.WithDetail("message", "older_than must be a positive duration"))
			return
		}
		olderThan = d
	}

	campaigns, err := h.campaigns.ListStuck(c.Request.Context(), olderThan)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, campaigns)
}

// SendBulk godoc
// @Summary      Send ad-hoc content to a segment in batches
// @Tags         campaigns
// @Accept       json
// @Produce      json
// @Param        bulk  body      BulkRequest  true  "Segment and content"
// @Success      200   {object}  dispatch.BulkResult
// @Failure      400   {object}  map[string]interface{}
// @Failure      404   {object}  map[string]interface{}
// @Router       /campaigns/bulk [post]
func (h *Handler) SendBulk(c *gin.Context) {
	var req BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	aud, err := h.segments.Resolve(ctx, req.SegmentID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	recipients, err := h.segments.Materialize(ctx, aud)
	if err != nil {
		h.HandleError(c, errors.Wrap(err, errors.ErrInternal))
		return
	}

	result, err := h.bulk.SendBulk(ctx, recipients, req.Subject, req.HTMLContent)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CampaignAudit godoc
// @Summary      Campaign lifecycle audit trail
// @Tags         campaigns
// @Produce      json
// @Param        id     path      string  true   "Campaign ID"
// @Param        limit  query     int     false  "Maximum entries" default(50)
// @Success      200    {array}   dispatch.AuditEntry
// @Failure      503    {object}  map[string]interface{}
// @Router       /campaigns/{id}/audit [get]
func (h *Handler) CampaignAudit(c *gin.Context) {
	h.listAudit(c, dispatch.EntityCampaign)
}

func (h *Handler) listAudit(c *gin.Context, entityType string) {
	if h.audit == nil {
		h.HandleError(c, errors.ErrServiceUnavailable.WithDetail("message", "audit trail is not configured"))
		return
	}

	entries, err := h.audit.List(c.Request.Context(), entityType, c.Param("id"), parseLimit(c.Query("limit")))
	if err != nil {
		h.HandleError(c, errors.Wrap(err, errors.ErrInternal))
		return
	}
	if entries == nil {
		entries = []dispatch.AuditEntry{}
	}
	c.JSON(http.StatusOK, entries)
}
