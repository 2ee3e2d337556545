// Package api serves the operator endpoints for segments, campaigns and
// A/B tests.
package api

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"mailwave/internal/abtest"
	"mailwave/internal/audience"
	"mailwave/internal/constants"
	"mailwave/internal/dispatch"
	"mailwave/internal/logger"
	"mailwave/pkg/errors"
	"mailwave/pkg/middleware"
	"mailwave/pkg/models"
	"mailwave/pkg/tracing"
)

type Segments interface {
	Resolve(ctx context.Context, segmentID string) (*audience.Audience, error)
	Materialize(ctx context.Context, aud *audience.Audience) ([]*models.Contact, error)
	Preview(ctx context.Context, rules []models.Rule, logic models.Logic) (*audience.PreviewResult, error)
	Sample(ctx context.Context, rules []models.Rule, logic models.Logic, limit int) ([]*models.Contact, error)
	Stats(ctx context.Context, segmentID string) (*audience.Stats, error)
	Sync(ctx context.Context, segmentID string) (*audience.SyncResult, error)
}

type Campaigns interface {
	Get(ctx context.Context, id string) (*models.Campaign, error)
	SendNow(ctx context.Context, id string) (*dispatch.Result, error)
	Resume(ctx context.Context, id string) (*dispatch.Result, error)
	Schedule(ctx context.Context, id string, at time.Time) (*models.Campaign, error)
	Pause(ctx context.Context, id string) (*models.Campaign, error)
	Clone(ctx context.Context, id, name string) (*models.Campaign, error)
	Analytics(ctx context.Context, id string) (*dispatch.Analytics, error)
	ListStuck(ctx context.Context, olderThan time.Duration) ([]models.Campaign, error)
}

type BulkSender interface {
	SendBulk(ctx context.Context, recipients []*models.Contact, subject, html string) (*dispatch.BulkResult, error)
}

type ABTests interface {
	Get(ctx context.Context, id string) (*models.ABTest, error)
	Start(ctx context.Context, id string, at time.Time) (*models.ABTest, error)
	Pause(ctx context.Context, id string) (*models.ABTest, error)
	Complete(ctx context.Context, id, winnerCampaignID string, improvement float64) (*models.ABTest, error)
	Performance(ctx context.Context, id string) (*abtest.Performance, error)
}

type AuditReader interface {
	List(ctx context.Context, entityType, entityID string, limit int) ([]dispatch.AuditEntry, error)
}

type Handler struct {
	segments  Segments
	campaigns Campaigns
	bulk      BulkSender
	abtests   ABTests
	audit     AuditReader
	logger    logger.Logger
}

type Option func(*Handler)

// WithAudit enables the audit trail endpoints.
func WithAudit(a AuditReader) Option {
	return func(h *Handler) { h.audit = a }
}

func NewHandler(segments Segments, campaigns Campaigns, bulk BulkSender, abtests ABTests, log logger.Logger, opts ...Option) *Handler {
	h := &Handler{
		segments:  segments,
		campaigns: campaigns,
		bulk:      bulk,
		abtests:   abtests,
		logger:    log,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	v1 := router.Group("/api/v1")
	{
		segments := v1.Group("/segments")
		{
			segments.GET("/prebuilt", h.PrebuiltSegments)
			segments.POST("/preview", h.PreviewSegment)
			segments.POST("/sample", h.SampleSegment)
			segments.GET("/:id/stats", h.SegmentStats)
			segments.POST("/:id/sync", h.SyncSegment)
		}

		campaigns := v1.Group("/campaigns", middleware.CampaignContext(), tracing.AnnotateRequest("campaign.id"))
		{
			campaigns.GET("/stuck", h.ListStuckCampaigns)
			campaigns.POST("/bulk", h.SendBulk)
			campaigns.GET("/:id", h.GetCampaign)
			campaigns.POST("/:id/send", h.SendCampaign)
			campaigns.POST("/:id/resume", h.ResumeCampaign)
			campaigns.POST("/:id/schedule", h.ScheduleCampaign)
			campaigns.POST("/:id/pause", h.PauseCampaign)
			campaigns.POST("/:id/clone", h.CloneCampaign)
			campaigns.GET("/:id/analytics", h.CampaignAnalytics)
			campaigns.GET("/:id/audit", h.CampaignAudit)
		}

		tests := v1.Group("/abtests", tracing.AnnotateRequest("abtest.id"))
		{
			tests.GET("/:id", h.GetABTest)
			tests.POST("/:id/start", h.StartABTest)
			tests.POST("/:id/pause", h.PauseABTest)
			tests.POST("/:id/complete", h.CompleteABTest)
			tests.GET("/:id/performance", h.ABTestPerformance)
			tests.GET("/:id/audit", h.ABTestAudit)
		}
	}
}

func (h *Handler) HandleError(c *gin.Context, err error) {
	status := errors.ToHTTPStatus(err)
	if status >= 500 {
		h.logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)
	} else {
		h.logger.InfowCtx(c.Request.Context(), "Request rejected", "error", err, "path", c.Request.URL.Path)
	}
	c.JSON(status, errors.ToErrorResponse(err))
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	h.HandleError(c, errors.ErrValidation.WithCause(err))
}

func parseLimit(limitStr string) int {
	if limitStr == "" {
		return constants.DefaultLimit
	}
	parsed, err := strconv.Atoi(limitStr)
	if err != nil || parsed <= 0 || parsed > constants.MaxLimit {
		return constants.DefaultLimit
	}
	return parsed
}
