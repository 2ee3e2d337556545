package dispatch

import (
	"context"

	"mailwave/internal/logger"
	"mailwave/pkg/models"
)

// recorder writes the audit trail and publishes lifecycle events. Failures
// are logged and never returned.
type recorder struct {
	audit  Auditor
	events *CampaignEvents
	logger logger.Logger
}

func (r *recorder) transition(ctx context.Context, c *models.Campaign, from, to models.CampaignStatus, action string, details map[string]interface{}) {
	if r.audit != nil {
		err := r.audit.Log(ctx, AuditEntry{
			EntityType: EntityCampaign,
			EntityID:   c.ID,
			Action:     action,
			FromStatus: string(from),
			ToStatus:   string(to),
			Details:    details,
		})
		if err != nil {
			r.logger.WarnwCtx(ctx, "Failed to write campaign audit entry",
				"error", err,
				"campaign_id", c.ID,
				"action", action,
			)
		}
	}
}

func (r *recorder) publish(ctx context.Context, eventType string, ev models.CampaignEvent) {
	if err := r.events.Publish(ctx, eventType, ev); err != nil {
		r.logger.WarnwCtx(ctx, "Failed to publish campaign event",
			"error", err,
			"campaign_id", ev.CampaignID,
			"event_type", eventType,
		)
	}
}
