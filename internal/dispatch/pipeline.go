package dispatch

import (
	"context"
	"fmt"
	"time"

	"mailwave/internal/audience"
	"mailwave/internal/logger"
	"mailwave/internal/personalize"
	"mailwave/internal/transport"
	"mailwave/pkg/errors"
	"mailwave/pkg/logging"
	"mailwave/pkg/metrics"
	"mailwave/pkg/models"
	"mailwave/pkg/tracing"
)

type Audiences interface {
	Resolve(ctx context.Context, segmentID string) (*audience.Audience, error)
	Stream(ctx context.Context, aud *audience.Audience) (audience.ContactIterator, error)
}

type Tracker interface {
	Create(ctx context.Context, campaignID, contactID, email string) (string, error)
	RecordSent(ctx context.Context, trackingID string) error
}

const (
	kindCampaign = "campaign"
	kindVariant  = "variant"
	kindBulk     = "bulk"
)

// Pipeline sends a campaign to its audience, one recipient at a time.
type Pipeline struct {
	recorder
	campaigns CampaignRepository
	audiences Audiences
	renderer  *personalize.Renderer
	tracker   Tracker
	sender    transport.Sender
	from      string
	now       func() time.Time
}

type Option func(*recorder)

func WithAuditor(a Auditor) Option {
	return func(r *recorder) { r.audit = a }
}

func WithEvents(e *CampaignEvents) Option {
	return func(r *recorder) { r.events = e }
}

func NewPipeline(
	campaigns CampaignRepository,
	audiences Audiences,
	renderer *personalize.Renderer,
	tracker Tracker,
	sender transport.Sender,
	from string,
	log logger.Logger,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		recorder:  recorder{logger: log},
		campaigns: campaigns,
		audiences: audiences,
		renderer:  renderer,
		tracker:   tracker,
		sender:    sender,
		from:      from,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&p.recorder)
	}
	return p
}

// Dispatch claims the campaign by moving it from one of the allowed states
// to processing, then streams its audience through the send step.
func (p *Pipeline) Dispatch(ctx context.Context, campaignID string, from ...models.CampaignStatus) (*Result, error) {
	start := time.Now()
	ctx = logging.WithCampaignID(ctx, campaignID)
	ctx, span := tracing.Start(ctx, "dispatch", "dispatch.campaign")
	defer span.End()

	campaign, err := p.claim(ctx, campaignID, from)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	prev := campaign.Status
	campaign.Status = models.CampaignProcessing
	p.started(ctx, campaign, prev)

	aud, err := p.audiences.Resolve(ctx, campaign.SegmentID)
	if err != nil {
		tracing.RecordError(span, err)
		metrics.ObserveDispatch(kindCampaign, "aborted", time.Since(start))
		return p.abort(ctx, campaign, prev, err)
	}

	it, err := p.audiences.Stream(ctx, aud)
	if err != nil {
		tracing.RecordError(span, err)
		metrics.ObserveDispatch(kindCampaign, "aborted", time.Since(start))
		return p.abort(ctx, campaign, prev, err)
	}
	defer it.Close(context.WithoutCancel(ctx))

	prepared := p.renderer.Prepare(ctx, campaign)
	result := newResult()
	for it.Next(ctx) {
		result.Add(p.deliver(ctx, campaign, prepared, it.Contact(), kindCampaign))
	}

	if ctx.Err() != nil {
		return p.interrupted(ctx, campaign, result, ctx.Err())
	}
	if err := it.Err(); err != nil {
		tracing.RecordError(span, err)
		p.logger.ErrorwCtx(ctx, "Audience cursor failed mid-stream",
			"error", err,
			"sent", result.Sent,
			"failed", result.Failed,
		)
		p.finish(ctx, campaign, models.CampaignFailed, result)
		metrics.ObserveDispatch(kindCampaign, "failed", time.Since(start))
		return result, fmt.Errorf("failed to stream audience: %w", err)
	}

	p.finish(ctx, campaign, models.CampaignSent, result)
	metrics.ObserveDispatch(kindCampaign, "sent", time.Since(start))
	return result, nil
}

// DispatchGroup sends a campaign to an already resolved group of recipients.
// The A/B allocator uses it for each variant.
func (p *Pipeline) DispatchGroup(ctx context.Context, campaignID string, recipients []*models.Contact) (*Result, error) {
	start := time.Now()
	ctx = logging.WithCampaignID(ctx, campaignID)
	ctx, span := tracing.Start(ctx, "dispatch", "dispatch.group")
	defer span.End()

	campaign, err := p.claim(ctx, campaignID, []models.CampaignStatus{
		models.CampaignDraft, models.CampaignScheduled, models.CampaignPaused,
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	prev := campaign.Status
	campaign.Status = models.CampaignProcessing
	p.started(ctx, campaign, prev)

	prepared := p.renderer.Prepare(ctx, campaign)
	result := newResult()
	for _, c := range recipients {
		if ctx.Err() != nil {
			return p.interrupted(ctx, campaign, result, ctx.Err())
		}
		result.Add(p.deliver(ctx, campaign, prepared, c, kindVariant))
	}

	p.finish(ctx, campaign, models.CampaignSent, result)
	metrics.ObserveDispatch(kindVariant, "sent", time.Since(start))
	return result, nil
}

// deliver runs the per-recipient step. Every failure becomes part of the
// outcome.
func (p *Pipeline) deliver(ctx context.Context, campaign *models.Campaign, prepared *personalize.Prepared, c *models.Contact, kind string) Outcome {
	content := p.renderer.Personalize(prepared, c)

	trackingID, err := p.tracker.Create(ctx, campaign.ID, c.ID, c.Email)
	if err != nil {
		metrics.IncRecipient(kind, "failed")
		p.logger.WarnwCtx(ctx, "Failed to create tracking record",
			"error", err,
			"email", c.Email,
		)
		return Outcome{Email: c.Email, Err: fmt.Errorf("create tracking record: %w", err)}
	}
	content = p.renderer.Instrument(ctx, content, trackingID)

	_, err = p.sender.Send(ctx, transport.Message{
		From:       p.from,
		To:         c.Email,
		Subject:    content.Subject,
		HTML:       content.HTML,
		Text:       content.Text,
		TrackingID: trackingID,
		Tags:       campaignTags(campaign),
	})
	if err != nil {
		metrics.IncRecipient(kind, "failed")
		p.logger.WarnwCtx(ctx, "Failed to send email",
			"error", err,
			"email", c.Email,
			"tracking_id", trackingID,
		)
		return Outcome{Email: c.Email, TrackingID: trackingID, Err: err}
	}

	if err := p.tracker.RecordSent(ctx, trackingID); err != nil {
		p.logger.WarnwCtx(ctx, "Failed to mark tracking record sent",
			"error", err,
			"tracking_id", trackingID,
		)
	}
	metrics.IncRecipient(kind, "sent")
	return Outcome{Email: c.Email, TrackingID: trackingID}
}

func (p *Pipeline) claim(ctx context.Context, id string, from []models.CampaignStatus) (*models.Campaign, error) {
	before, err := p.campaigns.Transition(ctx, id, from, models.CampaignProcessing, nil)
	if err != nil {
		return nil, err
	}
	if before == nil {
		return nil, rejectTransition(ctx, p.campaigns, id, models.CampaignProcessing)
	}
	return before, nil
}

func (p *Pipeline) started(ctx context.Context, c *models.Campaign, prev models.CampaignStatus) {
	p.logger.InfowCtx(ctx, "Campaign dispatch started",
		"segment_id", c.SegmentID,
		"from_status", prev,
	)
	p.transition(ctx, c, prev, models.CampaignProcessing, "dispatch_started", nil)
	p.publish(ctx, models.EventCampaignDispatchStarted, models.CampaignEvent{
		CampaignID: c.ID,
		ABTestID:   c.ABTestID,
		From:       prev,
		To:         models.CampaignProcessing,
	})
}

// abort handles a failure before any send. A missing segment fails the
// campaign. Any other error restores the previous status.
func (p *Pipeline) abort(ctx context.Context, c *models.Campaign, prev models.CampaignStatus, cause error) (*Result, error) {
	if errors.IsSegmentNotFound(cause) {
		p.logger.WarnwCtx(ctx, "Campaign segment not found, marking failed",
			"segment_id", c.SegmentID,
		)
		p.finish(ctx, c, models.CampaignFailed, newResult())
		return newResult(), cause
	}

	p.logger.ErrorwCtx(ctx, "Failed to resolve campaign audience",
		"error", cause,
		"segment_id", c.SegmentID,
	)
	restoreCtx := context.WithoutCancel(ctx)
	if _, err := p.campaigns.Transition(restoreCtx, c.ID, []models.CampaignStatus{models.CampaignProcessing}, prev, nil); err != nil {
		p.logger.ErrorwCtx(ctx, "Failed to restore campaign status",
			"error", err,
			"status", prev,
		)
	} else {
		p.transition(restoreCtx, c, models.CampaignProcessing, prev, "dispatch_aborted", map[string]interface{}{"error": cause.Error()})
	}
	return nil, cause
}

// interrupted persists the partial stats of a cancelled run. The status is
// left at processing.
func (p *Pipeline) interrupted(ctx context.Context, c *models.Campaign, result *Result, cause error) (*Result, error) {
	persistCtx := context.WithoutCancel(ctx)
	if err := p.campaigns.IncrementStats(persistCtx, c.ID, result.Stats()); err != nil {
		p.logger.ErrorwCtx(ctx, "Failed to persist partial campaign stats",
			"error", err,
		)
	}
	p.logger.WarnwCtx(ctx, "Campaign dispatch interrupted",
		"sent", result.Sent,
		"failed", result.Failed,
	)
	p.transition(persistCtx, c, "", models.CampaignProcessing, "dispatch_interrupted", map[string]interface{}{
		"sent":   result.Sent,
		"failed": result.Failed,
	})
	return result, cause
}

func (p *Pipeline) finish(ctx context.Context, c *models.Campaign, status models.CampaignStatus, result *Result) {
	before, err := p.campaigns.Finish(ctx, c.ID, status, result.Stats(), p.now())
	if err != nil {
		p.logger.ErrorwCtx(ctx, "Failed to persist campaign result",
			"error", err,
			"status", status,
			"sent", result.Sent,
			"failed", result.Failed,
		)
		return
	}
	if before != nil && before.Status == models.CampaignPaused {
		p.logger.WarnwCtx(ctx, "Campaign was paused during dispatch, run completed anyway",
			"status", status,
		)
	}

	p.logger.InfowCtx(ctx, "Campaign dispatch finished",
		"status", status,
		"total", result.Total,
		"sent", result.Sent,
		"failed", result.Failed,
	)
	p.transition(ctx, c, models.CampaignProcessing, status, "dispatch_finished", map[string]interface{}{
		"total":  result.Total,
		"sent":   result.Sent,
		"failed": result.Failed,
	})

	eventType := models.EventCampaignSent
	if status == models.CampaignFailed {
		eventType = models.EventCampaignFailed
	}
	p.publish(ctx, eventType, models.CampaignEvent{
		CampaignID: c.ID,
		ABTestID:   c.ABTestID,
		From:       models.CampaignProcessing,
		To:         status,
		Total:      result.Total,
		Sent:       result.Sent,
		Failed:     result.Failed,
	})
}

func campaignTags(c *models.Campaign) []transport.Tag {
	tags := []transport.Tag{{Name: "campaign_id", Value: transport.TagValue(c.ID)}}
	if c.Type != "" {
		tags = append(tags, transport.Tag{Name: "campaign_type", Value: string(c.Type)})
	}
	if c.SegmentID != "" {
		tags = append(tags, transport.Tag{Name: "segment_id", Value: transport.TagValue(c.SegmentID)})
	}
	return tags
}

// rejectTransition explains why a conditional transition matched nothing.
func rejectTransition(ctx context.Context, campaigns CampaignRepository, id string, to models.CampaignStatus) error {
	current, err := campaigns.Get(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return errors.ErrCampaignNotFound.WithDetail("campaign_id", id)
	}
	return errors.InvalidTransition(EntityCampaign, id, string(current.Status), string(to))
}
