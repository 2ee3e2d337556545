package dispatch

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"mailwave/internal/tracking"
	"mailwave/pkg/errors"
	"mailwave/pkg/logging"
	"mailwave/pkg/models"
)

// EngagementSource aggregates tracking records for a campaign.
type EngagementSource interface {
	Analytics(ctx context.Context, campaignID string) (*tracking.Engagement, error)
}

// Service implements the campaign lifecycle operations on top of the
// dispatch pipeline.
type Service struct {
	campaigns  CampaignRepository
	pipeline   *Pipeline
	engagement EngagementSource
	now        func() time.Time
}

func NewService(campaigns CampaignRepository, pipeline *Pipeline, engagement EngagementSource) *Service {
	return &Service{
		campaigns:  campaigns,
		pipeline:   pipeline,
		engagement: engagement,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Get(ctx context.Context, id string) (*models.Campaign, error) {
	c, err := s.campaigns.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal)
	}
	if c == nil {
		return nil, errors.ErrCampaignNotFound.WithDetail("campaign_id", id)
	}
	return c, nil
}

// SendNow dispatches a draft or scheduled campaign immediately.
func (s *Service) SendNow(ctx context.Context, id string) (*Result, error) {
	return s.pipeline.Dispatch(ctx, id, models.CampaignDraft, models.CampaignScheduled)
}

// Resume dispatches a paused campaign. Any other status is rejected and
// nothing is changed.
func (s *Service) Resume(ctx context.Context, id string) (*Result, error) {
	return s.pipeline.Dispatch(ctx, id, models.CampaignPaused)
}

// DispatchScheduled is used by the scheduler for due campaigns.
func (s *Service) DispatchScheduled(ctx context.Context, id string) (*Result, error) {
	return s.pipeline.Dispatch(ctx, id, models.CampaignScheduled)
}

// Schedule queues a draft or paused campaign. A zero time schedules it for
// the next scheduler tick.
func (s *Service) Schedule(ctx context.Context, id string, at time.Time) (*models.Campaign, error) {
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()
	c, err := s.move(ctx, id, []models.CampaignStatus{models.CampaignDraft, models.CampaignPaused},
		models.CampaignScheduled, bson.M{"scheduledAt": at})
	if err != nil {
		return nil, err
	}
	c.ScheduledAt = &at
	return c, nil
}

func (s *Service) Pause(ctx context.Context, id string) (*models.Campaign, error) {
	return s.move(ctx, id, []models.CampaignStatus{models.CampaignScheduled, models.CampaignProcessing},
		models.CampaignPaused, nil)
}

func (s *Service) move(ctx context.Context, id string, from []models.CampaignStatus, to models.CampaignStatus, set bson.M) (*models.Campaign, error) {
	ctx = logging.WithCampaignID(ctx, id)
	before, err := s.campaigns.Transition(ctx, id, from, to, set)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal)
	}
	if before == nil {
		return nil, rejectTransition(ctx, s.campaigns, id, to)
	}

	prev := before.Status
	before.Status = to
	before.UpdatedAt = s.now()

	s.pipeline.logger.InfowCtx(ctx, "Campaign status changed",
		"from_status", prev,
		"to_status", to,
	)
	s.pipeline.transition(ctx, before, prev, to, string(to), nil)
	s.pipeline.publish(ctx, models.EventCampaignStateChanged, models.CampaignEvent{
		CampaignID: id,
		ABTestID:   before.ABTestID,
		From:       prev,
		To:         to,
	})
	return before, nil
}

// Clone copies a campaign into a new draft with zeroed stats. An empty name
// becomes "<name> - Copy".
func (s *Service) Clone(ctx context.Context, id, name string) (*models.Campaign, error) {
	src, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	clone := *src
	clone.ID = uuid.New().String()
	clone.Name = name
	if clone.Name == "" {
		clone.Name = src.Name + " - Copy"
	}
	clone.Status = models.CampaignDraft
	clone.Stats = models.CampaignStats{}
	clone.ScheduledAt = nil
	clone.SentAt = nil
	clone.ABTestID = ""
	clone.IsVariant = false
	clone.EmailBlocks = append([]models.EmailBlock(nil), src.EmailBlocks...)
	clone.CreatedAt = now
	clone.UpdatedAt = now

	if err := s.campaigns.Insert(ctx, &clone); err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal)
	}
	s.pipeline.transition(ctx, &clone, "", models.CampaignDraft, "clone", map[string]interface{}{"source_id": id})
	return &clone, nil
}

// ListStuck returns campaigns left in processing for longer than olderThan.
func (s *Service) ListStuck(ctx context.Context, olderThan time.Duration) ([]models.Campaign, error) {
	campaigns, err := s.campaigns.ListStuck(ctx, s.now().Add(-olderThan))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal)
	}
	return campaigns, nil
}

type CampaignSummary struct {
	Name   string                `json:"name"`
	Status models.CampaignStatus `json:"status"`
	Type   models.CampaignType   `json:"type"`
}

type Rates struct {
	OpenRate   float64 `json:"openRate"`
	ClickRate  float64 `json:"clickRate"`
	BounceRate float64 `json:"bounceRate"`
}

type Timeline struct {
	SentAt      *time.Time `json:"sentAt,omitempty"`
	CompletedAt time.Time  `json:"completedAt"`
}

type Analytics struct {
	Campaign   CampaignSummary      `json:"campaign"`
	Metrics    models.CampaignStats `json:"metrics"`
	Rates      Rates                `json:"rates"`
	Engagement tracking.Engagement  `json:"engagement"`
	Timeline   Timeline             `json:"timeline"`
}

func (s *Service) Analytics(ctx context.Context, id string) (*Analytics, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	a := &Analytics{
		Campaign: CampaignSummary{Name: c.Name, Status: c.Status, Type: c.Type},
		Metrics:  c.Stats,
		Rates: Rates{
			OpenRate:   Rate(c.Stats.UniqueOpens, c.Stats.Sent),
			ClickRate:  Rate(c.Stats.UniqueClicks, c.Stats.Sent),
			BounceRate: Rate(c.Stats.Bounces, c.Stats.Sent),
		},
		Timeline: Timeline{SentAt: c.SentAt, CompletedAt: c.UpdatedAt},
	}

	if s.engagement != nil {
		eng, err := s.engagement.Analytics(ctx, id)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrInternal)
		}
		if eng != nil {
			a.Engagement = *eng
		}
	}
	return a, nil
}

// Rate is part/total as a percentage rounded to two decimals, or 0 when
// total is 0.
func Rate(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*10000) / 100
}
