package abtest

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"mailwave/internal/dispatch"
	"mailwave/internal/logger"
	"mailwave/pkg/errors"
	"mailwave/pkg/models"
)

type CampaignReader interface {
	Get(ctx context.Context, id string) (*models.Campaign, error)
}

type Service struct {
	tests     Repository
	campaigns CampaignReader
	auditor   dispatch.Auditor
	logger    logger.Logger
	now       func() time.Time
}

func NewService(tests Repository, campaigns CampaignReader, auditor dispatch.Auditor, log logger.Logger) *Service {
	return &Service{
		tests:     tests,
		campaigns: campaigns,
		auditor:   auditor,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Get(ctx context.Context, id string) (*models.ABTest, error) {
	t, err := s.tests.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal)
	}
	if t == nil {
		return nil, errors.ErrABTestNotFound.WithDetail("ab_test_id", id)
	}
	return t, nil
}

// Start marks a draft or paused test as running. A zero at starts it now.
// The scheduler picks it up on its next tick once startedAt has passed.
func (s *Service) Start(ctx context.Context, id string, at time.Time) (*models.ABTest, error) {
	if at.IsZero() {
		at = s.now()
	}
	return s.move(ctx, id, []models.ABTestStatus{models.ABTestDraft, models.ABTestPaused}, models.ABTestRunning,
		bson.M{"startedAt": at.UTC(), "claimedAt": nil}, "start")
}

func (s *Service) Pause(ctx context.Context, id string) (*models.ABTest, error) {
	return s.move(ctx, id, []models.ABTestStatus{models.ABTestDraft, models.ABTestRunning}, models.ABTestPaused, nil, "pause")
}

// Complete declares a winner. The winner must be one of the test's variant
// campaigns.
func (s *Service) Complete(ctx context.Context, id, winnerCampaignID string, improvement float64) (*models.ABTest, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var winner *models.Variant
	for i := range t.Variants {
		if t.Variants[i].CampaignID == winnerCampaignID {
			winner = &t.Variants[i]
			break
		}
	}
	if winner == nil {
		return nil, errors.ErrValidation.
			WithDetail("message", "winner must be one of the test variants").
			WithDetail("winner_id", winnerCampaignID)
	}

	metric := 0.0
	if c, err := s.campaigns.Get(ctx, winner.CampaignID); err == nil && c != nil {
		metric = metricValue(t.WinningMetric, c.Stats)
	}

	stats := models.WinningStats{VariantLabel: winner.Label, Metric: metric, Improvement: improvement}
	set := bson.M{
		"winnerId":     winnerCampaignID,
		"winningStats": stats,
	}
	if t.CompletedAt == nil {
		set["completedAt"] = s.now()
	}
	return s.move(ctx, id,
		[]models.ABTestStatus{models.ABTestRunning, models.ABTestPaused, models.ABTestCompleted},
		models.ABTestCompleted, set, "complete")
}

func (s *Service) move(ctx context.Context, id string, from []models.ABTestStatus, to models.ABTestStatus, set bson.M, action string) (*models.ABTest, error) {
	before, err := s.tests.Transition(ctx, id, from, to, set)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrInternal)
	}
	if before == nil {
		current, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, errors.InvalidTransition(dispatch.EntityABTest, id, string(current.Status), string(to))
	}

	if s.auditor != nil {
		entry := dispatch.AuditEntry{
			EntityType: dispatch.EntityABTest,
			EntityID:   id,
			Action:     action,
			FromStatus: string(before.Status),
			ToStatus:   string(to),
		}
		if err := s.auditor.Log(ctx, entry); err != nil {
			s.logger.WarnwCtx(ctx, "Failed to write audit log", "error", err, "ab_test_id", id, "action", action)
		}
	}
	s.logger.InfowCtx(ctx, "A/B test status changed",
		"ab_test_id", id,
		"from", before.Status,
		"to", to,
	)
	return s.Get(ctx, id)
}

type VariantPerformance struct {
	Label      string  `json:"label"`
	CampaignID string  `json:"campaignId"`
	Sent       int64   `json:"sent"`
	Opens      int64   `json:"opens"`
	Clicks     int64   `json:"clicks"`
	OpenRate   float64 `json:"openRate"`
	ClickRate  float64 `json:"clickRate"`
}

type Performance struct {
	TestID        string               `json:"testId"`
	Status        models.ABTestStatus  `json:"status"`
	WinningMetric models.WinningMetric `json:"winningMetric"`
	WinnerID      string               `json:"winnerId,omitempty"`
	Variants      []VariantPerformance `json:"variants"`
}

// Performance reports per-variant engagement from the variant campaigns'
// stats. Variants whose campaign is gone report zeros.
func (s *Service) Performance(ctx context.Context, id string) (*Performance, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	perf := &Performance{
		TestID:        t.ID,
		Status:        t.Status,
		WinningMetric: t.WinningMetric,
		WinnerID:      t.WinnerID,
		Variants:      make([]VariantPerformance, 0, len(t.Variants)),
	}
	for _, v := range t.Variants {
		vp := VariantPerformance{Label: v.Label, CampaignID: v.CampaignID}
		c, err := s.campaigns.Get(ctx, v.CampaignID)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrInternal)
		}
		if c != nil {
			vp.Sent = c.Stats.Sent
			vp.Opens = c.Stats.UniqueOpens
			vp.Clicks = c.Stats.UniqueClicks
			vp.OpenRate = dispatch.Rate(c.Stats.UniqueOpens, c.Stats.Sent)
			vp.ClickRate = dispatch.Rate(c.Stats.UniqueClicks, c.Stats.Sent)
		}
		perf.Variants = append(perf.Variants, vp)
	}
	return perf, nil
}

func metricValue(m models.WinningMetric, stats models.CampaignStats) float64 {
	switch m {
	case models.MetricOpenRate:
		return dispatch.Rate(stats.UniqueOpens, stats.Sent)
	case models.MetricClickRate:
		return dispatch.Rate(stats.UniqueClicks, stats.Sent)
	}
	return 0
}
