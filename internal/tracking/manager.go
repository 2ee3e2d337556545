package tracking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"mailwave/internal/constants"
	"mailwave/internal/logger"
	"mailwave/pkg/errors"
	"mailwave/pkg/logging"
	"mailwave/pkg/metrics"
	"mailwave/pkg/models"
	"mailwave/pkg/tracing"
)

// CampaignCounter applies $inc updates to campaign stats.
type CampaignCounter interface {
	IncrementStats(ctx context.Context, campaignID string, inc map[string]int64) error
}

// ContactCounter updates the engagement and deliverability of contacts.
type ContactCounter interface {
	IncrementEngagement(ctx context.Context, contactID string, opens, clicks int64, at time.Time) error
	MarkBounced(ctx context.Context, contactID string) error
	MarkUnsubscribed(ctx context.Context, contactID string) error
}

type Manager struct {
	repo      Repository
	campaigns CampaignCounter
	contacts  ContactCounter
	ttl       time.Duration
	logger    logger.Logger
	now       func() time.Time
	newID     func() string
}

func NewManager(repo Repository, campaigns CampaignCounter, contacts ContactCounter, ttl time.Duration, log logger.Logger) *Manager {
	if ttl <= 0 {
		ttl = constants.TrackingTTL
	}
	return &Manager{
		repo:      repo,
		campaigns: campaigns,
		contacts:  contacts,
		ttl:       ttl,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.New().String() },
	}
}

// Create inserts a pending record and returns its tracking id. campaignID is
// empty for ad-hoc bulk sends.
func (m *Manager) Create(ctx context.Context, campaignID, contactID, email string) (string, error) {
	now := m.now()
	rec := &models.TrackingRecord{
		TrackingID:     m.newID(),
		ContactID:      contactID,
		Email:          email,
		DeliveryStatus: models.DeliveryPending,
		ClickedLinks:   []models.ClickedLink{},
		CreatedAt:      now,
		ExpiresAt:      now.Add(m.ttl),
	}
	if campaignID != "" {
		rec.CampaignID = &campaignID
	}

	if err := m.repo.Insert(ctx, rec); err != nil {
		metrics.IncTrackingEvent("create", "error")
		return "", err
	}
	metrics.IncTrackingEvent("create", "success")
	return rec.TrackingID, nil
}

// RecordSent is idempotent. Only the first call sets sentAt.
func (m *Manager) RecordSent(ctx context.Context, trackingID string) error {
	updated, err := m.repo.MarkSent(ctx, trackingID, m.now())
	if err != nil {
		metrics.IncTrackingEvent("sent", "error")
		return err
	}
	if updated {
		metrics.IncTrackingEvent("sent", "success")
	}
	return nil
}

// RecordOpen counts every hit. Unknown tracking ids are ignored.
func (m *Manager) RecordOpen(ctx context.Context, trackingID string) error {
	ctx = logging.WithTrackingID(ctx, trackingID)
	ctx, span := tracing.Start(ctx, "tracking", "tracking.open")
	defer span.End()

	at := m.now()
	before, err := m.repo.RecordOpen(ctx, trackingID, at)
	if err != nil {
		tracing.RecordError(span, err)
		metrics.IncTrackingEvent("open", "error")
		return err
	}
	if before == nil {
		metrics.IncTrackingEvent("open", "unknown")
		m.logger.DebugwCtx(ctx, "Open for unknown tracking record")
		return nil
	}
	metrics.IncTrackingEvent("open", "success")

	inc := map[string]int64{models.StatOpens: 1}
	if !before.Opened {
		inc[models.StatUniqueOpens] = 1
	}
	m.incrementCampaign(ctx, before.CampaignID, inc)
	m.engage(ctx, before.ContactID, 1, 0, at)
	return nil
}

// RecordLegacyOpen serves pixels that carry campaign and contact ids instead
// of a tracking id.
func (m *Manager) RecordLegacyOpen(ctx context.Context, campaignID, contactID string) error {
	metrics.IncTrackingEvent("legacy_open", "success")
	m.incrementCampaign(ctx, &campaignID, map[string]int64{models.StatOpens: 1})
	m.engage(ctx, contactID, 1, 0, m.now())
	return nil
}

func (m *Manager) RecordClick(ctx context.Context, trackingID, url string) error {
	ctx = logging.WithTrackingID(ctx, trackingID)
	ctx, span := tracing.Start(ctx, "tracking", "tracking.click")
	defer span.End()

	at := m.now()
	before, err := m.repo.RecordClick(ctx, trackingID, url, at)
	if err != nil {
		tracing.RecordError(span, err)
		metrics.IncTrackingEvent("click", "error")
		return err
	}
	if before == nil {
		metrics.IncTrackingEvent("click", "unknown")
		return nil
	}
	metrics.IncTrackingEvent("click", "success")

	inc := map[string]int64{models.StatClicks: 1}
	if !before.Clicked {
		inc[models.StatUniqueClicks] = 1
	}
	m.incrementCampaign(ctx, before.CampaignID, inc)
	m.engage(ctx, before.ContactID, 0, 1, at)
	return nil
}

// ApplyDeliveryEvent folds a transport callback into the record, the
// campaign stats and the contact flags.
func (m *Manager) ApplyDeliveryEvent(ctx context.Context, ev models.DeliveryEvent) error {
	if err := ev.Validate(); err != nil {
		return errors.ErrValidation.WithCause(err)
	}
	ctx = logging.WithTrackingID(ctx, ev.TrackingID)

	var update DeliveryUpdate
	var inc map[string]int64
	switch ev.Type {
	case models.DeliveryEventDelivered:
		update.Status = models.DeliveryDelivered
		inc = map[string]int64{models.StatDelivered: 1}
	case models.DeliveryEventBounced:
		update = DeliveryUpdate{Status: models.DeliveryBounced, BounceType: ev.BounceType, BounceReason: ev.Reason}
		if update.BounceType == "" {
			update.BounceType = models.BounceSoft
		}
		inc = map[string]int64{models.StatBounces: 1}
	case models.DeliveryEventComplained:
		inc = map[string]int64{models.StatComplaints: 1}
	case models.DeliveryEventFailed:
		update.Status = models.DeliveryFailed
	}

	var before *models.TrackingRecord
	var err error
	if update.Status != "" {
		before, err = m.repo.SetDelivery(ctx, ev.TrackingID, update)
	} else {
		before, err = m.repo.Get(ctx, ev.TrackingID)
	}
	if err != nil {
		metrics.IncTrackingEvent(string(ev.Type), "error")
		return err
	}
	if before == nil {
		metrics.IncTrackingEvent(string(ev.Type), "unknown")
		m.logger.WarnwCtx(ctx, "Delivery event for unknown tracking record", "type", ev.Type)
		return nil
	}
	metrics.IncTrackingEvent(string(ev.Type), "success")

	if len(inc) > 0 {
		m.incrementCampaign(ctx, before.CampaignID, inc)
	}

	switch {
	case ev.Type == models.DeliveryEventBounced && update.BounceType == models.BounceHard:
		if err := m.contacts.MarkBounced(ctx, before.ContactID); err != nil {
			return err
		}
	case ev.Type == models.DeliveryEventComplained:
		if err := m.contacts.MarkUnsubscribed(ctx, before.ContactID); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) Analytics(ctx context.Context, campaignID string) (*Engagement, error) {
	return m.repo.CampaignEngagement(ctx, campaignID)
}

// Counter failures are logged and never fail the tracking request.
func (m *Manager) incrementCampaign(ctx context.Context, campaignID *string, inc map[string]int64) {
	if campaignID == nil || *campaignID == "" {
		return
	}
	if err := m.campaigns.IncrementStats(ctx, *campaignID, inc); err != nil {
		m.logger.WarnwCtx(ctx, "Failed to update campaign stats",
			"campaign_id", *campaignID,
			"error", err,
		)
	}
}

func (m *Manager) engage(ctx context.Context, contactID string, opens, clicks int64, at time.Time) {
	if contactID == "" {
		return
	}
	if err := m.contacts.IncrementEngagement(ctx, contactID, opens, clicks, at); err != nil {
		m.logger.WarnwCtx(ctx, "Failed to update contact engagement",
			"contact_id", contactID,
			"error", err,
		)
	}
}
