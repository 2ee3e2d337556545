// Package trackingtest provides in-memory tracking stores for tests.
package trackingtest

import (
	"context"
	"math"
	"sync"
	"time"

	"mailwave/internal/tracking"
	"mailwave/pkg/models"
)

type Repository struct {
	mu      sync.Mutex
	records map[string]*models.TrackingRecord
	order   []string
	Err     error
}

func NewRepository() *Repository {
	return &Repository{records: make(map[string]*models.TrackingRecord)}
}

func (r *Repository) Insert(_ context.Context, rec *models.TrackingRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	cp := *rec
	r.records[rec.TrackingID] = &cp
	r.order = append(r.order, rec.TrackingID)
	return nil
}

func (r *Repository) Get(_ context.Context, trackingID string) (*models.TrackingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyOf(trackingID), r.Err
}

// All returns copies of every record in insertion order.
func (r *Repository) All() []*models.TrackingRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.TrackingRecord, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.copyOf(id))
	}
	return out
}

func (r *Repository) copyOf(id string) *models.TrackingRecord {
	rec, ok := r.records[id]
	if !ok {
		return nil
	}
	cp := *rec
	cp.ClickedLinks = append([]models.ClickedLink(nil), rec.ClickedLinks...)
	return &cp
}

func (r *Repository) MarkSent(_ context.Context, trackingID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return false, r.Err
	}
	rec, ok := r.records[trackingID]
	if !ok || rec.DeliveryStatus != models.DeliveryPending {
		return false, nil
	}
	rec.DeliveryStatus = models.DeliverySent
	rec.SentAt = &at
	return true, nil
}

func (r *Repository) RecordOpen(_ context.Context, trackingID string, at time.Time) (*models.TrackingRecord, error) {
	return r.update(trackingID, func(rec *models.TrackingRecord) {
		rec.Opened = true
		rec.OpenCount++
		if rec.FirstOpenedAt == nil {
			rec.FirstOpenedAt = &at
		}
		rec.LastOpenedAt = &at
	})
}

func (r *Repository) RecordClick(_ context.Context, trackingID, url string, at time.Time) (*models.TrackingRecord, error) {
	return r.update(trackingID, func(rec *models.TrackingRecord) {
		rec.Clicked = true
		rec.ClickCount++
		if rec.FirstClickedAt == nil {
			rec.FirstClickedAt = &at
		}
		rec.LastClickedAt = &at
		for i := range rec.ClickedLinks {
			if rec.ClickedLinks[i].URL == url {
				rec.ClickedLinks[i].ClickCount++
				rec.ClickedLinks[i].Timestamp = at
				return
			}
		}
		rec.ClickedLinks = append(rec.ClickedLinks, models.ClickedLink{URL: url, ClickCount: 1, Timestamp: at})
	})
}

func (r *Repository) SetDelivery(_ context.Context, trackingID string, u tracking.DeliveryUpdate) (*models.TrackingRecord, error) {
	return r.update(trackingID, func(rec *models.TrackingRecord) {
		rec.DeliveryStatus = u.Status
		if u.BounceType != "" {
			rec.BounceType = u.BounceType
		}
		if u.BounceReason != "" {
			rec.BounceReason = u.BounceReason
		}
	})
}

func (r *Repository) update(trackingID string, fn func(*models.TrackingRecord)) (*models.TrackingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	before := r.copyOf(trackingID)
	if before == nil {
		return nil, nil
	}
	fn(r.records[trackingID])
	return before, nil
}

func (r *Repository) CampaignEngagement(_ context.Context, campaignID string) (*tracking.Engagement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := &tracking.Engagement{}
	var totalMs float64
	var timed int
	for _, rec := range r.records {
		if rec.CampaignID == nil || *rec.CampaignID != campaignID {
			continue
		}
		if rec.Opened {
			out.UniqueOpens++
		}
		if rec.Clicked {
			out.UniqueClicks++
		}
		if rec.FirstOpenedAt != nil && rec.SentAt != nil {
			totalMs += float64(rec.FirstOpenedAt.Sub(*rec.SentAt).Milliseconds())
			timed++
		}
	}
	if timed > 0 {
		out.AvgOpenTime = math.Round(totalMs / float64(timed) / 60000)
	}
	return out, nil
}

// CampaignStats records $inc updates per campaign.
type CampaignStats struct {
	mu    sync.Mutex
	stats map[string]map[string]int64
	Err   error
}

func NewCampaignStats() *CampaignStats {
	return &CampaignStats{stats: make(map[string]map[string]int64)}
}

func (c *CampaignStats) IncrementStats(_ context.Context, campaignID string, inc map[string]int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	if c.stats[campaignID] == nil {
		c.stats[campaignID] = make(map[string]int64)
	}
	for k, v := range inc {
		c.stats[campaignID][k] += v
	}
	return nil
}

func (c *CampaignStats) Get(campaignID, field string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats[campaignID][field]
}
