// Package dispatchtest provides an in-memory dispatch.CampaignRepository.
package dispatchtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"mailwave/pkg/models"
)

type CampaignRepository struct {
	mu        sync.Mutex
	campaigns map[string]*models.Campaign
	Err       error
}

func NewCampaignRepository(campaigns ...*models.Campaign) *CampaignRepository {
	r := &CampaignRepository{campaigns: make(map[string]*models.Campaign)}
	for _, c := range campaigns {
		cp := *c
		r.campaigns[c.ID] = &cp
	}
	return r
}

func (r *CampaignRepository) Get(_ context.Context, id string) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	c, ok := r.campaigns[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

// Status returns the stored status, or "" for an unknown campaign.
func (r *CampaignRepository) Status(id string) models.CampaignStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.campaigns[id]; ok {
		return c.Status
	}
	return ""
}

// SetStatus changes a status directly, as a concurrent operator would.
func (r *CampaignRepository) SetStatus(id string, status models.CampaignStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.campaigns[id]; ok {
		c.Status = status
	}
}

func (r *CampaignRepository) Insert(_ context.Context, c *models.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	cp := *c
	r.campaigns[c.ID] = &cp
	return nil
}

func (r *CampaignRepository) Transition(_ context.Context, id string, from []models.CampaignStatus, to models.CampaignStatus, set bson.M) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	c, ok := r.campaigns[id]
	if !ok || !contains(from, c.Status) {
		return nil, nil
	}
	before := *c
	c.Status = to
	c.UpdatedAt = time.Now().UTC()
	if at, ok := set["scheduledAt"].(time.Time); ok {
		c.ScheduledAt = &at
	}
	return &before, nil
}

func (r *CampaignRepository) Finish(_ context.Context, id string, status models.CampaignStatus, inc map[string]int64, at time.Time) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	c, ok := r.campaigns[id]
	if !ok {
		return nil, nil
	}
	before := *c
	c.Status = status
	c.UpdatedAt = at
	if status == models.CampaignSent {
		c.SentAt = &at
	}
	applyInc(&c.Stats, inc)
	return &before, nil
}

func (r *CampaignRepository) IncrementStats(_ context.Context, id string, inc map[string]int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if c, ok := r.campaigns[id]; ok {
		applyInc(&c.Stats, inc)
	}
	return nil
}

func (r *CampaignRepository) ListDue(_ context.Context, now time.Time, limit int64) ([]models.Campaign, error) {
	return r.list(func(c *models.Campaign) bool {
		return c.Status == models.CampaignScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now)
	}, limit)
}

func (r *CampaignRepository) ListStuck(_ context.Context, updatedBefore time.Time) ([]models.Campaign, error) {
	return r.list(func(c *models.Campaign) bool {
		return c.Status == models.CampaignProcessing && c.UpdatedAt.Before(updatedBefore)
	}, 0)
}

func (r *CampaignRepository) list(match func(*models.Campaign) bool, limit int64) ([]models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	var out []models.Campaign
	for _, c := range r.campaigns {
		if match(c) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func contains(statuses []models.CampaignStatus, s models.CampaignStatus) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}

func applyInc(stats *models.CampaignStats, inc map[string]int64) {
	for field, n := range inc {
		switch field {
		case models.StatSent:
			stats.Sent += n
		case models.StatDelivered:
			stats.Delivered += n
		case models.StatOpens:
			stats.Opens += n
		case models.StatUniqueOpens:
			stats.UniqueOpens += n
		case models.StatClicks:
			stats.Clicks += n
		case models.StatUniqueClicks:
			stats.UniqueClicks += n
		case models.StatBounces:
			stats.Bounces += n
		case models.StatComplaints:
			stats.Complaints += n
		case models.StatUnsubscribes:
			stats.Unsubscribes += n
		}
	}
}
