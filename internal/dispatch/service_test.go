package dispatch_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "mailwave/pkg/errors"
	"mailwave/pkg/models"
)

func TestSchedule(t *testing.T) {
	tests := []struct {
		name    string
		status  models.CampaignStatus
		wantErr bool
	}{
		{name: "draft", status: models.CampaignDraft},
		{name: "paused", status: models.CampaignPaused},
		{name: "sent", status: models.CampaignSent, wantErr: true},
		{name: "processing", status: models.CampaignProcessing, wantErr: true},
	}

	at := time.Date(2026, 11, 1, 9, 0, 0, 0, time.UTC)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture([]*models.Campaign{newCampaign("camp1", tt.status)}, nil)

			c, err := f.service.Schedule(context.Background(), "camp1", at)
			if tt.wantErr {
				assert.True(t, apperrors.IsInvalidStateTransition(err))
				assert.Equal(t, tt.status, f.campaigns.Status("camp1"))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models.CampaignScheduled, c.Status)

			stored, _ := f.campaigns.Get(context.Background(), "camp1")
			assert.Equal(t, models.CampaignScheduled, stored.Status)
			require.NotNil(t, stored.ScheduledAt)
			assert.True(t, at.Equal(*stored.ScheduledAt))
		})
	}
}

func TestScheduledCampaignIsDue(t *testing.T) {
	f := newFixture([]*models.Campaign{newCampaign("camp1", models.CampaignDraft)}, nil)
	_, err := f.service.Schedule(context.Background(), "camp1", time.Time{})
	require.NoError(t, err)

	due, err := f.campaigns.ListDue(context.Background(), time.Now().Add(time.Second), 5)
	require.NoError(t, err)
	require.Len(t, due, 1)
}

func TestPause(t *testing.T) {
	tests := []struct {
		status  models.CampaignStatus
		wantErr bool
	}{
		{status: models.CampaignScheduled},
		{status: models.CampaignProcessing},
		{status: models.CampaignDraft, wantErr: true},
		{status: models.CampaignSent, wantErr: true},
		{status: models.CampaignPaused, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			f := newFixture([]*models.Campaign{newCampaign("camp1", tt.status)}, nil)

			_, err := f.service.Pause(context.Background(), "camp1")
			if tt.wantErr {
				assert.True(t, apperrors.IsInvalidStateTransition(err))
				assert.Equal(t, tt.status, f.campaigns.Status("camp1"))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models.CampaignPaused, f.campaigns.Status("camp1"))
		})
	}
}

func TestClone(t *testing.T) {
	src := newCampaign("camp1", models.CampaignSent)
	src.Stats = models.CampaignStats{Sent: 10, Opens: 4}
	src.ABTestID = "ab1"
	src.IsVariant = true
	src.EmailBlocks = []models.EmailBlock{{ID: "b1", Type: models.BlockTypeProduct}}
	f := newFixture([]*models.Campaign{src}, nil)

	clone, err := f.service.Clone(context.Background(), "camp1", "")
	require.NoError(t, err)
	assert.NotEqual(t, "camp1", clone.ID)
	assert.Equal(t, "Spring sale - Copy", clone.Name)
	assert.Equal(t, models.CampaignDraft, clone.Status)
	assert.Equal(t, models.CampaignStats{}, clone.Stats)
	assert.Empty(t, clone.ABTestID)
	assert.False(t, clone.IsVariant)
	assert.Equal(t, src.EmailBlocks, clone.EmailBlocks)
	assert.Nil(t, clone.SentAt)

	stored, err := f.campaigns.Get(context.Background(), clone.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)

	named, err := f.service.Clone(context.Background(), "camp1", "Autumn sale")
	require.NoError(t, err)
	assert.Equal(t, "Autumn sale", named.Name)

	_, err = f.service.Clone(context.Background(), "missing", "")
	assert.True(t, apperrors.IsCampaignNotFound(err))
}

func TestAnalytics(t *testing.T) {
	c := newCampaign("camp1", models.CampaignSent)
	c.Stats = models.CampaignStats{Sent: 200, Opens: 79, UniqueOpens: 49, Clicks: 30, UniqueClicks: 10, Bounces: 4}
	sentAt := time.Now().Add(-time.Hour).UTC()
	c.SentAt = &sentAt
	f := newFixture([]*models.Campaign{c}, nil)

	ctx := context.Background()
	id, err := f.manager.Create(ctx, "camp1", "c1", "c1@example.com")
	require.NoError(t, err)
	require.NoError(t, f.manager.RecordSent(ctx, id))
	require.NoError(t, f.manager.RecordOpen(ctx, id))

	a, err := f.service.Analytics(ctx, "camp1")
	require.NoError(t, err)
	assert.Equal(t, "Spring sale", a.Campaign.Name)
	assert.Equal(t, models.CampaignSent, a.Campaign.Status)
	assert.EqualValues(t, 200, a.Metrics.Sent)
	assert.Equal(t, 25.0, a.Rates.OpenRate)
	assert.Equal(t, 5.0, a.Rates.ClickRate)
	assert.Equal(t, 2.0, a.Rates.BounceRate)
	assert.EqualValues(t, 1, a.Engagement.UniqueOpens)
	assert.Equal(t, &sentAt, a.Timeline.SentAt)

	_, err = f.service.Analytics(ctx, "missing")
	assert.True(t, apperrors.IsNotFound(err))
}
