//go:build integration

package dispatch_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"mailwave/internal/dispatch"
	"mailwave/internal/testinfra"
	"mailwave/pkg/models"
)

func newCampaign(id string, status models.CampaignStatus, scheduledAt *time.Time) *models.Campaign {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.Campaign{
		ID:          id,
		Name:        "Campaign " + id,
		Type:        models.CampaignNewsletter,
		Subject:     "Hello",
		HTMLContent: "<p>Hi</p>",
		SegmentID:   "seg-1",
		Status:      status,
		ScheduledAt: scheduledAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestMongoCampaignRepository_TransitionClaimsOnce(t *testing.T) {
	db := testinfra.Mongo(t)
	ctx := context.Background()
	repo := dispatch.NewMongoCampaignRepository(db)

	require.NoError(t, repo.Insert(ctx, newCampaign("c1", models.CampaignScheduled, nil)))

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		claims int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			before, err := repo.Transition(ctx, "c1",
				[]models.CampaignStatus{models.CampaignDraft, models.CampaignScheduled},
				models.CampaignProcessing, nil)
			assert.NoError(t, err)
			if before != nil {
				mu.Lock()
				claims++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, claims)

	got, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.CampaignProcessing, got.Status)
}

func TestMongoCampaignRepository_TransitionReturnsPrevious(t *testing.T) {
	db := testinfra.Mongo(t)
	ctx := context.Background()
	repo := dispatch.NewMongoCampaignRepository(db)

	require.NoError(t, repo.Insert(ctx, newCampaign("c1", models.CampaignDraft, nil)))

	at := time.Now().UTC().Add(time.Hour).Truncate(time.Millisecond)
	before, err := repo.Transition(ctx, "c1",
		[]models.CampaignStatus{models.CampaignDraft}, models.CampaignScheduled,
		bson.M{"scheduledAt": at})
	require.NoError(t, err)
	require.NotNil(t, before)
	assert.Equal(t, models.CampaignDraft, before.Status)

	got, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, got.ScheduledAt)
	assert.True(t, at.Equal(*got.ScheduledAt))

	rejected, err := repo.Transition(ctx, "c1",
		[]models.CampaignStatus{models.CampaignDraft}, models.CampaignProcessing, nil)
	require.NoError(t, err)
	assert.Nil(t, rejected)

	missing, err := repo.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMongoCampaignRepository_FinishAppliesStats(t *testing.T) {
	db := testinfra.Mongo(t)
	ctx := context.Background()
	repo := dispatch.NewMongoCampaignRepository(db)

	c := newCampaign("c1", models.CampaignProcessing, nil)
	c.Stats.Opens = 2
	require.NoError(t, repo.Insert(ctx, c))

	now := time.Now().UTC().Truncate(time.Millisecond)
	before, err := repo.Finish(ctx, "c1", models.CampaignSent, map[string]int64{
		models.StatSent:    10,
		models.StatBounces: 1,
	}, now)
	require.NoError(t, err)
	require.NotNil(t, before)
	assert.Equal(t, models.CampaignProcessing, before.Status)

	require.NoError(t, repo.IncrementStats(ctx, "c1", map[string]int64{models.StatOpens: 3}))

	got, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.CampaignSent, got.Status)
	assert.Equal(t, int64(10), got.Stats.Sent)
	assert.Equal(t, int64(1), got.Stats.Bounces)
	assert.Equal(t, int64(5), got.Stats.Opens)
	require.NotNil(t, got.SentAt)
	assert.True(t, now.Equal(*got.SentAt))
}

func TestMongoCampaignRepository_ListDue(t *testing.T) {
	db := testinfra.Mongo(t)
	ctx := context.Background()
	repo := dispatch.NewMongoCampaignRepository(db)

	now := time.Now().UTC().Truncate(time.Millisecond)
	early := now.Add(-2 * time.Hour)
	late := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	require.NoError(t, repo.Insert(ctx, newCampaign("late", models.CampaignScheduled, &late)))
	require.NoError(t, repo.Insert(ctx, newCampaign("early", models.CampaignScheduled, &early)))
	require.NoError(t, repo.Insert(ctx, newCampaign("future", models.CampaignScheduled, &future)))
	require.NoError(t, repo.Insert(ctx, newCampaign("draft", models.CampaignDraft, &early)))

	due, err := repo.ListDue(ctx, now, 5)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "early", due[0].ID)
	assert.Equal(t, "late", due[1].ID)

	limited, err := repo.ListDue(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "early", limited[0].ID)
}

func TestAuditLogger_Postgres(t *testing.T) {
	db := testinfra.Postgres(t)
	ctx := context.Background()
	audit := dispatch.NewAuditLogger(db)

	base := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, audit.Log(ctx, dispatch.AuditEntry{
		EntityType: dispatch.EntityCampaign,
		EntityID:   "c1",
		Action:     "schedule",
		FromStatus: "draft",
		ToStatus:   "scheduled",
		Timestamp:  base,
	}))
	require.NoError(t, audit.Log(ctx, dispatch.AuditEntry{
		EntityType: dispatch.EntityCampaign,
		EntityID:   "c1",
		Action:     "dispatch",
		FromStatus: "scheduled",
		ToStatus:   "processing",
		Details:    map[string]interface{}{"recipients": float64(3)},
		Timestamp:  base.Add(time.Second),
	}))
	require.NoError(t, audit.Log(ctx, dispatch.AuditEntry{
		EntityType: dispatch.EntityABTest,
		EntityID:   "c1",
		Action:     "start",
	}))

	entries, err := audit.List(ctx, dispatch.EntityCampaign, "c1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "dispatch", entries[0].Action)
	assert.Equal(t, float64(3), entries[0].Details["recipients"])
	assert.Equal(t, "system", entries[0].Actor)
	assert.Equal(t, "schedule", entries[1].Action)
	assert.Nil(t, entries[1].Details)
}
