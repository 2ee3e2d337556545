package abtest_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailwave/internal/abtest"
	"mailwave/internal/abtest/abtesttest"
	"mailwave/internal/audience"
	"mailwave/internal/audience/audiencetest"
	"mailwave/internal/dispatch"
	"mailwave/internal/dispatch/dispatchtest"
	"mailwave/internal/logger"
	"mailwave/internal/personalize"
	"mailwave/internal/segment"
	"mailwave/internal/tracking"
	"mailwave/internal/tracking/trackingtest"
	"mailwave/internal/transport"
	"mailwave/internal/transport/transporttest"
	apperrors "mailwave/pkg/errors"
	"mailwave/pkg/models"
)

var everyone = &models.Segment{ID: "all", Name: "Everyone", Logic: models.LogicAnd}

type fixture struct {
	tests     *abtesttest.Repository
	campaigns *dispatchtest.CampaignRepository
	segments  *audiencetest.SegmentStore
	contacts  *audiencetest.ContactStore
	sender    *transporttest.Sender
	allocator *abtest.Allocator
	service   *abtest.Service
}

func newFixture(test *models.ABTest, campaigns []*models.Campaign, contacts []*models.Contact) *fixture {
	log := logger.NopLogger()
	f := &fixture{
		tests:     abtesttest.NewRepository(test),
		campaigns: dispatchtest.NewCampaignRepository(campaigns...),
		segments:  audiencetest.NewSegmentStore(everyone),
		contacts:  audiencetest.NewContactStore(contacts...),
		sender:    transporttest.NewSender(),
	}
	manager := tracking.NewManager(trackingtest.NewRepository(), f.campaigns, f.contacts, 0, log)
	renderer := personalize.NewRenderer(personalize.Config{PixelBaseURL: "https://t.example.com", ClickBaseURL: "https://t.example.com"}, nil, log)
	resolver := audience.NewResolver(f.contacts, f.segments, segment.NewCompiler(log), log)
	pipeline := dispatch.NewPipeline(f.campaigns, resolver, renderer, manager, f.sender, "shop@example.com", log)
	f.allocator = abtest.NewAllocator(f.tests, resolver, pipeline, log)
	f.service = abtest.NewService(f.tests, f.campaigns, nil, log)
	return f
}

func variantCampaigns(ids ...string) []*models.Campaign {
	out := make([]*models.Campaign, len(ids))
	for i, id := range ids {
		out[i] = &models.Campaign{
			ID:          id,
			Name:        "Variant " + id,
			Type:        models.CampaignPromotional,
			Subject:     "Subject " + id,
			HTMLContent: "<html><body>Hello {{name}}</body></html>",
			Status:      models.CampaignDraft,
			IsVariant:   true,
		}
	}
	return out
}

func runningTest(startedAt time.Time, campaignIDs ...string) *models.ABTest {
	t := &models.ABTest{
		ID:            "ab1",
		Name:          "Subject test",
		TestType:      models.TestSubjectLine,
		WinningMetric: models.MetricOpenRate,
		SegmentID:     everyone.ID,
		Status:        models.ABTestRunning,
		StartedAt:     &startedAt,
	}
	for i, id := range campaignIDs {
		t.Variants = append(t.Variants, models.Variant{CampaignID: id, Label: string(rune('A' + i))})
	}
	return t
}

func contacts(n int) []*models.Contact {
	out := make([]*models.Contact, n)
	for i := range out {
		id := fmt.Sprintf("c%02d", i)
		out[i] = models.NewContact(id, id+"@example.com")
	}
	return out
}

func TestRunSplitsAudienceAcrossVariants(t *testing.T) {
	test := runningTest(time.Now().Add(-time.Minute), "v1", "v2", "v3")
	f := newFixture(test, variantCampaigns("v1", "v2", "v3"), contacts(10))

	result, err := f.allocator.Run(context.Background(), "ab1")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 10, result.Total)
	require.Len(t, result.Variants, 3)
	sizes := []int{result.Variants[0].GroupSize, result.Variants[1].GroupSize, result.Variants[2].GroupSize}
	assert.Equal(t, []int{3, 3, 4}, sizes)
	assert.Len(t, f.sender.Sent, 10)

	seen := make(map[string]string)
	for _, msg := range f.sender.Sent {
		_, dup := seen[msg.To]
		assert.False(t, dup, "%s received more than one variant", msg.To)
		seen[msg.To] = msg.Subject
	}
	assert.Equal(t, "Subject v1", seen["c00@example.com"])
	assert.Equal(t, "Subject v2", seen["c03@example.com"])
	assert.Equal(t, "Subject v3", seen["c09@example.com"])

	for i, id := range []string{"v1", "v2", "v3"} {
		c, err := f.campaigns.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, models.CampaignSent, c.Status)
		assert.EqualValues(t, sizes[i], c.Stats.Sent)
	}

	stored, err := f.tests.Get(context.Background(), "ab1")
	require.NoError(t, err)
	assert.Equal(t, models.ABTestCompleted, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
	assert.EqualValues(t, 3, stored.Variants[0].SegmentSize)
	assert.EqualValues(t, 3, stored.Variants[1].SegmentSize)
	assert.EqualValues(t, 4, stored.Variants[2].SegmentSize)
}

func TestRunIsClaimedOnce(t *testing.T) {
	test := runningTest(time.Now().Add(-time.Minute), "v1", "v2")
	f := newFixture(test, variantCampaigns("v1", "v2"), contacts(4))

	first, err := f.allocator.Run(context.Background(), "ab1")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := f.allocator.Run(context.Background(), "ab1")
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.Len(t, f.sender.Sent, 4)
}

func TestRunSkipsTestsNotYetStarted(t *testing.T) {
	test := runningTest(time.Now().Add(time.Hour), "v1", "v2")
	f := newFixture(test, variantCampaigns("v1", "v2"), contacts(4))

	result, err := f.allocator.Run(context.Background(), "ab1")
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Empty(t, f.sender.Sent)
	assert.Equal(t, models.ABTestRunning, f.tests.Status("ab1"))
}

func TestRunPausesWhenSegmentMissing(t *testing.T) {
	test := runningTest(time.Now().Add(-time.Minute), "v1", "v2")
	test.SegmentID = "gone"
	f := newFixture(test, variantCampaigns("v1", "v2"), contacts(4))

	_, err := f.allocator.Run(context.Background(), "ab1")
	require.Error(t, err)
	assert.True(t, apperrors.IsSegmentNotFound(err))
	assert.Equal(t, models.ABTestPaused, f.tests.Status("ab1"))
	assert.Empty(t, f.sender.Sent)
}

func TestRunPausesWithoutVariants(t *testing.T) {
	test := runningTest(time.Now().Add(-time.Minute))
	f := newFixture(test, nil, contacts(4))

	_, err := f.allocator.Run(context.Background(), "ab1")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, models.ABTestPaused, f.tests.Status("ab1"))
}

func TestRunReleasesClaimOnStoreError(t *testing.T) {
	test := runningTest(time.Now().Add(-time.Minute), "v1", "v2")
	f := newFixture(test, variantCampaigns("v1", "v2"), contacts(4))
	f.segments.Err = errors.New("connection reset")

	_, err := f.allocator.Run(context.Background(), "ab1")
	require.Error(t, err)
	assert.Equal(t, models.ABTestRunning, f.tests.Status("ab1"))

	stored, err := f.tests.Get(context.Background(), "ab1")
	require.NoError(t, err)
	assert.Nil(t, stored.ClaimedAt)

	f.segments.Err = nil
	result, err := f.allocator.Run(context.Background(), "ab1")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Len(t, f.sender.Sent, 4)
}

func TestRunSkipsMissingVariantCampaign(t *testing.T) {
	test := runningTest(time.Now().Add(-time.Minute), "v1", "missing", "v3")
	f := newFixture(test, variantCampaigns("v1", "v3"), contacts(9))

	result, err := f.allocator.Run(context.Background(), "ab1")
	require.NoError(t, err)
	require.Len(t, result.Variants, 3)

	assert.False(t, result.Variants[0].Skipped)
	assert.True(t, result.Variants[1].Skipped)
	assert.False(t, result.Variants[2].Skipped)
	assert.Len(t, f.sender.Sent, 6)
	assert.Equal(t, models.ABTestCompleted, f.tests.Status("ab1"))
}

func TestRunWithEmptyAudienceCompletes(t *testing.T) {
	test := runningTest(time.Now().Add(-time.Minute), "v1", "v2")
	f := newFixture(test, variantCampaigns("v1", "v2"), nil)

	result, err := f.allocator.Run(context.Background(), "ab1")
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
	assert.Empty(t, f.sender.Sent)
	assert.Equal(t, models.ABTestCompleted, f.tests.Status("ab1"))
}

func TestRunReleasesClaimWhenInterrupted(t *testing.T) {
	test := runningTest(time.Now().Add(-time.Minute), "v1", "v2")
	f := newFixture(test, variantCampaigns("v1", "v2"), contacts(4))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.sender.OnSend = func(transport.Message) { cancel() }

	_, err := f.allocator.Run(ctx, "ab1")
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, f.sender.Sent, 1)

	stored, err := f.tests.Get(context.Background(), "ab1")
	require.NoError(t, err)
	assert.Equal(t, models.ABTestRunning, stored.Status)
	assert.Nil(t, stored.ClaimedAt)
}
