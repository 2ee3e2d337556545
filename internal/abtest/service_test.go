package abtest_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "mailwave/pkg/errors"
	"mailwave/pkg/models"
)

func draftTest() *models.ABTest {
	t := runningTest(time.Time{}, "v1", "v2")
	t.Status = models.ABTestDraft
	t.StartedAt = nil
	return t
}

func TestStart(t *testing.T) {
	tests := []struct {
		name    string
		status  models.ABTestStatus
		wantErr bool
	}{
		{"draft", models.ABTestDraft, false},
		{"paused", models.ABTestPaused, false},
		{"running", models.ABTestRunning, true},
		{"completed", models.ABTestCompleted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			test := draftTest()
			test.Status = tt.status
			f := newFixture(test, variantCampaigns("v1", "v2"), nil)

			at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
			got, err := f.service.Start(context.Background(), "ab1", at)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsInvalidStateTransition(err))
				assert.Equal(t, tt.status, f.tests.Status("ab1"))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models.ABTestRunning, got.Status)
			require.NotNil(t, got.StartedAt)
			assert.True(t, at.Equal(*got.StartedAt))
			assert.Nil(t, got.ClaimedAt)
		})
	}
}

func TestStartNotFound(t *testing.T) {
	f := newFixture(draftTest(), nil, nil)

	_, err := f.service.Start(context.Background(), "nope", time.Time{})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestStartedTestRunsOnce(t *testing.T) {
	f := newFixture(draftTest(), variantCampaigns("v1", "v2"), contacts(6))

	_, err := f.service.Start(context.Background(), "ab1", time.Time{})
	require.NoError(t, err)

	result, err := f.allocator.Run(context.Background(), "ab1")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Len(t, f.sender.Sent, 6)
}

func TestPause(t *testing.T) {
	f := newFixture(runningTest(time.Now(), "v1", "v2"), variantCampaigns("v1", "v2"), nil)

	got, err := f.service.Pause(context.Background(), "ab1")
	require.NoError(t, err)
	assert.Equal(t, models.ABTestPaused, got.Status)

	_, err = f.service.Pause(context.Background(), "ab1")
	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidStateTransition(err))
}

func TestCompleteRecordsWinner(t *testing.T) {
	campaigns := variantCampaigns("v1", "v2")
	campaigns[1].Stats = models.CampaignStats{Sent: 200, UniqueOpens: 50}
	f := newFixture(runningTest(time.Now(), "v1", "v2"), campaigns, nil)

	got, err := f.service.Complete(context.Background(), "ab1", "v2", 12.5)
	require.NoError(t, err)

	assert.Equal(t, models.ABTestCompleted, got.Status)
	assert.Equal(t, "v2", got.WinnerID)
	require.NotNil(t, got.WinningStats)
	assert.Equal(t, "B", got.WinningStats.VariantLabel)
	assert.Equal(t, 25.0, got.WinningStats.Metric)
	assert.Equal(t, 12.5, got.WinningStats.Improvement)
	assert.NotNil(t, got.CompletedAt)
}

func TestCompleteRejectsUnknownWinner(t *testing.T) {
	f := newFixture(runningTest(time.Now(), "v1", "v2"), variantCampaigns("v1", "v2"), nil)

	_, err := f.service.Complete(context.Background(), "ab1", "other", 0)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, models.ABTestRunning, f.tests.Status("ab1"))
}

func TestPerformance(t *testing.T) {
	campaigns := variantCampaigns("v1", "v2")
	campaigns[0].Stats = models.CampaignStats{Sent: 100, UniqueOpens: 20, UniqueClicks: 5}
	campaigns[1].Stats = models.CampaignStats{Sent: 100, UniqueOpens: 30, UniqueClicks: 3}
	test := runningTest(time.Now(), "v1", "v2", "gone")
	f := newFixture(test, campaigns, nil)

	perf, err := f.service.Performance(context.Background(), "ab1")
	require.NoError(t, err)
	require.Len(t, perf.Variants, 3)

	assert.Equal(t, "A", perf.Variants[0].Label)
	assert.Equal(t, 20.0, perf.Variants[0].OpenRate)
	assert.Equal(t, 5.0, perf.Variants[0].ClickRate)
	assert.Equal(t, 30.0, perf.Variants[1].OpenRate)
	assert.Equal(t, 3.0, perf.Variants[1].ClickRate)
	assert.Zero(t, perf.Variants[2].Sent)
	assert.Equal(t, models.MetricOpenRate, perf.WinningMetric)
}
