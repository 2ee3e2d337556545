package scheduler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailwave/internal/abtest"
	"mailwave/internal/config"
	"mailwave/internal/dispatch"
	"mailwave/internal/logger"
	"mailwave/pkg/distlock"
	apperrors "mailwave/pkg/errors"
	"mailwave/pkg/models"
)

type fakeCampaigns struct {
	due       []models.Campaign
	err       error
	lastLimit int64
}

func (f *fakeCampaigns) ListDue(_ context.Context, _ time.Time, limit int64) ([]models.Campaign, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && int64(len(f.due)) > limit {
		return f.due[:limit], nil
	}
	return f.due, nil
}

type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched []string
	errs       map[string]error
	onDispatch func(ctx context.Context, id string)
}

func (f *fakeDispatcher) DispatchScheduled(ctx context.Context, id string) (*dispatch.Result, error) {
	if f.onDispatch != nil {
		f.onDispatch(ctx, id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched = append(f.dispatched, id)
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	return &dispatch.Result{Total: 1, Sent: 1}, nil
}

type fakeTests struct {
	due       []models.ABTest
	err       error
	lastLimit int64
}

func (f *fakeTests) ListDue(_ context.Context, _ time.Time, limit int64) ([]models.ABTest, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && int64(len(f.due)) > limit {
		return f.due[:limit], nil
	}
	return f.due, nil
}

type fakeAllocator struct {
	ran       []string
	unclaimed map[string]bool
	errs      map[string]error
}

func (f *fakeAllocator) Run(_ context.Context, id string) (*abtest.RunResult, error) {
	f.ran = append(f.ran, id)
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	if f.unclaimed[id] {
		return nil, nil
	}
	return &abtest.RunResult{TestID: id}, nil
}

type failingLocker struct{}

func (failingLocker) Acquire(context.Context, string, time.Duration) (distlock.Lock, error) {
	return nil, errors.New("redis down")
}

type schedulerFixture struct {
	campaigns *fakeCampaigns
	dispatch  *fakeDispatcher
	tests     *fakeTests
	allocator *fakeAllocator
	scheduler *Scheduler
}

func newSchedulerFixture(cfg config.SchedulerConfig, locker distlock.Locker) *schedulerFixture {
	f := &schedulerFixture{
		campaigns: &fakeCampaigns{},
		dispatch:  &fakeDispatcher{errs: map[string]error{}},
		tests:     &fakeTests{},
		allocator: &fakeAllocator{unclaimed: map[string]bool{}, errs: map[string]error{}},
	}
	f.scheduler = New(cfg, f.campaigns, f.dispatch, f.tests, f.allocator, locker, logger.NopLogger())
	return f
}

func campaignsWithIDs(ids ...string) []models.Campaign {
	out := make([]models.Campaign, len(ids))
	for i, id := range ids {
		out[i] = models.Campaign{ID: id, Status: models.CampaignScheduled}
	}
	return out
}

func testsWithIDs(ids ...string) []models.ABTest {
	out := make([]models.ABTest, len(ids))
	for i, id := range ids {
		out[i] = models.ABTest{ID: id, Status: models.ABTestRunning}
	}
	return out
}

func TestTickDispatchesDueWork(t *testing.T) {
	f := newSchedulerFixture(config.SchedulerConfig{}, nil)
	f.campaigns.due = campaignsWithIDs("c1", "c2")
	f.tests.due = testsWithIDs("t1")

	result, err := f.scheduler.Tick(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, 2, result.ProcessedCampaigns)
	assert.Equal(t, 1, result.ProcessedABTests)
	assert.Equal(t, []string{"c1", "c2"}, f.dispatch.dispatched)
	assert.Equal(t, []string{"t1"}, f.allocator.ran)
}

func TestTickAppliesLimits(t *testing.T) {
	f := newSchedulerFixture(config.SchedulerConfig{CampaignLimit: 3, ABTestLimit: 1}, nil)
	f.campaigns.due = campaignsWithIDs("c1", "c2", "c3", "c4", "c5", "c6")
	f.tests.due = testsWithIDs("t1", "t2", "t3")

	result, err := f.scheduler.Tick(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, result.ProcessedCampaigns)
	assert.Equal(t, 1, result.ProcessedABTests)
	assert.EqualValues(t, 3, f.campaigns.lastLimit)
	assert.EqualValues(t, 1, f.tests.lastLimit)
}

func TestTriggerUsesFixedLimits(t *testing.T) {
	f := newSchedulerFixture(config.SchedulerConfig{CampaignLimit: 50, ABTestLimit: 20}, nil)
	f.campaigns.due = campaignsWithIDs("c1", "c2", "c3", "c4", "c5", "c6", "c7")
	f.tests.due = testsWithIDs("t1", "t2", "t3")

	result, err := f.scheduler.Trigger(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, result.ProcessedCampaigns)
	assert.Equal(t, 2, result.ProcessedABTests)
}

func TestTickContinuesPastItemErrors(t *testing.T) {
	f := newSchedulerFixture(config.SchedulerConfig{}, nil)
	f.campaigns.due = campaignsWithIDs("missing-segment", "taken", "ok")
	f.dispatch.errs["missing-segment"] = apperrors.ErrSegmentNotFound
	f.dispatch.errs["taken"] = apperrors.InvalidTransition("campaign", "taken", "processing", "processing")
	f.tests.due = testsWithIDs("t1", "t2")
	f.allocator.unclaimed["t1"] = true

	result, err := f.scheduler.Tick(context.Background(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, []string{"missing-segment", "taken", "ok"}, f.dispatch.dispatched)
	assert.Equal(t, 2, result.ProcessedCampaigns)
	assert.Equal(t, 1, result.ProcessedABTests)
}

func TestTickStoreErrorAborts(t *testing.T) {
	f := newSchedulerFixture(config.SchedulerConfig{}, nil)
	f.campaigns.err = errors.New("mongo unavailable")
	f.tests.due = testsWithIDs("t1")

	_, err := f.scheduler.Tick(context.Background(), time.Now())
	require.Error(t, err)
	assert.Empty(t, f.allocator.ran)

	f.campaigns.err = nil
	result, err := f.scheduler.Tick(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProcessedABTests)
}

func TestTickSkipsWhenLockHeld(t *testing.T) {
	locker := distlock.NewLocalLocker()
	f := newSchedulerFixture(config.SchedulerConfig{}, locker)
	f.campaigns.due = campaignsWithIDs("c1")

	held, err := locker.Acquire(context.Background(), "scheduler:tick", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, held)

	result, err := f.scheduler.Tick(context.Background(), time.Now())
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Empty(t, f.dispatch.dispatched)

	require.NoError(t, held.Release(context.Background()))
	result, err = f.scheduler.Tick(context.Background(), time.Now())
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, 1, result.ProcessedCampaigns)
}

func TestTickProceedsWhenLockUnavailable(t *testing.T) {
	f := newSchedulerFixture(config.SchedulerConfig{}, failingLocker{})
	f.campaigns.due = campaignsWithIDs("c1")

	result, err := f.scheduler.Tick(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProcessedCampaigns)
}

func TestStartTicksUntilStopped(t *testing.T) {
	f := newSchedulerFixture(config.SchedulerConfig{Interval: 10 * time.Millisecond}, nil)
	f.campaigns.due = campaignsWithIDs("c1")

	errCh := make(chan error, 1)
	go func() { errCh <- f.scheduler.Start(context.Background()) }()

	require.Eventually(t, func() bool {
		f.dispatch.mu.Lock()
		defer f.dispatch.mu.Unlock()
		return len(f.dispatch.dispatched) >= 2
	}, time.Second, 5*time.Millisecond)

	f.scheduler.Stop()
	require.NoError(t, <-errCh)
}

func TestStopWithoutStart(t *testing.T) {
	f := newSchedulerFixture(config.SchedulerConfig{}, nil)
	f.scheduler.Stop()
}

func TestTriggerHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		secret     string
		header     string
		storeErr   error
		wantStatus int
		wantRun    bool
	}{
		{"no secret configured", "", "", nil, http.StatusOK, true},
		{"valid bearer", "s3cret", "Bearer s3cret", nil, http.StatusOK, true},
		{"wrong bearer", "s3cret", "Bearer nope", nil, http.StatusUnauthorized, false},
		{"missing header", "s3cret", "", nil, http.StatusUnauthorized, false},
		{"not bearer scheme", "s3cret", "s3cret", nil, http.StatusUnauthorized, false},
		{"store error", "", "", errors.New("mongo unavailable"), http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSchedulerFixture(config.SchedulerConfig{}, nil)
			f.campaigns.due = campaignsWithIDs("c1")
			f.campaigns.err = tt.storeErr

			router := gin.New()
			NewHandler(f.scheduler, tt.secret, logger.NopLogger()).RegisterRoutes(router)

			req := httptest.NewRequest(http.MethodPost, "/internal/jobs/dispatch", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantRun {
				assert.JSONEq(t, `{"processedCampaigns":1,"processedABTests":0}`, w.Body.String())
				assert.Equal(t, []string{"c1"}, f.dispatch.dispatched)
			} else {
				assert.Empty(t, f.dispatch.dispatched)
			}
			if tt.storeErr != nil {
				assert.Contains(t, w.Body.String(), `"error"`)
			}
		})
	}
}

func TestTriggerHandlerAcceptsGet(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newSchedulerFixture(config.SchedulerConfig{}, nil)

	router := gin.New()
	NewHandler(f.scheduler, "", logger.NopLogger()).RegisterRoutes(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/internal/jobs/dispatch", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTriggerHandlerSurvivesClientDisconnect(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newSchedulerFixture(config.SchedulerConfig{}, nil)
	f.campaigns.due = campaignsWithIDs("c1", "c2")

	reqCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ctxErrs []error
	f.dispatch.onDispatch = func(ctx context.Context, id string) {
		if id == "c1" {
			cancel()
		}
		ctxErrs = append(ctxErrs, ctx.Err())
	}

	router := gin.New()
	NewHandler(f.scheduler, "", logger.NopLogger()).RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodPost, "/internal/jobs/dispatch", nil).WithContext(reqCtx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"c1", "c2"}, f.dispatch.dispatched)
	assert.Equal(t, []error{nil, nil}, ctxErrs)
}
