package abtest

import (
	"context"
	"time"

	"mailwave/internal/audience"
	"mailwave/internal/dispatch"
	"mailwave/internal/logger"
	"mailwave/pkg/errors"
	"mailwave/pkg/metrics"
	"mailwave/pkg/models"
	"mailwave/pkg/tracing"
)

type Audiences interface {
	Resolve(ctx context.Context, segmentID string) (*audience.Audience, error)
	Materialize(ctx context.Context, aud *audience.Audience) ([]*models.Contact, error)
}

type GroupDispatcher interface {
	DispatchGroup(ctx context.Context, campaignID string, recipients []*models.Contact) (*dispatch.Result, error)
}

type VariantResult struct {
	Label      string           `json:"label"`
	CampaignID string           `json:"campaignId"`
	GroupSize  int              `json:"groupSize"`
	Result     *dispatch.Result `json:"result,omitempty"`
	Skipped    bool             `json:"skipped,omitempty"`
}

type RunResult struct {
	TestID   string          `json:"testId"`
	Total    int             `json:"total"`
	Variants []VariantResult `json:"variants"`
}

// Allocator splits the audience of a running A/B test across its variants
// and sends each group with the variant's campaign.
type Allocator struct {
	tests     Repository
	audiences Audiences
	groups    GroupDispatcher
	logger    logger.Logger
	now       func() time.Time
}

func NewAllocator(tests Repository, audiences Audiences, groups GroupDispatcher, log logger.Logger) *Allocator {
	return &Allocator{
		tests:     tests,
		audiences: audiences,
		groups:    groups,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run sends a running test. It returns nil, nil when the test is not due or
// another run has already claimed it.
func (a *Allocator) Run(ctx context.Context, testID string) (*RunResult, error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "abtest", "abtest.run")
	defer span.End()

	test, err := a.tests.Claim(ctx, testID, a.now())
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	if test == nil {
		a.logger.InfowCtx(ctx, "A/B test not claimable, skipping", "ab_test_id", testID)
		return nil, nil
	}

	aud, err := a.audiences.Resolve(ctx, test.SegmentID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, a.abort(ctx, test, err)
	}

	recipients, err := a.audiences.Materialize(ctx, aud)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, a.abort(ctx, test, err)
	}

	groups, err := Split(recipients, len(test.Variants))
	if err != nil {
		tracing.RecordError(span, err)
		return nil, a.abort(ctx, test, err)
	}

	result := &RunResult{TestID: test.ID, Total: len(recipients)}
	sizes := make([]int, len(groups))
	for i, v := range test.Variants {
		if err := ctx.Err(); err != nil {
			a.logger.WarnwCtx(ctx, "A/B test run interrupted, releasing claim",
				"ab_test_id", test.ID,
				"variants_done", i,
			)
			if relErr := a.tests.Release(context.WithoutCancel(ctx), test.ID); relErr != nil {
				a.logger.ErrorwCtx(ctx, "Failed to release A/B test claim", "error", relErr, "ab_test_id", test.ID)
			}
			return result, err
		}

		sizes[i] = len(groups[i])
		vr := VariantResult{Label: v.Label, CampaignID: v.CampaignID, GroupSize: len(groups[i])}
		res, err := a.groups.DispatchGroup(ctx, v.CampaignID, groups[i])
		switch {
		case errors.IsCampaignNotFound(err):
			vr.Skipped = true
			a.logger.WarnwCtx(ctx, "A/B variant campaign not found, skipping group",
				"ab_test_id", test.ID,
				"variant", v.Label,
				"campaign_id", v.CampaignID,
			)
		case err != nil:
			vr.Skipped = true
			a.logger.ErrorwCtx(ctx, "A/B variant dispatch failed",
				"error", err,
				"ab_test_id", test.ID,
				"variant", v.Label,
				"campaign_id", v.CampaignID,
			)
		default:
			vr.Result = res
		}
		result.Variants = append(result.Variants, vr)
	}

	set := sizeFields(sizes)
	set["completedAt"] = a.now()
	before, err := a.tests.Transition(context.WithoutCancel(ctx), test.ID,
		[]models.ABTestStatus{models.ABTestRunning, models.ABTestPaused}, models.ABTestCompleted, set)
	if err != nil {
		tracing.RecordError(span, err)
		return result, err
	}
	if before == nil {
		a.logger.WarnwCtx(ctx, "A/B test changed state during run, not marked completed", "ab_test_id", test.ID)
	} else if before.Status == models.ABTestPaused {
		a.logger.WarnwCtx(ctx, "A/B test was paused during run, completed anyway", "ab_test_id", test.ID)
	}

	a.logger.InfowCtx(ctx, "A/B test completed",
		"ab_test_id", test.ID,
		"recipients", result.Total,
		"variants", len(test.Variants),
	)
	metrics.ObserveDispatch("abtest", "completed", time.Since(start))
	return result, nil
}

// abort handles a failure before any group was sent. A missing segment or
// an unusable variant list pauses the test. Any other error releases the
// claim.
func (a *Allocator) abort(ctx context.Context, test *models.ABTest, cause error) error {
	if errors.IsSegmentNotFound(cause) || errors.IsValidation(cause) {
		a.logger.WarnwCtx(ctx, "A/B test cannot run, pausing",
			"error", cause,
			"ab_test_id", test.ID,
			"segment_id", test.SegmentID,
		)
		if _, err := a.tests.Transition(ctx, test.ID, []models.ABTestStatus{models.ABTestRunning}, models.ABTestPaused, nil); err != nil {
			a.logger.ErrorwCtx(ctx, "Failed to pause A/B test", "error", err, "ab_test_id", test.ID)
		}
		return cause
	}

	a.logger.ErrorwCtx(ctx, "A/B test audience resolution failed",
		"error", cause,
		"ab_test_id", test.ID,
	)
	if err := a.tests.Release(context.WithoutCancel(ctx), test.ID); err != nil {
		a.logger.ErrorwCtx(ctx, "Failed to release A/B test claim", "error", err, "ab_test_id", test.ID)
	}
	return cause
}
