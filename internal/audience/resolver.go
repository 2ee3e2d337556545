package audience

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"mailwave/internal/constants"
	"mailwave/internal/logger"
	"mailwave/internal/segment"
	"mailwave/pkg/errors"
	"mailwave/pkg/metrics"
	"mailwave/pkg/models"
	"mailwave/pkg/tracing"
)

// Audience is a resolved segment: the stored definition and the compiled,
// eligibility-narrowed predicate.
type Audience struct {
	Segment   *models.Segment
	Predicate segment.Predicate
}

type PreviewResult struct {
	Size       int64   `json:"size"`
	Percentage float64 `json:"percentage"`
}

type EngagementWindow struct {
	ActiveIn7Days  int64 `json:"activeIn7Days"`
	ActiveIn30Days int64 `json:"activeIn30Days"`
}

type Stats struct {
	TotalContacts          int64            `json:"totalContacts"`
	ActiveSubscribers      int64            `json:"activeSubscribers"`
	AvgEngagementScore     float64          `json:"avgEngagementScore"`
	AvgSpend               float64          `json:"avgSpend"`
	LastEngagementAnalysis EngagementWindow `json:"lastEngagementAnalysis"`
}

type SyncResult struct {
	ContactCount int64     `json:"contactCount"`
	LastSynced   time.Time `json:"lastSynced"`
}

type Resolver struct {
	contacts ContactStore
	segments SegmentStore
	compiler *segment.Compiler
	logger   logger.Logger
	now      func() time.Time
}

func NewResolver(contacts ContactStore, segments SegmentStore, compiler *segment.Compiler, log logger.Logger) *Resolver {
	return &Resolver{
		contacts: contacts,
		segments: segments,
		compiler: compiler,
		logger:   log,
		now:      time.Now,
	}
}

// Resolve loads the segment and compiles its audience predicate.
func (r *Resolver) Resolve(ctx context.Context, segmentID string) (*Audience, error) {
	ctx, span := tracing.Start(ctx, "audience", "audience.resolve", attribute.String("segment.id", segmentID))
	defer span.End()

	seg, err := r.segments.GetSegment(ctx, segmentID)
	if err != nil {
		return nil, err
	}
	if seg == nil {
		return nil, errors.ErrSegmentNotFound.WithDetail("segment_id", segmentID)
	}

	return &Audience{
		Segment:   seg,
		Predicate: segment.And(r.compiler.CompileSegment(ctx, seg), segment.Eligibility()),
	}, nil
}

// Stream opens a cursor over the eligible audience of a segment.
func (r *Resolver) Stream(ctx context.Context, aud *Audience) (ContactIterator, error) {
	return r.contacts.Stream(ctx, aud.Predicate)
}

// Materialize loads the whole eligible audience. Only for bounded audiences
// such as A/B splits.
func (r *Resolver) Materialize(ctx context.Context, aud *Audience) ([]*models.Contact, error) {
	return r.contacts.Find(ctx, aud.Predicate, 0)
}

// Sample returns up to limit eligible contacts for ad-hoc rules.
func (r *Resolver) Sample(ctx context.Context, rules []models.Rule, logic models.Logic, limit int) ([]*models.Contact, error) {
	if limit <= 0 {
		limit = constants.DefaultSampleLimit
	}
	p := segment.And(r.compiler.Compile(ctx, rules, logic), segment.Eligibility())
	return r.contacts.Find(ctx, p, int64(limit))
}

// Preview sizes ad-hoc rules against the whole contact base.
func (r *Resolver) Preview(ctx context.Context, rules []models.Rule, logic models.Logic) (*PreviewResult, error) {
	p := segment.And(r.compiler.Compile(ctx, rules, logic), segment.Eligibility())

	size, err := r.contacts.Count(ctx, p)
	if err != nil {
		return nil, err
	}
	total, err := r.contacts.Count(ctx, segment.MatchAll())
	if err != nil {
		return nil, err
	}

	return &PreviewResult{Size: size, Percentage: percentage(size, total)}, nil
}

func percentage(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	scale := math.Pow10(constants.PreviewPercentDecimal)
	return math.Round(float64(part)/float64(total)*100*scale) / scale
}

// Stats aggregates the segment's matching contacts in a single pass.
// Eligibility is not applied so that activeSubscribers is meaningful.
func (r *Resolver) Stats(ctx context.Context, segmentID string) (*Stats, error) {
	seg, err := r.segments.GetSegment(ctx, segmentID)
	if err != nil {
		return nil, err
	}
	if seg == nil {
		return nil, errors.ErrSegmentNotFound.WithDetail("segment_id", segmentID)
	}

	it, err := r.contacts.Stream(ctx, r.compiler.CompileSegment(ctx, seg))
	if err != nil {
		return nil, err
	}
	defer it.Close(ctx)

	now := r.now()
	weekAgo := now.AddDate(0, 0, -7)
	monthAgo := now.AddDate(0, 0, -30)

	var (
		stats           Stats
		engagementTotal float64
		spendTotal      float64
	)
	for it.Next(ctx) {
		c := it.Contact()
		stats.TotalContacts++
		if !c.IsUnsubscribed && !c.IsBounced {
			stats.ActiveSubscribers++
		}
		engagementTotal += float64(c.EmailEngagement.Opens + c.EmailEngagement.Clicks)
		spendTotal += c.TotalSpent
		if last := c.LastEmailEngagementDate; last != nil {
			if last.After(weekAgo) {
				stats.LastEngagementAnalysis.ActiveIn7Days++
			}
			if last.After(monthAgo) {
				stats.LastEngagementAnalysis.ActiveIn30Days++
			}
		}
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("failed to aggregate segment stats: %w", err)
	}

	if stats.TotalContacts > 0 {
		stats.AvgEngagementScore = engagementTotal / float64(stats.TotalContacts)
		stats.AvgSpend = spendTotal / float64(stats.TotalContacts)
	}
	return &stats, nil
}

// Sync recomputes and stores the segment's eligible contact count.
func (r *Resolver) Sync(ctx context.Context, segmentID string) (*SyncResult, error) {
	aud, err := r.Resolve(ctx, segmentID)
	if err != nil {
		metrics.SegmentSyncsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	count, err := r.contacts.Count(ctx, aud.Predicate)
	if err != nil {
		metrics.SegmentSyncsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	now := r.now().UTC()
	if err := r.segments.UpdateSegmentCount(ctx, segmentID, count, now); err != nil {
		metrics.SegmentSyncsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.SegmentSyncsTotal.WithLabelValues("success").Inc()
	r.logger.InfowCtx(ctx, "Segment synced",
		"segment_id", segmentID,
		"contact_count", count,
	)
	return &SyncResult{ContactCount: count, LastSynced: now}, nil
}
