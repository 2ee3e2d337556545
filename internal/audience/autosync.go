package audience

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mailwave/internal/logger"
	"mailwave/pkg/models"
)

const (
	autoSyncRefreshSpec = "@every 10m"
	autoSyncJobTimeout  = 5 * time.Minute
)

type segmentSyncer interface {
	Sync(ctx context.Context, segmentID string) (*SyncResult, error)
}

// AutoSyncer keeps contactCount fresh for segments flagged autoSync by
// registering one cron entry per segment according to its syncFrequency.
type AutoSyncer struct {
	syncer   segmentSyncer
	segments SegmentStore
	logger   logger.Logger
	parser   cron.Parser

	mu      sync.Mutex
	c       *cron.Cron
	entries map[string]scheduledSync
}

type scheduledSync struct {
	id   cron.EntryID
	spec string
}

func NewAutoSyncer(syncer segmentSyncer, segments SegmentStore, log logger.Logger) *AutoSyncer {
	return &AutoSyncer{
		syncer:   syncer,
		segments: segments,
		logger:   log,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		entries:  make(map[string]scheduledSync),
	}
}

// SyncSpec maps a segment frequency to a cron spec.
func SyncSpec(freq models.SyncFrequency) string {
	switch freq {
	case models.SyncRealtime:
		return "@every 5m"
	case models.SyncHourly:
		return "@hourly"
	default:
		return "@daily"
	}
}

// Run registers the auto-sync entries and blocks until ctx is done.
func (a *AutoSyncer) Run(ctx context.Context) error {
	a.mu.Lock()
	a.c = cron.New(cron.WithParser(a.parser), cron.WithLocation(time.UTC))
	a.mu.Unlock()

	if err := a.Refresh(ctx); err != nil {
		a.logger.Warnw("Initial segment auto-sync refresh failed", "error", err)
	}

	a.mu.Lock()
	_, err := a.c.AddFunc(autoSyncRefreshSpec, func() {
		if err := a.Refresh(ctx); err != nil {
			a.logger.Warnw("Segment auto-sync refresh failed", "error", err)
		}
	})
	a.mu.Unlock()
	if err != nil {
		return err
	}

	a.c.Start()
	a.logger.Infow("Segment auto-sync started")

	<-ctx.Done()
	<-a.c.Stop().Done()
	a.logger.Infow("Segment auto-sync stopped")
	return nil
}

// Refresh reconciles cron entries with the current set of auto-sync segments.
func (a *AutoSyncer) Refresh(ctx context.Context) error {
	segments, err := a.segments.ListAutoSync(ctx)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.c == nil {
		return nil
	}

	seen := make(map[string]struct{}, len(segments))
	for _, seg := range segments {
		seen[seg.ID] = struct{}{}
		spec := SyncSpec(seg.SyncFrequency)

		if existing, ok := a.entries[seg.ID]; ok {
			if existing.spec == spec {
				continue
			}
			a.c.Remove(existing.id)
		}

		segmentID := seg.ID
		id, err := a.c.AddFunc(spec, func() { a.syncOne(ctx, segmentID) })
		if err != nil {
			a.logger.Warnw("Failed to schedule segment sync", "segment_id", segmentID, "spec", spec, "error", err)
			continue
		}
		a.entries[segmentID] = scheduledSync{id: id, spec: spec}
	}

	for segmentID, entry := range a.entries {
		if _, ok := seen[segmentID]; !ok {
			a.c.Remove(entry.id)
			delete(a.entries, segmentID)
		}
	}
	return nil
}

// Scheduled returns the cron spec registered for each segment.
func (a *AutoSyncer) Scheduled() map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]string, len(a.entries))
	for id, e := range a.entries {
		out[id] = e.spec
	}
	return out
}

func (a *AutoSyncer) syncOne(ctx context.Context, segmentID string) {
	ctx, cancel := context.WithTimeout(ctx, autoSyncJobTimeout)
	defer cancel()

	if _, err := a.syncer.Sync(ctx, segmentID); err != nil {
		a.logger.Warnw("Scheduled segment sync failed", "segment_id", segmentID, "error", err)
	}
}
