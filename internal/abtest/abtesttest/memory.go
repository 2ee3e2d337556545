// Package abtesttest provides an in-memory A/B test repository.
package abtesttest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"mailwave/pkg/models"
)

type Repository struct {
	mu    sync.Mutex
	tests map[string]*models.ABTest
	Err   error
}

func NewRepository(tests ...*models.ABTest) *Repository {
	r := &Repository{tests: make(map[string]*models.ABTest)}
	for _, t := range tests {
		cp := *t
		cp.Variants = append([]models.Variant(nil), t.Variants...)
		r.tests[t.ID] = &cp
	}
	return r
}

func (r *Repository) Get(_ context.Context, id string) (*models.ABTest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	t, ok := r.tests[id]
	if !ok {
		return nil, nil
	}
	return clone(t), nil
}

func (r *Repository) Status(id string) models.ABTestStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tests[id]; ok {
		return t.Status
	}
	return ""
}

func due(t *models.ABTest, now time.Time) bool {
	return t.Status == models.ABTestRunning &&
		t.StartedAt != nil && !t.StartedAt.After(now) &&
		t.ClaimedAt == nil
}

func (r *Repository) Claim(_ context.Context, id string, now time.Time) (*models.ABTest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	t, ok := r.tests[id]
	if !ok || !due(t, now) {
		return nil, nil
	}
	t.ClaimedAt = &now
	t.UpdatedAt = now
	return clone(t), nil
}

func (r *Repository) Release(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tests[id]; ok {
		t.ClaimedAt = nil
	}
	return nil
}

func (r *Repository) Transition(_ context.Context, id string, from []models.ABTestStatus, to models.ABTestStatus, set bson.M) (*models.ABTest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	t, ok := r.tests[id]
	if !ok {
		return nil, nil
	}
	allowed := false
	for _, s := range from {
		if s == t.Status {
			allowed = true
		}
	}
	if !allowed {
		return nil, nil
	}

	before := clone(t)
	t.Status = to
	t.UpdatedAt = time.Now().UTC()
	for k, v := range set {
		apply(t, k, v)
	}
	return before, nil
}

func (r *Repository) ListDue(_ context.Context, now time.Time, limit int64) ([]models.ABTest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	var out []models.ABTest
	for _, t := range r.tests {
		if due(t, now) {
			out = append(out, *clone(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(*out[j].StartedAt) })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func apply(t *models.ABTest, key string, v interface{}) {
	switch key {
	case "startedAt":
		at := v.(time.Time)
		t.StartedAt = &at
	case "completedAt":
		at := v.(time.Time)
		t.CompletedAt = &at
	case "claimedAt":
		if at, ok := v.(time.Time); ok {
			t.ClaimedAt = &at
		} else {
			t.ClaimedAt = nil
		}
	case "winnerId":
		t.WinnerID = v.(string)
	case "winningStats":
		ws := v.(models.WinningStats)
		t.WinningStats = &ws
	default:
		var i int
		if _, err := fmt.Sscanf(key, "variants.%d.segmentSize", &i); err == nil && strings.HasSuffix(key, ".segmentSize") && i < len(t.Variants) {
			t.Variants[i].SegmentSize = v.(int64)
		}
	}
}

func clone(t *models.ABTest) *models.ABTest {
	cp := *t
	cp.Variants = append([]models.Variant(nil), t.Variants...)
	return &cp
}
