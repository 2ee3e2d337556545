// Package audiencetest provides in-memory contact and segment stores that
// evaluate predicates with Match, for use in tests of dependent packages.
package audiencetest

import (
	"context"
	"sync"
	"time"

	"mailwave/internal/audience"
	"mailwave/internal/segment"
	"mailwave/pkg/models"
)

type ContactStore struct {
	mu       sync.Mutex
	contacts []*models.Contact
	Err      error
}

func NewContactStore(contacts ...*models.Contact) *ContactStore {
	return &ContactStore{contacts: contacts}
}

func (s *ContactStore) Add(c *models.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts = append(s.contacts, c)
}

func (s *ContactStore) Get(id string) *models.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.contacts {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (s *ContactStore) matching(p segment.Predicate, limit int64) []*models.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Contact
	for _, c := range s.contacts {
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
		if p.Match(c) {
			out = append(out, c)
		}
	}
	return out
}

func (s *ContactStore) Stream(_ context.Context, p segment.Predicate) (audience.ContactIterator, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return &SliceIterator{items: s.matching(p, 0)}, nil
}

func (s *ContactStore) Find(_ context.Context, p segment.Predicate, limit int64) ([]*models.Contact, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.matching(p, limit), nil
}

func (s *ContactStore) Count(_ context.Context, p segment.Predicate) (int64, error) {
	if s.Err != nil {
		return 0, s.Err
	}
	return int64(len(s.matching(p, 0))), nil
}

func (s *ContactStore) IncrementEngagement(_ context.Context, contactID string, opens, clicks int64, at time.Time) error {
	if c := s.Get(contactID); c != nil {
		s.mu.Lock()
		c.EmailEngagement.Opens += opens
		c.EmailEngagement.Clicks += clicks
		c.LastEmailEngagementDate = &at
		s.mu.Unlock()
	}
	return nil
}

func (s *ContactStore) MarkBounced(_ context.Context, contactID string) error {
	if c := s.Get(contactID); c != nil {
		s.mu.Lock()
		c.IsBounced = true
		s.mu.Unlock()
	}
	return nil
}

func (s *ContactStore) MarkUnsubscribed(_ context.Context, contactID string) error {
	if c := s.Get(contactID); c != nil {
		s.mu.Lock()
		c.IsUnsubscribed = true
		s.mu.Unlock()
	}
	return nil
}

// SliceIterator iterates a fixed slice. Cancelling the context stops it.
type SliceIterator struct {
	items  []*models.Contact
	pos    int
	err    error
	Closed bool
}

func NewSliceIterator(items []*models.Contact) *SliceIterator {
	return &SliceIterator{items: items}
}

func (it *SliceIterator) Next(ctx context.Context) bool {
	if err := ctx.Err(); err != nil {
		it.err = err
		return false
	}
	if it.pos >= len(it.items) {
		return false
	}
	it.pos++
	return true
}

func (it *SliceIterator) Contact() *models.Contact { return it.items[it.pos-1] }
func (it *SliceIterator) Err() error               { return it.err }

func (it *SliceIterator) Close(context.Context) error {
	it.Closed = true
	return nil
}

type SegmentStore struct {
	mu       sync.Mutex
	segments map[string]*models.Segment
	Err      error
}

func NewSegmentStore(segments ...*models.Segment) *SegmentStore {
	s := &SegmentStore{segments: make(map[string]*models.Segment)}
	for _, seg := range segments {
		cp := *seg
		s.segments[seg.ID] = &cp
	}
	return s
}

func (s *SegmentStore) GetSegment(_ context.Context, id string) (*models.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	seg, ok := s.segments[id]
	if !ok {
		return nil, nil
	}
	cp := *seg
	return &cp, nil
}

func (s *SegmentStore) UpdateSegmentCount(_ context.Context, id string, count int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seg, ok := s.segments[id]; ok {
		seg.ContactCount = count
		seg.LastCalculatedAt = &at
	}
	return nil
}

func (s *SegmentStore) ListAutoSync(context.Context) ([]models.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Segment
	for _, seg := range s.segments {
		if seg.AutoSync && seg.IsActive {
			out = append(out, *seg)
		}
	}
	return out, nil
}
