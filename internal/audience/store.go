package audience

import (
	"context"
	"time"

	"mailwave/internal/segment"
	"mailwave/pkg/models"
)

// ContactIterator is a forward-only view over a query result.
type ContactIterator interface {
	Next(ctx context.Context) bool
	Contact() *models.Contact
	Err() error
	Close(ctx context.Context) error
}

type ContactStore interface {
	Stream(ctx context.Context, p segment.Predicate) (ContactIterator, error)
	Find(ctx context.Context, p segment.Predicate, limit int64) ([]*models.Contact, error)
	Count(ctx context.Context, p segment.Predicate) (int64, error)
}

type SegmentStore interface {
	// GetSegment returns nil, nil when the segment does not exist.
	GetSegment(ctx context.Context, id string) (*models.Segment, error)
	UpdateSegmentCount(ctx context.Context, id string, count int64, at time.Time) error
	ListAutoSync(ctx context.Context) ([]models.Segment, error)
}
