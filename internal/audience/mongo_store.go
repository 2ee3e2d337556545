package audience

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mailwave/internal/constants"
	"mailwave/internal/segment"
	"mailwave/pkg/metrics"
	"mailwave/pkg/models"
)

type MongoContactStore struct {
	collection *mongo.Collection
	batchSize  int32
}

func NewMongoContactStore(db *mongo.Database) *MongoContactStore {
	return &MongoContactStore{
		collection: db.Collection(constants.CollectionContacts),
		batchSize:  constants.ContactCursorBatchSize,
	}
}

func (s *MongoContactStore) Stream(ctx context.Context, p segment.Predicate) (ContactIterator, error) {
	start := time.Now()
	opts := options.Find().
		SetBatchSize(s.batchSize).
		SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := s.collection.Find(ctx, p.Filter(), opts)
	metrics.ObserveAudienceQuery("stream", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to open contact cursor: %w", err)
	}
	return &mongoIterator{cursor: cursor}, nil
}

func (s *MongoContactStore) Find(ctx context.Context, p segment.Predicate, limit int64) ([]*models.Contact, error) {
	start := time.Now()
	defer func() { metrics.ObserveAudienceQuery("find", time.Since(start)) }()

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := s.collection.Find(ctx, p.Filter(), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find contacts: %w", err)
	}
	defer cursor.Close(ctx)

	var contacts []*models.Contact
	if err := cursor.All(ctx, &contacts); err != nil {
		return nil, fmt.Errorf("failed to decode contacts: %w", err)
	}
	return contacts, nil
}

func (s *MongoContactStore) Count(ctx context.Context, p segment.Predicate) (int64, error) {
	start := time.Now()
	defer func() { metrics.ObserveAudienceQuery("count", time.Since(start)) }()

	n, err := s.collection.CountDocuments(ctx, p.Filter())
	if err != nil {
		return 0, fmt.Errorf("failed to count contacts: %w", err)
	}
	return n, nil
}

// IncrementEngagement bumps the contact's open/click counters.
func (s *MongoContactStore) IncrementEngagement(ctx context.Context, contactID string, opens, clicks int64, at time.Time) error {
	update := bson.M{
		"$inc": bson.M{"emailEngagement.opens": opens, "emailEngagement.clicks": clicks},
		"$set": bson.M{"lastEmailEngagementDate": at, "lastActivityDate": at},
	}
	if _, err := s.collection.UpdateByID(ctx, contactID, update); err != nil {
		return fmt.Errorf("failed to update contact engagement: %w", err)
	}
	return nil
}

func (s *MongoContactStore) MarkBounced(ctx context.Context, contactID string) error {
	return s.setFlag(ctx, contactID, "isBounced")
}

func (s *MongoContactStore) MarkUnsubscribed(ctx context.Context, contactID string) error {
	return s.setFlag(ctx, contactID, "isUnsubscribed")
}

func (s *MongoContactStore) setFlag(ctx context.Context, contactID, flag string) error {
	update := bson.M{"$set": bson.M{flag: true, "updatedAt": time.Now().UTC()}}
	if _, err := s.collection.UpdateByID(ctx, contactID, update); err != nil {
		return fmt.Errorf("failed to set %s: %w", flag, err)
	}
	return nil
}

type mongoIterator struct {
	cursor  *mongo.Cursor
	current *models.Contact
	err     error
}

func (it *mongoIterator) Next(ctx context.Context) bool {
	if it.err != nil || !it.cursor.Next(ctx) {
		return false
	}
	var c models.Contact
	if err := it.cursor.Decode(&c); err != nil {
		it.err = fmt.Errorf("failed to decode contact: %w", err)
		return false
	}
	it.current = &c
	return true
}

func (it *mongoIterator) Contact() *models.Contact { return it.current }

func (it *mongoIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.cursor.Err()
}

func (it *mongoIterator) Close(ctx context.Context) error {
	return it.cursor.Close(ctx)
}

type MongoSegmentStore struct {
	collection *mongo.Collection
}

func NewMongoSegmentStore(db *mongo.Database) *MongoSegmentStore {
	return &MongoSegmentStore{collection: db.Collection(constants.CollectionSegments)}
}

func (s *MongoSegmentStore) GetSegment(ctx context.Context, id string) (*models.Segment, error) {
	var seg models.Segment
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&seg)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get segment: %w", err)
	}
	return &seg, nil
}

func (s *MongoSegmentStore) UpdateSegmentCount(ctx context.Context, id string, count int64, at time.Time) error {
	update := bson.M{"$set": bson.M{
		"contactCount":     count,
		"lastCalculatedAt": at,
		"updatedAt":        at,
	}}
	result, err := s.collection.UpdateByID(ctx, id, update)
	if err != nil {
		return fmt.Errorf("failed to update segment count: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("segment %s not found", id)
	}
	return nil
}

func (s *MongoSegmentStore) ListAutoSync(ctx context.Context) ([]models.Segment, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"autoSync": true, "isActive": true})
	if err != nil {
		return nil, fmt.Errorf("failed to list auto-sync segments: %w", err)
	}
	defer cursor.Close(ctx)

	var segments []models.Segment
	if err := cursor.All(ctx, &segments); err != nil {
		return nil, fmt.Errorf("failed to decode segments: %w", err)
	}
	return segments, nil
}
