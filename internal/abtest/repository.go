package abtest

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mailwave/internal/constants"
	"mailwave/pkg/models"
)

type Repository interface {
	// Get returns nil, nil when the test does not exist.
	Get(ctx context.Context, id string) (*models.ABTest, error)
	// Claim marks a running, started and unclaimed test as taken and returns
	// it. It returns nil when another run already holds it.
	Claim(ctx context.Context, id string, now time.Time) (*models.ABTest, error)
	Release(ctx context.Context, id string) error
	// Transition moves the test to `to` while its status is one of `from`,
	// returning the document as it was before, or nil when nothing matched.
	Transition(ctx context.Context, id string, from []models.ABTestStatus, to models.ABTestStatus, set bson.M) (*models.ABTest, error)
	ListDue(ctx context.Context, now time.Time, limit int64) ([]models.ABTest, error)
}

type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{collection: db.Collection(constants.CollectionABTests)}
}

func (r *MongoRepository) Get(ctx context.Context, id string) (*models.ABTest, error) {
	var t models.ABTest
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&t)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ab test: %w", err)
	}
	return &t, nil
}

func dueFilter(now time.Time) bson.M {
	return bson.M{
		"status":    models.ABTestRunning,
		"startedAt": bson.M{"$lte": now},
		"claimedAt": nil,
	}
}

func (r *MongoRepository) Claim(ctx context.Context, id string, now time.Time) (*models.ABTest, error) {
	filter := dueFilter(now)
	filter["_id"] = id

	var t models.ABTest
	err := r.collection.FindOneAndUpdate(ctx, filter,
		bson.M{"$set": bson.M{"claimedAt": now, "updatedAt": now}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&t)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim ab test: %w", err)
	}
	return &t, nil
}

func (r *MongoRepository) Release(ctx context.Context, id string) error {
	_, err := r.collection.UpdateByID(ctx, id, bson.M{
		"$unset": bson.M{"claimedAt": ""},
		"$set":   bson.M{"updatedAt": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("failed to release ab test: %w", err)
	}
	return nil
}

func (r *MongoRepository) Transition(ctx context.Context, id string, from []models.ABTestStatus, to models.ABTestStatus, set bson.M) (*models.ABTest, error) {
	fields := bson.M{"status": to, "updatedAt": time.Now().UTC()}
	for k, v := range set {
		fields[k] = v
	}

	var before models.ABTest
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": from}},
		bson.M{"$set": fields},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&before)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to transition ab test: %w", err)
	}
	return &before, nil
}

func (r *MongoRepository) ListDue(ctx context.Context, now time.Time, limit int64) ([]models.ABTest, error) {
	opts := options.Find().SetSort(bson.D{{Key: "startedAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := r.collection.Find(ctx, dueFilter(now), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list due ab tests: %w", err)
	}
	defer cursor.Close(ctx)

	var tests []models.ABTest
	if err := cursor.All(ctx, &tests); err != nil {
		return nil, fmt.Errorf("failed to decode ab tests: %w", err)
	}
	return tests, nil
}

// sizeFields sets variants.<i>.segmentSize for every group.
func sizeFields(sizes []int) bson.M {
	set := bson.M{}
	for i, n := range sizes {
		set[fmt.Sprintf("variants.%d.segmentSize", i)] = int64(n)
	}
	return set
}
