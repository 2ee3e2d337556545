package dispatch

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

// CampaignRepository persists campaigns. Getters return nil, nil when the
// campaign does not exist.
type CampaignRepository interface {
	Get(ctx context.Context, id string) (*models.Campaign, error)
	Insert(ctx context.Context, c *models.Campaign) error
	// Transition moves the campaign to `to` only while its status is one of
	// `from`, and returns the document as it was before. It returns nil when
	// nothing matched.
	Transition(ctx context.Context, id string, from []models.CampaignStatus, to models.CampaignStatus, set bson.M) (*models.Campaign, error)
	// Finish sets the final status and applies stat increments in one write,
	// returning the document as it was before.
	Finish(ctx context.Context, id string, status models.CampaignStatus, inc map[string]int64, at time.Time) (*models.Campaign, error)
	IncrementStats(ctx context.Context, id string, inc map[string]int64) error
	ListDue(ctx context.Context, now time.Time, limit int64) ([]models.Campaign, error)
	ListStuck(ctx context.Context, updatedBefore time.Time) ([]models.Campaign, error)
}

type MongoCampaignRepository struct {
	collection *mongo.Collection
}

func NewMongoCampaignRepository(db *mongo.Database) *MongoCampaignRepository {
	return &MongoCampaignRepository{collection: db.Collection(constants.CollectionCampaigns)}
}

func (r *MongoCampaignRepository) Get(ctx context.Context, id string) (*models.Campaign, error) {
	var c models.Campaign
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}
	return &c, nil
}

func (r *MongoCampaignRepository) Insert(ctx context.Context, c *models.Campaign) error {
	if _, err := r.collection.InsertOne(ctx, c); err != nil {
		return fmt.Errorf("failed to insert campaign: %w", err)
	}
	return nil
}

func (r *MongoCampaignRepository) Transition(ctx context.Context, id string, from []models.CampaignStatus, to models.CampaignStatus, set bson.M) (*models.Campaign, error) {
	fields := bson.M{"status": to, "updatedAt": time.Now().UTC()}
	for k, v := range set {
		fields[k] = v
	}

	var before models.Campaign
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": from}},
		bson.M{"$set": fields},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&before)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to transition campaign: %w", err)
	}
	return &before, nil
}

func (r *MongoCampaignRepository) Finish(ctx context.Context, id string, status models.CampaignStatus, inc map[string]int64, at time.Time) (*models.Campaign, error) {
	set := bson.M{"status": status, "updatedAt": at}
	if status == models.CampaignSent {
		set["sentAt"] = at
	}
	update := bson.M{"$set": set}
	if len(inc) > 0 {
		update["$inc"] = statsInc(inc)
	}

	var before models.Campaign
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"_id": id}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&before)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to finish campaign: %w", err)
	}
	return &before, nil
}

func (r *MongoCampaignRepository) IncrementStats(ctx context.Context, id string, inc map[string]int64) error {
	if len(inc) == 0 {
		return nil
	}
	_, err := r.collection.UpdateByID(ctx, id, bson.M{
		"$inc": statsInc(inc),
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("failed to increment campaign stats: %w", err)
	}
	return nil
}

func (r *MongoCampaignRepository) ListDue(ctx context.Context, now time.Time, limit int64) ([]models.Campaign, error) {
	opts := options.Find().SetSort(bson.D{{Key: "scheduledAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	return r.find(ctx, bson.M{
		"status":      models.CampaignScheduled,
		"scheduledAt": bson.M{"$lte": now},
	}, opts)
}

func (r *MongoCampaignRepository) ListStuck(ctx context.Context, updatedBefore time.Time) ([]models.Campaign, error) {
	return r.find(ctx, bson.M{
		"status":    models.CampaignProcessing,
		"updatedAt": bson.M{"$lt": updatedBefore},
	}, options.Find().SetSort(bson.D{{Key: "updatedAt", Value: 1}}))
}

func (r *MongoCampaignRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Campaign, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer cursor.Close(ctx)

	var campaigns []models.Campaign
	if err := cursor.All(ctx, &campaigns); err != nil {
		return nil, fmt.Errorf("failed to decode campaigns: %w", err)
	}
	return campaigns, nil
}

func statsInc(inc map[string]int64) bson.M {
	out := make(bson.M, len(inc))
	for field, n := range inc {
		out["stats."+field] = n
	}
	return out
}
