package tracking

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mailwave/internal/constants"
	"mailwave/pkg/models"
)

// Repository persists tracking records. Update methods return the record as
// it was before the update, or nil when no record matched.
type Repository interface {
	Insert(ctx context.Context, rec *models.TrackingRecord) error
	Get(ctx context.Context, trackingID string) (*models.TrackingRecord, error)
	MarkSent(ctx context.Context, trackingID string, at time.Time) (bool, error)
	RecordOpen(ctx context.Context, trackingID string, at time.Time) (*models.TrackingRecord, error)
	RecordClick(ctx context.Context, trackingID, url string, at time.Time) (*models.TrackingRecord, error)
	SetDelivery(ctx context.Context, trackingID string, update DeliveryUpdate) (*models.TrackingRecord, error)
	CampaignEngagement(ctx context.Context, campaignID string) (*Engagement, error)
}

type DeliveryUpdate struct {
	Status       models.DeliveryStatus
	BounceType   models.BounceType
	BounceReason string
}

// Engagement summarizes the tracking records of one campaign.
type Engagement struct {
	UniqueOpens  int64   `json:"uniqueOpens"`
	UniqueClicks int64   `json:"uniqueClicks"`
	AvgOpenTime  float64 `json:"avgOpenTime"`
}

type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{collection: db.Collection(constants.CollectionTracking)}
}

func (r *MongoRepository) Insert(ctx context.Context, rec *models.TrackingRecord) error {
	if _, err := r.collection.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("failed to insert tracking record: %w", err)
	}
	return nil
}

func (r *MongoRepository) Get(ctx context.Context, trackingID string) (*models.TrackingRecord, error) {
	var rec models.TrackingRecord
	err := r.collection.FindOne(ctx, bson.M{"trackingId": trackingID}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tracking record: %w", err)
	}
	return &rec, nil
}

// MarkSent only moves pending records, so a late call never overwrites a
// delivery status reported by the transport.
func (r *MongoRepository) MarkSent(ctx context.Context, trackingID string, at time.Time) (bool, error) {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"trackingId": trackingID, "deliveryStatus": models.DeliveryPending},
		bson.M{"$set": bson.M{"deliveryStatus": models.DeliverySent, "sentAt": at}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark tracking record sent: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

func (r *MongoRepository) RecordOpen(ctx context.Context, trackingID string, at time.Time) (*models.TrackingRecord, error) {
	update := mongo.Pipeline{{{Key: "$set", Value: bson.M{
		"opened":        true,
		"openCount":     bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$openCount", 0}}, 1}},
		"firstOpenedAt": bson.M{"$ifNull": bson.A{"$firstOpenedAt", at}},
		"lastOpenedAt":  at,
	}}}}
	return r.findAndUpdate(ctx, trackingID, update)
}

func (r *MongoRepository) RecordClick(ctx context.Context, trackingID, url string, at time.Time) (*models.TrackingRecord, error) {
	update := mongo.Pipeline{{{Key: "$set", Value: bson.M{
		"clicked":        true,
		"clickCount":     bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$clickCount", 0}}, 1}},
		"firstClickedAt": bson.M{"$ifNull": bson.A{"$firstClickedAt", at}},
		"lastClickedAt":  at,
	}}}}
	before, err := r.findAndUpdate(ctx, trackingID, update)
	if err != nil || before == nil {
		return before, err
	}

	res, err := r.collection.UpdateOne(ctx,
		bson.M{"trackingId": trackingID, "clickedLinks.url": url},
		bson.M{
			"$inc": bson.M{"clickedLinks.$.clickCount": 1},
			"$set": bson.M{"clickedLinks.$.timestamp": at},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update clicked link: %w", err)
	}
	if res.MatchedCount == 0 {
		_, err = r.collection.UpdateOne(ctx,
			bson.M{"trackingId": trackingID, "clickedLinks.url": bson.M{"$ne": url}},
			bson.M{"$push": bson.M{"clickedLinks": models.ClickedLink{URL: url, ClickCount: 1, Timestamp: at}}},
		)
		if err != nil {
			return nil, fmt.Errorf("failed to add clicked link: %w", err)
		}
	}
	return before, nil
}

func (r *MongoRepository) SetDelivery(ctx context.Context, trackingID string, update DeliveryUpdate) (*models.TrackingRecord, error) {
	set := bson.M{"deliveryStatus": update.Status}
	if update.BounceType != "" {
		set["bounceType"] = update.BounceType
	}
	if update.BounceReason != "" {
		set["bounceReason"] = update.BounceReason
	}
	return r.findAndUpdate(ctx, trackingID, bson.M{"$set": set})
}

func (r *MongoRepository) findAndUpdate(ctx context.Context, trackingID string, update interface{}) (*models.TrackingRecord, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var before models.TrackingRecord
	err := r.collection.FindOneAndUpdate(ctx, bson.M{"trackingId": trackingID}, update, opts).Decode(&before)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update tracking record: %w", err)
	}
	return &before, nil
}

func (r *MongoRepository) CampaignEngagement(ctx context.Context, campaignID string) (*Engagement, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"campaignId": campaignID}}},
		{{Key: "$group", Value: bson.M{
			"_id":          nil,
			"uniqueOpens":  bson.M{"$sum": bson.M{"$cond": bson.A{"$opened", 1, 0}}},
			"uniqueClicks": bson.M{"$sum": bson.M{"$cond": bson.A{"$clicked", 1, 0}}},
			"avgOpenMs": bson.M{"$avg": bson.M{"$cond": bson.A{
				bson.M{"$and": bson.A{
					bson.M{"$gt": bson.A{"$firstOpenedAt", nil}},
					bson.M{"$gt": bson.A{"$sentAt", nil}},
				}},
				bson.M{"$subtract": bson.A{"$firstOpenedAt", "$sentAt"}},
				nil,
			}}},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate tracking records: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		UniqueOpens  int64    `bson:"uniqueOpens"`
		UniqueClicks int64    `bson:"uniqueClicks"`
		AvgOpenMs    *float64 `bson:"avgOpenMs"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode tracking aggregate: %w", err)
	}

	out := &Engagement{}
	if len(rows) > 0 {
		out.UniqueOpens = rows[0].UniqueOpens
		out.UniqueClicks = rows[0].UniqueClicks
		if rows[0].AvgOpenMs != nil {
			out.AvgOpenTime = roundMinutes(*rows[0].AvgOpenMs)
		}
	}
	return out, nil
}

func roundMinutes(ms float64) float64 {
	return math.Round(ms / float64(time.Minute/time.Millisecond))
}
