package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mailwave/internal/constants"
)

// MongoIndexes lists the indexes each collection needs, keyed by collection name.
func MongoIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		constants.CollectionTracking: {
			{
				Keys:    bson.D{{Key: "trackingId", Value: 1}},
				Options: options.Index().SetName("idx_email_tracking_tracking_id").SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "createdAt", Value: 1}},
				Options: options.Index().SetName("idx_email_tracking_ttl").SetExpireAfterSeconds(constants.TrackingTTLSeconds),
			},
			{
				Keys:    bson.D{{Key: "campaignId", Value: 1}, {Key: "opened", Value: 1}},
				Options: options.Index().SetName("idx_email_tracking_campaign_opened"),
			},
		},
		constants.CollectionCampaigns: {
			{
				Keys:    bson.D{{Key: "status", Value: 1}, {Key: "scheduledAt", Value: 1}},
				Options: options.Index().SetName("idx_campaigns_status_scheduled_at"),
			},
			{
				Keys:    bson.D{{Key: "status", Value: 1}, {Key: "updatedAt", Value: 1}},
				Options: options.Index().SetName("idx_campaigns_status_updated_at"),
			},
		},
		constants.CollectionABTests: {
			{
				Keys:    bson.D{{Key: "status", Value: 1}, {Key: "startedAt", Value: 1}},
				Options: options.Index().SetName("idx_abtests_status_started_at"),
			},
		},
		constants.CollectionSegments: {
			{
				Keys:    bson.D{{Key: "autoSync", Value: 1}, {Key: "isActive", Value: 1}},
				Options: options.Index().SetName("idx_segments_auto_sync_active"),
			},
		},
		constants.CollectionContacts: {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetName("idx_contacts_email"),
			},
			{
				Keys: bson.D{
					{Key: "isUnsubscribed", Value: 1},
					{Key: "isBounced", Value: 1},
					{Key: "isValidEmail", Value: 1},
				},
				Options: options.Index().SetName("idx_contacts_eligibility"),
			},
		},
		constants.CollectionProducts: {
			{
				Keys:    bson.D{{Key: "category", Value: 1}},
				Options: options.Index().SetName("idx_products_category"),
			},
			{
				Keys:    bson.D{{Key: "isBestSeller", Value: 1}},
				Options: options.Index().SetName("idx_products_best_seller"),
			},
		},
	}
}

// EnsureMongoIndexes creates the indexes for the given collections, or for
// all known collections when none are named.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database, collections ...string) error {
	all := MongoIndexes()
	if len(collections) == 0 {
		for name := range all {
			collections = append(collections, name)
		}
	}

	for _, name := range collections {
		indexes, ok := all[name]
		if !ok {
			return fmt.Errorf("no indexes defined for collection %q", name)
		}
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
			if !strings.Contains(err.Error(), "already exists") {
				return fmt.Errorf("failed to create indexes on %s: %w", name, err)
			}
		}
	}
	return nil
}
