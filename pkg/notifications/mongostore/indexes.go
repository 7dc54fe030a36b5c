package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func recordIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		// In-app feed, newest first.
		{
			Keys: bson.D{
				{Key: "recipient.user_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("recipient_created_idx"),
		},
		// Deferred records waiting for promotion.
		{
			Keys: bson.D{
				{Key: "processed_at", Value: 1},
				{Key: "scheduled_for", Value: 1},
			},
			Options: options.Index().SetName("processed_scheduled_idx"),
		},
		{
			Keys: bson.D{
				{Key: "created_at", Value: 1},
				{Key: "type", Value: 1},
			},
			Options: options.Index().SetName("created_type_idx"),
		},
		{
			Keys: bson.D{
				{Key: "metadata.branch_id", Value: 1},
				{Key: "created_at", Value: 1},
			},
			Options: options.Index().SetName("branch_created_idx").SetSparse(true),
		},
	}
}

func userIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "roles", Value: 1}, {Key: "active", Value: 1}},
			Options: options.Index().SetName("roles_active_idx"),
		},
		{
			Keys:    bson.D{{Key: "branch_ids", Value: 1}, {Key: "active", Value: 1}},
			Options: options.Index().SetName("branches_active_idx"),
		},
	}
}

// EnsureIndexes creates the indexes the record queries rely on.
// Preferences are looked up by _id only and need none.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.records.Indexes().CreateMany(ctx, recordIndexes()); err != nil {
		return fmt.Errorf("failed to create notification indexes: %w", err)
	}
	return nil
}

// EnsureIndexes creates the indexes for role and branch lookups.
func (d *Directory) EnsureIndexes(ctx context.Context) error {
	if _, err := d.users.Indexes().CreateMany(ctx, userIndexes()); err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}
	return nil
}
