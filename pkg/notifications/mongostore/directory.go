package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/posnotify/pkg/notifications"
)

// Directory is a UserDirectory over a users collection.
type Directory struct {
	users *mongo.Collection
}

// NewDirectory creates a Directory reading the named collection of db.
// An empty name selects UsersCollection.
func NewDirectory(db *mongo.Database, collection string) *Directory {
	if collection == "" {
		collection = UsersCollection
	}
	return &Directory{users: db.Collection(collection)}
}

// Put adds u or replaces the user with the same id.
func (d *Directory) Put(ctx context.Context, u notifications.User) error {
	doc := userDoc{
		ID:        u.ID,
		Email:     u.Email,
		Mobile:    u.Mobile,
		Roles:     u.Roles,
		BranchIDs: u.BranchIDs,
		Active:    u.Active,
	}
	_, err := d.users.ReplaceOne(ctx, bson.D{{Key: "_id", Value: u.ID}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save user %s: %w", u.ID, err)
	}
	return nil
}

func (d *Directory) ActiveUsers(ctx context.Context, ids []string) ([]notifications.Recipient, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return d.active(ctx, bson.E{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}})
}

func (d *Directory) ActiveUsersByRoles(ctx context.Context, roles []string) ([]notifications.Recipient, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	return d.active(ctx, bson.E{Key: "roles", Value: bson.D{{Key: "$in", Value: roles}}})
}

func (d *Directory) ActiveUsersByBranch(ctx context.Context, branchID string) ([]notifications.Recipient, error) {
	return d.active(ctx, bson.E{Key: "branch_ids", Value: branchID})
}

func (d *Directory) active(ctx context.Context, match bson.E) ([]notifications.Recipient, error) {
	filter := bson.D{match, {Key: "active", Value: true}}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})

	cur, err := d.users.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}

	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}

	out := make([]notifications.Recipient, len(docs))
	for i, u := range docs {
		out[i] = notifications.Recipient{UserID: u.ID, Email: u.Email, Mobile: u.Mobile}
	}
	return out, nil
}

var _ notifications.UserDirectory = (*Directory)(nil)
