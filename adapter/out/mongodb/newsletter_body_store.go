// Package mongodb archives full decoded message bodies in a document
// store, keeping the relational tables lean.
package mongodb

import (
	"context"
	"fmt"
	"time"

	"newsletter_server/core/port/out"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const bodyCollection = "email_bodies"

// NewClient connects to MongoDB and verifies the connection.
func NewClient(ctx context.Context, uri string) (*mongo.Client, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}
	return client, nil
}

// BodyStore implements out.BodyStore on a MongoDB collection.
type BodyStore struct {
	collection *mongo.Collection
}

func NewBodyStore(client *mongo.Client, database string) *BodyStore {
	return &BodyStore{collection: client.Database(database).Collection(bodyCollection)}
}

// Save upserts the decoded body parts keyed by (user, external id), so
// re-syncing the same message overwrites rather than duplicates.
func (s *BodyStore) Save(ctx context.Context, userID uuid.UUID, externalID, text, html string) error {
	filter := bson.M{
		"user_id":     userID.String(),
		"external_id": externalID,
	}
	update := bson.M{
		"$set": bson.M{
			"body_text":  text,
			"body_html":  html,
			"fetched_at": time.Now(),
		},
	}

	_, err := s.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save email body: %w", err)
	}
	return nil
}

var _ out.BodyStore = (*BodyStore)(nil)
