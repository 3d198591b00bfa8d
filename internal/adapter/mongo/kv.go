// Package mongo is a domain.KeyValueStore backed by a MongoDB collection, for
// deployments that already run Mongo for field data.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const collectionName = "kv"

// KV stores one document per key: {_id: key, value: <binary>, updatedAt}.
type KV struct {
	client *mongo.Client
	coll   *mongo.Collection
}

type document struct {
	Key       string    `bson:"_id"`
	Value     []byte    `bson:"value"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// Connect dials uri and selects the kv collection in database db.
func Connect(ctx context.Context, uri, db string) (*KV, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &KV{client: client, coll: client.Database(db).Collection(collectionName)}, nil
}

// Close disconnects the client.
func (k *KV) Close(ctx context.Context) error {
	return k.client.Disconnect(ctx)
}

// Ping checks connectivity; it backs the readiness probe.
func (k *KV) Ping(ctx context.Context) error {
	return k.client.Ping(ctx, readpref.Primary())
}

// Get returns the value for key and whether it exists.
func (k *KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var doc document
	err := k.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return doc.Value, true, nil
}

// Set upserts the value for key.
func (k *KV) Set(ctx context.Context, key string, value []byte) error {
	_, err := k.coll.UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$set": bson.M{"value": value, "updatedAt": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (k *KV) Delete(ctx context.Context, key string) error {
	if _, err := k.coll.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
