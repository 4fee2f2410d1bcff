package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"recordapi/internal/config"
)

// mongoServerSelectionTimeout bounds how long any operation waits for a usable server.
const mongoServerSelectionTimeout = 3 * time.Second

var mongoConnect = mongo.Connect

// MongoClientOptions builds driver options from configuration.
func MongoClientOptions(c config.MongoConfig) (*options.ClientOptions, error) {
	if c.URI == "" {
		return nil, fmt.Errorf("invalid mongo config: uri is required")
	}
	if c.Database == "" || c.Collection == "" {
		return nil, fmt.Errorf("invalid mongo config: database and collection are required")
	}
	opts := options.Client().
		ApplyURI(c.URI).
		SetServerSelectionTimeout(mongoServerSelectionTimeout)
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mongo uri: %w", err)
	}
	return opts, nil
}

// NewMongo creates a MongoDB client and returns it with the configured collection.
// The driver connects lazily, so reachability is checked by the caller's ping.
func NewMongo(ctx context.Context, c config.MongoConfig) (*mongo.Client, *mongo.Collection, error) {
	opts, err := MongoClientOptions(c)
	if err != nil {
		return nil, nil, err
	}
	client, err := mongoConnect(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	return client, client.Database(c.Database).Collection(c.Collection), nil
}
