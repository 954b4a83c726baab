package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// MongoConfig controls MongoDB connectivity.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// ConnectMongo opens a client and verifies the primary is reachable.
func ConnectMongo(ctx context.Context, cfg MongoConfig) (*mongo.Client, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongodb uri is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client, err := mongo.Connect(options.Client().
		ApplyURI(cfg.URI).
		SetAppName("photo-bot").
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return client, nil
}

// UploadIndexes returns the indexes the uploads collection relies on.
func UploadIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("owner_created"),
		},
		{
			Keys:    bson.D{{Key: "owner_id", Value: 1}, {Key: "local_id", Value: 1}},
			Options: options.Index().SetName("owner_local_id"),
		},
	}
}

// EnsureMongoIndexes creates the upload indexes if they are missing.
func EnsureMongoIndexes(ctx context.Context, coll *mongo.Collection, log zerolog.Logger) error {
	names, err := coll.Indexes().CreateMany(ctx, UploadIndexes())
	if err != nil {
		return fmt.Errorf("create upload indexes: %w", err)
	}
	log.Info().Strs("indexes", names).Str("collection", coll.Name()).Msg("ensured mongodb indexes")
	return nil
}
