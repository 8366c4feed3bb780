package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinic-workers/internal/common/config"
	apperrors "clinic-workers/internal/common/errors"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

var ErrMongoUnavailable = errors.New("failed to connect to mongo")

// MongoClient holds the client and the clinic database handle.
type MongoClient struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// NewMongo connects and pings, retrying cfg.RetryAttempts times.
func NewMongo(ctx context.Context, cfg config.MongoConfig) (*MongoClient, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(config.GetDuration(cfg.ConnectTimeout)).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetRetryWrites(true).
		SetRetryReads(true)

	var lastErr error
	for attempt := 0; attempt < cfg.RetryAttempts; attempt++ {
		client, err := mongo.Connect(opts)
		if err == nil {
			if err = client.Ping(ctx, nil); err == nil {
				return &MongoClient{Client: client, Database: client.Database(cfg.Database)}, nil
			}
			_ = client.Disconnect(ctx)
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrMongoUnavailable, ctx.Err())
		case <-time.After(time.Duration(attempt+1) * time.Second):
		}
	}
	return nil, errors.Join(ErrMongoUnavailable, fmt.Errorf("after %d attempts: %w", cfg.RetryAttempts, lastErr))
}

func (c *MongoClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx, nil); err != nil {
		return apperrors.NewDatabaseConnectionFailedError(fmt.Errorf("mongo ping failed: %w", err))
	}
	return nil
}

func (c *MongoClient) Close(ctx context.Context) error {
	return c.Client.Disconnect(ctx)
}
