package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConnectMongo opens a connection and returns the client. Caller should call client.Disconnect(ctx).
func ConnectMongo(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	clientOpts := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// ConnectWithRetry calls ConnectMongo up to attempts times, doubling the
// wait between tries starting at backoff.
func ConnectWithRetry(ctx context.Context, uri string, timeout time.Duration, attempts int, backoff time.Duration, onRetry func(attempt int, err error)) (*mongo.Client, error) {
	var lastErr error
	for i := 1; i <= attempts; i++ {
		client, err := ConnectMongo(ctx, uri, timeout)
		if err == nil {
			return client, nil
		}
		lastErr = err
		if i == attempts {
			break
		}
		if onRetry != nil {
			onRetry(i, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("mongo connect after %d attempts: %w", attempts, lastErr)
}

// UniqueIndexes builds one unique ascending index per field.
func UniqueIndexes(fields []string) []mongo.IndexModel {
	models := make([]mongo.IndexModel, 0, len(fields))
	for _, f := range fields {
		models = append(models, mongo.IndexModel{
			Keys:    bson.D{{Key: f, Value: 1}},
			Options: options.Index().SetUnique(true).SetName(f + "_unique"),
		})
	}
	return models
}

// EnsureIndexes creates the unique indexes of fields on col.
func EnsureIndexes(ctx context.Context, col *mongo.Collection, fields []string) error {
	models := UniqueIndexes(fields)
	if len(models) == 0 {
		return nil
	}
	if _, err := col.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("mongo ensure indexes on %s: %w", col.Name(), err)
	}
	return nil
}
