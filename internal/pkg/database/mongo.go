package database

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ManuelReschke/CertFox/internal/pkg/env"
)

var ErrMongoUnavailable = errors.New("database: failed to connect to mongo")

// SetupMongo connects to MONGO_URI with the same retry policy as SetupDatabase
func SetupMongo(ctx context.Context) (*mongo.Database, error) {
	uri := env.GetEnv("MONGO_URI", "mongodb://localhost:27017")
	name := env.GetEnv("MONGO_DATABASE", "certfox")

	for i := 0; i < maxRetries; i++ {
		client, err := mongo.Connect(ctx, options.Client().
			ApplyURI(uri).
			SetConnectTimeout(10*time.Second).
			SetRetryWrites(true).
			SetRetryReads(true))
		if err == nil {
			if err = client.Ping(ctx, nil); err == nil {
				log.Infof("[Mongo] Connected, database %s", name)
				return client.Database(name), nil
			}
			_ = client.Disconnect(ctx)
		}

		log.Warnf("[Mongo] Failed to connect (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	return nil, ErrMongoUnavailable
}
