package mongorepo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ManuelReschke/CertFox/app/models"
)

type webhookEventRepository struct {
	coll *mongo.Collection
}

func (r *webhookEventRepository) CreateIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, error) {
	ensureID(&event.ID)
	now := time.Now().UTC()
	event.CreatedAt, event.UpdatedAt = now, now
	_, err := r.coll.InsertOne(ctx, event)
	if err == nil {
		return true, nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return false, err
	}
	err = r.coll.FindOne(ctx, bson.M{"provider": event.Provider, "providerEventId": event.ProviderEventID}).Decode(event)
	return false, translateError(err)
}

func (r *webhookEventRepository) MarkProcessed(ctx context.Context, id string, processingErr string, at time.Time) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"processedAt":     at,
		"processingError": processingErr,
		"updatedAt":       at,
	}})
	return err
}
