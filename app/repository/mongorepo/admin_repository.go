package mongorepo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/ManuelReschke/CertFox/app/models"
)

type adminRepository struct {
	coll *mongo.Collection
}

func (r *adminRepository) Create(ctx context.Context, admin *models.Admin) error {
	ensureID(&admin.ID)
	now := time.Now().UTC()
	admin.CreatedAt, admin.UpdatedAt = now, now
	_, err := r.coll.InsertOne(ctx, admin)
	return translateError(err)
}

func (r *adminRepository) GetByID(ctx context.Context, id string) (*models.Admin, error) {
	var admin models.Admin
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&admin); err != nil {
		return nil, translateError(err)
	}
	return &admin, nil
}
