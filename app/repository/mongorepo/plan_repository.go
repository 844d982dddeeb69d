package mongorepo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ManuelReschke/CertFox/app/models"
	"github.com/ManuelReschke/CertFox/app/repository"
)

type planRepository struct {
	coll *mongo.Collection
}

func (r *planRepository) List(ctx context.Context, activeOnly bool) ([]models.Plan, error) {
	filter := bson.M{}
	if activeOnly {
		filter["isActive"] = true
	}
	opts := options.Find().SetSort(bson.D{{Key: "sortOrder", Value: 1}, {Key: "price", Value: 1}})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	plans := []models.Plan{}
	if err := cur.All(ctx, &plans); err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *planRepository) GetByID(ctx context.Context, id string) (*models.Plan, error) {
	var plan models.Plan
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&plan); err != nil {
		return nil, translateError(err)
	}
	return &plan, nil
}

func (r *planRepository) GetByName(ctx context.Context, name models.PlanName) (*models.Plan, error) {
	opts := options.Find().SetSort(bson.D{{Key: "sortOrder", Value: 1}})
	cur, err := r.coll.Find(ctx, bson.M{"name": name, "isActive": true}, opts)
	if err != nil {
		return nil, err
	}
	var plans []models.Plan
	if err := cur.All(ctx, &plans); err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		return nil, repository.ErrNotFound
	}
	for i := range plans {
		if plans[i].BillingCycle == models.BillingCycleMonthly {
			return &plans[i], nil
		}
	}
	return &plans[0], nil
}

func (r *planRepository) Count(ctx context.Context) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{})
}

func (r *planRepository) Create(ctx context.Context, plan *models.Plan) error {
	ensureID(&plan.ID)
	if plan.Currency == "" {
		plan.Currency = models.DefaultCurrency
	}
	now := time.Now().UTC()
	plan.CreatedAt, plan.UpdatedAt = now, now
	_, err := r.coll.InsertOne(ctx, plan)
	return translateError(err)
}

func (r *planRepository) Update(ctx context.Context, plan *models.Plan) error {
	plan.UpdatedAt = time.Now().UTC()
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": plan.ID}, bson.M{"$set": bson.M{
		"name":         plan.Name,
		"description":  plan.Description,
		"price":        plan.Price,
		"currency":     plan.Currency,
		"billingCycle": plan.BillingCycle,
		"features":     plan.Features,
		"isActive":     plan.IsActive,
		"isPopular":    plan.IsPopular,
		"sortOrder":    plan.SortOrder,
		"updatedAt":    plan.UpdatedAt,
	}})
	if err != nil {
		return translateError(err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *planRepository) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}
