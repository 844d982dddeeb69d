// Package mongorepo implements the repository interfaces on a MongoDB
// database. Ledger mutations are conditional single-document updates, so the
// organization document is the unit of consistency.
package mongorepo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ManuelReschke/CertFox/app/repository"
)

const (
	plansCollection         = "plans"
	invoicesCollection      = "invoices"
	sequencesCollection     = "invoice_sequences"
	organizationsCollection = "organizations"
	adminsCollection        = "admins"
	ledgerCollection        = "ledger_entries"
	webhookEventsCollection = "billing_webhook_events"
)

// NewRepositories builds the repository set on db. With transactions enabled
// (replica set required) Transaction runs inside a session transaction.
func NewRepositories(db *mongo.Database, transactions bool) *repository.Repositories {
	repos := &repository.Repositories{
		Plan:         &planRepository{coll: db.Collection(plansCollection)},
		Invoice:      &invoiceRepository{coll: db.Collection(invoicesCollection), sequences: db.Collection(sequencesCollection)},
		Organization: &organizationRepository{coll: db.Collection(organizationsCollection), ledger: db.Collection(ledgerCollection)},
		Admin:        &adminRepository{coll: db.Collection(adminsCollection)},
		WebhookEvent: &webhookEventRepository{coll: db.Collection(webhookEventsCollection)},
	}
	if !transactions {
		return repos
	}
	return repos.WithTransactions(func(ctx context.Context, fn func(context.Context, *repository.Repositories) error) error {
		session, err := db.Client().StartSession()
		if err != nil {
			return fmt.Errorf("start mongo session: %w", err)
		}
		defer session.EndSession(ctx)
		_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
			return nil, fn(sc, repos)
		})
		return err
	})
}

// EnsureIndexes creates the unique indexes the idempotency rules rely on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	unique := func(keys bson.D) mongo.IndexModel {
		return mongo.IndexModel{Keys: keys, Options: options.Index().SetUnique(true)}
	}
	indexes := map[string][]mongo.IndexModel{
		plansCollection: {
			unique(bson.D{{Key: "name", Value: 1}, {Key: "billingCycle", Value: 1}}),
		},
		invoicesCollection: {
			unique(bson.D{{Key: "invoiceNumber", Value: 1}}),
			unique(bson.D{{Key: "paystack.reference", Value: 1}}),
			{Keys: bson.D{{Key: "organizationId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		ledgerCollection: {
			unique(bson.D{{Key: "reference", Value: 1}}),
		},
		adminsCollection: {
			unique(bson.D{{Key: "email", Value: 1}}),
		},
		webhookEventsCollection: {
			unique(bson.D{{Key: "provider", Value: 1}, {Key: "providerEventId", Value: 1}}),
		},
	}
	for name, models := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}

func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return repository.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return errors.Join(repository.ErrDuplicate, err)
	}
	return err
}

func ensureID(id *string) {
	if *id == "" {
		*id = uuid.New().String()
	}
}

func exists(ctx context.Context, coll *mongo.Collection, id string) (bool, error) {
	n, err := coll.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
