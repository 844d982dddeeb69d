package mongorepo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ManuelReschke/CertFox/app/models"
	"github.com/ManuelReschke/CertFox/app/repository"
)

// testDatabase connects to MONGO_TEST_URI or skips the test.
func testDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Skipf("mongo not reachable: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		t.Skipf("mongo not reachable: %v", err)
	}

	db := client.Database("certfox_test_" + uuid.New().String()[:8])
	require.NoError(t, EnsureIndexes(ctx, db))
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return db
}

func TestMongoSettlementIsIdempotent(t *testing.T) {
	repos := NewRepositories(testDatabase(t), false)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	org := models.NewOrganization("Acme", "ops@acme.test", now)
	require.NoError(t, repos.Organization.Create(ctx, org))

	s := repository.Settlement{
		OrganizationID: org.ID, InvoiceID: "inv", Reference: "CREDIT_1_" + org.ID,
		Type: models.InvoiceTypeCreditPurchase, Credits: 2800, PaidAt: now, ActivatedAt: now,
	}
	applied, err := repos.Organization.ApplySettlement(ctx, s)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = repos.Organization.ApplySettlement(ctx, s)
	require.NoError(t, err)
	assert.False(t, applied)

	remaining, err := repos.Organization.DebitCredits(ctx, org.ID, 800, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), remaining)

	_, err = repos.Organization.DebitCredits(ctx, org.ID, 5000, now)
	assert.ErrorIs(t, err, repository.ErrInsufficientCredits)
}

func TestMongoInvoiceTransition(t *testing.T) {
	repos := NewRepositories(testDatabase(t), false)
	ctx := context.Background()

	seq, err := repos.Invoice.NextSequence(ctx, "org")
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)

	inv := &models.Invoice{InvoiceNumber: "INV-00001-0001", OrganizationID: "org", Type: models.InvoiceTypeSubscription,
		Paystack: models.InvoicePaystack{Reference: "SUB_1_plan"}}
	require.NoError(t, repos.Invoice.Create(ctx, inv))

	_, err = repos.Invoice.Transition(ctx, inv.ID, models.InvoiceStatusPending, models.InvoiceStatusProcessing, models.InvoicePatch{AccessCode: "ac"})
	require.NoError(t, err)
	_, err = repos.Invoice.Transition(ctx, inv.ID, models.InvoiceStatusPending, models.InvoiceStatusProcessing, models.InvoicePatch{})
	assert.ErrorIs(t, err, repository.ErrStatusConflict)

	got, err := repos.Invoice.FindByReference(ctx, "SUB_1_plan")
	require.NoError(t, err)
	assert.Equal(t, "ac", got.Paystack.AccessCode)
}
