package mongorepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ManuelReschke/CertFox/app/models"
	"github.com/ManuelReschke/CertFox/app/repository"
)

type invoiceRepository struct {
	coll      *mongo.Collection
	sequences *mongo.Collection
}

func (r *invoiceRepository) NextSequence(ctx context.Context, organizationID string) (int64, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var seq models.InvoiceSequence
	err := r.sequences.FindOneAndUpdate(ctx,
		bson.M{"_id": organizationID},
		bson.M{"$inc": bson.M{"counter": 1}, "$set": bson.M{"updatedAt": time.Now().UTC()}},
		opts,
	).Decode(&seq)
	if err != nil {
		return 0, fmt.Errorf("next invoice sequence: %w", err)
	}
	return seq.Counter, nil
}

func (r *invoiceRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	ensureID(&invoice.ID)
	invoice.Status = models.InvoiceStatusPending
	if invoice.Currency == "" {
		invoice.Currency = models.DefaultCurrency
	}
	now := time.Now().UTC()
	invoice.CreatedAt, invoice.UpdatedAt = now, now
	_, err := r.coll.InsertOne(ctx, invoice)
	return translateError(err)
}

func (r *invoiceRepository) GetByID(ctx context.Context, id string) (*models.Invoice, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *invoiceRepository) FindByReference(ctx context.Context, reference string) (*models.Invoice, error) {
	return r.findOne(ctx, bson.M{"paystack.reference": reference})
}

func (r *invoiceRepository) findOne(ctx context.Context, filter bson.M) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.coll.FindOne(ctx, filter).Decode(&invoice); err != nil {
		return nil, translateError(err)
	}
	return &invoice, nil
}

func (r *invoiceRepository) Transition(ctx context.Context, id string, from, to models.InvoiceStatus, patch models.InvoicePatch) (*models.Invoice, error) {
	if !from.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s -> %s not allowed", repository.ErrStatusConflict, from, to)
	}

	set := invoicePatchFields(to, patch)
	set["updatedAt"] = time.Now().UTC()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var invoice models.Invoice
	err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": id, "status": from}, bson.M{"$set": set}, opts).Decode(&invoice)
	if errors.Is(err, mongo.ErrNoDocuments) {
		ok, cerr := exists(ctx, r.coll, id)
		if cerr != nil {
			return nil, cerr
		}
		if !ok {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("%w: invoice %s is no longer %s", repository.ErrStatusConflict, id, from)
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func invoicePatchFields(to models.InvoiceStatus, p models.InvoicePatch) bson.M {
	set := bson.M{"status": to}
	if p.AuthorizationURL != "" {
		set["paystack.authorizationUrl"] = p.AuthorizationURL
	}
	if p.AccessCode != "" {
		set["paystack.accessCode"] = p.AccessCode
	}
	if p.TransactionID != "" {
		set["paystack.transactionId"] = p.TransactionID
	}
	if p.PaidAt != nil {
		set["paystack.paidAt"] = *p.PaidAt
	}
	if p.PaidDate != nil {
		set["paidDate"] = *p.PaidDate
	}
	if p.Channel != "" {
		set["paystack.channel"] = p.Channel
	}
	if p.IPAddress != "" {
		set["paystack.ipAddress"] = p.IPAddress
	}
	if p.Fees != 0 {
		set["paystack.fees"] = p.Fees
	}
	if p.CardType != "" {
		set["paystack.cardType"] = p.CardType
	}
	if p.LastFourDigits != "" {
		set["paystack.lastFourDigits"] = p.LastFourDigits
	}
	if p.Bank != "" {
		set["paystack.bank"] = p.Bank
	}
	return set
}

func (r *invoiceRepository) ListByOrganization(ctx context.Context, organizationID string, filter repository.InvoiceFilter) ([]models.Invoice, int64, error) {
	query := bson.M{"organizationId": organizationID}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	total, err := r.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "invoiceNumber", Value: -1}}).
		SetSkip(int64(filter.Offset))
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	cur, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	invoices := []models.Invoice{}
	if err := cur.All(ctx, &invoices); err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}

func (r *invoiceRepository) Summarize(ctx context.Context, organizationID string) (*repository.InvoiceSummary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"organizationId": organizationID}}},
		{{Key: "$group", Value: bson.M{
			"_id":    "$status",
			"count":  bson.M{"$sum": 1},
			"amount": bson.M{"$sum": "$totalAmount"},
		}}},
	}
	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		Status models.InvoiceStatus `bson:"_id"`
		Count  int64                `bson:"count"`
		Amount int64                `bson:"amount"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}

	summary := &repository.InvoiceSummary{Counts: make(map[models.InvoiceStatus]int64)}
	for _, row := range rows {
		summary.Counts[row.Status] = row.Count
		summary.Total += row.Count
		if row.Status == models.InvoiceStatusPaid {
			summary.TotalSpent = row.Amount
		}
	}
	return summary, nil
}
