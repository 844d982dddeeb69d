package mongorepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ManuelReschke/CertFox/app/models"
	"github.com/ManuelReschke/CertFox/app/repository"
)

type organizationRepository struct {
	coll   *mongo.Collection
	ledger *mongo.Collection
}

var liveStatuses = []models.SubscriptionStatus{models.SubscriptionActive, models.SubscriptionTrialing}

func (r *organizationRepository) Create(ctx context.Context, org *models.Organization) error {
	ensureID(&org.ID)
	now := time.Now().UTC()
	if org.Billing.PlanType == "" {
		org.Billing.PlanType = models.PlanTypeNone
	}
	if org.Billing.Subscription.Status == "" {
		org.Billing.Subscription.Status = models.SubscriptionInactive
	}
	if org.Billing.Credits.CreditRate == 0 {
		org.Billing.Credits.CreditRate = models.DefaultCreditRate
	}
	if org.Billing.Usage.PeriodStart.IsZero() {
		org.Billing.Usage.PeriodStart = models.MonthStart(now)
	}
	org.CreatedAt, org.UpdatedAt = now, now
	_, err := r.coll.InsertOne(ctx, org)
	return translateError(err)
}

func (r *organizationRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	var org models.Organization
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&org); err != nil {
		return nil, translateError(err)
	}
	return &org, nil
}

// ApplySettlement guards the organization update with appliedReferences so
// the ledger change and its idempotency marker land in one document write.
func (r *organizationRepository) ApplySettlement(ctx context.Context, s repository.Settlement) (bool, error) {
	notApplied := bson.M{"_id": s.OrganizationID, "appliedReferences": bson.M{"$ne": s.Reference}}
	set := cardFields(s.Card)
	set["updatedAt"] = time.Now().UTC()

	superseded := false
	var res *mongo.UpdateResult
	var err error
	switch s.Type {
	case models.InvoiceTypeCreditPurchase:
		set["billing.planType"] = models.PlanTypePayAsYouGo
		res, err = r.coll.UpdateOne(ctx, notApplied, bson.M{
			"$inc":      bson.M{"billing.credits.available": s.Credits},
			"$set":      set,
			"$addToSet": bson.M{"appliedReferences": s.Reference},
		})
	case models.InvoiceTypeSubscription:
		start := s.ActivatedAt
		end := start.AddDate(0, 0, s.CycleDays)
		set["billing.currentPlan"] = s.PlanID
		set["billing.planType"] = models.PlanTypeSubscription
		set["billing.subscription.status"] = models.SubscriptionActive
		set["billing.subscription.startDate"] = start
		set["billing.subscription.endDate"] = end
		set["billing.subscription.autoRenew"] = true
		set["billing.subscription.cancelAtPeriodEnd"] = false
		set["billing.lastBillingDate"] = s.PaidAt
		set["billing.nextBillingDate"] = end

		filter := bson.M{
			"_id":               s.OrganizationID,
			"appliedReferences": bson.M{"$ne": s.Reference},
			"$or": bson.A{
				bson.M{"billing.lastBillingDate": bson.M{"$exists": false}},
				bson.M{"billing.lastBillingDate": nil},
				bson.M{"billing.lastBillingDate": bson.M{"$lte": s.PaidAt}},
			},
		}
		res, err = r.coll.UpdateOne(ctx, filter, bson.M{
			"$set":      set,
			"$addToSet": bson.M{"appliedReferences": s.Reference},
		})
		if err == nil && res.MatchedCount == 0 {
			// a later payment owns the plan; only record the reference
			res, err = r.coll.UpdateOne(ctx, notApplied, bson.M{"$addToSet": bson.M{"appliedReferences": s.Reference}})
			superseded = true
		}
	default:
		return false, fmt.Errorf("unknown settlement type %q", s.Type)
	}
	if err != nil {
		return false, err
	}

	if res.MatchedCount == 0 {
		ok, err := exists(ctx, r.coll, s.OrganizationID)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, repository.ErrNotFound
		}
		return false, nil
	}

	r.recordLedgerEntry(ctx, s, superseded)
	return true, nil
}

func (r *organizationRepository) recordLedgerEntry(ctx context.Context, s repository.Settlement, superseded bool) {
	entry := models.LedgerEntry{
		ID:             uuid.New().String(),
		OrganizationID: s.OrganizationID,
		InvoiceID:      s.InvoiceID,
		Reference:      s.Reference,
		Type:           s.Type,
		Credits:        s.Credits,
		Superseded:     superseded,
		PaidAt:         s.PaidAt,
		CreatedAt:      time.Now().UTC(),
	}
	if s.PlanID != "" {
		planID := s.PlanID
		entry.PlanID = &planID
	}
	// the organization document already carries the reference, the entry is audit only
	if _, err := r.ledger.InsertOne(ctx, entry); err != nil && !mongo.IsDuplicateKeyError(err) {
		log.Warnf("[Mongo] Ledger entry for %s not recorded: %v", s.Reference, err)
	}
}

func cardFields(card models.PaystackCustomer) bson.M {
	set := bson.M{}
	if card.AuthorizationCode != "" {
		set["billing.paystack.authorizationCode"] = card.AuthorizationCode
	}
	if card.CustomerID != "" {
		set["billing.paystack.customerId"] = card.CustomerID
	}
	if card.LastFourDigits != "" {
		set["billing.paystack.lastFourDigits"] = card.LastFourDigits
	}
	if card.CardType != "" {
		set["billing.paystack.cardType"] = card.CardType
	}
	if card.Bank != "" {
		set["billing.paystack.bank"] = card.Bank
	}
	return set
}

func (r *organizationRepository) rollUsagePeriod(ctx context.Context, organizationID string, now time.Time) error {
	monthStart := models.MonthStart(now)
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": organizationID, "billing.usage.periodStart": bson.M{"$lt": monthStart}},
		bson.M{"$set": bson.M{
			"billing.usage.periodStart":  monthStart,
			"billing.usage.currentMonth": models.UsageCounters{},
		}},
	)
	return err
}

func (r *organizationRepository) DebitCredits(ctx context.Context, organizationID string, amount int64, now time.Time) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("debit amount must be positive, got %d", amount)
	}
	if err := r.rollUsagePeriod(ctx, organizationID, now); err != nil {
		return 0, err
	}

	filter := bson.M{
		"_id":                       organizationID,
		"billing.planType":          models.PlanTypePayAsYouGo,
		"billing.credits.available": bson.M{"$gte": amount},
	}
	update := bson.M{
		"$inc": bson.M{
			"billing.credits.available":                    -amount,
			"billing.credits.used":                         amount,
			"billing.usage.currentMonth.credentialsIssued": amount,
			"billing.usage.lifetime.credentialsIssued":     amount,
		},
		"$set": bson.M{"updatedAt": now},
	}
	var org models.Organization
	err := r.coll.FindOneAndUpdate(ctx, filter, update, options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&org)
	if err == nil {
		return org.Billing.Credits.Available, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return 0, err
	}

	current, err := r.GetByID(ctx, organizationID)
	if err != nil {
		return 0, err
	}
	if current.Billing.PlanType != models.PlanTypePayAsYouGo {
		return 0, repository.ErrNotPayAsYouGo
	}
	return 0, repository.ErrInsufficientCredits
}

func (r *organizationRepository) IncrementUsage(ctx context.Context, organizationID string, delta repository.UsageDelta, now time.Time) error {
	if err := r.rollUsagePeriod(ctx, organizationID, now); err != nil {
		return err
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": organizationID}, bson.M{
		"$inc": bson.M{
			"billing.usage.currentMonth.eventsCreated":     delta.Events,
			"billing.usage.currentMonth.participantsAdded": delta.Participants,
			"billing.usage.lifetime.eventsCreated":         delta.Events,
			"billing.usage.lifetime.participantsAdded":     delta.Participants,
		},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *organizationRepository) CancelSubscription(ctx context.Context, organizationID string, immediate bool, now time.Time) (*models.Organization, error) {
	var update bson.M
	if immediate {
		update = bson.M{
			"$set": bson.M{
				"billing.subscription.status":            models.SubscriptionCancelled,
				"billing.subscription.endDate":           now,
				"billing.subscription.autoRenew":         false,
				"billing.subscription.cancelAtPeriodEnd": false,
				"billing.planType":                       models.PlanTypePayAsYouGo,
				"updatedAt":                              now,
			},
			"$unset": bson.M{"billing.currentPlan": "", "billing.nextBillingDate": ""},
		}
	} else {
		update = bson.M{
			"$set": bson.M{
				"billing.subscription.cancelAtPeriodEnd": true,
				"billing.subscription.autoRenew":         false,
				"updatedAt":                              now,
			},
			"$unset": bson.M{"billing.nextBillingDate": ""},
		}
	}

	filter := bson.M{
		"_id":                         organizationID,
		"billing.planType":            models.PlanTypeSubscription,
		"billing.subscription.status": bson.M{"$in": liveStatuses},
	}
	var org models.Organization
	err := r.coll.FindOneAndUpdate(ctx, filter, update, options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&org)
	if errors.Is(err, mongo.ErrNoDocuments) {
		ok, cerr := exists(ctx, r.coll, organizationID)
		if cerr != nil {
			return nil, cerr
		}
		if !ok {
			return nil, repository.ErrNotFound
		}
		return nil, repository.ErrNoActiveSubscription
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *organizationRepository) ResetMonthlyUsage(ctx context.Context, monthStart time.Time) (int64, error) {
	res, err := r.coll.UpdateMany(ctx,
		bson.M{"billing.usage.periodStart": bson.M{"$lt": monthStart}},
		bson.M{"$set": bson.M{
			"billing.usage.periodStart":  monthStart,
			"billing.usage.currentMonth": models.UsageCounters{},
		}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *organizationRepository) ExpireSubscriptions(ctx context.Context, now time.Time) (*repository.ExpiryResult, error) {
	result := &repository.ExpiryResult{Cancelled: []string{}, PastDue: []string{}}

	cancelFilter := bson.M{
		"billing.planType":                       models.PlanTypeSubscription,
		"billing.subscription.status":            bson.M{"$in": liveStatuses},
		"billing.subscription.cancelAtPeriodEnd": true,
		"billing.subscription.endDate":           bson.M{"$lte": now},
	}
	ids, err := r.ids(ctx, cancelFilter)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		filter := bson.M{"_id": id}
		for k, v := range cancelFilter {
			filter[k] = v
		}
		res, err := r.coll.UpdateOne(ctx, filter, bson.M{
			"$set": bson.M{
				"billing.subscription.status":            models.SubscriptionCancelled,
				"billing.subscription.cancelAtPeriodEnd": false,
				"billing.planType":                       models.PlanTypePayAsYouGo,
				"updatedAt":                              now,
			},
			"$unset": bson.M{"billing.currentPlan": ""},
		})
		if err != nil {
			return nil, err
		}
		if res.ModifiedCount > 0 {
			result.Cancelled = append(result.Cancelled, id)
		}
	}

	pastDueFilter := bson.M{
		"billing.planType":                       models.PlanTypeSubscription,
		"billing.subscription.status":            models.SubscriptionActive,
		"billing.subscription.cancelAtPeriodEnd": false,
		"billing.subscription.endDate":           bson.M{"$lte": now},
	}
	ids, err = r.ids(ctx, pastDueFilter)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		filter := bson.M{"_id": id}
		for k, v := range pastDueFilter {
			filter[k] = v
		}
		res, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{
			"billing.subscription.status": models.SubscriptionPastDue,
			"updatedAt":                   now,
		}})
		if err != nil {
			return nil, err
		}
		if res.ModifiedCount > 0 {
			result.PastDue = append(result.PastDue, id)
		}
	}
	return result, nil
}

func (r *organizationRepository) ids(ctx context.Context, filter bson.M) ([]string, error) {
	cur, err := r.coll.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}
