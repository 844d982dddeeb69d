package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuelReschke/CertFox/app/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Column names of the embedded billing tree.
const (
	colPlanType          = "billing_plan_type"
	colCurrentPlan       = "billing_current_plan_id"
	colCreditsAvailable  = "billing_credits_available"
	colCreditsUsed       = "billing_credits_used"
	colSubStatus         = "billing_subscription_status"
	colSubStart          = "billing_subscription_start_date"
	colSubEnd            = "billing_subscription_end_date"
	colSubAutoRenew      = "billing_subscription_auto_renew"
	colSubCancelAtEnd    = "billing_subscription_cancel_at_period_end"
	colUsagePeriodStart  = "billing_usage_period_start"
	colMonthCredentials  = "billing_usage_month_credentials_issued"
	colMonthEvents       = "billing_usage_month_events_created"
	colMonthParticipants = "billing_usage_month_participants_added"
	colLifeCredentials   = "billing_usage_lifetime_credentials_issued"
	colLifeEvents        = "billing_usage_lifetime_events_created"
	colLifeParticipants  = "billing_usage_lifetime_participants_added"
	colCardAuthorization = "billing_paystack_authorization_code"
	colCardCustomer      = "billing_paystack_customer_id"
	colCardLastFour      = "billing_paystack_last_four_digits"
	colCardType          = "billing_paystack_card_type"
	colCardBank          = "billing_paystack_bank"
	colNextBillingDate   = "billing_next_billing_date"
	colLastBillingDate   = "billing_last_billing_date"
)

// organizationRepository implements the OrganizationRepository interface
type organizationRepository struct {
	db *gorm.DB
}

// NewOrganizationRepository creates a new organization repository instance
func NewOrganizationRepository(db *gorm.DB) OrganizationRepository {
	return &organizationRepository{db: db}
}

func (r *organizationRepository) Create(ctx context.Context, org *models.Organization) error {
	ensureID(&org.ID)
	if org.Billing.PlanType == "" {
		org.Billing.PlanType = models.PlanTypeNone
	}
	if org.Billing.Subscription.Status == "" {
		org.Billing.Subscription.Status = models.SubscriptionInactive
	}
	if org.Billing.Usage.PeriodStart.IsZero() {
		org.Billing.Usage.PeriodStart = models.MonthStart(time.Now())
	}
	return translateError(r.db.WithContext(ctx).Create(org).Error)
}

func (r *organizationRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	var org models.Organization
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&org).Error; err != nil {
		return nil, translateError(err)
	}
	return &org, nil
}

// ApplySettlement inserts the ledger entry first; the unique reference index
// turns a replay into a no-op.
func (r *organizationRepository) ApplySettlement(ctx context.Context, s Settlement) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry := models.LedgerEntry{
			ID:             uuid.New().String(),
			OrganizationID: s.OrganizationID,
			InvoiceID:      s.InvoiceID,
			Reference:      s.Reference,
			Type:           s.Type,
			Credits:        s.Credits,
			PaidAt:         s.PaidAt,
		}
		if s.PlanID != "" {
			planID := s.PlanID
			entry.PlanID = &planID
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		var changed int64
		switch s.Type {
		case models.InvoiceTypeCreditPurchase:
			cols := cardColumns(s.Card)
			cols[colCreditsAvailable] = gorm.Expr(colCreditsAvailable+" + ?", s.Credits)
			cols[colPlanType] = models.PlanTypePayAsYouGo
			upd := tx.Model(&models.Organization{}).Where("id = ?", s.OrganizationID).Updates(cols)
			if upd.Error != nil {
				return upd.Error
			}
			changed = upd.RowsAffected
		case models.InvoiceTypeSubscription:
			start := s.ActivatedAt
			end := start.AddDate(0, 0, s.CycleDays)
			cols := cardColumns(s.Card)
			cols[colCurrentPlan] = s.PlanID
			cols[colPlanType] = models.PlanTypeSubscription
			cols[colSubStatus] = models.SubscriptionActive
			cols[colSubStart] = start
			cols[colSubEnd] = end
			cols[colSubAutoRenew] = true
			cols[colSubCancelAtEnd] = false
			cols[colLastBillingDate] = s.PaidAt
			cols[colNextBillingDate] = end
			upd := tx.Model(&models.Organization{}).
				Where("id = ?", s.OrganizationID).
				Where("("+colLastBillingDate+" IS NULL OR "+colLastBillingDate+" <= ?)", s.PaidAt).
				Updates(cols)
			if upd.Error != nil {
				return upd.Error
			}
			changed = upd.RowsAffected
			if changed == 0 {
				// A later payment already set the plan; keep the entry for audit.
				ok, err := exists(tx, &models.Organization{}, s.OrganizationID)
				if err != nil {
					return err
				}
				if ok {
					changed = 1
					if err := tx.Model(&models.LedgerEntry{}).Where("id = ?", entry.ID).Update("superseded", true).Error; err != nil {
						return err
					}
				}
			}
		default:
			return fmt.Errorf("unknown settlement type %q", s.Type)
		}
		if changed == 0 {
			return ErrNotFound
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func cardColumns(card models.PaystackCustomer) map[string]interface{} {
	cols := map[string]interface{}{}
	if card.AuthorizationCode != "" {
		cols[colCardAuthorization] = card.AuthorizationCode
	}
	if card.CustomerID != "" {
		cols[colCardCustomer] = card.CustomerID
	}
	if card.LastFourDigits != "" {
		cols[colCardLastFour] = card.LastFourDigits
	}
	if card.CardType != "" {
		cols[colCardType] = card.CardType
	}
	if card.Bank != "" {
		cols[colCardBank] = card.Bank
	}
	return cols
}

// rollUsagePeriod zeroes the monthly counters of a stale period.
func rollUsagePeriod(tx *gorm.DB, organizationID string, now time.Time) error {
	monthStart := models.MonthStart(now)
	return tx.Model(&models.Organization{}).
		Where("id = ? AND "+colUsagePeriodStart+" < ?", organizationID, monthStart).
		Updates(map[string]interface{}{
			colUsagePeriodStart:  monthStart,
			colMonthCredentials:  0,
			colMonthEvents:       0,
			colMonthParticipants: 0,
		}).Error
}

// DebitCredits takes amount credits in a single conditional update
func (r *organizationRepository) DebitCredits(ctx context.Context, organizationID string, amount int64, now time.Time) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("debit amount must be positive, got %d", amount)
	}

	var remaining int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rollUsagePeriod(tx, organizationID, now); err != nil {
			return err
		}
		res := tx.Model(&models.Organization{}).
			Where("id = ? AND "+colPlanType+" = ? AND "+colCreditsAvailable+" >= ?", organizationID, models.PlanTypePayAsYouGo, amount).
			Updates(map[string]interface{}{
				colCreditsAvailable: gorm.Expr(colCreditsAvailable+" - ?", amount),
				colCreditsUsed:      gorm.Expr(colCreditsUsed+" + ?", amount),
				colMonthCredentials: gorm.Expr(colMonthCredentials+" + ?", amount),
				colLifeCredentials:  gorm.Expr(colLifeCredentials+" + ?", amount),
			})
		if res.Error != nil {
			return res.Error
		}

		var org models.Organization
		if err := tx.Where("id = ?", organizationID).First(&org).Error; err != nil {
			return translateError(err)
		}
		if res.RowsAffected == 0 {
			if org.Billing.PlanType != models.PlanTypePayAsYouGo {
				return ErrNotPayAsYouGo
			}
			return ErrInsufficientCredits
		}
		remaining = org.Billing.Credits.Available
		return nil
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// IncrementUsage bumps the monthly and lifetime event/participant counters
func (r *organizationRepository) IncrementUsage(ctx context.Context, organizationID string, delta UsageDelta, now time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rollUsagePeriod(tx, organizationID, now); err != nil {
			return err
		}
		res := tx.Model(&models.Organization{}).
			Where("id = ?", organizationID).
			Updates(map[string]interface{}{
				colMonthEvents:       gorm.Expr(colMonthEvents+" + ?", delta.Events),
				colMonthParticipants: gorm.Expr(colMonthParticipants+" + ?", delta.Participants),
				colLifeEvents:        gorm.Expr(colLifeEvents+" + ?", delta.Events),
				colLifeParticipants:  gorm.Expr(colLifeParticipants+" + ?", delta.Participants),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// CancelSubscription ends the subscription now or flags it for the end of
// the paid period.
func (r *organizationRepository) CancelSubscription(ctx context.Context, organizationID string, immediate bool, now time.Time) (*models.Organization, error) {
	db := r.db.WithContext(ctx)

	var cols map[string]interface{}
	if immediate {
		cols = map[string]interface{}{
			colSubStatus:       models.SubscriptionCancelled,
			colSubEnd:          now,
			colSubAutoRenew:    false,
			colSubCancelAtEnd:  false,
			colPlanType:        models.PlanTypePayAsYouGo,
			colCurrentPlan:     gorm.Expr("NULL"),
			colNextBillingDate: gorm.Expr("NULL"),
		}
	} else {
		cols = map[string]interface{}{
			colSubCancelAtEnd:  true,
			colSubAutoRenew:    false,
			colNextBillingDate: gorm.Expr("NULL"),
		}
	}

	res := db.Model(&models.Organization{}).
		Where("id = ? AND "+colPlanType+" = ? AND "+colSubStatus+" IN ?", organizationID, models.PlanTypeSubscription,
			[]models.SubscriptionStatus{models.SubscriptionActive, models.SubscriptionTrialing}).
		Updates(cols)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		ok, err := exists(db, &models.Organization{}, organizationID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNotFound
		}
		return nil, ErrNoActiveSubscription
	}
	return r.GetByID(ctx, organizationID)
}

// ResetMonthlyUsage zeroes every counter whose period started before monthStart
func (r *organizationRepository) ResetMonthlyUsage(ctx context.Context, monthStart time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Organization{}).
		Where(colUsagePeriodStart+" < ?", monthStart).
		Updates(map[string]interface{}{
			colUsagePeriodStart:  monthStart,
			colMonthCredentials:  0,
			colMonthEvents:       0,
			colMonthParticipants: 0,
		})
	return res.RowsAffected, res.Error
}

// ExpireSubscriptions closes deferred cancellations and marks lapsed
// subscriptions past due.
func (r *organizationRepository) ExpireSubscriptions(ctx context.Context, now time.Time) (*ExpiryResult, error) {
	result := &ExpiryResult{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		live := []models.SubscriptionStatus{models.SubscriptionActive, models.SubscriptionTrialing}

		var cancelled []string
		err := tx.Model(&models.Organization{}).
			Where(colPlanType+" = ? AND "+colSubStatus+" IN ? AND "+colSubCancelAtEnd+" = ? AND "+colSubEnd+" <= ?",
				models.PlanTypeSubscription, live, true, now).
			Pluck("id", &cancelled).Error
		if err != nil {
			return err
		}
		if len(cancelled) > 0 {
			err = tx.Model(&models.Organization{}).Where("id IN ?", cancelled).Updates(map[string]interface{}{
				colSubStatus:      models.SubscriptionCancelled,
				colSubCancelAtEnd: false,
				colPlanType:       models.PlanTypePayAsYouGo,
				colCurrentPlan:    gorm.Expr("NULL"),
			}).Error
			if err != nil {
				return err
			}
		}

		var pastDue []string
		err = tx.Model(&models.Organization{}).
			Where(colPlanType+" = ? AND "+colSubStatus+" = ? AND "+colSubCancelAtEnd+" = ? AND "+colSubEnd+" <= ?",
				models.PlanTypeSubscription, models.SubscriptionActive, false, now).
			Pluck("id", &pastDue).Error
		if err != nil {
			return err
		}
		if len(pastDue) > 0 {
			err = tx.Model(&models.Organization{}).Where("id IN ?", pastDue).
				Update(colSubStatus, models.SubscriptionPastDue).Error
			if err != nil {
				return err
			}
		}

		result.Cancelled = cancelled
		result.PastDue = pastDue
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
