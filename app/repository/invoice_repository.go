package repository

import (
	"context"
	"fmt"

	"github.com/ManuelReschke/CertFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// invoiceRepository implements the InvoiceRepository interface
type invoiceRepository struct {
	db *gorm.DB
}

// NewInvoiceRepository creates a new invoice repository instance
func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

// NextSequence atomically increments and returns the organization counter
func (r *invoiceRepository) NextSequence(ctx context.Context, organizationID string) (int64, error) {
	var next int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq := models.InvoiceSequence{OrganizationID: organizationID, Counter: 1}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "organization_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"counter": gorm.Expr("counter + 1")}),
		}).Create(&seq).Error
		if err != nil {
			return err
		}
		var current models.InvoiceSequence
		if err := tx.Where("organization_id = ?", organizationID).First(&current).Error; err != nil {
			return err
		}
		next = current.Counter
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("next invoice sequence: %w", err)
	}
	return next, nil
}

// Create inserts a new invoice in pending state
func (r *invoiceRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	ensureID(&invoice.ID)
	invoice.Status = models.InvoiceStatusPending
	if invoice.Currency == "" {
		invoice.Currency = models.DefaultCurrency
	}
	return translateError(r.db.WithContext(ctx).Create(invoice).Error)
}

func (r *invoiceRepository) GetByID(ctx context.Context, id string) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&invoice).Error; err != nil {
		return nil, translateError(err)
	}
	return &invoice, nil
}

func (r *invoiceRepository) FindByReference(ctx context.Context, reference string) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).Where("paystack_reference = ?", reference).First(&invoice).Error; err != nil {
		return nil, translateError(err)
	}
	return &invoice, nil
}

// Transition is a compare-and-set on the invoice status
func (r *invoiceRepository) Transition(ctx context.Context, id string, from, to models.InvoiceStatus, patch models.InvoicePatch) (*models.Invoice, error) {
	if !from.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s -> %s not allowed", ErrStatusConflict, from, to)
	}

	db := r.db.WithContext(ctx)
	res := db.Model(&models.Invoice{}).
		Where("id = ? AND status = ?", id, from).
		Updates(invoicePatchColumns(to, patch))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		ok, err := exists(db, &models.Invoice{}, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: invoice %s is no longer %s", ErrStatusConflict, id, from)
	}
	return r.GetByID(ctx, id)
}

func invoicePatchColumns(to models.InvoiceStatus, p models.InvoicePatch) map[string]interface{} {
	cols := map[string]interface{}{"status": to}
	if p.AuthorizationURL != "" {
		cols["paystack_authorization_url"] = p.AuthorizationURL
	}
	if p.AccessCode != "" {
		cols["paystack_access_code"] = p.AccessCode
	}
	if p.TransactionID != "" {
		cols["paystack_transaction_id"] = p.TransactionID
	}
	if p.PaidAt != nil {
		cols["paystack_paid_at"] = *p.PaidAt
	}
	if p.PaidDate != nil {
		cols["paid_date"] = *p.PaidDate
	}
	if p.Channel != "" {
		cols["paystack_channel"] = p.Channel
	}
	if p.IPAddress != "" {
		cols["paystack_ip_address"] = p.IPAddress
	}
	if p.Fees != 0 {
		cols["paystack_fees"] = p.Fees
	}
	if p.CardType != "" {
		cols["paystack_card_type"] = p.CardType
	}
	if p.LastFourDigits != "" {
		cols["paystack_last_four_digits"] = p.LastFourDigits
	}
	if p.Bank != "" {
		cols["paystack_bank"] = p.Bank
	}
	return cols
}

// ListByOrganization returns one page of invoices, newest first, plus the total
func (r *invoiceRepository) ListByOrganization(ctx context.Context, organizationID string, filter InvoiceFilter) ([]models.Invoice, int64, error) {
	base := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&models.Invoice{}).Where("organization_id = ?", organizationID)
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
		return q
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var invoices []models.Invoice
	page := base().Order("created_at DESC").Order("invoice_number DESC").Offset(filter.Offset)
	if filter.Limit > 0 {
		page = page.Limit(filter.Limit)
	}
	if err := page.Find(&invoices).Error; err != nil {
		return nil, 0, err
	}
	return invoices, total, nil
}

// Summarize aggregates invoice counts per status and the paid total
func (r *invoiceRepository) Summarize(ctx context.Context, organizationID string) (*InvoiceSummary, error) {
	var rows []struct {
		Status models.InvoiceStatus
		Count  int64
		Amount int64
	}
	err := r.db.WithContext(ctx).Model(&models.Invoice{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(total_amount), 0) AS amount").
		Where("organization_id = ?", organizationID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	summary := &InvoiceSummary{Counts: make(map[models.InvoiceStatus]int64)}
	for _, row := range rows {
		summary.Counts[row.Status] = row.Count
		summary.Total += row.Count
		if row.Status == models.InvoiceStatusPaid {
			summary.TotalSpent = row.Amount
		}
	}
	return summary, nil
}
