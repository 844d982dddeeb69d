package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/CertFox/app/models"
)

// PlanRepository defines the catalog operations.
type PlanRepository interface {
	List(ctx context.Context, activeOnly bool) ([]models.Plan, error)
	GetByID(ctx context.Context, id string) (*models.Plan, error)
	GetByName(ctx context.Context, name models.PlanName) (*models.Plan, error)
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, plan *models.Plan) error
	Update(ctx context.Context, plan *models.Plan) error
	Delete(ctx context.Context, id string) error
}

// InvoiceFilter narrows ListByOrganization. A zero Limit means no limit.
type InvoiceFilter struct {
	Status models.InvoiceStatus
	Offset int
	Limit  int
}

// InvoiceSummary aggregates the invoices of one organization.
type InvoiceSummary struct {
	TotalSpent int64
	Counts     map[models.InvoiceStatus]int64
	Total      int64
}

// InvoiceRepository defines the invoice store operations.
type InvoiceRepository interface {
	NextSequence(ctx context.Context, organizationID string) (int64, error)
	Create(ctx context.Context, invoice *models.Invoice) error
	GetByID(ctx context.Context, id string) (*models.Invoice, error)
	FindByReference(ctx context.Context, reference string) (*models.Invoice, error)
	// Transition moves the invoice from one status to another only if it is
	// still in from. It returns ErrStatusConflict otherwise.
	Transition(ctx context.Context, id string, from, to models.InvoiceStatus, patch models.InvoicePatch) (*models.Invoice, error)
	ListByOrganization(ctx context.Context, organizationID string, filter InvoiceFilter) ([]models.Invoice, int64, error)
	Summarize(ctx context.Context, organizationID string) (*InvoiceSummary, error)
}

// Settlement is the ledger effect of one paid invoice.
type Settlement struct {
	OrganizationID string
	InvoiceID      string
	Reference      string
	Type           models.InvoiceType
	Credits        int64
	PlanID         string
	PaidAt         time.Time
	ActivatedAt    time.Time
	CycleDays      int
	Card           models.PaystackCustomer
}

// UsageDelta increments the event and participant counters.
type UsageDelta struct {
	Events       int64
	Participants int64
}

// ExpiryResult reports what a subscription sweep changed.
type ExpiryResult struct {
	Cancelled []string
	PastDue   []string
}

// OrganizationRepository defines the tenant ledger operations. Every mutation
// is a conditional update on the organization record.
type OrganizationRepository interface {
	Create(ctx context.Context, org *models.Organization) error
	GetByID(ctx context.Context, id string) (*models.Organization, error)
	// ApplySettlement applies s at most once per reference and reports
	// whether this call recorded it.
	ApplySettlement(ctx context.Context, s Settlement) (bool, error)
	DebitCredits(ctx context.Context, organizationID string, amount int64, now time.Time) (int64, error)
	IncrementUsage(ctx context.Context, organizationID string, delta UsageDelta, now time.Time) error
	CancelSubscription(ctx context.Context, organizationID string, immediate bool, now time.Time) (*models.Organization, error)
	ResetMonthlyUsage(ctx context.Context, monthStart time.Time) (int64, error)
	ExpireSubscriptions(ctx context.Context, now time.Time) (*ExpiryResult, error)
}

// AdminRepository defines admin lookups.
type AdminRepository interface {
	Create(ctx context.Context, admin *models.Admin) error
	GetByID(ctx context.Context, id string) (*models.Admin, error)
}

// WebhookEventRepository stores received provider webhooks.
type WebhookEventRepository interface {
	CreateIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, error)
	MarkProcessed(ctx context.Context, id string, processingErr string, at time.Time) error
}

// TxFunc runs fn inside one store transaction. fn must use the context and
// repositories it is handed.
type TxFunc func(ctx context.Context, fn func(context.Context, *Repositories) error) error

// Repositories holds all repository instances
type Repositories struct {
	Plan         PlanRepository
	Invoice      InvoiceRepository
	Organization OrganizationRepository
	Admin        AdminRepository
	WebhookEvent WebhookEventRepository

	tx TxFunc
}

// WithTransactions sets the transaction runner used by Transaction.
func (r *Repositories) WithTransactions(tx TxFunc) *Repositories {
	r.tx = tx
	return r
}

// Transaction runs fn with repositories bound to a single commit. Stores
// without transaction support run fn directly.
func (r *Repositories) Transaction(ctx context.Context, fn func(context.Context, *Repositories) error) error {
	if r.tx == nil {
		return fn(ctx, r)
	}
	return r.tx(ctx, fn)
}
