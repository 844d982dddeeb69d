package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CertFox/app/models"
	"github.com/ManuelReschke/CertFox/app/repository"
	"github.com/ManuelReschke/CertFox/internal/pkg/env"
	"github.com/ManuelReschke/CertFox/internal/pkg/metrics"
)

const invoiceCreateAttempts = 3

// Notifier queues customer notifications outside the request path.
type Notifier interface {
	NotifyPaymentReceipt(ctx context.Context, invoiceID string) error
	NotifySubscriptionCancelled(ctx context.Context, organizationID string, immediate bool) error
}

// Service coordinates invoices, the payment gateway and the organization
// ledger.
type Service struct {
	repos       *repository.Repositories
	gateway     Gateway
	catalog     *Catalog
	notifier    Notifier
	metrics     *metrics.Metrics
	now         func() time.Time
	callbackURL func() string
	creditRate  int64
}

type Option func(*Service)

// WithClock replaces the wall clock. Returned times are converted to UTC.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithCatalog(c *Catalog) Option {
	return func(s *Service) { s.catalog = c }
}

// WithCallbackURL overrides where the gateway redirects after checkout.
func WithCallbackURL(fn func() string) Option {
	return func(s *Service) { s.callbackURL = fn }
}

// WithCreditRate sets the price of one credit for organizations without a
// rate of their own.
func WithCreditRate(rate int64) Option {
	return func(s *Service) {
		if rate > 0 {
			s.creditRate = rate
		}
	}
}

// NewService creates the billing coordinator.
func NewService(repos *repository.Repositories, gateway Gateway, opts ...Option) *Service {
	s := &Service{
		repos:       repos,
		gateway:     gateway,
		now:         time.Now,
		callbackURL: defaultCallbackURL,
		creditRate:  int64(env.GetEnvInt("BILLING_DEFAULT_CREDIT_RATE", models.DefaultCreditRate)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.creditRate <= 0 {
		s.creditRate = models.DefaultCreditRate
	}
	if s.catalog == nil {
		s.catalog = NewCatalog(repos.Plan, nil)
	}
	return s
}

func defaultCallbackURL() string {
	return strings.TrimRight(env.GetEnv("FRONTEND_URL", "http://localhost:3000"), "/") + "/billing/callback"
}

func (s *Service) Catalog() *Catalog {
	return s.catalog
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// resolveAdmin loads the admin and the organization it acts for.
func (s *Service) resolveAdmin(ctx context.Context, adminID string) (*models.Admin, *models.Organization, error) {
	if strings.TrimSpace(adminID) == "" {
		return nil, nil, newError(KindAuth, nil, "authentication required")
	}
	admin, err := s.repos.Admin.GetByID(ctx, adminID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, newError(KindNotFound, err, "admin not found")
		}
		return nil, nil, newError(KindInternal, err, "could not load admin")
	}
	org, err := s.loadOrganization(ctx, admin.OrganizationID)
	if err != nil {
		return nil, nil, err
	}
	return admin, org, nil
}

func (s *Service) loadOrganization(ctx context.Context, id string) (*models.Organization, error) {
	org, err := s.repos.Organization.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(KindNotFound, err, "organization not found")
		}
		return nil, newError(KindInternal, err, "could not load organization")
	}
	return org, nil
}

func (s *Service) creditRateFor(org *models.Organization) int64 {
	if org.Billing.Credits.CreditRate > 0 {
		return org.Billing.Credits.CreditRate
	}
	return s.creditRate
}

// InitializeSubscription creates a pending subscription invoice for planID
// and opens a checkout session at the gateway.
func (s *Service) InitializeSubscription(ctx context.Context, adminID, planID string) (*PaymentSession, error) {
	if strings.TrimSpace(planID) == "" {
		return nil, newError(KindValidation, nil, "planId is required")
	}
	admin, org, err := s.resolveAdmin(ctx, adminID)
	if err != nil {
		return nil, err
	}
	plan, err := s.catalog.Get(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, newError(KindValidation, nil, "plan %s is not available", plan.Name)
	}

	inv, err := s.createInvoice(ctx, org.ID, func(seq int64, now time.Time) *models.Invoice {
		id := plan.ID
		return &models.Invoice{
			InvoiceNumber:  invoiceNumber(seq, now),
			OrganizationID: org.ID,
			Type:           models.InvoiceTypeSubscription,
			PlanID:         &id,
			Amount:         plan.Price,
			TotalAmount:    plan.Price,
			Currency:       plan.Currency,
			DueDate:        now.Add(invoiceDueIn),
			Description:    string(plan.Name) + " plan subscription (" + string(plan.BillingCycle) + ")",
			Paystack:       models.InvoicePaystack{Reference: subscriptionReference(now, plan.ID)},
		}
	})
	if err != nil {
		s.metrics.PaymentInitialized(string(models.InvoiceTypeSubscription), "error")
		return nil, err
	}

	return s.openCheckout(ctx, admin, org, inv, map[string]interface{}{
		"invoiceId":      inv.ID,
		"organizationId": org.ID,
		"type":           string(inv.Type),
		"planId":         plan.ID,
		"planName":       string(plan.Name),
	})
}

// InitializeCreditPurchase creates a pending credit purchase invoice and opens
// a checkout session at the gateway.
func (s *Service) InitializeCreditPurchase(ctx context.Context, adminID string, pkg CreditPackage) (*PaymentSession, error) {
	if pkg.Quantity <= 0 {
		return nil, newError(KindValidation, nil, "creditPackage.quantity must be positive")
	}
	if pkg.Price <= 0 {
		return nil, newError(KindValidation, nil, "creditPackage.price must be positive")
	}
	admin, org, err := s.resolveAdmin(ctx, adminID)
	if err != nil {
		return nil, err
	}
	rate := s.creditRateFor(org)
	if pkg.Price != pkg.Quantity*rate {
		return nil, newError(KindValidation, nil, "creditPackage.price must be %d for %d credits", pkg.Quantity*rate, pkg.Quantity)
	}

	bonus := BonusCredits(pkg.Quantity)
	credits := models.InvoiceCredits{
		Quantity:     pkg.Quantity,
		BonusCredits: bonus,
		TotalCredits: pkg.Quantity + bonus,
	}

	inv, err := s.createInvoice(ctx, org.ID, func(seq int64, now time.Time) *models.Invoice {
		return &models.Invoice{
			InvoiceNumber:  invoiceNumber(seq, now),
			OrganizationID: org.ID,
			Type:           models.InvoiceTypeCreditPurchase,
			Amount:         pkg.Price,
			TotalAmount:    pkg.Price,
			Currency:       models.DefaultCurrency,
			DueDate:        now.Add(invoiceDueIn),
			Description:    "Credit purchase",
			Credits:        credits,
			Paystack:       models.InvoicePaystack{Reference: creditReference(now, org.ID)},
		}
	})
	if err != nil {
		s.metrics.PaymentInitialized(string(models.InvoiceTypeCreditPurchase), "error")
		return nil, err
	}

	session, err := s.openCheckout(ctx, admin, org, inv, map[string]interface{}{
		"invoiceId":      inv.ID,
		"organizationId": org.ID,
		"type":           string(inv.Type),
		"quantity":       credits.Quantity,
		"bonusCredits":   credits.BonusCredits,
		"totalCredits":   credits.TotalCredits,
	})
	if err != nil {
		return nil, err
	}
	session.TotalCredits = credits.TotalCredits
	return session, nil
}

// createInvoice allocates a number and stores the invoice built by build,
// retrying with a fresh number and timestamp on a unique-key collision.
func (s *Service) createInvoice(ctx context.Context, organizationID string, build func(seq int64, now time.Time) *models.Invoice) (*models.Invoice, error) {
	var lastErr error
	for attempt := 0; attempt < invoiceCreateAttempts; attempt++ {
		seq, err := s.repos.Invoice.NextSequence(ctx, organizationID)
		if err != nil {
			return nil, newError(KindInternal, err, "could not allocate invoice number")
		}
		now := s.clock().Add(time.Duration(attempt) * time.Millisecond)
		inv := build(seq, now)
		err = s.repos.Invoice.Create(ctx, inv)
		if err == nil {
			return inv, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, newError(KindInternal, err, "could not create invoice")
		}
		log.Warnf("[Billing] Invoice key collision for org=%s (attempt %d): %v", organizationID, attempt+1, err)
		lastErr = err
	}
	return nil, newError(KindConflict, lastErr, "could not allocate a unique invoice number")
}

// openCheckout initializes the payment at the gateway and moves the invoice
// to processing. A gateway failure leaves the invoice pending.
func (s *Service) openCheckout(ctx context.Context, admin *models.Admin, org *models.Organization, inv *models.Invoice, metadata map[string]interface{}) (*PaymentSession, error) {
	email := strings.TrimSpace(admin.Email)
	if email == "" {
		email = org.Email
	}

	res, err := s.gateway.Initialize(ctx, InitializeRequest{
		Email:       email,
		AmountMinor: ToMinorUnits(inv.TotalAmount),
		Currency:    inv.Currency,
		Reference:   inv.Paystack.Reference,
		CallbackURL: s.callbackURL(),
		Metadata:    metadata,
	})
	if err != nil {
		s.metrics.PaymentInitialized(string(inv.Type), strings.ToLower(string(KindOf(err))))
		log.Errorf("[Billing] Gateway initialize failed: invoice=%s reference=%s: %v", inv.ID, inv.Paystack.Reference, err)
		return nil, err
	}

	updated, err := s.repos.Invoice.Transition(ctx, inv.ID, models.InvoiceStatusPending, models.InvoiceStatusProcessing, models.InvoicePatch{
		AuthorizationURL: res.AuthorizationURL,
		AccessCode:       res.AccessCode,
	})
	if err != nil {
		// verify accepts a pending invoice, so the checkout stays usable
		log.Warnf("[Billing] Could not mark invoice %s processing: %v", inv.ID, err)
	} else {
		inv = updated
	}

	s.metrics.PaymentInitialized(string(inv.Type), "ok")
	log.Infof("[Billing] Checkout opened: org=%s invoice=%s reference=%s amount=%d", org.ID, inv.InvoiceNumber, inv.Paystack.Reference, inv.TotalAmount)

	return &PaymentSession{
		AuthorizationURL: res.AuthorizationURL,
		Reference:        inv.Paystack.Reference,
		InvoiceID:        inv.ID,
		InvoiceNumber:    inv.InvoiceNumber,
		Amount:           inv.TotalAmount,
		Currency:         inv.Currency,
	}, nil
}
