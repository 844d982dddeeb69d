package billing

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/ManuelReschke/CertFox/app/models"
	"github.com/ManuelReschke/CertFox/app/repository"
	"github.com/ManuelReschke/CertFox/internal/pkg/entitlements"
)

const (
	dashboardInvoiceCount = 10
	defaultInvoicePage    = 10
	maxInvoicePage        = 100
)

type DashboardOrganization struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// PaymentMethod is the cached card of the last payment.
type PaymentMethod struct {
	CardType       string `json:"cardType"`
	LastFourDigits string `json:"lastFourDigits"`
	Bank           string `json:"bank"`
}

type DashboardUsage struct {
	PeriodStart  time.Time            `json:"periodStart"`
	CurrentMonth models.UsageCounters `json:"currentMonth"`
	Lifetime     models.UsageCounters `json:"lifetime"`
	Percentages  *UsagePercentages    `json:"percentages"`
}

type DashboardBilling struct {
	PlanType        models.PlanType     `json:"planType"`
	CurrentPlan     *models.Plan        `json:"currentPlan"`
	Credits         models.Credits      `json:"credits"`
	Subscription    models.Subscription `json:"subscription"`
	Usage           DashboardUsage      `json:"usage"`
	PaymentMethod   *PaymentMethod      `json:"paymentMethod"`
	NextBillingDate *time.Time          `json:"nextBillingDate"`
	LastBillingDate *time.Time          `json:"lastBillingDate"`
}

type DashboardPlan struct {
	models.Plan
	IsCurrent bool `json:"isCurrent"`
}

type InvoiceCounts struct {
	Paid      int64 `json:"paid"`
	Pending   int64 `json:"pending"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
	Total     int64 `json:"total"`
}

type DashboardStatistics struct {
	TotalSpent         int64         `json:"totalSpent"`
	ActiveSubscription bool          `json:"activeSubscription"`
	CreditsRemaining   int64         `json:"creditsRemaining"`
	InvoicesCount      InvoiceCounts `json:"invoicesCount"`
}

// Dashboard is the billing overview of one organization.
type Dashboard struct {
	Organization DashboardOrganization `json:"organization"`
	Billing      DashboardBilling      `json:"billing"`
	Plans        []DashboardPlan       `json:"plans"`
	Invoices     []models.Invoice      `json:"invoices"`
	Statistics   DashboardStatistics   `json:"statistics"`
}

// Dashboard reads the billing overview straight from the store so a payment
// verified a moment earlier is always visible.
func (s *Service) Dashboard(ctx context.Context, adminID string) (*Dashboard, error) {
	_, org, err := s.resolveAdmin(ctx, adminID)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	b := org.Billing

	var current *models.Plan
	if b.CurrentPlanID != nil {
		current, err = s.repos.Plan.GetByID(ctx, *b.CurrentPlanID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, newError(KindInternal, err, "could not load current plan")
		}
	}

	plans, err := s.catalog.Plans(ctx, true)
	if err != nil {
		return nil, err
	}
	invoices, _, err := s.repos.Invoice.ListByOrganization(ctx, org.ID, repository.InvoiceFilter{Limit: dashboardInvoiceCount})
	if err != nil {
		return nil, newError(KindInternal, err, "could not load invoices")
	}
	summary, err := s.repos.Invoice.Summarize(ctx, org.ID)
	if err != nil {
		return nil, newError(KindInternal, err, "could not summarize invoices")
	}

	d := &Dashboard{
		Organization: DashboardOrganization{ID: org.ID, Name: org.Name, Email: org.Email},
		Billing: DashboardBilling{
			PlanType:     b.PlanType,
			CurrentPlan:  current,
			Credits:      b.Credits,
			Subscription: b.Subscription,
			Usage: DashboardUsage{
				PeriodStart:  models.MonthStart(now),
				CurrentMonth: b.Usage.CurrentFor(now),
				Lifetime:     b.Usage.Lifetime,
				Percentages:  usagePercentages(b, current, now),
			},
			NextBillingDate: b.NextBillingDate,
			LastBillingDate: b.LastBillingDate,
		},
		Plans:    make([]DashboardPlan, 0, len(plans)),
		Invoices: invoices,
		Statistics: DashboardStatistics{
			TotalSpent:         summary.TotalSpent,
			ActiveSubscription: b.PlanType == models.PlanTypeSubscription && b.Subscription.Status.IsLive(),
			CreditsRemaining:   b.Credits.Available,
			InvoicesCount: InvoiceCounts{
				Paid:      summary.Counts[models.InvoiceStatusPaid],
				Pending:   summary.Counts[models.InvoiceStatusPending] + summary.Counts[models.InvoiceStatusProcessing],
				Failed:    summary.Counts[models.InvoiceStatusFailed],
				Cancelled: summary.Counts[models.InvoiceStatusCancelled],
				Total:     summary.Total,
			},
		},
	}
	if d.Invoices == nil {
		d.Invoices = []models.Invoice{}
	}
	if b.Paystack.HasCard() {
		d.Billing.PaymentMethod = &PaymentMethod{
			CardType:       b.Paystack.CardType,
			LastFourDigits: b.Paystack.LastFourDigits,
			Bank:           b.Paystack.Bank,
		}
	}
	for _, p := range plans {
		d.Plans = append(d.Plans, DashboardPlan{Plan: p, IsCurrent: current != nil && current.ID == p.ID})
	}
	return d, nil
}

// Usage reports the current month's consumption against the plan limits.
func (s *Service) Usage(ctx context.Context, adminID string) (*UsageReport, error) {
	_, org, err := s.resolveAdmin(ctx, adminID)
	if err != nil {
		return nil, err
	}
	now := s.clock()
	current, err := s.currentPlan(ctx, org)
	if err != nil {
		return nil, err
	}
	ent := entitlements.Resolve(org, current, now)
	return &UsageReport{
		PeriodStart:  models.MonthStart(now),
		CurrentMonth: ent.Usage,
		Lifetime:     org.Billing.Usage.Lifetime,
		Limits: &UsageLimits{
			MaxEventsPerMonth: ent.Features.MaxEventsPerMonth,
			MaxParticipants:   ent.Features.MaxParticipants,
		},
		Percentages: usagePercentages(org.Billing, current, now),
		Credits:     org.Billing.Credits,
	}, nil
}

// Invoices lists the organization's invoices, newest first. page is 1-based.
func (s *Service) Invoices(ctx context.Context, adminID string, page, limit int, status models.InvoiceStatus) (*InvoicePage, error) {
	if status != "" && !status.Valid() {
		return nil, newError(KindValidation, nil, "unknown invoice status %q", status)
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultInvoicePage
	}
	if limit > maxInvoicePage {
		limit = maxInvoicePage
	}
	_, org, err := s.resolveAdmin(ctx, adminID)
	if err != nil {
		return nil, err
	}
	invoices, total, err := s.repos.Invoice.ListByOrganization(ctx, org.ID, repository.InvoiceFilter{
		Status: status,
		Offset: (page - 1) * limit,
		Limit:  limit,
	})
	if err != nil {
		return nil, newError(KindInternal, err, "could not load invoices")
	}
	if invoices == nil {
		invoices = []models.Invoice{}
	}
	return &InvoicePage{
		Invoices: invoices,
		Page:     page,
		Limit:    limit,
		Total:    total,
		Pages:    (total + int64(limit) - 1) / int64(limit),
	}, nil
}

// usagePercentages is nil unless the organization is on a subscription plan.
func usagePercentages(b models.Billing, plan *models.Plan, now time.Time) *UsagePercentages {
	if b.PlanType != models.PlanTypeSubscription || plan == nil {
		return nil
	}
	usage := b.Usage.CurrentFor(now)
	return &UsagePercentages{
		Events:       percentOf(usage.EventsCreated, plan.Features.MaxEventsPerMonth),
		Participants: percentOf(usage.ParticipantsAdded, plan.Features.MaxParticipants),
	}
}

func percentOf(used int64, limit int) *float64 {
	if limit <= 0 {
		return nil
	}
	p := math.Round(float64(used)*10000/float64(limit)) / 100
	return &p
}
