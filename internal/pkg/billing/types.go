package billing

import (
	"time"

	"github.com/ManuelReschke/CertFox/app/models"
)

// CreditPackage is a pay-as-you-go purchase request. Price is in major units
// and must equal Quantity times the organization's credit rate.
type CreditPackage struct {
	Quantity int64 `json:"quantity" validate:"required,gt=0"`
	Price    int64 `json:"price" validate:"required,gt=0"`
}

// PaymentSession is returned once the gateway accepted an initialization.
type PaymentSession struct {
	AuthorizationURL string `json:"authorizationUrl"`
	Reference        string `json:"reference"`
	InvoiceID        string `json:"invoiceId"`
	InvoiceNumber    string `json:"invoiceNumber"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	TotalCredits     int64  `json:"totalCredits,omitempty"`
}

// PaymentOutcome is the projection returned by payment verification.
type PaymentOutcome struct {
	Invoice          *models.Invoice `json:"invoice"`
	Billing          models.Billing  `json:"billing"`
	CreditsAdded     int64           `json:"creditsAdded"`
	AlreadyProcessed bool            `json:"alreadyProcessed"`
}

// PlanSummary is the short form of a catalog plan used in quotes and dashboards.
type PlanSummary struct {
	ID           string              `json:"id"`
	Name         models.PlanName     `json:"name"`
	Price        int64               `json:"price"`
	Currency     string              `json:"currency"`
	BillingCycle models.BillingCycle `json:"billingCycle"`
}

func summarizePlan(p *models.Plan) *PlanSummary {
	if p == nil {
		return nil
	}
	return &PlanSummary{
		ID:           p.ID,
		Name:         p.Name,
		Price:        p.Price,
		Currency:     p.Currency,
		BillingCycle: p.BillingCycle,
	}
}

type ProrationType string

const (
	ProrationUpgrade   ProrationType = "upgrade"
	ProrationDowngrade ProrationType = "downgrade"
)

// ProrationQuote prices a mid-cycle plan change. It is never persisted.
type ProrationQuote struct {
	CurrentPlan    *PlanSummary  `json:"currentPlan"`
	NewPlan        *PlanSummary  `json:"newPlan"`
	TotalDays      int64         `json:"totalDays"`
	RemainingDays  int64         `json:"remainingDays"`
	UnusedCredit   int64         `json:"unusedCredit"`
	ProratedAmount int64         `json:"proratedAmount"`
	ProrationType  ProrationType `json:"prorationType"`
}

// CancelResult describes the subscription after a cancellation request.
type CancelResult struct {
	Immediate    bool                `json:"immediate"`
	Subscription models.Subscription `json:"subscription"`
	PlanType     models.PlanType     `json:"planType"`
}

// DebitResult reports the balance after a credit debit.
type DebitResult struct {
	OrganizationID string `json:"organizationId"`
	Debited        int64  `json:"debited"`
	Remaining      int64  `json:"remaining"`
}

// WebhookResult is what the webhook endpoint acknowledges.
type WebhookResult struct {
	Event     string `json:"event"`
	Reference string `json:"reference,omitempty"`
	Duplicate bool   `json:"duplicate"`
	Processed bool   `json:"processed"`
	Error     string `json:"error,omitempty"`
}

// UsagePercentages are only reported for subscription plans with a finite limit.
type UsagePercentages struct {
	Events       *float64 `json:"events"`
	Participants *float64 `json:"participants"`
}

// UsageReport is the current-month view of an organization's consumption.
type UsageReport struct {
	PeriodStart  time.Time            `json:"periodStart"`
	CurrentMonth models.UsageCounters `json:"currentMonth"`
	Lifetime     models.UsageCounters `json:"lifetime"`
	Limits       *UsageLimits         `json:"limits"`
	Percentages  *UsagePercentages    `json:"percentages"`
	Credits      models.Credits       `json:"credits"`
}

// UsageLimits echoes the quota ceilings of the current plan. -1 means unlimited.
type UsageLimits struct {
	MaxEventsPerMonth int `json:"maxEventsPerMonth"`
	MaxParticipants   int `json:"maxParticipants"`
}

// InvoicePage is one page of an organization's invoices, newest first.
type InvoicePage struct {
	Invoices []models.Invoice `json:"invoices"`
	Page     int              `json:"page"`
	Limit    int              `json:"limit"`
	Total    int64            `json:"total"`
	Pages    int64            `json:"pages"`
}
