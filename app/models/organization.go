package models

import "time"

type PlanType string

const (
	PlanTypeSubscription PlanType = "subscription"
	PlanTypePayAsYouGo   PlanType = "pay-as-you-go"
	PlanTypeNone         PlanType = "none"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionInactive  SubscriptionStatus = "inactive"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionTrialing  SubscriptionStatus = "trialing"
)

// IsLive reports whether the subscription currently grants its plan.
func (s SubscriptionStatus) IsLive() bool {
	return s == SubscriptionActive || s == SubscriptionTrialing
}

// DefaultCreditRate is the price of one credit in major units.
const DefaultCreditRate = 5

type Credits struct {
	Available  int64 `gorm:"not null;default:0" json:"available" bson:"available"`
	Used       int64 `gorm:"not null;default:0" json:"used" bson:"used"`
	CreditRate int64 `gorm:"not null;default:5" json:"creditRate" bson:"creditRate"`
}

type Subscription struct {
	Status            SubscriptionStatus `gorm:"type:varchar(16);not null;default:'inactive'" json:"status" bson:"status"`
	StartDate         *time.Time         `gorm:"default:null" json:"startDate" bson:"startDate,omitempty"`
	EndDate           *time.Time         `gorm:"default:null" json:"endDate" bson:"endDate,omitempty"`
	AutoRenew         bool               `json:"autoRenew" bson:"autoRenew"`
	CancelAtPeriodEnd bool               `json:"cancelAtPeriodEnd" bson:"cancelAtPeriodEnd"`
}

type UsageCounters struct {
	CredentialsIssued int64 `gorm:"not null;default:0" json:"credentialsIssued" bson:"credentialsIssued"`
	EventsCreated     int64 `gorm:"not null;default:0" json:"eventsCreated" bson:"eventsCreated"`
	ParticipantsAdded int64 `gorm:"not null;default:0" json:"participantsAdded" bson:"participantsAdded"`
}

// Usage tracks the rolling monthly counters and lifetime totals. PeriodStart
// is the first UTC day of the month CurrentMonth belongs to.
type Usage struct {
	PeriodStart  time.Time     `json:"periodStart" bson:"periodStart"`
	CurrentMonth UsageCounters `gorm:"embedded;embeddedPrefix:month_" json:"currentMonth" bson:"currentMonth"`
	Lifetime     UsageCounters `gorm:"embedded;embeddedPrefix:lifetime_" json:"lifetime" bson:"lifetime"`
}

// CurrentFor returns the current-month counters as seen at now. Counters of
// an earlier month read as zero even before the monthly reset job ran.
func (u Usage) CurrentFor(now time.Time) UsageCounters {
	if u.PeriodStart.Before(MonthStart(now)) {
		return UsageCounters{}
	}
	return u.CurrentMonth
}

// PaystackCustomer caches the last payment instrument used by the tenant.
type PaystackCustomer struct {
	CustomerID        string `gorm:"type:varchar(64)" json:"customerId,omitempty" bson:"customerId,omitempty"`
	SubscriptionCode  string `gorm:"type:varchar(64)" json:"subscriptionCode,omitempty" bson:"subscriptionCode,omitempty"`
	AuthorizationCode string `gorm:"type:varchar(64)" json:"authorizationCode,omitempty" bson:"authorizationCode,omitempty"`
	LastFourDigits    string `gorm:"type:varchar(4)" json:"lastFourDigits,omitempty" bson:"lastFourDigits,omitempty"`
	CardType          string `gorm:"type:varchar(32)" json:"cardType,omitempty" bson:"cardType,omitempty"`
	Bank              string `gorm:"type:varchar(100)" json:"bank,omitempty" bson:"bank,omitempty"`
}

// HasCard reports whether a card fingerprint has been cached.
func (p PaystackCustomer) HasCard() bool {
	return p.AuthorizationCode != "" || p.LastFourDigits != ""
}

type Billing struct {
	PlanType        PlanType         `gorm:"type:varchar(16);not null;default:'none'" json:"planType" bson:"planType"`
	CurrentPlanID   *string          `gorm:"type:varchar(36);default:null" json:"currentPlan" bson:"currentPlan,omitempty"`
	Credits         Credits          `gorm:"embedded;embeddedPrefix:credits_" json:"credits" bson:"credits"`
	Subscription    Subscription     `gorm:"embedded;embeddedPrefix:subscription_" json:"subscription" bson:"subscription"`
	Usage           Usage            `gorm:"embedded;embeddedPrefix:usage_" json:"usage" bson:"usage"`
	Paystack        PaystackCustomer `gorm:"embedded;embeddedPrefix:paystack_" json:"paystack" bson:"paystack"`
	NextBillingDate *time.Time       `gorm:"default:null" json:"nextBillingDate" bson:"nextBillingDate,omitempty"`
	LastBillingDate *time.Time       `gorm:"default:null" json:"lastBillingDate" bson:"lastBillingDate,omitempty"`
}

// Organization is the billable tenant.
type Organization struct {
	ID      string  `gorm:"type:varchar(36);primaryKey" json:"id" bson:"_id"`
	Name    string  `gorm:"type:varchar(150);not null" json:"name" bson:"name"`
	Email   string  `gorm:"type:varchar(191);not null;index" json:"email" bson:"email"`
	Billing Billing `gorm:"embedded;embeddedPrefix:billing_" json:"billing" bson:"billing"`

	// AppliedReferences guards settlements on document stores. Relational
	// stores use the ledger_entries unique index instead.
	AppliedReferences []string `gorm:"-" json:"-" bson:"appliedReferences,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt" bson:"updatedAt"`
}

// NewOrganization returns a tenant with an empty ledger and no plan.
func NewOrganization(name, email string, now time.Time) *Organization {
	return &Organization{
		Name:  name,
		Email: email,
		Billing: Billing{
			PlanType:     PlanTypeNone,
			Credits:      Credits{CreditRate: DefaultCreditRate},
			Subscription: Subscription{Status: SubscriptionInactive},
			Usage:        Usage{PeriodStart: MonthStart(now)},
		},
	}
}

// MonthStart returns the first instant of t's month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
