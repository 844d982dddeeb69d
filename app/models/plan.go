package models

import "time"

// PlanName is the catalog name of a subscription tier. Entitlement checks key
// off these names, so they are part of the public contract.
type PlanName string

const (
	PlanBasic        PlanName = "Basic"
	PlanStandard     PlanName = "Standard"
	PlanProfessional PlanName = "Professional"
)

func (n PlanName) Valid() bool {
	switch n {
	case PlanBasic, PlanStandard, PlanProfessional:
		return true
	}
	return false
}

type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
)

func (c BillingCycle) Valid() bool {
	return c == BillingCycleMonthly || c == BillingCycleYearly
}

// Days returns the length of one paid period.
func (c BillingCycle) Days() int {
	if c == BillingCycleYearly {
		return 365
	}
	return 30
}

type TemplateTier string

const (
	TemplatesBasic   TemplateTier = "basic"
	TemplatesPremium TemplateTier = "premium"
	TemplatesCustom  TemplateTier = "custom"
)

func (t TemplateTier) Valid() bool {
	switch t {
	case TemplatesBasic, TemplatesPremium, TemplatesCustom:
		return true
	}
	return false
}

type AnalyticsLevel string

const (
	AnalyticsNone     AnalyticsLevel = "none"
	AnalyticsBasic    AnalyticsLevel = "basic"
	AnalyticsAdvanced AnalyticsLevel = "advanced"
)

func (a AnalyticsLevel) Valid() bool {
	switch a {
	case AnalyticsNone, AnalyticsBasic, AnalyticsAdvanced:
		return true
	}
	return false
}

// Unlimited marks a quota without a ceiling.
const Unlimited = -1

const DefaultCurrency = "NGN"

// PlanFeatures holds the feature flags and quota ceilings of a plan.
type PlanFeatures struct {
	MaxParticipants   int            `gorm:"not null;default:0" json:"maxParticipants" bson:"maxParticipants"`
	MaxEventsPerMonth int            `gorm:"not null;default:0" json:"maxEventsPerMonth" bson:"maxEventsPerMonth"`
	Templates         TemplateTier   `gorm:"type:varchar(16);not null;default:'basic'" json:"templates" bson:"templates"`
	EmailDelivery     bool           `json:"emailDelivery" bson:"emailDelivery"`
	BulkGeneration    bool           `json:"bulkGeneration" bson:"bulkGeneration"`
	PrioritySupport   bool           `json:"prioritySupport" bson:"prioritySupport"`
	APIAccess         bool           `json:"apiAccess" bson:"apiAccess"`
	TeamCollaboration bool           `json:"teamCollaboration" bson:"teamCollaboration"`
	CustomBranding    bool           `json:"customBranding" bson:"customBranding"`
	WhiteLabel        bool           `json:"whiteLabel" bson:"whiteLabel"`
	Analytics         AnalyticsLevel `gorm:"type:varchar(16);not null;default:'none'" json:"analytics" bson:"analytics"`
}

// Plan is a subscription tier of the catalog.
type Plan struct {
	ID           string       `gorm:"type:varchar(36);primaryKey" json:"id" bson:"_id"`
	Name         PlanName     `gorm:"type:varchar(32);not null;index:ux_plans_name_cycle,unique,priority:1" json:"name" bson:"name"`
	Description  string       `gorm:"type:varchar(255)" json:"description" bson:"description"`
	Price        int64        `gorm:"not null" json:"price" bson:"price"`
	Currency     string       `gorm:"type:varchar(3);not null;default:'NGN'" json:"currency" bson:"currency"`
	BillingCycle BillingCycle `gorm:"type:varchar(16);not null;default:'monthly';index:ux_plans_name_cycle,unique,priority:2" json:"billingCycle" bson:"billingCycle"`
	Features     PlanFeatures `gorm:"embedded;embeddedPrefix:feature_" json:"features" bson:"features"`
	IsActive     bool         `gorm:"index" json:"isActive" bson:"isActive"`
	IsPopular    bool         `json:"isPopular" bson:"isPopular"`
	SortOrder    int          `gorm:"not null;default:0" json:"sortOrder" bson:"sortOrder"`
	CreatedAt    time.Time    `gorm:"autoCreateTime" json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time    `gorm:"autoUpdateTime" json:"updatedAt" bson:"updatedAt"`
}

// CycleDays returns the length of one subscription period of this plan.
func (p Plan) CycleDays() int {
	return p.BillingCycle.Days()
}
