package entitlements

import (
	"github.com/ManuelReschke/CertFox/app/models"
)

// Plan is an entitlement tier. The paid tiers share their names with the
// catalog plans; lookups by catalog name rely on that.
type Plan string

const (
	PlanFree         Plan = "Free"
	PlanBasic        Plan = Plan(models.PlanBasic)
	PlanStandard     Plan = Plan(models.PlanStandard)
	PlanProfessional Plan = Plan(models.PlanProfessional)
)

// tierOrder lists the tiers from lowest to highest.
var tierOrder = []Plan{PlanFree, PlanBasic, PlanStandard, PlanProfessional}

// Level returns the rank of plan; unknown names rank as Free.
func Level(plan Plan) int {
	for i, p := range tierOrder {
		if p == plan {
			return i
		}
	}
	return 0
}

// Valid reports whether p is a known tier.
func (p Plan) Valid() bool {
	for _, t := range tierOrder {
		if t == p {
			return true
		}
	}
	return false
}

// Feature names a gated capability.
type Feature string

const (
	FeatureEmailDelivery     Feature = "emailDelivery"
	FeatureBulkGeneration    Feature = "bulkGeneration"
	FeaturePrioritySupport   Feature = "prioritySupport"
	FeatureAPIAccess         Feature = "apiAccess"
	FeatureTeamCollaboration Feature = "teamCollaboration"
	FeatureCustomBranding    Feature = "customBranding"
	FeatureWhiteLabel        Feature = "whiteLabel"
	FeaturePremiumTemplates  Feature = "premiumTemplates"
	FeatureCustomTemplates   Feature = "customTemplates"
	FeatureBasicAnalytics    Feature = "basicAnalytics"
	FeatureAdvancedAnalytics Feature = "advancedAnalytics"
)

var allFeatures = []Feature{
	FeatureEmailDelivery,
	FeatureBulkGeneration,
	FeaturePrioritySupport,
	FeatureAPIAccess,
	FeatureTeamCollaboration,
	FeatureCustomBranding,
	FeatureWhiteLabel,
	FeaturePremiumTemplates,
	FeatureCustomTemplates,
	FeatureBasicAnalytics,
	FeatureAdvancedAnalytics,
}

// Features returns every known feature name.
func Features() []Feature {
	out := make([]Feature, len(allFeatures))
	copy(out, allFeatures)
	return out
}

func (f Feature) Valid() bool {
	for _, known := range allFeatures {
		if known == f {
			return true
		}
	}
	return false
}

// staticFeatures is the built-in feature matrix per tier. Catalog plans
// override it for subscribed organizations.
var staticFeatures = map[Plan]models.PlanFeatures{
	PlanFree: {
		MaxParticipants:   50,
		MaxEventsPerMonth: 2,
		Templates:         models.TemplatesBasic,
		Analytics:         models.AnalyticsNone,
	},
	PlanBasic: {
		MaxParticipants:   500,
		MaxEventsPerMonth: 10,
		Templates:         models.TemplatesBasic,
		EmailDelivery:     true,
		Analytics:         models.AnalyticsBasic,
	},
	PlanStandard: {
		MaxParticipants:   2000,
		MaxEventsPerMonth: 50,
		Templates:         models.TemplatesPremium,
		EmailDelivery:     true,
		BulkGeneration:    true,
		PrioritySupport:   true,
		CustomBranding:    true,
		Analytics:         models.AnalyticsAdvanced,
	},
	PlanProfessional: {
		MaxParticipants:   models.Unlimited,
		MaxEventsPerMonth: models.Unlimited,
		Templates:         models.TemplatesCustom,
		EmailDelivery:     true,
		BulkGeneration:    true,
		PrioritySupport:   true,
		APIAccess:         true,
		TeamCollaboration: true,
		CustomBranding:    true,
		WhiteLabel:        true,
		Analytics:         models.AnalyticsAdvanced,
	},
}

// StaticFeatures returns the built-in feature matrix of plan.
func StaticFeatures(plan Plan) models.PlanFeatures {
	if f, ok := staticFeatures[plan]; ok {
		return f
	}
	return staticFeatures[PlanFree]
}

// HasFeature reports whether the feature set grants f.
func HasFeature(features models.PlanFeatures, f Feature) bool {
	switch f {
	case FeatureEmailDelivery:
		return features.EmailDelivery
	case FeatureBulkGeneration:
		return features.BulkGeneration
	case FeaturePrioritySupport:
		return features.PrioritySupport
	case FeatureAPIAccess:
		return features.APIAccess
	case FeatureTeamCollaboration:
		return features.TeamCollaboration
	case FeatureCustomBranding:
		return features.CustomBranding
	case FeatureWhiteLabel:
		return features.WhiteLabel
	case FeaturePremiumTemplates:
		return features.Templates == models.TemplatesPremium || features.Templates == models.TemplatesCustom
	case FeatureCustomTemplates:
		return features.Templates == models.TemplatesCustom
	case FeatureBasicAnalytics:
		return features.Analytics == models.AnalyticsBasic || features.Analytics == models.AnalyticsAdvanced
	case FeatureAdvancedAnalytics:
		return features.Analytics == models.AnalyticsAdvanced
	default:
		return false
	}
}

// MinimumPlanFor returns the lowest tier whose static matrix grants f.
func MinimumPlanFor(f Feature) Plan {
	for _, p := range tierOrder {
		if HasFeature(staticFeatures[p], f) {
			return p
		}
	}
	return PlanProfessional
}

// nextPlanAbove returns the lowest tier above current whose static limit
// leaves room for adding more on top of used, or "" when none does.
func nextPlanAbove(current Plan, used, adding int64, limit func(models.PlanFeatures) int) Plan {
	for _, p := range tierOrder[Level(current)+1:] {
		l := limit(staticFeatures[p])
		if l == models.Unlimited || fitsWithin(used, adding, int64(l)) {
			return p
		}
	}
	return ""
}
