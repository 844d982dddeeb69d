package entitlements

import (
	"fmt"
	"time"

	"github.com/ManuelReschke/CertFox/app/models"
)

// Check names an entitlement check in decisions and metrics.
type Check string

const (
	CheckFeature      Check = "feature"
	CheckPlan         Check = "plan"
	CheckEvents       Check = "event_limit"
	CheckParticipants Check = "participant_limit"
	CheckCredits      Check = "credits"
)

// Entitlement is what an organization may do right now.
type Entitlement struct {
	OrganizationID   string               `json:"organizationId"`
	Plan             Plan                 `json:"plan"`
	PlanType         models.PlanType      `json:"planType"`
	Features         models.PlanFeatures  `json:"features"`
	Usage            models.UsageCounters `json:"usage"`
	CreditsAvailable int64                `json:"creditsAvailable"`
}

// Decision is the outcome of one check. Denials carry enough context to
// render an upgrade prompt.
type Decision struct {
	Allowed         bool    `json:"allowed"`
	Check           Check   `json:"check"`
	CurrentPlan     Plan    `json:"currentPlan"`
	RequiredPlan    Plan    `json:"requiredPlan,omitempty"`
	Feature         Feature `json:"feature,omitempty"`
	CurrentUsage    int64   `json:"currentUsage"`
	Limit           int64   `json:"limit"`
	SuggestedPlan   Plan    `json:"suggestedPlan,omitempty"`
	UpgradeRequired bool    `json:"upgradeRequired"`
	Message         string  `json:"message,omitempty"`
}

// Resolve derives the entitlement of org. plan is the organization's current
// catalog plan and may be nil. A live subscription takes its limits from the
// catalog; pay-as-you-go with credits behaves as Basic; anything else is Free.
func Resolve(org *models.Organization, plan *models.Plan, now time.Time) *Entitlement {
	e := &Entitlement{
		OrganizationID:   org.ID,
		PlanType:         org.Billing.PlanType,
		Usage:            org.Billing.Usage.CurrentFor(now),
		CreditsAvailable: org.Billing.Credits.Available,
	}

	switch {
	case org.Billing.PlanType == models.PlanTypeSubscription && org.Billing.Subscription.Status.IsLive() && plan != nil && plan.Name.Valid():
		e.Plan = Plan(plan.Name)
		e.Features = plan.Features
	case org.Billing.PlanType == models.PlanTypePayAsYouGo && org.Billing.Credits.Available > 0:
		e.Plan = PlanBasic
		e.Features = StaticFeatures(PlanBasic)
	default:
		e.Plan = PlanFree
		e.Features = StaticFeatures(PlanFree)
	}
	return e
}

func (e *Entitlement) Has(f Feature) bool {
	return HasFeature(e.Features, f)
}

func (e *Entitlement) deny(d Decision, format string, args ...interface{}) Decision {
	d.Allowed = false
	d.CurrentPlan = e.Plan
	d.UpgradeRequired = true
	d.Message = fmt.Sprintf(format, args...)
	return d
}

func (e *Entitlement) allow(check Check) Decision {
	return Decision{Allowed: true, Check: check, CurrentPlan: e.Plan}
}

// RequireFeature allows iff the current plan grants f.
func (e *Entitlement) RequireFeature(f Feature) Decision {
	if e.Has(f) {
		d := e.allow(CheckFeature)
		d.Feature = f
		return d
	}
	required := MinimumPlanFor(f)
	return e.deny(Decision{
		Check:         CheckFeature,
		Feature:       f,
		RequiredPlan:  required,
		SuggestedPlan: required,
	}, "%s requires the %s plan", f, required)
}

// RequirePlan allows iff the current tier ranks at least as high as plan.
func (e *Entitlement) RequirePlan(plan Plan) Decision {
	if Level(e.Plan) >= Level(plan) {
		return e.allow(CheckPlan)
	}
	return e.deny(Decision{
		Check:         CheckPlan,
		RequiredPlan:  plan,
		SuggestedPlan: plan,
	}, "this action requires the %s plan or higher", plan)
}

// CheckEventLimit allows creating one more event this month.
func (e *Entitlement) CheckEventLimit() Decision {
	return e.checkLimit(CheckEvents, e.Usage.EventsCreated, 1, e.Features.MaxEventsPerMonth,
		func(f models.PlanFeatures) int { return f.MaxEventsPerMonth }, "monthly event limit reached")
}

// CheckParticipantLimit allows adding n more participants this month.
func (e *Entitlement) CheckParticipantLimit(n int64) Decision {
	if n < 1 {
		n = 1
	}
	return e.checkLimit(CheckParticipants, e.Usage.ParticipantsAdded, n, e.Features.MaxParticipants,
		func(f models.PlanFeatures) int { return f.MaxParticipants }, "participant limit reached")
}

func (e *Entitlement) checkLimit(check Check, used, adding int64, limit int, limitOf func(models.PlanFeatures) int, msg string) Decision {
	if limit == models.Unlimited || fitsWithin(used, adding, int64(limit)) {
		d := e.allow(check)
		d.CurrentUsage = used
		d.Limit = int64(limit)
		return d
	}
	suggested := nextPlanAbove(e.Plan, used, adding, limitOf)
	return e.deny(Decision{
		Check:         check,
		CurrentUsage:  used,
		Limit:         int64(limit),
		RequiredPlan:  suggested,
		SuggestedPlan: suggested,
	}, "%s", msg)
}

// fitsWithin reports used+adding <= limit without overflowing the sum.
func fitsWithin(used, adding, limit int64) bool {
	if adding < 0 || used > limit {
		return false
	}
	return adding <= limit-used
}

// CheckCredits allows issuing n credentials. Live subscriptions are not
// metered; everyone else needs n pay-as-you-go credits.
func (e *Entitlement) CheckCredits(n int64) Decision {
	if n < 1 {
		n = 1
	}
	if e.PlanType == models.PlanTypeSubscription && e.Plan != PlanFree {
		return e.allow(CheckCredits)
	}
	if e.PlanType == models.PlanTypePayAsYouGo && e.CreditsAvailable >= n {
		d := e.allow(CheckCredits)
		d.CurrentUsage = e.CreditsAvailable
		d.Limit = n
		return d
	}
	return e.deny(Decision{
		Check:         CheckCredits,
		CurrentUsage:  e.CreditsAvailable,
		Limit:         n,
		SuggestedPlan: PlanBasic,
	}, "insufficient credits")
}
