package entitlements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CertFox/app/models"
	"github.com/ManuelReschke/CertFox/app/repository"
	"github.com/ManuelReschke/CertFox/internal/pkg/metrics"
)

// ErrOrganizationNotFound is returned when the organization does not exist.
var ErrOrganizationNotFound = errors.New("entitlements: organization not found")

// Oracle answers entitlement checks from fresh organization state.
type Oracle struct {
	orgs    repository.OrganizationRepository
	plans   repository.PlanRepository
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewOracle(orgs repository.OrganizationRepository, plans repository.PlanRepository, m *metrics.Metrics) *Oracle {
	return &Oracle{orgs: orgs, plans: plans, metrics: m, now: time.Now}
}

// WithClock replaces the wall clock used for usage periods.
func (o *Oracle) WithClock(now func() time.Time) *Oracle {
	o.now = now
	return o
}

// For resolves the current entitlement of organizationID.
func (o *Oracle) For(ctx context.Context, organizationID string) (*Entitlement, error) {
	org, err := o.orgs.GetByID(ctx, organizationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("load organization: %w", err)
	}

	var plan *models.Plan
	if org.Billing.CurrentPlanID != nil && *org.Billing.CurrentPlanID != "" {
		plan, err = o.plans.GetByID(ctx, *org.Billing.CurrentPlanID)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("load plan: %w", err)
			}
			log.Warnf("[Entitlements] Organization %s references missing plan %s", org.ID, *org.Billing.CurrentPlanID)
			plan = nil
		}
	}
	return Resolve(org, plan, o.now().UTC()), nil
}

// Record counts a denial.
func (o *Oracle) Record(d Decision) Decision {
	if !d.Allowed {
		o.metrics.EntitlementDenied(string(d.Check))
	}
	return d
}

func (o *Oracle) RequireFeature(ctx context.Context, organizationID string, f Feature) (Decision, error) {
	e, err := o.For(ctx, organizationID)
	if err != nil {
		return Decision{}, err
	}
	return o.Record(e.RequireFeature(f)), nil
}

func (o *Oracle) RequirePlan(ctx context.Context, organizationID string, plan Plan) (Decision, error) {
	e, err := o.For(ctx, organizationID)
	if err != nil {
		return Decision{}, err
	}
	return o.Record(e.RequirePlan(plan)), nil
}

func (o *Oracle) CheckEventLimit(ctx context.Context, organizationID string) (Decision, error) {
	e, err := o.For(ctx, organizationID)
	if err != nil {
		return Decision{}, err
	}
	return o.Record(e.CheckEventLimit()), nil
}

func (o *Oracle) CheckParticipantLimit(ctx context.Context, organizationID string, n int64) (Decision, error) {
	e, err := o.For(ctx, organizationID)
	if err != nil {
		return Decision{}, err
	}
	return o.Record(e.CheckParticipantLimit(n)), nil
}

func (o *Oracle) CheckCredits(ctx context.Context, organizationID string, n int64) (Decision, error) {
	e, err := o.For(ctx, organizationID)
	if err != nil {
		return Decision{}, err
	}
	return o.Record(e.CheckCredits(n)), nil
}
