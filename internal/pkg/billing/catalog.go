package billing

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/CertFox/app/models"
	"github.com/ManuelReschke/CertFox/app/repository"
	"github.com/ManuelReschke/CertFox/internal/pkg/entitlements"
)

const (
	activePlansCacheKey = "billing:plans:active"
	catalogCacheTTL     = 10 * time.Minute
)

// PlanInput is the admin payload for creating or replacing a plan.
type PlanInput struct {
	Name         models.PlanName     `json:"name" validate:"required"`
	Description  string              `json:"description" validate:"max=255"`
	Price        int64               `json:"price" validate:"required,gt=0"`
	Currency     string              `json:"currency" validate:"omitempty,len=3"`
	BillingCycle models.BillingCycle `json:"billingCycle" validate:"required"`
	Features     models.PlanFeatures `json:"features"`
	IsActive     bool                `json:"isActive"`
	IsPopular    bool                `json:"isPopular"`
	SortOrder    int                 `json:"sortOrder"`
}

// Catalog serves the plan list with a redis read-through cache of the
// active plans. A nil redis client disables caching.
type Catalog struct {
	plans repository.PlanRepository
	cache *redis.Client
	ttl   time.Duration
}

func NewCatalog(plans repository.PlanRepository, cache *redis.Client) *Catalog {
	return &Catalog{plans: plans, cache: cache, ttl: catalogCacheTTL}
}

// ActivePlans returns the public catalog ordered by sort order.
func (c *Catalog) ActivePlans(ctx context.Context) ([]models.Plan, error) {
	if c.cache != nil {
		raw, err := c.cache.Get(ctx, activePlansCacheKey).Bytes()
		if err == nil {
			var plans []models.Plan
			if err := json.Unmarshal(raw, &plans); err == nil {
				return plans, nil
			}
			log.Warnf("[Cache] Dropping undecodable %s entry", activePlansCacheKey)
		} else if !errors.Is(err, redis.Nil) {
			log.Warnf("[Cache] Plan catalog lookup failed: %v", err)
		}
	}

	plans, err := c.plans.List(ctx, true)
	if err != nil {
		return nil, newError(KindInternal, err, "could not load plans")
	}

	if c.cache != nil {
		if raw, err := json.Marshal(plans); err == nil {
			if err := c.cache.Set(ctx, activePlansCacheKey, raw, c.ttl).Err(); err != nil {
				log.Warnf("[Cache] Could not store plan catalog: %v", err)
			}
		}
	}
	return plans, nil
}

// Plans lists the catalog straight from the store.
func (c *Catalog) Plans(ctx context.Context, activeOnly bool) ([]models.Plan, error) {
	plans, err := c.plans.List(ctx, activeOnly)
	if err != nil {
		return nil, newError(KindInternal, err, "could not load plans")
	}
	return plans, nil
}

func (c *Catalog) Get(ctx context.Context, id string) (*models.Plan, error) {
	plan, err := c.plans.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(KindNotFound, err, "plan not found")
		}
		return nil, newError(KindInternal, err, "could not load plan")
	}
	return plan, nil
}

func (c *Catalog) Create(ctx context.Context, in PlanInput) (*models.Plan, error) {
	plan := &models.Plan{}
	if err := applyPlanInput(plan, in); err != nil {
		return nil, err
	}
	if err := c.plans.Create(ctx, plan); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, newError(KindConflict, err, "plan %s (%s) already exists", plan.Name, plan.BillingCycle)
		}
		return nil, newError(KindInternal, err, "could not create plan")
	}
	c.Invalidate(ctx)
	log.Infof("[Billing] Plan created: id=%s name=%s cycle=%s price=%d", plan.ID, plan.Name, plan.BillingCycle, plan.Price)
	return plan, nil
}

func (c *Catalog) Update(ctx context.Context, id string, in PlanInput) (*models.Plan, error) {
	plan, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyPlanInput(plan, in); err != nil {
		return nil, err
	}
	if err := c.plans.Update(ctx, plan); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, newError(KindConflict, err, "plan %s (%s) already exists", plan.Name, plan.BillingCycle)
		}
		return nil, newError(KindInternal, err, "could not update plan")
	}
	c.Invalidate(ctx)
	log.Infof("[Billing] Plan updated: id=%s", plan.ID)
	return plan, nil
}

func (c *Catalog) Delete(ctx context.Context, id string) error {
	if err := c.plans.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return newError(KindNotFound, err, "plan not found")
		}
		return newError(KindInternal, err, "could not delete plan")
	}
	c.Invalidate(ctx)
	log.Infof("[Billing] Plan deleted: id=%s", id)
	return nil
}

// Invalidate drops the cached active list.
func (c *Catalog) Invalidate(ctx context.Context) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Del(ctx, activePlansCacheKey).Err(); err != nil {
		log.Warnf("[Cache] Could not invalidate plan catalog: %v", err)
	}
}

// ValidatePlan checks the business rules of a catalog entry.
func ValidatePlan(p *models.Plan) error {
	var problems []string
	if !p.Name.Valid() {
		problems = append(problems, "name must be one of Basic, Standard, Professional")
	}
	if p.Price <= 0 {
		problems = append(problems, "price must be positive")
	}
	if !p.BillingCycle.Valid() {
		problems = append(problems, "billingCycle must be monthly or yearly")
	}
	if p.Features.MaxParticipants < models.Unlimited {
		problems = append(problems, "features.maxParticipants must be -1 or greater")
	}
	if p.Features.MaxEventsPerMonth < models.Unlimited {
		problems = append(problems, "features.maxEventsPerMonth must be -1 or greater")
	}
	if !p.Features.Templates.Valid() {
		problems = append(problems, "features.templates must be basic, premium or custom")
	}
	if !p.Features.Analytics.Valid() {
		problems = append(problems, "features.analytics must be none, basic or advanced")
	}
	if len(problems) > 0 {
		return newError(KindValidation, nil, "%s", strings.Join(problems, "; "))
	}
	return nil
}

func applyPlanInput(plan *models.Plan, in PlanInput) error {
	plan.Name = in.Name
	plan.Description = strings.TrimSpace(in.Description)
	plan.Price = in.Price
	plan.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if plan.Currency == "" {
		plan.Currency = models.DefaultCurrency
	}
	plan.BillingCycle = in.BillingCycle
	plan.Features = in.Features
	if plan.Features.Templates == "" {
		plan.Features.Templates = models.TemplatesBasic
	}
	if plan.Features.Analytics == "" {
		plan.Features.Analytics = models.AnalyticsNone
	}
	plan.IsActive = in.IsActive
	plan.IsPopular = in.IsPopular
	plan.SortOrder = in.SortOrder
	return ValidatePlan(plan)
}

// DefaultPlans is the catalog a fresh installation starts with. Feature
// limits mirror the static entitlement tiers.
func DefaultPlans() []models.Plan {
	return []models.Plan{
		{
			Name:         models.PlanBasic,
			Description:  "For small workshops and one-off events",
			Price:        15000,
			Currency:     models.DefaultCurrency,
			BillingCycle: models.BillingCycleMonthly,
			Features:     entitlements.StaticFeatures(entitlements.PlanBasic),
			IsActive:     true,
			SortOrder:    1,
		},
		{
			Name:         models.PlanStandard,
			Description:  "For training providers issuing every month",
			Price:        45000,
			Currency:     models.DefaultCurrency,
			BillingCycle: models.BillingCycleMonthly,
			Features:     entitlements.StaticFeatures(entitlements.PlanStandard),
			IsActive:     true,
			IsPopular:    true,
			SortOrder:    2,
		},
		{
			Name:         models.PlanProfessional,
			Description:  "For institutions with unlimited volume",
			Price:        90000,
			Currency:     models.DefaultCurrency,
			BillingCycle: models.BillingCycleMonthly,
			Features:     entitlements.StaticFeatures(entitlements.PlanProfessional),
			IsActive:     true,
			SortOrder:    3,
		},
	}
}

// SeedDefaultPlans inserts DefaultPlans when the catalog is empty and returns
// how many plans were created.
func SeedDefaultPlans(ctx context.Context, plans repository.PlanRepository) (int, error) {
	count, err := plans.Count(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}
	created := 0
	for _, p := range DefaultPlans() {
		plan := p
		if err := plans.Create(ctx, &plan); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				continue
			}
			return created, err
		}
		created++
	}
	log.Infof("[Billing] Seeded %d default plans", created)
	return created, nil
}
