package repository

import (
	"context"

	"github.com/ManuelReschke/CertFox/app/models"
	"gorm.io/gorm"
)

// planRepository implements the PlanRepository interface
type planRepository struct {
	db *gorm.DB
}

// NewPlanRepository creates a new plan repository instance
func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &planRepository{db: db}
}

// List returns the catalog ordered for display
func (r *planRepository) List(ctx context.Context, activeOnly bool) ([]models.Plan, error) {
	var plans []models.Plan
	q := r.db.WithContext(ctx).Order("sort_order ASC").Order("price ASC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	if err := q.Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *planRepository) GetByID(ctx context.Context, id string) (*models.Plan, error) {
	var plan models.Plan
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error; err != nil {
		return nil, translateError(err)
	}
	return &plan, nil
}

// GetByName returns the active plan with the given name, preferring the
// monthly cycle.
func (r *planRepository) GetByName(ctx context.Context, name models.PlanName) (*models.Plan, error) {
	var plans []models.Plan
	err := r.db.WithContext(ctx).
		Where("name = ? AND is_active = ?", name, true).
		Order("sort_order ASC").
		Find(&plans).Error
	if err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		return nil, ErrNotFound
	}
	for i := range plans {
		if plans[i].BillingCycle == models.BillingCycleMonthly {
			return &plans[i], nil
		}
	}
	return &plans[0], nil
}

func (r *planRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Plan{}).Count(&count).Error
	return count, err
}

func (r *planRepository) Create(ctx context.Context, plan *models.Plan) error {
	ensureID(&plan.ID)
	if plan.Currency == "" {
		plan.Currency = models.DefaultCurrency
	}
	return translateError(r.db.WithContext(ctx).Create(plan).Error)
}

// Update saves all plan fields
func (r *planRepository) Update(ctx context.Context, plan *models.Plan) error {
	res := r.db.WithContext(ctx).Model(&models.Plan{}).Where("id = ?", plan.ID).Select("*").Omit("id", "created_at").Updates(plan)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		ok, err := exists(r.db.WithContext(ctx), &models.Plan{}, plan.ID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
	}
	return nil
}

func (r *planRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Plan{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
