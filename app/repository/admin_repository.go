package repository

import (
	"context"

	"github.com/ManuelReschke/CertFox/app/models"
	"gorm.io/gorm"
)

// adminRepository implements the AdminRepository interface
type adminRepository struct {
	db *gorm.DB
}

// NewAdminRepository creates a new admin repository instance
func NewAdminRepository(db *gorm.DB) AdminRepository {
	return &adminRepository{db: db}
}

func (r *adminRepository) Create(ctx context.Context, admin *models.Admin) error {
	ensureID(&admin.ID)
	return translateError(r.db.WithContext(ctx).Create(admin).Error)
}

func (r *adminRepository) GetByID(ctx context.Context, id string) (*models.Admin, error) {
	var admin models.Admin
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&admin).Error; err != nil {
		return nil, translateError(err)
	}
	return &admin, nil
}
