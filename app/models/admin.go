package models

import "time"

const (
	AdminRoleOwner      = "owner"
	AdminRoleMember     = "member"
	AdminRoleSuperAdmin = "superadmin"
)

// Admin is an operator account acting on behalf of one organization.
type Admin struct {
	ID             string    `gorm:"type:varchar(36);primaryKey" json:"id" bson:"_id"`
	Name           string    `gorm:"type:varchar(150);not null" json:"name" bson:"name"`
	Email          string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"email" bson:"email"`
	OrganizationID string    `gorm:"type:varchar(36);not null;index" json:"organizationId" bson:"organizationId"`
	Role           string    `gorm:"type:varchar(20);not null;default:'owner'" json:"role" bson:"role"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updatedAt" bson:"updatedAt"`
}
