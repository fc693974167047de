package database

import (
	"gorm.io/gorm"

	"github.com/covecrm/covecrm/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Role{},
		&models.Session{},
		&models.ActivityLog{},
		&models.CacheEntry{},
		&models.Company{},
		&models.FollowUp{},
		&models.Staff{},
	)
}

// SeedData populates the default roles.
func SeedData(db *gorm.DB) error {
	roles := []models.Role{
		{
			BaseModel:   models.BaseModel{ID: models.AdminRoleID},
			Name:        "Administrator",
			Description: "Full system access",
			IsSystem:    true,
		},
		{
			BaseModel:   models.BaseModel{ID: models.StaffRoleID},
			Name:        "Staff",
			Description: "Standard CRM access",
			IsSystem:    true,
		},
	}

	for _, role := range roles {
		if err := db.Where(models.Role{BaseModel: models.BaseModel{ID: role.ID}}).Attrs(role).FirstOrCreate(&models.Role{}).Error; err != nil {
			return err
		}
	}

	return nil
}
