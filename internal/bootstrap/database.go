package bootstrap

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"pressroom/internal/models"
)

// MigrateAndSeed ensures required tables exist and inserts a default
// workspace when none exists yet.
func MigrateAndSeed(db *gorm.DB) error {
	if err := db.AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	if err := seedDefaults(db); err != nil {
		return fmt.Errorf("seed defaults failed: %w", err)
	}
	return nil
}

func allModels() []interface{} {
	return []interface{}{
		&models.Workspace{},
		&models.AutomationJob{},
		&models.JobExecution{},
	}
}

func seedDefaults(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Workspace{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	err := db.Create(&models.Workspace{
		ID:   "00000000-0000-0000-0000-000000000001",
		Name: "Default Workspace",
		Slug: "default",
	}).Error
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return err
	}
	return nil
}
