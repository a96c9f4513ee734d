package database

import (
	"fmt"

	"evoloop/domain"
	"evoloop/pkg/config"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// InitPostgres opens the database and keeps the allocator schema current.
func InitPostgres(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.AutoMigrate(
		&domain.Site{},
		&domain.Variant{},
		&domain.VariantStatistics{},
		&domain.AllocatorEvent{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return db, nil
}
