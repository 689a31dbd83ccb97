package database

import (
	"fmt"
	"log"

	"fxdesk/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewConnection opens the postgres pool and migrates the margin schema
func NewConnection(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// users is owned by the identity service; it is migrated so the owner FK resolves locally
	err = db.AutoMigrate(
		&model.User{},
		&model.Margin{},
		&model.ExchangeRate{},
		&model.AuditLog{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to auto-migrate models: %w", err)
	}

	log.Println("Database schema is up to date")
	return db, nil
}
