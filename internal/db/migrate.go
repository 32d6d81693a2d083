package db

import (
	"remittance_system/internal/domain" // Importing domain models

	"github.com/sirupsen/logrus"
	"gorm.io/gorm" // GORM ORM library
)

// MigratePlatform creates the tenant registry schema
func MigratePlatform(db *gorm.DB) error {
	if err := db.AutoMigrate(&domain.Client{}); err != nil {
		return err
	}
	logrus.Info("Platform migration completed.")
	return nil
}

// MigrateTenant creates the schema every tenant store needs.
// In single-store mode it runs once against the shared database.
func MigrateTenant(db *gorm.DB) error {
	// AutoMigrate will create tables, missing foreign keys, constraints, columns and indexes
	err := db.AutoMigrate(
		&domain.User{},
		&domain.Beneficiary{},
		&domain.Wallet{},
		&domain.Transaction{},
		&domain.Withdrawal{},
		&domain.SettlementJob{},
	)
	if err != nil {
		return err
	}
	logrus.Info("Tenant migration completed.")
	return nil
}
