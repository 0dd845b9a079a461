package database

import (
	"fmt"
	"time"

	"housing-backend/internal/config"
	"housing-backend/internal/logging"
	"housing-backend/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Init opens the Postgres connection pool and installs it as DB.
func Init(cfg *config.Config) error {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("could not connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("could not get connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	DB = db
	logging.Log.Info("database connected")
	return nil
}

// Migrate creates or updates every table.
func Migrate() error {
	err := DB.AutoMigrate(
		&models.Owner{},
		&models.PlanManager{},
		&models.House{},
		&models.User{},
		&models.Resident{},
		&models.Contact{},
		&models.FundingContract{},
		&models.Claim{},
		&models.Transaction{},
		&models.Supplier{},
		&models.Expense{},
		&models.Automation{},
		&models.AutomationRun{},
		&models.AuditLog{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	// balance bounds cannot be expressed with gorm tags
	if err := DB.Exec(`
		DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM information_schema.table_constraints
				WHERE table_name = 'funding_contracts'
				AND constraint_name = 'chk_funding_contracts_balance'
			) THEN
				ALTER TABLE funding_contracts
				ADD CONSTRAINT chk_funding_contracts_balance
				CHECK (current_balance >= 0 AND current_balance <= original_amount);
			END IF;
		END $$;
	`).Error; err != nil {
		logging.Log.Warn("could not add funding contract balance constraint", zap.Error(err))
	}

	logging.Log.Info("migration complete")
	return nil
}
