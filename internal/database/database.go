package database

import (
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"trade-journal-go/internal/config"
	"trade-journal-go/internal/models"
)

// NewDatabase creates a new database connection, sizes the pool and migrates the schema.
func NewDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Database.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(parseLogLevel(cfg.Database.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	if cfg.Database.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	if err := SeedDefaultAccount(db, cfg.Journal.DefaultUser, cfg.Journal.DefaultAccountName); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates or alters the tables for the current models. Existing rows are kept.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}

// SeedDefaultAccount makes sure the user owns a default account, creating one
// named name when the user has no account at all.
func SeedDefaultAccount(db *gorm.DB, userID, name string) error {
	if userID == "" {
		return nil
	}

	var existing models.Account
	err := db.Where("user_id = ?", userID).Order("is_default desc, id").First(&existing).Error
	switch {
	case err == nil:
		if existing.IsDefault {
			return nil
		}
		// The user has accounts but none is default; promote the oldest.
		if err := db.Model(&existing).Update("is_default", true).Error; err != nil {
			return fmt.Errorf("failed to promote default account for '%s': %w", userID, err)
		}
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		account := models.Account{UserID: userID, Name: name, IsDefault: true}
		if err := db.Create(&account).Error; err != nil {
			return fmt.Errorf("failed to seed default account for '%s': %w", userID, err)
		}
		return nil
	default:
		return fmt.Errorf("failed to look up accounts for '%s': %w", userID, err)
	}
}

func parseLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
