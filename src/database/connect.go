package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"signalbridge/src/model"
)

// MainDB is the primary database connection used by the gorm-backed
// registries. It stays nil when DB_DRIVER=memory.
var MainDB *gorm.DB

// InitMainDB opens the configured database and runs migrations. Call once at
// application startup; a "memory" driver is a no-op.
func InitMainDB() error {
	config := GetConfig()
	if config.Driver == "memory" {
		logrus.Info("[database] memory driver selected, skipping database connection")
		return nil
	}

	var dialector gorm.Dialector
	switch config.Driver {
	case "postgres":
		dialector = postgres.Open(config.DatabaseURL)
	case "sqlite":
		dialector = sqlite.Open(config.SQLitePath)
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", config.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB from GORM: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	MainDB = db
	logrus.Info("[database] MainDB connection established")

	if err := MainDB.AutoMigrate(
		&model.Strategy{},
		&model.Subscriber{},
		&model.Position{},
		&model.WebhookRegistration{},
	); err != nil {
		return fmt.Errorf("failed to run migrations on MainDB: %w", err)
	}

	logrus.Info("[database] MainDB migrations completed")
	return nil
}
