package repository

import (
	"fmt"
	"time"

	"altitude-recorder/internal/logger"
	"altitude-recorder/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open opens a gorm database for the named driver ("sqlite" or "postgres")
// and migrates the track_points table.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, err
	}
	if err := bootstrap(db); err != nil {
		return nil, err
	}
	return db, nil
}

// ConnectWithRetry calls Open until it succeeds or attempts run out.
func ConnectWithRetry(driver, dsn string, attempts int, delay time.Duration) (*gorm.DB, error) {
	var lastErr error
	for i := 1; i <= attempts; i++ {
		db, err := Open(driver, dsn)
		if err == nil {
			return db, nil
		}

		lastErr = err
		logger.Warn("db connect failed", "driver", driver, "attempt", i, "error", err)
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("db connect failed after %d attempts: %w", attempts, lastErr)
}

func bootstrap(db *gorm.DB) error {
	return db.AutoMigrate(&models.TrackPoint{})
}
