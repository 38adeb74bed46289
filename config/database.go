package config

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// OpenDatabase opens a gorm connection, picking the sqlite driver for
// sqlite:// and in-memory URLs and postgres for everything else.
func OpenDatabase(databaseURL string) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		// Surface unique violations as gorm.ErrDuplicatedKey on both drivers
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	}

	if dsn, ok := sqliteDSN(databaseURL); ok {
		db, err := gorm.Open(sqlite.Open(dsn), gormConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		// sqlite allows one writer; a single connection also keeps :memory: databases alive
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database instance: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	}

	db, err := gorm.Open(postgres.Open(databaseURL), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// IsSQLite reports whether the URL selects the sqlite driver
func IsSQLite(databaseURL string) bool {
	_, ok := sqliteDSN(databaseURL)
	return ok
}

func sqliteDSN(databaseURL string) (string, bool) {
	switch {
	case databaseURL == ":memory:":
		return databaseURL, true
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return strings.TrimPrefix(databaseURL, "sqlite://"), true
	case strings.HasPrefix(databaseURL, "file:"):
		return databaseURL, true
	}
	return "", false
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// SetDB sets the database instance (primarily for testing)
func SetDB(db *gorm.DB) {
	DB = db
}
