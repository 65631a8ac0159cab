// Package database owns the SQLite connection and schema migrations.
package database

import (
	"fmt"
	"strings"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open establishes the SQLite connection. File-backed databases get WAL
// journaling and a busy timeout so concurrent save and poll requests
// queue instead of failing.
func Open(path string) (*gorm.DB, error) {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		return nil, fmt.Errorf("database: path is required")
	}
	if !strings.Contains(dsn, "memory") && !strings.Contains(dsn, "?") {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", path, err)
	}

	// An in-memory database lives and dies with its connection; pin the
	// pool to one so it survives the whole process.
	if strings.Contains(dsn, "memory") {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("database: access pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	}
	return db, nil
}
