package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/inkwell-labs/inkwell/backend/internal/documents"
	"github.com/inkwell-labs/inkwell/backend/internal/users"
)

// appliedMigration records one completed schema migration.
type appliedMigration struct {
	Name      string    `gorm:"column:name;primaryKey;size:190"`
	AppliedAt time.Time `gorm:"column:applied_at;not null"`
}

func (appliedMigration) TableName() string {
	return "schema_migrations"
}

// Migration is a named, once-only schema change.
type Migration struct {
	Name string
	Run  func(db *gorm.DB) error
}

// Migrations returns the ordered registry. Append only; never reorder
// or rename entries that have shipped.
func Migrations() []Migration {
	return []Migration{
		{
			Name: "create_core_tables",
			Run: func(db *gorm.DB) error {
				return db.AutoMigrate(
					&users.Profile{},
					&documents.Document{},
					&documents.ContentSnapshot{},
					&documents.VersionRecord{},
					&documents.CollaboratorGrant{},
					&documents.PresenceRecord{},
					&documents.Invitation{},
					&documents.Comment{},
				)
			},
		},
		{
			Name: "backfill_content_revisions",
			Run: func(db *gorm.DB) error {
				// Rows written before revisions existed carry zero; the
				// optimistic-concurrency check needs them at one.
				return db.Model(&documents.ContentSnapshot{}).
					Where("revision IS NULL OR revision < 1").
					Update("revision", 1).Error
			},
		},
		{
			Name: "backfill_invitation_status",
			Run: func(db *gorm.DB) error {
				return db.Model(&documents.Invitation{}).
					Where("status IS NULL OR status = ''").
					Update("status", documents.InvitationPending).Error
			},
		},
	}
}

// Migrate applies every pending migration in order.
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&appliedMigration{}); err != nil {
		return fmt.Errorf("database: prepare migration table: %w", err)
	}

	for _, migration := range Migrations() {
		var count int64
		if err := db.Model(&appliedMigration{}).
			Where("name = ?", migration.Name).
			Count(&count).Error; err != nil {
			return fmt.Errorf("database: check migration %s: %w", migration.Name, err)
		}
		if count > 0 {
			continue
		}

		logger.Info("database.migration_apply", zap.String("name", migration.Name))
		if err := migration.Run(db); err != nil {
			return fmt.Errorf("database: apply migration %s: %w", migration.Name, err)
		}
		if err := db.Create(&appliedMigration{Name: migration.Name, AppliedAt: time.Now().UTC()}).Error; err != nil {
			return fmt.Errorf("database: record migration %s: %w", migration.Name, err)
		}
	}
	return nil
}
