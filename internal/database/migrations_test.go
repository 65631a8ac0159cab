package database

import (
	"testing"

	"github.com/inkwell-labs/inkwell/backend/internal/documents"
)

func TestMigrateAppliesRegistryOnce(t *testing.T) {
	db, err := Open("file::memory:")
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}

	if err := Migrate(db, nil); err != nil {
		t.Fatalf("unexpected migrate error: %v", err)
	}
	// A second run sees every migration recorded and does nothing.
	if err := Migrate(db, nil); err != nil {
		t.Fatalf("expected idempotent migrate, got %v", err)
	}

	var applied int64
	if err := db.Model(&appliedMigration{}).Count(&applied).Error; err != nil {
		t.Fatalf("unexpected count error: %v", err)
	}
	if want := int64(len(Migrations())); applied != want {
		t.Fatalf("expected %d applied migrations, got %d", want, applied)
	}

	if !db.Migrator().HasTable(&documents.Document{}) {
		t.Fatal("expected documents table after migration")
	}
	if !db.Migrator().HasTable(&documents.ContentSnapshot{}) {
		t.Fatal("expected content table after migration")
	}
}

func TestMigrateBackfillsLegacyRows(t *testing.T) {
	db, err := Open("file::memory:")
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	if err := Migrations()[0].Run(db); err != nil {
		t.Fatalf("unexpected schema error: %v", err)
	}

	legacy := documents.ContentSnapshot{DocumentID: "doc-legacy", Content: "old", Revision: 0}
	if err := db.Create(&legacy).Error; err != nil {
		t.Fatalf("unexpected insert error: %v", err)
	}
	if err := db.Model(&documents.ContentSnapshot{}).
		Where("document_id = ?", "doc-legacy").
		Update("revision", 0).Error; err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}

	if err := Migrate(db, nil); err != nil {
		t.Fatalf("unexpected migrate error: %v", err)
	}

	var snapshot documents.ContentSnapshot
	if err := db.Where("document_id = ?", "doc-legacy").Take(&snapshot).Error; err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if snapshot.Revision != 1 {
		t.Fatalf("expected backfilled revision 1, got %d", snapshot.Revision)
	}
}
