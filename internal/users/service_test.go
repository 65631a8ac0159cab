package users

import (
	"context"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access pool: %v", err)
	}
	// The in-memory database lives and dies with its connection.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	if err := db.AutoMigrate(&Profile{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock:    func() time.Time { return time.Unix(1700000000, 0).UTC() },
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func TestEnsureCreatesProfileOnFirstSight(t *testing.T) {
	service := newTestService(t)

	profile, err := service.Ensure(context.Background(), ProfileInput{
		UserID:   "user-1",
		Username: "ada",
		Email:    "ada@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if profile.Role != AccountRoleUser {
		t.Fatalf("expected default role user, got %q", profile.Role)
	}

	stored, err := service.Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if stored.Username != "ada" || stored.Email != "ada@example.com" {
		t.Fatalf("unexpected stored profile: %+v", stored)
	}
}

func TestEnsureRefreshesMutableAttributes(t *testing.T) {
	service := newTestService(t)

	if _, err := service.Ensure(context.Background(), ProfileInput{UserID: "user-1", Username: "ada"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	updated, err := service.Ensure(context.Background(), ProfileInput{UserID: "user-1", Username: "ada.l", AvatarURL: "https://img/a.png"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Username != "ada.l" {
		t.Fatalf("expected username refresh, got %q", updated.Username)
	}
	if updated.AvatarURL != "https://img/a.png" {
		t.Fatalf("expected avatar refresh, got %q", updated.AvatarURL)
	}
}

func TestEnsureRejectsEmptyIdentifier(t *testing.T) {
	service := newTestService(t)
	if _, err := service.Ensure(context.Background(), ProfileInput{UserID: "   "}); err == nil {
		t.Fatal("expected invalid profile error")
	}
}

func TestExists(t *testing.T) {
	service := newTestService(t)

	ok, err := service.Exists(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected profile to be absent")
	}

	if _, err := service.Ensure(context.Background(), ProfileInput{UserID: "user-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ok, err = service.Exists(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected profile to exist")
	}
}
