package documents

import (
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// testClock is a manually advanced clock shared by a test's service.
type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1700000000, 0).UTC()}
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T) (*Service, *testClock) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
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
	if err := db.AutoMigrate(
		&Document{}, &ContentSnapshot{}, &VersionRecord{},
		&CollaboratorGrant{}, &PresenceRecord{}, &Invitation{}, &Comment{},
	); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	clock := newTestClock()
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      clock.Now,
		IDProvider: NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service, clock
}

func mustUserID(t *testing.T, value string) UserID {
	t.Helper()
	id, err := NewUserID(value)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return id
}

func mustDocumentID(t *testing.T, value string) DocumentID {
	t.Helper()
	id, err := NewDocumentID(value)
	if err != nil {
		t.Fatalf("unexpected document id error: %v", err)
	}
	return id
}

func mustCreateDocument(t *testing.T, service *Service, owner string) Document {
	t.Helper()
	doc, err := service.CreateDocument(t.Context(), CreateDocumentRequest{
		Title:          "Design Notes",
		Kind:           KindRichText,
		OwnerID:        mustUserID(t, owner),
		InitialContent: `{"ops":[{"insert":"\n"}]}`,
	})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	return doc
}

func mustAddEditor(t *testing.T, service *Service, doc Document, owner, target string) {
	t.Helper()
	if _, err := service.AddCollaborator(
		t.Context(),
		mustDocumentID(t, doc.DocumentID),
		mustUserID(t, owner),
		mustUserID(t, target),
		RoleEditor,
		owner,
	); err != nil {
		t.Fatalf("unexpected add collaborator error: %v", err)
	}
}
