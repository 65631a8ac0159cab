package documents

import (
	"errors"
	"testing"
	"time"
)

func TestUpsertPresenceRefreshesExistingRow(t *testing.T) {
	service, clock := newTestService(t)
	doc := mustCreateDocument(t, service, "user-1")
	docID := mustDocumentID(t, doc.DocumentID)
	owner := mustUserID(t, "user-1")

	if err := service.UpsertPresence(t.Context(), docID, owner, 3, "#ff0000"); err != nil {
		t.Fatalf("unexpected upsert error: %v", err)
	}
	clock.Advance(5 * time.Second)
	if err := service.UpsertPresence(t.Context(), docID, owner, 42, "#ff0000"); err != nil {
		t.Fatalf("unexpected upsert error: %v", err)
	}

	records, err := service.ListPresence(t.Context(), docID, owner)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one row per user, got %d", len(records))
	}
	if records[0].CursorPosition != 42 {
		t.Fatalf("expected refreshed cursor, got %d", records[0].CursorPosition)
	}
	if !records[0].LastSeenAt.Equal(clock.Now()) {
		t.Fatalf("expected last seen %v, got %v", clock.Now(), records[0].LastSeenAt)
	}
}

func TestListPresenceFiltersStaleRows(t *testing.T) {
	service, clock := newTestService(t)
	doc := mustCreateDocument(t, service, "user-1")
	docID := mustDocumentID(t, doc.DocumentID)
	mustAddEditor(t, service, doc, "user-1", "user-2")

	if err := service.UpsertPresence(t.Context(), docID, mustUserID(t, "user-2"), 0, "#00ff00"); err != nil {
		t.Fatalf("unexpected upsert error: %v", err)
	}
	clock.Advance(25 * time.Second)
	if err := service.UpsertPresence(t.Context(), docID, mustUserID(t, "user-1"), 7, "#ff0000"); err != nil {
		t.Fatalf("unexpected upsert error: %v", err)
	}
	clock.Advance(10 * time.Second)

	// user-2 is now 35s stale and falls outside the 30s window.
	records, err := service.ListPresence(t.Context(), docID, mustUserID(t, "user-1"))
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one fresh row, got %d", len(records))
	}
	if records[0].UserID != "user-1" {
		t.Fatalf("expected fresh user-1 row, got %q", records[0].UserID)
	}
}

func TestPresenceRequiresCollaboratorAccess(t *testing.T) {
	service, _ := newTestService(t)
	doc := mustCreateDocument(t, service, "user-1")
	docID := mustDocumentID(t, doc.DocumentID)

	if err := service.UpsertPresence(t.Context(), docID, mustUserID(t, "stranger"), 0, "#0000ff"); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected access denied, got %v", err)
	}
	if _, err := service.ListPresence(t.Context(), docID, mustUserID(t, "stranger")); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected access denied, got %v", err)
	}
}

func TestDeletePresenceIsBestEffort(t *testing.T) {
	service, _ := newTestService(t)
	doc := mustCreateDocument(t, service, "user-1")
	docID := mustDocumentID(t, doc.DocumentID)
	owner := mustUserID(t, "user-1")

	if err := service.UpsertPresence(t.Context(), docID, owner, 0, "#ff0000"); err != nil {
		t.Fatalf("unexpected upsert error: %v", err)
	}
	if err := service.DeletePresence(t.Context(), docID, owner); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	// Deleting again is a no-op, not an error.
	if err := service.DeletePresence(t.Context(), docID, owner); err != nil {
		t.Fatalf("expected idempotent delete, got %v", err)
	}

	records, err := service.ListPresence(t.Context(), docID, owner)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty presence, got %d rows", len(records))
	}
}
