package documents

import (
	"errors"
	"fmt"
	"testing"
)

func TestCreateVersionAssignsSequentialNumbers(t *testing.T) {
	service, _ := newTestService(t)
	doc := mustCreateDocument(t, service, "user-1")
	docID := mustDocumentID(t, doc.DocumentID)
	owner := mustUserID(t, "user-1")
	mustAddEditor(t, service, doc, "user-1", "user-2")

	first, err := service.CreateVersion(t.Context(), docID, owner, "rev one")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Number != 1 {
		t.Fatalf("expected version 1, got %d", first.Number)
	}

	// A different session's snapshotter gets the next number, not a duplicate.
	second, err := service.CreateVersion(t.Context(), docID, mustUserID(t, "user-2"), "rev two")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Number != 2 {
		t.Fatalf("expected version 2, got %d", second.Number)
	}
}

func TestCreateVersionRejectsViewers(t *testing.T) {
	service, _ := newTestService(t)
	doc := mustCreateDocument(t, service, "user-1")
	docID := mustDocumentID(t, doc.DocumentID)

	if _, err := service.AddCollaborator(
		t.Context(), docID, mustUserID(t, "user-1"), mustUserID(t, "viewer-1"), RoleViewer, "user-1",
	); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}

	_, err := service.CreateVersion(t.Context(), docID, mustUserID(t, "viewer-1"), "nope")
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected access denied, got %v", err)
	}
}

func TestListVersionsNewestFirstWithLimit(t *testing.T) {
	service, _ := newTestService(t)
	doc := mustCreateDocument(t, service, "user-1")
	docID := mustDocumentID(t, doc.DocumentID)
	owner := mustUserID(t, "user-1")

	for i := 0; i < 3; i++ {
		if _, err := service.CreateVersion(t.Context(), docID, owner, fmt.Sprintf("content %d", i)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	versions, err := service.ListVersions(t.Context(), docID, owner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(versions))
	}
	for i, version := range versions {
		if want := int64(3 - i); version.Number != want {
			t.Fatalf("expected descending order, got number %d at index %d", version.Number, i)
		}
	}
}
