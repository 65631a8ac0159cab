package documents

import (
	"errors"
	"testing"
)

func TestCreateDocumentSeedsInitialSnapshot(t *testing.T) {
	service, _ := newTestService(t)

	doc := mustCreateDocument(t, service, "user-1")
	if doc.Title != "Design Notes" {
		t.Fatalf("unexpected title %q", doc.Title)
	}
	if doc.Kind != KindRichText {
		t.Fatalf("unexpected kind %q", doc.Kind)
	}

	snapshot, err := service.FetchContent(t.Context(), mustDocumentID(t, doc.DocumentID), mustUserID(t, "user-1"))
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if snapshot.Revision != 1 {
		t.Fatalf("expected initial revision 1, got %d", snapshot.Revision)
	}
	if snapshot.Content != `{"ops":[{"insert":"\n"}]}` {
		t.Fatalf("unexpected initial content %q", snapshot.Content)
	}
}

func TestCreateDocumentRejectsBlankTitle(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.CreateDocument(t.Context(), CreateDocumentRequest{
		Title:   "   ",
		Kind:    KindCode,
		OwnerID: mustUserID(t, "user-1"),
	})
	if !errors.Is(err, ErrInvalidTitle) {
		t.Fatalf("expected invalid title error, got %v", err)
	}
}

func TestGetDocumentDeniesStrangers(t *testing.T) {
	service, _ := newTestService(t)
	doc := mustCreateDocument(t, service, "user-1")

	_, _, err := service.GetDocument(t.Context(), mustDocumentID(t, doc.DocumentID), mustUserID(t, "user-2"))
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected access denied, got %v", err)
	}
}

func TestRoleOfResolvesImplicitOwnerAndGrants(t *testing.T) {
	service, _ := newTestService(t)
	doc := mustCreateDocument(t, service, "user-1")
	mustAddEditor(t, service, doc, "user-1", "user-2")

	role, err := service.RoleOf(t.Context(), mustDocumentID(t, doc.DocumentID), mustUserID(t, "user-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if role != RoleOwner {
		t.Fatalf("expected implicit owner, got %q", role)
	}

	role, err = service.RoleOf(t.Context(), mustDocumentID(t, doc.DocumentID), mustUserID(t, "user-2"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if role != RoleEditor {
		t.Fatalf("expected editor grant, got %q", role)
	}
}

func TestListOwnedAndSharedDocuments(t *testing.T) {
	service, _ := newTestService(t)
	doc := mustCreateDocument(t, service, "user-1")
	mustAddEditor(t, service, doc, "user-1", "user-2")

	owned, err := service.ListOwnedDocuments(t.Context(), mustUserID(t, "user-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(owned) != 1 || owned[0].AccessRole != RoleOwner {
		t.Fatalf("unexpected owned listing: %+v", owned)
	}
	if owned[0].CollaboratorCount != 1 {
		t.Fatalf("expected one collaborator, got %d", owned[0].CollaboratorCount)
	}

	shared, err := service.ListSharedDocuments(t.Context(), mustUserID(t, "user-2"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(shared) != 1 || shared[0].AccessRole != RoleEditor {
		t.Fatalf("unexpected shared listing: %+v", shared)
	}
	if shared[0].Document.DocumentID != doc.DocumentID {
		t.Fatalf("unexpected shared document: %+v", shared[0].Document)
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	service, _ := newTestService(t)
	doc := mustCreateDocument(t, service, "user-1")
	docID := mustDocumentID(t, doc.DocumentID)
	owner := mustUserID(t, "user-1")
	mustAddEditor(t, service, doc, "user-1", "user-2")

	if _, err := service.CreateVersion(t.Context(), docID, owner, "v1 content"); err != nil {
		t.Fatalf("unexpected version error: %v", err)
	}
	if err := service.UpsertPresence(t.Context(), docID, owner, 3, "#ff0000"); err != nil {
		t.Fatalf("unexpected presence error: %v", err)
	}

	if err := service.DeleteDocument(t.Context(), docID, owner); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}

	if _, _, err := service.GetDocument(t.Context(), docID, owner); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestDeleteDocumentRequiresOwner(t *testing.T) {
	service, _ := newTestService(t)
	doc := mustCreateDocument(t, service, "user-1")
	mustAddEditor(t, service, doc, "user-1", "user-2")

	err := service.DeleteDocument(t.Context(), mustDocumentID(t, doc.DocumentID), mustUserID(t, "user-2"))
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected access denied, got %v", err)
	}
}
