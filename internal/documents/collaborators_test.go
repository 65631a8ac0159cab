package documents

import (
	"errors"
	"testing"
)

func TestAddCollaboratorRejectsDuplicatesAndOwner(t *testing.T) {
	service, _ := newTestService(t)
	doc := mustCreateDocument(t, service, "user-1")
	docID := mustDocumentID(t, doc.DocumentID)
	owner := mustUserID(t, "user-1")
	mustAddEditor(t, service, doc, "user-1", "user-2")

	if _, err := service.AddCollaborator(
		t.Context(), docID, owner, mustUserID(t, "user-2"), RoleViewer, "user-1",
	); !errors.Is(err, ErrDuplicateGrant) {
		t.Fatalf("expected duplicate grant error, got %v", err)
	}
	if _, err := service.AddCollaborator(
		t.Context(), docID, owner, owner, RoleEditor, "user-1",
	); !errors.Is(err, ErrDuplicateGrant) {
		t.Fatalf("expected duplicate grant error for owner, got %v", err)
	}
}

func TestAddCollaboratorRequiresManageRights(t *testing.T) {
	service, _ := newTestService(t)
	doc := mustCreateDocument(t, service, "user-1")
	docID := mustDocumentID(t, doc.DocumentID)
	mustAddEditor(t, service, doc, "user-1", "user-2")

	if _, err := service.AddCollaborator(
		t.Context(), docID, mustUserID(t, "user-2"), mustUserID(t, "user-3"), RoleEditor, "user-2",
	); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected access denied for editor, got %v", err)
	}
}

func TestUpdateCollaboratorRoleChangesGrant(t *testing.T) {
	service, _ := newTestService(t)
	doc := mustCreateDocument(t, service, "user-1")
	docID := mustDocumentID(t, doc.DocumentID)
	owner := mustUserID(t, "user-1")
	mustAddEditor(t, service, doc, "user-1", "user-2")

	if err := service.UpdateCollaboratorRole(
		t.Context(), docID, owner, mustUserID(t, "user-2"), RoleViewer,
	); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}

	role, err := service.RoleOf(t.Context(), docID, mustUserID(t, "user-2"))
	if err != nil {
		t.Fatalf("unexpected role error: %v", err)
	}
	if role != RoleViewer {
		t.Fatalf("expected viewer after downgrade, got %q", role)
	}

	if err := service.UpdateCollaboratorRole(
		t.Context(), docID, owner, mustUserID(t, "user-9"), RoleEditor,
	); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for missing grant, got %v", err)
	}
}

func TestRemoveCollaboratorAllowsSelfRemoval(t *testing.T) {
	service, _ := newTestService(t)
	doc := mustCreateDocument(t, service, "user-1")
	docID := mustDocumentID(t, doc.DocumentID)
	mustAddEditor(t, service, doc, "user-1", "user-2")
	mustAddEditor(t, service, doc, "user-1", "user-3")

	// Editors cannot remove each other.
	if err := service.RemoveCollaborator(
		t.Context(), docID, mustUserID(t, "user-2"), mustUserID(t, "user-3"),
	); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected access denied, got %v", err)
	}

	// An editor leaving the document removes their own grant.
	if err := service.RemoveCollaborator(
		t.Context(), docID, mustUserID(t, "user-2"), mustUserID(t, "user-2"),
	); err != nil {
		t.Fatalf("unexpected self-removal error: %v", err)
	}
	if _, err := service.RoleOf(t.Context(), docID, mustUserID(t, "user-2")); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected access revoked, got %v", err)
	}

	// The owner removes the remaining editor.
	if err := service.RemoveCollaborator(
		t.Context(), docID, mustUserID(t, "user-1"), mustUserID(t, "user-3"),
	); err != nil {
		t.Fatalf("unexpected removal error: %v", err)
	}

	grants, err := service.ListCollaborators(t.Context(), docID, mustUserID(t, "user-1"))
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(grants) != 0 {
		t.Fatalf("expected no grants left, got %d", len(grants))
	}
}
