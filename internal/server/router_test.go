package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/inkwell-labs/inkwell/backend/internal/auth"
	"github.com/inkwell-labs/inkwell/backend/internal/database"
	"github.com/inkwell-labs/inkwell/backend/internal/documents"
	"github.com/inkwell-labs/inkwell/backend/internal/users"
)

const testBootstrapSecret = "bootstrap-secret-test"

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	db, err := database.Open("file::memory:")
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	if err := database.Migrate(db, nil); err != nil {
		t.Fatalf("unexpected migrate error: %v", err)
	}

	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("unexpected user service error: %v", err)
	}
	documentService, err := documents.NewService(documents.ServiceConfig{
		Database:   db,
		IDProvider: documents.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("unexpected document service error: %v", err)
	}

	engine, err := NewRouter(RouterConfig{
		Documents:       documentService,
		Users:           userService,
		TokenIssuer:     auth.NewTokenIssuer(auth.TokenIssuerConfig{SigningSecret: []byte("test-signing-secret"), Issuer: "inkwell-auth", Audience: "inkwell-api"}),
		BootstrapSecret: testBootstrapSecret,
	})
	if err != nil {
		t.Fatalf("unexpected router error: %v", err)
	}
	return engine
}

func doJSON(t *testing.T, engine *gin.Engine, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("unexpected marshal error: %v", err)
		}
		body = bytes.NewReader(encoded)
	} else {
		body = bytes.NewReader(nil)
	}

	request := httptest.NewRequest(method, path, body)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), out); err != nil {
		t.Fatalf("unexpected decode error: %v (body %s)", err, recorder.Body.String())
	}
}

func mintToken(t *testing.T, engine *gin.Engine, userID string) string {
	t.Helper()
	encoded, err := json.Marshal(map[string]string{
		"user_id":  userID,
		"email":    userID + "@example.com",
		"username": userID,
	})
	if err != nil {
		t.Fatalf("unexpected marshal error: %v", err)
	}
	request := httptest.NewRequest(http.MethodPost, "/auth/token", bytes.NewReader(encoded))
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set(bootstrapSecretHeader, testBootstrapSecret)
	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected token mint to succeed, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var response struct {
		Token string `json:"token"`
	}
	decodeBody(t, recorder, &response)
	return response.Token
}

func createTestDocument(t *testing.T, engine *gin.Engine, token, kind string) string {
	t.Helper()
	recorder := doJSON(t, engine, http.MethodPost, "/api/documents", token, map[string]string{
		"title": "Launch Plan",
		"kind":  kind,
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var doc struct {
		DocumentID string `json:"document_id"`
	}
	decodeBody(t, recorder, &doc)
	return doc.DocumentID
}

func TestIssueTokenRejectsWrongBootstrapSecret(t *testing.T) {
	engine := newTestEngine(t)

	request := httptest.NewRequest(http.MethodPost, "/auth/token",
		bytes.NewReader([]byte(`{"user_id":"user-1"}`)))
	request.Header.Set(bootstrapSecretHeader, "wrong")
	recorder := httptest.NewRecorder()
	engine.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestRequestsWithoutBearerTokenAreRejected(t *testing.T) {
	engine := newTestEngine(t)

	recorder := doJSON(t, engine, http.MethodGet, "/api/documents", "", nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestDocumentLifecycleOverHTTP(t *testing.T) {
	engine := newTestEngine(t)
	token := mintToken(t, engine, "user-1")

	docID := createTestDocument(t, engine, token, "code")

	recorder := doJSON(t, engine, http.MethodGet, "/api/documents/"+docID, token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var doc struct {
		Title      string `json:"title"`
		Kind       string `json:"kind"`
		AccessRole string `json:"access_role"`
	}
	decodeBody(t, recorder, &doc)
	if doc.Title != "Launch Plan" || doc.Kind != "code" || doc.AccessRole != "owner" {
		t.Fatalf("unexpected document payload: %+v", doc)
	}

	recorder = doJSON(t, engine, http.MethodPatch, "/api/documents/"+docID, token, map[string]string{"title": "Renamed Plan"})
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = doJSON(t, engine, http.MethodGet, "/api/documents", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var listed []struct {
		Title string `json:"title"`
	}
	decodeBody(t, recorder, &listed)
	if len(listed) != 1 || listed[0].Title != "Renamed Plan" {
		t.Fatalf("unexpected listing: %+v", listed)
	}

	recorder = doJSON(t, engine, http.MethodDelete, "/api/documents/"+docID, token, nil)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
	recorder = doJSON(t, engine, http.MethodGet, "/api/documents/"+docID, token, nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", recorder.Code)
	}
}

func TestSaveContentStaleBaseRevisionAnswers409(t *testing.T) {
	engine := newTestEngine(t)
	ownerToken := mintToken(t, engine, "user-1")
	editorToken := mintToken(t, engine, "user-2")

	docID := createTestDocument(t, engine, ownerToken, "code")
	recorder := doJSON(t, engine, http.MethodPost, "/api/documents/"+docID+"/collaborators", ownerToken,
		map[string]string{"user_id": "user-2", "role": "editor"})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = doJSON(t, engine, http.MethodPut, "/api/documents/"+docID+"/content", ownerToken,
		map[string]any{"content": "owner wins", "base_revision": 1})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var saved struct {
		Revision int64 `json:"revision"`
	}
	decodeBody(t, recorder, &saved)
	if saved.Revision != 2 {
		t.Fatalf("expected revision 2, got %d", saved.Revision)
	}

	recorder = doJSON(t, engine, http.MethodPut, "/api/documents/"+docID+"/content", editorToken,
		map[string]any{"content": "editor loses", "base_revision": 1})
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var conflict struct {
		Error    string `json:"error"`
		Content  string `json:"content"`
		Revision int64  `json:"revision"`
	}
	decodeBody(t, recorder, &conflict)
	if conflict.Error != "stale_revision" || conflict.Content != "owner wins" || conflict.Revision != 2 {
		t.Fatalf("unexpected conflict payload: %+v", conflict)
	}
}

func TestViewersGet403OnWrites(t *testing.T) {
	engine := newTestEngine(t)
	ownerToken := mintToken(t, engine, "user-1")
	viewerToken := mintToken(t, engine, "viewer-1")

	docID := createTestDocument(t, engine, ownerToken, "rich_text")
	recorder := doJSON(t, engine, http.MethodPost, "/api/documents/"+docID+"/collaborators", ownerToken,
		map[string]string{"user_id": "viewer-1", "role": "viewer"})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", recorder.Code)
	}

	recorder = doJSON(t, engine, http.MethodPut, "/api/documents/"+docID+"/content", viewerToken,
		map[string]any{"content": `{"ops":[{"insert":"x\n"}]}`, "base_revision": 1})
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", recorder.Code)
	}

	recorder = doJSON(t, engine, http.MethodGet, "/api/documents/"+docID+"/content", viewerToken, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("viewers must still read, got %d", recorder.Code)
	}
}

func TestAddingCollaboratorWithoutProfileAnswers404(t *testing.T) {
	engine := newTestEngine(t)
	ownerToken := mintToken(t, engine, "user-1")
	docID := createTestDocument(t, engine, ownerToken, "code")

	recorder := doJSON(t, engine, http.MethodPost, "/api/documents/"+docID+"/collaborators", ownerToken,
		map[string]string{"user_id": "never-seen", "role": "editor"})
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown user, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var payload struct {
		Error string `json:"error"`
	}
	decodeBody(t, recorder, &payload)
	if payload.Error != "unknown_user" {
		t.Fatalf("unexpected error code %q", payload.Error)
	}
}

func TestInvitationAcceptFlowOverHTTP(t *testing.T) {
	engine := newTestEngine(t)
	ownerToken := mintToken(t, engine, "user-1")
	inviteeToken := mintToken(t, engine, "user-2")

	docID := createTestDocument(t, engine, ownerToken, "code")
	recorder := doJSON(t, engine, http.MethodPost, "/api/documents/"+docID+"/invitations", ownerToken,
		map[string]any{"role": "editor", "max_uses": 1})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var invitation struct {
		Token string `json:"token"`
	}
	decodeBody(t, recorder, &invitation)

	recorder = doJSON(t, engine, http.MethodPost, "/api/invitations/"+invitation.Token+"/accept", inviteeToken, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var grant struct {
		UserID string `json:"user_id"`
		Role   string `json:"role"`
	}
	decodeBody(t, recorder, &grant)
	if grant.UserID != "user-2" || grant.Role != "editor" {
		t.Fatalf("unexpected grant: %+v", grant)
	}

	// The single-use budget is spent.
	thirdToken := mintToken(t, engine, "user-3")
	recorder = doJSON(t, engine, http.MethodPost, "/api/invitations/"+invitation.Token+"/accept", thirdToken, nil)
	if recorder.Code != http.StatusGone {
		t.Fatalf("expected 410 for exhausted invitation, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestPresenceRoundTripOverHTTP(t *testing.T) {
	engine := newTestEngine(t)
	token := mintToken(t, engine, "user-1")
	docID := createTestDocument(t, engine, token, "code")

	recorder := doJSON(t, engine, http.MethodPut, "/api/documents/"+docID+"/presence", token,
		map[string]any{"cursor_position": 12, "color": "#aabbcc"})
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = doJSON(t, engine, http.MethodGet, "/api/documents/"+docID+"/presence", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var records []struct {
		UserID         string `json:"user_id"`
		CursorPosition int64  `json:"cursor_position"`
	}
	decodeBody(t, recorder, &records)
	if len(records) != 1 || records[0].UserID != "user-1" || records[0].CursorPosition != 12 {
		t.Fatalf("unexpected presence: %+v", records)
	}

	recorder = doJSON(t, engine, http.MethodDelete, fmt.Sprintf("/api/documents/%s/presence", docID), token, nil)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
}
