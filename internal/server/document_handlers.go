package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/inkwell-labs/inkwell/backend/internal/documents"
)

type createDocumentRequest struct {
	Title    string `json:"title" binding:"required"`
	Kind     string `json:"kind" binding:"required"`
	Language string `json:"language"`
	Content  string `json:"content"`
}

func (r *Router) createDocument(c *gin.Context) {
	userID, ok := r.actingUser(c)
	if !ok {
		return
	}
	var req createDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	kind, err := documents.ParseKind(req.Kind)
	if err != nil {
		r.respondError(c, err)
		return
	}

	doc, err := r.documents.CreateDocument(c.Request.Context(), documents.CreateDocumentRequest{
		Title:          req.Title,
		Kind:           kind,
		Language:       req.Language,
		OwnerID:        userID,
		InitialContent: req.Content,
	})
	if err != nil {
		r.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toDocumentResponse(doc, documents.RoleOwner, 0))
}

func (r *Router) listOwnedDocuments(c *gin.Context) {
	userID, ok := r.actingUser(c)
	if !ok {
		return
	}
	listed, err := r.documents.ListOwnedDocuments(c.Request.Context(), userID)
	if err != nil {
		r.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDocumentListResponse(listed))
}

func (r *Router) listSharedDocuments(c *gin.Context) {
	userID, ok := r.actingUser(c)
	if !ok {
		return
	}
	listed, err := r.documents.ListSharedDocuments(c.Request.Context(), userID)
	if err != nil {
		r.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDocumentListResponse(listed))
}

func toDocumentListResponse(listed []documents.DocumentWithAccess) []documentResponse {
	responses := make([]documentResponse, 0, len(listed))
	for _, entry := range listed {
		responses = append(responses, toDocumentResponse(entry.Document, entry.AccessRole, entry.CollaboratorCount))
	}
	return responses
}

func (r *Router) getDocument(c *gin.Context) {
	userID, ok := r.actingUser(c)
	if !ok {
		return
	}
	documentID, ok := r.pathDocumentID(c)
	if !ok {
		return
	}
	doc, role, err := r.documents.GetDocument(c.Request.Context(), documentID, userID)
	if err != nil {
		r.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDocumentResponse(doc, role, 0))
}

type renameDocumentRequest struct {
	Title string `json:"title" binding:"required"`
}

func (r *Router) renameDocument(c *gin.Context) {
	userID, ok := r.actingUser(c)
	if !ok {
		return
	}
	documentID, ok := r.pathDocumentID(c)
	if !ok {
		return
	}
	var req renameDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if err := r.documents.RenameDocument(c.Request.Context(), documentID, userID, req.Title); err != nil {
		r.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) deleteDocument(c *gin.Context) {
	userID, ok := r.actingUser(c)
	if !ok {
		return
	}
	documentID, ok := r.pathDocumentID(c)
	if !ok {
		return
	}
	if err := r.documents.DeleteDocument(c.Request.Context(), documentID, userID); err != nil {
		r.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) fetchContent(c *gin.Context) {
	userID, ok := r.actingUser(c)
	if !ok {
		return
	}
	documentID, ok := r.pathDocumentID(c)
	if !ok {
		return
	}
	snapshot, err := r.documents.FetchContent(c.Request.Context(), documentID, userID)
	if err != nil {
		r.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSnapshotResponse(snapshot))
}

type saveContentRequest struct {
	Content      string `json:"content"`
	BaseRevision int64  `json:"base_revision" binding:"required"`
}

// saveContent applies a full-content save. A stale base revision
// answers 409 with the current snapshot so the editor can reconcile
// without a second round trip.
func (r *Router) saveContent(c *gin.Context) {
	userID, ok := r.actingUser(c)
	if !ok {
		return
	}
	documentID, ok := r.pathDocumentID(c)
	if !ok {
		return
	}
	var req saveContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	outcome, err := r.documents.SaveContent(c.Request.Context(), documents.SaveContentRequest{
		DocumentID:   documentID,
		EditorUserID: userID,
		Content:      req.Content,
		BaseRevision: req.BaseRevision,
	})
	r.respondSaveOutcome(c, documentID, userID, outcome, err)
}

func (r *Router) respondSaveOutcome(c *gin.Context, documentID documents.DocumentID, userID documents.UserID, outcome documents.SaveOutcome, err error) {
	if errors.Is(err, documents.ErrStaleRevision) {
		c.JSON(http.StatusConflict, gin.H{
			"error":    "stale_revision",
			"content":  outcome.Snapshot.Content,
			"revision": outcome.Snapshot.Revision,
		})
		return
	}
	if err != nil {
		r.respondError(c, err)
		return
	}

	r.events.Publish(DocumentEvent{
		DocumentID: documentID.String(),
		Revision:   outcome.Snapshot.Revision,
		UpdatedBy:  userID.String(),
		UpdatedAt:  outcome.Snapshot.UpdatedAt,
	})
	c.JSON(http.StatusOK, toSnapshotResponse(outcome.Snapshot))
}

type createVersionRequest struct {
	Content string `json:"content" binding:"required"`
}

func (r *Router) createVersion(c *gin.Context) {
	userID, ok := r.actingUser(c)
	if !ok {
		return
	}
	documentID, ok := r.pathDocumentID(c)
	if !ok {
		return
	}
	var req createVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	record, err := r.documents.CreateVersion(c.Request.Context(), documentID, userID, req.Content)
	if err != nil {
		r.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toVersionResponse(record))
}

func (r *Router) listVersions(c *gin.Context) {
	userID, ok := r.actingUser(c)
	if !ok {
		return
	}
	documentID, ok := r.pathDocumentID(c)
	if !ok {
		return
	}
	records, err := r.documents.ListVersions(c.Request.Context(), documentID, userID)
	if err != nil {
		r.respondError(c, err)
		return
	}
	responses := make([]versionResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, toVersionResponse(record))
	}
	c.JSON(http.StatusOK, responses)
}

type restoreVersionRequest struct {
	BaseRevision int64 `json:"base_revision" binding:"required"`
}

func (r *Router) restoreVersion(c *gin.Context) {
	userID, ok := r.actingUser(c)
	if !ok {
		return
	}
	documentID, ok := r.pathDocumentID(c)
	if !ok {
		return
	}
	number, err := strconv.ParseInt(c.Param("number"), 10, 64)
	if err != nil || number < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_version_number"})
		return
	}
	var req restoreVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	outcome, err := r.documents.RestoreVersion(c.Request.Context(), documentID, userID, number, req.BaseRevision)
	r.respondSaveOutcome(c, documentID, userID, outcome, err)
}
