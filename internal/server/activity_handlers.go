package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/inkwell-labs/inkwell/backend/internal/documents"
)

type presenceRequest struct {
	CursorPosition int64  `json:"cursor_position"`
	Color          string `json:"color"`
}

func (r *Router) upsertPresence(c *gin.Context) {
	userID, ok := r.actingUser(c)
	if !ok {
		return
	}
	documentID, ok := r.pathDocumentID(c)
	if !ok {
		return
	}
	var req presenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if err := r.documents.UpsertPresence(c.Request.Context(), documentID, userID, req.CursorPosition, req.Color); err != nil {
		r.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type presenceResponse struct {
	UserID         string    `json:"user_id"`
	CursorPosition int64     `json:"cursor_position"`
	Color          string    `json:"color,omitempty"`
	LastSeenAt     time.Time `json:"last_seen_at"`
}

func (r *Router) listPresence(c *gin.Context) {
	userID, ok := r.actingUser(c)
	if !ok {
		return
	}
	documentID, ok := r.pathDocumentID(c)
	if !ok {
		return
	}
	records, err := r.documents.ListPresence(c.Request.Context(), documentID, userID)
	if err != nil {
		r.respondError(c, err)
		return
	}
	responses := make([]presenceResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, presenceResponse{
			UserID:         record.UserID,
			CursorPosition: record.CursorPosition,
			Color:          record.Color,
			LastSeenAt:     record.LastSeenAt,
		})
	}
	c.JSON(http.StatusOK, responses)
}

func (r *Router) deletePresence(c *gin.Context) {
	userID, ok := r.actingUser(c)
	if !ok {
		return
	}
	documentID, ok := r.pathDocumentID(c)
	if !ok {
		return
	}
	if err := r.documents.DeletePresence(c.Request.Context(), documentID, userID); err != nil {
		r.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type commentThreadResponse struct {
	Root    commentResponse   `json:"root"`
	Replies []commentResponse `json:"replies,omitempty"`
}

func (r *Router) listComments(c *gin.Context) {
	userID, ok := r.actingUser(c)
	if !ok {
		return
	}
	documentID, ok := r.pathDocumentID(c)
	if !ok {
		return
	}
	threads, err := r.documents.ListCommentThreads(c.Request.Context(), documentID, userID)
	if err != nil {
		r.respondError(c, err)
		return
	}
	responses := make([]commentThreadResponse, 0, len(threads))
	for _, thread := range threads {
		replies := make([]commentResponse, 0, len(thread.Replies))
		for _, reply := range thread.Replies {
			replies = append(replies, toCommentResponse(reply))
		}
		responses = append(responses, commentThreadResponse{Root: toCommentResponse(thread.Root), Replies: replies})
	}
	c.JSON(http.StatusOK, responses)
}

type createCommentRequest struct {
	Body        string `json:"body" binding:"required"`
	AnchorStart *int64 `json:"anchor_start"`
	AnchorEnd   *int64 `json:"anchor_end"`
	LineNumber  *int64 `json:"line_number"`
	ParentID    string `json:"parent_id"`
}

func (r *Router) createComment(c *gin.Context) {
	userID, ok := r.actingUser(c)
	if !ok {
		return
	}
	documentID, ok := r.pathDocumentID(c)
	if !ok {
		return
	}
	var req createCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	comment, err := r.documents.CreateComment(c.Request.Context(), documents.CreateCommentRequest{
		DocumentID:  documentID,
		UserID:      userID,
		Body:        req.Body,
		AnchorStart: req.AnchorStart,
		AnchorEnd:   req.AnchorEnd,
		LineNumber:  req.LineNumber,
		ParentID:    req.ParentID,
	})
	if err != nil {
		r.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toCommentResponse(comment))
}

type updateCommentRequest struct {
	Body string `json:"body" binding:"required"`
}

func (r *Router) updateComment(c *gin.Context) {
	userID, ok := r.actingUser(c)
	if !ok {
		return
	}
	var req updateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if err := r.documents.UpdateComment(c.Request.Context(), c.Param("commentID"), userID, req.Body); err != nil {
		r.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type resolveCommentRequest struct {
	Resolved *bool `json:"resolved" binding:"required"`
}

func (r *Router) setCommentResolved(c *gin.Context) {
	userID, ok := r.actingUser(c)
	if !ok {
		return
	}
	var req resolveCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if err := r.documents.SetCommentResolved(c.Request.Context(), c.Param("commentID"), userID, *req.Resolved); err != nil {
		r.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) deleteComment(c *gin.Context) {
	userID, ok := r.actingUser(c)
	if !ok {
		return
	}
	if err := r.documents.DeleteComment(c.Request.Context(), c.Param("commentID"), userID); err != nil {
		r.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// streamDocumentEvents serves the change feed as server-sent events.
// The stream complements the poll; clients that miss events still
// converge on the next poll cycle.
func (r *Router) streamDocumentEvents(c *gin.Context) {
	userID, ok := r.actingUser(c)
	if !ok {
		return
	}
	documentID, ok := r.pathDocumentID(c)
	if !ok {
		return
	}
	if _, err := r.documents.RoleOf(c.Request.Context(), documentID, userID); err != nil {
		r.respondError(c, err)
		return
	}

	events, cancel := r.events.Subscribe(documentID.String())
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(_ io.Writer) bool {
		select {
		case event, open := <-events:
			if !open {
				return false
			}
			c.SSEvent("document_changed", event)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
