package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/inkwell-labs/inkwell/backend/internal/documents"
)

type collaboratorResponse struct {
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	InvitedBy string    `json:"invited_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toCollaboratorResponse(grant documents.CollaboratorGrant) collaboratorResponse {
	return collaboratorResponse{
		UserID:    grant.UserID,
		Role:      string(grant.Role),
		InvitedBy: grant.InvitedBy,
		CreatedAt: grant.CreatedAt,
	}
}

func (r *Router) listCollaborators(c *gin.Context) {
	userID, ok := r.actingUser(c)
	if !ok {
		return
	}
	documentID, ok := r.pathDocumentID(c)
	if !ok {
		return
	}
	grants, err := r.documents.ListCollaborators(c.Request.Context(), documentID, userID)
	if err != nil {
		r.respondError(c, err)
		return
	}
	responses := make([]collaboratorResponse, 0, len(grants))
	for _, grant := range grants {
		responses = append(responses, toCollaboratorResponse(grant))
	}
	c.JSON(http.StatusOK, responses)
}

type addCollaboratorRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"required"`
}

func (r *Router) addCollaborator(c *gin.Context) {
	actorID, ok := r.actingUser(c)
	if !ok {
		return
	}
	documentID, ok := r.pathDocumentID(c)
	if !ok {
		return
	}
	var req addCollaboratorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	targetID, err := documents.NewUserID(req.UserID)
	if err != nil {
		r.respondError(c, err)
		return
	}
	role, err := documents.ParseRole(req.Role)
	if err != nil {
		r.respondError(c, err)
		return
	}
	known, err := r.users.Exists(c.Request.Context(), targetID.String())
	if err != nil {
		r.respondError(c, err)
		return
	}
	if !known {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_user"})
		return
	}

	grant, err := r.documents.AddCollaborator(c.Request.Context(), documentID, actorID, targetID, role, actorID.String())
	if err != nil {
		r.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toCollaboratorResponse(grant))
}

type updateCollaboratorRequest struct {
	Role string `json:"role" binding:"required"`
}

func (r *Router) updateCollaboratorRole(c *gin.Context) {
	actorID, ok := r.actingUser(c)
	if !ok {
		return
	}
	documentID, ok := r.pathDocumentID(c)
	if !ok {
		return
	}
	targetID, err := documents.NewUserID(c.Param("userID"))
	if err != nil {
		r.respondError(c, err)
		return
	}
	var req updateCollaboratorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	role, err := documents.ParseRole(req.Role)
	if err != nil {
		r.respondError(c, err)
		return
	}
	if err := r.documents.UpdateCollaboratorRole(c.Request.Context(), documentID, actorID, targetID, role); err != nil {
		r.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) removeCollaborator(c *gin.Context) {
	actorID, ok := r.actingUser(c)
	if !ok {
		return
	}
	documentID, ok := r.pathDocumentID(c)
	if !ok {
		return
	}
	targetID, err := documents.NewUserID(c.Param("userID"))
	if err != nil {
		r.respondError(c, err)
		return
	}
	if err := r.documents.RemoveCollaborator(c.Request.Context(), documentID, actorID, targetID); err != nil {
		r.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type invitationResponse struct {
	InvitationID string     `json:"invitation_id"`
	DocumentID   string     `json:"document_id"`
	Token        string     `json:"token"`
	Role         string     `json:"role"`
	Status       string     `json:"status"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	MaxUses      *int64     `json:"max_uses,omitempty"`
	UseCount     int64      `json:"use_count"`
	CreatedAt    time.Time  `json:"created_at"`
}

func toInvitationResponse(invitation documents.Invitation) invitationResponse {
	return invitationResponse{
		InvitationID: invitation.InvitationID,
		DocumentID:   invitation.DocumentID,
		Token:        invitation.Token,
		Role:         string(invitation.Role),
		Status:       string(invitation.Status),
		ExpiresAt:    invitation.ExpiresAt,
		MaxUses:      invitation.MaxUses,
		UseCount:     invitation.UseCount,
		CreatedAt:    invitation.CreatedAt,
	}
}

type createInvitationRequest struct {
	Role        string `json:"role" binding:"required"`
	ExpiresDays int    `json:"expires_days"`
	MaxUses     int64  `json:"max_uses"`
}

func (r *Router) createInvitation(c *gin.Context) {
	userID, ok := r.actingUser(c)
	if !ok {
		return
	}
	documentID, ok := r.pathDocumentID(c)
	if !ok {
		return
	}
	var req createInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	role, err := documents.ParseRole(req.Role)
	if err != nil {
		r.respondError(c, err)
		return
	}

	invitation, err := r.documents.CreateInvitation(c.Request.Context(), documents.CreateInvitationRequest{
		DocumentID: documentID,
		CreatedBy:  userID,
		Role:       role,
		ExpiresIn:  time.Duration(req.ExpiresDays) * 24 * time.Hour,
		MaxUses:    req.MaxUses,
	})
	if err != nil {
		r.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toInvitationResponse(invitation))
}

func (r *Router) listInvitations(c *gin.Context) {
	userID, ok := r.actingUser(c)
	if !ok {
		return
	}
	documentID, ok := r.pathDocumentID(c)
	if !ok {
		return
	}
	invitations, err := r.documents.ListInvitations(c.Request.Context(), documentID, userID)
	if err != nil {
		r.respondError(c, err)
		return
	}
	responses := make([]invitationResponse, 0, len(invitations))
	for _, invitation := range invitations {
		responses = append(responses, toInvitationResponse(invitation))
	}
	c.JSON(http.StatusOK, responses)
}

func (r *Router) deleteInvitation(c *gin.Context) {
	userID, ok := r.actingUser(c)
	if !ok {
		return
	}
	if _, ok := r.pathDocumentID(c); !ok {
		return
	}
	if err := r.documents.DeleteInvitation(c.Request.Context(), c.Param("invitationID"), userID); err != nil {
		r.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (r *Router) getInvitation(c *gin.Context) {
	invitation, err := r.documents.GetInvitationByToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		r.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toInvitationResponse(invitation))
}

func (r *Router) acceptInvitation(c *gin.Context) {
	userID, ok := r.actingUser(c)
	if !ok {
		return
	}
	grant, err := r.documents.AcceptInvitation(c.Request.Context(), c.Param("token"), userID)
	if err != nil {
		r.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCollaboratorResponse(grant))
}

func (r *Router) declineInvitation(c *gin.Context) {
	userID, ok := r.actingUser(c)
	if !ok {
		return
	}
	if err := r.documents.DeclineInvitation(c.Request.Context(), c.Param("token"), userID); err != nil {
		r.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
