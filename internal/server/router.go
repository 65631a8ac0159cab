// Package server exposes the persistence gateway over HTTP.
package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inkwell-labs/inkwell/backend/internal/auth"
	"github.com/inkwell-labs/inkwell/backend/internal/documents"
	"github.com/inkwell-labs/inkwell/backend/internal/users"
)

const (
	contextUserIDKey      = "authenticated_user_id"
	bootstrapSecretHeader = "X-Bootstrap-Secret"
)

// RouterConfig wires the HTTP surface to the services behind it.
type RouterConfig struct {
	Logger          *zap.Logger
	Documents       *documents.Service
	Users           *users.Service
	TokenIssuer     *auth.TokenIssuer
	Events          *Dispatcher
	BootstrapSecret string
	AllowedOrigins  []string
}

// Router holds the handler dependencies.
type Router struct {
	logger          *zap.Logger
	documents       *documents.Service
	users           *users.Service
	tokenIssuer     *auth.TokenIssuer
	events          *Dispatcher
	bootstrapSecret string
}

// NewRouter validates the configuration and builds the gin engine.
func NewRouter(cfg RouterConfig) (*gin.Engine, error) {
	if cfg.Documents == nil || cfg.Users == nil || cfg.TokenIssuer == nil {
		return nil, errors.New("server: documents, users and token issuer are required")
	}
	if cfg.BootstrapSecret == "" {
		return nil, errors.New("server: bootstrap secret is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	events := cfg.Events
	if events == nil {
		events = NewDispatcher(logger)
	}

	r := &Router{
		logger:          logger,
		documents:       cfg.Documents,
		users:           cfg.Users,
		tokenIssuer:     cfg.TokenIssuer,
		events:          events,
		bootstrapSecret: cfg.BootstrapSecret,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", bootstrapSecretHeader)
	engine.Use(cors.New(corsConfig))

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.POST("/auth/token", r.issueToken)

	api := engine.Group("/api", r.requireAuth)
	{
		api.GET("/profile", r.getProfile)

		api.POST("/documents", r.createDocument)
		api.GET("/documents", r.listOwnedDocuments)
		api.GET("/documents/shared", r.listSharedDocuments)
		api.GET("/documents/:id", r.getDocument)
		api.PATCH("/documents/:id", r.renameDocument)
		api.DELETE("/documents/:id", r.deleteDocument)

		api.GET("/documents/:id/content", r.fetchContent)
		api.PUT("/documents/:id/content", r.saveContent)

		api.POST("/documents/:id/versions", r.createVersion)
		api.GET("/documents/:id/versions", r.listVersions)
		api.POST("/documents/:id/versions/:number/restore", r.restoreVersion)

		api.GET("/documents/:id/collaborators", r.listCollaborators)
		api.POST("/documents/:id/collaborators", r.addCollaborator)
		api.PATCH("/documents/:id/collaborators/:userID", r.updateCollaboratorRole)
		api.DELETE("/documents/:id/collaborators/:userID", r.removeCollaborator)

		api.PUT("/documents/:id/presence", r.upsertPresence)
		api.GET("/documents/:id/presence", r.listPresence)
		api.DELETE("/documents/:id/presence", r.deletePresence)

		api.POST("/documents/:id/invitations", r.createInvitation)
		api.GET("/documents/:id/invitations", r.listInvitations)
		api.DELETE("/documents/:id/invitations/:invitationID", r.deleteInvitation)
		api.GET("/invitations/:token", r.getInvitation)
		api.POST("/invitations/:token/accept", r.acceptInvitation)
		api.POST("/invitations/:token/decline", r.declineInvitation)

		api.GET("/documents/:id/comments", r.listComments)
		api.POST("/documents/:id/comments", r.createComment)
		api.PATCH("/comments/:commentID", r.updateComment)
		api.PUT("/comments/:commentID/resolved", r.setCommentResolved)
		api.DELETE("/comments/:commentID", r.deleteComment)

		api.GET("/documents/:id/events", r.streamDocumentEvents)
	}

	return engine, nil
}

type issueTokenRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

// issueToken mints a backend token for a subject the upstream identity
// provider already authenticated. The bootstrap secret keeps the
// endpoint out of reach for anyone else.
func (r *Router) issueToken(c *gin.Context) {
	if c.GetHeader(bootstrapSecretHeader) != r.bootstrapSecret {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_bootstrap_secret"})
		return
	}
	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	profile, err := r.users.Ensure(c.Request.Context(), users.ProfileInput{
		UserID:    req.UserID,
		Username:  req.Username,
		Email:     req.Email,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		r.respondError(c, err)
		return
	}

	token, expiresIn, err := r.tokenIssuer.IssueBackendToken(c.Request.Context(), auth.UserClaims{
		Subject:     profile.UserID,
		Email:       profile.Email,
		DisplayName: profile.Username,
	})
	if err != nil {
		r.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "expires_in": expiresIn})
}

func (r *Router) requireAuth(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_bearer_token"})
		return
	}
	subject, err := r.tokenIssuer.ValidateToken(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
		return
	}
	c.Set(contextUserIDKey, subject)
	c.Next()
}

func (r *Router) getProfile(c *gin.Context) {
	profile, err := r.users.Get(c.Request.Context(), c.GetString(contextUserIDKey))
	if err != nil {
		r.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":    profile.UserID,
		"username":   profile.Username,
		"email":      profile.Email,
		"role":       profile.Role,
		"avatar_url": profile.AvatarURL,
	})
}

// actingUser resolves the authenticated subject into a validated user id.
func (r *Router) actingUser(c *gin.Context) (documents.UserID, bool) {
	userID, err := documents.NewUserID(c.GetString(contextUserIDKey))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
		return "", false
	}
	return userID, true
}

func (r *Router) pathDocumentID(c *gin.Context) (documents.DocumentID, bool) {
	documentID, err := documents.NewDocumentID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_document_id"})
		return "", false
	}
	return documentID, true
}

// respondError maps domain sentinels onto status codes. Anything
// unrecognized is a 500 and gets logged with its operation code.
func (r *Router) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, documents.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, documents.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "access_denied"})
	case errors.Is(err, documents.ErrDuplicateGrant):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate_collaborator"})
	case errors.Is(err, documents.ErrInvitationExpired):
		c.JSON(http.StatusGone, gin.H{"error": "invitation_expired"})
	case errors.Is(err, documents.ErrInvitationExhausted):
		c.JSON(http.StatusGone, gin.H{"error": "invitation_exhausted"})
	case errors.Is(err, documents.ErrInvitationClosed):
		c.JSON(http.StatusGone, gin.H{"error": "invitation_closed"})
	case errors.Is(err, documents.ErrInvalidTitle),
		errors.Is(err, documents.ErrInvalidRole),
		errors.Is(err, documents.ErrInvalidKind),
		errors.Is(err, documents.ErrInvalidComment),
		errors.Is(err, documents.ErrInvalidDocumentID),
		errors.Is(err, documents.ErrInvalidUserID),
		errors.Is(err, users.ErrInvalidProfile):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
	default:
		var serviceErr *documents.ServiceError
		if errors.As(err, &serviceErr) {
			r.logger.Error("server.request_failed", zap.String("code", serviceErr.Code()), zap.Error(err))
		} else {
			r.logger.Error("server.request_failed", zap.Error(err))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

type documentResponse struct {
	DocumentID        string     `json:"document_id"`
	Title             string     `json:"title"`
	Kind              string     `json:"kind"`
	Language          string     `json:"language,omitempty"`
	OwnerID           string     `json:"owner_id"`
	LastEditedBy      string     `json:"last_edited_by,omitempty"`
	LastEditedAt      *time.Time `json:"last_edited_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	AccessRole        string     `json:"access_role,omitempty"`
	CollaboratorCount int64      `json:"collaborator_count,omitempty"`
}

func toDocumentResponse(doc documents.Document, role documents.Role, collaborators int64) documentResponse {
	return documentResponse{
		DocumentID:        doc.DocumentID,
		Title:             doc.Title,
		Kind:              string(doc.Kind),
		Language:          doc.Language,
		OwnerID:           doc.OwnerID,
		LastEditedBy:      doc.LastEditedBy,
		LastEditedAt:      doc.LastEditedAt,
		CreatedAt:         doc.CreatedAt,
		UpdatedAt:         doc.UpdatedAt,
		AccessRole:        string(role),
		CollaboratorCount: collaborators,
	}
}

type snapshotResponse struct {
	Content   string    `json:"content"`
	Revision  int64     `json:"revision"`
	UpdatedBy string    `json:"updated_by,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toSnapshotResponse(snapshot documents.ContentSnapshot) snapshotResponse {
	return snapshotResponse{
		Content:   snapshot.Content,
		Revision:  snapshot.Revision,
		UpdatedBy: snapshot.UpdatedBy,
		UpdatedAt: snapshot.UpdatedAt,
	}
}

type versionResponse struct {
	Number    int64     `json:"number"`
	Content   string    `json:"content"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

func toVersionResponse(record documents.VersionRecord) versionResponse {
	return versionResponse{
		Number:    record.Number,
		Content:   record.Content,
		CreatedBy: record.CreatedBy,
		CreatedAt: record.CreatedAt,
	}
}

type commentResponse struct {
	CommentID   string    `json:"comment_id"`
	UserID      string    `json:"user_id"`
	Body        string    `json:"body"`
	AnchorStart *int64    `json:"anchor_start,omitempty"`
	AnchorEnd   *int64    `json:"anchor_end,omitempty"`
	LineNumber  *int64    `json:"line_number,omitempty"`
	Resolved    bool      `json:"resolved"`
	CreatedAt   time.Time `json:"created_at"`
}

func toCommentResponse(comment documents.Comment) commentResponse {
	return commentResponse{
		CommentID:   comment.CommentID,
		UserID:      comment.UserID,
		Body:        comment.Body,
		AnchorStart: comment.AnchorStart,
		AnchorEnd:   comment.AnchorEnd,
		LineNumber:  comment.LineNumber,
		Resolved:    comment.Resolved,
		CreatedAt:   comment.CreatedAt,
	}
}
