package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/inkwell-labs/inkwell/backend/internal/richtext"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()

	// ErrNotFound indicates the requested document (or dependent row) does not exist.
	ErrNotFound = errors.New("documents: not found")
	// ErrAccessDenied indicates the acting user lacks the role an operation requires.
	ErrAccessDenied = errors.New("documents: access denied")
	// ErrStaleRevision indicates a content save carried a base revision that is no
	// longer current; the caller must refetch and reconcile.
	ErrStaleRevision = errors.New("documents: stale revision")
)

// ServiceError tags failures with a stable operation.reason code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the stable operation.reason identifier.
func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

const (
	opServiceNew     = "documents.service.new"
	opCreateDocument = "documents.create"
	opGetDocument    = "documents.get"
	opListDocuments  = "documents.list"
	opRenameDocument = "documents.rename"
	opDeleteDocument = "documents.delete"
)

// IDProvider produces unique identifiers for new rows.
type IDProvider interface {
	NewID() (string, error)
}

// ServiceConfig describes the dependencies of the documents service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger

	// PresenceFreshness bounds how old a presence row may be and still
	// count as active. Zero selects the default window.
	PresenceFreshness time.Duration
	// VersionListLimit caps ListVersions. Zero selects the default.
	VersionListLimit int
}

const (
	defaultPresenceFreshness = 30 * time.Second
	defaultVersionListLimit  = 50
)

// Service implements the persistence gateway for documents and their
// dependent rows.
type Service struct {
	db                *gorm.DB
	clock             func() time.Time
	idProvider        IDProvider
	logger            *zap.Logger
	presenceFreshness time.Duration
	versionListLimit  int
}

// NewService validates the configuration and constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	freshness := cfg.PresenceFreshness
	if freshness <= 0 {
		freshness = defaultPresenceFreshness
	}
	versionLimit := cfg.VersionListLimit
	if versionLimit <= 0 {
		versionLimit = defaultVersionListLimit
	}

	return &Service{
		db:                cfg.Database,
		clock:             clock,
		idProvider:        cfg.IDProvider,
		logger:            logger,
		presenceFreshness: freshness,
		versionListLimit:  versionLimit,
	}, nil
}

// CreateDocumentRequest carries the inputs for document creation.
type CreateDocumentRequest struct {
	Title    string
	Kind     Kind
	Language string
	OwnerID  UserID
	// InitialContent seeds the live snapshot. Empty selects the kind's
	// blank document.
	InitialContent string
}

// DocumentWithAccess pairs a document with the caller's effective role.
type DocumentWithAccess struct {
	Document          Document
	AccessRole        Role
	CollaboratorCount int64
}

// CreateDocument inserts the document and its initial content snapshot in
// one transaction.
func (s *Service) CreateDocument(ctx context.Context, req CreateDocumentRequest) (Document, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return Document{}, newServiceError(opCreateDocument, "invalid_title", ErrInvalidTitle)
	}
	if req.Kind != KindRichText && req.Kind != KindCode {
		return Document{}, newServiceError(opCreateDocument, "invalid_kind", ErrInvalidKind)
	}

	documentID, err := s.idProvider.NewID()
	if err != nil {
		return Document{}, newServiceError(opCreateDocument, "id_generation_failed", err)
	}

	initialContent := req.InitialContent
	if initialContent == "" && req.Kind == KindRichText {
		initialContent, _ = richtext.Empty().Encode()
	}

	now := s.clock().UTC()
	doc := Document{
		DocumentID: documentID,
		Title:      title,
		Kind:       req.Kind,
		Language:   strings.TrimSpace(req.Language),
		OwnerID:    req.OwnerID.String(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	snapshot := ContentSnapshot{
		DocumentID: documentID,
		Content:    initialContent,
		Revision:   1,
		UpdatedBy:  req.OwnerID.String(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&doc).Error; err != nil {
			return newServiceError(opCreateDocument, "document_insert_failed", err)
		}
		if err := tx.Create(&snapshot).Error; err != nil {
			return newServiceError(opCreateDocument, "content_insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError(opCreateDocument, "transaction_failed", txErr, zap.String("owner_id", req.OwnerID.String()))
		return Document{}, txErr
	}

	return doc, nil
}

// GetDocument returns the document if the user has at least viewer access.
func (s *Service) GetDocument(ctx context.Context, documentID DocumentID, userID UserID) (Document, Role, error) {
	doc, role, err := s.documentWithRole(ctx, documentID, userID)
	if err != nil {
		return Document{}, "", err
	}
	return doc, role, nil
}

// ListOwnedDocuments returns documents owned by the user, most recently
// updated first.
func (s *Service) ListOwnedDocuments(ctx context.Context, userID UserID) ([]DocumentWithAccess, error) {
	var docs []Document
	if err := s.db.WithContext(ctx).
		Where("owner_id = ?", userID.String()).
		Order("updated_at DESC").
		Find(&docs).Error; err != nil {
		s.logError(opListDocuments, "owned_query_failed", err, zap.String("user_id", userID.String()))
		return nil, newServiceError(opListDocuments, "owned_query_failed", err)
	}

	results := make([]DocumentWithAccess, 0, len(docs))
	for _, doc := range docs {
		count, err := s.collaboratorCount(ctx, doc.DocumentID)
		if err != nil {
			return nil, err
		}
		results = append(results, DocumentWithAccess{Document: doc, AccessRole: RoleOwner, CollaboratorCount: count})
	}
	return results, nil
}

// ListSharedDocuments returns documents the user can access through a
// collaborator grant.
func (s *Service) ListSharedDocuments(ctx context.Context, userID UserID) ([]DocumentWithAccess, error) {
	var grants []CollaboratorGrant
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("created_at DESC").
		Find(&grants).Error; err != nil {
		s.logError(opListDocuments, "shared_query_failed", err, zap.String("user_id", userID.String()))
		return nil, newServiceError(opListDocuments, "shared_query_failed", err)
	}

	results := make([]DocumentWithAccess, 0, len(grants))
	for _, grant := range grants {
		var doc Document
		err := s.db.WithContext(ctx).
			Where("document_id = ?", grant.DocumentID).
			Take(&doc).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, newServiceError(opListDocuments, "shared_document_fetch_failed", err)
		}
		count, err := s.collaboratorCount(ctx, doc.DocumentID)
		if err != nil {
			return nil, err
		}
		results = append(results, DocumentWithAccess{Document: doc, AccessRole: grant.Role, CollaboratorCount: count})
	}
	return results, nil
}

// RenameDocument updates the title. Requires manage rights.
func (s *Service) RenameDocument(ctx context.Context, documentID DocumentID, userID UserID, title string) error {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return newServiceError(opRenameDocument, "invalid_title", ErrInvalidTitle)
	}
	if _, err := s.requireRole(ctx, documentID, userID, Role.CanManage); err != nil {
		return err
	}
	now := s.clock().UTC()
	if err := s.db.WithContext(ctx).Model(&Document{}).
		Where("document_id = ?", documentID.String()).
		Updates(map[string]interface{}{"title": trimmed, "updated_at": now}).
		Error; err != nil {
		s.logError(opRenameDocument, "update_failed", err, zap.String("document_id", documentID.String()))
		return newServiceError(opRenameDocument, "update_failed", err)
	}
	return nil
}

// DeleteDocument removes the document and all dependent rows. Requires
// manage rights.
func (s *Service) DeleteDocument(ctx context.Context, documentID DocumentID, userID UserID) error {
	if _, err := s.requireRole(ctx, documentID, userID, Role.CanManage); err != nil {
		return err
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		docID := documentID.String()
		for _, model := range []interface{}{
			&PresenceRecord{}, &Comment{}, &Invitation{}, &CollaboratorGrant{}, &VersionRecord{}, &ContentSnapshot{},
		} {
			if err := tx.Where("document_id = ?", docID).Delete(model).Error; err != nil {
				return err
			}
		}
		return tx.Where("document_id = ?", docID).Delete(&Document{}).Error
	})
	if txErr != nil {
		s.logError(opDeleteDocument, "transaction_failed", txErr, zap.String("document_id", documentID.String()))
		return newServiceError(opDeleteDocument, "transaction_failed", txErr)
	}
	return nil
}

// RoleOf resolves the user's effective role on the document. The owner is
// implicit; everyone else needs a grant row.
func (s *Service) RoleOf(ctx context.Context, documentID DocumentID, userID UserID) (Role, error) {
	_, role, err := s.documentWithRole(ctx, documentID, userID)
	return role, err
}

func (s *Service) documentWithRole(ctx context.Context, documentID DocumentID, userID UserID) (Document, Role, error) {
	var doc Document
	err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID.String()).
		Take(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, "", fmt.Errorf("%w: document %s", ErrNotFound, documentID.String())
	}
	if err != nil {
		s.logError(opGetDocument, "query_failed", err, zap.String("document_id", documentID.String()))
		return Document{}, "", newServiceError(opGetDocument, "query_failed", err)
	}

	if doc.OwnerID == userID.String() {
		return doc, RoleOwner, nil
	}

	var grant CollaboratorGrant
	err = s.db.WithContext(ctx).
		Where("document_id = ? AND user_id = ?", documentID.String(), userID.String()).
		Take(&grant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Document{}, "", fmt.Errorf("%w: user %s on document %s", ErrAccessDenied, userID.String(), documentID.String())
	}
	if err != nil {
		s.logError(opGetDocument, "grant_query_failed", err, zap.String("document_id", documentID.String()))
		return Document{}, "", newServiceError(opGetDocument, "grant_query_failed", err)
	}
	return doc, grant.Role, nil
}

func (s *Service) requireRole(ctx context.Context, documentID DocumentID, userID UserID, allowed func(Role) bool) (Role, error) {
	role, err := s.RoleOf(ctx, documentID, userID)
	if err != nil {
		return "", err
	}
	if !allowed(role) {
		return "", fmt.Errorf("%w: role %s insufficient", ErrAccessDenied, role)
	}
	return role, nil
}

func (s *Service) collaboratorCount(ctx context.Context, documentID string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&CollaboratorGrant{}).
		Where("document_id = ?", documentID).
		Count(&count).Error; err != nil {
		return 0, newServiceError(opListDocuments, "collaborator_count_failed", err)
	}
	return count, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("documents service error", attrs...)
}
