package documents

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opListCollaborators = "documents.list_collaborators"
	opAddCollaborator   = "documents.add_collaborator"
	opUpdateGrant       = "documents.update_collaborator"
	opRemoveGrant       = "documents.remove_collaborator"
)

// ErrDuplicateGrant indicates the user already holds a grant on the document.
var ErrDuplicateGrant = errors.New("documents: user is already a collaborator")

// ListCollaborators returns explicit grants for the document, oldest first.
func (s *Service) ListCollaborators(ctx context.Context, documentID DocumentID, userID UserID) ([]CollaboratorGrant, error) {
	if _, _, err := s.documentWithRole(ctx, documentID, userID); err != nil {
		return nil, err
	}

	var grants []CollaboratorGrant
	if err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID.String()).
		Order("created_at ASC").
		Find(&grants).Error; err != nil {
		s.logError(opListCollaborators, "query_failed", err, zap.String("document_id", documentID.String()))
		return nil, newServiceError(opListCollaborators, "query_failed", err)
	}
	return grants, nil
}

// AddCollaborator grants a role to a user. Requires manage rights; the
// owner cannot be granted a role on their own document.
func (s *Service) AddCollaborator(ctx context.Context, documentID DocumentID, actorID, targetID UserID, role Role, invitedBy string) (CollaboratorGrant, error) {
	doc, actorRole, err := s.documentWithRole(ctx, documentID, actorID)
	if err != nil {
		return CollaboratorGrant{}, err
	}
	if !actorRole.CanManage() {
		return CollaboratorGrant{}, fmt.Errorf("%w: role %s insufficient", ErrAccessDenied, actorRole)
	}
	if doc.OwnerID == targetID.String() {
		return CollaboratorGrant{}, fmt.Errorf("%w: owner", ErrDuplicateGrant)
	}
	if role != RoleEditor && role != RoleViewer {
		return CollaboratorGrant{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	return s.insertGrant(ctx, documentID, targetID, role, invitedBy)
}

func (s *Service) insertGrant(ctx context.Context, documentID DocumentID, targetID UserID, role Role, invitedBy string) (CollaboratorGrant, error) {
	grantID, err := s.idProvider.NewID()
	if err != nil {
		return CollaboratorGrant{}, newServiceError(opAddCollaborator, "id_generation_failed", err)
	}
	grant := CollaboratorGrant{
		GrantID:    grantID,
		DocumentID: documentID.String(),
		UserID:     targetID.String(),
		Role:       role,
		InvitedBy:  invitedBy,
		CreatedAt:  s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&grant).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return CollaboratorGrant{}, fmt.Errorf("%w: user %s", ErrDuplicateGrant, targetID.String())
		}
		s.logError(opAddCollaborator, "insert_failed", err,
			zap.String("document_id", documentID.String()),
			zap.String("user_id", targetID.String()))
		return CollaboratorGrant{}, newServiceError(opAddCollaborator, "insert_failed", err)
	}
	return grant, nil
}

// UpdateCollaboratorRole changes an existing grant. Requires manage rights.
func (s *Service) UpdateCollaboratorRole(ctx context.Context, documentID DocumentID, actorID, targetID UserID, role Role) error {
	if _, err := s.requireRole(ctx, documentID, actorID, Role.CanManage); err != nil {
		return err
	}
	if role != RoleEditor && role != RoleViewer {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	result := s.db.WithContext(ctx).Model(&CollaboratorGrant{}).
		Where("document_id = ? AND user_id = ?", documentID.String(), targetID.String()).
		Update("role", role)
	if result.Error != nil {
		s.logError(opUpdateGrant, "update_failed", result.Error, zap.String("document_id", documentID.String()))
		return newServiceError(opUpdateGrant, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: grant for user %s", ErrNotFound, targetID.String())
	}
	return nil
}

// RemoveCollaborator deletes a grant. The owner may remove anyone;
// collaborators may remove themselves.
func (s *Service) RemoveCollaborator(ctx context.Context, documentID DocumentID, actorID, targetID UserID) error {
	role, err := s.RoleOf(ctx, documentID, actorID)
	if err != nil {
		return err
	}
	if !role.CanManage() && actorID != targetID {
		return fmt.Errorf("%w: role %s insufficient", ErrAccessDenied, role)
	}

	result := s.db.WithContext(ctx).
		Where("document_id = ? AND user_id = ?", documentID.String(), targetID.String()).
		Delete(&CollaboratorGrant{})
	if result.Error != nil {
		s.logError(opRemoveGrant, "delete_failed", result.Error, zap.String("document_id", documentID.String()))
		return newServiceError(opRemoveGrant, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: grant for user %s", ErrNotFound, targetID.String())
	}
	return nil
}
