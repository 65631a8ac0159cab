package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opCreateInvitation  = "documents.create_invitation"
	opGetInvitation     = "documents.get_invitation"
	opListInvitations   = "documents.list_invitations"
	opAcceptInvitation  = "documents.accept_invitation"
	opDeclineInvitation = "documents.decline_invitation"
	opDeleteInvitation  = "documents.delete_invitation"
)

var (
	// ErrInvitationExpired indicates the invitation's expiry has passed.
	ErrInvitationExpired = errors.New("documents: invitation expired")
	// ErrInvitationExhausted indicates the invitation's use budget is spent.
	ErrInvitationExhausted = errors.New("documents: invitation exhausted")
	// ErrInvitationClosed indicates the invitation is no longer pending.
	ErrInvitationClosed = errors.New("documents: invitation closed")
)

// CreateInvitationRequest carries the inputs for minting a shareable
// invitation token.
type CreateInvitationRequest struct {
	DocumentID DocumentID
	CreatedBy  UserID
	Role       Role
	ExpiresIn  time.Duration
	MaxUses    int64
}

// CreateInvitation mints a token granting the given role on acceptance.
// Requires manage rights.
func (s *Service) CreateInvitation(ctx context.Context, req CreateInvitationRequest) (Invitation, error) {
	if _, err := s.requireRole(ctx, req.DocumentID, req.CreatedBy, Role.CanManage); err != nil {
		return Invitation{}, err
	}
	if req.Role != RoleEditor && req.Role != RoleViewer {
		return Invitation{}, fmt.Errorf("%w: %q", ErrInvalidRole, req.Role)
	}

	invitationID, err := s.idProvider.NewID()
	if err != nil {
		return Invitation{}, newServiceError(opCreateInvitation, "id_generation_failed", err)
	}
	token, err := uuid.NewRandom()
	if err != nil {
		return Invitation{}, newServiceError(opCreateInvitation, "token_generation_failed", err)
	}

	invitation := Invitation{
		InvitationID: invitationID,
		DocumentID:   req.DocumentID.String(),
		Token:        token.String(),
		Role:         req.Role,
		CreatedBy:    req.CreatedBy.String(),
		Status:       InvitationPending,
		CreatedAt:    s.clock().UTC(),
	}
	if req.ExpiresIn > 0 {
		expiresAt := s.clock().UTC().Add(req.ExpiresIn)
		invitation.ExpiresAt = &expiresAt
	}
	if req.MaxUses > 0 {
		maxUses := req.MaxUses
		invitation.MaxUses = &maxUses
	}

	if err := s.db.WithContext(ctx).Create(&invitation).Error; err != nil {
		s.logError(opCreateInvitation, "insert_failed", err, zap.String("document_id", req.DocumentID.String()))
		return Invitation{}, newServiceError(opCreateInvitation, "insert_failed", err)
	}
	return invitation, nil
}

// GetInvitationByToken resolves a shareable token. Tokens are unguessable,
// so possession is sufficient to read the invitation.
func (s *Service) GetInvitationByToken(ctx context.Context, token string) (Invitation, error) {
	var invitation Invitation
	err := s.db.WithContext(ctx).
		Where("token = ?", token).
		Take(&invitation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Invitation{}, fmt.Errorf("%w: invitation", ErrNotFound)
	}
	if err != nil {
		s.logError(opGetInvitation, "query_failed", err)
		return Invitation{}, newServiceError(opGetInvitation, "query_failed", err)
	}
	return invitation, nil
}

// ListInvitations returns invitations for a document, newest first.
// Requires manage rights.
func (s *Service) ListInvitations(ctx context.Context, documentID DocumentID, userID UserID) ([]Invitation, error) {
	if _, err := s.requireRole(ctx, documentID, userID, Role.CanManage); err != nil {
		return nil, err
	}

	var invitations []Invitation
	if err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID.String()).
		Order("created_at DESC").
		Find(&invitations).Error; err != nil {
		s.logError(opListInvitations, "query_failed", err, zap.String("document_id", documentID.String()))
		return nil, newServiceError(opListInvitations, "query_failed", err)
	}
	return invitations, nil
}

// AcceptInvitation redeems a token for the acting user, converting it
// into a collaborator grant. The expiry check, use-count check, duplicate
// check, grant insert and counter increment all happen inside one
// transaction with the invitation row locked, so two users racing on a
// max_uses=1 token produce exactly one grant.
func (s *Service) AcceptInvitation(ctx context.Context, token string, userID UserID) (CollaboratorGrant, error) {
	var grant CollaboratorGrant
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invitation Invitation
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("token = ?", token).
			Take(&invitation).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: invitation", ErrNotFound)
		}
		if err != nil {
			return newServiceError(opAcceptInvitation, "select_failed", err)
		}

		if invitation.Status == InvitationDeclined {
			return fmt.Errorf("%w: declined", ErrInvitationClosed)
		}
		if invitation.ExpiresAt != nil && invitation.ExpiresAt.Before(s.clock().UTC()) {
			return fmt.Errorf("%w: at %s", ErrInvitationExpired, invitation.ExpiresAt.Format(time.RFC3339))
		}
		if invitation.MaxUses != nil && invitation.UseCount >= *invitation.MaxUses {
			return fmt.Errorf("%w: %d uses", ErrInvitationExhausted, invitation.UseCount)
		}

		var doc Document
		if err := tx.Where("document_id = ?", invitation.DocumentID).Take(&doc).Error; err != nil {
			return fmt.Errorf("%w: document %s", ErrNotFound, invitation.DocumentID)
		}
		if doc.OwnerID == userID.String() {
			return fmt.Errorf("%w: owner", ErrDuplicateGrant)
		}

		var existing int64
		if err := tx.Model(&CollaboratorGrant{}).
			Where("document_id = ? AND user_id = ?", invitation.DocumentID, userID.String()).
			Count(&existing).Error; err != nil {
			return newServiceError(opAcceptInvitation, "grant_lookup_failed", err)
		}
		if existing > 0 {
			return fmt.Errorf("%w: user %s", ErrDuplicateGrant, userID.String())
		}

		grantID, err := s.idProvider.NewID()
		if err != nil {
			return newServiceError(opAcceptInvitation, "id_generation_failed", err)
		}
		grant = CollaboratorGrant{
			GrantID:    grantID,
			DocumentID: invitation.DocumentID,
			UserID:     userID.String(),
			Role:       invitation.Role,
			InvitedBy:  invitation.CreatedBy,
			CreatedAt:  s.clock().UTC(),
		}
		if err := tx.Create(&grant).Error; err != nil {
			return newServiceError(opAcceptInvitation, "grant_insert_failed", err)
		}

		return tx.Model(&Invitation{}).
			Where("invitation_id = ?", invitation.InvitationID).
			Updates(map[string]interface{}{
				"status":      InvitationAccepted,
				"accepted_by": userID.String(),
				"use_count":   invitation.UseCount + 1,
			}).Error
	})
	if txErr != nil {
		return CollaboratorGrant{}, txErr
	}
	return grant, nil
}

// DeclineInvitation marks the invitation declined by the acting user.
func (s *Service) DeclineInvitation(ctx context.Context, token string, userID UserID) error {
	result := s.db.WithContext(ctx).Model(&Invitation{}).
		Where("token = ? AND status = ?", token, InvitationPending).
		Updates(map[string]interface{}{
			"status":      InvitationDeclined,
			"accepted_by": userID.String(),
		})
	if result.Error != nil {
		s.logError(opDeclineInvitation, "update_failed", result.Error)
		return newServiceError(opDeclineInvitation, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: pending invitation", ErrNotFound)
	}
	return nil
}

// DeleteInvitation removes an invitation. Requires manage rights on the
// invitation's document.
func (s *Service) DeleteInvitation(ctx context.Context, invitationID string, userID UserID) error {
	var invitation Invitation
	err := s.db.WithContext(ctx).
		Where("invitation_id = ?", invitationID).
		Take(&invitation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: invitation", ErrNotFound)
	}
	if err != nil {
		return newServiceError(opDeleteInvitation, "query_failed", err)
	}

	documentID, err := NewDocumentID(invitation.DocumentID)
	if err != nil {
		return newServiceError(opDeleteInvitation, "invalid_document_id", err)
	}
	if _, err := s.requireRole(ctx, documentID, userID, Role.CanManage); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).
		Where("invitation_id = ?", invitationID).
		Delete(&Invitation{}).Error; err != nil {
		s.logError(opDeleteInvitation, "delete_failed", err, zap.String("invitation_id", invitationID))
		return newServiceError(opDeleteInvitation, "delete_failed", err)
	}
	return nil
}
