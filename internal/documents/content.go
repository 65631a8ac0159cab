package documents

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opFetchContent   = "documents.fetch_content"
	opSaveContent    = "documents.save_content"
	opRestoreVersion = "documents.restore_version"
)

// SaveContentRequest carries a full-content save. BaseRevision is the
// revision the editor last observed; a mismatch rejects the save.
type SaveContentRequest struct {
	DocumentID   DocumentID
	EditorUserID UserID
	Content      string
	BaseRevision int64
}

// SaveOutcome reports the result of a content save.
type SaveOutcome struct {
	Accepted bool
	Snapshot ContentSnapshot
}

// FetchContent returns the live snapshot for readers with any role.
func (s *Service) FetchContent(ctx context.Context, documentID DocumentID, userID UserID) (ContentSnapshot, error) {
	if _, _, err := s.documentWithRole(ctx, documentID, userID); err != nil {
		return ContentSnapshot{}, err
	}

	var snapshot ContentSnapshot
	err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID.String()).
		Take(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ContentSnapshot{}, fmt.Errorf("%w: content for document %s", ErrNotFound, documentID.String())
	}
	if err != nil {
		s.logError(opFetchContent, "query_failed", err, zap.String("document_id", documentID.String()))
		return ContentSnapshot{}, newServiceError(opFetchContent, "query_failed", err)
	}
	return snapshot, nil
}

// SaveContent overwrites the live snapshot when the caller's base revision
// is still current, bumping the revision and touching the parent
// document's audit fields. A stale base revision returns ErrStaleRevision
// together with the current snapshot so the caller can reconcile.
func (s *Service) SaveContent(ctx context.Context, req SaveContentRequest) (SaveOutcome, error) {
	if _, err := s.requireRole(ctx, req.DocumentID, req.EditorUserID, Role.CanWrite); err != nil {
		return SaveOutcome{}, err
	}

	var outcome SaveOutcome
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var snapshot ContentSnapshot
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("document_id = ?", req.DocumentID.String()).
			Take(&snapshot).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: content for document %s", ErrNotFound, req.DocumentID.String())
		}
		if err != nil {
			return newServiceError(opSaveContent, "select_failed", err)
		}

		if snapshot.Revision != req.BaseRevision {
			outcome = SaveOutcome{Accepted: false, Snapshot: snapshot}
			return fmt.Errorf("%w: base %d, current %d", ErrStaleRevision, req.BaseRevision, snapshot.Revision)
		}

		now := s.clock().UTC()
		snapshot.Content = req.Content
		snapshot.Revision++
		snapshot.UpdatedBy = req.EditorUserID.String()
		snapshot.UpdatedAt = now
		if err := tx.Save(&snapshot).Error; err != nil {
			return newServiceError(opSaveContent, "snapshot_save_failed", err)
		}

		if err := tx.Model(&Document{}).
			Where("document_id = ?", req.DocumentID.String()).
			Updates(map[string]interface{}{
				"last_edited_by": req.EditorUserID.String(),
				"last_edited_at": now,
				"updated_at":     now,
			}).Error; err != nil {
			return newServiceError(opSaveContent, "document_touch_failed", err)
		}

		outcome = SaveOutcome{Accepted: true, Snapshot: snapshot}
		return nil
	})

	if txErr != nil {
		if errors.Is(txErr, ErrStaleRevision) {
			return outcome, txErr
		}
		s.logError(opSaveContent, "transaction_failed", txErr,
			zap.String("document_id", req.DocumentID.String()),
			zap.String("user_id", req.EditorUserID.String()))
		return SaveOutcome{}, txErr
	}
	return outcome, nil
}

// RestoreVersion replaces the live content with a stored version's
// content through the normal save path, so the restore is itself subject
// to optimistic concurrency.
func (s *Service) RestoreVersion(ctx context.Context, documentID DocumentID, userID UserID, versionNumber int64, baseRevision int64) (SaveOutcome, error) {
	var version VersionRecord
	err := s.db.WithContext(ctx).
		Where("document_id = ? AND version_number = ?", documentID.String(), versionNumber).
		Take(&version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SaveOutcome{}, fmt.Errorf("%w: version %d of document %s", ErrNotFound, versionNumber, documentID.String())
	}
	if err != nil {
		s.logError(opRestoreVersion, "version_query_failed", err, zap.String("document_id", documentID.String()))
		return SaveOutcome{}, newServiceError(opRestoreVersion, "version_query_failed", err)
	}

	return s.SaveContent(ctx, SaveContentRequest{
		DocumentID:   documentID,
		EditorUserID: userID,
		Content:      version.Content,
		BaseRevision: baseRevision,
	})
}
