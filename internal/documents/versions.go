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
	opCreateVersion = "documents.create_version"
	opListVersions  = "documents.list_versions"
)

// CreateVersion writes an immutable copy of the supplied content. The
// version number is assigned here, atomically with the insert, so
// concurrent snapshotting sessions can never produce duplicates.
func (s *Service) CreateVersion(ctx context.Context, documentID DocumentID, userID UserID, content string) (VersionRecord, error) {
	if _, err := s.requireRole(ctx, documentID, userID, Role.CanWrite); err != nil {
		return VersionRecord{}, err
	}

	versionID, err := s.idProvider.NewID()
	if err != nil {
		return VersionRecord{}, newServiceError(opCreateVersion, "id_generation_failed", err)
	}

	var record VersionRecord
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Serialize against concurrent version writers for this document.
		var snapshot ContentSnapshot
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("document_id = ?", documentID.String()).
			Take(&snapshot).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: content for document %s", ErrNotFound, documentID.String())
		}
		if err != nil {
			return newServiceError(opCreateVersion, "snapshot_select_failed", err)
		}

		var maxNumber int64
		row := tx.Model(&VersionRecord{}).
			Where("document_id = ?", documentID.String()).
			Select("COALESCE(MAX(version_number), 0)").
			Row()
		if err := row.Scan(&maxNumber); err != nil {
			return newServiceError(opCreateVersion, "max_number_query_failed", err)
		}

		record = VersionRecord{
			VersionID:  versionID,
			DocumentID: documentID.String(),
			Number:     maxNumber + 1,
			Content:    content,
			CreatedBy:  userID.String(),
			CreatedAt:  s.clock().UTC(),
		}
		if err := tx.Create(&record).Error; err != nil {
			return newServiceError(opCreateVersion, "insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		s.logError(opCreateVersion, "transaction_failed", txErr,
			zap.String("document_id", documentID.String()),
			zap.String("user_id", userID.String()))
		return VersionRecord{}, txErr
	}
	return record, nil
}

// ListVersions returns stored versions, newest first, capped at the
// configured limit.
func (s *Service) ListVersions(ctx context.Context, documentID DocumentID, userID UserID) ([]VersionRecord, error) {
	if _, _, err := s.documentWithRole(ctx, documentID, userID); err != nil {
		return nil, err
	}

	var versions []VersionRecord
	if err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID.String()).
		Order("version_number DESC").
		Limit(s.versionListLimit).
		Find(&versions).Error; err != nil {
		s.logError(opListVersions, "query_failed", err, zap.String("document_id", documentID.String()))
		return nil, newServiceError(opListVersions, "query_failed", err)
	}
	return versions, nil
}
