package documents

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"
)

const (
	opUpsertPresence = "documents.upsert_presence"
	opListPresence   = "documents.list_presence"
	opDeletePresence = "documents.delete_presence"
)

// UpsertPresence refreshes the caller's presence row for the document,
// keyed on (document, user).
func (s *Service) UpsertPresence(ctx context.Context, documentID DocumentID, userID UserID, cursorPosition int64, color string) error {
	if _, _, err := s.documentWithRole(ctx, documentID, userID); err != nil {
		return err
	}

	record := PresenceRecord{
		DocumentID:     documentID.String(),
		UserID:         userID.String(),
		CursorPosition: cursorPosition,
		Color:          color,
		LastSeenAt:     s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "document_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"cursor_position", "color", "last_seen"}),
		}).
		Create(&record).Error; err != nil {
		s.logError(opUpsertPresence, "upsert_failed", err,
			zap.String("document_id", documentID.String()),
			zap.String("user_id", userID.String()))
		return newServiceError(opUpsertPresence, "upsert_failed", err)
	}
	return nil
}

// ListPresence returns rows refreshed within the freshness window. Stale
// rows stay in the table and are simply filtered out here.
func (s *Service) ListPresence(ctx context.Context, documentID DocumentID, userID UserID) ([]PresenceRecord, error) {
	if _, _, err := s.documentWithRole(ctx, documentID, userID); err != nil {
		return nil, err
	}

	cutoff := s.clock().UTC().Add(-s.presenceFreshness)
	var records []PresenceRecord
	if err := s.db.WithContext(ctx).
		Where("document_id = ? AND last_seen >= ?", documentID.String(), cutoff).
		Order("last_seen DESC").
		Find(&records).Error; err != nil {
		s.logError(opListPresence, "query_failed", err, zap.String("document_id", documentID.String()))
		return nil, newServiceError(opListPresence, "query_failed", err)
	}
	return records, nil
}

// DeletePresence removes the caller's own presence row. Deleting a row
// that no longer exists is not an error; session teardown is best-effort.
func (s *Service) DeletePresence(ctx context.Context, documentID DocumentID, userID UserID) error {
	if err := s.db.WithContext(ctx).
		Where("document_id = ? AND user_id = ?", documentID.String(), userID.String()).
		Delete(&PresenceRecord{}).Error; err != nil {
		s.logError(opDeletePresence, "delete_failed", err,
			zap.String("document_id", documentID.String()),
			zap.String("user_id", userID.String()))
		return newServiceError(opDeletePresence, "delete_failed", err)
	}
	return nil
}
