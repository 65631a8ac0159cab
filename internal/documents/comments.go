package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	opCreateComment  = "documents.create_comment"
	opListComments   = "documents.list_comments"
	opUpdateComment  = "documents.update_comment"
	opResolveComment = "documents.resolve_comment"
	opDeleteComment  = "documents.delete_comment"
)

// ErrInvalidComment indicates an empty body or a reply to a missing parent.
var ErrInvalidComment = errors.New("documents: invalid comment")

// CreateCommentRequest carries the inputs for a new comment or reply.
type CreateCommentRequest struct {
	DocumentID  DocumentID
	UserID      UserID
	Body        string
	AnchorStart *int64
	AnchorEnd   *int64
	LineNumber  *int64
	ParentID    string
}

// CreateComment inserts a root comment or a reply. Any collaborator,
// including viewers, may comment.
func (s *Service) CreateComment(ctx context.Context, req CreateCommentRequest) (Comment, error) {
	if _, _, err := s.documentWithRole(ctx, req.DocumentID, req.UserID); err != nil {
		return Comment{}, err
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return Comment{}, fmt.Errorf("%w: empty body", ErrInvalidComment)
	}

	if req.ParentID != "" {
		var parent Comment
		err := s.db.WithContext(ctx).
			Where("comment_id = ? AND document_id = ?", req.ParentID, req.DocumentID.String()).
			Take(&parent).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Comment{}, fmt.Errorf("%w: parent %s", ErrInvalidComment, req.ParentID)
		}
		if err != nil {
			return Comment{}, newServiceError(opCreateComment, "parent_lookup_failed", err)
		}
		if parent.ParentID != "" {
			return Comment{}, fmt.Errorf("%w: replies cannot nest", ErrInvalidComment)
		}
	}

	commentID, err := s.idProvider.NewID()
	if err != nil {
		return Comment{}, newServiceError(opCreateComment, "id_generation_failed", err)
	}
	now := s.clock().UTC()
	comment := Comment{
		CommentID:   commentID,
		DocumentID:  req.DocumentID.String(),
		UserID:      req.UserID.String(),
		Body:        body,
		AnchorStart: req.AnchorStart,
		AnchorEnd:   req.AnchorEnd,
		LineNumber:  req.LineNumber,
		ParentID:    req.ParentID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(&comment).Error; err != nil {
		s.logError(opCreateComment, "insert_failed", err, zap.String("document_id", req.DocumentID.String()))
		return Comment{}, newServiceError(opCreateComment, "insert_failed", err)
	}
	return comment, nil
}

// ListCommentThreads returns root comments in creation order, each with
// its ordered replies.
func (s *Service) ListCommentThreads(ctx context.Context, documentID DocumentID, userID UserID) ([]CommentThread, error) {
	if _, _, err := s.documentWithRole(ctx, documentID, userID); err != nil {
		return nil, err
	}

	var comments []Comment
	if err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID.String()).
		Order("created_at ASC").
		Find(&comments).Error; err != nil {
		s.logError(opListComments, "query_failed", err, zap.String("document_id", documentID.String()))
		return nil, newServiceError(opListComments, "query_failed", err)
	}

	threads := make([]CommentThread, 0)
	index := make(map[string]int)
	for _, comment := range comments {
		if comment.ParentID == "" {
			index[comment.CommentID] = len(threads)
			threads = append(threads, CommentThread{Root: comment})
		}
	}
	for _, comment := range comments {
		if comment.ParentID == "" {
			continue
		}
		if at, ok := index[comment.ParentID]; ok {
			threads[at].Replies = append(threads[at].Replies, comment)
		}
	}
	return threads, nil
}

// UpdateComment edits the body. Only the author may edit.
func (s *Service) UpdateComment(ctx context.Context, commentID string, userID UserID, body string) error {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return fmt.Errorf("%w: empty body", ErrInvalidComment)
	}

	result := s.db.WithContext(ctx).Model(&Comment{}).
		Where("comment_id = ? AND user_id = ?", commentID, userID.String()).
		Updates(map[string]interface{}{"body": trimmed, "updated_at": s.clock().UTC()})
	if result.Error != nil {
		s.logError(opUpdateComment, "update_failed", result.Error, zap.String("comment_id", commentID))
		return newServiceError(opUpdateComment, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: comment %s", ErrNotFound, commentID)
	}
	return nil
}

// SetCommentResolved toggles the resolved flag. Any collaborator with
// write access may resolve.
func (s *Service) SetCommentResolved(ctx context.Context, commentID string, userID UserID, resolved bool) error {
	comment, err := s.commentByID(ctx, commentID)
	if err != nil {
		return err
	}
	documentID, err := NewDocumentID(comment.DocumentID)
	if err != nil {
		return newServiceError(opResolveComment, "invalid_document_id", err)
	}
	if _, err := s.requireRole(ctx, documentID, userID, Role.CanWrite); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Model(&Comment{}).
		Where("comment_id = ?", commentID).
		Updates(map[string]interface{}{"resolved": resolved, "updated_at": s.clock().UTC()}).
		Error; err != nil {
		s.logError(opResolveComment, "update_failed", err, zap.String("comment_id", commentID))
		return newServiceError(opResolveComment, "update_failed", err)
	}
	return nil
}

// DeleteComment removes a comment and its replies. The author or a
// document manager may delete.
func (s *Service) DeleteComment(ctx context.Context, commentID string, userID UserID) error {
	comment, err := s.commentByID(ctx, commentID)
	if err != nil {
		return err
	}
	if comment.UserID != userID.String() {
		documentID, err := NewDocumentID(comment.DocumentID)
		if err != nil {
			return newServiceError(opDeleteComment, "invalid_document_id", err)
		}
		if _, err := s.requireRole(ctx, documentID, userID, Role.CanManage); err != nil {
			return err
		}
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("parent_id = ?", commentID).Delete(&Comment{}).Error; err != nil {
			return err
		}
		return tx.Where("comment_id = ?", commentID).Delete(&Comment{}).Error
	})
	if txErr != nil {
		s.logError(opDeleteComment, "transaction_failed", txErr, zap.String("comment_id", commentID))
		return newServiceError(opDeleteComment, "transaction_failed", txErr)
	}
	return nil
}

func (s *Service) commentByID(ctx context.Context, commentID string) (Comment, error) {
	var comment Comment
	err := s.db.WithContext(ctx).
		Where("comment_id = ?", commentID).
		Take(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Comment{}, fmt.Errorf("%w: comment %s", ErrNotFound, commentID)
	}
	if err != nil {
		return Comment{}, newServiceError(opListComments, "query_failed", err)
	}
	return comment, nil
}
