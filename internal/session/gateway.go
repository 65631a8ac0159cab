package session

import (
	"context"
	"time"

	"github.com/inkwell-labs/inkwell/backend/internal/documents"
)

// DocumentInfo is the synchronizer's view of document metadata.
type DocumentInfo struct {
	DocumentID   string     `json:"document_id"`
	Title        string     `json:"title"`
	Kind         string     `json:"kind"`
	Language     string     `json:"language,omitempty"`
	OwnerID      string     `json:"owner_id"`
	LastEditedBy string     `json:"last_edited_by,omitempty"`
	LastEditedAt *time.Time `json:"last_edited_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Snapshot is the live content of a document at a revision.
type Snapshot struct {
	Content  string `json:"content"`
	Revision int64  `json:"revision"`
}

// Version is one entry of a document's saved history.
type Version struct {
	Number    int64     `json:"number"`
	Content   string    `json:"content"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Collaborator pairs a user with their granted role.
type Collaborator struct {
	UserID string         `json:"user_id"`
	Role   documents.Role `json:"role"`
}

// Presence is a fresh cursor position of another participant.
type Presence struct {
	UserID         string    `json:"user_id"`
	CursorPosition int64     `json:"cursor_position"`
	Color          string    `json:"color"`
	LastSeenAt     time.Time `json:"last_seen_at"`
}

// Comment is a single comment within a thread.
type Comment struct {
	CommentID   string    `json:"comment_id"`
	UserID      string    `json:"user_id"`
	Body        string    `json:"body"`
	AnchorStart *int64    `json:"anchor_start,omitempty"`
	AnchorEnd   *int64    `json:"anchor_end,omitempty"`
	LineNumber  *int64    `json:"line_number,omitempty"`
	Resolved    bool      `json:"resolved"`
	CreatedAt   time.Time `json:"created_at"`
}

// CommentThread is a root comment with its ordered replies.
type CommentThread struct {
	Root    Comment   `json:"root"`
	Replies []Comment `json:"replies,omitempty"`
}

// Gateway is the persistence surface a synchronizer drives. An
// implementation acts on behalf of one authenticated user; the
// synchronizer never passes its own identity. SaveContent must return
// documents.ErrStaleRevision, together with the current remote
// snapshot, when the base revision no longer matches.
type Gateway interface {
	FetchDocument(ctx context.Context, documentID string) (DocumentInfo, error)
	FetchContent(ctx context.Context, documentID string) (Snapshot, error)
	SaveContent(ctx context.Context, documentID, content string, baseRevision int64) (Snapshot, error)
	CreateVersion(ctx context.Context, documentID, content string) (Version, error)
	ListVersions(ctx context.Context, documentID string) ([]Version, error)
	ListCollaborators(ctx context.Context, documentID string) ([]Collaborator, error)
	ListCommentThreads(ctx context.Context, documentID string) ([]CommentThread, error)
	UpsertPresence(ctx context.Context, documentID string, cursorPosition int64, color string) error
	ListPresence(ctx context.Context, documentID string) ([]Presence, error)
	DeletePresence(ctx context.Context, documentID string) error
}
