package documents

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidDocumentID indicates that a document identifier is empty or exceeds storage bounds.
	ErrInvalidDocumentID = errors.New("documents: invalid document id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("documents: invalid user id")
	// ErrInvalidTitle indicates that a document title is empty.
	ErrInvalidTitle = errors.New("documents: invalid title")
	// ErrInvalidRole indicates an unknown collaborator role.
	ErrInvalidRole = errors.New("documents: invalid role")
	// ErrInvalidKind indicates an unknown document kind.
	ErrInvalidKind = errors.New("documents: invalid document kind")
)

// DocumentID represents a validated document identifier.
type DocumentID string

// NewDocumentID validates raw input and returns a DocumentID.
func NewDocumentID(rawInput string) (DocumentID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDocumentID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidDocumentID, maxIdentifierLength)
	}
	return DocumentID(trimmed), nil
}

// String returns the underlying string identifier.
func (id DocumentID) String() string {
	return string(id)
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// Kind distinguishes rich-text documents from code files. Both share the
// same lifecycle; only the content payload differs.
type Kind string

const (
	// KindRichText marks documents whose content is a rich-text delta.
	KindRichText Kind = "rich_text"
	// KindCode marks documents whose content is raw source text.
	KindCode Kind = "code"
)

// ParseKind validates a raw document kind.
func ParseKind(value string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(KindRichText):
		return KindRichText, nil
	case string(KindCode):
		return KindCode, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, value)
	}
}

// Role enumerates collaborator access levels.
type Role string

const (
	// RoleOwner has full control, including sharing and deletion.
	RoleOwner Role = "owner"
	// RoleEditor may read and mutate content.
	RoleEditor Role = "editor"
	// RoleViewer may only read.
	RoleViewer Role = "viewer"
)

// ParseRole validates a raw collaborator role.
func ParseRole(value string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(RoleOwner):
		return RoleOwner, nil
	case string(RoleEditor):
		return RoleEditor, nil
	case string(RoleViewer):
		return RoleViewer, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, value)
	}
}

// CanWrite reports whether the role may mutate document content.
func (r Role) CanWrite() bool {
	return r == RoleOwner || r == RoleEditor
}

// CanManage reports whether the role may share, rename and delete.
func (r Role) CanManage() bool {
	return r == RoleOwner
}

// Document models a rich-text document or code file.
type Document struct {
	DocumentID   string     `gorm:"column:document_id;primaryKey;size:190;not null"`
	Title        string     `gorm:"column:title;size:512;not null"`
	Kind         Kind       `gorm:"column:kind;size:32;not null"`
	Language     string     `gorm:"column:language;size:64"`
	OwnerID      string     `gorm:"column:owner_id;size:190;not null;index:idx_documents_owner_updated,priority:1"`
	LastEditedBy string     `gorm:"column:last_edited_by;size:190"`
	LastEditedAt *time.Time `gorm:"column:last_edited_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;index:idx_documents_owner_updated,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Document) TableName() string {
	return "documents"
}

// ContentSnapshot is the single live content row for a document. It is
// overwritten in place on every accepted save; the revision counter is
// the optimistic-concurrency token carried by clients.
type ContentSnapshot struct {
	DocumentID string    `gorm:"column:document_id;primaryKey;size:190;not null"`
	Content    string    `gorm:"column:content;type:text;not null"`
	Revision   int64     `gorm:"column:revision;not null;default:1"`
	UpdatedBy  string    `gorm:"column:updated_by;size:190"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

// TableName provides the explicit table binding for GORM.
func (ContentSnapshot) TableName() string {
	return "document_content"
}

// VersionRecord is an immutable historical copy of document content.
// The version number is assigned by the server inside the creating
// transaction and is unique per document.
type VersionRecord struct {
	VersionID  string    `gorm:"column:version_id;primaryKey;size:190;not null"`
	DocumentID string    `gorm:"column:document_id;size:190;not null;uniqueIndex:idx_versions_doc_number,priority:1"`
	Number     int64     `gorm:"column:version_number;not null;uniqueIndex:idx_versions_doc_number,priority:2"`
	Content    string    `gorm:"column:content;type:text;not null"`
	CreatedBy  string    `gorm:"column:created_by;size:190"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (VersionRecord) TableName() string {
	return "document_versions"
}

// CollaboratorGrant records explicit access for a user on a document.
// The document owner holds access implicitly and has no grant row.
type CollaboratorGrant struct {
	GrantID    string    `gorm:"column:grant_id;primaryKey;size:190;not null"`
	DocumentID string    `gorm:"column:document_id;size:190;not null;uniqueIndex:idx_grants_doc_user,priority:1"`
	UserID     string    `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_grants_doc_user,priority:2"`
	Role       Role      `gorm:"column:role;size:32;not null"`
	InvitedBy  string    `gorm:"column:invited_by;size:190"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (CollaboratorGrant) TableName() string {
	return "collaborators"
}

// PresenceRecord tracks a user's live cursor within a document. Rows
// older than the freshness window are invisible to readers; they are
// never reaped.
type PresenceRecord struct {
	DocumentID     string    `gorm:"column:document_id;primaryKey;size:190;not null"`
	UserID         string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	CursorPosition int64     `gorm:"column:cursor_position;not null;default:0"`
	Color          string    `gorm:"column:color;size:32"`
	LastSeenAt     time.Time `gorm:"column:last_seen;not null;index"`
}

// TableName provides the explicit table binding for GORM.
func (PresenceRecord) TableName() string {
	return "active_users"
}

// InvitationStatus tracks the lifecycle of a shareable invitation.
type InvitationStatus string

const (
	// InvitationPending marks an invitation that can still be redeemed.
	InvitationPending InvitationStatus = "pending"
	// InvitationAccepted marks an invitation converted into a grant.
	InvitationAccepted InvitationStatus = "accepted"
	// InvitationDeclined marks an invitation rejected by its recipient.
	InvitationDeclined InvitationStatus = "declined"
)

// Invitation is a shareable token that converts into a CollaboratorGrant
// on acceptance.
type Invitation struct {
	InvitationID string           `gorm:"column:invitation_id;primaryKey;size:190;not null"`
	DocumentID   string           `gorm:"column:document_id;size:190;not null;index"`
	Token        string           `gorm:"column:token;size:190;not null;uniqueIndex"`
	Role         Role             `gorm:"column:role;size:32;not null"`
	CreatedBy    string           `gorm:"column:created_by;size:190;not null"`
	Status       InvitationStatus `gorm:"column:status;size:32;not null;default:pending"`
	AcceptedBy   string           `gorm:"column:accepted_by;size:190"`
	ExpiresAt    *time.Time       `gorm:"column:expires_at"`
	MaxUses      *int64           `gorm:"column:max_uses"`
	UseCount     int64            `gorm:"column:use_count;not null;default:0"`
	CreatedAt    time.Time        `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Invitation) TableName() string {
	return "document_invitations"
}

// Comment is a root comment or a reply within a thread. Rich-text
// comments anchor to a character range, code comments to a line.
type Comment struct {
	CommentID   string    `gorm:"column:comment_id;primaryKey;size:190;not null"`
	DocumentID  string    `gorm:"column:document_id;size:190;not null;index:idx_comments_doc_time,priority:1"`
	UserID      string    `gorm:"column:user_id;size:190;not null"`
	Body        string    `gorm:"column:body;type:text;not null"`
	AnchorStart *int64    `gorm:"column:anchor_start"`
	AnchorEnd   *int64    `gorm:"column:anchor_end"`
	LineNumber  *int64    `gorm:"column:line_number"`
	ParentID    string    `gorm:"column:parent_id;size:190;index"`
	Resolved    bool      `gorm:"column:resolved;not null;default:false"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime;index:idx_comments_doc_time,priority:2"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

// TableName provides the explicit table binding for GORM.
func (Comment) TableName() string {
	return "comments"
}

// CommentThread pairs a root comment with its ordered replies.
type CommentThread struct {
	Root    Comment
	Replies []Comment
}
