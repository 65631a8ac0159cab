package users

import (
	"strings"
	"time"
)

// AccountRole distinguishes regular accounts from administrators.
type AccountRole string

const (
	// AccountRoleUser is the default role for every profile.
	AccountRoleUser AccountRole = "user"
	// AccountRoleAdmin marks accounts allowed to manage other profiles.
	AccountRoleAdmin AccountRole = "admin"
)

// Profile captures the account record for a single user.
type Profile struct {
	UserID      string      `gorm:"column:user_id;primaryKey;size:190;not null"`
	Username    string      `gorm:"column:username;size:190"`
	Email       string      `gorm:"column:email;size:320"`
	Role        AccountRole `gorm:"column:role;size:32;not null;default:user"`
	AvatarURL   string      `gorm:"column:avatar_url;size:512"`
	LastSeenAt  time.Time   `gorm:"column:last_seen_at;autoUpdateTime"`
	CreatedAt   time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user profiles.
func (Profile) TableName() string {
	return "profiles"
}

// normalize value helper used across service implementation.
func normalize(value string) string {
	return strings.TrimSpace(value)
}
