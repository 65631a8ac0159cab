package users

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
)

// ErrInvalidProfile indicates the supplied identity lacks a usable identifier.
var ErrInvalidProfile = errors.New("users: invalid profile")

// ProfileInput carries the attributes supplied when a profile is created or refreshed.
type ProfileInput struct {
	UserID    string
	Username  string
	Email     string
	AvatarURL string
}

// ServiceConfig describes the dependencies required for profile management.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service manages user profiles.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	cache sync.Map
}

// NewService constructs the profile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:  cfg.Database,
		now: clock,
	}, nil
}

// Ensure creates the profile on first sight and refreshes mutable attributes
// on subsequent calls. It returns the stored profile.
func (s *Service) Ensure(ctx context.Context, input ProfileInput) (Profile, error) {
	userID := normalize(input.UserID)
	if userID == "" {
		return Profile{}, ErrInvalidProfile
	}

	var profile Profile
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&profile).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		profile = Profile{
			UserID:     userID,
			Username:   normalize(input.Username),
			Email:      normalize(input.Email),
			Role:       AccountRoleUser,
			AvatarURL:  normalize(input.AvatarURL),
			LastSeenAt: s.now(),
		}
		if err := s.db.WithContext(ctx).Create(&profile).Error; err != nil {
			return Profile{}, err
		}
		s.cache.Store(userID, profile.UserID)
		return profile, nil
	} else if err != nil {
		return Profile{}, err
	}

	updates := map[string]interface{}{}
	if username := normalize(input.Username); username != "" && username != profile.Username {
		updates["username"] = username
		profile.Username = username
	}
	if email := normalize(input.Email); email != "" && email != profile.Email {
		updates["email"] = email
		profile.Email = email
	}
	if avatar := normalize(input.AvatarURL); avatar != "" && avatar != profile.AvatarURL {
		updates["avatar_url"] = avatar
		profile.AvatarURL = avatar
	}
	updates["last_seen_at"] = s.now()
	if err := s.db.WithContext(ctx).Model(&Profile{}).
		Where("user_id = ?", userID).
		Updates(updates).
		Error; err != nil {
		return Profile{}, err
	}

	s.cache.Store(userID, profile.UserID)
	return profile, nil
}

// Get returns the stored profile for the given user identifier.
func (s *Service) Get(ctx context.Context, userID string) (Profile, error) {
	trimmed := normalize(userID)
	if trimmed == "" {
		return Profile{}, ErrInvalidProfile
	}
	var profile Profile
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", trimmed).
		First(&profile).
		Error; err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// Exists reports whether a profile has been created for the identifier.
func (s *Service) Exists(ctx context.Context, userID string) (bool, error) {
	trimmed := normalize(userID)
	if trimmed == "" {
		return false, nil
	}
	if _, ok := s.cache.Load(trimmed); ok {
		return true, nil
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&Profile{}).
		Where("user_id = ?", trimmed).
		Count(&count).
		Error; err != nil {
		return false, err
	}
	if count > 0 {
		s.cache.Store(trimmed, trimmed)
	}
	return count > 0, nil
}
