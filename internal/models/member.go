package models

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"
)

// DefaultGravatarEmail is hashed when a member has no primary email.
const DefaultGravatarEmail = "foo@bar.baz"

// Member is a platform member profile (PostgreSQL)
type Member struct {
	ID           string       `json:"id" gorm:"primaryKey;size:64"`
	Username     string       `json:"username" gorm:"uniqueIndex;size:64"`
	DisplayName  string       `json:"displayName"`
	Gravatar     string       `json:"gravatar"`
	PrimaryEmail string       `json:"primaryEmail,omitempty" gorm:"index"`
	Config       MemberConfig `json:"config" gorm:"serializer:json"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// MemberConfig holds per-member delivery preferences.
type MemberConfig struct {
	// Notifications is keyed by publish channel (post, comment, follow, ...).
	Notifications map[string]ChannelPreference `json:"notifications"`
}

// ChannelPreference is a member's delivery preference for one channel.
type ChannelPreference struct {
	Email bool `json:"email"`
}

// EmailEnabled reports whether the member wants email for channel.
func (m *Member) EmailEnabled(channel string) bool {
	if m == nil || m.Config.Notifications == nil {
		return false
	}
	return m.Config.Notifications[channel].Email
}

// Doc returns the member as a joinable document.
func (m *Member) Doc() Doc {
	return Doc{
		"_id":          m.ID,
		"username":     m.Username,
		"displayName":  m.DisplayName,
		"gravatar":     m.Gravatar,
		"primaryEmail": m.PrimaryEmail,
		"config":       m.Config,
	}
}

// GravatarHash returns the gravatar hash for email, falling back to
// DefaultGravatarEmail.
func GravatarHash(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		email = DefaultGravatarEmail
	}
	sum := md5.Sum([]byte(email))
	return hex.EncodeToString(sum[:])
}
