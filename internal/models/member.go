package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Member represents a parish member as known to the authorization service.
// Authentication happens upstream in the main application; this service only
// needs enough identity to anchor consents and serve the userinfo endpoint.
type Member struct {
	UserID    uuid.UUID `json:"user_id"             redis:"user_id"`
	ParishID  string    `json:"parish_id"           redis:"parish_id"`
	Username  string    `json:"username"            redis:"username"`
	Email     *string   `json:"email,omitempty"     redis:"email"`
	FullName  *string   `json:"full_name,omitempty" redis:"full_name"`
	Roles     []string  `json:"roles,omitempty"     redis:"roles"`
	IsActive  bool      `json:"is_active"           redis:"is_active"`
	CreatedAt time.Time `json:"created_at"          redis:"created_at"`
	UpdatedAt time.Time `json:"updated_at"          redis:"updated_at"`
}

// HasRole reports whether the member holds the given parish role.
func (m *Member) HasRole(role string) bool {
	for _, r := range m.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ToUserInfo converts the member to the claims served by the userinfo
// endpoint for the "profile" scope.
func (m *Member) ToUserInfo(parishName string) *UserInfo {
	info := &UserInfo{
		Subject:    m.UserID.String(),
		ParishID:   m.ParishID,
		ParishName: parishName,
		Roles:      m.Roles,
		UpdatedAt:  m.UpdatedAt.Unix(),
	}
	if m.FullName != nil {
		info.Name = *m.FullName
	}
	if m.Email != nil {
		info.Email = *m.Email
		info.EmailVerified = true
	}
	return info
}

// UpdateParishSettingsRequest is the admin request to change a parish's OAuth
// posture.
type UpdateParishSettingsRequest struct {
	OAuthEnabled  bool     `json:"oauth_enabled"`
	AllowedScopes []string `json:"allowed_scopes,omitempty"`
}

// Validate checks that every listed scope is recognized.
func (req *UpdateParishSettingsRequest) Validate() error {
	for _, s := range req.AllowedScopes {
		if !IsValidScope(s) {
			return errors.New("unknown scope: " + s)
		}
	}
	return nil
}

// SetUserPermissionsRequest is the admin request to set a member's OAuth
// scope allowlist.
type SetUserPermissionsRequest struct {
	AllowedScopes []string `json:"allowed_scopes"`
}

// Validate checks that at least one scope is given and all are recognized.
func (req *SetUserPermissionsRequest) Validate() error {
	if len(req.AllowedScopes) == 0 {
		return errors.New("allowed_scopes is required")
	}
	for _, s := range req.AllowedScopes {
		if !IsValidScope(s) {
			return errors.New("unknown scope: " + s)
		}
	}
	return nil
}

// NewMember creates a member record for the given parish. Username is
// normalized to lower case; empty optional fields stay nil.
func NewMember(parishID, username, email, fullName string) *Member {
	now := time.Now()
	member := &Member{
		UserID:    uuid.New(),
		ParishID:  parishID,
		Username:  strings.ToLower(strings.TrimSpace(username)),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if email != "" {
		emailLower := strings.ToLower(strings.TrimSpace(email))
		member.Email = &emailLower
	}

	if fullName != "" {
		fullNameTrimmed := strings.TrimSpace(fullName)
		member.FullName = &fullNameTrimmed
	}

	return member
}
