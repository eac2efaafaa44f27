package repository

import (
	"context"
	"errors"

	"github.com/fr-mccarty/outwardsign-sub009/internal/models"
)

// ErrConsentNotFound is returned when no active consent exists for the
// requested user, parish, and client combination.
var ErrConsentNotFound = errors.New("consent not found")

// ConsentRepository defines the interface for durable consent persistence.
// The consent table is the source of truth; the Redis store only caches
// lookups. Granted scopes are monotonic: UpsertConsent unions new scopes
// into any existing record, and RevokeConsent is the only way to shrink a
// grant.
type ConsentRepository interface {
	// UpsertConsent records a consent decision. When no active consent
	// exists for the (user, parish, client) triple a new record is created;
	// otherwise the existing record's scopes are atomically unioned with the
	// new ones and its updated_at refreshed. Concurrent upserts must not
	// lose scopes. Returns the resulting consent record.
	UpsertConsent(ctx context.Context, userID, parishID, clientID string, scopes []string) (*models.Consent, error)

	// GetConsent retrieves the active (non-revoked) consent for the triple.
	// Returns ErrConsentNotFound when none exists.
	GetConsent(ctx context.Context, userID, parishID, clientID string) (*models.Consent, error)

	// GetConsentByID retrieves a consent record by its identifier, revoked
	// or not.
	GetConsentByID(ctx context.Context, consentID string) (*models.Consent, error)

	// RevokeConsent marks the active consent for the triple as revoked and
	// returns the revoked record so the caller can cascade token
	// revocation. Returns ErrConsentNotFound when no active consent exists.
	RevokeConsent(ctx context.Context, userID, parishID, clientID string) (*models.Consent, error)

	// ListUserConsents retrieves all active consents a user has granted
	// within a parish, most recently updated first.
	ListUserConsents(ctx context.Context, parishID, userID string) ([]*models.Consent, error)
}

// ParishSettingsRepository defines access to per-parish OAuth settings.
type ParishSettingsRepository interface {
	// GetParishSettings retrieves a parish's OAuth posture. Returns
	// ErrParishNotFound for unknown parishes.
	GetParishSettings(ctx context.Context, parishID string) (*models.ParishSettings, error)

	// UpdateParishSettings changes a parish's OAuth posture.
	UpdateParishSettings(ctx context.Context, parishID string, req *models.UpdateParishSettingsRequest) error
}

// ErrParishNotFound is returned when a parish does not exist.
var ErrParishNotFound = errors.New("parish not found")

// UserPermissionsRepository defines access to per-user OAuth scope
// allowlists set by parish administrators.
type UserPermissionsRepository interface {
	// GetUserPermissions retrieves a user's scope allowlist. Returns
	// (nil, nil) when no explicit record exists; the caller falls back to
	// models.DefaultUserScopes.
	GetUserPermissions(ctx context.Context, parishID, userID string) (*models.UserOAuthPermissions, error)

	// SetUserPermissions creates or replaces a user's scope allowlist.
	SetUserPermissions(ctx context.Context, perms *models.UserOAuthPermissions) error
}
