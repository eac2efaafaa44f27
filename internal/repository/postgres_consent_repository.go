package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fr-mccarty/outwardsign-sub009/internal/models"
)

// PostgresConsentRepository implements ConsentRepository,
// ParishSettingsRepository, and UserPermissionsRepository against the parish
// application's PostgreSQL database.
//
// The consents table carries a partial unique index on
// (user_id, parish_id, client_id) WHERE revoked_at IS NULL, so at most one
// active consent exists per triple while revoked history rows are kept.
type PostgresConsentRepository struct {
	getPool PoolGetter
}

// NewPostgresConsentRepository creates a new PostgreSQL consent repository.
func NewPostgresConsentRepository(poolGetter PoolGetter) *PostgresConsentRepository {
	return &PostgresConsentRepository{
		getPool: poolGetter,
	}
}

// UpsertConsent records a consent decision with an atomic scope union.
// The union and canonical reordering happen inside the single INSERT ... ON
// CONFLICT statement, so concurrent grants cannot lose scopes and the stored
// scope array only ever grows.
func (r *PostgresConsentRepository) UpsertConsent(
	ctx context.Context,
	userID, parishID, clientID string,
	scopes []string,
) (*models.Consent, error) {
	pool := r.getPool()
	if pool == nil {
		return nil, errors.New("database connection not available")
	}

	query := `
		INSERT INTO outwardsign.oauth_consents
		(consent_id, user_id, parish_id, client_id, scopes, granted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (user_id, parish_id, client_id) WHERE revoked_at IS NULL
		DO UPDATE SET
			scopes = (
				SELECT array_agg(s ORDER BY array_position($7::text[], s))
				FROM (
					SELECT DISTINCT unnest(oauth_consents.scopes || EXCLUDED.scopes) AS s
				) merged
			),
			updated_at = EXCLUDED.updated_at
		RETURNING consent_id, user_id, parish_id, client_id, scopes, granted_at, updated_at, revoked_at`

	now := time.Now()
	row := pool.QueryRow(ctx, query,
		uuid.New().String(),
		userID,
		parishID,
		clientID,
		models.UnionScopes(scopes, nil),
		now,
		models.ValidScopes,
	)

	consent, err := scanConsentRow(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert consent: %w", err)
	}

	return consent, nil
}

// GetConsent retrieves the active consent for the (user, parish, client)
// triple.
func (r *PostgresConsentRepository) GetConsent(
	ctx context.Context,
	userID, parishID, clientID string,
) (*models.Consent, error) {
	pool := r.getPool()
	if pool == nil {
		return nil, errors.New("database connection not available")
	}

	query := `
		SELECT consent_id, user_id, parish_id, client_id, scopes, granted_at, updated_at, revoked_at
		FROM outwardsign.oauth_consents
		WHERE user_id = $1 AND parish_id = $2 AND client_id = $3 AND revoked_at IS NULL`

	consent, err := scanConsentRow(pool.QueryRow(ctx, query, userID, parishID, clientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConsentNotFound
		}
		return nil, fmt.Errorf("failed to get consent: %w", err)
	}

	return consent, nil
}

// GetConsentByID retrieves a consent record by its identifier.
func (r *PostgresConsentRepository) GetConsentByID(ctx context.Context, consentID string) (*models.Consent, error) {
	pool := r.getPool()
	if pool == nil {
		return nil, errors.New("database connection not available")
	}

	query := `
		SELECT consent_id, user_id, parish_id, client_id, scopes, granted_at, updated_at, revoked_at
		FROM outwardsign.oauth_consents
		WHERE consent_id = $1`

	consent, err := scanConsentRow(pool.QueryRow(ctx, query, consentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConsentNotFound
		}
		return nil, fmt.Errorf("failed to get consent: %w", err)
	}

	return consent, nil
}

// RevokeConsent marks the active consent for the triple as revoked and
// returns the revoked record.
func (r *PostgresConsentRepository) RevokeConsent(
	ctx context.Context,
	userID, parishID, clientID string,
) (*models.Consent, error) {
	pool := r.getPool()
	if pool == nil {
		return nil, errors.New("database connection not available")
	}

	query := `
		UPDATE outwardsign.oauth_consents
		SET revoked_at = $4, updated_at = $4
		WHERE user_id = $1 AND parish_id = $2 AND client_id = $3 AND revoked_at IS NULL
		RETURNING consent_id, user_id, parish_id, client_id, scopes, granted_at, updated_at, revoked_at`

	consent, err := scanConsentRow(pool.QueryRow(ctx, query, userID, parishID, clientID, time.Now()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConsentNotFound
		}
		return nil, fmt.Errorf("failed to revoke consent: %w", err)
	}

	return consent, nil
}

// ListUserConsents retrieves all active consents a user has granted within a
// parish.
func (r *PostgresConsentRepository) ListUserConsents(
	ctx context.Context,
	parishID, userID string,
) ([]*models.Consent, error) {
	pool := r.getPool()
	if pool == nil {
		return nil, errors.New("database connection not available")
	}

	query := `
		SELECT consent_id, user_id, parish_id, client_id, scopes, granted_at, updated_at, revoked_at
		FROM outwardsign.oauth_consents
		WHERE parish_id = $1 AND user_id = $2 AND revoked_at IS NULL
		ORDER BY updated_at DESC`

	rows, err := pool.Query(ctx, query, parishID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user consents: %w", err)
	}
	defer rows.Close()

	var consents []*models.Consent
	for rows.Next() {
		consent, scanErr := scanConsentRow(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan consent: %w", scanErr)
		}
		consents = append(consents, consent)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating consent rows: %w", err)
	}

	return consents, nil
}

// GetParishSettings retrieves a parish's OAuth posture.
func (r *PostgresConsentRepository) GetParishSettings(
	ctx context.Context,
	parishID string,
) (*models.ParishSettings, error) {
	pool := r.getPool()
	if pool == nil {
		return nil, errors.New("database connection not available")
	}

	query := `
		SELECT parish_id, name, oauth_enabled, allowed_scopes, updated_at
		FROM outwardsign.parish_settings
		WHERE parish_id = $1`

	var settings models.ParishSettings
	err := pool.QueryRow(ctx, query, parishID).Scan(
		&settings.ParishID,
		&settings.Name,
		&settings.OAuthEnabled,
		&settings.AllowedScopes,
		&settings.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrParishNotFound
		}
		return nil, fmt.Errorf("failed to get parish settings: %w", err)
	}

	return &settings, nil
}

// UpdateParishSettings changes a parish's OAuth posture.
func (r *PostgresConsentRepository) UpdateParishSettings(
	ctx context.Context,
	parishID string,
	req *models.UpdateParishSettingsRequest,
) error {
	pool := r.getPool()
	if pool == nil {
		return errors.New("database connection not available")
	}

	query := `
		UPDATE outwardsign.parish_settings
		SET oauth_enabled = $2, allowed_scopes = $3, updated_at = $4
		WHERE parish_id = $1`

	result, err := pool.Exec(ctx, query, parishID, req.OAuthEnabled, req.AllowedScopes, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update parish settings: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrParishNotFound
	}

	return nil
}

// GetUserPermissions retrieves a user's OAuth scope allowlist.
// Returns (nil, nil) when the parish administrators have not set one.
func (r *PostgresConsentRepository) GetUserPermissions(
	ctx context.Context,
	parishID, userID string,
) (*models.UserOAuthPermissions, error) {
	pool := r.getPool()
	if pool == nil {
		return nil, errors.New("database connection not available")
	}

	query := `
		SELECT user_id, parish_id, allowed_scopes, granted_by, updated_at
		FROM outwardsign.oauth_user_permissions
		WHERE parish_id = $1 AND user_id = $2`

	var perms models.UserOAuthPermissions
	var grantedBy *string
	err := pool.QueryRow(ctx, query, parishID, userID).Scan(
		&perms.UserID,
		&perms.ParishID,
		&perms.AllowedScopes,
		&grantedBy,
		&perms.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user permissions: %w", err)
	}

	if grantedBy != nil {
		perms.GrantedBy = *grantedBy
	}

	return &perms, nil
}

// SetUserPermissions creates or replaces a user's OAuth scope allowlist.
func (r *PostgresConsentRepository) SetUserPermissions(
	ctx context.Context,
	perms *models.UserOAuthPermissions,
) error {
	pool := r.getPool()
	if pool == nil {
		return errors.New("database connection not available")
	}

	query := `
		INSERT INTO outwardsign.oauth_user_permissions
		(user_id, parish_id, allowed_scopes, granted_by, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, parish_id)
		DO UPDATE SET allowed_scopes = EXCLUDED.allowed_scopes,
		              granted_by = EXCLUDED.granted_by,
		              updated_at = EXCLUDED.updated_at`

	_, err := pool.Exec(ctx, query,
		perms.UserID,
		perms.ParishID,
		perms.AllowedScopes,
		perms.GrantedBy,
		time.Now(),
	)

	if err != nil {
		return fmt.Errorf("failed to set user permissions: %w", err)
	}

	return nil
}

// scanConsentRow scans a consent from a database row.
func scanConsentRow(row pgx.Row) (*models.Consent, error) {
	var consent models.Consent
	var revokedAt *time.Time

	err := row.Scan(
		&consent.ID,
		&consent.UserID,
		&consent.ParishID,
		&consent.ClientID,
		&consent.Scopes,
		&consent.GrantedAt,
		&consent.UpdatedAt,
		&revokedAt,
	)

	if err != nil {
		return nil, err
	}

	consent.RevokedAt = revokedAt
	return &consent, nil
}
