package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fr-mccarty/outwardsign-sub009/internal/models"
)

// PoolGetter is a function that returns the current database connection pool.
type PoolGetter func() *pgxpool.Pool

// PostgresMemberRepository implements MemberRepository against the parish
// application's PostgreSQL database.
type PostgresMemberRepository struct {
	getPool PoolGetter
}

// NewPostgresMemberRepository creates a new PostgreSQL member repository.
// The poolGetter function allows the repository to always use the current
// active connection pool, supporting automatic reconnection.
func NewPostgresMemberRepository(poolGetter PoolGetter) *PostgresMemberRepository {
	return &PostgresMemberRepository{
		getPool: poolGetter,
	}
}

// CreateMember creates a new member record.
func (r *PostgresMemberRepository) CreateMember(ctx context.Context, member *models.Member) error {
	pool := r.getPool()
	if pool == nil {
		return errors.New("database connection not available")
	}

	query := `
		INSERT INTO outwardsign.members
		(user_id, parish_id, username, email, full_name, roles, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := pool.Exec(ctx, query,
		member.UserID,
		member.ParishID,
		member.Username,
		member.Email,
		member.FullName,
		member.Roles,
		member.IsActive,
		member.CreatedAt,
		member.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create member: %w", err)
	}

	return nil
}

// GetMemberByID retrieves a member by their UUID.
func (r *PostgresMemberRepository) GetMemberByID(ctx context.Context, userID uuid.UUID) (*models.Member, error) {
	query := `
		SELECT user_id, parish_id, username, email, full_name, roles, is_active, created_at, updated_at
		FROM outwardsign.members
		WHERE user_id = $1`

	return r.scanMember(ctx, query, userID)
}

// GetMemberByUsername retrieves a member by username within a parish.
func (r *PostgresMemberRepository) GetMemberByUsername(
	ctx context.Context,
	parishID, username string,
) (*models.Member, error) {
	query := `
		SELECT user_id, parish_id, username, email, full_name, roles, is_active, created_at, updated_at
		FROM outwardsign.members
		WHERE parish_id = $1 AND username = $2`

	return r.scanMember(ctx, query, parishID, username)
}

// UpdateMember updates an existing member's information.
func (r *PostgresMemberRepository) UpdateMember(ctx context.Context, member *models.Member) error {
	pool := r.getPool()
	if pool == nil {
		return errors.New("database connection not available")
	}

	query := `
		UPDATE outwardsign.members
		SET email = $2, full_name = $3, roles = $4, is_active = $5, updated_at = $6
		WHERE user_id = $1`

	result, err := pool.Exec(ctx, query,
		member.UserID,
		member.Email,
		member.FullName,
		member.Roles,
		member.IsActive,
		time.Now(),
	)

	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrMemberNotFound
	}

	return nil
}

// DeactivateMember soft-deletes a member by setting is_active to false.
func (r *PostgresMemberRepository) DeactivateMember(ctx context.Context, userID uuid.UUID) error {
	pool := r.getPool()
	if pool == nil {
		return errors.New("database connection not available")
	}

	query := `
		UPDATE outwardsign.members
		SET is_active = false, updated_at = $2
		WHERE user_id = $1`

	result, err := pool.Exec(ctx, query, userID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to deactivate member: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrMemberNotFound
	}

	return nil
}

// ListParishMembers retrieves all active members of a parish.
func (r *PostgresMemberRepository) ListParishMembers(ctx context.Context, parishID string) ([]*models.Member, error) {
	pool := r.getPool()
	if pool == nil {
		return nil, errors.New("database connection not available")
	}

	query := `
		SELECT user_id, parish_id, username, email, full_name, roles, is_active, created_at, updated_at
		FROM outwardsign.members
		WHERE parish_id = $1 AND is_active = true
		ORDER BY username`

	rows, err := pool.Query(ctx, query, parishID)
	if err != nil {
		return nil, fmt.Errorf("failed to list parish members: %w", err)
	}
	defer rows.Close()

	var members []*models.Member
	for rows.Next() {
		member, scanErr := scanMemberRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		members = append(members, member)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member rows: %w", err)
	}

	return members, nil
}

// scanMember is a helper method to scan a single member from a query.
func (r *PostgresMemberRepository) scanMember(
	ctx context.Context,
	query string,
	args ...interface{},
) (*models.Member, error) {
	pool := r.getPool()
	if pool == nil {
		return nil, errors.New("database connection not available")
	}

	member, err := scanMemberRow(pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, err
	}
	return member, nil
}

// scanMemberRow scans a member from a database row.
func scanMemberRow(row pgx.Row) (*models.Member, error) {
	var member models.Member
	var email, fullName *string

	err := row.Scan(
		&member.UserID,
		&member.ParishID,
		&member.Username,
		&email,
		&fullName,
		&member.Roles,
		&member.IsActive,
		&member.CreatedAt,
		&member.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan member: %w", err)
	}

	member.Email = email
	member.FullName = fullName

	return &member, nil
}
