package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/fr-mccarty/outwardsign-sub009/internal/models"
)

// ErrMemberNotFound is returned when a member does not exist in the parish
// database.
var ErrMemberNotFound = errors.New("member not found")

// MemberRepository defines the interface for parish member persistence.
// Members are authenticated upstream by the main application; this service
// reads them to anchor consents and serve the userinfo endpoint.
type MemberRepository interface {
	// CreateMember creates a new member record.
	CreateMember(ctx context.Context, member *models.Member) error

	// GetMemberByID retrieves a member by their UUID.
	GetMemberByID(ctx context.Context, userID uuid.UUID) (*models.Member, error)

	// GetMemberByUsername retrieves a member by username within a parish.
	GetMemberByUsername(ctx context.Context, parishID, username string) (*models.Member, error)

	// UpdateMember updates an existing member's information.
	UpdateMember(ctx context.Context, member *models.Member) error

	// DeactivateMember soft-deletes a member by setting is_active to false.
	DeactivateMember(ctx context.Context, userID uuid.UUID) error

	// ListParishMembers retrieves all active members of a parish.
	ListParishMembers(ctx context.Context, parishID string) ([]*models.Member, error)
}
