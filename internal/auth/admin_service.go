package auth

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/fr-mccarty/outwardsign-sub009/internal/config"
	"github.com/fr-mccarty/outwardsign-sub009/internal/models"
	"github.com/fr-mccarty/outwardsign-sub009/internal/redis"
)

// AdminService defines the interface for administrative operations over the
// grant store.
type AdminService interface {
	// GetGrantStats retrieves statistics about the authorization artifacts
	// currently held in the hot store.
	GetGrantStats(ctx context.Context, req *models.GrantStatsRequest) (*models.GrantStats, error)

	// ForceLogoutUser clears all authorization sessions for a specific user.
	ForceLogoutUser(ctx context.Context, userID string) (*models.ForceLogoutResponse, error)
}

// adminService implements the AdminService interface.
type adminService struct {
	config *config.Config
	store  redis.Store
	logger *logrus.Logger
}

// NewAdminService creates a new admin service instance with the provided dependencies.
func NewAdminService(
	cfg *config.Config,
	store redis.Store,
	logger *logrus.Logger,
) AdminService {
	return &adminService{
		config: cfg,
		store:  store,
		logger: logger,
	}
}

// GetGrantStats retrieves statistics about stored authorization grants.
// It delegates to the store to collect counts of live codes, tokens, and
// sessions, plus optional TTL information based on the request parameters.
func (s *adminService) GetGrantStats(
	ctx context.Context,
	req *models.GrantStatsRequest,
) (*models.GrantStats, error) {
	s.logger.WithFields(logrus.Fields{
		"include_ttl_distribution": req.IncludeTTLDistribution,
		"include_ttl_summary":      req.IncludeTTLSummary,
	}).Info("Retrieving grant statistics")

	stats, err := s.store.GetGrantStats(ctx, req)
	if err != nil {
		s.logger.WithError(err).Error("Failed to retrieve grant statistics")
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"active_codes":          stats.ActiveCodes,
		"active_access_tokens":  stats.ActiveAccessTokens,
		"active_refresh_tokens": stats.ActiveRefreshTokens,
		"active_sessions":       stats.ActiveSessions,
	}).Info("Grant statistics retrieved successfully")

	return stats, nil
}

// ForceLogoutUser clears all authorization sessions for a specific user.
// Tokens already issued stay valid until revoked or expired; this only
// forces the user back through the consent screen.
func (s *adminService) ForceLogoutUser(ctx context.Context, userID string) (*models.ForceLogoutResponse, error) {
	s.logger.WithField("user_id", userID).Info("Force logging out user")

	count, err := s.store.ClearUserSessions(ctx, userID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("Failed to clear user sessions")
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"sessions_cleared": count,
		"user_id":          userID,
	}).Info("User sessions cleared successfully")

	return &models.ForceLogoutResponse{
		Success:         true,
		Message:         fmt.Sprintf("Successfully logged out user and cleared %d sessions", count),
		UserID:          userID,
		SessionsCleared: count,
	}, nil
}
