package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fr-mccarty/outwardsign-sub009/internal/models"
	"github.com/fr-mccarty/outwardsign-sub009/internal/repository"
	"github.com/fr-mccarty/outwardsign-sub009/internal/token"
)

// IntrospectToken validates and returns information about a token per
// RFC 7662. Resource servers call this to check bearer tokens; integrations
// may also introspect their own refresh tokens. Anything the server cannot
// positively identify as live comes back as Active: false.
func (s *OAuth2Service) IntrospectToken(
	ctx context.Context,
	req *models.IntrospectionRequest,
) (*models.IntrospectionResponse, error) {
	s.logger.WithFields(map[string]interface{}{
		"client_id":       req.ClientID,
		"token_type_hint": req.TokenTypeHint,
	}).Debug("Processing token introspection request")

	if _, err := s.ValidateClient(ctx, req.ClientID, req.ClientSecret); err != nil {
		return nil, err
	}

	if req.Token == "" {
		return nil, models.NewInvalidRequest("token is required")
	}

	if strings.HasPrefix(req.Token, token.RefreshTokenPrefix) {
		return s.introspectRefreshToken(ctx, req.Token), nil
	}

	return s.introspectAccessToken(ctx, req.Token), nil
}

// introspectAccessToken inspects a JWT access token. The signature check
// alone is not enough: revocation and consent withdrawal are recorded in
// storage and the blacklist, so both are consulted.
func (s *OAuth2Service) introspectAccessToken(ctx context.Context, tokenString string) *models.IntrospectionResponse {
	accessToken, claims, err := s.tokenSvc.ValidateAccessToken(tokenString)
	if err != nil {
		return &models.IntrospectionResponse{Active: false}
	}

	if blacklisted, blErr := s.store.IsTokenBlacklisted(ctx, claims.ID); blErr != nil {
		s.logger.WithError(blErr).Error("Failed to check token blacklist")
		return &models.IntrospectionResponse{Active: false}
	} else if blacklisted {
		return &models.IntrospectionResponse{Active: false}
	}

	// The stored record is authoritative for revocation state. A missing
	// record means the token expired out of the store or was never issued
	// by this server.
	stored, err := s.store.GetAccessToken(ctx, claims.ID)
	if err != nil || stored.Revoked {
		return &models.IntrospectionResponse{Active: false}
	}

	return &models.IntrospectionResponse{
		Active:    true,
		ClientID:  accessToken.ClientID,
		Scope:     models.FormatScopes(accessToken.Scopes),
		TokenType: models.TokenTypeBearer,
		ExpiresAt: claims.ExpiresAt.Unix(),
		IssuedAt:  claims.IssuedAt.Unix(),
		Subject:   claims.Subject,
		Audience:  claims.Audience,
		Issuer:    claims.Issuer,
		JWTID:     claims.ID,
		ParishID:  accessToken.ParishID,
	}
}

// introspectRefreshToken inspects an opaque refresh token. Rotated tokens
// are reported inactive even though their record still exists.
func (s *OAuth2Service) introspectRefreshToken(ctx context.Context, tokenString string) *models.IntrospectionResponse {
	prefix, err := token.LookupPrefixFor(tokenString, token.RefreshTokenPrefix, token.TokenLookupLength)
	if err != nil {
		return &models.IntrospectionResponse{Active: false}
	}

	refreshToken, err := s.store.GetRefreshToken(ctx, prefix)
	if err != nil {
		return &models.IntrospectionResponse{Active: false}
	}

	if verifyErr := token.VerifyOpaqueToken(refreshToken.TokenHash, tokenString); verifyErr != nil {
		return &models.IntrospectionResponse{Active: false}
	}

	if refreshToken.Revoked || refreshToken.IsRotated() || refreshToken.IsExpired() {
		return &models.IntrospectionResponse{Active: false}
	}

	return &models.IntrospectionResponse{
		Active:    true,
		ClientID:  refreshToken.ClientID,
		Scope:     models.FormatScopes(refreshToken.Scopes),
		ExpiresAt: refreshToken.ExpiresAt.Unix(),
		IssuedAt:  refreshToken.CreatedAt.Unix(),
		Subject:   refreshToken.UserID,
		ParishID:  refreshToken.ParishID,
	}
}

// RevokeToken revokes an access or refresh token per RFC 7009. The endpoint
// returns success regardless of whether the token was found: revocation is
// idempotent and unknown tokens reveal nothing.
func (s *OAuth2Service) RevokeToken(ctx context.Context, req *models.RevocationRequest) error {
	s.logger.WithFields(map[string]interface{}{
		"client_id":       req.ClientID,
		"token_type_hint": req.TokenTypeHint,
	}).Debug("Processing token revocation request")

	if _, err := s.ValidateClient(ctx, req.ClientID, req.ClientSecret); err != nil {
		return err
	}

	if req.Token == "" {
		return models.NewInvalidRequest("token is required")
	}

	switch req.TokenTypeHint {
	case "refresh_token":
		if s.revokeRefreshTokenValue(ctx, req.Token) {
			return nil
		}
		s.revokeAccessTokenValue(ctx, req.Token)
	default:
		// Wrong or missing hints fall through to trying both token kinds,
		// as the RFC requires.
		if s.revokeAccessTokenValue(ctx, req.Token) {
			return nil
		}
		s.revokeRefreshTokenValue(ctx, req.Token)
	}

	return nil
}

// revokeAccessTokenValue revokes a JWT access token. The jti goes on the
// blacklist for the token's remaining lifetime so the signed JWT stops
// working immediately.
func (s *OAuth2Service) revokeAccessTokenValue(ctx context.Context, tokenString string) bool {
	_, claims, err := s.tokenSvc.ValidateAccessToken(tokenString)
	if err != nil {
		return false
	}

	if revokeErr := s.store.RevokeAccessToken(ctx, claims.ID); revokeErr != nil {
		s.logger.WithError(revokeErr).Warn("Failed to revoke access token record")
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl > 0 {
		if blErr := s.store.BlacklistToken(ctx, claims.ID, ttl); blErr != nil {
			s.logger.WithError(blErr).Error("Failed to blacklist revoked access token")
		}
	}

	s.logger.WithField("jti", claims.ID).Info("Access token revoked")
	return true
}

// revokeRefreshTokenValue revokes an opaque refresh token along with the
// access token issued beside it.
func (s *OAuth2Service) revokeRefreshTokenValue(ctx context.Context, tokenString string) bool {
	prefix, err := token.LookupPrefixFor(tokenString, token.RefreshTokenPrefix, token.TokenLookupLength)
	if err != nil {
		return false
	}

	refreshToken, err := s.store.GetRefreshToken(ctx, prefix)
	if err != nil {
		return false
	}

	if verifyErr := token.VerifyOpaqueToken(refreshToken.TokenHash, tokenString); verifyErr != nil {
		return false
	}

	if revokeErr := s.store.RevokeRefreshToken(ctx, prefix); revokeErr != nil {
		s.logger.WithError(revokeErr).Warn("Failed to revoke refresh token record")
	}

	if refreshToken.AccessTokenID != "" {
		if revokeErr := s.store.RevokeAccessToken(ctx, refreshToken.AccessTokenID); revokeErr == nil {
			if blErr := s.store.BlacklistToken(ctx, refreshToken.AccessTokenID, s.config.JWT.AccessTokenExpiry); blErr != nil {
				s.logger.WithError(blErr).Error("Failed to blacklist associated access token")
			}
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"client_id": refreshToken.ClientID,
		"user_id":   refreshToken.UserID,
	}).Info("Refresh token revoked")
	return true
}

// ValidateAccessToken validates a bearer token for resource access. Beyond
// the JWT checks it consults the blacklist and the stored record, so revoked
// tokens fail here even while their signature is still valid.
func (s *OAuth2Service) ValidateAccessToken(ctx context.Context, tokenString string) (*models.AccessToken, error) {
	accessToken, claims, err := s.tokenSvc.ValidateAccessToken(tokenString)
	if err != nil {
		return nil, models.NewInvalidGrant("invalid access token")
	}

	blacklisted, err := s.store.IsTokenBlacklisted(ctx, claims.ID)
	if err != nil {
		s.logger.WithError(err).Error("Failed to check token blacklist")
		return nil, models.NewServerError("token validation failed")
	}
	if blacklisted {
		return nil, models.NewInvalidGrant("token has been revoked")
	}

	if stored, storeErr := s.store.GetAccessToken(ctx, claims.ID); storeErr == nil && stored.Revoked {
		return nil, models.NewInvalidGrant("token has been revoked")
	}

	return accessToken, nil
}

// GetUserInfo returns the member profile behind an access token. The token
// must carry the profile scope; the profile comes from the parish member
// directory, not from token claims, so deactivated members stop resolving
// even while their tokens are live.
func (s *OAuth2Service) GetUserInfo(ctx context.Context, accessToken string) (*models.UserInfo, error) {
	tokenObj, err := s.ValidateAccessToken(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	if !models.ScopesCover(tokenObj.Scopes, []string{models.ScopeProfile}) {
		return nil, models.NewInvalidScope("profile scope is required")
	}

	if tokenObj.UserID == "" {
		return nil, models.NewInvalidRequest("token carries no user context")
	}

	userID, err := uuid.Parse(tokenObj.UserID)
	if err != nil {
		return nil, models.NewInvalidRequest("token carries an invalid user identifier")
	}

	member, err := s.memberRepo.GetMemberByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrMemberNotFound) {
			return nil, models.NewInvalidGrant("member not found")
		}
		s.logger.WithError(err).Error("Failed to load member for userinfo")
		return nil, models.NewServerError("failed to load member profile")
	}

	if !member.IsActive {
		return nil, models.NewInvalidGrant("member is deactivated")
	}

	parishName := ""
	if settings, settingsErr := s.parishRepo.GetParishSettings(ctx, tokenObj.ParishID); settingsErr == nil {
		parishName = settings.Name
	}

	return member.ToUserInfo(parishName), nil
}
