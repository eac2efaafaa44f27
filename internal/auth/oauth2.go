// Package auth implements the OAuth2 token-side services: the token
// endpoint with its three grant types, token introspection and revocation,
// and the userinfo endpoint. The authorization side of the flow (consent
// resolution and code issuance) lives in the consent package.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fr-mccarty/outwardsign-sub009/internal/config"
	"github.com/fr-mccarty/outwardsign-sub009/internal/models"
	"github.com/fr-mccarty/outwardsign-sub009/internal/redis"
	"github.com/fr-mccarty/outwardsign-sub009/internal/repository"
	"github.com/fr-mccarty/outwardsign-sub009/internal/token"
)

// Service defines the token-side OAuth2 operations.
type Service interface {
	// Token handles the token endpoint for all supported grant types:
	// authorization_code (with PKCE verification), refresh_token (with
	// rotation), and client_credentials.
	Token(ctx context.Context, req *models.TokenRequest) (*models.TokenResponse, error)

	// IntrospectToken implements RFC 7662 token introspection. Unknown,
	// expired, and revoked tokens all produce an inactive response rather
	// than an error.
	IntrospectToken(ctx context.Context, req *models.IntrospectionRequest) (*models.IntrospectionResponse, error)

	// RevokeToken implements RFC 7009 token revocation. Per the RFC it
	// succeeds even when the token is unknown or already revoked; only
	// client authentication failures surface as errors.
	RevokeToken(ctx context.Context, req *models.RevocationRequest) error

	// GetUserInfo returns the member profile for a bearer access token
	// carrying the profile scope.
	GetUserInfo(ctx context.Context, accessToken string) (*models.UserInfo, error)

	// ValidateAccessToken validates a bearer token for resource access:
	// signature, expiry, blacklist, and stored revocation state.
	ValidateAccessToken(ctx context.Context, tokenString string) (*models.AccessToken, error)

	// ValidateClient authenticates client credentials against the registry.
	ValidateClient(ctx context.Context, clientID, clientSecret string) (*models.Client, error)

	// RegisterClient creates a new OAuth2 client registration and returns
	// it with the plaintext secret, which is shown only once.
	RegisterClient(
		ctx context.Context,
		name string,
		redirectURIs []string,
		scopes []string,
		grantTypes []string,
		confidential bool,
	) (*models.Client, error)

	// GetClient retrieves a client registration by ID.
	GetClient(ctx context.Context, clientID string) (*models.Client, error)

	// UpdateClientSecret rotates a confidential client's secret and returns
	// the new plaintext secret.
	UpdateClientSecret(ctx context.Context, clientID, currentSecret string) (string, error)
}

// OAuth2Service implements the Service interface.
type OAuth2Service struct {
	config     *config.Config
	store      redis.Store
	clientRepo repository.ClientRepository
	memberRepo repository.MemberRepository
	parishRepo repository.ParishSettingsRepository
	tokenSvc   token.Service
	pkceSvc    token.PKCEService
	logger     *logrus.Logger
}

// NewOAuth2Service creates a new OAuth2 token service with the provided
// dependencies.
func NewOAuth2Service(
	cfg *config.Config,
	store redis.Store,
	clientRepo repository.ClientRepository,
	memberRepo repository.MemberRepository,
	parishRepo repository.ParishSettingsRepository,
	tokenSvc token.Service,
	pkceSvc token.PKCEService,
	logger *logrus.Logger,
) *OAuth2Service {
	return &OAuth2Service{
		config:     cfg,
		store:      store,
		clientRepo: clientRepo,
		memberRepo: memberRepo,
		parishRepo: parishRepo,
		tokenSvc:   tokenSvc,
		pkceSvc:    pkceSvc,
		logger:     logger,
	}
}

// Token handles OAuth2 token requests for all supported grant types.
func (s *OAuth2Service) Token(ctx context.Context, req *models.TokenRequest) (*models.TokenResponse, error) {
	s.logger.WithFields(logrus.Fields{
		"grant_type": req.GrantType,
		"client_id":  req.ClientID,
	}).Info("Processing token request")

	if err := s.validateTokenRequest(req); err != nil {
		return nil, err
	}

	client, err := s.authenticateTokenClient(ctx, req)
	if err != nil {
		return nil, err
	}

	if !client.HasGrantType(req.GrantType) {
		return nil, models.NewInvalidGrant("grant type not allowed for this client")
	}

	switch req.GrantType {
	case models.GrantTypeAuthorizationCode:
		return s.handleAuthorizationCodeGrant(ctx, req, client)
	case models.GrantTypeRefreshToken:
		return s.handleRefreshTokenGrant(ctx, req, client)
	case models.GrantTypeClientCredentials:
		return s.handleClientCredentialsGrant(ctx, req, client)
	default:
		return nil, models.ErrUnsupportedGrantType
	}
}

// validateTokenRequest checks the request carries the parameters its grant
// type requires.
func (s *OAuth2Service) validateTokenRequest(req *models.TokenRequest) error {
	if req.GrantType == "" {
		return models.NewInvalidRequest("grant_type is required")
	}
	if req.ClientID == "" {
		return models.NewInvalidRequest("client_id is required")
	}

	switch req.GrantType {
	case models.GrantTypeAuthorizationCode:
		if req.Code == "" {
			return models.NewInvalidRequest("code is required")
		}
		if req.RedirectURI == "" {
			return models.NewInvalidRequest("redirect_uri is required")
		}
	case models.GrantTypeRefreshToken:
		if req.RefreshToken == "" {
			return models.NewInvalidRequest("refresh_token is required")
		}
	case models.GrantTypeClientCredentials:
		if req.ClientSecret == "" {
			return models.NewInvalidClient("client_secret is required for client_credentials")
		}
	}

	return nil
}

// authenticateTokenClient resolves the client and verifies its credentials.
// Confidential clients must present their secret; public clients must not,
// and rely on PKCE for proof of possession instead.
func (s *OAuth2Service) authenticateTokenClient(
	ctx context.Context,
	req *models.TokenRequest,
) (*models.Client, error) {
	client, err := s.clientRepo.GetClientByID(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, repository.ErrClientNotFound) {
			return nil, models.NewInvalidClient("client not found")
		}
		s.logger.WithError(err).Error("Failed to look up client during token request")
		return nil, models.NewServerError("client lookup failed")
	}

	if !client.IsActive {
		return nil, models.NewInvalidClient("client is inactive")
	}

	if client.Confidential {
		if req.ClientSecret == "" {
			return nil, models.NewInvalidClient("client authentication required")
		}
		if verifyErr := VerifyClientSecret(client.Secret, req.ClientSecret); verifyErr != nil {
			s.logger.WithField("client_id", req.ClientID).Warn("Invalid client secret on token request")
			return nil, models.NewInvalidClient("invalid client credentials")
		}
	} else if req.ClientSecret != "" {
		return nil, models.NewInvalidClient("public clients must not send a client secret")
	}

	return client, nil
}

// handleAuthorizationCodeGrant exchanges an authorization code for tokens.
// The code is single use: a replayed code is rejected and deleted so any
// concurrent exchange also fails.
func (s *OAuth2Service) handleAuthorizationCodeGrant(
	ctx context.Context,
	req *models.TokenRequest,
	client *models.Client,
) (*models.TokenResponse, error) {
	authCode, err := s.fetchAndValidateAuthCode(ctx, req, client)
	if err != nil {
		return nil, err
	}

	if pkceErr := s.verifyCodeExchangePKCE(authCode, req, client); pkceErr != nil {
		return nil, pkceErr
	}

	if markErr := s.store.MarkAuthorizationCodeUsed(ctx, authCode); markErr != nil {
		s.logger.WithError(markErr).Error("Failed to mark authorization code as used")
		return nil, models.NewServerError("failed to consume authorization code")
	}

	resp, _, err := s.issueTokens(ctx, client, token.AccessTokenInput{
		ClientID:  authCode.ClientID,
		UserID:    authCode.UserID,
		ParishID:  authCode.ParishID,
		ConsentID: authCode.ConsentID,
		Scopes:    authCode.Scopes,
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"client_id": authCode.ClientID,
		"user_id":   authCode.UserID,
		"parish_id": authCode.ParishID,
	}).Info("Authorization code exchanged for tokens")

	return resp, nil
}

// fetchAndValidateAuthCode looks the code up by its prefix, verifies the
// full value against the stored hash, and checks single-use, expiry, and
// the client and redirect URI bindings.
func (s *OAuth2Service) fetchAndValidateAuthCode(
	ctx context.Context,
	req *models.TokenRequest,
	client *models.Client,
) (*models.AuthorizationCode, error) {
	prefix, err := token.LookupPrefixFor(req.Code, token.AuthorizationCodePrefix, token.CodeLookupLength)
	if err != nil {
		return nil, models.NewInvalidGrant("invalid authorization code")
	}

	authCode, err := s.store.GetAuthorizationCode(ctx, prefix)
	if err != nil {
		return nil, models.NewInvalidGrant("invalid or expired authorization code")
	}

	if verifyErr := token.VerifyOpaqueToken(authCode.CodeHash, req.Code); verifyErr != nil {
		return nil, models.NewInvalidGrant("invalid authorization code")
	}

	if authCode.IsUsed() {
		s.logger.WithFields(logrus.Fields{
			"client_id": authCode.ClientID,
			"user_id":   authCode.UserID,
		}).Warn("Authorization code replay detected")
		_ = s.store.DeleteAuthorizationCode(ctx, authCode.CodePrefix)
		return nil, models.NewInvalidGrant("authorization code has already been used")
	}

	if authCode.IsExpired() {
		_ = s.store.DeleteAuthorizationCode(ctx, authCode.CodePrefix)
		return nil, models.NewInvalidGrant("authorization code has expired")
	}

	if authCode.ClientID != client.ID {
		return nil, models.NewInvalidGrant("authorization code was not issued to this client")
	}

	if authCode.RedirectURI != req.RedirectURI {
		return nil, models.NewInvalidGrant("redirect_uri does not match the authorization request")
	}

	return authCode, nil
}

// verifyCodeExchangePKCE checks the code_verifier against the challenge
// bound to the authorization code. Public clients must always complete
// PKCE; confidential clients only when the authorization request carried
// a challenge.
func (s *OAuth2Service) verifyCodeExchangePKCE(
	authCode *models.AuthorizationCode,
	req *models.TokenRequest,
	client *models.Client,
) error {
	if authCode.CodeChallenge == "" {
		if !client.Confidential {
			return models.NewInvalidGrant("PKCE is required for public clients")
		}
		return nil
	}

	if req.CodeVerifier == "" {
		return models.NewInvalidRequest("code_verifier is required")
	}

	method := token.ParseCodeChallengeMethod(authCode.CodeChallengeMethod)
	if !s.pkceSvc.ValidateCodeChallenge(req.CodeVerifier, authCode.CodeChallenge, method) {
		s.logger.WithField("client_id", authCode.ClientID).Warn("PKCE verification failed on code exchange")
		return models.NewInvalidGrant("PKCE verification failed")
	}

	return nil
}

// handleRefreshTokenGrant exchanges a refresh token for a new token pair.
// Refresh tokens rotate on every use: the presented token is stamped with
// its replacement and can never be exchanged again.
func (s *OAuth2Service) handleRefreshTokenGrant(
	ctx context.Context,
	req *models.TokenRequest,
	client *models.Client,
) (*models.TokenResponse, error) {
	prefix, err := token.LookupPrefixFor(req.RefreshToken, token.RefreshTokenPrefix, token.TokenLookupLength)
	if err != nil {
		return nil, models.NewInvalidGrant("invalid refresh token")
	}

	refreshToken, err := s.store.GetRefreshToken(ctx, prefix)
	if err != nil {
		return nil, models.NewInvalidGrant("invalid or expired refresh token")
	}

	if verifyErr := token.VerifyOpaqueToken(refreshToken.TokenHash, req.RefreshToken); verifyErr != nil {
		return nil, models.NewInvalidGrant("invalid refresh token")
	}

	if refreshToken.Revoked {
		return nil, models.NewInvalidGrant("refresh token has been revoked")
	}

	if refreshToken.IsRotated() {
		s.logger.WithFields(logrus.Fields{
			"client_id": refreshToken.ClientID,
			"user_id":   refreshToken.UserID,
		}).Warn("Rotated refresh token replayed")
		return nil, models.NewInvalidGrant("refresh token has been rotated")
	}

	if refreshToken.IsExpired() {
		_ = s.store.DeleteRefreshToken(ctx, refreshToken.TokenPrefix)
		return nil, models.NewInvalidGrant("refresh token has expired")
	}

	if refreshToken.ClientID != client.ID {
		return nil, models.NewInvalidGrant("refresh token was not issued to this client")
	}

	scopes, err := s.narrowRefreshScopes(refreshToken.Scopes, req.Scope)
	if err != nil {
		return nil, err
	}

	resp, newRefreshID, err := s.issueTokens(ctx, client, token.AccessTokenInput{
		ClientID:  refreshToken.ClientID,
		UserID:    refreshToken.UserID,
		ParishID:  refreshToken.ParishID,
		ConsentID: refreshToken.ConsentID,
		Scopes:    scopes,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	refreshToken.RotatedAt = &now
	refreshToken.ReplacedByID = newRefreshID
	if updateErr := s.store.UpdateRefreshToken(ctx, refreshToken); updateErr != nil {
		s.logger.WithError(updateErr).Error("Failed to stamp rotated refresh token")
	}

	s.logger.WithFields(logrus.Fields{
		"client_id": refreshToken.ClientID,
		"user_id":   refreshToken.UserID,
	}).Info("Refresh token rotated")

	return resp, nil
}

// narrowRefreshScopes applies the optional scope parameter of a refresh
// request. The requested scopes must be a subset of the original grant;
// widening is rejected.
func (s *OAuth2Service) narrowRefreshScopes(granted []string, requested string) ([]string, error) {
	if requested == "" {
		return granted, nil
	}

	scopes := models.ParseScopes(requested)
	if len(scopes) == 0 {
		return nil, models.NewInvalidScope("no valid scopes requested")
	}

	if !models.IsScopeSubset(scopes, granted) {
		return nil, models.NewInvalidScope("requested scopes exceed the original grant")
	}

	return scopes, nil
}

// handleClientCredentialsGrant issues an access token for server-to-server
// calls. Only confidential clients may use it, no user or consent context
// is attached, and no refresh token is issued.
func (s *OAuth2Service) handleClientCredentialsGrant(
	ctx context.Context,
	req *models.TokenRequest,
	client *models.Client,
) (*models.TokenResponse, error) {
	if !client.Confidential {
		return nil, models.NewInvalidClient("client_credentials requires a confidential client")
	}

	scopes := client.Scopes
	if req.Scope != "" {
		requested := models.ParseScopes(req.Scope)
		scopes = models.IntersectScopes(requested, client.Scopes)
		if len(scopes) == 0 {
			return nil, models.NewInvalidScope("no valid scopes requested")
		}
	}

	accessTokenStr, accessTokenObj, err := s.tokenSvc.GenerateAccessToken(token.AccessTokenInput{
		ClientID: client.ID,
		Scopes:   scopes,
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to generate access token")
		return nil, models.NewServerError("failed to generate access token")
	}

	// Client credentials tokens are short-lived service tokens with their
	// own expiry, distinct from user-grant access tokens.
	accessTokenObj.ExpiresAt = accessTokenObj.CreatedAt.Add(s.config.OAuth2.ClientCredentialsExpiry)

	if storeErr := s.store.StoreAccessToken(ctx, accessTokenObj, s.config.OAuth2.ClientCredentialsExpiry); storeErr != nil {
		s.logger.WithError(storeErr).Error("Failed to store access token")
		return nil, models.NewServerError("failed to store access token")
	}

	s.logger.WithField("client_id", client.ID).Info("Client credentials token issued")

	return &models.TokenResponse{
		AccessToken: accessTokenStr,
		TokenType:   models.TokenTypeBearer,
		ExpiresIn:   int(s.config.OAuth2.ClientCredentialsExpiry.Seconds()),
		Scope:       models.FormatScopes(scopes),
	}, nil
}

// issueTokens mints and stores an access token, plus a refresh token when
// the client is registered for the refresh_token grant. The second return
// value is the new refresh token's record ID, which rotation stamps onto
// the token it replaces.
func (s *OAuth2Service) issueTokens(
	ctx context.Context,
	client *models.Client,
	input token.AccessTokenInput,
) (*models.TokenResponse, string, error) {
	accessTokenStr, accessTokenObj, err := s.tokenSvc.GenerateAccessToken(input)
	if err != nil {
		s.logger.WithError(err).Error("Failed to generate access token")
		return nil, "", models.NewServerError("failed to generate access token")
	}

	if storeErr := s.store.StoreAccessToken(ctx, accessTokenObj, s.config.JWT.AccessTokenExpiry); storeErr != nil {
		s.logger.WithError(storeErr).Error("Failed to store access token")
		return nil, "", models.NewServerError("failed to store access token")
	}

	resp := &models.TokenResponse{
		AccessToken: accessTokenStr,
		TokenType:   models.TokenTypeBearer,
		ExpiresIn:   int(s.config.JWT.AccessTokenExpiry.Seconds()),
		Scope:       models.FormatScopes(input.Scopes),
	}

	if !client.HasGrantType(models.GrantTypeRefreshToken) {
		return resp, "", nil
	}

	opaque, err := token.GenerateRefreshTokenValue()
	if err != nil {
		s.logger.WithError(err).Error("Failed to generate refresh token")
		// The access token is already issued; return it without a refresh
		// token rather than failing the whole exchange.
		return resp, "", nil
	}

	refreshTokenObj := models.NewRefreshToken(models.RefreshTokenParams{
		TokenHash:     opaque.Hash,
		TokenPrefix:   opaque.LookupPrefix,
		AccessTokenID: accessTokenObj.ID,
		ClientID:      input.ClientID,
		UserID:        input.UserID,
		ParishID:      input.ParishID,
		ConsentID:     input.ConsentID,
		Scopes:        input.Scopes,
		ExpiresAt:     time.Now().Add(s.config.JWT.RefreshTokenExpiry),
	})

	if storeErr := s.store.StoreRefreshToken(ctx, refreshTokenObj, s.config.JWT.RefreshTokenExpiry); storeErr != nil {
		s.logger.WithError(storeErr).Error("Failed to store refresh token")
		return resp, "", nil
	}

	resp.RefreshToken = opaque.Token
	return resp, refreshTokenObj.ID, nil
}
