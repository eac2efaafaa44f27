package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/fr-mccarty/outwardsign-sub009/internal/config"
	"github.com/fr-mccarty/outwardsign-sub009/internal/models"
)

// Service defines the interface for JWT access token generation and
// validation. Access tokens are signed JWTs carrying the client, user,
// parish, and consent context of the grant; refresh tokens and
// authorization codes are opaque (see opaque.go) and never pass through
// this interface.
type Service interface {
	// GenerateAccessToken creates a new OAuth2 access token as a signed JWT.
	// The token carries the grant context (client, user, parish, consent) and
	// the granted scopes, and expires after the configured access token
	// lifetime.
	//
	// Returns the signed JWT string, the access token record for storage and
	// introspection, and any error from signing.
	GenerateAccessToken(input AccessTokenInput) (string, *models.AccessToken, error)

	// ValidateAccessToken validates and parses an access token JWT.
	//
	// Validation includes:
	//   - Signature verification using the configured algorithm and secret
	//   - Algorithm verification to prevent confusion attacks
	//   - Expiry and not-before validation
	//   - Token type verification (must be "access_token")
	//
	// Revocation is not checked here: the caller must consult storage, since
	// a signed JWT stays cryptographically valid after revocation.
	//
	// Returns the access token record reconstructed from claims, the parsed
	// claims, and any validation error.
	ValidateAccessToken(tokenString string) (*models.AccessToken, *Claims, error)

	// ExtractClaims extracts JWT claims from a token without full validation.
	// The signature is still verified; expiry and other claim checks are
	// skipped. Useful for logging and debugging, never for authorization
	// decisions.
	ExtractClaims(tokenString string) (jwt.MapClaims, error)
}

// Claims is the JWT claim set used for access tokens. It extends the
// standard registered claims with the OAuth2 grant context.
type Claims struct {
	jwt.RegisteredClaims

	// ClientID identifies the OAuth2 client the token was issued to.
	ClientID string `json:"client_id,omitempty"`

	// UserID identifies the user who approved the grant. Empty for
	// client credentials tokens, which carry no user context.
	UserID string `json:"user_id,omitempty"`

	// ParishID is the parish whose data the token grants access to.
	ParishID string `json:"parish_id,omitempty"`

	// ConsentID links the token to the consent record it was issued under,
	// so revoking the consent can revoke the token.
	ConsentID string `json:"consent_id,omitempty"`

	// Scopes are the granted OAuth2 scopes.
	Scopes []string `json:"scopes,omitempty"`

	// Type identifies the token type and must be "access_token".
	Type string `json:"type"`
}

// AccessTokenInput groups the grant context for minting an access token.
type AccessTokenInput struct {
	ClientID  string
	UserID    string
	ParishID  string
	ConsentID string
	Scopes    []string
}

// JWTService implements the Service interface using the golang-jwt library
// and the configured signing algorithm and secret.
type JWTService struct {
	config *config.JWTConfig
}

// NewJWTService creates a new JWT service instance with the provided
// configuration. The configuration supplies the signing algorithm, secret,
// issuer, and access token lifetime.
func NewJWTService(cfg *config.JWTConfig) Service {
	return &JWTService{
		config: cfg,
	}
}

// GenerateAccessToken creates a new access token as a signed JWT.
// The JWT ID (jti) is a fresh UUID and doubles as the storage key for the
// token record, which is what introspection and revocation operate on.
// All timestamps use the server clock at mint time.
func (s *JWTService) GenerateAccessToken(input AccessTokenInput) (string, *models.AccessToken, error) {
	now := time.Now()
	expiresAt := now.Add(s.config.AccessTokenExpiry)
	jwtID := uuid.New().String()

	jwtClaims := &Claims{
		ClientID:  input.ClientID,
		UserID:    input.UserID,
		ParishID:  input.ParishID,
		ConsentID: input.ConsentID,
		Scopes:    input.Scopes,
		Type:      "access_token",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jwtID,
			Subject:   input.UserID,
			Audience:  []string{input.ClientID},
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.GetSigningMethod(s.config.Algorithm), jwtClaims)

	tokenString, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign JWT token: %w", err)
	}

	accessToken := &models.AccessToken{
		ID:        jwtID,
		ClientID:  input.ClientID,
		UserID:    input.UserID,
		ParishID:  input.ParishID,
		ConsentID: input.ConsentID,
		Scopes:    input.Scopes,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		TokenType: models.TokenTypeBearer,
		Revoked:   false,
	}

	return tokenString, accessToken, nil
}

// ValidateAccessToken validates and parses an access token JWT. The signing
// method is pinned to the configured algorithm before the secret is handed
// to the parser, so a caller cannot downgrade to "none" or swap HMAC for
// RSA verification.
func (s *JWTService) ValidateAccessToken(tokenString string) (*models.AccessToken, *Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.GetSigningMethod(s.config.Algorithm) {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})

	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse JWT token: %w", err)
	}

	if !token.Valid {
		return nil, nil, errors.New("invalid JWT token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, nil, errors.New("invalid JWT claims")
	}

	if claims.Type != "access_token" {
		return nil, nil, fmt.Errorf("invalid token type: expected access_token, got %s", claims.Type)
	}

	accessToken := &models.AccessToken{
		ID:        claims.ID,
		ClientID:  claims.ClientID,
		UserID:    claims.UserID,
		ParishID:  claims.ParishID,
		ConsentID: claims.ConsentID,
		Scopes:    claims.Scopes,
		ExpiresAt: claims.ExpiresAt.Time,
		CreatedAt: claims.IssuedAt.Time,
		TokenType: models.TokenTypeBearer,
		Revoked:   false,
	}

	return accessToken, claims, nil
}

// ExtractClaims extracts JWT claims from a token without full validation.
// The signature and signing method are still verified; expiry and other
// claim validations are skipped so expired tokens can be inspected.
func (s *JWTService) ExtractClaims(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.GetSigningMethod(s.config.Algorithm) {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithoutClaimsValidation())

	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT token: %w", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok {
		return claims, nil
	}

	return nil, errors.New("invalid JWT claims")
}
