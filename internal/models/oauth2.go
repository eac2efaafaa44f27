// Package models defines the core data structures for the OutwardSign OAuth2
// service including clients, authorization codes, tokens, consents, and
// request/response models. All models support JSON marshaling and Redis
// storage with appropriate struct tags.
package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultSessionExpiry is the default authorization session duration.
	DefaultSessionExpiry = 24 * time.Hour
)

// GrantType represents the OAuth2 grant type for token requests.
type GrantType string

// ResponseType represents the OAuth2 response type for authorization requests.
type ResponseType string

// TokenType represents the type of access token (typically "Bearer").
type TokenType string

const (
	// GrantTypeAuthorizationCode represents the authorization code grant type.
	GrantTypeAuthorizationCode GrantType = "authorization_code"
	// GrantTypeClientCredentials represents the client credentials grant type.
	GrantTypeClientCredentials GrantType = "client_credentials"
	// GrantTypeRefreshToken represents the refresh token grant type.
	GrantTypeRefreshToken GrantType = "refresh_token"

	// ResponseTypeCode represents the authorization code response type.
	ResponseTypeCode ResponseType = "code"

	// TokenTypeBearer represents the Bearer token type.
	TokenTypeBearer TokenType = "Bearer"
)

// Client represents a registered OAuth2 integration with its configuration and
// credentials. The Secret field holds the bcrypt hash for confidential clients
// and is excluded from JSON serialization.
type Client struct {
	// ID is the unique client identifier.
	ID string `json:"id"            redis:"id"`
	// Secret is the bcrypt hash of the client secret (excluded from JSON).
	// Empty for public clients, which must use PKCE instead.
	Secret string `json:"-"             redis:"secret"`
	// Name is the human-readable integration name shown on the consent screen.
	Name string `json:"name"          redis:"name"`
	// RedirectURIs are the registered redirect URIs. Authorization requests
	// must present an exact string match against one of these.
	RedirectURIs []string `json:"redirect_uris" redis:"redirect_uris"`
	// Scopes are the OAuth2 scopes this client is allowed to request.
	Scopes []string `json:"scopes"        redis:"scopes"`
	// GrantTypes are the OAuth2 grant types this client supports.
	GrantTypes []string `json:"grant_types"   redis:"grant_types"`
	// Confidential indicates the client can keep a secret. Public clients
	// (mobile and browser apps) must authenticate code exchanges with PKCE.
	Confidential bool `json:"confidential"  redis:"confidential"`
	// CreatedAt is the client creation timestamp.
	CreatedAt time.Time `json:"created_at"    redis:"created_at"`
	// UpdatedAt is the last modification timestamp.
	UpdatedAt time.Time `json:"updated_at"    redis:"updated_at"`
	// IsActive indicates if the client is currently active.
	IsActive bool `json:"is_active"     redis:"is_active"`
	// CreatedBy tracks who or what system registered this client.
	CreatedBy *string `json:"created_by,omitempty" redis:"created_by"`
	// Metadata provides extensible storage for additional client data
	// (support contact, integration homepage, etc.).
	Metadata map[string]interface{} `json:"metadata,omitempty"   redis:"metadata"`
}

// ClientCacheEntry is used for internal caching and includes the secret hash.
// Unlike Client, this struct includes the secret field in JSON serialization.
// It must never appear in an HTTP response; it exists only for Redis caching.
type ClientCacheEntry struct {
	ID           string                 `json:"id"`
	Secret       string                 `json:"secret"`
	Name         string                 `json:"name"`
	RedirectURIs []string               `json:"redirect_uris"`
	Scopes       []string               `json:"scopes"`
	GrantTypes   []string               `json:"grant_types"`
	Confidential bool                   `json:"confidential"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
	IsActive     bool                   `json:"is_active"`
	CreatedBy    *string                `json:"created_by,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// ToClient converts a cache entry to a Client (for internal use).
func (c *ClientCacheEntry) ToClient() *Client {
	return &Client{
		ID:           c.ID,
		Secret:       c.Secret,
		Name:         c.Name,
		RedirectURIs: c.RedirectURIs,
		Scopes:       c.Scopes,
		GrantTypes:   c.GrantTypes,
		Confidential: c.Confidential,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		IsActive:     c.IsActive,
		CreatedBy:    c.CreatedBy,
		Metadata:     c.Metadata,
	}
}

// ToCacheEntry converts a Client to a cache entry for Redis storage.
func (c *Client) ToCacheEntry() *ClientCacheEntry {
	return &ClientCacheEntry{
		ID:           c.ID,
		Secret:       c.Secret,
		Name:         c.Name,
		RedirectURIs: c.RedirectURIs,
		Scopes:       c.Scopes,
		GrantTypes:   c.GrantTypes,
		Confidential: c.Confidential,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		IsActive:     c.IsActive,
		CreatedBy:    c.CreatedBy,
		Metadata:     c.Metadata,
	}
}

// AuthorizationCode represents a single-use authorization code minted after
// consent. The code itself is never stored: only its bcrypt hash plus a short
// lookup prefix, so a storage compromise does not leak usable codes.
type AuthorizationCode struct {
	// ID is the unique identifier of this code record.
	ID string `json:"id"                    redis:"id"`
	// CodeHash is the bcrypt hash of the full code string.
	CodeHash string `json:"code_hash"             redis:"code_hash"`
	// CodePrefix is the first characters of the code, used for lookup.
	CodePrefix string `json:"code_prefix"           redis:"code_prefix"`
	// ClientID is the ID of the client the code is bound to.
	ClientID string `json:"client_id"             redis:"client_id"`
	// UserID is the ID of the user who approved the request.
	UserID string `json:"user_id"               redis:"user_id"`
	// ParishID is the parish whose data the grant covers.
	ParishID string `json:"parish_id"             redis:"parish_id"`
	// ConsentID links the code to the consent it was issued under, so tokens
	// minted from it can be revoked when the consent is withdrawn.
	ConsentID string `json:"consent_id,omitempty"  redis:"consent_id"`
	// RedirectURI is the exact redirect URI the code is bound to.
	RedirectURI string `json:"redirect_uri"          redis:"redirect_uri"`
	// Scopes are the approved scopes for this code.
	Scopes []string `json:"scopes"                redis:"scopes"`
	// CodeChallenge is the PKCE code challenge.
	CodeChallenge string `json:"code_challenge"        redis:"code_challenge"`
	// CodeChallengeMethod is the PKCE code challenge method (plain or S256).
	CodeChallengeMethod string `json:"code_challenge_method" redis:"code_challenge_method"`
	// State is the client-provided state parameter.
	State string `json:"state"                 redis:"state"`
	// ExpiresAt is when this authorization code expires.
	ExpiresAt time.Time `json:"expires_at"            redis:"expires_at"`
	// CreatedAt is when this authorization code was created.
	CreatedAt time.Time `json:"created_at"            redis:"created_at"`
	// UsedAt records when the code was exchanged. A non-nil value means the
	// code is spent; presenting it again is an invalid_grant.
	UsedAt *time.Time `json:"used_at,omitempty"     redis:"used_at"`
}

// AccessToken represents an issued access token with associated metadata.
// The token string itself is a JWT; this record exists for introspection
// and revocation.
type AccessToken struct {
	// ID is the JWT ID (jti) of the token.
	ID string `json:"id"                redis:"id"`
	// ClientID is the ID of the client this token was issued to.
	ClientID string `json:"client_id"         redis:"client_id"`
	// UserID is the ID of the user (empty for client credentials tokens).
	UserID string `json:"user_id,omitempty" redis:"user_id"`
	// ParishID is the parish the token grants access to.
	ParishID string `json:"parish_id,omitempty" redis:"parish_id"`
	// ConsentID links the token to the consent it was issued under.
	ConsentID string `json:"consent_id,omitempty" redis:"consent_id"`
	// Scopes are the granted scopes for this token.
	Scopes []string `json:"scopes"            redis:"scopes"`
	// ExpiresAt is when this access token expires.
	ExpiresAt time.Time `json:"expires_at"        redis:"expires_at"`
	// CreatedAt is when this access token was created.
	CreatedAt time.Time `json:"created_at"        redis:"created_at"`
	// TokenType is the type of token (typically "Bearer").
	TokenType TokenType `json:"token_type"        redis:"token_type"`
	// Revoked indicates if this token has been revoked.
	Revoked bool `json:"revoked"           redis:"revoked"`
}

// RefreshToken represents an opaque refresh token used to obtain new access
// tokens. Stored hashed with a lookup prefix, like authorization codes.
// Refresh tokens rotate on use: the presented token is retired and replaced.
type RefreshToken struct {
	// ID is the unique identifier of this token record.
	ID string `json:"id"                     redis:"id"`
	// TokenHash is the bcrypt hash of the full token string.
	TokenHash string `json:"token_hash"             redis:"token_hash"`
	// TokenPrefix is the first characters of the token, used for lookup.
	TokenPrefix string `json:"token_prefix"           redis:"token_prefix"`
	// AccessTokenID is the jti of the access token issued alongside.
	AccessTokenID string `json:"access_token_id"        redis:"access_token_id"`
	// ClientID is the ID of the client this refresh token was issued to.
	ClientID string `json:"client_id"              redis:"client_id"`
	// UserID is the ID of the user (empty for client credentials tokens).
	UserID string `json:"user_id,omitempty"      redis:"user_id"`
	// ParishID is the parish the token grants access to.
	ParishID string `json:"parish_id,omitempty"    redis:"parish_id"`
	// ConsentID links the token to the consent it was issued under.
	ConsentID string `json:"consent_id,omitempty"   redis:"consent_id"`
	// Scopes are the granted scopes for this refresh token.
	Scopes []string `json:"scopes"                 redis:"scopes"`
	// ExpiresAt is when this refresh token expires.
	ExpiresAt time.Time `json:"expires_at"             redis:"expires_at"`
	// CreatedAt is when this refresh token was created.
	CreatedAt time.Time `json:"created_at"             redis:"created_at"`
	// RotatedAt records when this token was exchanged for its successor.
	// A rotated token must never be accepted again.
	RotatedAt *time.Time `json:"rotated_at,omitempty"   redis:"rotated_at"`
	// ReplacedByID is the ID of the token minted during rotation.
	ReplacedByID string `json:"replaced_by_id,omitempty" redis:"replaced_by_id"`
	// Revoked indicates if this refresh token has been revoked.
	Revoked bool `json:"revoked"                redis:"revoked"`
}

// Session represents an authorization flow session used to carry the pending
// request between the consent prompt and the user's decision.
type Session struct {
	// ID is the unique session identifier.
	ID string `json:"id"         redis:"id"`
	// UserID is the ID of the authenticated user.
	UserID string `json:"user_id"    redis:"user_id"`
	// ParishID is the parish context of the session.
	ParishID string `json:"parish_id"  redis:"parish_id"`
	// ClientID is the ID of the client requesting authorization.
	ClientID string `json:"client_id"  redis:"client_id"`
	// Data contains arbitrary session data for the authorization flow.
	Data map[string]interface{} `json:"data"       redis:"data"`
	// ExpiresAt is when this session expires.
	ExpiresAt time.Time `json:"expires_at" redis:"expires_at"`
	// CreatedAt is when this session was created.
	CreatedAt time.Time `json:"created_at" redis:"created_at"`
	// UpdatedAt is when this session was last updated.
	UpdatedAt time.Time `json:"updated_at" redis:"updated_at"`
}

// TokenRequest represents a request to the token endpoint.
// Supports authorization_code, client_credentials, and refresh_token grants.
type TokenRequest struct {
	// GrantType specifies the OAuth2 grant type being used.
	GrantType GrantType `json:"grant_type"              form:"grant_type"`
	// Code is the authorization code (required for authorization_code grant).
	Code string `json:"code,omitempty"          form:"code"`
	// RedirectURI must match the redirect URI used in the authorization request.
	RedirectURI string `json:"redirect_uri,omitempty"  form:"redirect_uri"`
	// ClientID is the client identifier.
	ClientID string `json:"client_id"               form:"client_id"`
	// ClientSecret is the client secret (confidential clients only).
	ClientSecret string `json:"client_secret,omitempty" form:"client_secret"`
	// RefreshToken is required for the refresh_token grant.
	RefreshToken string `json:"refresh_token,omitempty" form:"refresh_token"`
	// Scope specifies the requested scopes (space-delimited).
	Scope string `json:"scope,omitempty"         form:"scope"`
	// CodeVerifier is the PKCE code verifier for public clients.
	CodeVerifier string `json:"code_verifier,omitempty" form:"code_verifier"`
}

// TokenResponse represents a successful response from the token endpoint.
type TokenResponse struct {
	// AccessToken is the issued access token (a JWT).
	AccessToken string `json:"access_token"`
	// TokenType is the type of token issued (typically "Bearer").
	TokenType TokenType `json:"token_type"`
	// ExpiresIn is the lifetime of the access token in seconds.
	ExpiresIn int `json:"expires_in"`
	// RefreshToken is issued if the client is authorized to receive one.
	RefreshToken string `json:"refresh_token,omitempty"`
	// Scope contains the granted scopes (space-delimited).
	Scope string `json:"scope,omitempty"`
}

// AuthorizeRequest represents a request to the authorization endpoint,
// initiating the authorization code flow with PKCE.
type AuthorizeRequest struct {
	// ResponseType specifies the desired response type (always "code").
	ResponseType ResponseType `json:"response_type"                   form:"response_type"`
	// ClientID is the client identifier.
	ClientID string `json:"client_id"                       form:"client_id"`
	// RedirectURI is where the user will be redirected after authorization.
	RedirectURI string `json:"redirect_uri"                    form:"redirect_uri"`
	// Scope contains the requested scopes (space-delimited).
	Scope string `json:"scope,omitempty"                 form:"scope"`
	// State is an opaque value for CSRF protection, echoed byte-for-byte.
	State string `json:"state,omitempty"                 form:"state"`
	// CodeChallenge is the PKCE code challenge for public clients.
	CodeChallenge string `json:"code_challenge,omitempty"        form:"code_challenge"`
	// CodeChallengeMethod specifies how the code challenge was generated (plain or S256).
	CodeChallengeMethod string `json:"code_challenge_method,omitempty" form:"code_challenge_method"`
}

// AuthorizeResponse represents a successful authorization grant: the code to
// exchange for tokens plus the echoed state.
type AuthorizeResponse struct {
	// Code is the authorization code that can be exchanged for an access token.
	Code string `json:"code"`
	// State is the state parameter from the authorization request.
	State string `json:"state,omitempty"`
	// RedirectTo is the fully-built redirect URL including code and state.
	RedirectTo string `json:"redirect_to,omitempty"`
}

// ErrorResponse represents an OAuth2 error response as defined in RFC 6749.
type ErrorResponse struct {
	// Error is the error code as defined in the OAuth2 specification.
	Error string `json:"error"`
	// ErrorDescription provides additional human-readable error information.
	ErrorDescription string `json:"error_description,omitempty"`
	// ErrorURI provides a URI with more information about the error.
	ErrorURI string `json:"error_uri,omitempty"`
	// State is included if the error occurred during authorization with state parameter.
	State string `json:"state,omitempty"`
}

// IntrospectionRequest represents a request to the token introspection
// endpoint (RFC 7662).
type IntrospectionRequest struct {
	// Token is the token to be introspected.
	Token string `json:"token"                     form:"token"`
	// TokenTypeHint provides a hint about the type of token being introspected.
	TokenTypeHint string `json:"token_type_hint,omitempty" form:"token_type_hint"`
	// ClientID is the client identifier for authentication.
	ClientID string `json:"client_id"                 form:"client_id"`
	// ClientSecret is the client secret for authentication.
	ClientSecret string `json:"client_secret,omitempty"   form:"client_secret"`
}

// IntrospectionResponse represents a response from the token introspection
// endpoint (RFC 7662).
type IntrospectionResponse struct {
	// Active indicates whether the token is currently active.
	Active bool `json:"active"`
	// ClientID is the client identifier the token was issued to.
	ClientID string `json:"client_id,omitempty"`
	// Username is the human-readable identifier for the resource owner.
	Username string `json:"username,omitempty"`
	// Scope contains the scopes associated with the token (space-delimited).
	Scope string `json:"scope,omitempty"`
	// TokenType is the type of the token (e.g., "Bearer").
	TokenType TokenType `json:"token_type,omitempty"`
	// ExpiresAt is the token expiration time as a Unix timestamp.
	ExpiresAt int64 `json:"exp,omitempty"`
	// IssuedAt is when the token was issued as a Unix timestamp.
	IssuedAt int64 `json:"iat,omitempty"`
	// Subject is the subject identifier for the token.
	Subject string `json:"sub,omitempty"`
	// Audience contains the intended audiences for the token.
	Audience []string `json:"aud,omitempty"`
	// Issuer is the issuer identifier for the token.
	Issuer string `json:"iss,omitempty"`
	// JWTID is the unique identifier for JWT tokens.
	JWTID string `json:"jti,omitempty"`
	// ParishID is the parish the token grants access to.
	ParishID string `json:"parish_id,omitempty"`
}

// RevocationRequest represents a request to the token revocation endpoint
// (RFC 7009). Revocation always responds with success, even for tokens the
// server does not recognize.
type RevocationRequest struct {
	// Token is the token to be revoked (access token or refresh token).
	Token string `json:"token"                     form:"token"`
	// TokenTypeHint provides a hint about the type of token being revoked.
	TokenTypeHint string `json:"token_type_hint,omitempty" form:"token_type_hint"`
	// ClientID is the client identifier for authentication.
	ClientID string `json:"client_id"                 form:"client_id"`
	// ClientSecret is the client secret for authentication.
	ClientSecret string `json:"client_secret,omitempty"   form:"client_secret"`
}

// UserInfo represents the claims returned by the userinfo endpoint when the
// "profile" scope has been granted.
type UserInfo struct {
	// Subject is the unique identifier for the user.
	Subject string `json:"sub"`
	// Name is the user's full name in displayable form.
	Name string `json:"name,omitempty"`
	// Email is the user's email address.
	Email string `json:"email,omitempty"`
	// EmailVerified indicates whether the email address has been verified.
	EmailVerified bool `json:"email_verified,omitempty"`
	// ParishID is the parish the user belongs to.
	ParishID string `json:"parish_id,omitempty"`
	// ParishName is the display name of the user's parish.
	ParishName string `json:"parish_name,omitempty"`
	// Roles are the user's roles within the parish (e.g. "admin", "staff").
	Roles []string `json:"roles,omitempty"`
	// UpdatedAt is when the user information was last updated as a Unix timestamp.
	UpdatedAt int64 `json:"updated_at,omitempty"`
}

// NewClient creates a new OAuth2 client with the specified configuration.
// Generates a unique ID, sets creation timestamps, and marks it active.
// The secret must be hashed and assigned separately for confidential clients.
func NewClient(name string, redirectURIs, scopes, grantTypes []string, confidential bool) *Client {
	now := time.Now()
	return &Client{
		ID:           uuid.New().String(),
		Name:         name,
		RedirectURIs: redirectURIs,
		Scopes:       scopes,
		GrantTypes:   grantTypes,
		Confidential: confidential,
		CreatedAt:    now,
		UpdatedAt:    now,
		IsActive:     true,
	}
}

// AuthorizationCodeParams groups parameters for creating a new authorization
// code record. The code string itself is generated by the token package; only
// its hash and lookup prefix are stored here.
type AuthorizationCodeParams struct {
	CodeHash            string
	CodePrefix          string
	ClientID            string
	UserID              string
	ParishID            string
	ConsentID           string
	RedirectURI         string
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string
	State               string
	ExpiresAt           time.Time
}

// NewAuthorizationCode creates a new authorization code record bound to the
// client, redirect URI, scopes, and PKCE parameters of the approved request.
func NewAuthorizationCode(params AuthorizationCodeParams) *AuthorizationCode {
	return &AuthorizationCode{
		ID:                  uuid.New().String(),
		CodeHash:            params.CodeHash,
		CodePrefix:          params.CodePrefix,
		ClientID:            params.ClientID,
		UserID:              params.UserID,
		ParishID:            params.ParishID,
		ConsentID:           params.ConsentID,
		RedirectURI:         params.RedirectURI,
		Scopes:              params.Scopes,
		CodeChallenge:       params.CodeChallenge,
		CodeChallengeMethod: params.CodeChallengeMethod,
		State:               params.State,
		ExpiresAt:           params.ExpiresAt,
		CreatedAt:           time.Now(),
	}
}

// RefreshTokenParams groups parameters for creating a new refresh token
// record. Like authorization codes, the token string itself is generated by
// the token package; only its hash and lookup prefix are stored here.
type RefreshTokenParams struct {
	TokenHash     string
	TokenPrefix   string
	AccessTokenID string
	ClientID      string
	UserID        string
	ParishID      string
	ConsentID     string
	Scopes        []string
	ExpiresAt     time.Time
}

// NewRefreshToken creates a new refresh token record from the provided
// parameters. The record starts unrotated and unrevoked.
func NewRefreshToken(params RefreshTokenParams) *RefreshToken {
	return &RefreshToken{
		ID:            uuid.New().String(),
		TokenHash:     params.TokenHash,
		TokenPrefix:   params.TokenPrefix,
		AccessTokenID: params.AccessTokenID,
		ClientID:      params.ClientID,
		UserID:        params.UserID,
		ParishID:      params.ParishID,
		ConsentID:     params.ConsentID,
		Scopes:        params.Scopes,
		ExpiresAt:     params.ExpiresAt,
		CreatedAt:     time.Now(),
	}
}

// NewSession creates a new session for maintaining state during the
// authorization flow. Sessions expire after 24 hours by default.
func NewSession(userID, parishID, clientID string) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		ParishID:  parishID,
		ClientID:  clientID,
		Data:      make(map[string]interface{}),
		ExpiresAt: now.Add(DefaultSessionExpiry),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ValidateRedirectURI checks if the provided URI is in the client's list of
// registered redirect URIs. The comparison is an exact string match: no
// prefix matching, no scheme or host normalization, no trailing-slash
// tolerance. Anything less invites open-redirect attacks.
func (c *Client) ValidateRedirectURI(uri string) bool {
	for _, allowedURI := range c.RedirectURIs {
		if allowedURI == uri {
			return true
		}
	}
	return false
}

// HasScope checks if the client is allowed to request the specified scope.
func (c *Client) HasScope(scope string) bool {
	for _, allowedScope := range c.Scopes {
		if allowedScope == scope {
			return true
		}
	}
	return false
}

// HasGrantType checks if the client supports the specified OAuth2 grant type.
func (c *Client) HasGrantType(grantType GrantType) bool {
	for _, allowedGrantType := range c.GrantTypes {
		if allowedGrantType == string(grantType) {
			return true
		}
	}
	return false
}

// IsExpired checks if the authorization code has passed its expiration time.
func (ac *AuthorizationCode) IsExpired() bool {
	return time.Now().After(ac.ExpiresAt)
}

// IsUsed reports whether the code has already been exchanged.
func (ac *AuthorizationCode) IsUsed() bool {
	return ac.UsedAt != nil
}

// IsExpired checks if the access token has passed its expiration time.
func (at *AccessToken) IsExpired() bool {
	return time.Now().After(at.ExpiresAt)
}

// IsExpired checks if the refresh token has passed its expiration time.
func (rt *RefreshToken) IsExpired() bool {
	return time.Now().After(rt.ExpiresAt)
}

// IsRotated reports whether the refresh token has been exchanged for a
// successor. Rotated tokens must be rejected.
func (rt *RefreshToken) IsRotated() bool {
	return rt.RotatedAt != nil
}

// IsExpired checks if the session has passed its expiration time.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}
