package models

import (
	"time"

	"github.com/google/uuid"
)

// Consent records a user's grant of scopes to a client within a parish.
// Granted scopes are monotonic: re-granting unions new scopes in, and the
// only way to shrink a consent is to revoke it entirely.
type Consent struct {
	// ID is the unique consent identifier.
	ID string `json:"id"`
	// UserID is the user who granted the consent.
	UserID string `json:"user_id"`
	// ParishID is the parish whose data the consent covers.
	ParishID string `json:"parish_id"`
	// ClientID is the client the consent was granted to.
	ClientID string `json:"client_id"`
	// Scopes are the granted scopes in canonical order.
	Scopes []string `json:"scopes"`
	// GrantedAt is when the consent was first granted.
	GrantedAt time.Time `json:"granted_at"`
	// UpdatedAt is when the consent was last widened.
	UpdatedAt time.Time `json:"updated_at"`
	// RevokedAt is set when the user withdraws the consent. Revoking a
	// consent also revokes every token issued under it.
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// NewConsent creates a consent record for the given user, parish, and client
// with the scopes in canonical order.
func NewConsent(userID, parishID, clientID string, scopes []string) *Consent {
	now := time.Now()
	return &Consent{
		ID:        uuid.New().String(),
		UserID:    userID,
		ParishID:  parishID,
		ClientID:  clientID,
		Scopes:    UnionScopes(scopes, nil),
		GrantedAt: now,
		UpdatedAt: now,
	}
}

// IsRevoked reports whether the consent has been withdrawn.
func (c *Consent) IsRevoked() bool {
	return c.RevokedAt != nil
}

// Covers reports whether every scope in wanted was previously granted
// verbatim. The scope hierarchy does not apply here: skipping the consent
// prompt requires the user to have approved each scope by name, even when a
// stronger granted scope would allow the access at token time. Revoked
// consents cover nothing.
func (c *Consent) Covers(wanted []string) bool {
	if c.IsRevoked() {
		return false
	}
	return IsScopeSubset(wanted, c.Scopes)
}

// ConsentContext is everything the consent screen needs to render a prompt,
// produced by the context builder after the authorization request has been
// fully validated.
type ConsentContext struct {
	// Client is the resolved, active client.
	Client *Client `json:"client"`
	// UserID is the authenticated user the prompt is for.
	UserID string `json:"user_id"`
	// ParishID is the parish context of the request.
	ParishID string `json:"parish_id"`
	// Scopes are the effective scopes to prompt for: requested, filtered to
	// the known vocabulary, intersected with the client's and the user's
	// allowed scopes, in request order.
	Scopes []string `json:"scopes"`
	// RedirectURI is the validated redirect URI, matched exactly against the
	// client's registration.
	RedirectURI string `json:"redirect_uri"`
	// State is the client state to echo byte-for-byte.
	State string `json:"state,omitempty"`
	// CodeChallenge is the PKCE challenge carried through to the code.
	CodeChallenge string `json:"code_challenge,omitempty"`
	// CodeChallengeMethod is the validated PKCE method (plain or S256).
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`
	// ExistingConsent is the user's prior non-revoked consent for this
	// client, if any.
	ExistingConsent *Consent `json:"existing_consent,omitempty"`
	// AutoApprovable is true when every effective scope already appears
	// verbatim in ExistingConsent, meaning the prompt can be skipped.
	AutoApprovable bool `json:"auto_approvable"`
}

// ConsentDecisionRequest is the body posted when the user approves or denies
// the consent prompt. The original authorization parameters are re-posted and
// re-validated; nothing from the rendered prompt is trusted.
type ConsentDecisionRequest struct {
	// Approved is the user's decision.
	Approved bool `json:"approved"             form:"approved"`
	// ClientID echoes the authorization request's client_id.
	ClientID string `json:"client_id"            form:"client_id"`
	// RedirectURI echoes the authorization request's redirect_uri.
	RedirectURI string `json:"redirect_uri"         form:"redirect_uri"`
	// Scope echoes the authorization request's scope parameter.
	Scope string `json:"scope,omitempty"      form:"scope"`
	// State echoes the authorization request's state parameter.
	State string `json:"state,omitempty"      form:"state"`
	// CodeChallenge echoes the PKCE challenge.
	CodeChallenge string `json:"code_challenge,omitempty" form:"code_challenge"`
	// CodeChallengeMethod echoes the PKCE method.
	CodeChallengeMethod string `json:"code_challenge_method,omitempty" form:"code_challenge_method"`
	// ApprovedScopes optionally narrows the approval to a subset of the
	// effective scopes (space-delimited). Empty approves all of them.
	ApprovedScopes string `json:"approved_scopes,omitempty" form:"approved_scopes"`
}

// ToAuthorizeRequest rebuilds the authorization request carried by the
// decision so the grant path can re-run full validation.
func (r *ConsentDecisionRequest) ToAuthorizeRequest() *AuthorizeRequest {
	return &AuthorizeRequest{
		ResponseType:        ResponseTypeCode,
		ClientID:            r.ClientID,
		RedirectURI:         r.RedirectURI,
		Scope:               r.Scope,
		State:               r.State,
		CodeChallenge:       r.CodeChallenge,
		CodeChallengeMethod: r.CodeChallengeMethod,
	}
}

// ParishSettings holds a parish's OAuth posture. Integrations are opt-in per
// parish; a disabled parish denies every authorization request outright.
type ParishSettings struct {
	// ParishID is the parish these settings belong to.
	ParishID string `json:"parish_id"`
	// Name is the parish display name.
	Name string `json:"name"`
	// OAuthEnabled gates the whole authorization flow for this parish.
	OAuthEnabled bool `json:"oauth_enabled"`
	// AllowedScopes optionally narrows which scopes any user of this parish
	// may grant. Empty means all recognized scopes.
	AllowedScopes []string `json:"allowed_scopes,omitempty"`
	// UpdatedAt is when the settings were last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// EffectiveScopes returns the parish's allowed scopes, defaulting to the full
// vocabulary when none are configured.
func (p *ParishSettings) EffectiveScopes() []string {
	if len(p.AllowedScopes) == 0 {
		return ValidScopes
	}
	return p.AllowedScopes
}

// UserOAuthPermissions holds the per-user scope allowlist granted by parish
// administrators. Users without an explicit record fall back to
// DefaultUserScopes.
type UserOAuthPermissions struct {
	// UserID is the user these permissions belong to.
	UserID string `json:"user_id"`
	// ParishID scopes the permissions to one parish.
	ParishID string `json:"parish_id"`
	// AllowedScopes are the scopes this user may grant to integrations.
	AllowedScopes []string `json:"allowed_scopes"`
	// GrantedBy is the administrator who set the permissions.
	GrantedBy string `json:"granted_by,omitempty"`
	// UpdatedAt is when the permissions were last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultUserScopes are the scopes available to users without an explicit
// permissions record: read access plus their own profile.
var DefaultUserScopes = []string{ScopeRead, ScopeProfile}
