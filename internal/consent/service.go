// Package consent implements the consent subsystem of the authorization
// flow: validating authorization requests into a consent context, recording
// consent decisions, minting single-use authorization codes, and revoking
// grants. Every entry point re-validates the request from scratch; nothing
// posted back from a rendered consent screen is trusted.
package consent

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fr-mccarty/outwardsign-sub009/internal/config"
	"github.com/fr-mccarty/outwardsign-sub009/internal/models"
	"github.com/fr-mccarty/outwardsign-sub009/internal/redis"
	"github.com/fr-mccarty/outwardsign-sub009/internal/repository"
	"github.com/fr-mccarty/outwardsign-sub009/internal/token"
)

// consentCacheTTL bounds how long a consent lookup may be served from Redis
// before falling back to Postgres. Revocation deletes the cache entry
// directly, so the TTL only covers out-of-band database edits.
const consentCacheTTL = time.Hour

// Service defines the consent subsystem operations.
type Service interface {
	// BuildConsentContext validates an authorization request and assembles
	// everything the consent screen needs: the resolved client, the
	// effective scopes, the validated redirect URI, the PKCE parameters,
	// and the user's existing consent if one covers the request.
	//
	// Validation order matters for redirect safety: client resolution and
	// redirect URI matching fail with non-redirect-safe errors, everything
	// after them is redirect-safe and carries the request state.
	BuildConsentContext(
		ctx context.Context,
		userID, parishID string,
		req *models.AuthorizeRequest,
	) (*models.ConsentContext, error)

	// Grant records an approval decision and mints a single-use
	// authorization code bound to the request. The posted parameters are
	// re-validated in full before anything is written. approvedScopes may
	// narrow the effective scopes; nil approves all of them.
	Grant(
		ctx context.Context,
		userID, parishID string,
		req *models.AuthorizeRequest,
		approvedScopes []string,
	) (*models.AuthorizeResponse, error)

	// Deny records a denial decision. The request is still re-validated so
	// that a forged denial for an unknown client cannot trigger a redirect.
	// On a valid request it returns an access_denied error carrying the
	// request state for the redirect back to the client.
	Deny(ctx context.Context, userID, parishID string, req *models.AuthorizeRequest) error

	// GetExistingConsent returns the user's active consent for the client,
	// or nil when none exists. Reads through the Redis cache.
	GetExistingConsent(ctx context.Context, userID, parishID, clientID string) (*models.Consent, error)

	// RevokeConsent withdraws the user's consent for the client and revokes
	// every token issued under it. Returns the revoked consent and the
	// number of tokens revoked.
	RevokeConsent(ctx context.Context, userID, parishID, clientID string) (*models.Consent, int, error)

	// ListConsents returns the user's active consents within the parish.
	ListConsents(ctx context.Context, parishID, userID string) ([]*models.Consent, error)
}

type service struct {
	clients   repository.ClientRepository
	consents  repository.ConsentRepository
	parishes  repository.ParishSettingsRepository
	userPerms repository.UserPermissionsRepository
	store     redis.Store
	pkce      token.PKCEService
	oauthCfg  *config.OAuth2Config
	logger    *logrus.Logger
}

// Dependencies bundles the collaborators of the consent service.
type Dependencies struct {
	Clients         repository.ClientRepository
	Consents        repository.ConsentRepository
	ParishSettings  repository.ParishSettingsRepository
	UserPermissions repository.UserPermissionsRepository
	Store           redis.Store
	PKCE            token.PKCEService
	OAuth2Config    *config.OAuth2Config
	Logger          *logrus.Logger
}

// NewService creates the consent service.
func NewService(deps Dependencies) Service {
	return &service{
		clients:   deps.Clients,
		consents:  deps.Consents,
		parishes:  deps.ParishSettings,
		userPerms: deps.UserPermissions,
		store:     deps.Store,
		pkce:      deps.PKCE,
		oauthCfg:  deps.OAuth2Config,
		logger:    deps.Logger,
	}
}

// BuildConsentContext validates the authorization request step by step.
func (s *service) BuildConsentContext(
	ctx context.Context,
	userID, parishID string,
	req *models.AuthorizeRequest,
) (*models.ConsentContext, error) {
	// Step 1: resolve the client. The redirect URI is untrusted until step 2
	// succeeds, so these failures must never redirect.
	client, err := s.resolveClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	// Step 2: exact redirect URI match against the registration.
	if req.RedirectURI == "" || !client.ValidateRedirectURI(req.RedirectURI) {
		s.logger.WithFields(logrus.Fields{
			"client_id":    client.ID,
			"redirect_uri": req.RedirectURI,
		}).Warn("Authorization request with unregistered redirect URI")
		return nil, models.NewInvalidRedirectURI("redirect_uri is not registered for this client")
	}

	// From here on the redirect URI is validated and errors are
	// redirect-safe, carrying the request state.

	if req.ResponseType != models.ResponseTypeCode {
		return nil, unsupportedResponseType(req.State)
	}

	// Step 3: parish and user OAuth posture.
	userAllowed, err := s.checkOAuthAccess(ctx, userID, parishID, req.State)
	if err != nil {
		return nil, err
	}

	// Steps 4 and 5: parse the requested scopes, dropping unknown names
	// silently, then intersect with what the client registered for and what
	// the user may grant. Request order is preserved throughout.
	requested := models.ParseScopes(req.Scope)
	effective := models.IntersectScopes(requested, client.Scopes)
	effective = models.IntersectScopes(effective, userAllowed)
	if len(effective) == 0 {
		return nil, models.NewNoValidScopes("no requested scope is grantable for this client and user").
			WithState(req.State)
	}

	// Step 6: PKCE.
	method, err := s.validatePKCE(client, req)
	if err != nil {
		return nil, err
	}

	existing, err := s.GetExistingConsent(ctx, userID, parishID, client.ID)
	if err != nil {
		return nil, storageFailure(req.State)
	}

	return &models.ConsentContext{
		Client:              client,
		UserID:              userID,
		ParishID:            parishID,
		Scopes:              effective,
		RedirectURI:         req.RedirectURI,
		State:               req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: method,
		ExistingConsent:     existing,
		AutoApprovable:      existing != nil && existing.Covers(effective),
	}, nil
}

// Grant re-validates the request, records the consent, and mints the code.
func (s *service) Grant(
	ctx context.Context,
	userID, parishID string,
	req *models.AuthorizeRequest,
	approvedScopes []string,
) (*models.AuthorizeResponse, error) {
	cc, err := s.BuildConsentContext(ctx, userID, parishID, req)
	if err != nil {
		return nil, err
	}

	granted := cc.Scopes
	if approvedScopes != nil {
		// The user may approve a subset of what was prompted, never more.
		granted = models.IntersectScopes(approvedScopes, cc.Scopes)
		if len(granted) == 0 {
			return nil, models.NewAccessDenied("no requested scope was approved").WithState(req.State)
		}
	}

	consent, err := s.consents.UpsertConsent(ctx, userID, parishID, cc.Client.ID, granted)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"user_id":   userID,
			"client_id": cc.Client.ID,
		}).Error("Failed to record consent")
		return nil, storageFailure(req.State)
	}

	// Write-through cache so the next authorization request sees the grant.
	if cacheErr := s.store.StoreConsent(ctx, consent, consentCacheTTL); cacheErr != nil {
		s.logger.WithError(cacheErr).Warn("Failed to cache consent after upsert")
	}

	opaque, err := token.GenerateAuthorizationCodeToken()
	if err != nil {
		s.logger.WithError(err).Error("Failed to generate authorization code")
		return nil, storageFailure(req.State)
	}

	code := models.NewAuthorizationCode(models.AuthorizationCodeParams{
		CodeHash:            opaque.Hash,
		CodePrefix:          opaque.LookupPrefix,
		ClientID:            cc.Client.ID,
		UserID:              userID,
		ParishID:            parishID,
		ConsentID:           consent.ID,
		RedirectURI:         cc.RedirectURI,
		Scopes:              granted,
		CodeChallenge:       cc.CodeChallenge,
		CodeChallengeMethod: cc.CodeChallengeMethod,
		State:               req.State,
		ExpiresAt:           time.Now().Add(s.oauthCfg.AuthorizationCodeExpiry),
	})

	if err := s.store.StoreAuthorizationCode(ctx, code, s.oauthCfg.AuthorizationCodeExpiry); err != nil {
		s.logger.WithError(err).Error("Failed to store authorization code")
		return nil, storageFailure(req.State)
	}

	s.logger.WithFields(logrus.Fields{
		"client_id": cc.Client.ID,
		"user_id":   userID,
		"parish_id": parishID,
		"scopes":    granted,
	}).Info("Authorization code issued")

	return &models.AuthorizeResponse{
		Code:       opaque.Token,
		State:      req.State,
		RedirectTo: buildRedirectURL(cc.RedirectURI, opaque.Token, req.State),
	}, nil
}

// Deny re-validates the request and returns the denial as an error.
func (s *service) Deny(ctx context.Context, userID, parishID string, req *models.AuthorizeRequest) error {
	if _, err := s.BuildConsentContext(ctx, userID, parishID, req); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"client_id": req.ClientID,
		"user_id":   userID,
	}).Info("Consent denied by user")

	return models.NewAccessDenied("the resource owner denied the request").WithState(req.State)
}

// GetExistingConsent reads the user's active consent through the cache.
func (s *service) GetExistingConsent(
	ctx context.Context,
	userID, parishID, clientID string,
) (*models.Consent, error) {
	cached, err := s.store.GetConsent(ctx, parishID, userID, clientID)
	if err == nil {
		if cached.IsRevoked() {
			return nil, nil
		}
		return cached, nil
	}
	if !errors.Is(err, redis.ErrCacheMiss) {
		s.logger.WithError(err).Debug("Consent cache read failed, falling back to database")
	}

	consent, err := s.consents.GetConsent(ctx, userID, parishID, clientID)
	if err != nil {
		if errors.Is(err, repository.ErrConsentNotFound) {
			return nil, nil
		}
		return nil, err
	}

	if cacheErr := s.store.StoreConsent(ctx, consent, consentCacheTTL); cacheErr != nil {
		s.logger.WithError(cacheErr).Debug("Failed to cache consent after database read")
	}

	return consent, nil
}

// RevokeConsent withdraws the consent and cascades token revocation.
func (s *service) RevokeConsent(
	ctx context.Context,
	userID, parishID, clientID string,
) (*models.Consent, int, error) {
	consent, err := s.consents.RevokeConsent(ctx, userID, parishID, clientID)
	if err != nil {
		return nil, 0, err
	}

	if cacheErr := s.store.DeleteConsent(ctx, parishID, userID, clientID); cacheErr != nil {
		s.logger.WithError(cacheErr).Warn("Failed to evict consent cache entry after revocation")
	}

	revoked, err := s.store.RevokeConsentGrants(ctx, consent.ID)
	if err != nil {
		// The consent row is already revoked; outstanding tokens will still
		// expire on their own TTLs. Report the partial failure.
		s.logger.WithError(err).WithField("consent_id", consent.ID).
			Error("Consent revoked but token cascade failed")
		return consent, revoked, err
	}

	s.logger.WithFields(logrus.Fields{
		"consent_id":     consent.ID,
		"client_id":      clientID,
		"user_id":        userID,
		"tokens_revoked": revoked,
	}).Info("Consent revoked")

	return consent, revoked, nil
}

// ListConsents returns the user's active consents within the parish.
func (s *service) ListConsents(ctx context.Context, parishID, userID string) ([]*models.Consent, error) {
	return s.consents.ListUserConsents(ctx, parishID, userID)
}

// resolveClient looks up the client and requires it to be active.
func (s *service) resolveClient(ctx context.Context, clientID string) (*models.Client, error) {
	if clientID == "" {
		return nil, models.NewUnknownClient("client_id is required")
	}

	client, err := s.clients.GetClientByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, repository.ErrClientNotFound) {
			s.logger.WithField("client_id", clientID).Warn("Authorization request for unknown client")
			return nil, models.NewUnknownClient("unknown client")
		}
		s.logger.WithError(err).WithField("client_id", clientID).Error("Client lookup failed")
		return nil, models.NewStorageFailure("temporary storage failure")
	}

	if client == nil || !client.IsActive {
		return nil, models.NewUnknownClient("unknown client")
	}

	return client, nil
}

// checkOAuthAccess verifies the parish allows OAuth and returns the scopes
// the user may grant: the parish allowlist intersected with the user's
// allowlist (or the defaults when no per-user record exists).
func (s *service) checkOAuthAccess(
	ctx context.Context,
	userID, parishID, state string,
) ([]string, error) {
	settings, err := s.parishes.GetParishSettings(ctx, parishID)
	if err != nil {
		if errors.Is(err, repository.ErrParishNotFound) {
			return nil, models.NewAccessDenied("parish does not allow integrations").WithState(state)
		}
		s.logger.WithError(err).WithField("parish_id", parishID).Error("Parish settings lookup failed")
		return nil, storageFailure(state)
	}

	if !settings.OAuthEnabled {
		return nil, models.NewAccessDenied("parish does not allow integrations").WithState(state)
	}

	perms, err := s.userPerms.GetUserPermissions(ctx, parishID, userID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("User permissions lookup failed")
		return nil, storageFailure(state)
	}

	userAllowed := models.DefaultUserScopes
	if perms != nil {
		userAllowed = perms.AllowedScopes
	}

	allowed := models.IntersectScopes(userAllowed, settings.EffectiveScopes())
	if len(allowed) == 0 {
		return nil, models.NewAccessDenied("user may not grant access to integrations").WithState(state)
	}

	return allowed, nil
}

// validatePKCE checks the challenge and method of the request. Returns the
// resolved method, empty when no challenge was supplied.
func (s *service) validatePKCE(client *models.Client, req *models.AuthorizeRequest) (string, error) {
	if req.CodeChallenge == "" {
		if req.CodeChallengeMethod != "" {
			return "", models.NewInvalidPKCEMethod("code_challenge_method without code_challenge").
				WithState(req.State)
		}
		// Public clients cannot authenticate the code exchange any other way.
		if !client.Confidential && s.oauthCfg.PKCERequired {
			err := models.NewInvalidRequest("public clients must use PKCE")
			err.RedirectSafe = true
			return "", err.WithState(req.State)
		}
		return "", nil
	}

	method := token.ParseCodeChallengeMethod(req.CodeChallengeMethod)
	if err := s.pkce.ValidateCodeChallengeMethod(method); err != nil {
		return "", models.NewInvalidPKCEMethod("code_challenge_method must be plain or S256").
			WithState(req.State)
	}

	return method, nil
}

// buildRedirectURL appends the code and state query parameters to the
// validated redirect URI.
func buildRedirectURL(redirectURI, code, state string) string {
	u, err := url.Parse(redirectURI)
	if err != nil {
		// The URI came from the client registration and already passed the
		// exact match; a parse failure here means a broken registration.
		return redirectURI
	}

	q := u.Query()
	q.Set("code", code)
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func storageFailure(state string) *models.OAuth2Error {
	return models.NewStorageFailure("temporary storage failure").WithState(state)
}

// unsupportedResponseType is raised only after the redirect URI has been
// matched against the client registration, so it may redirect.
func unsupportedResponseType(state string) *models.OAuth2Error {
	return &models.OAuth2Error{
		Code:         "unsupported_response_type",
		Description:  "only the authorization code flow is supported",
		StatusCode:   models.ErrUnsupportedResponseType.StatusCode,
		State:        state,
		RedirectSafe: true,
	}
}
