package consent_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fr-mccarty/outwardsign-sub009/internal/config"
	"github.com/fr-mccarty/outwardsign-sub009/internal/consent"
	"github.com/fr-mccarty/outwardsign-sub009/internal/models"
	"github.com/fr-mccarty/outwardsign-sub009/internal/redis"
	"github.com/fr-mccarty/outwardsign-sub009/internal/repository"
	"github.com/fr-mccarty/outwardsign-sub009/internal/token"
)

const (
	testParishID = "parish-001"
	testUserID   = "user-001"
	testClientID = "calendar-sync"
	testRedirect = "https://calendar.example.com/callback"
)

// fakeClientRepo is an in-memory ClientRepository for tests.
type fakeClientRepo struct {
	clients map[string]*models.Client
}

func newFakeClientRepo(clients ...*models.Client) *fakeClientRepo {
	repo := &fakeClientRepo{clients: make(map[string]*models.Client)}
	for _, c := range clients {
		repo.clients[c.ID] = c
	}
	return repo
}

func (r *fakeClientRepo) CreateClient(_ context.Context, client *models.Client) error {
	r.clients[client.ID] = client
	return nil
}

func (r *fakeClientRepo) GetClientByID(_ context.Context, clientID string) (*models.Client, error) {
	client, ok := r.clients[clientID]
	if !ok {
		return nil, repository.ErrClientNotFound
	}
	return client, nil
}

func (r *fakeClientRepo) UpdateClient(_ context.Context, client *models.Client) error {
	r.clients[client.ID] = client
	return nil
}

func (r *fakeClientRepo) UpdateClientSecret(_ context.Context, clientID, newSecretHash string) error {
	r.clients[clientID].Secret = newSecretHash
	return nil
}

func (r *fakeClientRepo) DeleteClient(_ context.Context, clientID string) error {
	delete(r.clients, clientID)
	return nil
}

func (r *fakeClientRepo) ListActiveClients(_ context.Context) ([]*models.Client, error) {
	var out []*models.Client
	for _, c := range r.clients {
		if c.IsActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeClientRepo) IsClientExists(_ context.Context, clientID string) (bool, error) {
	_, ok := r.clients[clientID]
	return ok, nil
}

func (r *fakeClientRepo) GetClientByName(_ context.Context, name string) (*models.Client, error) {
	for _, c := range r.clients {
		if c.Name == name {
			return c, nil
		}
	}
	return nil, repository.ErrClientNotFound
}

// fakeConsentRepo is an in-memory ConsentRepository mirroring the Postgres
// upsert semantics: one active consent per triple, scope union on conflict.
type fakeConsentRepo struct {
	mu       sync.Mutex
	consents map[string]*models.Consent
}

func newFakeConsentRepo() *fakeConsentRepo {
	return &fakeConsentRepo{consents: make(map[string]*models.Consent)}
}

func consentKey(userID, parishID, clientID string) string {
	return userID + ":" + parishID + ":" + clientID
}

func (r *fakeConsentRepo) UpsertConsent(
	_ context.Context,
	userID, parishID, clientID string,
	scopes []string,
) (*models.Consent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := consentKey(userID, parishID, clientID)
	if existing, ok := r.consents[key]; ok && !existing.IsRevoked() {
		existing.Scopes = models.UnionScopes(existing.Scopes, scopes)
		existing.UpdatedAt = time.Now()
		return existing, nil
	}

	created := models.NewConsent(userID, parishID, clientID, scopes)
	r.consents[key] = created
	return created, nil
}

func (r *fakeConsentRepo) GetConsent(
	_ context.Context,
	userID, parishID, clientID string,
) (*models.Consent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.consents[consentKey(userID, parishID, clientID)]
	if !ok || c.IsRevoked() {
		return nil, repository.ErrConsentNotFound
	}
	return c, nil
}

func (r *fakeConsentRepo) GetConsentByID(_ context.Context, consentID string) (*models.Consent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.consents {
		if c.ID == consentID {
			return c, nil
		}
	}
	return nil, repository.ErrConsentNotFound
}

func (r *fakeConsentRepo) RevokeConsent(
	_ context.Context,
	userID, parishID, clientID string,
) (*models.Consent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.consents[consentKey(userID, parishID, clientID)]
	if !ok || c.IsRevoked() {
		return nil, repository.ErrConsentNotFound
	}
	now := time.Now()
	c.RevokedAt = &now
	return c, nil
}

func (r *fakeConsentRepo) ListUserConsents(
	_ context.Context,
	parishID, userID string,
) ([]*models.Consent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.Consent
	for _, c := range r.consents {
		if c.ParishID == parishID && c.UserID == userID && !c.IsRevoked() {
			out = append(out, c)
		}
	}
	return out, nil
}

// fakeParishRepo serves one parish's settings.
type fakeParishRepo struct {
	settings *models.ParishSettings
}

func (r *fakeParishRepo) GetParishSettings(_ context.Context, parishID string) (*models.ParishSettings, error) {
	if r.settings == nil || r.settings.ParishID != parishID {
		return nil, repository.ErrParishNotFound
	}
	return r.settings, nil
}

func (r *fakeParishRepo) UpdateParishSettings(
	_ context.Context,
	_ string,
	req *models.UpdateParishSettingsRequest,
) error {
	r.settings.OAuthEnabled = req.OAuthEnabled
	r.settings.AllowedScopes = req.AllowedScopes
	return nil
}

// fakePermsRepo serves per-user scope allowlists.
type fakePermsRepo struct {
	perms map[string]*models.UserOAuthPermissions
}

func (r *fakePermsRepo) GetUserPermissions(
	_ context.Context,
	parishID, userID string,
) (*models.UserOAuthPermissions, error) {
	if r.perms == nil {
		return nil, nil
	}
	return r.perms[parishID+":"+userID], nil
}

func (r *fakePermsRepo) SetUserPermissions(_ context.Context, perms *models.UserOAuthPermissions) error {
	if r.perms == nil {
		r.perms = make(map[string]*models.UserOAuthPermissions)
	}
	r.perms[perms.ParishID+":"+perms.UserID] = perms
	return nil
}

type testEnv struct {
	service  consent.Service
	store    redis.Store
	consents *fakeConsentRepo
	perms    *fakePermsRepo
	parish   *fakeParishRepo
}

func testClient() *models.Client {
	client := models.NewClient(
		"Calendar Sync",
		[]string{testRedirect, "https://calendar.example.com/alt"},
		[]string{models.ScopeRead, models.ScopeWrite, models.ScopeProfile},
		[]string{"authorization_code", "refresh_token"},
		false,
	)
	client.ID = testClientID
	return client
}

func newTestEnv(t *testing.T, clients ...*models.Client) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	if len(clients) == 0 {
		clients = []*models.Client{testClient()}
	}

	store := redis.NewMemoryStore(logger)
	t.Cleanup(func() { _ = store.Close() })

	consentRepo := newFakeConsentRepo()
	permsRepo := &fakePermsRepo{}
	require.NoError(t, permsRepo.SetUserPermissions(context.Background(), &models.UserOAuthPermissions{
		UserID:        testUserID,
		ParishID:      testParishID,
		AllowedScopes: []string{models.ScopeRead, models.ScopeWrite, models.ScopeDelete, models.ScopeProfile},
	}))
	parishRepo := &fakeParishRepo{settings: &models.ParishSettings{
		ParishID:     testParishID,
		Name:         "St. Anne",
		OAuthEnabled: true,
	}}

	svc := consent.NewService(consent.Dependencies{
		Clients:         newFakeClientRepo(clients...),
		Consents:        consentRepo,
		ParishSettings:  parishRepo,
		UserPermissions: permsRepo,
		Store:           store,
		PKCE:            token.NewPKCEService(),
		OAuth2Config: &config.OAuth2Config{
			AuthorizationCodeExpiry: 10 * time.Minute,
			PKCERequired:            true,
			DefaultScopes:           []string{models.ScopeRead},
		},
		Logger: logger,
	})

	return &testEnv{
		service:  svc,
		store:    store,
		consents: consentRepo,
		perms:    permsRepo,
		parish:   parishRepo,
	}
}

func authorizeRequest(scope string) *models.AuthorizeRequest {
	return &models.AuthorizeRequest{
		ResponseType:        models.ResponseTypeCode,
		ClientID:            testClientID,
		RedirectURI:         testRedirect,
		Scope:               scope,
		State:               "xyz-123",
		CodeChallenge:       "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		CodeChallengeMethod: "S256",
	}
}

func oauthError(t *testing.T, err error) *models.OAuth2Error {
	t.Helper()
	var oauthErr *models.OAuth2Error
	require.ErrorAs(t, err, &oauthErr)
	return oauthErr
}

func TestBuildConsentContextFirstTimeRequest(t *testing.T) {
	env := newTestEnv(t)

	cc, err := env.service.BuildConsentContext(
		context.Background(), testUserID, testParishID, authorizeRequest("read write"))
	require.NoError(t, err)

	assert.Equal(t, testClientID, cc.Client.ID)
	assert.Equal(t, []string{"read", "write"}, cc.Scopes)
	assert.Equal(t, testRedirect, cc.RedirectURI)
	assert.Equal(t, "xyz-123", cc.State)
	assert.Equal(t, "S256", cc.CodeChallengeMethod)
	assert.Nil(t, cc.ExistingConsent)
	assert.False(t, cc.AutoApprovable)
}

func TestBuildConsentContextUnknownClient(t *testing.T) {
	env := newTestEnv(t)

	req := authorizeRequest("read")
	req.ClientID = "no-such-client"

	_, err := env.service.BuildConsentContext(context.Background(), testUserID, testParishID, req)

	oauthErr := oauthError(t, err)
	assert.Equal(t, "unauthorized_client", oauthErr.Code)
	assert.False(t, oauthErr.RedirectSafe, "unknown client must never redirect")
}

func TestBuildConsentContextInactiveClient(t *testing.T) {
	client := testClient()
	client.IsActive = false
	env := newTestEnv(t, client)

	_, err := env.service.BuildConsentContext(
		context.Background(), testUserID, testParishID, authorizeRequest("read"))

	oauthErr := oauthError(t, err)
	assert.Equal(t, "unauthorized_client", oauthErr.Code)
	assert.False(t, oauthErr.RedirectSafe)
}

func TestBuildConsentContextRedirectURIMatching(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name        string
		redirectURI string
		wantErr     bool
	}{
		{name: "exact_match", redirectURI: testRedirect},
		{name: "second_registered_uri", redirectURI: "https://calendar.example.com/alt"},
		{name: "trailing_slash", redirectURI: testRedirect + "/", wantErr: true},
		{name: "different_path", redirectURI: "https://calendar.example.com/other", wantErr: true},
		{name: "scheme_downgrade", redirectURI: "http://calendar.example.com/callback", wantErr: true},
		{name: "prefix_attack", redirectURI: testRedirect + ".attacker.example", wantErr: true},
		{name: "empty", redirectURI: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := authorizeRequest("read")
			req.RedirectURI = tt.redirectURI

			_, err := env.service.BuildConsentContext(context.Background(), testUserID, testParishID, req)
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}

			oauthErr := oauthError(t, err)
			assert.Equal(t, "invalid_request", oauthErr.Code)
			assert.False(t, oauthErr.RedirectSafe, "redirect URI mismatch must never redirect")
		})
	}
}

func TestBuildConsentContextScopeFiltering(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		scope string
		want  []string
	}{
		{name: "unknown_scopes_dropped_silently", scope: "read calendar write", want: []string{"read", "write"}},
		{name: "duplicates_removed_order_kept", scope: "write read write read", want: []string{"write", "read"}},
		{
			name:  "scope_not_registered_for_client_dropped",
			scope: "read delete",
			want:  []string{"read"}, // client is not registered for delete
		},
		{name: "request_order_preserved", scope: "profile read", want: []string{"profile", "read"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cc, err := env.service.BuildConsentContext(
				context.Background(), testUserID, testParishID, authorizeRequest(tt.scope))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cc.Scopes)
		})
	}
}

func TestBuildConsentContextNoValidScopes(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.BuildConsentContext(
		context.Background(), testUserID, testParishID, authorizeRequest("calendar bulletins"))

	oauthErr := oauthError(t, err)
	assert.Equal(t, "invalid_scope", oauthErr.Code)
	assert.True(t, oauthErr.RedirectSafe)
	assert.Equal(t, "xyz-123", oauthErr.State)
}

func TestBuildConsentContextPKCEValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name      string
		challenge string
		method    string
		wantCode  string
	}{
		{name: "s256_accepted", challenge: "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", method: "S256"},
		{name: "plain_accepted", challenge: "a-plain-challenge-value-with-43-characters-x", method: "plain"},
		{
			name:      "unsupported_method_rejected",
			challenge: "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
			method:    "S512",
			wantCode:  "invalid_request",
		},
		{
			name:      "wrong_case_rejected",
			challenge: "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
			method:    "s256",
			wantCode:  "invalid_request",
		},
		{
			name:     "public_client_without_challenge_rejected",
			wantCode: "invalid_request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := authorizeRequest("read")
			req.CodeChallenge = tt.challenge
			req.CodeChallengeMethod = tt.method

			cc, err := env.service.BuildConsentContext(context.Background(), testUserID, testParishID, req)
			if tt.wantCode == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.method, cc.CodeChallengeMethod)
				return
			}

			oauthErr := oauthError(t, err)
			assert.Equal(t, tt.wantCode, oauthErr.Code)
			assert.True(t, oauthErr.RedirectSafe, "PKCE errors occur after redirect validation")
			assert.Equal(t, "xyz-123", oauthErr.State)
		})
	}
}

func TestBuildConsentContextConfidentialClientWithoutPKCE(t *testing.T) {
	client := testClient()
	client.Confidential = true
	env := newTestEnv(t, client)

	req := authorizeRequest("read")
	req.CodeChallenge = ""
	req.CodeChallengeMethod = ""

	cc, err := env.service.BuildConsentContext(context.Background(), testUserID, testParishID, req)
	require.NoError(t, err)
	assert.Empty(t, cc.CodeChallenge)
	assert.Empty(t, cc.CodeChallengeMethod)
}

func TestBuildConsentContextParishOAuthDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.parish.settings.OAuthEnabled = false

	_, err := env.service.BuildConsentContext(
		context.Background(), testUserID, testParishID, authorizeRequest("read"))

	oauthErr := oauthError(t, err)
	assert.Equal(t, "access_denied", oauthErr.Code)
	assert.True(t, oauthErr.RedirectSafe)
	assert.Equal(t, "xyz-123", oauthErr.State)
}

func TestBuildConsentContextUserScopeAllowlist(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.perms.SetUserPermissions(context.Background(), &models.UserOAuthPermissions{
		UserID:        testUserID,
		ParishID:      testParishID,
		AllowedScopes: []string{models.ScopeRead},
	}))

	cc, err := env.service.BuildConsentContext(
		context.Background(), testUserID, testParishID, authorizeRequest("read write"))
	require.NoError(t, err)

	assert.Equal(t, []string{"read"}, cc.Scopes, "scopes beyond the user's allowlist are dropped")
}

func TestGrantIssuesSingleUseCode(t *testing.T) {
	env := newTestEnv(t)
	req := authorizeRequest("read write")

	resp, err := env.service.Grant(context.Background(), testUserID, testParishID, req, nil)
	require.NoError(t, err)

	assert.NotEmpty(t, resp.Code)
	assert.Equal(t, "xyz-123", resp.State, "state echoed byte-for-byte")
	assert.Contains(t, resp.RedirectTo, "code=")
	assert.Contains(t, resp.RedirectTo, "state=xyz-123")

	// The stored record holds only the bcrypt hash plus lookup prefix,
	// bound to the client, redirect URI, scopes, and PKCE parameters.
	prefix, err := token.LookupPrefixFor(resp.Code, token.AuthorizationCodePrefix, token.CodeLookupLength)
	require.NoError(t, err)

	record, err := env.store.GetAuthorizationCode(context.Background(), prefix)
	require.NoError(t, err)

	require.NoError(t, token.VerifyOpaqueToken(record.CodeHash, resp.Code))
	assert.NotEqual(t, resp.Code, record.CodeHash)
	assert.Equal(t, testClientID, record.ClientID)
	assert.Equal(t, testUserID, record.UserID)
	assert.Equal(t, testParishID, record.ParishID)
	assert.Equal(t, testRedirect, record.RedirectURI)
	assert.Equal(t, []string{"read", "write"}, record.Scopes)
	assert.Equal(t, req.CodeChallenge, record.CodeChallenge)
	assert.Equal(t, "S256", record.CodeChallengeMethod)
	assert.NotEmpty(t, record.ConsentID)
	assert.False(t, record.IsUsed())
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), record.ExpiresAt, 5*time.Second)
}

func TestGrantRecordsConsent(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.Grant(
		context.Background(), testUserID, testParishID, authorizeRequest("write read"), nil)
	require.NoError(t, err)

	consentRecord, err := env.consents.GetConsent(context.Background(), testUserID, testParishID, testClientID)
	require.NoError(t, err)
	assert.Equal(t, []string{"read", "write"}, consentRecord.Scopes, "stored in canonical order")
}

func TestGrantScopesAreMonotonic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.Grant(ctx, testUserID, testParishID, authorizeRequest("write"), nil)
	require.NoError(t, err)

	// A later grant for a narrower scope must not shrink the record.
	_, err = env.service.Grant(ctx, testUserID, testParishID, authorizeRequest("read"), nil)
	require.NoError(t, err)

	consentRecord, err := env.consents.GetConsent(ctx, testUserID, testParishID, testClientID)
	require.NoError(t, err)
	assert.Equal(t, []string{"read", "write"}, consentRecord.Scopes)

	// Widening unions the new scope in.
	_, err = env.service.Grant(ctx, testUserID, testParishID, authorizeRequest("profile"), nil)
	require.NoError(t, err)

	consentRecord, err = env.consents.GetConsent(ctx, testUserID, testParishID, testClientID)
	require.NoError(t, err)
	assert.Equal(t, []string{"read", "write", "profile"}, consentRecord.Scopes)
}

func TestGrantApprovedScopeSubset(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.service.Grant(
		context.Background(), testUserID, testParishID, authorizeRequest("read write"), []string{"read"})
	require.NoError(t, err)

	prefix, err := token.LookupPrefixFor(resp.Code, token.AuthorizationCodePrefix, token.CodeLookupLength)
	require.NoError(t, err)
	record, err := env.store.GetAuthorizationCode(context.Background(), prefix)
	require.NoError(t, err)

	assert.Equal(t, []string{"read"}, record.Scopes, "code carries only the approved subset")

	// Approving scopes outside the prompt approves nothing.
	_, err = env.service.Grant(
		context.Background(), testUserID, testParishID, authorizeRequest("read"), []string{"delete"})
	oauthErr := oauthError(t, err)
	assert.Equal(t, "access_denied", oauthErr.Code)
}

func TestGrantCodesAreUnique(t *testing.T) {
	env := newTestEnv(t)

	first, err := env.service.Grant(context.Background(), testUserID, testParishID, authorizeRequest("read"), nil)
	require.NoError(t, err)
	second, err := env.service.Grant(context.Background(), testUserID, testParishID, authorizeRequest("read"), nil)
	require.NoError(t, err)

	assert.NotEqual(t, first.Code, second.Code)
}

func TestAutoApproval(t *testing.T) {
	tests := []struct {
		name          string
		priorScopes   []string
		requested     string
		autoApprovable bool
	}{
		{name: "exact_coverage", priorScopes: []string{"read"}, requested: "read", autoApprovable: true},
		{name: "subset_of_prior", priorScopes: []string{"read", "write"}, requested: "read", autoApprovable: true},
		{name: "full_prior_grant", priorScopes: []string{"read", "write", "profile"}, requested: "profile read", autoApprovable: true},
		// Auto-approval is by exact scope name. A granted write allows
		// read-level access at token time, but a request for read still
		// prompts when read itself was never approved.
		{name: "write_does_not_stand_in_for_read", priorScopes: []string{"write"}, requested: "read", autoApprovable: false},
		{name: "delete_does_not_stand_in_for_write", priorScopes: []string{"delete"}, requested: "write", autoApprovable: false},
		{name: "read_does_not_cover_write", priorScopes: []string{"read"}, requested: "write", autoApprovable: false},
		{name: "profile_not_covered_by_delete", priorScopes: []string{"delete"}, requested: "profile", autoApprovable: false},
		{name: "widened_request_prompts", priorScopes: []string{"read"}, requested: "read write", autoApprovable: false},
		{name: "no_prior_consent", priorScopes: nil, requested: "read", autoApprovable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// The client must be registered for delete for the prior grant
			// to carry it.
			client := testClient()
			client.Scopes = models.ValidScopes
			env := newTestEnv(t, client)

			if tt.priorScopes != nil {
				_, err := env.consents.UpsertConsent(
					context.Background(), testUserID, testParishID, testClientID, tt.priorScopes)
				require.NoError(t, err)
			}

			cc, err := env.service.BuildConsentContext(
				context.Background(), testUserID, testParishID, authorizeRequest(tt.requested))
			require.NoError(t, err)

			assert.Equal(t, tt.autoApprovable, cc.AutoApprovable)
			if tt.priorScopes != nil {
				require.NotNil(t, cc.ExistingConsent)
			}
		})
	}
}

func TestAutoApprovalIgnoresRevokedConsent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.Grant(ctx, testUserID, testParishID, authorizeRequest("read write"), nil)
	require.NoError(t, err)

	_, _, err = env.service.RevokeConsent(ctx, testUserID, testParishID, testClientID)
	require.NoError(t, err)

	cc, err := env.service.BuildConsentContext(ctx, testUserID, testParishID, authorizeRequest("read"))
	require.NoError(t, err)

	assert.Nil(t, cc.ExistingConsent)
	assert.False(t, cc.AutoApprovable, "revoked consent covers nothing")
}

func TestDenyEchoesState(t *testing.T) {
	env := newTestEnv(t)

	err := env.service.Deny(context.Background(), testUserID, testParishID, authorizeRequest("read"))

	oauthErr := oauthError(t, err)
	assert.Equal(t, "access_denied", oauthErr.Code)
	assert.True(t, oauthErr.RedirectSafe)
	assert.Equal(t, "xyz-123", oauthErr.State)

	// Denial must not record a consent.
	_, err = env.consents.GetConsent(context.Background(), testUserID, testParishID, testClientID)
	assert.ErrorIs(t, err, repository.ErrConsentNotFound)
}

func TestDenyStillValidatesClient(t *testing.T) {
	env := newTestEnv(t)

	req := authorizeRequest("read")
	req.ClientID = "no-such-client"

	err := env.service.Deny(context.Background(), testUserID, testParishID, req)

	oauthErr := oauthError(t, err)
	assert.Equal(t, "unauthorized_client", oauthErr.Code)
	assert.False(t, oauthErr.RedirectSafe, "a forged denial must not leak a redirect")
}

func TestRevokeConsentCascadesTokenRevocation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.Grant(ctx, testUserID, testParishID, authorizeRequest("read"), nil)
	require.NoError(t, err)

	consentRecord, err := env.consents.GetConsent(ctx, testUserID, testParishID, testClientID)
	require.NoError(t, err)

	// Simulate tokens issued under the consent.
	accessToken := &models.AccessToken{
		ID:        "jti-1",
		ClientID:  testClientID,
		UserID:    testUserID,
		ParishID:  testParishID,
		ConsentID: consentRecord.ID,
		Scopes:    []string{"read"},
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
		TokenType: models.TokenTypeBearer,
	}
	require.NoError(t, env.store.StoreAccessToken(ctx, accessToken, time.Hour))

	revokedConsent, revokedCount, err := env.service.RevokeConsent(ctx, testUserID, testParishID, testClientID)
	require.NoError(t, err)

	assert.True(t, revokedConsent.IsRevoked())
	assert.Equal(t, 1, revokedCount)

	blacklisted, err := env.store.IsTokenBlacklisted(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, blacklisted)

	_, _, err = env.service.RevokeConsent(ctx, testUserID, testParishID, testClientID)
	assert.Error(t, err, "revoking twice finds no active consent")
}

func TestStorageFailureIsRedirectSafeWithState(t *testing.T) {
	env := newTestEnv(t)
	env.parish.settings = nil // force a lookup failure path distinct from not-found

	_, err := env.service.BuildConsentContext(
		context.Background(), testUserID, testParishID, authorizeRequest("read"))
	require.Error(t, err)

	// Unknown parish reads as access denied, still redirect-safe with state.
	oauthErr := oauthError(t, err)
	assert.True(t, oauthErr.RedirectSafe)
	assert.Equal(t, "xyz-123", oauthErr.State)
}

func TestGetExistingConsentCachesDatabaseReads(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.consents.UpsertConsent(ctx, testUserID, testParishID, testClientID, []string{"read"})
	require.NoError(t, err)

	first, err := env.service.GetExistingConsent(ctx, testUserID, testParishID, testClientID)
	require.NoError(t, err)
	require.NotNil(t, first)

	cached, err := env.store.GetConsent(ctx, testParishID, testUserID, testClientID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, cached.ID)
}

func TestGetExistingConsentNotFound(t *testing.T) {
	env := newTestEnv(t)

	consentRecord, err := env.service.GetExistingConsent(
		context.Background(), testUserID, testParishID, "never-authorized")
	require.NoError(t, err)
	assert.Nil(t, consentRecord)
}

func TestUnsupportedResponseType(t *testing.T) {
	env := newTestEnv(t)

	req := authorizeRequest("read")
	req.ResponseType = "token"

	_, err := env.service.BuildConsentContext(context.Background(), testUserID, testParishID, req)

	oauthErr := oauthError(t, err)
	assert.Equal(t, "unsupported_response_type", oauthErr.Code)
	assert.True(t, oauthErr.RedirectSafe, "redirect URI was validated first")
	assert.Equal(t, "xyz-123", oauthErr.State)
}

func TestResponseTypeCheckedAfterClientValidation(t *testing.T) {
	env := newTestEnv(t)

	// A bad response_type on a request with a forged client and redirect URI
	// must fail on the client, not hand the attacker's URI a redirect.
	req := authorizeRequest("read")
	req.ResponseType = "token"
	req.ClientID = "no-such-client"
	req.RedirectURI = "https://evil.example/phish"
	req.State = "attacker-state"

	_, err := env.service.BuildConsentContext(context.Background(), testUserID, testParishID, req)

	oauthErr := oauthError(t, err)
	assert.Equal(t, "unauthorized_client", oauthErr.Code)
	assert.False(t, oauthErr.RedirectSafe)

	// Same with a real client but an unregistered redirect URI.
	req = authorizeRequest("read")
	req.ResponseType = "token"
	req.RedirectURI = "https://evil.example/phish"

	_, err = env.service.BuildConsentContext(context.Background(), testUserID, testParishID, req)

	oauthErr = oauthError(t, err)
	assert.Equal(t, "invalid_request", oauthErr.Code)
	assert.False(t, oauthErr.RedirectSafe)
}

func TestConcurrentGrantsDoNotLoseScopes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	scopes := []string{"read", "write", "profile"}
	errs := make([]error, len(scopes))
	for i, scope := range scopes {
		wg.Add(1)
		go func(i int, scope string) {
			defer wg.Done()
			_, errs[i] = env.service.Grant(ctx, testUserID, testParishID, authorizeRequest(scope), nil)
		}(i, scope)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	consentRecord, err := env.consents.GetConsent(ctx, testUserID, testParishID, testClientID)
	require.NoError(t, err)
	assert.Equal(t, []string{"read", "write", "profile"}, consentRecord.Scopes)
}

func TestBuildConsentContextEmptyScopeRejected(t *testing.T) {
	env := newTestEnv(t)

	req := authorizeRequest("")

	// An empty scope parameter is not filled in with defaults; the client
	// must say what it wants.
	_, err := env.service.BuildConsentContext(context.Background(), testUserID, testParishID, req)

	oauthErr := oauthError(t, err)
	assert.Equal(t, "invalid_scope", oauthErr.Code)
	assert.True(t, oauthErr.RedirectSafe)
	assert.Equal(t, "xyz-123", oauthErr.State)
}

func TestGrantStorageFailureCarriesState(t *testing.T) {
	env := newTestEnv(t)
	failing := &failingConsentRepo{}
	svc := consent.NewService(consent.Dependencies{
		Clients:         newFakeClientRepo(testClient()),
		Consents:        failing,
		ParishSettings:  env.parish,
		UserPermissions: env.perms,
		Store:           env.store,
		PKCE:            token.NewPKCEService(),
		OAuth2Config: &config.OAuth2Config{
			AuthorizationCodeExpiry: 10 * time.Minute,
			PKCERequired:            true,
		},
		Logger: logrus.New(),
	})

	_, err := svc.Grant(context.Background(), testUserID, testParishID, authorizeRequest("read"), nil)

	oauthErr := oauthError(t, err)
	assert.Equal(t, "server_error", oauthErr.Code)
	assert.True(t, oauthErr.RedirectSafe)
	assert.Equal(t, "xyz-123", oauthErr.State)
}

// failingConsentRepo simulates a backend outage on writes.
type failingConsentRepo struct{}

var errBackendDown = errors.New("backend down")

func (r *failingConsentRepo) UpsertConsent(
	_ context.Context, _, _, _ string, _ []string,
) (*models.Consent, error) {
	return nil, errBackendDown
}

func (r *failingConsentRepo) GetConsent(_ context.Context, _, _, _ string) (*models.Consent, error) {
	return nil, repository.ErrConsentNotFound
}

func (r *failingConsentRepo) GetConsentByID(_ context.Context, _ string) (*models.Consent, error) {
	return nil, repository.ErrConsentNotFound
}

func (r *failingConsentRepo) RevokeConsent(_ context.Context, _, _, _ string) (*models.Consent, error) {
	return nil, errBackendDown
}

func (r *failingConsentRepo) ListUserConsents(_ context.Context, _, _ string) ([]*models.Consent, error) {
	return nil, errBackendDown
}
