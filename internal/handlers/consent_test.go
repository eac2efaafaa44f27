package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fr-mccarty/outwardsign-sub009/internal/handlers"
	"github.com/fr-mccarty/outwardsign-sub009/internal/models"
	"github.com/fr-mccarty/outwardsign-sub009/internal/redis"
	"github.com/fr-mccarty/outwardsign-sub009/internal/repository"
	"github.com/fr-mccarty/outwardsign-sub009/pkg/logger"
)

const (
	consentTestUserID   = "6b1e2f4a-9c3d-4e5f-8a7b-1c2d3e4f5a6b"
	consentTestParishID = "parish-001"
	consentTestRedirect = "https://calendar.example.com/callback"
)

// mockConsentService implements consent.Service for handler testing.
type mockConsentService struct {
	buildFunc  func(ctx context.Context, userID, parishID string, req *models.AuthorizeRequest) (*models.ConsentContext, error)
	grantFunc  func(ctx context.Context, userID, parishID string, req *models.AuthorizeRequest, approvedScopes []string) (*models.AuthorizeResponse, error)
	denyFunc   func(ctx context.Context, userID, parishID string, req *models.AuthorizeRequest) error
	revokeFunc func(ctx context.Context, userID, parishID, clientID string) (*models.Consent, int, error)
	listFunc   func(ctx context.Context, parishID, userID string) ([]*models.Consent, error)
}

func (m *mockConsentService) BuildConsentContext(
	ctx context.Context,
	userID, parishID string,
	req *models.AuthorizeRequest,
) (*models.ConsentContext, error) {
	if m.buildFunc != nil {
		return m.buildFunc(ctx, userID, parishID, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockConsentService) Grant(
	ctx context.Context,
	userID, parishID string,
	req *models.AuthorizeRequest,
	approvedScopes []string,
) (*models.AuthorizeResponse, error) {
	if m.grantFunc != nil {
		return m.grantFunc(ctx, userID, parishID, req, approvedScopes)
	}
	return nil, errors.New("not implemented")
}

func (m *mockConsentService) Deny(
	ctx context.Context,
	userID, parishID string,
	req *models.AuthorizeRequest,
) error {
	if m.denyFunc != nil {
		return m.denyFunc(ctx, userID, parishID, req)
	}
	return errors.New("not implemented")
}

func (m *mockConsentService) GetExistingConsent(
	_ context.Context,
	_, _, _ string,
) (*models.Consent, error) {
	return nil, nil
}

func (m *mockConsentService) RevokeConsent(
	ctx context.Context,
	userID, parishID, clientID string,
) (*models.Consent, int, error) {
	if m.revokeFunc != nil {
		return m.revokeFunc(ctx, userID, parishID, clientID)
	}
	return nil, 0, errors.New("not implemented")
}

func (m *mockConsentService) ListConsents(
	ctx context.Context,
	parishID, userID string,
) ([]*models.Consent, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, parishID, userID)
	}
	return nil, errors.New("not implemented")
}

// consentTestEnv wires a consent handler against a memory store with one
// signed-in session.
type consentTestEnv struct {
	router    *mux.Router
	store     *redis.MemoryStore
	sessionID string
}

func newConsentTestEnv(t *testing.T, svc *mockConsentService) *consentTestEnv {
	t.Helper()

	log := logger.New("debug", "json", "stdout")
	store := redis.NewMemoryStore(log)

	session := models.NewSession(consentTestUserID, consentTestParishID, "")
	require.NoError(t, store.StoreSession(context.Background(), session, time.Hour))

	handler := handlers.NewConsentHandler(svc, store, nil, log)
	router := mux.NewRouter()
	handler.RegisterRoutes(router)

	return &consentTestEnv{router: router, store: store, sessionID: session.ID}
}

func (e *consentTestEnv) withSession(req *http.Request) *http.Request {
	req.AddCookie(&http.Cookie{Name: handlers.SessionCookieName, Value: e.sessionID})
	return req
}

func authorizeQuery() url.Values {
	return url.Values{
		"response_type":         {"code"},
		"client_id":             {"client-calendar"},
		"redirect_uri":          {consentTestRedirect},
		"scope":                 {"read profile"},
		"state":                 {"xyz-state"},
		"code_challenge":        {"E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"},
		"code_challenge_method": {"S256"},
	}
}

func TestConsentHandler_Authorize_PromptRequired(t *testing.T) {
	t.Parallel()

	svc := &mockConsentService{
		buildFunc: func(_ context.Context, userID, parishID string, req *models.AuthorizeRequest) (*models.ConsentContext, error) {
			assert.Equal(t, consentTestUserID, userID)
			assert.Equal(t, consentTestParishID, parishID)
			assert.Equal(t, "client-calendar", req.ClientID)
			return &models.ConsentContext{
				Client:      &models.Client{ID: "client-calendar", Name: "Calendar Sync"},
				UserID:      userID,
				ParishID:    parishID,
				Scopes:      []string{"read", "profile"},
				RedirectURI: consentTestRedirect,
				State:       "xyz-state",
			}, nil
		},
	}
	env := newConsentTestEnv(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/oauth2/authorize?"+authorizeQuery().Encode(), nil)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, env.withSession(req))

	require.Equal(t, http.StatusOK, rr.Code)

	var consentCtx models.ConsentContext
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &consentCtx))
	assert.Equal(t, "Calendar Sync", consentCtx.Client.Name)
	assert.Equal(t, []string{"read", "profile"}, consentCtx.Scopes)
	assert.False(t, consentCtx.AutoApprovable)
}

func TestConsentHandler_Authorize_AutoApproved(t *testing.T) {
	t.Parallel()

	svc := &mockConsentService{
		buildFunc: func(_ context.Context, userID, parishID string, _ *models.AuthorizeRequest) (*models.ConsentContext, error) {
			return &models.ConsentContext{
				UserID:         userID,
				ParishID:       parishID,
				Scopes:         []string{"read"},
				RedirectURI:    consentTestRedirect,
				AutoApprovable: true,
			}, nil
		},
		grantFunc: func(_ context.Context, _, _ string, req *models.AuthorizeRequest, approvedScopes []string) (*models.AuthorizeResponse, error) {
			assert.Nil(t, approvedScopes)
			return &models.AuthorizeResponse{
				Code:       "os_code_abc",
				State:      req.State,
				RedirectTo: consentTestRedirect + "?code=os_code_abc&state=" + req.State,
			}, nil
		},
	}
	env := newConsentTestEnv(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/oauth2/authorize?"+authorizeQuery().Encode(), nil)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, env.withSession(req))

	require.Equal(t, http.StatusFound, rr.Code)

	location := rr.Header().Get("Location")
	assert.Contains(t, location, "code=os_code_abc")
	assert.Contains(t, location, "state=xyz-state")
}

func TestConsentHandler_Authorize_NoSession(t *testing.T) {
	t.Parallel()

	env := newConsentTestEnv(t, &mockConsentService{})

	req := httptest.NewRequest(http.MethodGet, "/oauth2/authorize?"+authorizeQuery().Encode(), nil)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	// No session means no trusted redirect URI, so the error is answered
	// directly instead of redirected.
	require.Equal(t, http.StatusForbidden, rr.Code)

	var errResp models.OAuth2Error
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &errResp))
	assert.Equal(t, "access_denied", errResp.Code)
}

func TestConsentHandler_Authorize_RedirectSafeError(t *testing.T) {
	t.Parallel()

	svc := &mockConsentService{
		buildFunc: func(_ context.Context, _, _ string, req *models.AuthorizeRequest) (*models.ConsentContext, error) {
			return nil, models.NewNoValidScopes("no requested scopes are grantable").WithState(req.State)
		},
	}
	env := newConsentTestEnv(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/oauth2/authorize?"+authorizeQuery().Encode(), nil)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, env.withSession(req))

	require.Equal(t, http.StatusFound, rr.Code)

	location, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(location.String(), consentTestRedirect))
	assert.Equal(t, "invalid_scope", location.Query().Get("error"))
	assert.Equal(t, "xyz-state", location.Query().Get("state"))
}

func TestConsentHandler_Authorize_UnknownClientNotRedirected(t *testing.T) {
	t.Parallel()

	svc := &mockConsentService{
		buildFunc: func(_ context.Context, _, _ string, _ *models.AuthorizeRequest) (*models.ConsentContext, error) {
			return nil, models.NewUnknownClient("client not found")
		},
	}
	env := newConsentTestEnv(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/oauth2/authorize?"+authorizeQuery().Encode(), nil)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, env.withSession(req))

	// Unknown client errors must never follow the attacker-supplied
	// redirect URI.
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, rr.Header().Get("Location"))
}

func TestConsentHandler_Authorize_ForgedRequestNotRedirected(t *testing.T) {
	t.Parallel()

	// A forged request combines an unknown client, an attacker redirect URI,
	// and a bad response_type. The client failure wins and is answered
	// directly; nothing about the attacker's URI may leak into the response.
	svc := &mockConsentService{
		buildFunc: func(_ context.Context, _, _ string, req *models.AuthorizeRequest) (*models.ConsentContext, error) {
			assert.Equal(t, "no-such-client", req.ClientID)
			return nil, models.NewUnknownClient("client not found")
		},
	}
	env := newConsentTestEnv(t, svc)

	query := authorizeQuery()
	query.Set("response_type", "token")
	query.Set("client_id", "no-such-client")
	query.Set("redirect_uri", "https://evil.example/phish")
	query.Set("state", "attacker-state")

	req := httptest.NewRequest(http.MethodGet, "/oauth2/authorize?"+query.Encode(), nil)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, env.withSession(req))

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Empty(t, rr.Header().Get("Location"))

	var errResp models.OAuth2Error
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &errResp))
	assert.Equal(t, "unauthorized_client", errResp.Code)
}

func TestConsentHandler_Decide_Approved(t *testing.T) {
	t.Parallel()

	svc := &mockConsentService{
		grantFunc: func(_ context.Context, userID, parishID string, req *models.AuthorizeRequest, approvedScopes []string) (*models.AuthorizeResponse, error) {
			assert.Equal(t, consentTestUserID, userID)
			assert.Equal(t, consentTestParishID, parishID)
			assert.Nil(t, approvedScopes)
			return &models.AuthorizeResponse{
				Code:       "os_code_decide",
				State:      req.State,
				RedirectTo: consentTestRedirect + "?code=os_code_decide&state=" + req.State,
			}, nil
		},
	}
	env := newConsentTestEnv(t, svc)

	form := authorizeQuery()
	form.Set("approved", "true")

	req := httptest.NewRequest(http.MethodPost, "/oauth2/authorize", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, env.withSession(req))

	require.Equal(t, http.StatusFound, rr.Code)
	assert.Contains(t, rr.Header().Get("Location"), "code=os_code_decide")
}

func TestConsentHandler_Decide_PartialApproval(t *testing.T) {
	t.Parallel()

	svc := &mockConsentService{
		grantFunc: func(_ context.Context, _, _ string, req *models.AuthorizeRequest, approvedScopes []string) (*models.AuthorizeResponse, error) {
			assert.Equal(t, []string{"read"}, approvedScopes)
			return &models.AuthorizeResponse{
				Code:       "os_code_partial",
				RedirectTo: consentTestRedirect + "?code=os_code_partial&state=" + req.State,
			}, nil
		},
	}
	env := newConsentTestEnv(t, svc)

	form := authorizeQuery()
	form.Set("approved", "true")
	form.Set("approved_scopes", "read")

	req := httptest.NewRequest(http.MethodPost, "/oauth2/authorize", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, env.withSession(req))

	require.Equal(t, http.StatusFound, rr.Code)
}

func TestConsentHandler_Decide_Denied(t *testing.T) {
	t.Parallel()

	svc := &mockConsentService{
		denyFunc: func(_ context.Context, _, _ string, req *models.AuthorizeRequest) error {
			return models.NewAccessDenied("user denied the request").WithState(req.State)
		},
	}
	env := newConsentTestEnv(t, svc)

	form := authorizeQuery()
	form.Set("approved", "false")

	req := httptest.NewRequest(http.MethodPost, "/oauth2/authorize", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, env.withSession(req))

	require.Equal(t, http.StatusFound, rr.Code)

	location, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "access_denied", location.Query().Get("error"))
	assert.Equal(t, "xyz-state", location.Query().Get("state"))
}

func TestConsentHandler_ListConsents(t *testing.T) {
	t.Parallel()

	svc := &mockConsentService{
		listFunc: func(_ context.Context, parishID, userID string) ([]*models.Consent, error) {
			assert.Equal(t, consentTestParishID, parishID)
			assert.Equal(t, consentTestUserID, userID)
			return []*models.Consent{
				models.NewConsent(userID, parishID, "client-calendar", []string{"read", "profile"}),
			}, nil
		},
	}
	env := newConsentTestEnv(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/oauth2/consents", nil)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, env.withSession(req))

	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Consents []*models.Consent `json:"consents"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Consents, 1)
	assert.Equal(t, "client-calendar", resp.Consents[0].ClientID)
}

func TestConsentHandler_ListConsents_NoSession(t *testing.T) {
	t.Parallel()

	env := newConsentTestEnv(t, &mockConsentService{})

	req := httptest.NewRequest(http.MethodGet, "/oauth2/consents", nil)
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestConsentHandler_RevokeConsent(t *testing.T) {
	t.Parallel()

	t.Run("successful_revocation", func(t *testing.T) {
		t.Parallel()

		svc := &mockConsentService{
			revokeFunc: func(_ context.Context, userID, parishID, clientID string) (*models.Consent, int, error) {
				assert.Equal(t, "client-calendar", clientID)
				revoked := models.NewConsent(userID, parishID, clientID, []string{"read"})
				return revoked, 3, nil
			},
		}
		env := newConsentTestEnv(t, svc)

		req := httptest.NewRequest(http.MethodDelete, "/oauth2/consents/client-calendar", nil)
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, env.withSession(req))

		require.Equal(t, http.StatusOK, rr.Code)

		var resp struct {
			Consent       *models.Consent `json:"consent"`
			TokensRevoked int             `json:"tokens_revoked"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, 3, resp.TokensRevoked)
	})

	t.Run("consent_not_found", func(t *testing.T) {
		t.Parallel()

		svc := &mockConsentService{
			revokeFunc: func(_ context.Context, _, _, _ string) (*models.Consent, int, error) {
				return nil, 0, repository.ErrConsentNotFound
			},
		}
		env := newConsentTestEnv(t, svc)

		req := httptest.NewRequest(http.MethodDelete, "/oauth2/consents/client-unknown", nil)
		rr := httptest.NewRecorder()
		env.router.ServeHTTP(rr, env.withSession(req))

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
