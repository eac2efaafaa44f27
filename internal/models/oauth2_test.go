package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "github.com/fr-mccarty/outwardsign-sub009/internal/models"
)

const (
	testRedirectURL = "https://calendar.example.com/oauth/callback"
)

func TestNewClient(t *testing.T) {
	name := "Parish Calendar Sync"
	redirectURIs := []string{testRedirectURL}
	scopes := []string{"read", "write"}
	grantTypes := []string{"authorization_code", "refresh_token"}

	client := models.NewClient(name, redirectURIs, scopes, grantTypes, true)

	require.NotNil(t, client)
	assert.NotEmpty(t, client.ID)
	assert.Empty(t, client.Secret, "secret hash is assigned separately")
	assert.Equal(t, name, client.Name)
	assert.Equal(t, redirectURIs, client.RedirectURIs)
	assert.Equal(t, scopes, client.Scopes)
	assert.Equal(t, grantTypes, client.GrantTypes)
	assert.True(t, client.Confidential)
	assert.True(t, client.IsActive)
	assert.False(t, client.CreatedAt.IsZero())
	assert.Equal(t, client.CreatedAt, client.UpdatedAt)
}

func TestClientValidateRedirectURI(t *testing.T) {
	client := models.NewClient("Diocesan Reports", []string{
		"https://reports.diocese.example/callback",
		"https://reports.diocese.example/alt-callback",
	}, []string{"read"}, []string{"authorization_code"}, true)

	tests := []struct {
		name string
		uri  string
		want bool
	}{
		{
			name: "exact match first URI",
			uri:  "https://reports.diocese.example/callback",
			want: true,
		},
		{
			name: "exact match second URI",
			uri:  "https://reports.diocese.example/alt-callback",
			want: true,
		},
		{
			name: "trailing slash is a different URI",
			uri:  "https://reports.diocese.example/callback/",
			want: false,
		},
		{
			name: "extra query parameter rejected",
			uri:  "https://reports.diocese.example/callback?next=x",
			want: false,
		},
		{
			name: "scheme downgrade rejected",
			uri:  "http://reports.diocese.example/callback",
			want: false,
		},
		{
			name: "case difference rejected",
			uri:  "https://Reports.diocese.example/callback",
			want: false,
		},
		{
			name: "empty URI rejected",
			uri:  "",
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, client.ValidateRedirectURI(tt.uri))
		})
	}
}

func TestClientHasGrantType(t *testing.T) {
	client := models.NewClient("Sync", []string{testRedirectURL},
		[]string{"read"}, []string{"authorization_code", "refresh_token"}, false)

	assert.True(t, client.HasGrantType(models.GrantTypeAuthorizationCode))
	assert.True(t, client.HasGrantType(models.GrantTypeRefreshToken))
	assert.False(t, client.HasGrantType(models.GrantTypeClientCredentials))
}

func TestNewAuthorizationCode(t *testing.T) {
	expiresAt := time.Now().Add(10 * time.Minute)

	authCode := models.NewAuthorizationCode(models.AuthorizationCodeParams{
		CodeHash:            "$2a$12$examplehash",
		CodePrefix:          "os_code_",
		ClientID:            "calendar-sync",
		UserID:              "user-1",
		ParishID:            "parish-1",
		RedirectURI:         testRedirectURL,
		Scopes:              []string{"read", "profile"},
		CodeChallenge:       "challenge",
		CodeChallengeMethod: "S256",
		State:               "xyz-state",
		ExpiresAt:           expiresAt,
	})

	require.NotNil(t, authCode)
	assert.NotEmpty(t, authCode.ID)
	assert.Equal(t, "$2a$12$examplehash", authCode.CodeHash)
	assert.Equal(t, "os_code_", authCode.CodePrefix)
	assert.Equal(t, "calendar-sync", authCode.ClientID)
	assert.Equal(t, "user-1", authCode.UserID)
	assert.Equal(t, "parish-1", authCode.ParishID)
	assert.Equal(t, testRedirectURL, authCode.RedirectURI)
	assert.Equal(t, []string{"read", "profile"}, authCode.Scopes)
	assert.Equal(t, "xyz-state", authCode.State)
	assert.Equal(t, expiresAt, authCode.ExpiresAt)
	assert.False(t, authCode.IsUsed())
	assert.False(t, authCode.IsExpired())
	assert.False(t, authCode.CreatedAt.IsZero())
}

func TestAuthorizationCodeExpiryAndUse(t *testing.T) {
	authCode := models.NewAuthorizationCode(models.AuthorizationCodeParams{
		ClientID:  "calendar-sync",
		UserID:    "user-1",
		ParishID:  "parish-1",
		ExpiresAt: time.Now().Add(-time.Minute),
	})

	assert.True(t, authCode.IsExpired())
	assert.False(t, authCode.IsUsed())

	usedAt := time.Now()
	authCode.UsedAt = &usedAt
	assert.True(t, authCode.IsUsed())
}

func TestRefreshTokenRotationState(t *testing.T) {
	rt := &models.RefreshToken{
		ID:        "rt-1",
		ClientID:  "calendar-sync",
		ExpiresAt: time.Now().Add(30 * 24 * time.Hour),
	}

	assert.False(t, rt.IsRotated())
	assert.False(t, rt.IsExpired())

	rotatedAt := time.Now()
	rt.RotatedAt = &rotatedAt
	rt.ReplacedByID = "rt-2"
	assert.True(t, rt.IsRotated())
}

func TestNewSession(t *testing.T) {
	session := models.NewSession("user-1", "parish-1", "calendar-sync")

	require.NotNil(t, session)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "user-1", session.UserID)
	assert.Equal(t, "parish-1", session.ParishID)
	assert.Equal(t, "calendar-sync", session.ClientID)
	assert.False(t, session.IsExpired())
	assert.WithinDuration(t, time.Now().Add(models.DefaultSessionExpiry), session.ExpiresAt, time.Minute)
}
