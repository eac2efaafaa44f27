package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "github.com/fr-mccarty/outwardsign-sub009/internal/models"
)

func TestNewConsent(t *testing.T) {
	consent := models.NewConsent("user-1", "parish-1", "calendar-sync",
		[]string{"profile", "write", "read"})

	require.NotNil(t, consent)
	assert.NotEmpty(t, consent.ID)
	assert.Equal(t, "user-1", consent.UserID)
	assert.Equal(t, "parish-1", consent.ParishID)
	assert.Equal(t, "calendar-sync", consent.ClientID)
	assert.Equal(t, []string{"read", "write", "profile"}, consent.Scopes,
		"stored scopes use canonical order")
	assert.False(t, consent.IsRevoked())
	assert.False(t, consent.GrantedAt.IsZero())
}

func TestConsentCovers(t *testing.T) {
	tests := []struct {
		name    string
		granted []string
		revoked bool
		wanted  []string
		want    bool
	}{
		{
			name:    "identical scopes covered",
			granted: []string{"read", "profile"},
			wanted:  []string{"read", "profile"},
			want:    true,
		},
		{
			name:    "subset of granted covered",
			granted: []string{"read", "write", "profile"},
			wanted:  []string{"read", "profile"},
			want:    true,
		},
		{
			name:    "write does not stand in for read",
			granted: []string{"write"},
			wanted:  []string{"read"},
			want:    false,
		},
		{
			name:    "read does not cover write",
			granted: []string{"read"},
			wanted:  []string{"write"},
			want:    false,
		},
		{
			name:    "profile not implied by delete",
			granted: []string{"delete"},
			wanted:  []string{"profile"},
			want:    false,
		},
		{
			name:    "revoked consent covers nothing",
			granted: []string{"read", "write", "delete", "profile"},
			revoked: true,
			wanted:  []string{"read"},
			want:    false,
		},
		{
			name:    "empty request covered by any live consent",
			granted: []string{"read"},
			wanted:  []string{},
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			consent := models.NewConsent("user-1", "parish-1", "client-1", tt.granted)
			if tt.revoked {
				now := time.Now()
				consent.RevokedAt = &now
			}
			assert.Equal(t, tt.want, consent.Covers(tt.wanted))
		})
	}
}

func TestConsentDecisionToAuthorizeRequest(t *testing.T) {
	decision := &models.ConsentDecisionRequest{
		Approved:            true,
		ClientID:            "calendar-sync",
		RedirectURI:         testRedirectURL,
		Scope:               "read profile",
		State:               "abc123",
		CodeChallenge:       "challenge",
		CodeChallengeMethod: "S256",
	}

	req := decision.ToAuthorizeRequest()

	assert.Equal(t, models.ResponseTypeCode, req.ResponseType)
	assert.Equal(t, "calendar-sync", req.ClientID)
	assert.Equal(t, testRedirectURL, req.RedirectURI)
	assert.Equal(t, "read profile", req.Scope)
	assert.Equal(t, "abc123", req.State)
	assert.Equal(t, "challenge", req.CodeChallenge)
	assert.Equal(t, "S256", req.CodeChallengeMethod)
}

func TestParishSettingsEffectiveScopes(t *testing.T) {
	settings := &models.ParishSettings{ParishID: "parish-1", OAuthEnabled: true}
	assert.Equal(t, models.ValidScopes, settings.EffectiveScopes())

	settings.AllowedScopes = []string{"read", "profile"}
	assert.Equal(t, []string{"read", "profile"}, settings.EffectiveScopes())
}

func TestUpdateParishSettingsRequestValidate(t *testing.T) {
	req := &models.UpdateParishSettingsRequest{
		OAuthEnabled:  true,
		AllowedScopes: []string{"read", "write"},
	}
	assert.NoError(t, req.Validate())

	req.AllowedScopes = []string{"read", "bulletin"}
	assert.Error(t, req.Validate())
}

func TestSetUserPermissionsRequestValidate(t *testing.T) {
	req := &models.SetUserPermissionsRequest{AllowedScopes: []string{"read"}}
	assert.NoError(t, req.Validate())

	req.AllowedScopes = nil
	assert.Error(t, req.Validate())

	req.AllowedScopes = []string{"everything"}
	assert.Error(t, req.Validate())
}
