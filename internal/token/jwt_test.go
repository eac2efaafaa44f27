package token_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fr-mccarty/outwardsign-sub009/internal/config"
	"github.com/fr-mccarty/outwardsign-sub009/internal/token"
)

const (
	jwtSecret  = "test-secret-key-for-jwt-testing-purposes-123456789" // pragma: allowlist secret
	issuer     = "test-issuer"
	testClient = "test-client"
	testUser   = "test-user"
	testParish = "parish-001"
)

func testJWTConfig() *config.JWTConfig {
	return &config.JWTConfig{
		Secret:             jwtSecret,
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 720 * time.Hour,
		Issuer:             issuer,
		Algorithm:          "HS256",
	}
}

func TestNewJWTService(t *testing.T) {
	service := token.NewJWTService(testJWTConfig())
	require.NotNil(t, service)

	jwtService, ok := service.(*token.JWTService)
	require.True(t, ok)
	assert.NotNil(t, jwtService)
}

func TestJWTServiceGenerateAccessToken(t *testing.T) {
	service := token.NewJWTService(testJWTConfig())

	tests := []struct {
		name  string
		input token.AccessTokenInput
	}{
		{
			name: "full_grant_context",
			input: token.AccessTokenInput{
				ClientID:  testClient,
				UserID:    testUser,
				ParishID:  testParish,
				ConsentID: "consent-123",
				Scopes:    []string{"read", "write"},
			},
		},
		{
			name: "client_credentials_no_user",
			input: token.AccessTokenInput{
				ClientID: testClient,
				ParishID: testParish,
				Scopes:   []string{"read"},
			},
		},
		{
			name: "minimal",
			input: token.AccessTokenInput{
				ClientID: testClient,
				Scopes:   []string{"read"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokenString, accessToken, err := service.GenerateAccessToken(tt.input)

			require.NoError(t, err)
			assert.NotEmpty(t, tokenString)
			require.NotNil(t, accessToken)

			assert.NotEmpty(t, accessToken.ID)
			assert.Equal(t, tt.input.ClientID, accessToken.ClientID)
			assert.Equal(t, tt.input.UserID, accessToken.UserID)
			assert.Equal(t, tt.input.ParishID, accessToken.ParishID)
			assert.Equal(t, tt.input.ConsentID, accessToken.ConsentID)
			assert.Equal(t, tt.input.Scopes, accessToken.Scopes)
			assert.False(t, accessToken.Revoked)
			assert.WithinDuration(t, time.Now().Add(15*time.Minute), accessToken.ExpiresAt, 5*time.Second)

			// JWT structure: header.payload.signature
			assert.Len(t, strings.Split(tokenString, "."), 3)
		})
	}
}

func TestJWTServiceValidateAccessToken(t *testing.T) {
	service := token.NewJWTService(testJWTConfig())

	validTokenString, minted, err := service.GenerateAccessToken(token.AccessTokenInput{
		ClientID:  testClient,
		UserID:    testUser,
		ParishID:  testParish,
		ConsentID: "consent-123",
		Scopes:    []string{"read"},
	})
	require.NoError(t, err)

	tests := []struct {
		name        string
		tokenString string
		wantErr     bool
	}{
		{
			name:        "valid_token",
			tokenString: validTokenString,
			wantErr:     false,
		},
		{
			name:        "empty_token",
			tokenString: "",
			wantErr:     true,
		},
		{
			name:        "invalid_format",
			tokenString: "invalid.token",
			wantErr:     true,
		},
		{
			name:        "invalid_signature",
			tokenString: validTokenString[:len(validTokenString)-5] + "wrong",
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accessToken, claims, validateErr := service.ValidateAccessToken(tt.tokenString)

			if tt.wantErr {
				require.Error(t, validateErr)
				assert.Nil(t, accessToken)
				assert.Nil(t, claims)
				return
			}

			require.NoError(t, validateErr)
			require.NotNil(t, accessToken)
			require.NotNil(t, claims)

			assert.Equal(t, minted.ID, accessToken.ID)
			assert.Equal(t, testClient, accessToken.ClientID)
			assert.Equal(t, testUser, accessToken.UserID)
			assert.Equal(t, testParish, accessToken.ParishID)
			assert.Equal(t, "consent-123", accessToken.ConsentID)
			assert.Equal(t, []string{"read"}, accessToken.Scopes)
			assert.Equal(t, "access_token", claims.Type)
		})
	}
}

func TestJWTServiceValidateAccessTokenWrongSecret(t *testing.T) {
	service := token.NewJWTService(testJWTConfig())

	otherCfg := testJWTConfig()
	otherCfg.Secret = "a-completely-different-secret-key-0123456789"
	otherService := token.NewJWTService(otherCfg)

	tokenString, _, err := otherService.GenerateAccessToken(token.AccessTokenInput{
		ClientID: testClient,
		UserID:   testUser,
		Scopes:   []string{"read"},
	})
	require.NoError(t, err)

	_, _, err = service.ValidateAccessToken(tokenString)
	require.Error(t, err)
}

func TestJWTServiceExtractClaims(t *testing.T) {
	service := token.NewJWTService(testJWTConfig())

	tokenString, _, err := service.GenerateAccessToken(token.AccessTokenInput{
		ClientID: testClient,
		UserID:   testUser,
		ParishID: testParish,
		Scopes:   []string{"read"},
	})
	require.NoError(t, err)

	tests := []struct {
		name        string
		tokenString string
		wantErr     bool
	}{
		{
			name:        "valid_token",
			tokenString: tokenString,
			wantErr:     false,
		},
		{
			name:        "invalid_token",
			tokenString: "invalid.jwt.token",
			wantErr:     true,
		},
		{
			name:        "empty_token",
			tokenString: "",
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, extractErr := service.ExtractClaims(tt.tokenString)

			if tt.wantErr {
				require.Error(t, extractErr)
				assert.Nil(t, claims)
				return
			}

			require.NoError(t, extractErr)
			require.NotNil(t, claims)

			assert.Equal(t, issuer, claims["iss"])
			assert.Equal(t, testUser, claims["sub"])
			assert.Equal(t, testParish, claims["parish_id"])
			assert.Contains(t, claims, "iat")
			assert.Contains(t, claims, "exp")
			assert.Contains(t, claims, "jti")
		})
	}
}
