package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fr-mccarty/outwardsign-sub009/internal/config"
	"github.com/fr-mccarty/outwardsign-sub009/internal/models"
)

const jwtSecret = "this-is-a-very-long-secret-key-for-testing-purposes-123456789" // pragma: allowlist secret

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantErr  bool
		validate func(*testing.T, *config.Config)
	}{
		{
			name: "valid_configuration",
			envVars: map[string]string{
				"JWT_SECRET":  jwtSecret,
				"SERVER_PORT": "9090",
				"REDIS_URL":   "redis://localhost:6380",
			},
			wantErr: false,
			validate: func(t *testing.T, cfg *config.Config) {
				assert.Equal(t, 9090, cfg.Server.Port)
				assert.Equal(t, "redis://localhost:6380", cfg.Redis.URL)
				assert.Equal(t, jwtSecret, cfg.JWT.Secret)
			},
		},
		{
			name: "missing_jwt_secret",
			envVars: map[string]string{
				"SERVER_PORT": "8080",
			},
			wantErr: true,
		},
		{
			name: "short_jwt_secret",
			envVars: map[string]string{
				"JWT_SECRET":  "short",
				"SERVER_PORT": "8080",
			},
			wantErr: true,
		},
		{
			name: "invalid_port",
			envVars: map[string]string{
				"JWT_SECRET":  jwtSecret,
				"SERVER_PORT": "99999",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)

			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := config.Load()

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			if tt.validate != nil {
				tt.validate(t, cfg)
			}

			// Verify default values are set
			assert.Equal(t, "0.0.0.0", cfg.Server.Host)
			assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
			assert.Equal(t, "info", cfg.Logging.Level)
			assert.Equal(t, 10*time.Minute, cfg.OAuth2.AuthorizationCodeExpiry)
			assert.Equal(t, time.Hour, cfg.JWT.AccessTokenExpiry)
			assert.Equal(t, 720*time.Hour, cfg.JWT.RefreshTokenExpiry)

			// Scope vocabulary is fixed in code, not configurable
			assert.Equal(t, models.ValidScopes, cfg.OAuth2.SupportedScopes)
			assert.Equal(t, models.DefaultUserScopes, cfg.OAuth2.DefaultScopes)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	validJWT := config.JWTConfig{
		Secret:             jwtSecret,
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 720 * time.Hour,
		Algorithm:          "HS256",
	}
	validOAuth2 := config.OAuth2Config{
		AuthorizationCodeExpiry: 10 * time.Minute,
	}

	tests := []struct {
		name    string
		config  *config.Config
		wantErr bool
	}{
		{
			name: "valid_config",
			config: &config.Config{
				Server: config.ServerConfig{Port: 8080},
				JWT:    validJWT,
				OAuth2: validOAuth2,
			},
			wantErr: false,
		},
		{
			name: "empty_jwt_secret",
			config: &config.Config{
				Server: config.ServerConfig{Port: 8080},
				JWT:    config.JWTConfig{Secret: ""},
				OAuth2: validOAuth2,
			},
			wantErr: true,
		},
		{
			name: "short_jwt_secret",
			config: &config.Config{
				Server: config.ServerConfig{Port: 8080},
				JWT:    config.JWTConfig{Secret: "short"},
				OAuth2: validOAuth2,
			},
			wantErr: true,
		},
		{
			name: "invalid_port_low",
			config: &config.Config{
				Server: config.ServerConfig{Port: 0},
				JWT:    validJWT,
				OAuth2: validOAuth2,
			},
			wantErr: true,
		},
		{
			name: "invalid_port_high",
			config: &config.Config{
				Server: config.ServerConfig{Port: 99999},
				JWT:    validJWT,
				OAuth2: validOAuth2,
			},
			wantErr: true,
		},
		{
			name: "short_access_token_expiry",
			config: &config.Config{
				Server: config.ServerConfig{Port: 8080},
				JWT: config.JWTConfig{
					Secret:            jwtSecret,
					AccessTokenExpiry: 30 * time.Second,
				},
				OAuth2: validOAuth2,
			},
			wantErr: true,
		},
		{
			name: "short_refresh_token_expiry",
			config: &config.Config{
				Server: config.ServerConfig{Port: 8080},
				JWT: config.JWTConfig{
					Secret:             jwtSecret,
					AccessTokenExpiry:  time.Hour,
					RefreshTokenExpiry: 30 * time.Minute,
				},
				OAuth2: validOAuth2,
			},
			wantErr: true,
		},
		{
			name: "short_authorization_code_expiry",
			config: &config.Config{
				Server: config.ServerConfig{Port: 8080},
				JWT:    validJWT,
				OAuth2: config.OAuth2Config{
					AuthorizationCodeExpiry: 10 * time.Second,
				},
			},
			wantErr: true,
		},
		{
			name: "invalid_algorithm",
			config: &config.Config{
				Server: config.ServerConfig{Port: 8080},
				JWT: config.JWTConfig{
					Secret:             jwtSecret,
					AccessTokenExpiry:  time.Hour,
					RefreshTokenExpiry: 720 * time.Hour,
					Algorithm:          "INVALID",
				},
				OAuth2: validOAuth2,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigServerAddr(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Host: "localhost",
			Port: 9090,
		},
	}

	addr := cfg.ServerAddr()
	assert.Equal(t, "localhost:9090", addr)
}

func TestConfigIsTLSEnabled(t *testing.T) {
	tests := []struct {
		name     string
		config   *config.Config
		expected bool
	}{
		{
			name: "tls_enabled",
			config: &config.Config{
				Server: config.ServerConfig{
					TLSCert: "/path/to/cert.pem",
					TLSKey:  "/path/to/key.pem",
				},
			},
			expected: true,
		},
		{
			name: "tls_disabled_no_cert",
			config: &config.Config{
				Server: config.ServerConfig{
					TLSKey: "/path/to/key.pem",
				},
			},
			expected: false,
		},
		{
			name: "tls_disabled_no_key",
			config: &config.Config{
				Server: config.ServerConfig{
					TLSCert: "/path/to/cert.pem",
				},
			},
			expected: false,
		},
		{
			name: "tls_disabled_empty",
			config: &config.Config{
				Server: config.ServerConfig{},
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.config.IsTLSEnabled()
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestLoadClientManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clients.yaml")
	manifestYAML := `clients:
  - id: calendar-sync
    name: Parish Calendar Sync
    secret: calendar-sync-secret-0123456789
    redirect_uris:
      - https://calendar.example.com/oauth/callback
    scopes: [read, write]
    grant_types: [authorization_code, refresh_token]
    confidential: true
  - id: bulletin-app
    name: Bulletin Mobile App
    redirect_uris:
      - com.example.bulletin://callback
    scopes: [read, profile]
    grant_types: [authorization_code]
    confidential: false
`
	require.NoError(t, os.WriteFile(path, []byte(manifestYAML), 0o600))

	manifest, err := config.LoadClientManifest(path)
	require.NoError(t, err)
	require.Len(t, manifest.Clients, 2)

	assert.Equal(t, "calendar-sync", manifest.Clients[0].ID)
	assert.True(t, manifest.Clients[0].Confidential)
	assert.Equal(t, []string{"read", "write"}, manifest.Clients[0].Scopes)

	assert.Equal(t, "bulletin-app", manifest.Clients[1].ID)
	assert.False(t, manifest.Clients[1].Confidential)
}

func TestLoadClientManifestErrors(t *testing.T) {
	t.Run("missing_file", func(t *testing.T) {
		_, err := config.LoadClientManifest(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("confidential_without_secret", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "clients.yaml")
		manifestYAML := `clients:
  - id: broken
    name: Broken Client
    confidential: true
    grant_types: [client_credentials]
`
		require.NoError(t, os.WriteFile(path, []byte(manifestYAML), 0o600))

		_, err := config.LoadClientManifest(path)
		assert.Error(t, err)
	})
}

func clearEnv(_ *testing.T) {
	envVars := []string{
		"SERVER_PORT", "SERVER_HOST", "SERVER_READ_TIMEOUT", "SERVER_WRITE_TIMEOUT",
		"REDIS_URL", "REDIS_PASSWORD", "REDIS_DB",
		"JWT_SECRET", "JWT_ACCESS_TOKEN_EXPIRY", "JWT_REFRESH_TOKEN_EXPIRY",
		"JWT_ISSUER", "JWT_ALGORITHM",
		"OAUTH2_AUTHORIZATION_CODE_EXPIRY", "OAUTH2_PKCE_REQUIRED",
		"SECURITY_RATE_LIMIT_RPS", "SECURITY_ALLOWED_ORIGINS",
		"LOGGING_LEVEL", "LOGGING_FORMAT",
	}

	for _, env := range envVars {
		os.Unsetenv(env)
	}
}
