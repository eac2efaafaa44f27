// Package client provides the HTTP client SDK that parish integrations use
// to talk to the consent service and to call OutwardSign APIs with the
// tokens it issues.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TokenManager manages OAuth2 access tokens with automatic refresh.
// It provides thread-safe token caching to avoid redundant token requests.
type TokenManager interface {
	// GetToken returns a valid access token, refreshing if necessary.
	GetToken(ctx context.Context) (string, error)
	// InvalidateToken forces a token refresh on the next GetToken call.
	InvalidateToken()
}

// tokenManager is the concrete implementation of TokenManager. It supports
// two refresh strategies: the client credentials grant for backend
// integrations acting as themselves, and the refresh token grant for
// integrations holding tokens a parishioner delegated through the consent
// flow.
type tokenManager struct {
	mu           sync.RWMutex
	clientID     string
	clientSecret string
	tokenURL     string
	httpClient   *http.Client
	logger       *logrus.Logger

	// Refresh token for the refresh_token grant. The service rotates
	// refresh tokens on every use, so this is updated after each refresh.
	refreshToken string

	// Cached token
	accessToken string
	expiresAt   time.Time
}

// tokenResponse represents the OAuth2 token response.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope"`
}

// NewTokenManager creates a TokenManager that obtains tokens with the client
// credentials grant. Tokens are cached until 5 minutes before expiry.
//
// Parameters:
//   - clientID: OAuth2 client identifier
//   - clientSecret: OAuth2 client secret
//   - tokenURL: Token endpoint URL (e.g., "http://localhost:8080/oauth2/token")
//   - logger: Structured logger for token operations
func NewTokenManager(
	clientID string,
	clientSecret string,
	tokenURL string,
	logger *logrus.Logger,
) TokenManager {
	const defaultTimeoutSeconds = 10
	return &tokenManager{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     tokenURL,
		httpClient: &http.Client{
			Timeout: defaultTimeoutSeconds * time.Second,
		},
		logger: logger,
	}
}

// NewRefreshTokenManager creates a TokenManager that refreshes a delegated
// token set with the refresh_token grant. The initial refresh token comes
// from an authorization code exchange; because the service rotates refresh
// tokens on every use, the manager tracks the latest one internally.
func NewRefreshTokenManager(
	clientID string,
	clientSecret string,
	tokenURL string,
	refreshToken string,
	logger *logrus.Logger,
) TokenManager {
	const defaultTimeoutSeconds = 10
	return &tokenManager{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     tokenURL,
		refreshToken: refreshToken,
		httpClient: &http.Client{
			Timeout: defaultTimeoutSeconds * time.Second,
		},
		logger: logger,
	}
}

// GetToken returns a valid access token, refreshing if necessary.
// It uses a read lock for cached tokens and upgrades to write lock for refresh.
func (t *tokenManager) GetToken(ctx context.Context) (string, error) {
	// Check if we have a valid cached token
	t.mu.RLock()
	if t.accessToken != "" && time.Now().Before(t.expiresAt) {
		token := t.accessToken
		t.mu.RUnlock()
		return token, nil
	}
	t.mu.RUnlock()

	// Need to refresh - acquire write lock
	t.mu.Lock()
	defer t.mu.Unlock()

	// Double-check after acquiring write lock (another goroutine may have refreshed)
	if t.accessToken != "" && time.Now().Before(t.expiresAt) {
		return t.accessToken, nil
	}

	// Refresh the token
	return t.fetchToken(ctx)
}

// InvalidateToken forces the cached token to be refreshed on the next GetToken call.
func (t *tokenManager) InvalidateToken() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.accessToken = ""
	t.expiresAt = time.Time{}

	t.logger.Debug("Token invalidated, will refresh on next request")
}

// fetchToken obtains a new access token, using the refresh_token grant when
// a refresh token is held and the client_credentials grant otherwise.
// Caller must hold write lock.
func (t *tokenManager) fetchToken(ctx context.Context) (string, error) {
	data := url.Values{}
	if t.refreshToken != "" {
		data.Set("grant_type", "refresh_token")
		data.Set("refresh_token", t.refreshToken)
	} else {
		data.Set("grant_type", "client_credentials")
	}
	data.Set("client_id", t.clientID)
	if t.clientSecret != "" {
		data.Set("client_secret", t.clientSecret)
	}

	t.logger.WithFields(logrus.Fields{
		"client_id":  t.clientID,
		"token_url":  t.tokenURL,
		"grant_type": data.Get("grant_type"),
	}).Debug("Requesting access token")

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		t.tokenURL,
		strings.NewReader(data.Encode()),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	// Execute request
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to request token: %w", err)
	}
	defer resp.Body.Close()

	// Check response status
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request failed with status %d", resp.StatusCode)
	}

	// Parse response
	var tokenResp tokenResponse
	if decodeErr := json.NewDecoder(resp.Body).Decode(&tokenResp); decodeErr != nil {
		return "", fmt.Errorf("failed to decode token response: %w", decodeErr)
	}

	// Cache the token with 5-minute buffer before expiry
	const expiryBufferMinutes = 5
	expiryBuffer := expiryBufferMinutes * time.Minute
	expiresIn := time.Duration(tokenResp.ExpiresIn) * time.Second
	if expiresIn > expiryBuffer {
		expiresIn -= expiryBuffer
	}

	t.accessToken = tokenResp.AccessToken
	t.expiresAt = time.Now().Add(expiresIn)

	// Refresh tokens rotate on every use. Keep the replacement or the
	// next refresh will present a revoked token.
	if tokenResp.RefreshToken != "" {
		t.refreshToken = tokenResp.RefreshToken
	}

	t.logger.WithFields(logrus.Fields{
		"expires_in": tokenResp.ExpiresIn,
		"expires_at": t.expiresAt,
	}).Debug("Access token obtained")

	return t.accessToken, nil
}
