package client

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// FlowClient drives the authorization code flow with PKCE from the relying
// party side: it builds the authorize URL the parishioner is sent to,
// exchanges the returned code for tokens, and wraps the introspection and
// revocation endpoints.
type FlowClient struct {
	clientID     string
	clientSecret string
	baseURL      string
	redirectURI  string
	httpClient   *http.Client
	logger       *logrus.Logger
}

// TokenSet holds the tokens returned by a code exchange or refresh.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Introspection holds the fields of an introspection response that
// integrations act on.
type Introspection struct {
	Active   bool   `json:"active"`
	Scope    string `json:"scope,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	Subject  string `json:"sub,omitempty"`
	ParishID string `json:"parish_id,omitempty"`
	ExpireAt int64  `json:"exp,omitempty"`
}

// FlowError is an OAuth2 error response from the token or introspection
// endpoint.
type FlowError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *FlowError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return e.Code
}

// NewFlowClient creates a FlowClient for the consent service at baseURL.
// clientSecret is empty for public clients, which rely on PKCE alone.
func NewFlowClient(
	clientID string,
	clientSecret string,
	baseURL string,
	redirectURI string,
	logger *logrus.Logger,
) *FlowClient {
	const defaultTimeoutSeconds = 10
	return &FlowClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      strings.TrimRight(baseURL, "/"),
		redirectURI:  redirectURI,
		httpClient: &http.Client{
			Timeout: defaultTimeoutSeconds * time.Second,
		},
		logger: logger,
	}
}

// GenerateCodeVerifier returns a fresh PKCE code verifier: 32 random bytes,
// base64url-encoded without padding.
func GenerateCodeVerifier() (string, error) {
	verifierBytes := make([]byte, 32)
	if _, err := rand.Read(verifierBytes); err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(verifierBytes), nil
}

// ChallengeS256 derives the S256 code challenge from a verifier.
func ChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// AuthorizeURL builds the URL the parishioner is sent to for consent. The
// challenge must be derived from a verifier held until the code exchange;
// state is echoed back on the redirect and should be unguessable.
func (f *FlowClient) AuthorizeURL(scopes []string, state, codeChallenge string) string {
	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", f.clientID)
	params.Set("redirect_uri", f.redirectURI)
	params.Set("scope", strings.Join(scopes, " "))
	params.Set("state", state)
	params.Set("code_challenge", codeChallenge)
	params.Set("code_challenge_method", "S256")

	return f.baseURL + "/oauth2/authorize?" + params.Encode()
}

// ExchangeCode trades an authorization code and its PKCE verifier for a
// token set. The redirect URI must match the one used on the authorize
// request.
func (f *FlowClient) ExchangeCode(ctx context.Context, code, verifier string) (*TokenSet, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", f.redirectURI)
	data.Set("code_verifier", verifier)
	data.Set("client_id", f.clientID)
	if f.clientSecret != "" {
		data.Set("client_secret", f.clientSecret)
	}

	f.logger.WithFields(logrus.Fields{
		"client_id": f.clientID,
	}).Debug("Exchanging authorization code")

	return f.postToken(ctx, data)
}

// Refresh trades a refresh token for a new token set. The returned set
// carries a rotated refresh token; the presented one is no longer valid.
func (f *FlowClient) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	data.Set("client_id", f.clientID)
	if f.clientSecret != "" {
		data.Set("client_secret", f.clientSecret)
	}

	return f.postToken(ctx, data)
}

// Introspect asks the service whether a token is active and what it covers.
func (f *FlowClient) Introspect(ctx context.Context, token string) (*Introspection, error) {
	data := url.Values{}
	data.Set("token", token)
	data.Set("client_id", f.clientID)
	if f.clientSecret != "" {
		data.Set("client_secret", f.clientSecret)
	}

	resp, err := f.postForm(ctx, "/oauth2/introspect", data)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseFlowError(resp)
	}

	var introspection Introspection
	if decodeErr := json.NewDecoder(resp.Body).Decode(&introspection); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode introspection response: %w", decodeErr)
	}

	return &introspection, nil
}

// Revoke invalidates a token. Per RFC 7009 the endpoint answers 200 even for
// unknown tokens, so only transport and client-authentication failures are
// reported.
func (f *FlowClient) Revoke(ctx context.Context, token string) error {
	data := url.Values{}
	data.Set("token", token)
	data.Set("client_id", f.clientID)
	if f.clientSecret != "" {
		data.Set("client_secret", f.clientSecret)
	}

	resp, err := f.postForm(ctx, "/oauth2/revoke", data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseFlowError(resp)
	}

	return nil
}

func (f *FlowClient) postToken(ctx context.Context, data url.Values) (*TokenSet, error) {
	resp, err := f.postForm(ctx, "/oauth2/token", data)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseFlowError(resp)
	}

	var tokens TokenSet
	if decodeErr := json.NewDecoder(resp.Body).Decode(&tokens); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", decodeErr)
	}

	return &tokens, nil
}

func (f *FlowClient) postForm(ctx context.Context, path string, data url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		f.baseURL+path,
		strings.NewReader(data.Encode()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return resp, nil
}

func parseFlowError(resp *http.Response) error {
	var flowErr FlowError
	if err := json.NewDecoder(resp.Body).Decode(&flowErr); err != nil || flowErr.Code == "" {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return &flowErr
}
