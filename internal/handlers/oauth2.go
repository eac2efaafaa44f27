// Package handlers provides HTTP handlers for the OAuth2 endpoints:
// authorization and consent, token, introspection, revocation, userinfo,
// discovery, and the admin surface.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/fr-mccarty/outwardsign-sub009/internal/auth"
	"github.com/fr-mccarty/outwardsign-sub009/internal/config"
	"github.com/fr-mccarty/outwardsign-sub009/internal/constants"
	"github.com/fr-mccarty/outwardsign-sub009/internal/models"
)

// OAuth2Handler handles the token-side OAuth2 HTTP endpoints.
type OAuth2Handler struct {
	authSvc auth.Service
	config  *config.Config
	logger  *logrus.Logger
}

const (
	invalidFormDataError = "Invalid form data"
	encodingFailureError = "Failed to encode response"
)

// NewOAuth2Handler creates a new OAuth2 HTTP handler.
func NewOAuth2Handler(authSvc auth.Service, cfg *config.Config, logger *logrus.Logger) *OAuth2Handler {
	return &OAuth2Handler{
		authSvc: authSvc,
		config:  cfg,
		logger:  logger,
	}
}

// RegisterRoutes registers the token-side OAuth2 endpoints with the router.
func (h *OAuth2Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/oauth2/token", h.Token).Methods("POST")
	r.HandleFunc("/oauth2/revoke", h.RevokeToken).Methods("POST")
	r.HandleFunc("/oauth2/introspect", h.IntrospectToken).Methods("POST")
	r.HandleFunc("/oauth2/userinfo", h.UserInfo).Methods("GET", "POST")

	// Discovery endpoint
	r.HandleFunc("/.well-known/oauth-authorization-server", h.WellKnownOAuthServer).Methods("GET")

	// Client management endpoints (for parish administrators)
	r.HandleFunc("/oauth2/clients", h.RegisterClient).Methods("POST")
	r.HandleFunc("/oauth2/clients/{client_id}", h.GetClient).Methods("GET")
	r.HandleFunc("/oauth2/clients/{client_id}/rotate-secret", h.RotateClientSecret).Methods("POST")
}

// Token handles token requests for all supported grant types.
func (h *OAuth2Handler) Token(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parse request
	if err := r.ParseForm(); err != nil {
		h.writeOAuth2Error(w, models.NewInvalidRequest(invalidFormDataError))
		return
	}

	h.logger.WithField("grant_type", r.FormValue("grant_type")).Info("Processing token request")

	// Extract client credentials from Basic Auth or form
	clientID, clientSecret := h.extractClientCredentials(r)

	req := &models.TokenRequest{
		GrantType:    models.GrantType(r.FormValue("grant_type")),
		Code:         r.FormValue("code"),
		RedirectURI:  r.FormValue("redirect_uri"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RefreshToken: r.FormValue("refresh_token"),
		Scope:        r.FormValue("scope"),
		CodeVerifier: r.FormValue("code_verifier"),
	}

	resp, err := h.authSvc.Token(ctx, req)
	if err != nil {
		h.writeOAuth2Error(w, err)
		return
	}

	// Marshal response first so we can handle errors before writing headers/body.
	payload, marshalErr := json.Marshal(resp)
	if marshalErr != nil {
		h.logger.WithError(marshalErr).Error("Failed to marshal token response")
		h.writeOAuth2Error(w, models.NewServerError(encodingFailureError))
		return
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	if _, writeErr := w.Write(payload); writeErr != nil {
		h.logger.WithError(writeErr).Error("Failed to write token response")
		// Can't send another HTTP error here because headers/body may already be in-flight.
		return
	}

	h.logger.WithFields(logrus.Fields{
		"client_id":   req.ClientID,
		"grant_type":  req.GrantType,
		"has_refresh": resp.RefreshToken != "",
	}).Info("Token issued successfully")
}

// IntrospectToken handles RFC 7662 token introspection requests.
func (h *OAuth2Handler) IntrospectToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	h.logger.Debug("Processing token introspection request")

	if err := r.ParseForm(); err != nil {
		h.writeOAuth2Error(w, models.NewInvalidRequest(invalidFormDataError))
		return
	}

	clientID, clientSecret := h.extractClientCredentials(r)

	req := &models.IntrospectionRequest{
		Token:         r.FormValue("token"),
		TokenTypeHint: r.FormValue("token_type_hint"),
		ClientID:      clientID,
		ClientSecret:  clientSecret,
	}

	resp, err := h.authSvc.IntrospectToken(ctx, req)
	if err != nil {
		h.writeOAuth2Error(w, err)
		return
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	if encodeErr := json.NewEncoder(w).Encode(resp); encodeErr != nil {
		h.logger.WithError(encodeErr).Error("Failed to encode introspection response")
	}
}

// RevokeToken handles RFC 7009 token revocation requests.
func (h *OAuth2Handler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	h.logger.Debug("Processing token revocation request")

	if err := r.ParseForm(); err != nil {
		h.writeOAuth2Error(w, models.NewInvalidRequest(invalidFormDataError))
		return
	}

	clientID, clientSecret := h.extractClientCredentials(r)

	req := &models.RevocationRequest{
		Token:         r.FormValue("token"),
		TokenTypeHint: r.FormValue("token_type_hint"),
		ClientID:      clientID,
		ClientSecret:  clientSecret,
	}

	if err := h.authSvc.RevokeToken(ctx, req); err != nil {
		h.writeOAuth2Error(w, err)
		return
	}

	// RFC 7009 requires 200 OK for successful revocation, found or not.
	w.WriteHeader(http.StatusOK)

	h.logger.WithField("client_id", req.ClientID).Info("Token revocation processed")
}

// UserInfo returns the member profile behind a bearer access token.
func (h *OAuth2Handler) UserInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	h.logger.Debug("Processing UserInfo request")

	accessToken := h.extractAccessToken(r)
	if accessToken == "" {
		h.writeOAuth2Error(w, models.NewInvalidRequest("Access token is required"))
		return
	}

	userInfo, err := h.authSvc.GetUserInfo(ctx, accessToken)
	if err != nil {
		h.writeOAuth2Error(w, err)
		return
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	if encodeErr := json.NewEncoder(w).Encode(userInfo); encodeErr != nil {
		h.logger.WithError(encodeErr).Error("Failed to encode UserInfo response")
	}
}

// WellKnownOAuthServer handles OAuth2 authorization server discovery.
func (h *OAuth2Handler) WellKnownOAuthServer(w http.ResponseWriter, r *http.Request) {
	baseURL := "https://" + r.Host
	if h.config.Server.TLSCert == "" {
		baseURL = "http://" + r.Host
	}

	discovery := map[string]interface{}{
		"issuer":                                        baseURL,
		"authorization_endpoint":                        baseURL + "/oauth2/authorize",
		"token_endpoint":                                baseURL + "/oauth2/token",
		"revocation_endpoint":                           baseURL + "/oauth2/revoke",
		"introspection_endpoint":                        baseURL + "/oauth2/introspect",
		"userinfo_endpoint":                             baseURL + "/oauth2/userinfo",
		"response_types_supported":                      h.config.OAuth2.SupportedResponseTypes,
		"grant_types_supported":                         h.config.OAuth2.SupportedGrantTypes,
		"scopes_supported":                              h.config.OAuth2.SupportedScopes,
		"token_endpoint_auth_methods_supported":         []string{"client_secret_post", "client_secret_basic", "none"},
		"code_challenge_methods_supported":              []string{"plain", "S256"},
		"revocation_endpoint_auth_methods_supported":    []string{"client_secret_post", "client_secret_basic"},
		"introspection_endpoint_auth_methods_supported": []string{"client_secret_post", "client_secret_basic"},
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	if err := json.NewEncoder(w).Encode(discovery); err != nil {
		h.logger.WithError(err).Error("Failed to encode discovery response")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// RegisterClient handles client registration requests.
func (h *OAuth2Handler) RegisterClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	h.logger.Info("Processing client registration request")

	var req struct {
		Name         string   `json:"name"`
		RedirectURIs []string `json:"redirect_uris"`
		Scopes       []string `json:"scopes"`
		GrantTypes   []string `json:"grant_types"`
		Confidential bool     `json:"confidential"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	client, err := h.authSvc.RegisterClient(ctx, req.Name, req.RedirectURIs, req.Scopes, req.GrantTypes, req.Confidential)
	if err != nil {
		h.logger.WithError(err).Error("Failed to register client")
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// The plaintext secret is included here and never shown again.
	response := struct {
		ID           string   `json:"id"`
		Secret       string   `json:"secret,omitempty"`
		Name         string   `json:"name"`
		RedirectURIs []string `json:"redirect_uris"`
		Scopes       []string `json:"scopes"`
		GrantTypes   []string `json:"grant_types"`
		Confidential bool     `json:"confidential"`
		CreatedAt    string   `json:"created_at"`
	}{
		ID:           client.ID,
		Secret:       client.Secret,
		Name:         client.Name,
		RedirectURIs: client.RedirectURIs,
		Scopes:       client.Scopes,
		GrantTypes:   client.GrantTypes,
		Confidential: client.Confidential,
		CreatedAt:    client.CreatedAt.Format(time.RFC3339),
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(http.StatusCreated)
	if encodeErr := json.NewEncoder(w).Encode(response); encodeErr != nil {
		h.logger.WithError(encodeErr).Error("Failed to encode client response")
	}
}

// GetClient handles client retrieval requests.
func (h *OAuth2Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	clientID := vars["client_id"]

	client, err := h.authSvc.GetClient(ctx, clientID)
	if err != nil {
		h.writeError(w, "Client not found", http.StatusNotFound)
		return
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	if encodeErr := json.NewEncoder(w).Encode(client); encodeErr != nil {
		h.logger.WithError(encodeErr).Error("Failed to encode client response")
	}
}

// RotateClientSecret replaces a confidential client's secret. The caller must
// present the current secret; the new one is returned once and never again.
func (h *OAuth2Handler) RotateClientSecret(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := mux.Vars(r)["client_id"]

	var req struct {
		CurrentSecret string `json:"current_secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	newSecret, err := h.authSvc.UpdateClientSecret(ctx, clientID, req.CurrentSecret)
	if err != nil {
		h.logger.WithError(err).WithField("client_id", clientID).Warn("Client secret rotation failed")
		h.writeOAuth2Error(w, err)
		return
	}

	h.logger.WithField("client_id", clientID).Info("Client secret rotated")

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	if encodeErr := json.NewEncoder(w).Encode(map[string]string{
		"client_id": clientID,
		"secret":    newSecret,
	}); encodeErr != nil {
		h.logger.WithError(encodeErr).Error("Failed to encode rotation response")
	}
}

// extractClientCredentials extracts client credentials from Basic Auth or form parameters.
func (h *OAuth2Handler) extractClientCredentials(r *http.Request) (string, string) {
	if basicClientID, basicSecret, ok := r.BasicAuth(); ok {
		// Basic auth credentials are URL-encoded per RFC 6749 section 2.3.1.
		if decodedID, err := url.QueryUnescape(basicClientID); err == nil {
			basicClientID = decodedID
		}
		if decodedSecret, err := url.QueryUnescape(basicSecret); err == nil {
			basicSecret = decodedSecret
		}
		return basicClientID, basicSecret
	}

	return r.FormValue("client_id"), r.FormValue("client_secret")
}

// extractAccessToken extracts the access token from the Authorization header or form.
func (h *OAuth2Handler) extractAccessToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return r.FormValue("access_token")
}

// writeOAuth2Error writes an OAuth2 error as a direct JSON response. The
// token-side endpoints never redirect; redirect-based error delivery is the
// authorization side's concern.
func (h *OAuth2Handler) writeOAuth2Error(w http.ResponseWriter, err error) {
	var oauth2Err *models.OAuth2Error
	if !errors.As(err, &oauth2Err) {
		oauth2Err = models.NewServerError(err.Error())
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(oauth2Err.StatusCode)

	if encodeErr := json.NewEncoder(w).Encode(oauth2Err); encodeErr != nil {
		h.logger.WithError(encodeErr).Error("Failed to encode error response")
	}

	h.logger.WithFields(logrus.Fields{
		"error":       oauth2Err.Code,
		"description": oauth2Err.Description,
		"status_code": oauth2Err.StatusCode,
	}).Warn("OAuth2 error response")
}

// writeError writes a simple error response.
func (h *OAuth2Handler) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(statusCode)

	resp := map[string]string{"error": message}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.WithError(err).Error("Failed to encode error response")
	}
}
