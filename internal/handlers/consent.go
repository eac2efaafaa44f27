package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/fr-mccarty/outwardsign-sub009/internal/config"
	"github.com/fr-mccarty/outwardsign-sub009/internal/consent"
	"github.com/fr-mccarty/outwardsign-sub009/internal/constants"
	"github.com/fr-mccarty/outwardsign-sub009/internal/models"
	"github.com/fr-mccarty/outwardsign-sub009/internal/redis"
	"github.com/fr-mccarty/outwardsign-sub009/internal/repository"
)

// SessionCookieName is the cookie carrying the parish app session ID.
// Sessions are created by the parish application when the member signs in;
// this service only reads them.
const SessionCookieName = "os_session"

// ConsentHandler handles the authorization side of the OAuth2 flow: the
// authorize endpoint, the consent decision, and consent management.
type ConsentHandler struct {
	consentSvc consent.Service
	store      redis.Store
	config     *config.Config
	logger     *logrus.Logger
}

// NewConsentHandler creates a new consent HTTP handler.
func NewConsentHandler(
	consentSvc consent.Service,
	store redis.Store,
	cfg *config.Config,
	logger *logrus.Logger,
) *ConsentHandler {
	return &ConsentHandler{
		consentSvc: consentSvc,
		store:      store,
		config:     cfg,
		logger:     logger,
	}
}

// RegisterRoutes registers the authorization-side endpoints with the router.
func (h *ConsentHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/oauth2/authorize", h.Authorize).Methods("GET")
	r.HandleFunc("/oauth2/authorize", h.Decide).Methods("POST")

	// Consent management for the signed-in member
	r.HandleFunc("/oauth2/consents", h.ListConsents).Methods("GET")
	r.HandleFunc("/oauth2/consents/{client_id}", h.RevokeConsent).Methods("DELETE")
}

// Authorize handles the OAuth2 authorization request. The member must be
// signed in to the parish application; their session identifies the user and
// parish. When an existing consent already covers the requested scopes the
// prompt is skipped and the client gets its code immediately; otherwise the
// consent context is returned for the parish app to render.
func (h *ConsentHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	h.logger.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).Info("Processing authorization request")

	if err := r.ParseForm(); err != nil {
		h.writeAuthorizeError(w, r, models.NewInvalidRequest(invalidFormDataError), "")
		return
	}

	session, err := h.requireSession(r)
	if err != nil {
		h.writeAuthorizeError(w, r, models.NewAccessDenied("sign in to the parish application first"), "")
		return
	}

	req := &models.AuthorizeRequest{
		ResponseType:        models.ResponseType(r.FormValue("response_type")),
		ClientID:            r.FormValue("client_id"),
		RedirectURI:         r.FormValue("redirect_uri"),
		Scope:               r.FormValue("scope"),
		State:               r.FormValue("state"),
		CodeChallenge:       r.FormValue("code_challenge"),
		CodeChallengeMethod: r.FormValue("code_challenge_method"),
	}

	consentCtx, err := h.consentSvc.BuildConsentContext(ctx, session.UserID, session.ParishID, req)
	if err != nil {
		h.writeAuthorizeError(w, r, err, req.RedirectURI)
		return
	}

	if consentCtx.AutoApprovable {
		resp, grantErr := h.consentSvc.Grant(ctx, session.UserID, session.ParishID, req, nil)
		if grantErr != nil {
			h.writeAuthorizeError(w, r, grantErr, req.RedirectURI)
			return
		}

		h.logger.WithFields(logrus.Fields{
			"client_id": req.ClientID,
			"user_id":   session.UserID,
		}).Info("Authorization auto-approved from existing consent")

		http.Redirect(w, r, resp.RedirectTo, http.StatusFound)
		return
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	if encodeErr := json.NewEncoder(w).Encode(consentCtx); encodeErr != nil {
		h.logger.WithError(encodeErr).Error("Failed to encode consent context")
	}
}

// Decide handles the consent decision posted after the prompt. The original
// authorization parameters are re-posted and re-validated in full; nothing
// from the rendered prompt is trusted.
func (h *ConsentHandler) Decide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		h.writeAuthorizeError(w, r, models.NewInvalidRequest(invalidFormDataError), "")
		return
	}

	session, err := h.requireSession(r)
	if err != nil {
		h.writeAuthorizeError(w, r, models.NewAccessDenied("sign in to the parish application first"), "")
		return
	}

	decision := &models.ConsentDecisionRequest{
		Approved:            r.FormValue("approved") == "true",
		ClientID:            r.FormValue("client_id"),
		RedirectURI:         r.FormValue("redirect_uri"),
		Scope:               r.FormValue("scope"),
		State:               r.FormValue("state"),
		CodeChallenge:       r.FormValue("code_challenge"),
		CodeChallengeMethod: r.FormValue("code_challenge_method"),
		ApprovedScopes:      r.FormValue("approved_scopes"),
	}
	req := decision.ToAuthorizeRequest()

	if !decision.Approved {
		denyErr := h.consentSvc.Deny(ctx, session.UserID, session.ParishID, req)
		if denyErr == nil {
			denyErr = models.NewServerError("denial produced no result")
		}
		h.writeAuthorizeError(w, r, denyErr, req.RedirectURI)
		return
	}

	var approvedScopes []string
	if decision.ApprovedScopes != "" {
		approvedScopes = models.ParseScopes(decision.ApprovedScopes)
	}

	resp, err := h.consentSvc.Grant(ctx, session.UserID, session.ParishID, req, approvedScopes)
	if err != nil {
		h.writeAuthorizeError(w, r, err, req.RedirectURI)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"client_id": req.ClientID,
		"user_id":   session.UserID,
	}).Info("Consent granted, redirecting with authorization code")

	http.Redirect(w, r, resp.RedirectTo, http.StatusFound)
}

// ListConsents returns the signed-in member's active consents.
func (h *ConsentHandler) ListConsents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	session, err := h.requireSession(r)
	if err != nil {
		h.writeJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	consents, err := h.consentSvc.ListConsents(ctx, session.ParishID, session.UserID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list consents")
		h.writeJSONError(w, "failed to list consents", http.StatusInternalServerError)
		return
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	if encodeErr := json.NewEncoder(w).Encode(map[string]interface{}{
		"consents": consents,
	}); encodeErr != nil {
		h.logger.WithError(encodeErr).Error("Failed to encode consents response")
	}
}

// RevokeConsent withdraws the member's consent for a client and revokes
// every token issued under it.
func (h *ConsentHandler) RevokeConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientID := mux.Vars(r)["client_id"]

	session, err := h.requireSession(r)
	if err != nil {
		h.writeJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	revoked, tokensRevoked, err := h.consentSvc.RevokeConsent(ctx, session.UserID, session.ParishID, clientID)
	if err != nil {
		if errors.Is(err, repository.ErrConsentNotFound) {
			h.writeJSONError(w, "consent not found", http.StatusNotFound)
			return
		}
		h.logger.WithError(err).Error("Failed to revoke consent")
		h.writeJSONError(w, "failed to revoke consent", http.StatusInternalServerError)
		return
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	if encodeErr := json.NewEncoder(w).Encode(map[string]interface{}{
		"consent":        revoked,
		"tokens_revoked": tokensRevoked,
	}); encodeErr != nil {
		h.logger.WithError(encodeErr).Error("Failed to encode revocation response")
	}
}

// requireSession resolves the parish app session from the request cookie.
func (h *ConsentHandler) requireSession(r *http.Request) (*models.Session, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil, errors.New("missing session cookie")
	}

	session, err := h.store.GetSession(r.Context(), cookie.Value)
	if err != nil {
		return nil, errors.New("invalid session")
	}

	if session.IsExpired() {
		return nil, errors.New("session expired")
	}

	return session, nil
}

// writeAuthorizeError delivers an authorization error. Redirect-safe errors
// go back to the client's redirect URI with error, error_description, and
// state query parameters; everything else (unknown client, unvalidated
// redirect URI) is answered directly as JSON so an attacker-controlled URI
// never receives a redirect.
func (h *ConsentHandler) writeAuthorizeError(w http.ResponseWriter, r *http.Request, err error, redirectURI string) {
	var oauth2Err *models.OAuth2Error
	if !errors.As(err, &oauth2Err) {
		oauth2Err = models.NewServerError(err.Error())
	}

	h.logger.WithFields(logrus.Fields{
		"error":         oauth2Err.Code,
		"description":   oauth2Err.Description,
		"status_code":   oauth2Err.StatusCode,
		"redirect_safe": oauth2Err.RedirectSafe,
	}).Warn("Authorization error")

	if oauth2Err.RedirectSafe && redirectURI != "" {
		target, parseErr := url.Parse(redirectURI)
		if parseErr == nil {
			query := target.Query()
			query.Set("error", oauth2Err.Code)
			if oauth2Err.Description != "" {
				query.Set("error_description", oauth2Err.Description)
			}
			if oauth2Err.State != "" {
				query.Set("state", oauth2Err.State)
			}
			target.RawQuery = query.Encode()
			http.Redirect(w, r, target.String(), http.StatusFound)
			return
		}
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(oauth2Err.StatusCode)
	if encodeErr := json.NewEncoder(w).Encode(oauth2Err); encodeErr != nil {
		h.logger.WithError(encodeErr).Error("Failed to encode error response")
	}
}

// writeJSONError writes a simple error response.
func (h *ConsentHandler) writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		h.logger.WithError(err).Error("Failed to encode error response")
	}
}
