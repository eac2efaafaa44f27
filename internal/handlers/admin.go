package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/fr-mccarty/outwardsign-sub009/internal/auth"
	"github.com/fr-mccarty/outwardsign-sub009/internal/config"
	"github.com/fr-mccarty/outwardsign-sub009/internal/constants"
	"github.com/fr-mccarty/outwardsign-sub009/internal/models"
	"github.com/fr-mccarty/outwardsign-sub009/internal/repository"
)

// AdminHandler handles the parish administration endpoints: grant statistics,
// forced logout, parish OAuth settings, and per-user scope permissions.
type AdminHandler struct {
	adminSvc   auth.AdminService
	parishRepo repository.ParishSettingsRepository
	permsRepo  repository.UserPermissionsRepository
	config     *config.Config
	logger     *logrus.Logger
}

// NewAdminHandler creates a new admin handler instance with the provided dependencies.
func NewAdminHandler(
	adminSvc auth.AdminService,
	parishRepo repository.ParishSettingsRepository,
	permsRepo repository.UserPermissionsRepository,
	cfg *config.Config,
	logger *logrus.Logger,
) *AdminHandler {
	return &AdminHandler{
		adminSvc:   adminSvc,
		parishRepo: parishRepo,
		permsRepo:  permsRepo,
		config:     cfg,
		logger:     logger,
	}
}

// RegisterRoutes registers admin routes on the provided router.
// Note: The router should already have admin auth middleware applied.
func (h *AdminHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/grants/stats", h.GetGrantStats).Methods(http.MethodGet)
	router.HandleFunc("/user-management/{userId}/force-logout", h.ForceLogout).Methods(http.MethodPost)

	router.HandleFunc("/parishes/{parishId}/oauth-settings", h.GetParishSettings).Methods(http.MethodGet)
	router.HandleFunc("/parishes/{parishId}/oauth-settings", h.UpdateParishSettings).Methods(http.MethodPut)
	router.HandleFunc("/parishes/{parishId}/users/{userId}/oauth-permissions", h.GetUserPermissions).Methods(http.MethodGet)
	router.HandleFunc("/parishes/{parishId}/users/{userId}/oauth-permissions", h.SetUserPermissions).Methods(http.MethodPut)
}

// GetGrantStats handles GET /admin/grants/stats
// Returns statistics about authorization artifacts currently in the hot store.
//
// Query Parameters:
//   - includeTtlDistribution: Include histogram of remaining TTLs (default: false)
//   - includeTtlSummary: Include aggregate TTL statistics (default: false)
//
// Responses:
//   - 200: Grant statistics retrieved successfully
//   - 401: Unauthorized (handled by middleware)
//   - 403: Forbidden (handled by middleware)
//   - 500: Internal server error
func (h *AdminHandler) GetGrantStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	h.logger.Info("Processing grant stats request")

	req := &models.GrantStatsRequest{
		IncludeTTLDistribution: h.parseBoolParam(r, "includeTtlDistribution"),
		IncludeTTLSummary:      h.parseBoolParam(r, "includeTtlSummary"),
	}

	stats, err := h.adminSvc.GetGrantStats(ctx, req)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get grant stats")
		h.writeErrorResponse(w, "Failed to retrieve grant statistics", http.StatusInternalServerError)
		return
	}

	h.writeJSONResponse(w, stats, http.StatusOK)
	h.logger.WithFields(logrus.Fields{
		"active_codes":    stats.ActiveCodes,
		"active_sessions": stats.ActiveSessions,
	}).Info("Grant stats retrieved successfully")
}

// ForceLogout handles POST /admin/user-management/{userId}/force-logout
// Clears every session for the user, forcing them back through the consent
// screen on their next authorization. Tokens already issued are untouched.
//
// Path Parameters:
//   - userId: The UUID of the user to force logout
//
// Responses:
//   - 200: User logged out successfully
//   - 400: Invalid user ID format
//   - 401: Unauthorized (handled by middleware)
//   - 403: Forbidden (handled by middleware)
//   - 500: Internal server error
func (h *AdminHandler) ForceLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)
	userID := vars["userId"]

	h.logger.WithField("user_id", userID).Info("Processing force logout request")

	if _, err := uuid.Parse(userID); err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Warn("Invalid user ID format")
		h.writeErrorResponse(w, "Invalid user ID format: must be a valid UUID", http.StatusBadRequest)
		return
	}

	response, err := h.adminSvc.ForceLogoutUser(ctx, userID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to force logout user")
		h.writeErrorResponse(w, "Failed to force logout user", http.StatusInternalServerError)
		return
	}

	h.writeJSONResponse(w, response, http.StatusOK)
	h.logger.WithFields(logrus.Fields{
		"user_id":          userID,
		"sessions_cleared": response.SessionsCleared,
	}).Info("User force logout successful")
}

// GetParishSettings handles GET /admin/parishes/{parishId}/oauth-settings
// Returns the parish's OAuth posture.
func (h *AdminHandler) GetParishSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	parishID := mux.Vars(r)["parishId"]

	settings, err := h.parishRepo.GetParishSettings(ctx, parishID)
	if err != nil {
		h.logger.WithError(err).WithField("parish_id", parishID).Warn("Parish settings lookup failed")
		h.writeErrorResponse(w, "Parish not found", http.StatusNotFound)
		return
	}

	h.writeJSONResponse(w, settings, http.StatusOK)
}

// UpdateParishSettings handles PUT /admin/parishes/{parishId}/oauth-settings
// Enables or disables OAuth for the parish and optionally narrows the scopes
// its users may grant. Disabling does not revoke existing tokens; it only
// stops new authorizations.
func (h *AdminHandler) UpdateParishSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	parishID := mux.Vars(r)["parishId"]

	var req models.UpdateParishSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.parishRepo.UpdateParishSettings(ctx, parishID, &req); err != nil {
		if errors.Is(err, repository.ErrParishNotFound) {
			h.writeErrorResponse(w, "Parish not found", http.StatusNotFound)
			return
		}
		h.logger.WithError(err).WithField("parish_id", parishID).Error("Failed to update parish settings")
		h.writeErrorResponse(w, "Failed to update parish settings", http.StatusInternalServerError)
		return
	}

	settings, err := h.parishRepo.GetParishSettings(ctx, parishID)
	if err != nil {
		h.logger.WithError(err).WithField("parish_id", parishID).Error("Failed to reload parish settings")
		h.writeErrorResponse(w, "Failed to update parish settings", http.StatusInternalServerError)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"parish_id":     parishID,
		"oauth_enabled": settings.OAuthEnabled,
	}).Info("Parish OAuth settings updated")

	h.writeJSONResponse(w, settings, http.StatusOK)
}

// GetUserPermissions handles GET /admin/parishes/{parishId}/users/{userId}/oauth-permissions
// Returns the user's scope allowlist, falling back to the default when no
// explicit record exists.
func (h *AdminHandler) GetUserPermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)

	perms, err := h.permsRepo.GetUserPermissions(ctx, vars["parishId"], vars["userId"])
	if err != nil {
		h.logger.WithError(err).Error("Failed to get user permissions")
		h.writeErrorResponse(w, "Failed to retrieve user permissions", http.StatusInternalServerError)
		return
	}

	// No explicit record means the default allowlist applies.
	if perms == nil {
		perms = &models.UserOAuthPermissions{
			UserID:        vars["userId"],
			ParishID:      vars["parishId"],
			AllowedScopes: models.DefaultUserScopes,
		}
	}

	h.writeJSONResponse(w, perms, http.StatusOK)
}

// SetUserPermissions handles PUT /admin/parishes/{parishId}/users/{userId}/oauth-permissions
// Replaces the user's scope allowlist.
func (h *AdminHandler) SetUserPermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vars := mux.Vars(r)

	var req models.SetUserPermissionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.Validate(); err != nil {
		h.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	perms := &models.UserOAuthPermissions{
		UserID:        vars["userId"],
		ParishID:      vars["parishId"],
		AllowedScopes: req.AllowedScopes,
		GrantedBy:     r.Header.Get("X-Admin-User"),
		UpdatedAt:     time.Now(),
	}
	if err := h.permsRepo.SetUserPermissions(ctx, perms); err != nil {
		h.logger.WithError(err).Error("Failed to set user permissions")
		h.writeErrorResponse(w, "Failed to set user permissions", http.StatusInternalServerError)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"parish_id":      vars["parishId"],
		"user_id":        vars["userId"],
		"allowed_scopes": perms.AllowedScopes,
	}).Info("User OAuth permissions updated")

	h.writeJSONResponse(w, perms, http.StatusOK)
}

// parseBoolParam parses a boolean query parameter with default false.
func (h *AdminHandler) parseBoolParam(r *http.Request, name string) bool {
	value := r.URL.Query().Get(name)
	if value == "" {
		return false
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return false
	}
	return result
}

// writeJSONResponse writes a JSON response with the given status code.
func (h *AdminHandler) writeJSONResponse(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// writeErrorResponse writes a JSON error response with the given message and status code.
func (h *AdminHandler) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	response := map[string]interface{}{
		"error":             "admin_error",
		"error_description": message,
	}

	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.WithError(err).Error("Failed to encode error response")
	}
}
