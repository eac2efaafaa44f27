package models

import (
	"fmt"
	"net/http"
)

// OAuth2Error represents a standard OAuth2 error response as defined in RFC 6749.
// It implements the error interface and carries everything the HTTP layer needs
// to render the error: the wire code, a description, the client state to echo,
// the HTTP status, and whether the error may be delivered via redirect.
type OAuth2Error struct {
	// Code is the OAuth2 error code (e.g., "invalid_request", "access_denied").
	Code string `json:"error"`
	// Description provides additional human-readable error information.
	Description string `json:"error_description,omitempty"`
	// URI is a reference to a web page with error information.
	URI string `json:"error_uri,omitempty"`
	// State is the client-provided state parameter, echoed byte-for-byte.
	State string `json:"state,omitempty"`
	// StatusCode is the HTTP status code to return (excluded from JSON).
	StatusCode int `json:"-"`
	// RedirectSafe reports whether this error may be reported to the client's
	// redirect URI. Errors raised before the redirect URI has been validated
	// (unknown client, mismatched redirect URI) must never redirect, since
	// redirecting would hand an attacker-controlled URI the error response.
	RedirectSafe bool `json:"-"`
}

// NewUnknownClient creates an OAuth2Error for an authorization request whose
// client_id does not resolve to a registered, active client. The redirect URI
// cannot be trusted at this point, so the error is not redirect-safe.
// Returns HTTP 401 Unauthorized.
func NewUnknownClient(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        "unauthorized_client",
		Description: description,
		StatusCode:  http.StatusUnauthorized,
	}
}

// NewInvalidRedirectURI creates an OAuth2Error for a redirect_uri that does not
// exactly match any URI registered for the client. Never redirect-safe: the
// whole point of the check is that the URI is untrusted. Returns HTTP 400.
func NewInvalidRedirectURI(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        "invalid_request",
		Description: description,
		StatusCode:  http.StatusBadRequest,
	}
}

// NewNoValidScopes creates an OAuth2Error for a scope parameter that, after
// dropping unknown scopes and intersecting with the client's and user's
// allowed scopes, leaves nothing to consent to. Redirect-safe because the
// redirect URI has already been validated by the time scopes are parsed.
// Returns HTTP 400 Bad Request.
func NewNoValidScopes(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:         "invalid_scope",
		Description:  description,
		StatusCode:   http.StatusBadRequest,
		RedirectSafe: true,
	}
}

// NewInvalidPKCEMethod creates an OAuth2Error for an unsupported
// code_challenge_method value. Only "plain" and "S256" are accepted.
// Redirect-safe. Returns HTTP 400 Bad Request.
func NewInvalidPKCEMethod(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:         "invalid_request",
		Description:  description,
		StatusCode:   http.StatusBadRequest,
		RedirectSafe: true,
	}
}

// NewAccessDenied creates an OAuth2Error for a request the resource owner or
// the authorization server refused (declined consent, parish OAuth disabled,
// user lacks OAuth access). Redirect-safe. Returns HTTP 403 Forbidden.
func NewAccessDenied(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:         "access_denied",
		Description:  description,
		StatusCode:   http.StatusForbidden,
		RedirectSafe: true,
	}
}

// NewStorageFailure creates an OAuth2Error for a backend read or write that
// failed mid-flow. The description should stay generic; backend details belong
// in the logs, not the response. Redirect-safe. Returns HTTP 500.
func NewStorageFailure(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:         "server_error",
		Description:  description,
		StatusCode:   http.StatusInternalServerError,
		RedirectSafe: true,
	}
}

// NewInvalidRequest creates a new OAuth2Error with the "invalid_request" error
// code and the provided description, for malformed or incomplete requests.
// Returns HTTP 400 Bad Request.
func NewInvalidRequest(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        "invalid_request",
		Description: description,
		StatusCode:  http.StatusBadRequest,
	}
}

// NewInvalidClient creates a new OAuth2Error with the "invalid_client" error
// code and the provided description. Used at the token endpoint when client
// authentication fails. Returns HTTP 401 Unauthorized.
func NewInvalidClient(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        "invalid_client",
		Description: description,
		StatusCode:  http.StatusUnauthorized,
	}
}

// NewInvalidGrant creates a new OAuth2Error with the "invalid_grant" error
// code and the provided description. Used when an authorization code or
// refresh token is invalid, expired, already used, rotated, or bound to a
// different client or redirect URI. Returns HTTP 400 Bad Request.
func NewInvalidGrant(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        "invalid_grant",
		Description: description,
		StatusCode:  http.StatusBadRequest,
	}
}

// NewInvalidScope creates a new OAuth2Error with the "invalid_scope" error
// code and the provided description. Returns HTTP 400 Bad Request.
func NewInvalidScope(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        "invalid_scope",
		Description: description,
		StatusCode:  http.StatusBadRequest,
	}
}

// NewServerError creates a new OAuth2Error with the "server_error" error code
// and the provided description. Returns HTTP 500 Internal Server Error.
func NewServerError(description string) *OAuth2Error {
	return &OAuth2Error{
		Code:        "server_error",
		Description: description,
		StatusCode:  http.StatusInternalServerError,
	}
}

// Error returns a string representation of the OAuth2 error.
// It implements the error interface.
func (e *OAuth2Error) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Description)
	}
	return e.Code
}

// WithState sets the state parameter on the OAuth2Error and returns the error.
// State must be echoed byte-for-byte from the authorization request so the
// client can correlate the response; it is never parsed or normalized here.
// This method modifies the error in place and returns the same instance for chaining.
func (e *OAuth2Error) WithState(state string) *OAuth2Error {
	e.State = state
	return e
}

// WithDescription sets the error_description field on the OAuth2Error and
// returns the same instance for chaining.
func (e *OAuth2Error) WithDescription(description string) *OAuth2Error {
	e.Description = description
	return e
}

var (
	// ErrInvalidRequest indicates that the request is missing a required
	// parameter, includes an invalid parameter value, or is otherwise
	// malformed. Returns HTTP 400 Bad Request.
	ErrInvalidRequest = &OAuth2Error{
		Code:       "invalid_request",
		StatusCode: http.StatusBadRequest,
	}

	// ErrInvalidClient indicates that client authentication failed (unknown
	// client, missing credentials, or bad secret). Returns HTTP 401.
	ErrInvalidClient = &OAuth2Error{
		Code:       "invalid_client",
		StatusCode: http.StatusUnauthorized,
	}

	// ErrInvalidGrant indicates that the presented authorization code or
	// refresh token is invalid, expired, revoked, already consumed, or bound
	// to different request parameters. Returns HTTP 400 Bad Request.
	ErrInvalidGrant = &OAuth2Error{
		Code:       "invalid_grant",
		StatusCode: http.StatusBadRequest,
	}

	// ErrUnauthorizedClient indicates that the client is not known or not
	// authorized to use this authorization grant type. Returns HTTP 401.
	ErrUnauthorizedClient = &OAuth2Error{
		Code:       "unauthorized_client",
		StatusCode: http.StatusUnauthorized,
	}

	// ErrUnsupportedGrantType indicates that the grant type is not supported
	// by this authorization server. Returns HTTP 400 Bad Request.
	ErrUnsupportedGrantType = &OAuth2Error{
		Code:       "unsupported_grant_type",
		StatusCode: http.StatusBadRequest,
	}

	// ErrInvalidScope indicates that the requested scope is invalid, unknown,
	// or exceeds what the resource owner granted. Returns HTTP 400.
	ErrInvalidScope = &OAuth2Error{
		Code:         "invalid_scope",
		StatusCode:   http.StatusBadRequest,
		RedirectSafe: true,
	}

	// ErrAccessDenied indicates that the resource owner or authorization
	// server denied the request. Returns HTTP 403 Forbidden.
	ErrAccessDenied = &OAuth2Error{
		Code:         "access_denied",
		StatusCode:   http.StatusForbidden,
		RedirectSafe: true,
	}

	// ErrUnsupportedResponseType indicates that the server does not support
	// obtaining an authorization code using this method. Returns HTTP 400.
	ErrUnsupportedResponseType = &OAuth2Error{
		Code:         "unsupported_response_type",
		StatusCode:   http.StatusBadRequest,
		RedirectSafe: true,
	}

	// ErrServerError indicates that the authorization server encountered an
	// unexpected condition. Returns HTTP 500 Internal Server Error.
	ErrServerError = &OAuth2Error{
		Code:         "server_error",
		StatusCode:   http.StatusInternalServerError,
		RedirectSafe: true,
	}

	// ErrTemporarilyUnavailable indicates that the authorization server is
	// temporarily unable to handle the request. Returns HTTP 503.
	ErrTemporarilyUnavailable = &OAuth2Error{
		Code:       "temporarily_unavailable",
		StatusCode: http.StatusServiceUnavailable,
	}
)

// ValidationError represents a single field validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error returns the validation error formatted as "field: message".
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of field validation errors that itself
// implements the error interface.
type ValidationErrors []ValidationError

// Error summarizes the collection: the single error's message when there is
// exactly one, otherwise a count.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("validation failed with %d errors", len(e))
}

// HasErrors reports whether the collection contains at least one error.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}
