// Package parishapi provides a typed client for the OutwardSign parish API,
// authenticated with tokens delegated through the consent service.
package parishapi

import "time"

// Event represents a parish calendar event.
type Event struct {
	// ID is the UUID of the event.
	ID string `json:"id"`
	// Title is the event title shown on the parish calendar.
	Title string `json:"title"`
	// Location is where the event takes place (optional).
	Location string `json:"location,omitempty"`
	// StartsAt is the event start time.
	StartsAt time.Time `json:"starts_at"`
	// EndsAt is the event end time.
	EndsAt time.Time `json:"ends_at"`
}

// CreateEventRequest represents a request to add a parish calendar event.
type CreateEventRequest struct {
	// Title is the event title (required).
	Title string `json:"title"`
	// Location is where the event takes place (optional).
	Location string `json:"location,omitempty"`
	// StartsAt is the event start time (required).
	StartsAt time.Time `json:"starts_at"`
	// EndsAt is the event end time (required).
	EndsAt time.Time `json:"ends_at"`
}

// EventListResponse represents the response from the event listing endpoint.
type EventListResponse struct {
	// Events contains the parish calendar events in the requested window.
	Events []Event `json:"events"`
	// Total is the total number of matching events.
	Total int `json:"total"`
}

// Profile represents the parish member profile of the delegating user.
type Profile struct {
	// ID is the UUID of the member.
	ID string `json:"id"`
	// Name is the member's display name.
	Name string `json:"name"`
	// Email is the member's email address.
	Email string `json:"email"`
	// ParishID identifies the member's parish.
	ParishID string `json:"parish_id"`
	// Roles lists the member's parish roles.
	Roles []string `json:"roles,omitempty"`
}

// ErrorResponse represents an error response from the parish API.
type ErrorResponse struct {
	// Error is the error code/type.
	Error string `json:"error"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Detail provides additional error details (optional).
	Detail string `json:"detail,omitempty"`
	// Errors contains field-specific validation errors (optional).
	Errors map[string]interface{} `json:"errors,omitempty"`
}
